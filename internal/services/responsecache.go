package services

import (
	"fmt"
	"time"

	"github.com/amaumene/godebrid/internal/constants"
	"github.com/amaumene/godebrid/internal/models"
	"github.com/amaumene/godebrid/internal/store"
	"github.com/amaumene/godebrid/pkg/logger"
)

// ResponseCache wraps expensive list building with an outcome-dependent TTL
// and memoizes recently resolved direct URLs. Hits never re-invoke the
// compute function; staleness is advertised through the returned age, not
// enforced here.
type ResponseCache struct {
	store  store.Store
	logger logger.Logger

	listTTL      time.Duration
	emptyListTTL time.Duration
	urlMemoTTL   time.Duration
	disabled     bool
}

// CachedList is a stream list plus the freshness metadata the protocol layer
// advertises.
type CachedList struct {
	Streams []models.Stream
	Age     time.Duration
	Hit     bool
}

func NewResponseCache(st store.Store, log logger.Logger, listTTL, emptyListTTL time.Duration, disabled bool) *ResponseCache {
	return &ResponseCache{
		store:        st,
		logger:       log,
		listTTL:      listTTL,
		emptyListTTL: emptyListTTL,
		urlMemoTTL:   constants.DefaultURLMemoTTL,
		disabled:     disabled,
	}
}

// WrapList returns the cached stream list for key, or invokes compute once
// and stores the result. Concurrent misses for the same key may each invoke
// compute; overwrites are idempotent re-derivations so last write wins.
func (c *ResponseCache) WrapList(key string, compute func() ([]models.Stream, error)) (*CachedList, error) {
	storeKey := store.PrefixStreamList + key

	if !c.disabled {
		var streams []models.Stream
		if ok, age := c.store.Get(storeKey, &streams); ok {
			c.logger.Debugf("[ResponseCache] hit for %s (age %s)", key, age.Round(time.Second))
			return &CachedList{Streams: streams, Age: age, Hit: true}, nil
		}
	}

	streams, err := compute()
	if err != nil {
		return nil, err
	}

	if !c.disabled {
		if err := c.store.Set(storeKey, streams, c.ttlFor(streams)); err != nil {
			c.logger.Warnf("[ResponseCache] failed to store list for %s: %v", key, err)
		}
	}
	return &CachedList{Streams: streams}, nil
}

// ttlFor is the outcome-dependent TTL policy: empty results expire fast so a
// transiently empty catalog recovers, populated ones live long.
func (c *ResponseCache) ttlFor(streams []models.Stream) time.Duration {
	if len(streams) == 0 {
		return c.emptyListTTL
	}
	return c.listTTL
}

// GetResolvedURL returns a recently resolved direct URL for the descriptor.
func (c *ResponseCache) GetResolvedURL(provider, hash string, fileIndex int) (string, bool) {
	if c.disabled {
		return "", false
	}
	var url string
	ok, _ := c.store.Get(urlMemoKey(provider, hash, fileIndex), &url)
	return url, ok
}

// PutResolvedURL memoizes a resolved direct URL to absorb immediate repeat
// requests.
func (c *ResponseCache) PutResolvedURL(provider, hash string, fileIndex int, url string) {
	if c.disabled {
		return
	}
	if err := c.store.Set(urlMemoKey(provider, hash, fileIndex), url, c.urlMemoTTL); err != nil {
		c.logger.Warnf("[ResponseCache] failed to memoize URL for %s: %v", hash, err)
	}
}

func urlMemoKey(provider, hash string, fileIndex int) string {
	return fmt.Sprintf("%s%s:%s:%d", store.PrefixResolvedURL, provider, hash, fileIndex)
}
