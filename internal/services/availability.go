package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/amaumene/godebrid/internal/constants"
	apperrors "github.com/amaumene/godebrid/internal/errors"
	"github.com/amaumene/godebrid/internal/store"
	"github.com/amaumene/godebrid/pkg/debrid"
	"github.com/amaumene/godebrid/pkg/logger"
	"github.com/amaumene/godebrid/pkg/ratelimiter"
	"github.com/amaumene/godebrid/pkg/security"
)

// Availability answers "which of these torrents are already cached on the
// provider" with its own normalization and caching layer. Results are a
// performance hint: batch failures degrade to unknown, they never propagate.
type Availability struct {
	provider    debrid.Provider
	store       store.Store
	logger      logger.Logger
	rateLimiter *ratelimiter.TokenBucket
	files       *fileInfo
	validator   *security.APIKeyValidator

	ttl      time.Duration
	disabled bool
}

func NewAvailability(provider debrid.Provider, st store.Store, log logger.Logger, ttl time.Duration, disabled bool) *Availability {
	return &Availability{
		provider:    provider,
		store:       st,
		logger:      log,
		rateLimiter: ratelimiter.NewTokenBucket(constants.ProviderRateBurst, constants.ProviderRateLimit),
		files:       newFileInfo(),
		validator:   security.NewAPIKeyValidator(),
		ttl:         ttl,
		disabled:    disabled,
	}
}

// GetCached returns the subset of hashes with a cached availability record.
// It never issues a provider call.
func (a *Availability) GetCached(hashes []string) map[string][][]int {
	result := make(map[string][][]int)
	if a.disabled {
		return result
	}

	for _, hash := range hashes {
		hash = strings.ToLower(hash)
		var record [][]int
		if ok, _ := a.store.Get(store.PrefixAvailability+hash, &record); ok {
			result[hash] = record
		}
	}
	return result
}

// Refresh queries the provider for every hash not already cached, merges the
// normalized results into the cache and returns the combined map. Only an
// authentication failure is returned as an error; exhausted batches resolve
// to unknown for their hashes.
func (a *Availability) Refresh(hashes []string, apiKey string) (map[string][][]int, error) {
	combined := a.GetCached(hashes)

	apiKey = a.validator.SanitizeAPIKey(apiKey)

	var missing []string
	for _, hash := range hashes {
		hash = strings.ToLower(hash)
		if _, ok := combined[hash]; !ok {
			missing = append(missing, hash)
		}
	}
	if len(missing) == 0 {
		return combined, nil
	}

	a.logger.Debugf("[Availability] refreshing %d of %d hashes", len(missing), len(hashes))

	var mu sync.Mutex
	var g errgroup.Group

	for start := 0; start < len(missing); start += constants.AvailabilityBatchSize {
		end := start + constants.AvailabilityBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		g.Go(func() error {
			copies, err := a.queryBatch(apiKey, batch)
			if err != nil {
				if debrid.IsAuth(err) {
					return apperrors.NewAuthenticationError("availability check rejected API key", err)
				}
				// Soft-fail: these hashes stay unknown.
				a.logger.Warnf("[Availability] batch of %d hashes failed, treating as unknown: %v", len(batch), err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for hash, hosterCopies := range copies {
				groups := a.normalize(hosterCopies)
				if len(groups) == 0 {
					continue
				}
				combined[hash] = groups
				if !a.disabled {
					if err := a.store.Set(store.PrefixAvailability+hash, groups, a.ttl); err != nil {
						a.logger.Warnf("[Availability] failed to cache record for %s: %v", hash, err)
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return combined, nil
}

// queryBatch runs one provider call with the local retry policy: transient
// errors retry the same batch up to 3 times; a malformed or empty response
// is treated as an oversized-payload symptom and retried once with the batch
// split down by a factor of 10; authentication fails immediately.
func (a *Availability) queryBatch(apiKey string, batch []string) (map[string][]debrid.HosterCopy, error) {
	var result map[string][]debrid.HosterCopy

	err := retry.Do(
		func() error {
			a.rateLimiter.Wait()
			var err error
			result, err = a.provider.InstantAvailability(apiKey, batch)
			return err
		},
		retry.Attempts(constants.AvailabilityRetries),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return debrid.KindOf(err) == debrid.KindTransient
		}),
	)
	if err == nil {
		return result, nil
	}
	if !debrid.IsMalformed(err) {
		return nil, err
	}

	// Oversized-payload symptom: requery in smaller slices, once each.
	size := len(batch) / constants.OversizedBatchDivisor
	if size < 1 {
		size = 1
	}
	a.logger.Warnf("[Availability] malformed response for batch of %d, retrying with batch size %d", len(batch), size)

	combined := make(map[string][]debrid.HosterCopy)
	for start := 0; start < len(batch); start += size {
		end := start + size
		if end > len(batch) {
			end = len(batch)
		}
		a.rateLimiter.Wait()
		sub, err := a.provider.InstantAvailability(apiKey, batch[start:end])
		if err != nil {
			return nil, fmt.Errorf("retried batch still failing: %w", err)
		}
		for hash, copies := range sub {
			combined[hash] = copies
		}
	}
	return combined, nil
}

// normalize turns a hash's hoster copies into cached file-id groups:
// copies containing a non-video file are discarded, surviving id sets are
// ordered by descending cardinality, and every group after the first must
// contain at least one id absent from group 0.
func (a *Availability) normalize(copies []debrid.HosterCopy) [][]int {
	var groups [][]int
	for _, c := range copies {
		if !a.allVideo(c) {
			continue
		}
		ids := append([]int(nil), c.FileIDs...)
		sort.Ints(ids)
		groups = append(groups, ids)
	}
	if len(groups) == 0 {
		return nil
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i]) > len(groups[j])
	})

	first := make(map[int]bool, len(groups[0]))
	for _, id := range groups[0] {
		first[id] = true
	}

	kept := [][]int{groups[0]}
	for _, group := range groups[1:] {
		if hasNewID(group, first) {
			kept = append(kept, group)
		}
	}
	return kept
}

func (a *Availability) allVideo(c debrid.HosterCopy) bool {
	for _, name := range c.Filenames {
		if !a.files.isVideoFile(name) {
			return false
		}
	}
	return len(c.Filenames) > 0
}

func hasNewID(group []int, first map[int]bool) bool {
	for _, id := range group {
		if !first[id] {
			return true
		}
	}
	return false
}

// HintFor renders the cached file-id hint for a hash as the comma list the
// resolver accepts, preferring a group that contains the wanted file id.
func HintFor(groups [][]int, wireFileID int) string {
	if len(groups) == 0 {
		return ""
	}
	chosen := groups[0]
	if wireFileID > 0 {
	search:
		for _, group := range groups {
			for _, id := range group {
				if id == wireFileID {
					chosen = group
					break search
				}
			}
		}
	}
	parts := make([]string, len(chosen))
	for i, id := range chosen {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
