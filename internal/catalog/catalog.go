// Package catalog exposes the ranked torrent candidate lookup the stream
// handler consumes. Discovery and ranking happen elsewhere; this package only
// serves previously ingested candidates and is treated as opaque by the
// resolution engine.
package catalog

import (
	"fmt"
	"time"

	"github.com/amaumene/godebrid/internal/store"
)

const (
	keyPrefix    = "cand:"
	candidateTTL = 7 * 24 * time.Hour
)

// Candidate is one ranked torrent for a catalog entry.
type Candidate struct {
	InfoHash string `json:"info_hash"`
	// FileIndex is 0-based; negative means the whole torrent.
	FileIndex  int       `json:"file_index"`
	Title      string    `json:"title"`
	Seeders    int       `json:"seeders"`
	UploadDate time.Time `json:"upload_date"`
}

// Repository returns ranked candidates for a catalog entry. For series the
// id carries season and episode; for movies both are zero.
type Repository interface {
	Candidates(contentType, id string, season, episode int) ([]Candidate, error)
}

// StoreRepository serves candidates out of the shared key-value store.
type StoreRepository struct {
	store store.Store
}

func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

func (r *StoreRepository) Candidates(contentType, id string, season, episode int) ([]Candidate, error) {
	var candidates []Candidate
	if ok, _ := r.store.Get(candidateKey(contentType, id, season, episode), &candidates); !ok {
		return nil, nil
	}
	return candidates, nil
}

// Ingest replaces the stored candidate list for a catalog entry. Callers are
// expected to pass the list already ranked.
func (r *StoreRepository) Ingest(contentType, id string, season, episode int, candidates []Candidate) error {
	return r.store.Set(candidateKey(contentType, id, season, episode), candidates, candidateTTL)
}

func candidateKey(contentType, id string, season, episode int) string {
	if season > 0 || episode > 0 {
		return fmt.Sprintf("%s%s:%s:%d:%d", keyPrefix, contentType, id, season, episode)
	}
	return fmt.Sprintf("%s%s:%s", keyPrefix, contentType, id)
}
