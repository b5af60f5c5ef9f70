// Package models holds the wire and domain types shared across the engine.
package models

// Manifest is the addon descriptor served at /manifest.json.
type Manifest struct {
	ID            string        `json:"id"`
	Version       string        `json:"version"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Types         []string      `json:"types"`
	Resources     []string      `json:"resources"`
	Catalogs      []Catalog     `json:"catalogs"`
	BehaviorHints BehaviorHints `json:"behaviorHints"`
	IDPrefixes    []string      `json:"idPrefixes,omitempty"`
}

type BehaviorHints struct {
	Configurable          bool `json:"configurable"`
	ConfigurationRequired bool `json:"configurationRequired,omitempty"`
}

type Catalog struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stream is one playable entry in a stream list response.
type Stream struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

type StreamResponse struct {
	Streams []Stream `json:"streams"`
}

// TorrentDescriptor identifies the torrent and file a play request targets.
// Transient, created per request, never persisted.
type TorrentDescriptor struct {
	InfoHash string
	// FileIndex is 0-based; negative means absent.
	FileIndex int
	// CachedFileIDHint is an optional comma-separated list of provider file
	// ids known to be jointly cached.
	CachedFileIDHint string
}

// AvailabilityRecord maps an info hash to its cached file-id groups.
// Group 0 is the largest; later groups each contain at least one id absent
// from group 0.
type AvailabilityRecord struct {
	InfoHash string  `json:"info_hash"`
	Groups   [][]int `json:"groups"`
}

// AvailabilityStatus is the per-hash answer of listCachedAvailability.
type AvailabilityStatus struct {
	Cached             bool   `json:"cached"`
	ResolveURLTemplate string `json:"resolveUrlTemplate,omitempty"`
}

// PendingReason is the terminal non-URL outcome of a resolve attempt.
type PendingReason string

const (
	PendingNone               PendingReason = ""
	PendingDownloading        PendingReason = "downloading"
	PendingOpeningFailed      PendingReason = "opening_failed"
	PendingDownloadFailed     PendingReason = "download_failed"
	PendingUnsupportedArchive PendingReason = "unsupported_archive"
)

// Resolution is the outcome of a resolve attempt: a direct URL or a
// PendingReason the caller should poll on.
type Resolution struct {
	URL     string        `json:"url,omitempty"`
	Pending PendingReason `json:"pending,omitempty"`
}
