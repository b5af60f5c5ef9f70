// Package constants defines application-wide constants and default values.
package constants

import "time"

const (
	// Addon metadata
	AddonID          = "godebrid.stremio.addon"
	AddonVersion     = "1.0.0"
	AddonName        = "GoDebrid"
	AddonDescription = "Debrid resolution addon that turns cached torrents into playable URLs"

	// Default configuration values
	DefaultPort     = "5000"
	DefaultLogLevel = "info"

	// Cache settings
	DefaultCacheSize     = 5000
	DefaultListTTL       = 1 * time.Hour
	DefaultEmptyListTTL  = 60 * time.Second
	DefaultURLMemoTTL    = 60 * time.Second
	DefaultAvailTTL      = 4 * time.Hour
	CacheSweepSchedule   = "@hourly"

	// Availability batch client
	AvailabilityBatchSize  = 150
	AvailabilityRetries    = 3
	OversizedBatchDivisor  = 10

	// Lifecycle resolver
	JobListPageSize     = 50
	ProviderReadRetries = 3
	OpeningPollInterval = 2 * time.Second
	OpeningPollAttempts = 15
	MinVideoFileBytes   = 5 * 1024 * 1024

	// Scheduler
	DefaultMaxConcurrent = 20
	DefaultQueueSize     = 64

	// Rate limiting
	ProviderRateLimit = 10 // refill, requests per second
	ProviderRateBurst = 2  // bucket capacity
	PlaybackRateLimit = 20
	PlaybackRateBurst = 5
)

// VideoExtensions lists the file extensions recognized as playable video.
var VideoExtensions = []string{
	".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", ".mpg", ".mpeg", ".ts",
}

// ArchiveExtensions lists extensions the engine refuses to stream.
var ArchiveExtensions = []string{
	".rar", ".zip", ".7z", ".tar", ".gz", ".iso",
}
