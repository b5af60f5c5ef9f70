// Package debrid defines the capability interface a debrid provider must
// implement, the closed job status set, and the error classification shared
// by every provider client.
package debrid

import (
	"errors"
	"fmt"
)

// Status is the normalized state of a remote torrent job. Provider-specific
// status strings are folded into this closed set through a mapping table.
type Status int

const (
	StatusUnknown Status = iota
	StatusOpening
	StatusWaitingSelection
	StatusDownloading
	StatusReady
	StatusMagnetError
	StatusErred
)

func (s Status) String() string {
	switch s {
	case StatusOpening:
		return "opening"
	case StatusWaitingSelection:
		return "waiting_selection"
	case StatusDownloading:
		return "downloading"
	case StatusReady:
		return "ready"
	case StatusMagnetError:
		return "magnet_error"
	case StatusErred:
		return "erred"
	default:
		return "unknown"
	}
}

// File is a single file inside a remote torrent job. IDs are 1-based on the
// wire for every known provider.
type File struct {
	ID       int
	Path     string
	Bytes    int64
	Selected bool
}

// Job is a snapshot of a remote torrent job. Links holds one provider URL per
// selected file, or a single combined link depending on the provider.
type Job struct {
	ID     string
	Hash   string
	Status Status
	Files  []File
	Links  []string
}

// SelectedFiles returns the job's selected files in wire order.
func (j *Job) SelectedFiles() []File {
	var selected []File
	for _, f := range j.Files {
		if f.Selected {
			selected = append(selected, f)
		}
	}
	return selected
}

// UnrestrictedLink is the result of resolving a provider link into a direct
// download URL.
type UnrestrictedLink struct {
	Filename   string
	Filesize   int64
	MimeType   string
	Download   string
	Streamable bool
}

// HosterCopy is one cached copy of a torrent on a single hoster: the set of
// file ids jointly present, with their filenames for video detection.
type HosterCopy struct {
	FileIDs   []int
	Filenames map[int]string
}

// Provider is the capability set the resolution engine needs from a debrid
// service. One implementation exists per provider; status strings and error
// codes are mapped inside the implementation.
type Provider interface {
	Name() string
	ListJobs(apiKey string, page, pageSize int) ([]Job, error)
	AddMagnet(apiKey, magnetURI string) (string, error)
	SelectFiles(apiKey, jobID string, fileIDs []int) error
	JobInfo(apiKey, jobID string) (*Job, error)
	InstantAvailability(apiKey string, hashes []string) (map[string][]HosterCopy, error)
	Unrestrict(apiKey, link string) (*UnrestrictedLink, error)
}

// ErrorKind classifies provider failures for the retry and surfacing policy.
type ErrorKind int

const (
	// KindTransient covers timeouts, DNS hiccups and similar network noise.
	KindTransient ErrorKind = iota
	// KindAuth is a bad or expired API key. Never retried.
	KindAuth
	// KindAccessDenied is a terminal account-level refusal.
	KindAccessDenied
	// KindLinkConsumed means a previously produced link was already used or
	// expired; the job must be recreated.
	KindLinkConsumed
	// KindMalformed is an empty or undecodable response body.
	KindMalformed
	// KindUpstream is any other classified provider error.
	KindUpstream
)

// Error is a classified provider failure.
type Error struct {
	Provider string
	Kind     ErrorKind
	Code     int
	Message  string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: error %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// KindOf extracts the error kind from err, defaulting to KindTransient for
// plain transport errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindAuth
}

// IsAccessDenied reports whether err is a terminal account refusal.
func IsAccessDenied(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindAccessDenied
}

// IsLinkConsumed reports whether err signals an already consumed link.
func IsLinkConsumed(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindLinkConsumed
}

// IsMalformed reports whether err is an empty or undecodable response.
func IsMalformed(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindMalformed
}
