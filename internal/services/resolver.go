package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/amaumene/godebrid/internal/constants"
	apperrors "github.com/amaumene/godebrid/internal/errors"
	"github.com/amaumene/godebrid/internal/models"
	"github.com/amaumene/godebrid/pkg/debrid"
	"github.com/amaumene/godebrid/pkg/logger"
	"github.com/amaumene/godebrid/pkg/magnet"
	"github.com/amaumene/godebrid/pkg/ratelimiter"
	"github.com/amaumene/godebrid/pkg/security"
)

// Resolver drives a provider torrent job through its lifecycle until it
// yields a direct link or a pending outcome. Every attempt re-reads job
// state before acting: the provider account is a shared resource and a
// previously read snapshot is never trusted across calls.
type Resolver struct {
	provider    debrid.Provider
	logger      logger.Logger
	rateLimiter *ratelimiter.TokenBucket
	files       *fileInfo
	validator   *security.APIKeyValidator

	pollInterval time.Duration
	pollAttempts int
	retryDelay   time.Duration
}

// ResolveRequest carries one play request's torrent descriptor.
type ResolveRequest struct {
	InfoHash string
	// FileIndex is 0-based; negative means absent.
	FileIndex int
	APIKey    string
	// CachedFileIDHint is an optional comma list of provider file ids known
	// to be jointly cached; when valid it drives the initial selection.
	CachedFileIDHint string
}

func NewResolver(provider debrid.Provider, log logger.Logger) *Resolver {
	return &Resolver{
		provider:     provider,
		logger:       log,
		rateLimiter:  ratelimiter.NewTokenBucket(constants.ProviderRateBurst, constants.ProviderRateLimit),
		files:        newFileInfo(),
		validator:    security.NewAPIKeyValidator(),
		pollInterval: constants.OpeningPollInterval,
		pollAttempts: constants.OpeningPollAttempts,
		retryDelay:   500 * time.Millisecond,
	}
}

// wireFileID converts the request's 0-based file index to the provider's
// 1-based id, or 0 when absent.
func (req *ResolveRequest) wireFileID() int {
	if req.FileIndex < 0 {
		return 0
	}
	return req.FileIndex + 1
}

// Resolve locates or creates the remote job for the request and drives it to
// a direct URL or a pending outcome. Errors are limited to authentication,
// access denial and unclassified failures; everything else is a
// PendingReason the caller polls on.
func (r *Resolver) Resolve(req ResolveRequest) (*models.Resolution, error) {
	req.InfoHash = strings.ToLower(req.InfoHash)

	req.APIKey = r.validator.SanitizeAPIKey(req.APIKey)
	if !r.validator.ValidateAPIKey(req.APIKey) {
		r.logger.Errorf("[Resolver] invalid API key format (key: %s)", r.validator.MaskAPIKey(req.APIKey))
		return nil, apperrors.NewAuthenticationError("invalid API key format", nil)
	}

	job, err := r.locateOrCreate(&req)
	if err != nil {
		return nil, r.classify(err, &req)
	}

	return r.drive(job, &req, false)
}

// locateOrCreate scans the most recent page of the account's jobs for one
// matching the request hash, or submits a fresh magnet.
func (r *Resolver) locateOrCreate(req *ResolveRequest) (*debrid.Job, error) {
	jobs, err := r.listJobs(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to scan account jobs: %w", err)
	}

	var matches []debrid.Job
	for _, job := range jobs {
		if strings.EqualFold(job.Hash, req.InfoHash) && job.Status != debrid.StatusErred {
			matches = append(matches, job)
		}
	}

	switch len(matches) {
	case 0:
		return r.create(req)
	case 1:
		// Re-read before acting; the list snapshot has no file detail.
		return r.jobInfo(req.APIKey, matches[0].ID)
	default:
		return r.pickBest(matches, req)
	}
}

// pickBest fetches full info for every matching job, prefers those whose
// selection already includes the wanted file, and keeps the one with the
// most produced links so already usable jobs win.
func (r *Resolver) pickBest(matches []debrid.Job, req *ResolveRequest) (*debrid.Job, error) {
	wireID := req.wireFileID()

	var best *debrid.Job
	var bestSelected *debrid.Job
	for _, m := range matches {
		info, err := r.jobInfo(req.APIKey, m.ID)
		if err != nil {
			r.logger.Warnf("[Resolver] failed to inspect job %s for %s: %v", m.ID, req.InfoHash, err)
			continue
		}

		if best == nil || len(info.Links) > len(best.Links) {
			best = info
		}
		if wireID > 0 && hasSelectedFile(info, wireID) {
			if bestSelected == nil || len(info.Links) > len(bestSelected.Links) {
				bestSelected = info
			}
		}
	}

	if bestSelected != nil {
		return bestSelected, nil
	}
	if best != nil {
		return best, nil
	}
	return r.create(req)
}

func hasSelectedFile(job *debrid.Job, wireID int) bool {
	for _, f := range job.Files {
		if f.ID == wireID && f.Selected {
			return true
		}
	}
	return false
}

// create submits a fresh magnet and, when a valid cached file-id hint
// exists, immediately selects exactly those files.
func (r *Resolver) create(req *ResolveRequest) (*debrid.Job, error) {
	uri := magnet.Build(req.InfoHash, "")

	r.rateLimiter.Wait()
	jobID, err := r.provider.AddMagnet(req.APIKey, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to submit magnet: %w", err)
	}
	r.logger.Infof("[Resolver] submitted magnet for %s as job %s", req.InfoHash, jobID)

	if ids := parseFileIDHint(req.CachedFileIDHint); len(ids) > 0 {
		r.rateLimiter.Wait()
		if err := r.provider.SelectFiles(req.APIKey, jobID, ids); err != nil {
			r.logger.Warnf("[Resolver] hinted selection failed for job %s: %v", jobID, err)
		}
	}

	job, err := r.jobInfo(req.APIKey, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to read created job %s: %w", jobID, err)
	}
	return job, nil
}

// listJobs and jobInfo retry transient provider failures locally, with the
// same bounded policy the availability client uses; only exhausted or
// non-transient errors escape to classification.
func (r *Resolver) listJobs(apiKey string) ([]debrid.Job, error) {
	var jobs []debrid.Job
	err := retry.Do(
		func() error {
			r.rateLimiter.Wait()
			var err error
			jobs, err = r.provider.ListJobs(apiKey, 1, constants.JobListPageSize)
			return err
		},
		r.retryOptions()...,
	)
	return jobs, err
}

func (r *Resolver) jobInfo(apiKey, jobID string) (*debrid.Job, error) {
	var job *debrid.Job
	err := retry.Do(
		func() error {
			r.rateLimiter.Wait()
			var err error
			job, err = r.provider.JobInfo(apiKey, jobID)
			return err
		},
		r.retryOptions()...,
	)
	return job, err
}

func (r *Resolver) retryOptions() []retry.Option {
	return []retry.Option{
		retry.Attempts(constants.ProviderReadRetries),
		retry.Delay(r.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return debrid.KindOf(err) == debrid.KindTransient
		}),
	}
}

// drive walks the job through its status machine. recreated tracks whether
// the single permitted job recreation has been spent.
func (r *Resolver) drive(job *debrid.Job, req *ResolveRequest, recreated bool) (*models.Resolution, error) {
	pollsLeft := r.pollAttempts

	for {
		r.logger.Debugf("[Resolver] job %s (%s, file %d) status %s", job.ID, req.InfoHash, req.FileIndex, job.Status)

		switch job.Status {
		case debrid.StatusReady:
			return r.unrestrict(job, req, recreated)

		case debrid.StatusDownloading, debrid.StatusUnknown:
			return &models.Resolution{Pending: models.PendingDownloading}, nil

		case debrid.StatusMagnetError:
			return &models.Resolution{Pending: models.PendingOpeningFailed}, nil

		case debrid.StatusErred:
			if recreated {
				r.logger.Warnf("[Resolver] job for %s erred again after recreation", req.InfoHash)
				return &models.Resolution{Pending: models.PendingDownloadFailed}, nil
			}
			fresh, err := r.recreate(req)
			if err != nil {
				return nil, err
			}
			job = fresh
			recreated = true

		case debrid.StatusOpening:
			if pollsLeft <= 0 {
				r.logger.Warnf("[Resolver] job %s still opening after %d polls", job.ID, r.pollAttempts)
				return &models.Resolution{Pending: models.PendingDownloading}, nil
			}
			pollsLeft--
			time.Sleep(r.pollInterval)

			fresh, err := r.jobInfo(req.APIKey, job.ID)
			if err != nil {
				if debrid.KindOf(err) == debrid.KindTransient {
					// Network noise costs a poll attempt, not the resolve.
					r.logger.Warnf("[Resolver] poll for job %s failed: %v", job.ID, err)
					continue
				}
				return nil, r.classify(fmt.Errorf("failed to poll job %s: %w", job.ID, err), req)
			}
			job = fresh

		case debrid.StatusWaitingSelection:
			return r.selectFiles(job, req)

		default:
			return &models.Resolution{Pending: models.PendingDownloading}, nil
		}
	}
}

// selectFiles selects exactly the requested file when an index is given,
// otherwise every recognized video file over the minimum size.
func (r *Resolver) selectFiles(job *debrid.Job, req *ResolveRequest) (*models.Resolution, error) {
	var ids []int
	if wireID := req.wireFileID(); wireID > 0 {
		ids = []int{wireID}
	} else {
		for _, f := range job.Files {
			if f.Bytes > constants.MinVideoFileBytes && r.files.isVideoFile(f.Path) {
				ids = append(ids, f.ID)
			}
		}
	}

	if len(ids) == 0 {
		r.logger.Warnf("[Resolver] job %s has no selectable video files for %s", job.ID, req.InfoHash)
		return &models.Resolution{Pending: models.PendingOpeningFailed}, nil
	}

	r.rateLimiter.Wait()
	if err := r.provider.SelectFiles(req.APIKey, job.ID, ids); err != nil {
		if resolveErr := r.classify(err, req); apperrors.IsType(resolveErr, apperrors.ErrorTypeAuthentication) || apperrors.IsType(resolveErr, apperrors.ErrorTypeAccessDenied) {
			return nil, resolveErr
		}
		r.logger.Warnf("[Resolver] file selection failed for job %s: %v", job.ID, err)
		return &models.Resolution{Pending: models.PendingOpeningFailed}, nil
	}

	r.logger.Infof("[Resolver] selected %d files on job %s (%s)", len(ids), job.ID, req.InfoHash)
	return &models.Resolution{Pending: models.PendingDownloading}, nil
}

// unrestrict resolves the target file's provider link into a direct URL.
func (r *Resolver) unrestrict(job *debrid.Job, req *ResolveRequest, recreated bool) (*models.Resolution, error) {
	target, ok := r.targetFile(job, req)
	if !ok || !target.Selected {
		// The wanted file never made it into the selection; the job is
		// useless for this request.
		if recreated {
			return &models.Resolution{Pending: models.PendingDownloadFailed}, nil
		}
		r.logger.Warnf("[Resolver] job %s ready without file %d selected, recreating", job.ID, req.FileIndex)
		if _, err := r.recreate(req); err != nil {
			return nil, err
		}
		return &models.Resolution{Pending: models.PendingDownloading}, nil
	}

	link, ok := r.linkFor(job, target)
	if !ok {
		if recreated {
			return &models.Resolution{Pending: models.PendingDownloadFailed}, nil
		}
		r.logger.Warnf("[Resolver] job %s exposes no link for file %d, recreating", job.ID, target.ID)
		if _, err := r.recreate(req); err != nil {
			return nil, err
		}
		return &models.Resolution{Pending: models.PendingDownloading}, nil
	}

	r.rateLimiter.Wait()
	unlocked, err := r.provider.Unrestrict(req.APIKey, link)
	if err != nil {
		if debrid.IsLinkConsumed(err) && !recreated {
			r.logger.Infof("[Resolver] link for job %s already consumed, recreating", job.ID)
			fresh, rerr := r.recreate(req)
			if rerr != nil {
				return nil, rerr
			}
			return r.drive(fresh, req, true)
		}
		return nil, r.classify(fmt.Errorf("failed to unrestrict link for %s file %d: %w", req.InfoHash, req.FileIndex, err), req)
	}

	if r.files.isArchiveFile(unlocked.Filename) || strings.Contains(unlocked.MimeType, "rar") || strings.Contains(unlocked.MimeType, "zip") {
		r.logger.Warnf("[Resolver] job %s resolved to archive %q", job.ID, unlocked.Filename)
		return &models.Resolution{Pending: models.PendingUnsupportedArchive}, nil
	}

	r.logger.Infof("[Resolver] resolved %s file %d via job %s", req.InfoHash, req.FileIndex, job.ID)
	return &models.Resolution{URL: unlocked.Download}, nil
}

// targetFile is the job file matching the request index, or the largest
// selected file when no index was given.
func (r *Resolver) targetFile(job *debrid.Job, req *ResolveRequest) (debrid.File, bool) {
	if wireID := req.wireFileID(); wireID > 0 {
		for _, f := range job.Files {
			if f.ID == wireID {
				return f, true
			}
		}
		return debrid.File{}, false
	}

	var largest debrid.File
	found := false
	for _, f := range job.SelectedFiles() {
		if !found || f.Bytes > largest.Bytes {
			largest = f
			found = true
		}
	}
	return largest, found
}

// linkFor maps the target file to its provider link: the single combined
// link when the job exposes only one, otherwise the link at the target's
// rank among selected files.
func (r *Resolver) linkFor(job *debrid.Job, target debrid.File) (string, bool) {
	if len(job.Links) == 0 {
		return "", false
	}
	if len(job.Links) == 1 {
		return job.Links[0], true
	}

	rank := 0
	for _, f := range job.SelectedFiles() {
		if f.ID == target.ID {
			if rank < len(job.Links) {
				return job.Links[rank], true
			}
			return "", false
		}
		rank++
	}
	return "", false
}

// recreate submits a fresh magnet with a fresh selection for the request.
func (r *Resolver) recreate(req *ResolveRequest) (*debrid.Job, error) {
	job, err := r.create(req)
	if err != nil {
		return nil, r.classify(err, req)
	}

	// A fresh job with no hinted selection still needs its files picked once
	// the magnet opens; selection happens on the next resolve pass.
	if job.Status == debrid.StatusWaitingSelection {
		if res, err := r.selectFiles(job, req); err != nil {
			return nil, err
		} else if res.Pending == models.PendingOpeningFailed {
			r.logger.Warnf("[Resolver] recreated job %s could not select files", job.ID)
		}
		if fresh, err := r.jobInfo(req.APIKey, job.ID); err == nil {
			job = fresh
		}
	}
	return job, nil
}

// classify maps a provider failure into the surfaced error taxonomy, keeping
// hash and file index context on the unclassified path.
func (r *Resolver) classify(err error, req *ResolveRequest) error {
	switch {
	case debrid.IsAuth(err):
		return apperrors.NewAuthenticationError("provider rejected API key", err)
	case debrid.IsAccessDenied(err):
		return apperrors.NewAccessDeniedError("provider denied access for this account", err)
	default:
		return apperrors.NewResolveFailedError(
			fmt.Sprintf("resolve failed for hash %s file %d", req.InfoHash, req.FileIndex), err)
	}
}

// parseFileIDHint parses a comma list of positive file ids; anything invalid
// voids the whole hint.
func parseFileIDHint(hint string) []int {
	if hint == "" {
		return nil
	}

	parts := strings.Split(hint, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id <= 0 {
			return nil
		}
		ids = append(ids, id)
	}
	return ids
}
