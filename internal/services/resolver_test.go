package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amaumene/godebrid/internal/errors"
	"github.com/amaumene/godebrid/internal/models"
	"github.com/amaumene/godebrid/pkg/debrid"
	"github.com/amaumene/godebrid/pkg/logger"
	"github.com/amaumene/godebrid/pkg/ratelimiter"
)

const (
	testAPIKey = "testkey-0123456789"
	testHash   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func newTestResolver(provider debrid.Provider) *Resolver {
	r := NewResolver(provider, logger.NewWithLevel(logger.LevelError))
	r.rateLimiter = ratelimiter.NewTokenBucket(1_000_000, 1_000_000)
	r.pollInterval = time.Millisecond
	r.pollAttempts = 3
	r.retryDelay = time.Millisecond
	return r
}

func TestResolveRejectsInvalidAPIKey(t *testing.T) {
	fake := newFakeProvider()
	r := newTestResolver(fake)

	_, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: "x"})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuthentication))
	assert.Equal(t, 0, fake.listCalls, "invalid keys must never reach the provider")
}

func TestResolveCreatesJobWithHintedSelection(t *testing.T) {
	fake := newFakeProvider()
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{
		InfoHash:         strings.ToUpper(testHash),
		FileIndex:        4,
		APIKey:           testAPIKey,
		CachedFileIDHint: "5,6",
	})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloading, res.Pending)
	assert.Empty(t, res.URL)

	require.Equal(t, 1, fake.addCalls)
	assert.Equal(t, []int{5, 6}, fake.selections["job1"])
	assert.Equal(t, testHash, fake.job("job1").Hash, "submitted hashes are lowercased")
}

func TestResolveIgnoresMalformedHint(t *testing.T) {
	fake := newFakeProvider()
	// Leave the fresh job waiting so a hintless create performs no selection.
	fake.addMagnetStatus = debrid.StatusOpening
	r := newTestResolver(fake)
	r.pollAttempts = 0

	res, err := r.Resolve(ResolveRequest{
		InfoHash:         testHash,
		FileIndex:        -1,
		APIKey:           testAPIKey,
		CachedFileIDHint: "5,zero,6",
	})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloading, res.Pending)
	assert.Equal(t, 0, fake.selectCalls, "a partially invalid hint is voided entirely")
}

func TestResolveReadyJobReturnsURL(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job9",
		Hash:   testHash,
		Status: debrid.StatusReady,
		Files: []debrid.File{
			{ID: 5, Path: "/sample.mkv", Bytes: 50 << 20, Selected: false},
			{ID: 6, Path: "/movie.mkv", Bytes: 900 << 20, Selected: true},
		},
		Links: []string{"https://provider/link6"},
	})
	r := newTestResolver(fake)

	req := ResolveRequest{InfoHash: testHash, FileIndex: 5, APIKey: testAPIKey}
	res, err := r.Resolve(req)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/https://provider/link6", res.URL)
	assert.Equal(t, models.PendingNone, res.Pending)
	assert.Equal(t, 0, fake.addCalls, "an existing ready job is reused")

	// Resolving again reuses the same job and yields the same URL.
	again, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, res.URL, again.URL)
	assert.Equal(t, 0, fake.addCalls)
	assert.Equal(t, 1, fake.jobCount())
}

func TestResolveSelectsRequestedFileOnWaitingJob(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job3",
		Hash:   testHash,
		Status: debrid.StatusWaitingSelection,
		Files: []debrid.File{
			{ID: 1, Path: "/e01.mkv", Bytes: 700 << 20},
			{ID: 4, Path: "/e04.mkv", Bytes: 700 << 20},
		},
	})
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 3, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloading, res.Pending)
	// 0-based index 3 maps to provider file id 4.
	assert.Equal(t, []int{4}, fake.selections["job3"])
}

func TestResolveSelectsLargeVideosWithoutIndex(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job3",
		Hash:   testHash,
		Status: debrid.StatusWaitingSelection,
		Files: []debrid.File{
			{ID: 1, Path: "/movie.mkv", Bytes: 900 << 20},
			{ID: 2, Path: "/sample.mp4", Bytes: 1 << 20},
			{ID: 3, Path: "/cover.jpg", Bytes: 200 << 20},
			{ID: 4, Path: "/extras.avi", Bytes: 300 << 20},
		},
	})
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: -1, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloading, res.Pending)
	assert.Equal(t, []int{1, 4}, fake.selections["job3"])
}

func TestResolveNoSelectableFiles(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job3",
		Hash:   testHash,
		Status: debrid.StatusWaitingSelection,
		Files: []debrid.File{
			{ID: 1, Path: "/readme.txt", Bytes: 1 << 10},
		},
	})
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: -1, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingOpeningFailed, res.Pending)
	assert.Equal(t, 0, fake.selectCalls)
}

func TestResolveMagnetError(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{ID: "job3", Hash: testHash, Status: debrid.StatusMagnetError})
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingOpeningFailed, res.Pending)
}

func TestResolvePollsOpeningJob(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job3",
		Hash:   testHash,
		Status: debrid.StatusOpening,
		Files:  []debrid.File{{ID: 1, Path: "/movie.mkv", Bytes: 900 << 20, Selected: true}},
		Links:  []string{"https://provider/link1"},
	})
	// Still opening on the locate read, ready on the second poll.
	fake.infoStatusSeq["job3"] = []debrid.Status{
		debrid.StatusOpening,
		debrid.StatusOpening,
		debrid.StatusReady,
	}
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/https://provider/link1", res.URL)
}

func TestResolvePollAbsorbsTransientFailure(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job3",
		Hash:   testHash,
		Status: debrid.StatusOpening,
		Files:  []debrid.File{{ID: 1, Path: "/movie.mkv", Bytes: 900 << 20, Selected: true}},
		Links:  []string{"https://provider/link1"},
	})
	fake.infoStatusSeq["job3"] = []debrid.Status{debrid.StatusOpening, debrid.StatusReady}
	// Locate read succeeds, the first poll read drops on the network, the
	// retried read recovers.
	fake.infoErrSeq = []error{nil, errors.New("dial tcp: i/o timeout"), nil}
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/https://provider/link1", res.URL)
	assert.Equal(t, 3, fake.infoCalls)
}

func TestResolveExhaustedTransientPollsStayPending(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{ID: "job3", Hash: testHash, Status: debrid.StatusOpening})
	// Every poll read fails; only the locate read succeeds.
	fake.infoErrSeq = []error{nil}
	for i := 0; i < 12; i++ {
		fake.infoErrSeq = append(fake.infoErrSeq, errors.New("dial tcp: i/o timeout"))
	}
	r := newTestResolver(fake)
	r.pollAttempts = 2

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err, "transient noise never becomes a resolve error")
	assert.Equal(t, models.PendingDownloading, res.Pending)
}

func TestResolveRetriesTransientListFailure(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job9",
		Hash:   testHash,
		Status: debrid.StatusReady,
		Files:  []debrid.File{{ID: 1, Path: "/movie.mkv", Bytes: 900 << 20, Selected: true}},
		Links:  []string{"https://provider/link1"},
	})
	fake.listErrSeq = []error{errors.New("dial tcp: i/o timeout")}
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/https://provider/link1", res.URL)
	assert.Equal(t, 2, fake.listCalls)
}

func TestResolveSelectionFailureReportsOpeningFailed(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job3",
		Hash:   testHash,
		Status: debrid.StatusWaitingSelection,
		Files:  []debrid.File{{ID: 1, Path: "/movie.mkv", Bytes: 900 << 20}},
	})
	fake.selectErr = &debrid.Error{Provider: "fake", Kind: debrid.KindUpstream, Code: 29, Message: "torrent not ready"}
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingOpeningFailed, res.Pending)
	assert.Equal(t, 1, fake.selectCalls)
}

func TestResolveSelectionAuthFailurePropagates(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job3",
		Hash:   testHash,
		Status: debrid.StatusWaitingSelection,
		Files:  []debrid.File{{ID: 1, Path: "/movie.mkv", Bytes: 900 << 20}},
	})
	fake.selectErr = &debrid.Error{Provider: "fake", Kind: debrid.KindAuth, Code: 8, Message: "bad_token"}
	r := newTestResolver(fake)

	_, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuthentication))
}

func TestResolveOpeningTimeout(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{ID: "job3", Hash: testHash, Status: debrid.StatusOpening})
	r := newTestResolver(fake)
	r.pollAttempts = 2

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloading, res.Pending)
	// Locate read plus two polls.
	assert.Equal(t, 3, fake.infoCalls)
}

func TestResolveErredJobRecreatedOnce(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{ID: "job9", Hash: testHash, Status: debrid.StatusDownloading})
	// The job has erred between the list snapshot and the detail read.
	fake.infoStatusSeq["job9"] = []debrid.Status{debrid.StatusErred}
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloading, res.Pending)
	assert.Equal(t, 1, fake.addCalls, "an erred job is replaced by a fresh submission")
}

func TestResolveErredTwiceFails(t *testing.T) {
	fake := newFakeProvider()
	fake.addMagnetStatus = debrid.StatusErred
	fake.setJob(&debrid.Job{ID: "job9", Hash: testHash, Status: debrid.StatusDownloading})
	fake.infoStatusSeq["job9"] = []debrid.Status{debrid.StatusErred}
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloadFailed, res.Pending)
	assert.Equal(t, 1, fake.addCalls, "recreation happens at most once per attempt")
}

func TestResolveConsumedLinkRecreatesJob(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job9",
		Hash:   testHash,
		Status: debrid.StatusReady,
		Files:  []debrid.File{{ID: 1, Path: "/movie.mkv", Bytes: 900 << 20, Selected: true}},
		Links:  []string{"https://provider/stale"},
	})
	fake.unrestrictFn = func(link string) (*debrid.UnrestrictedLink, error) {
		return nil, &debrid.Error{Provider: "fake", Kind: debrid.KindLinkConsumed, Code: 19, Message: "hoster unavailable"}
	}
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloading, res.Pending)
	assert.Equal(t, 1, fake.addCalls)
	assert.Equal(t, 1, fake.unrestrictCalls, "the stale link is not retried on the fresh job")
}

func TestResolveReadyWithoutTargetSelectionRecreates(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job9",
		Hash:   testHash,
		Status: debrid.StatusReady,
		Files: []debrid.File{
			{ID: 1, Path: "/other.mkv", Bytes: 900 << 20, Selected: true},
			{ID: 2, Path: "/wanted.mkv", Bytes: 900 << 20, Selected: false},
		},
		Links: []string{"https://provider/link1"},
	})
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 1, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingDownloading, res.Pending)
	assert.Equal(t, 1, fake.addCalls)
	assert.Equal(t, 0, fake.unrestrictCalls)
}

func TestResolveArchiveIsRefused(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "job9",
		Hash:   testHash,
		Status: debrid.StatusReady,
		Files:  []debrid.File{{ID: 1, Path: "/release.rar", Bytes: 900 << 20, Selected: true}},
		Links:  []string{"https://provider/link1"},
	})
	fake.unrestrictFn = func(link string) (*debrid.UnrestrictedLink, error) {
		return &debrid.UnrestrictedLink{
			Filename: "release.rar",
			MimeType: "application/x-rar-compressed",
			Download: "https://cdn.example/release.rar",
		}, nil
	}
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, models.PendingUnsupportedArchive, res.Pending)
	assert.Empty(t, res.URL)
}

func TestResolveClassifiesProviderAuthError(t *testing.T) {
	fake := newFakeProvider()
	fake.listErr = &debrid.Error{Provider: "fake", Kind: debrid.KindAuth, Code: 8, Message: "bad_token"}
	r := newTestResolver(fake)

	_, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 0, APIKey: testAPIKey})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuthentication))
}

func TestResolvePicksJobWithSelectedFile(t *testing.T) {
	fake := newFakeProvider()
	fake.setJob(&debrid.Job{
		ID:     "jobA",
		Hash:   testHash,
		Status: debrid.StatusReady,
		Files:  []debrid.File{{ID: 2, Path: "/wanted.mkv", Bytes: 900 << 20, Selected: false}},
		Links:  []string{"https://provider/linkA"},
	})
	fake.setJob(&debrid.Job{
		ID:     "jobB",
		Hash:   testHash,
		Status: debrid.StatusReady,
		Files:  []debrid.File{{ID: 2, Path: "/wanted.mkv", Bytes: 900 << 20, Selected: true}},
		Links:  []string{"https://provider/linkB"},
	})
	r := newTestResolver(fake)

	res, err := r.Resolve(ResolveRequest{InfoHash: testHash, FileIndex: 1, APIKey: testAPIKey})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/https://provider/linkB", res.URL)
	assert.Equal(t, 0, fake.addCalls)
}

func TestLinkForRanksAmongSelectedFiles(t *testing.T) {
	r := newTestResolver(newFakeProvider())
	job := &debrid.Job{
		Files: []debrid.File{
			{ID: 1, Path: "/e01.mkv", Selected: true},
			{ID: 2, Path: "/sample.mkv", Selected: false},
			{ID: 3, Path: "/e02.mkv", Selected: true},
		},
		Links: []string{"https://provider/l1", "https://provider/l3"},
	}

	link, ok := r.linkFor(job, job.Files[2])
	require.True(t, ok)
	// File 3 is the second selected file, so it maps to the second link.
	assert.Equal(t, "https://provider/l3", link)

	_, ok = r.linkFor(job, job.Files[1])
	assert.False(t, ok, "unselected files have no link")
}

func TestParseFileIDHint(t *testing.T) {
	assert.Nil(t, parseFileIDHint(""))
	assert.Nil(t, parseFileIDHint("1,-2"))
	assert.Nil(t, parseFileIDHint("1,abc"))
	assert.Nil(t, parseFileIDHint("0"))
	assert.Equal(t, []int{5, 6}, parseFileIDHint("5, 6"))
	assert.Equal(t, []int{12}, parseFileIDHint("12"))
}
