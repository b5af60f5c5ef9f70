package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/amaumene/godebrid/pkg/debrid"
)

// fakeProvider is an in-memory debrid.Provider with call counters, used by
// the resolver and availability tests.
type fakeProvider struct {
	mu sync.Mutex

	jobs    map[string]*debrid.Job
	nextID  int
	avail   map[string][]debrid.HosterCopy
	availFn func(hashes []string) (map[string][]debrid.HosterCopy, error)
	listErr error
	// listErrSeq and infoErrSeq inject one error (or nil) per successive
	// call, simulating transient network failures between reads.
	listErrSeq []error
	infoErrSeq []error
	selectErr  error
	// infoStatusSeq overrides the status returned by successive JobInfo
	// calls per job, simulating remote transitions between reads.
	infoStatusSeq map[string][]debrid.Status

	// addMagnetStatus is the status newly submitted jobs start in.
	addMagnetStatus debrid.Status

	unrestrictFn func(link string) (*debrid.UnrestrictedLink, error)

	listCalls       int
	infoCalls       int
	addCalls        int
	selectCalls     int
	availCalls      int
	unrestrictCalls int

	selections map[string][]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		jobs:            make(map[string]*debrid.Job),
		avail:           make(map[string][]debrid.HosterCopy),
		selections:      make(map[string][]int),
		infoStatusSeq:   make(map[string][]debrid.Status),
		addMagnetStatus: debrid.StatusWaitingSelection,
	}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ListJobs(apiKey string, page, pageSize int) ([]debrid.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.listErrSeq) > 0 {
		err := f.listErrSeq[0]
		f.listErrSeq = f.listErrSeq[1:]
		if err != nil {
			return nil, err
		}
	}
	var jobs []debrid.Job
	for _, j := range f.jobs {
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (f *fakeProvider) JobInfo(apiKey, jobID string) (*debrid.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++

	if len(f.infoErrSeq) > 0 {
		err := f.infoErrSeq[0]
		f.infoErrSeq = f.infoErrSeq[1:]
		if err != nil {
			return nil, err
		}
	}
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, &debrid.Error{Provider: "fake", Kind: debrid.KindUpstream, Message: "unknown torrent"}
	}
	cp := *j
	if seq := f.infoStatusSeq[jobID]; len(seq) > 0 {
		cp.Status = seq[0]
		f.infoStatusSeq[jobID] = seq[1:]
		j.Status = cp.Status
	}
	return &cp, nil
}

func (f *fakeProvider) AddMagnet(apiKey, magnetURI string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++

	f.nextID++
	id := fmt.Sprintf("job%d", f.nextID)
	f.jobs[id] = &debrid.Job{
		ID:     id,
		Hash:   hashFromMagnet(magnetURI),
		Status: f.addMagnetStatus,
	}
	return id, nil
}

func (f *fakeProvider) SelectFiles(apiKey, jobID string, fileIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectCalls++

	if f.selectErr != nil {
		return f.selectErr
	}
	f.selections[jobID] = append([]int(nil), fileIDs...)
	if j, ok := f.jobs[jobID]; ok && j.Status == debrid.StatusWaitingSelection {
		j.Status = debrid.StatusDownloading
		for i := range j.Files {
			j.Files[i].Selected = false
			for _, id := range fileIDs {
				if j.Files[i].ID == id {
					j.Files[i].Selected = true
				}
			}
		}
	}
	return nil
}

func (f *fakeProvider) InstantAvailability(apiKey string, hashes []string) (map[string][]debrid.HosterCopy, error) {
	f.mu.Lock()
	availFn := f.availFn
	f.availCalls++
	f.mu.Unlock()

	if availFn != nil {
		return availFn(hashes)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string][]debrid.HosterCopy)
	for _, h := range hashes {
		if copies, ok := f.avail[h]; ok {
			result[h] = copies
		}
	}
	return result, nil
}

func (f *fakeProvider) Unrestrict(apiKey, link string) (*debrid.UnrestrictedLink, error) {
	f.mu.Lock()
	fn := f.unrestrictFn
	f.unrestrictCalls++
	f.mu.Unlock()

	if fn != nil {
		return fn(link)
	}
	return &debrid.UnrestrictedLink{
		Filename:   "video.mkv",
		MimeType:   "video/x-matroska",
		Download:   "https://cdn.example/" + link,
		Streamable: true,
	}, nil
}

func (f *fakeProvider) setJob(j *debrid.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func (f *fakeProvider) job(id string) *debrid.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

func (f *fakeProvider) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func hashFromMagnet(uri string) string {
	const marker = "btih:"
	for i := 0; i+len(marker) <= len(uri); i++ {
		if uri[i:i+len(marker)] == marker {
			rest := uri[i+len(marker):]
			if len(rest) >= 40 {
				return rest[:40]
			}
			return rest
		}
	}
	return uri
}

// copyOf builds a HosterCopy from id/name pairs.
func copyOf(files map[int]string) debrid.HosterCopy {
	c := debrid.HosterCopy{Filenames: files}
	for id := range files {
		c.FileIDs = append(c.FileIDs, id)
	}
	sort.Ints(c.FileIDs)
	return c
}
