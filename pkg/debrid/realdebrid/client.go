// Package realdebrid implements the debrid.Provider capability set against
// the Real-Debrid REST API.
package realdebrid

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/godebrid/pkg/debrid"
	"github.com/amaumene/godebrid/pkg/httputil"
)

const providerName = "realdebrid"

// statusTable folds Real-Debrid status strings into the closed status set.
// "dead" is handled separately because its meaning depends on whether the
// job still exposes links.
var statusTable = map[string]debrid.Status{
	"magnet_error":            debrid.StatusMagnetError,
	"magnet_conversion":       debrid.StatusOpening,
	"waiting_files_selection": debrid.StatusWaitingSelection,
	"queued":                  debrid.StatusDownloading,
	"downloading":             debrid.StatusDownloading,
	"uploading":               debrid.StatusDownloading,
	"compressing":             debrid.StatusDownloading,
	"downloaded":              debrid.StatusReady,
	"error":                   debrid.StatusErred,
	"virus":                   debrid.StatusErred,
}

// errorTable maps Real-Debrid numeric error codes to error kinds.
var errorTable = map[int]debrid.ErrorKind{
	8:  debrid.KindAuth,
	9:  debrid.KindAccessDenied,
	19: debrid.KindLinkConsumed,
	20: debrid.KindAccessDenied,
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient() *Client {
	return &Client{
		httpClient: httputil.NewHTTPClient(30 * time.Second),
		baseURL:    "https://api.real-debrid.com/rest/1.0",
	}
}

// NewClientWithBaseURL creates a client against a non-default endpoint.
// Used by tests to point at a fake server.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func (c *Client) Name() string {
	return providerName
}

// torrentItem is the wire shape of a torrent job in list and info responses.
type torrentItem struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash"`
	Bytes    int64    `json:"bytes"`
	Status   string   `json:"status"`
	Added    string   `json:"added"`
	Links    []string `json:"links"`
	Files    []struct {
		ID       int    `json:"id"`
		Path     string `json:"path"`
		Bytes    int64  `json:"bytes"`
		Selected int    `json:"selected"`
	} `json:"files"`
}

type apiError struct {
	Message string `json:"error"`
	Code    int    `json:"error_code"`
}

func (c *Client) ListJobs(apiKey string, page, pageSize int) ([]debrid.Job, error) {
	endpoint := fmt.Sprintf("%s/torrents?page=%d&limit=%d", c.baseURL, page, pageSize)

	var items []torrentItem
	if err := c.get(apiKey, endpoint, &items); err != nil {
		return nil, fmt.Errorf("failed to list torrents: %w", err)
	}

	jobs := make([]debrid.Job, 0, len(items))
	for i := range items {
		jobs = append(jobs, *items[i].toJob())
	}
	return jobs, nil
}

func (c *Client) JobInfo(apiKey, jobID string) (*debrid.Job, error) {
	endpoint := fmt.Sprintf("%s/torrents/info/%s", c.baseURL, url.PathEscape(jobID))

	var item torrentItem
	if err := c.get(apiKey, endpoint, &item); err != nil {
		return nil, fmt.Errorf("failed to get torrent info: %w", err)
	}
	return item.toJob(), nil
}

func (c *Client) AddMagnet(apiKey, magnetURI string) (string, error) {
	endpoint := fmt.Sprintf("%s/torrents/addMagnet", c.baseURL)
	form := url.Values{}
	form.Set("magnet", magnetURI)

	var result struct {
		ID  string `json:"id"`
		URI string `json:"uri"`
	}
	if err := c.postForm(apiKey, endpoint, form, &result); err != nil {
		return "", fmt.Errorf("failed to add magnet: %w", err)
	}
	if result.ID == "" {
		return "", &debrid.Error{Provider: providerName, Kind: debrid.KindMalformed, Message: "addMagnet returned no torrent id"}
	}
	return result.ID, nil
}

func (c *Client) SelectFiles(apiKey, jobID string, fileIDs []int) error {
	endpoint := fmt.Sprintf("%s/torrents/selectFiles/%s", c.baseURL, url.PathEscape(jobID))

	ids := make([]string, len(fileIDs))
	for i, id := range fileIDs {
		ids[i] = strconv.Itoa(id)
	}
	form := url.Values{}
	form.Set("files", strings.Join(ids, ","))

	if err := c.postForm(apiKey, endpoint, form, nil); err != nil {
		return fmt.Errorf("failed to select files: %w", err)
	}
	return nil
}

func (c *Client) Unrestrict(apiKey, link string) (*debrid.UnrestrictedLink, error) {
	endpoint := fmt.Sprintf("%s/unrestrict/link", c.baseURL)
	form := url.Values{}
	form.Set("link", link)

	var result struct {
		Filename   string `json:"filename"`
		Filesize   int64  `json:"filesize"`
		MimeType   string `json:"mimeType"`
		Download   string `json:"download"`
		Streamable int    `json:"streamable"`
	}
	if err := c.postForm(apiKey, endpoint, form, &result); err != nil {
		return nil, fmt.Errorf("failed to unrestrict link: %w", err)
	}
	if result.Download == "" {
		return nil, &debrid.Error{Provider: providerName, Kind: debrid.KindMalformed, Message: "unrestrict returned no download URL"}
	}

	return &debrid.UnrestrictedLink{
		Filename:   result.Filename,
		Filesize:   result.Filesize,
		MimeType:   result.MimeType,
		Download:   result.Download,
		Streamable: result.Streamable == 1,
	}, nil
}

func (c *Client) InstantAvailability(apiKey string, hashes []string) (map[string][]debrid.HosterCopy, error) {
	if len(hashes) == 0 {
		return map[string][]debrid.HosterCopy{}, nil
	}

	escaped := make([]string, len(hashes))
	for i, h := range hashes {
		escaped[i] = url.PathEscape(strings.ToLower(h))
	}
	endpoint := fmt.Sprintf("%s/torrents/instantAvailability/%s", c.baseURL, strings.Join(escaped, "/"))

	// Per-hash payloads are either an empty array (nothing cached) or a
	// hoster map, so each hash decodes in two passes.
	var raw map[string]json.RawMessage
	if err := c.get(apiKey, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("failed to check instant availability: %w", err)
	}

	result := make(map[string][]debrid.HosterCopy)
	for hash, payload := range raw {
		copies := parseHosterCopies(payload)
		if len(copies) > 0 {
			result[strings.ToLower(hash)] = copies
		}
	}
	return result, nil
}

// parseHosterCopies decodes one hash's availability payload into hoster
// copies. Undecodable payloads yield nothing rather than failing the batch.
func parseHosterCopies(payload json.RawMessage) []debrid.HosterCopy {
	var hosters map[string][]map[string]struct {
		Filename string `json:"filename"`
		Filesize int64  `json:"filesize"`
	}
	if err := json.Unmarshal(payload, &hosters); err != nil {
		return nil
	}

	var copies []debrid.HosterCopy
	for _, hosterCopies := range hosters {
		for _, entry := range hosterCopies {
			hc := debrid.HosterCopy{Filenames: make(map[int]string, len(entry))}
			for idStr, file := range entry {
				id, err := strconv.Atoi(idStr)
				if err != nil {
					continue
				}
				hc.FileIDs = append(hc.FileIDs, id)
				hc.Filenames[id] = file.Filename
			}
			if len(hc.FileIDs) > 0 {
				sort.Ints(hc.FileIDs)
				copies = append(copies, hc)
			}
		}
	}
	return copies
}

func (t *torrentItem) toJob() *debrid.Job {
	job := &debrid.Job{
		ID:     t.ID,
		Hash:   strings.ToLower(t.Hash),
		Status: mapStatus(t.Status, len(t.Links) > 0),
		Links:  t.Links,
	}
	for _, f := range t.Files {
		job.Files = append(job.Files, debrid.File{
			ID:       f.ID,
			Path:     f.Path,
			Bytes:    f.Bytes,
			Selected: f.Selected == 1,
		})
	}
	return job
}

// mapStatus folds a wire status into the closed set. A dead job that still
// exposes links was downloaded once and stays usable, so it counts as Ready;
// dead without links goes through the erred recreation path.
func mapStatus(status string, hasLinks bool) debrid.Status {
	if status == "dead" {
		if hasLinks {
			return debrid.StatusReady
		}
		return debrid.StatusErred
	}
	if s, ok := statusTable[status]; ok {
		return s
	}
	return debrid.StatusUnknown
}

func (c *Client) get(apiKey, endpoint string, result interface{}) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(apiKey, req, result)
}

func (c *Client) postForm(apiKey, endpoint string, form url.Values, result interface{}) error {
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(apiKey, req, result)
}

func (c *Client) do(apiKey string, req *http.Request, result interface{}) error {
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.classifyError(resp.StatusCode, body)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if len(body) == 0 {
		return &debrid.Error{Provider: providerName, Kind: debrid.KindMalformed, Message: "empty response body"}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return &debrid.Error{Provider: providerName, Kind: debrid.KindMalformed, Message: fmt.Sprintf("undecodable response: %v", err)}
	}
	return nil
}

// classifyError maps an API error payload through the error code table.
func (c *Client) classifyError(httpStatus int, body []byte) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil || ae.Message == "" {
		return &debrid.Error{
			Provider: providerName,
			Kind:     debrid.KindUpstream,
			Message:  fmt.Sprintf("http %d: %s", httpStatus, strings.TrimSpace(string(body))),
		}
	}

	kind, ok := errorTable[ae.Code]
	if !ok {
		kind = debrid.KindUpstream
	}
	return &debrid.Error{Provider: providerName, Kind: kind, Code: ae.Code, Message: ae.Message}
}
