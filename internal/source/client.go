package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"crosswalk/pkg/domain"
)

// DefaultBaseURL is the BFS application serving the historicized
// municipality register.
const DefaultBaseURL = "https://www.agvchapp.bfs.admin.ch"

const (
	queryPath     = "/de/mutated-communes/query"
	mutationsPath = "/de/mutated-communes/results/xls"
	rosterPath    = "/de/state/results/xls"
)

// maxDownload caps spreadsheet responses.
const maxDownload = 64 << 20

var lastUpdatedPattern = regexp.MustCompile(`data-val-daterange-enddate="?([0-9]{1,2}\.[0-9]{1,2}\.[0-9]{4})`)

// ErrUnexpectedResponse is returned for non-2xx answers or unparsable pages.
var ErrUnexpectedResponse = errors.New("bfs: unexpected response")

// BFSClient talks to the BFS register web application.
type BFSClient struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a BFSClient.
type ClientOption func(*BFSClient)

// WithBaseURL points the client at another host (tests, mirrors).
func WithBaseURL(u string) ClientOption {
	return func(c *BFSClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *BFSClient) {
		if h != nil {
			c.http = h
		}
	}
}

// NewBFSClient returns a client with a 60s timeout against DefaultBaseURL.
func NewBFSClient(opts ...ClientOption) *BFSClient {
	c := &BFSClient{baseURL: DefaultBaseURL, http: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastUpdated reads the end of the selectable date range from the query
// form, which is the date the register was last updated.
func (c *BFSClient) LastUpdated(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+queryPath, nil)
	if err != nil {
		return time.Time{}, err
	}
	body, err := c.do(req)
	if err != nil {
		return time.Time{}, err
	}
	m := lastUpdatedPattern.FindSubmatch(body)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: no update date on query page", ErrUnexpectedResponse)
	}
	return domain.ParseDate(string(m[1]))
}

// DownloadMutations posts the mutation query and returns the spreadsheet.
// The end of the window is clamped to lastUpdated when that is known.
// Territory changes are excluded since they do not change identities.
func (c *BFSClient) DownloadMutations(ctx context.Context, q MutationQuery, lastUpdated time.Time) ([]byte, error) {
	to := q.To
	if !lastUpdated.IsZero() && lastUpdated.Before(to) {
		to = lastUpdated
	}
	form := url.Values{
		"EntriesFrom":     {domain.FormatSwiss(q.Since)},
		"EntriesTo":       {domain.FormatSwiss(to)},
		"Deleted":         {"True"},
		"Created":         {"True"},
		"TerritoryChange": {"False"},
		"NameChange":      {"True"},
		"DistrictChange":  {"True"},
		"Other":           {"True"},
	}
	if canton, ok := q.SingleCanton(); ok {
		form.Set("Canton", canton)
	}
	return c.post(ctx, mutationsPath, form)
}

// DownloadRoster returns the spreadsheet of municipalities valid at snapshot.
func (c *BFSClient) DownloadRoster(ctx context.Context, snapshot time.Time, cantons []string) ([]byte, error) {
	form := url.Values{"SnapshotDate": {domain.FormatSwiss(snapshot)}}
	if len(cantons) == 1 {
		form.Set("Canton", cantons[0])
	}
	return c.post(ctx, rosterPath, form)
}

func (c *BFSClient) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *BFSClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bfs: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrUnexpectedResponse, req.Method, req.URL.Path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return nil, fmt.Errorf("bfs: read %s: %w", req.URL.Path, err)
	}
	return body, nil
}
