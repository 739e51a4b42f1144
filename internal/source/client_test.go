package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queryPage = `<form><input id="EntriesTo" data-val-daterange-enddate="01.03.2024" data-val="true"></form>`

// bfsServer fakes the three register endpoints and records posted forms.
type bfsServer struct {
	*httptest.Server
	mu        sync.Mutex
	forms     map[string]map[string][]string
	mutations []byte
	roster    []byte
	fail      atomic.Bool
}

func newBFSServer(t *testing.T, mutations, roster []byte) *bfsServer {
	t.Helper()
	s := &bfsServer{forms: map[string]map[string][]string{}, mutations: mutations, roster: roster}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+queryPath, func(w http.ResponseWriter, _ *http.Request) {
		if s.fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(queryPage))
	})
	serve := func(body func() []byte) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.fail.Load() {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			assert.NoError(t, r.ParseForm())
			s.mu.Lock()
			s.forms[r.URL.Path] = r.PostForm
			s.mu.Unlock()
			_, _ = w.Write(body())
		}
	}
	mux.HandleFunc("POST "+mutationsPath, serve(func() []byte { return s.mutations }))
	mux.HandleFunc("POST "+rosterPath, serve(func() []byte { return s.roster }))
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *bfsServer) form(path string) map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[path]
}

func TestClientLastUpdated(t *testing.T) {
	srv := newBFSServer(t, nil, nil)
	c := NewBFSClient(WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	got, err := c.LastUpdated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 1), got)
}

func TestClientMutationForm(t *testing.T) {
	srv := newBFSServer(t, []byte("sheet"), nil)
	c := NewBFSClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	q := MutationQuery{Since: day(1960, 1, 1), To: day(2024, 12, 31), Cantons: []string{"ZH"}}
	body, err := c.DownloadMutations(context.Background(), q, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, "sheet", string(body))

	form := srv.form(mutationsPath)
	assert.Equal(t, []string{"01.01.1960"}, form["EntriesFrom"])
	assert.Equal(t, []string{"01.03.2024"}, form["EntriesTo"], "end clamped to last update")
	assert.Equal(t, []string{"False"}, form["TerritoryChange"])
	assert.Equal(t, []string{"True"}, form["NameChange"])
	assert.Equal(t, []string{"ZH"}, form["Canton"])

	q.Cantons = []string{"ZH", "AG"}
	_, err = c.DownloadMutations(context.Background(), q, day(2025, 1, 1))
	require.NoError(t, err)
	form = srv.form(mutationsPath)
	assert.NotContains(t, form, "Canton")
	assert.Equal(t, []string{"31.12.2024"}, form["EntriesTo"])
}

func TestClientRosterForm(t *testing.T) {
	srv := newBFSServer(t, nil, []byte("roster"))
	c := NewBFSClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.DownloadRoster(context.Background(), day(2020, 7, 1), []string{"BE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"01.07.2020"}, srv.form(rosterPath)["SnapshotDate"])
	assert.Equal(t, []string{"BE"}, srv.form(rosterPath)["Canton"])
}

func TestClientErrors(t *testing.T) {
	srv := newBFSServer(t, nil, nil)
	srv.fail.Store(true)
	c := NewBFSClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.LastUpdated(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	blank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<html></html>")) }))
	defer blank.Close()
	c = NewBFSClient(WithBaseURL(blank.URL))
	_, err = c.LastUpdated(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.DownloadRoster(ctx, day(2020, 1, 1), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
