package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/acquire"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/bootstrap"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/mode"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/records"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/render"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := serve(server, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	server.SetReport(bootstrap.Report{
		ID:       "r-1",
		Degraded: true,
		Mode:     mode.Snapshot{Degraded: true, Entries: []mode.Entry{{Component: "database", Reason: "no URI provided"}}},
		Resources: map[string]acquire.Summary{
			"database": {Outcome: "degraded", Reason: "no URI provided"},
		},
	})
	rec = serve(server, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got bootstrap.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Degraded)
	assert.Equal(t, "no URI provided", got.Resources["database"].Reason)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bootstrap_degraded_mode")
}

func TestServer_CreateSnapshot_Succeeds(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	renderer := &fakeRenderer{page: render.Page{
		URL:        "https://example.com",
		FinalURL:   "https://example.com/",
		StatusCode: 200,
		Title:      "Example",
		HTML:       []byte("hello world"),
	}}
	server := NewServer(store, renderer, nil)
	server.now = func() time.Time { return time.Unix(100, 0).UTC() }

	rec := serve(server, http.MethodPost, "/v1/snapshots", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	saved := store.all()
	require.Len(t, saved, 1)
	assert.NotEmpty(t, saved[0].ID)
	assert.Equal(t, "https://example.com/", saved[0].FinalURL)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", saved[0].ContentHash)
	assert.Equal(t, 11, saved[0].Bytes)
	assert.Equal(t, time.Unix(100, 0).UTC(), saved[0].RenderedAt)
	assert.Contains(t, rec.Body.String(), saved[0].ID)
}

func TestServer_CreateSnapshot_BadRequests(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	for _, body := range []string{`{invalid`, `{}`, `{"url":"ftp://example.com"}`, `{"url":"/relative"}`} {
		rec := serve(server, http.MethodPost, "/v1/snapshots", []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestServer_CreateSnapshot_BrowserUnavailable(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	server := NewServer(store, render.NewUnavailable("no usable binary found", nil), nil)

	rec := serve(server, http.MethodPost, "/v1/snapshots", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no usable binary found")
	assert.Empty(t, store.all())
}

func TestServer_CreateSnapshot_StoreUnavailable(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{}
	server := NewServer(records.NewSampleStore("no URI provided", nil), renderer, nil)

	rec := serve(server, http.MethodPost, "/v1/snapshots", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no URI provided", body["reason"])
	assert.Equal(t, true, body["degraded"])
	assert.Zero(t, renderer.calls, "render must be skipped when nothing can be saved")
}

func TestServer_CreateSnapshot_BodyTooLarge(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{}
	server := NewServer(&fakeStore{}, renderer, nil)

	payload := []byte(`{"url":"https://example.com/` + strings.Repeat("a", maxRequestBody) + `"}`)
	rec := serve(server, http.MethodPost, "/v1/snapshots", payload)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, renderer.calls)
}

func TestServer_CreateSnapshot_RenderError(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeStore{}, &fakeRenderer{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}, nil)
	rec := serve(server, http.MethodPost, "/v1/snapshots", []byte(`{"url":"https://nowhere.invalid"}`))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_CreateSnapshot_SaveError(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeStore{err: errors.New("insert snapshot: conn closed")}, &fakeRenderer{}, nil)
	rec := serve(server, http.MethodPost, "/v1/snapshots", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ListSnapshots(t *testing.T) {
	t.Parallel()

	store := &fakeStore{saved: []records.Snapshot{{ID: "a"}, {ID: "b"}}}
	server := NewServer(store, &fakeRenderer{}, nil)

	rec := serve(server, http.MethodGet, "/v1/snapshots?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.lastLimit)

	var body struct {
		Snapshots []records.Snapshot `json:"snapshots"`
		Sample    bool               `json:"sample"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Snapshots, 1)
	assert.False(t, body.Sample)

	rec = serve(server, http.MethodGet, "/v1/snapshots?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListSnapshots_Degraded(t *testing.T) {
	t.Parallel()

	server := NewServer(records.NewSampleStore("no URI provided", nil), &fakeRenderer{}, nil)
	rec := serve(server, http.MethodGet, "/v1/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Snapshots []records.Snapshot `json:"snapshots"`
		Sample    bool               `json:"sample"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Sample)
	require.NotEmpty(t, body.Snapshots)
	assert.True(t, body.Snapshots[0].Sample)
}

func TestServer_ListSnapshots_Error(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeStore{err: errors.New("boom")}, &fakeRenderer{}, nil)
	rec := serve(server, http.MethodGet, "/v1/snapshots", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeStore{}, &fakeRenderer{panics: true}, nil)
	rec := serve(server, http.MethodPost, "/v1/snapshots", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(), http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

// --- helpers/fakes ---

func serve(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func newTestServer() *Server {
	return NewServer(&fakeStore{}, &fakeRenderer{}, nil)
}

type fakeRenderer struct {
	page   render.Page
	err    error
	panics bool
	calls  int
}

func (f *fakeRenderer) Render(_ context.Context, url string) (render.Page, error) {
	f.calls++
	if f.panics {
		panic("renderer crashed")
	}
	if f.err != nil {
		return render.Page{}, f.err
	}
	page := f.page
	if page.URL == "" {
		page.URL, page.FinalURL, page.StatusCode = url, url, http.StatusOK
	}
	return page, nil
}

func (*fakeRenderer) Close() {}

type fakeStore struct {
	mu        sync.Mutex
	saved     []records.Snapshot
	err       error
	lastLimit int
}

func (s *fakeStore) Save(_ context.Context, snap records.Snapshot) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snap)
	return nil
}

func (s *fakeStore) Recent(_ context.Context, limit int) ([]records.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	n := records.ClampLimit(limit)
	if n > len(s.saved) {
		n = len(s.saved)
	}
	return append([]records.Snapshot(nil), s.saved[:n]...), nil
}

func (s *fakeStore) all() []records.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]records.Snapshot(nil), s.saved...)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
