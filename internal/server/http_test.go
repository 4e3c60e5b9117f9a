package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/engine"
	"github.com/sanonone/vektor/pkg/errs"
)

const testToken = "test-secret-token"

func newTestServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Dimension = 3
	cfg.M = 4
	cfg.M0 = 8
	cfg.Levels = 3

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := engine.Open(cfg, engine.WithLogger(logger), engine.WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)

	s := NewServer(db, cfg.Dimension, ":0", token, logger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestUpIsPublic(t *testing.T) {
	ts := newTestServer(t, testToken)

	resp, body := call(t, ts, http.MethodGet, "/up", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, testToken)

	resp, _ := call(t, ts, http.MethodGet, "/info", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodGet, "/info", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := call(t, ts, http.MethodGet, "/info", testToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "storage")
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestNoTokenDisablesAuth(t *testing.T) {
	ts := newTestServer(t, "")
	resp, _ := call(t, ts, http.MethodGet, "/info", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInsertSearchDeleteFlow(t *testing.T) {
	ts := newTestServer(t, testToken)

	resp, body := call(t, ts, http.MethodPost, "/insert", testToken, InsertRequest{
		ID: "doc-1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"title": "first"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "success", body["status"])

	resp, _ = call(t, ts, http.MethodPost, "/insert", testToken, InsertRequest{ID: "doc-2", Vector: []float32{0, 1, 0}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = call(t, ts, http.MethodPost, "/insert", testToken, InsertRequest{ID: "doc-1", Vector: []float32{0, 0, 1}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "already exists")

	resp, body = call(t, ts, http.MethodPost, "/search", testToken, map[string]any{
		"vector": []float32{1, 0, 0}, "k": 1, "include_metadata": true, "include_vector": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	hit := results[0].(map[string]any)
	assert.Equal(t, "doc-1", hit["id"])
	assert.InDelta(t, 1.0, hit["score"], 1e-6)
	assert.Equal(t, map[string]any{"title": "first"}, hit["metadata"])
	assert.Equal(t, []any{1.0, 0.0, 0.0}, hit["vector"])

	resp, _ = call(t, ts, http.MethodPost, "/delete", testToken, DeleteRequest{ID: "doc-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/delete", testToken, DeleteRequest{ID: "doc-1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = call(t, ts, http.MethodPost, "/search", testToken, SearchRequest{Vector: []float32{1, 0, 0}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, r := range body["results"].([]any) {
		assert.NotEqual(t, "doc-1", r.(map[string]any)["id"])
	}

	resp, _ = call(t, ts, http.MethodPost, "/optimize", testToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = call(t, ts, http.MethodGet, "/info", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := body["records"].(map[string]any)
	assert.Equal(t, 1.0, records["vectors_total"])
}

func TestSearchEmptyReturnsArray(t *testing.T) {
	ts := newTestServer(t, "")
	resp, body := call(t, ts, http.MethodPost, "/search", "", SearchRequest{Vector: []float32{1, 0, 0}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["results"])
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t, "")
	zero := 0

	tests := []struct {
		name string
		path string
		body any
	}{
		{"invalid json", "/insert", "{not json"},
		{"missing id", "/insert", InsertRequest{Vector: []float32{1, 0, 0}}},
		{"long id", "/insert", InsertRequest{ID: "0123456789012345678901234567890123456", Vector: []float32{1, 0, 0}}},
		{"missing vector", "/insert", InsertRequest{ID: "a"}},
		{"wrong dimension", "/insert", InsertRequest{ID: "a", Vector: []float32{1, 0}}},
		{"non numeric vector", "/insert", `{"id":"a","vector":[1,"x",0]}`},
		{"zero k", "/search", SearchRequest{Vector: []float32{1, 0, 0}, K: &zero}},
		{"search without vector", "/search", `{}`},
		{"delete without id", "/delete", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, ts, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, "")
	resp, body := call(t, ts, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testToken)
	call(t, ts, http.MethodGet, "/up", "", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, "")
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/info", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

// failingStore returns a fixed error from every operation.
type failingStore struct{ err error }

func (f failingStore) Insert(context.Context, string, []float32, any) error { return f.err }
func (f failingStore) Delete(context.Context, string) (bool, error)         { return false, f.err }
func (f failingStore) Search(context.Context, []float32, int, engine.SearchOptions) ([]engine.Result, error) {
	return nil, f.err
}
func (f failingStore) Optimize(context.Context) error { return f.err }
func (f failingStore) Stats(context.Context) (engine.Stats, error) {
	return engine.Stats{}, f.err
}

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.Validation("op", "bad"), http.StatusBadRequest},
		{errs.Wrap("op", errs.ErrDuplicateKey, errors.New("dup")), http.StatusConflict},
		{errs.Wrap("op", errs.ErrNotFound, errors.New("gone")), http.StatusNotFound},
		{errs.Corruption("op", "broken"), http.StatusInternalServerError},
		{errs.Wrap("op", errs.ErrLock, errors.New("locked")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		s := NewServer(failingStore{err: tt.err}, 3, ":0", "", logger)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/optimize", nil))
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestPanicRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &Server{logger: logger}
	h := s.RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}
