package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/index"
	"github.com/docpipe/docpipe/internal/query"
)

func testServer(t *testing.T) (*Server, *index.BleveIndex) {
	t.Helper()
	idx, err := index.NewBleveIndex("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	svc := query.NewService(idx, query.Config{}, nil)
	return New("127.0.0.1:0", svc, func() int { return 3 }, nil), idx
}

func doSearch(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint_ReturnsResults(t *testing.T) {
	s, idx := testServer(t)
	require.NoError(t, idx.Upsert(context.Background(), index.Entry{
		DocumentID: "doc-1",
		Title:      "Annual Report",
		Content:    "revenue grew in the third quarter",
		Filename:   "report.pdf",
		UploadDate: time.Now().UTC(),
	}))

	rec := doSearch(t, s, `{"query":"revenue"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "doc-1", resp.Results[0].DocumentID)
	assert.Contains(t, resp.Results[0].Snippet, "revenue")
}

func TestSearchEndpoint_NoMatchesIsEmptyArray(t *testing.T) {
	s, _ := testServer(t)

	rec := doSearch(t, s, `{"query":"zebra"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
}

func TestSearchEndpoint_EmptyQueryIsBadRequest(t *testing.T) {
	s, _ := testServer(t)

	for _, body := range []string{`{"query":""}`, `{"query":"   "}`, `{}`} {
		rec := doSearch(t, s, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestSearchEndpoint_MalformedBodyIsBadRequest(t *testing.T) {
	s, _ := testServer(t)

	rec := doSearch(t, s, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpoint_ClosedIndexIsUnavailable(t *testing.T) {
	s, idx := testServer(t)
	require.NoError(t, idx.Close())

	rec := doSearch(t, s, `{"query":"anything"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz_ReportsDocumentsAndBacklog(t *testing.T) {
	s, idx := testServer(t)
	require.NoError(t, idx.Upsert(context.Background(), index.Entry{DocumentID: "doc-1", Content: "x"}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint64(1), resp.Documents)
	assert.Equal(t, 3, resp.Backlog)
}

func TestHealthz_DegradedWhenIndexClosed(t *testing.T) {
	s, idx := testServer(t)
	require.NoError(t, idx.Close())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRootServesSearchPage(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "search-form")
}
