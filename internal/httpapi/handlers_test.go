package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/docengine/itdoc/internal/classify"
	"github.com/docengine/itdoc/internal/config"
	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/internal/engine"
	"github.com/docengine/itdoc/internal/extract"
	"github.com/docengine/itdoc/internal/progress"
	"github.com/docengine/itdoc/internal/store"
	"github.com/docengine/itdoc/internal/views"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close(); ns.Shutdown() })
	return nc
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Load()
	cfg.DataDir = t.TempDir()

	cls := classify.New(nil)
	eng := engine.New(extract.NewRegistry(), cls, st, views.NoopPublisher{}, map[domain.View]engine.ViewProcessor{})

	return &Server{
		Cfg:        cfg,
		Documents:  st.Documents(),
		Store:      st,
		Classifier: cls,
		Engine:     eng,
		Broker:     progress.New(),
		NATS:       startTestNATS(t),
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}

func uploadMultipart(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleUpload_AcceptsAllowedExtension(t *testing.T) {
	s := newTestServer(t)
	body, contentType := uploadMultipart(t, "notes.txt", "some learning content about prerequisites")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp["document_id"])
	require.NotEmpty(t, resp["task_id"])
	require.Equal(t, "txt", resp["file_type"])
}

func TestHandleUpload_RejectsLegacyDoc(t *testing.T) {
	s := newTestServer(t)
	body, contentType := uploadMultipart(t, "old.doc", "legacy content")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "unsupported_format", resp["error_type"])
}

func TestHandleGetDocument_NotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetResult_UnknownViewIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-1/result?view=bogus", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDelete_RemovesDocument(t *testing.T) {
	s := newTestServer(t)
	ctx := testCtx(t)
	_, err := s.Documents.Create(ctx, domain.Document{ID: "doc-del", Filename: "a.txt", Status: domain.StatusPending})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-del", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err = s.Documents.Get(ctx, "doc-del")
	require.Error(t, err)
}

func TestHandleHistory_PaginatesDocuments(t *testing.T) {
	s := newTestServer(t)
	ctx := testCtx(t)
	for i := 0; i < 3; i++ {
		_, err := s.Documents.Create(ctx, domain.Document{ID: "doc-h" + string(rune('a'+i)), Filename: "f.txt", Status: domain.StatusCompleted})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/history?page=1&page_size=2", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	docs := resp["documents"].([]any)
	require.Len(t, docs, 2)
}
