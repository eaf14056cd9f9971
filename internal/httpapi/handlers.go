package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docengine/itdoc/internal/apperr"
	"github.com/docengine/itdoc/internal/classify"
	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/pkg/repo"
)

// bytesPerEstimatedSecond is the throughput assumption behind the
// pre-processing time estimate that handleUpload checks against the budget
// before any extraction has run — a rough proxy, not a measured rate.
const bytesPerEstimatedSecond = 50_000

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind apperr.Kind, message string) {
	writeJSON(w, status, map[string]any{"error": message, "error_type": kind})
}

// handleUpload implements POST /api/v1/documents/upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.Cfg.MaxFileSizeBytes + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, apperr.KindBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, apperr.KindBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > s.Cfg.MaxFileSizeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, apperr.KindFileTooLarge, "file exceeds the maximum allowed size")
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if ext == "doc" {
		writeError(w, http.StatusBadRequest, apperr.KindUnsupportedFormat, "legacy .doc is not supported; translate to .docx and re-upload")
		return
	}
	if !s.Cfg.IsAllowedExtension(ext) {
		writeError(w, http.StatusBadRequest, apperr.KindUnsupportedFormat, fmt.Sprintf("extension %q is not supported", ext))
		return
	}

	estimatedSecs := int(header.Size/bytesPerEstimatedSecond) + 1
	if estimatedSecs > s.Cfg.MaxEstimatedSecs {
		writeError(w, http.StatusBadRequest, apperr.KindEstimatedTimeExceeded, "estimated processing time exceeds the configured budget")
		return
	}

	documentID := uuid.New().String()
	blobPath := filepath.Join(s.Cfg.DataDir, documentID+filepath.Ext(header.Filename))
	if err := os.MkdirAll(s.Cfg.DataDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not prepare storage directory")
		return
	}
	out, err := os.Create(blobPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not persist uploaded file")
		return
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not persist uploaded file")
		return
	}

	doc := domain.Document{
		ID:         documentID,
		Filename:   header.Filename,
		BlobPath:   blobPath,
		FileSize:   header.Size,
		FileType:   ext,
		UploadedAt: time.Now().UTC(),
		Status:     domain.StatusPending,
	}
	if _, err := s.Documents.Create(r.Context(), doc); err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not record document")
		return
	}

	taskID := uuid.New().String()
	task := domain.ProcessingTask{
		ID:         taskID,
		DocumentID: documentID,
		Stage:      domain.StageExtract,
		Status:     domain.TaskPending,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.Store.CreateTask(r.Context(), task); err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not create processing task")
		return
	}

	var override []domain.View
	if raw := r.URL.Query().Get("views"); raw != "" {
		for _, v := range strings.Split(raw, ",") {
			override = append(override, domain.View(strings.TrimSpace(v)))
		}
	}
	if err := s.enqueueJob(documentID, taskID, override); err != nil {
		s.Log.Error("upload: enqueue job failed", "error", err, "document_id", documentID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"task_id":     taskID,
		"filename":    header.Filename,
		"file_size":   header.Size,
		"file_type":   ext,
		"status":      doc.Status,
		"upload_time": doc.UploadedAt.Format(time.RFC3339),
	})
}

// handleGetDocument implements GET /api/v1/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.Documents.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, apperr.KindBadRequest, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleGetProgress implements GET /api/v1/documents/{id}/progress.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, ok, err := s.Store.LatestTaskForDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not load progress")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, apperr.KindBadRequest, "no task found for document")
		return
	}

	body := map[string]any{
		"document_id":   id,
		"progress":      task.Progress,
		"current_stage": task.CurrentStage,
		"status":        task.Status,
		"task_id":       task.ID,
	}
	if profile, ok, err := s.Store.GetProfile(r.Context(), id); err == nil && ok {
		body["enabled_views"] = profile.EnabledViews
		body["primary_view"] = profile.PrimaryView
	}
	writeJSON(w, http.StatusOK, body)
}

// handleGetResult implements GET /api/v1/documents/{id}/result.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	if view := q.Get("view"); view != "" {
		s.writeSingleViewResult(w, r, id, domain.View(view))
		return
	}
	if raw := q.Get("views"); raw != "" {
		s.writeMultiViewResult(w, r, id, strings.Split(raw, ","))
		return
	}
	s.writeAllViewsResult(w, r, id)
}

func (s *Server) writeSingleViewResult(w http.ResponseWriter, r *http.Request, documentID string, view domain.View) {
	if !view.IsValid() {
		writeError(w, http.StatusBadRequest, apperr.KindBadRequest, "unknown view name")
		return
	}
	result, ok, err := s.Store.GetProcessingResult(r.Context(), documentID, view)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not load result")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, apperr.KindBadRequest, "no result for the requested view")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":      documentID,
		"view":             view,
		"document_type":    view,
		"result":           result.ResultData,
		"processing_time":  result.ProcessingTimeSecs,
		"created_at":       result.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) writeMultiViewResult(w http.ResponseWriter, r *http.Request, documentID string, rawViews []string) {
	results := make(map[string]any)
	requested := make([]domain.View, 0, len(rawViews))
	for _, rv := range rawViews {
		view := domain.View(strings.TrimSpace(rv))
		if !view.IsValid() {
			writeError(w, http.StatusBadRequest, apperr.KindBadRequest, fmt.Sprintf("unknown view name %q", rv))
			return
		}
		requested = append(requested, view)
		if result, ok, err := s.Store.GetProcessingResult(r.Context(), documentID, view); err == nil && ok {
			results[string(view)] = result.ResultData
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":      documentID,
		"requested_views": requested,
		"results":          results,
	})
}

func (s *Server) writeAllViewsResult(w http.ResponseWriter, r *http.Request, documentID string) {
	all, err := s.Store.ListProcessingResults(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not load results")
		return
	}
	views := make(map[string]any, len(all))
	for _, result := range all {
		views[string(result.View)] = result.ResultData
	}

	meta := map[string]any{"view_count": len(all), "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if profile, ok, err := s.Store.GetProfile(r.Context(), documentID); err == nil && ok {
		meta["enabled_views"] = profile.EnabledViews
		meta["primary_view"] = profile.PrimaryView
		meta["confidence"] = profile.Confidence
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"views":       views,
		"meta":        meta,
	})
}

// handleRecommendViews implements POST /api/v1/documents/{id}/recommend-views.
func (s *Server) handleRecommendViews(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	intermediate, found, ierr := s.Store.GetIntermediateResult(r.Context(), id)
	if ierr != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not load intermediate result")
		return
	}
	if !found {
		writeError(w, http.StatusBadRequest, apperr.KindBadRequest, "intermediate result is required before recommending views")
		return
	}

	profile := s.Classifier.Classify(r.Context(), id, intermediate.PreprocessedText)
	writeJSON(w, http.StatusOK, map[string]any{
		"primary_view":     profile.PrimaryView,
		"enabled_views":    profile.EnabledViews,
		"detection_scores": profile.DetectionScores,
		"cache_key":        classify.CacheKey(id, profile.DetectionScores),
		"type_mapping":     domain.AllViews,
		"method":           profile.DetectionMethod,
	})
}

// handleSwitchView implements POST /api/v1/documents/{id}/switch-view?view=.
func (s *Server) handleSwitchView(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view := domain.View(r.URL.Query().Get("view"))
	if !view.IsValid() {
		writeError(w, http.StatusBadRequest, apperr.KindBadRequest, "unknown view name")
		return
	}

	start := time.Now()
	result, fromCache, err := s.Engine.SwitchView(r.Context(), id, view)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":              id,
		"view":                     view,
		"result":                   result.ResultData,
		"from_cache":               fromCache,
		"used_intermediate_results": true,
		"processing_time":          time.Since(start).Seconds(),
	})
}

// handleViewsStatus implements GET /api/v1/documents/{id}/views/status.
func (s *Server) handleViewsStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	profile, hasProfile, err := s.Store.GetProfile(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not load profile")
		return
	}
	results, err := s.Store.ListProcessingResults(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not load results")
		return
	}
	byView := make(map[domain.View]domain.ProcessingResult, len(results))
	for _, res := range results {
		byView[res.View] = res
	}

	viewsStatus := make(map[string]any)
	for _, v := range domain.AllViews {
		res, done := byView[v]
		status := domain.ResultNotStarted
		if done {
			status = domain.ResultCompleted
		}
		entry := map[string]any{
			"view":        v,
			"status":      status,
			"ready":       done,
			"is_primary":  hasProfile && profile.PrimaryView == v,
			"has_content": done && len(res.ResultData) > 0,
		}
		if done {
			entry["processing_time"] = res.ProcessingTimeSecs
		}
		viewsStatus[string(v)] = entry
	}

	body := map[string]any{"document_id": id, "views_status": viewsStatus}
	if hasProfile {
		body["primary_view"] = profile.PrimaryView
		body["enabled_views"] = profile.EnabledViews
	}
	writeJSON(w, http.StatusOK, body)
}

// handleHistory implements GET /api/v1/documents/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q, "page", 1)
	pageSize := queryInt(q, "page_size", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	filter := map[string]any{}
	if docType := q.Get("document_type"); docType != "" {
		filter["status"] = docType
	}

	docs, err := s.Documents.List(r.Context(), repo.ListOpts{
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
		Filter: filter,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"page":      page,
		"page_size": pageSize,
		"documents": docs,
	})
}

// handleDelete implements DELETE /api/v1/documents/{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Documents.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, apperr.KindServerError, "could not delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(q map[string][]string, key string, fallback int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return fallback
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return fallback
	}
	return n
}
