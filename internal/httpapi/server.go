// Package httpapi implements the REST surface of the Ingestion API
// (spec.md §6), rooted at /api/v1, plus the WebSocket progress endpoint.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/docengine/itdoc/internal/classify"
	"github.com/docengine/itdoc/internal/config"
	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/internal/engine"
	"github.com/docengine/itdoc/internal/progress"
	"github.com/docengine/itdoc/internal/queue"
	"github.com/docengine/itdoc/pkg/mid"
	"github.com/docengine/itdoc/pkg/repo"
	"github.com/nats-io/nats.go"
)

// DocumentRepo is the narrow document-persistence capability the API needs.
type DocumentRepo interface {
	repo.Repository[domain.Document, string]
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) error
}

// Store is the narrow read surface the API needs beyond documents.
type Store interface {
	GetIntermediateResult(ctx context.Context, documentID string) (domain.IntermediateResult, bool, error)
	GetProfile(ctx context.Context, documentID string) (domain.DocumentViewProfile, bool, error)
	GetProcessingResult(ctx context.Context, documentID string, view domain.View) (domain.ProcessingResult, bool, error)
	ListProcessingResults(ctx context.Context, documentID string) ([]domain.ProcessingResult, error)
	LatestTaskForDocument(ctx context.Context, documentID string) (domain.ProcessingTask, bool, error)
	CreateTask(ctx context.Context, t domain.ProcessingTask) error
}

// Server holds every collaborator the handlers close over.
type Server struct {
	Cfg        config.Config
	Documents  DocumentRepo
	Store      Store
	Classifier *classify.Classifier
	Engine     *engine.Engine
	Broker     *progress.Broker
	NATS       *nats.Conn
	Log        *slog.Logger
}

// Routes builds the full mux: REST endpoints under /api/v1 plus the
// WebSocket progress stream, wrapped in the teacher's middleware chain.
func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/documents/upload", s.handleUpload)
	mux.HandleFunc("GET /api/v1/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/progress", s.handleGetProgress)
	mux.HandleFunc("GET /api/v1/documents/{id}/result", s.handleGetResult)
	mux.HandleFunc("POST /api/v1/documents/{id}/recommend-views", s.handleRecommendViews)
	mux.HandleFunc("POST /api/v1/documents/{id}/switch-view", s.handleSwitchView)
	mux.HandleFunc("GET /api/v1/documents/{id}/views/status", s.handleViewsStatus)
	mux.HandleFunc("GET /api/v1/documents/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", s.handleDelete)

	mux.HandleFunc("GET /ws/progress/{task_id}", s.Broker.Handler(s.Log))

	return mid.Chain(mux,
		mid.Recover(s.Log),
		mid.Logger(s.Log),
		mid.CORS("*"),
	)
}

// Serve starts an http.Server and blocks until ctx is done, then shuts it
// down gracefully — the teacher's run()/ListenAndServe/Shutdown pattern.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("api server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		s.Log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// enqueueJob publishes the primary processing job for a newly uploaded
// document onto the durable queue (internal/queue), for a worker to pick up.
func (s *Server) enqueueJob(documentID, taskID string, views []domain.View) error {
	strViews := make([]string, len(views))
	for i, v := range views {
		strViews[i] = string(v)
	}
	return queue.Publish(s.NATS, queue.Job{DocumentID: documentID, TaskID: taskID, EnabledViews: strViews})
}
