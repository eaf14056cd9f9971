// Package engine drives a document from extracted blob through classified
// profile to committed per-view results — the View Engine and its
// view-switch fast path (spec.md §4.7, §4.8).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docengine/itdoc/internal/apperr"
	"github.com/docengine/itdoc/internal/classify"
	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/internal/extract"
	"github.com/docengine/itdoc/internal/preprocess"
	"github.com/docengine/itdoc/internal/views"
	"github.com/docengine/itdoc/pkg/fn"
)

// secondaryWorkers bounds how many secondary views run concurrently
// in-process per Run call.
const secondaryWorkers = 8

// progress milestones per spec.md §4.7 step 5.
const (
	milestoneExtracted    = 20
	milestonePreprocessed = 30
	milestoneSegmented    = 35
	milestoneClassified   = 40
	milestoneComplete     = 100
)

// ViewProcessor is the narrow capability shared by the three view
// packages (internal/views/{learning,qa,system}).
type ViewProcessor interface {
	Process(ctx context.Context, taskID, documentID, preprocessedText string, segments []domain.Segment) (map[string]any, error)
}

// Store is the persistence capability the engine needs.
type Store interface {
	GetIntermediateResult(ctx context.Context, documentID string) (domain.IntermediateResult, bool, error)
	SaveIntermediateResult(ctx context.Context, ir domain.IntermediateResult) error
	GetProfile(ctx context.Context, documentID string) (domain.DocumentViewProfile, bool, error)
	SaveProfile(ctx context.Context, p domain.DocumentViewProfile) error
	SaveProcessingResult(ctx context.Context, r domain.ProcessingResult) error
	GetProcessingResult(ctx context.Context, documentID string, view domain.View) (domain.ProcessingResult, bool, error)
	SetTaskProgress(ctx context.Context, taskID string, progress int, currentStage string) error
	TerminalizeTask(ctx context.Context, taskID string, status domain.TaskStatus, errMsg string) error
	UpdateDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error
}

// SecondaryDispatcher hands a secondary view off to run as its own task,
// per spec.md §4.7 step 4 ("each runs in its own task"). When nil, Engine
// falls back to running secondaries as goroutines within the current
// worker process.
type SecondaryDispatcher interface {
	Dispatch(documentID, taskID string, view domain.View) error
}

// Engine wires extraction, preprocessing, classification, and the view
// processors into the primary-then-secondary scheduling spec.md §4.7
// requires.
type Engine struct {
	Extractor  *extract.Registry
	Classifier *classify.Classifier
	Store      Store
	Publisher  views.ProgressPublisher
	Processors map[domain.View]ViewProcessor

	// Secondary, when set, dispatches each secondary view as a separate
	// queued job instead of an in-process goroutine.
	Secondary SecondaryDispatcher

	StepTimeout time.Duration
	Log         *slog.Logger
}

// New builds an Engine. pub may be views.NoopPublisher{}.
func New(extractor *extract.Registry, classifier *classify.Classifier, store Store, pub views.ProgressPublisher, processors map[domain.View]ViewProcessor) *Engine {
	return &Engine{
		Extractor:   extractor,
		Classifier:  classifier,
		Store:       store,
		Publisher:   pub,
		Processors:  processors,
		StepTimeout: 120 * time.Second,
		Log:         slog.Default(),
	}
}

func (e *Engine) publish(taskID, documentID string, progress int, stage string) {
	e.Publisher.Publish(domain.ProgressEvent{
		Type:         domain.ProgressEventProgress,
		TaskID:       taskID,
		DocumentID:   documentID,
		Progress:     progress,
		CurrentStage: stage,
	})
}

// Run executes the full pipeline for a document: load-or-compute the
// IntermediateResult, classify (or reuse) its DocumentViewProfile, run the
// primary view synchronously, then fan secondary views out concurrently
// (spec.md §4.7).
func (e *Engine) Run(ctx context.Context, taskID, documentID, blobPath, fileType string, override []domain.View) error {
	ir, err := e.loadOrCompute(ctx, taskID, documentID, blobPath, fileType)
	if err != nil {
		e.fail(ctx, taskID, documentID, "extraction_failed", err)
		return err
	}

	profile, err := e.loadOrClassify(ctx, taskID, documentID, ir.PreprocessedText)
	if err != nil {
		e.fail(ctx, taskID, documentID, "classify_failed", err)
		return err
	}
	e.publish(taskID, documentID, milestoneClassified, "classified")

	enabled := effectiveViews(override, profile.EnabledViews)
	if len(enabled) == 0 {
		cause := apperr.New(apperr.KindLowQuality, "classify", fmt.Sprintf("no enabled views for document %s", documentID))
		e.fail(ctx, taskID, documentID, "low_quality", cause)
		return cause
	}

	primary := profile.PrimaryView
	if !containsView(enabled, primary) {
		primary = enabled[0]
	}

	if err := e.runView(ctx, taskID, documentID, primary, true, ir); err != nil {
		e.fail(ctx, taskID, documentID, "ai_call_failed", err)
		return err
	}

	// A job-level deadline (cmd/worker wraps Run in context.WithTimeout
	// against config.JobTimeout) that has already passed by the time the
	// primary view commits must not let secondaries start new LLM calls.
	secondaries := removeView(enabled, primary)
	timedOut := ctx.Err() != nil
	if !timedOut {
		if e.Secondary != nil {
			e.dispatchSecondaries(taskID, documentID, secondaries)
		} else {
			e.runSecondariesConcurrently(ctx, taskID, documentID, secondaries, ir)
		}
	}

	// The job context may itself be expired at this point; terminalizing
	// the task and document must not be skipped just because the job
	// deadline already passed.
	storeCtx := ctx
	if timedOut {
		storeCtx = context.Background()
	}
	status, docStatus := domain.TaskCompleted, domain.StatusCompleted
	if timedOut {
		status, docStatus = domain.TaskTimeout, domain.StatusTimeout
	}
	if err := e.Store.TerminalizeTask(storeCtx, taskID, status, ""); err != nil {
		e.Log.Error("engine: terminalize task failed", "error", err, "task_id", taskID)
	}
	if err := e.Store.UpdateDocumentStatus(storeCtx, documentID, docStatus); err != nil {
		e.Log.Error("engine: update document status failed", "error", err, "document_id", documentID)
	}
	if timedOut {
		e.Publisher.Publish(domain.ProgressEvent{Type: domain.ProgressEventError, TaskID: taskID, DocumentID: documentID, Status: "job exceeded its time budget", CurrentStage: "timeout"})
		return apperr.New(apperr.KindTimeout, "engine", "job exceeded its time budget")
	}
	e.Publisher.Publish(domain.ProgressEvent{Type: domain.ProgressEventCompleted, TaskID: taskID, DocumentID: documentID, Progress: milestoneComplete, CurrentStage: "completed"})
	return nil
}

func (e *Engine) loadOrCompute(ctx context.Context, taskID, documentID, blobPath, fileType string) (domain.IntermediateResult, error) {
	if ir, ok, err := e.Store.GetIntermediateResult(ctx, documentID); err != nil {
		return domain.IntermediateResult{}, err
	} else if ok {
		return ir, nil
	}

	raw, err := e.Extractor.Extract(fileType, blobPath)
	if err != nil {
		return domain.IntermediateResult{}, fmt.Errorf("extract: %w", err)
	}
	e.publish(taskID, documentID, milestoneExtracted, "extracted")

	pre, err := preprocess.Preprocess(raw)
	if err != nil {
		return domain.IntermediateResult{}, fmt.Errorf("preprocess: %w", err)
	}
	e.publish(taskID, documentID, milestonePreprocessed, "preprocessed")

	segments := preprocess.Segment(pre)
	e.publish(taskID, documentID, milestoneSegmented, "segmented")

	ir := domain.IntermediateResult{DocumentID: documentID, RawText: raw, PreprocessedText: pre, Segments: segments}
	if err := e.Store.SaveIntermediateResult(ctx, ir); err != nil {
		return domain.IntermediateResult{}, fmt.Errorf("save intermediate result: %w", err)
	}
	return ir, nil
}

func (e *Engine) loadOrClassify(ctx context.Context, taskID, documentID, preprocessedText string) (domain.DocumentViewProfile, error) {
	if p, ok, err := e.Store.GetProfile(ctx, documentID); err != nil {
		return domain.DocumentViewProfile{}, err
	} else if ok {
		return p, nil
	}

	profile := e.Classifier.Classify(ctx, documentID, preprocessedText)
	if err := e.Store.SaveProfile(ctx, profile); err != nil {
		return domain.DocumentViewProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return profile, nil
}

// runView executes a single view processor against the cached intermediate
// and commits its ProcessingResult in its own transaction.
func (e *Engine) runView(ctx context.Context, taskID, documentID string, view domain.View, isPrimary bool, ir domain.IntermediateResult) error {
	proc, ok := e.Processors[view]
	if !ok {
		return fmt.Errorf("no processor registered for view %q", view)
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.StepTimeout)
	defer cancel()

	start := time.Now()
	data, err := proc.Process(stepCtx, taskID, documentID, ir.PreprocessedText, ir.Segments)
	if err != nil {
		return fmt.Errorf("process view %s: %w", view, err)
	}

	result := domain.ProcessingResult{
		DocumentID:         documentID,
		View:               view,
		ResultData:         data,
		IsPrimary:          isPrimary,
		ProcessingTimeSecs: time.Since(start).Seconds(),
	}
	if err := e.Store.SaveProcessingResult(ctx, result); err != nil {
		return fmt.Errorf("save processing result for view %s: %w", view, err)
	}
	return nil
}

// runSecondariesConcurrently runs every secondary view with bounded
// concurrency via pkg/fn.BatchStage; a secondary failure is logged and
// isolated per spec.md §4.7 rather than propagated, so the batch stage
// itself never observes an error.
func (e *Engine) runSecondariesConcurrently(ctx context.Context, taskID, documentID string, secondaries []domain.View, ir domain.IntermediateResult) {
	stage := fn.BatchStage(secondaryWorkers, func(ctx context.Context, view domain.View) fn.Result[struct{}] {
		if err := e.runView(ctx, taskID, documentID, view, false, ir); err != nil {
			e.Log.Error("engine: secondary view failed", "error", err, "document_id", documentID, "view", view)
		}
		return fn.Ok(struct{}{})
	})
	stage(ctx, secondaries)
}

// dispatchSecondaries hands each secondary view off to the SecondaryDispatcher.
// A dispatch failure is logged and isolated, matching the goroutine path's
// independence guarantee.
func (e *Engine) dispatchSecondaries(taskID, documentID string, secondaries []domain.View) {
	for _, v := range secondaries {
		if err := e.Secondary.Dispatch(documentID, taskID, v); err != nil {
			e.Log.Error("engine: dispatch secondary view failed", "error", err, "document_id", documentID, "view", v)
		}
	}
}

// RunSecondary executes a single secondary view against the document's
// cached IntermediateResult and commits its ProcessingResult — the
// handler a secondary-job consumer calls (spec.md §4.7 step 4).
func (e *Engine) RunSecondary(ctx context.Context, taskID, documentID string, view domain.View) error {
	ir, ok, err := e.Store.GetIntermediateResult(ctx, documentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no intermediate result for document %s", documentID)
	}
	return e.runView(ctx, taskID, documentID, view, false, ir)
}

// fail terminalizes a task and its document as failed, deriving the
// precise terminal status from the cause's apperr.Kind (or the job
// context's own deadline) instead of always using domain.TaskFailed.
func (e *Engine) fail(ctx context.Context, taskID, documentID, errType string, cause error) {
	e.Log.Error("engine: job failed", "error", cause, "document_id", documentID, "error_type", errType)

	taskStatus := domain.TaskFailed
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		taskStatus = domain.TaskTimeout
	case apperr.KindOf(cause) == apperr.KindLowQuality:
		taskStatus = domain.TaskLowQuality
	case apperr.KindOf(cause) == apperr.KindTimeout:
		taskStatus = domain.TaskTimeout
	}

	storeCtx := ctx
	if ctx.Err() != nil {
		storeCtx = context.Background()
	}
	if err := e.Store.TerminalizeTask(storeCtx, taskID, taskStatus, cause.Error()); err != nil {
		e.Log.Error("engine: terminalize failed task failed", "error", err, "task_id", taskID)
	}
	if err := e.Store.UpdateDocumentStatus(storeCtx, documentID, documentStatusFor(taskStatus)); err != nil {
		e.Log.Error("engine: update document status failed", "error", err, "document_id", documentID)
	}
	e.Publisher.Publish(domain.ProgressEvent{Type: domain.ProgressEventError, TaskID: taskID, DocumentID: documentID, Status: cause.Error(), CurrentStage: errType})
}

// documentStatusFor mirrors a terminal TaskStatus onto the matching
// DocumentStatus.
func documentStatusFor(status domain.TaskStatus) domain.DocumentStatus {
	switch status {
	case domain.TaskLowQuality:
		return domain.StatusLowQuality
	case domain.TaskTimeout:
		return domain.StatusTimeout
	case domain.TaskCompleted:
		return domain.StatusCompleted
	default:
		return domain.StatusFailed
	}
}

// SwitchView implements the View-Switch Fast Path (spec.md §4.8): return a
// cached ProcessingResult if one exists, else compute and commit it.
func (e *Engine) SwitchView(ctx context.Context, documentID string, view domain.View) (domain.ProcessingResult, bool, error) {
	ir, ok, err := e.Store.GetIntermediateResult(ctx, documentID)
	if err != nil {
		return domain.ProcessingResult{}, false, err
	}
	if !ok {
		return domain.ProcessingResult{}, false, fmt.Errorf("no intermediate result for document %s", documentID)
	}

	if existing, ok, err := e.Store.GetProcessingResult(ctx, documentID, view); err != nil {
		return domain.ProcessingResult{}, false, err
	} else if ok {
		return existing, true, nil
	}

	const switchBudget = 5 * time.Second
	start := time.Now()
	if err := e.runView(ctx, "", documentID, view, false, ir); err != nil {
		return domain.ProcessingResult{}, false, err
	}
	if elapsed := time.Since(start); elapsed > switchBudget {
		e.Log.Warn("engine: switch-view exceeded time budget", "document_id", documentID, "view", view, "elapsed", elapsed)
	}

	result, ok, err := e.Store.GetProcessingResult(ctx, documentID, view)
	if err != nil {
		return domain.ProcessingResult{}, false, err
	}
	if !ok {
		return domain.ProcessingResult{}, false, fmt.Errorf("switch-view: result missing after commit for view %s", view)
	}
	return result, false, nil
}

// effectiveViews intersects the caller override (if any) with the
// classifier's recommended enabled set, falling back to the recommendation
// when no override is given (spec.md §4.7 step 2).
func effectiveViews(override, recommended []domain.View) []domain.View {
	if len(override) == 0 {
		return recommended
	}
	var out []domain.View
	for _, v := range domain.AllViews {
		if containsView(override, v) && v.IsValid() {
			out = append(out, v)
		}
	}
	return out
}

func containsView(views []domain.View, v domain.View) bool {
	for _, x := range views {
		if x == v {
			return true
		}
	}
	return false
}

func removeView(views []domain.View, v domain.View) []domain.View {
	out := make([]domain.View, 0, len(views))
	for _, x := range views {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
