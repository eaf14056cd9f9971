// Package domain defines the core data model shared by every component:
// Document, ProcessingTask, IntermediateResult, Segment,
// DocumentViewProfile, ProcessingResult, and the AI metric/quality rows
// (spec.md §3).
package domain

import "time"

// View is one of the three processing perspectives.
type View string

const (
	ViewLearning View = "learning"
	ViewQA       View = "qa"
	ViewSystem   View = "system"
)

// AllViews is the full registered view set, in a fixed, stable order.
var AllViews = []View{ViewLearning, ViewQA, ViewSystem}

// IsValid reports whether v is one of the three registered views.
func (v View) IsValid() bool {
	switch v {
	case ViewLearning, ViewQA, ViewSystem:
		return true
	}
	return false
}

// DocumentStatus is the high-level lifecycle state of a Document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
	StatusTimeout    DocumentStatus = "timeout"
	StatusLowQuality DocumentStatus = "low_quality"
)

// terminalStatuses are sticky unless a user-initiated retry creates a new task.
var terminalStatuses = map[DocumentStatus]bool{
	StatusFailed:     true,
	StatusTimeout:    true,
	StatusLowQuality: true,
	StatusCompleted:  true,
}

// IsTerminal reports whether s is a terminal document status.
func (s DocumentStatus) IsTerminal() bool { return terminalStatuses[s] }

// Document is the identity row for an uploaded file.
type Document struct {
	ID           string
	Filename     string
	BlobPath     string
	FileSize     int64
	FileType     string
	UploadedAt   time.Time
	Status       DocumentStatus
}

// TaskStage is the coarse stage label on a ProcessingTask.
type TaskStage string

const (
	StageExtract TaskStage = "extract"
	StageIdentify TaskStage = "identify"
	StageProcess  TaskStage = "process"
)

// TaskStatus mirrors the document-level status vocabulary for a single task run.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskRunning    TaskStatus = "running"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskTimeout    TaskStatus = "timeout"
	TaskLowQuality TaskStatus = "low_quality"
)

// ProcessingTask is a single worker-side execution of a Document.
// Retries create new rows; the most recent row for a document is authoritative.
type ProcessingTask struct {
	ID            string
	DocumentID    string
	Stage         TaskStage
	Status        TaskStatus
	Progress      int
	CurrentStage  string
	ErrorMessage  string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Segment is a numbered, position-bounded fragment of preprocessed text —
// the unit of citation for every view processor.
type Segment struct {
	ID    int
	Text  string
	Start int
	End   int
}

// IntermediateResult holds the view-agnostic artefacts of a document:
// raw/preprocessed text, segments, and free-form metadata. Unique per document.
type IntermediateResult struct {
	DocumentID      string
	RawText         string
	PreprocessedText string
	Segments        []Segment
	Metadata        map[string]string
}

// DetectionMethod records how a DocumentViewProfile was derived.
type DetectionMethod string

const (
	MethodRule   DetectionMethod = "rule"
	MethodAI     DetectionMethod = "ai"
	MethodHybrid DetectionMethod = "hybrid"
	MethodNone   DetectionMethod = "none"
)

// DocumentViewProfile is the classifier's verdict for a document. Exactly
// one per document.
type DocumentViewProfile struct {
	DocumentID      string
	PrimaryView     View
	EnabledViews    []View
	DetectionScores map[View]float64
	DetectionMethod DetectionMethod
	Confidence      float64
}

// ResultStatus is the per-view commit/failure status exposed by views/status.
type ResultStatus string

const (
	ResultNotStarted ResultStatus = "not_started"
	ResultRunning    ResultStatus = "running"
	ResultCompleted  ResultStatus = "completed"
	ResultFailed     ResultStatus = "failed"
)

// ProcessingResult is a per-view artifact. The composite key
// (DocumentID, View) is unique — this is the load-bearing invariant behind
// view independence (spec.md §3).
type ProcessingResult struct {
	DocumentID           string
	View                 View
	ResultData           map[string]any
	IsPrimary            bool
	ProcessingTimeSecs   float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AiCallMetric is an append-only row describing one LLM invocation.
type AiCallMetric struct {
	ID             int64
	DocumentID     string
	CallType       string
	Status         string
	ResponseTimeMS int64
	ErrorType      string
	RetryCount     int
	CreatedAt      time.Time
}

// AiResultQuality is an append-only row describing a completed view's quality.
type AiResultQuality struct {
	ID                  int64
	DocumentID          string
	View                View
	FieldCompleteness   float64
	ConfidenceAvg       float64
	ConfidenceMin       float64
	ConfidenceMax       float64
	SourcesCount        int
	SourcesCompleteness float64
	QualityScore        float64
	CreatedAt           time.Time
}

// ProgressEventType distinguishes a milestone push from a terminal signal.
type ProgressEventType string

const (
	ProgressEventProgress  ProgressEventType = "progress"
	ProgressEventCompleted ProgressEventType = "completed"
	ProgressEventError     ProgressEventType = "error"
)

// ProgressEvent is the unit the Progress Broker fans out over WebSocket
// and the unit a worker publishes per milestone (spec.md §4.9, §6).
type ProgressEvent struct {
	Type         ProgressEventType `json:"type"`
	TaskID       string            `json:"task_id"`
	DocumentID   string            `json:"document_id"`
	Progress     int               `json:"progress"`
	CurrentStage string            `json:"current_stage"`
	Status       string            `json:"status,omitempty"`
}
