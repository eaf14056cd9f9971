package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docengine/itdoc/internal/domain"
)

// CreateTask inserts a new ProcessingTask row. Retries create new rows;
// the most recent row for a document is authoritative (spec.md §3).
func (s *Store) CreateTask(ctx context.Context, t domain.ProcessingTask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_tasks (id, document_id, stage, status, progress, current_stage, error_message, started_at, finished_at)
		 VALUES (?,?,?,?,?,?,?,?,NULL)`,
		t.ID, t.DocumentID, string(t.Stage), string(t.Status), t.Progress, t.CurrentStage, t.ErrorMessage, t.StartedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// SetTaskProgress updates progress/current_stage for a running task.
func (s *Store) SetTaskProgress(ctx context.Context, taskID string, progress int, currentStage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE processing_tasks SET progress=?, current_stage=?, status=? WHERE id=?`,
		progress, currentStage, string(domain.TaskRunning), taskID)
	if err != nil {
		return fmt.Errorf("set task progress: %w", err)
	}
	return nil
}

// TerminalizeTask sets a task's final status and finish time.
func (s *Store) TerminalizeTask(ctx context.Context, taskID string, status domain.TaskStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE processing_tasks SET status=?, error_message=?, finished_at=?, progress=100 WHERE id=?`,
		string(status), errMsg, time.Now().UTC().Format(time.RFC3339), taskID)
	if err != nil {
		return fmt.Errorf("terminalize task: %w", err)
	}
	return nil
}

// UpdateDocumentStatus sets a document's lifecycle status, delegating to
// the DocumentRepo so the engine can terminalize a document alongside its
// task without reaching through Documents() itself.
func (s *Store) UpdateDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error {
	return s.Documents().UpdateStatus(ctx, documentID, status)
}

// LatestTaskForDocument returns the most recent ProcessingTask row for a
// document — the authoritative one per spec.md §3.
func (s *Store) LatestTaskForDocument(ctx context.Context, documentID string) (domain.ProcessingTask, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, stage, status, progress, current_stage, error_message, started_at, finished_at
		 FROM processing_tasks WHERE document_id = ? ORDER BY started_at DESC LIMIT 1`, documentID)

	var t domain.ProcessingTask
	var stage, status, startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&t.ID, &t.DocumentID, &stage, &status, &t.Progress, &t.CurrentStage, &t.ErrorMessage, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProcessingTask{}, false, nil
		}
		return domain.ProcessingTask{}, false, fmt.Errorf("latest task: %w", err)
	}
	t.Stage = domain.TaskStage(stage)
	t.Status = domain.TaskStatus(status)
	t.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		t.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt.String)
	}
	return t, true, nil
}
