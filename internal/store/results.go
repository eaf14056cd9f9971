package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docengine/itdoc/internal/domain"
)

// SaveProcessingResult commits one view's result in its own short
// transaction — the engine never bulk-writes multiple views together, so
// the (document_id, view) uniqueness invariant stays per-view independent
// (spec.md §4.7).
func (s *Store) SaveProcessingResult(ctx context.Context, r domain.ProcessingResult) error {
	dataJSON, err := json.Marshal(r.ResultData)
	if err != nil {
		return fmt.Errorf("marshal result data: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processing_results (document_id, view, result_data_json, is_primary, processing_time_secs, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(document_id, view) DO UPDATE SET result_data_json=excluded.result_data_json,
		   is_primary=excluded.is_primary, processing_time_secs=excluded.processing_time_secs, updated_at=excluded.updated_at`,
		r.DocumentID, string(r.View), string(dataJSON), boolToInt(r.IsPrimary), r.ProcessingTimeSecs, now, now)
	if err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}
	return tx.Commit()
}

// GetProcessingResult returns one view's result for a document, or
// (false, nil) if that view has not completed.
func (s *Store) GetProcessingResult(ctx context.Context, documentID string, view domain.View) (domain.ProcessingResult, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result_data_json, is_primary, processing_time_secs, created_at, updated_at FROM processing_results WHERE document_id = ? AND view = ?`,
		documentID, string(view))

	var r domain.ProcessingResult
	r.DocumentID = documentID
	r.View = view
	var dataJSON string
	var isPrimary int
	var createdAt, updatedAt string
	if err := row.Scan(&dataJSON, &isPrimary, &r.ProcessingTimeSecs, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProcessingResult{}, false, nil
		}
		return domain.ProcessingResult{}, false, fmt.Errorf("get processing result: %w", err)
	}
	r.IsPrimary = isPrimary != 0
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if err := json.Unmarshal([]byte(dataJSON), &r.ResultData); err != nil {
		return domain.ProcessingResult{}, false, fmt.Errorf("unmarshal result data: %w", err)
	}
	return r, true, nil
}

// ListProcessingResults returns every committed view result for a document.
func (s *Store) ListProcessingResults(ctx context.Context, documentID string) ([]domain.ProcessingResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT view, result_data_json, is_primary, processing_time_secs, created_at, updated_at FROM processing_results WHERE document_id = ?`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("list processing results: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessingResult
	for rows.Next() {
		var r domain.ProcessingResult
		r.DocumentID = documentID
		var view, dataJSON, createdAt, updatedAt string
		var isPrimary int
		if err := rows.Scan(&view, &dataJSON, &isPrimary, &r.ProcessingTimeSecs, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan processing result: %w", err)
		}
		r.View = domain.View(view)
		r.IsPrimary = isPrimary != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if err := json.Unmarshal([]byte(dataJSON), &r.ResultData); err != nil {
			return nil, fmt.Errorf("unmarshal result data: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
