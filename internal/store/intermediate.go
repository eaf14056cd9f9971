package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docengine/itdoc/internal/domain"
)

// GetIntermediateResult returns the single IntermediateResult row for a
// document, or (false, nil) if none has been computed yet.
func (s *Store) GetIntermediateResult(ctx context.Context, documentID string) (domain.IntermediateResult, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT raw_text, preprocessed_text, segments_json, metadata_json FROM intermediate_results WHERE document_id = ?`, documentID)

	var ir domain.IntermediateResult
	ir.DocumentID = documentID
	var segmentsJSON string
	var metadataJSON sql.NullString
	if err := row.Scan(&ir.RawText, &ir.PreprocessedText, &segmentsJSON, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IntermediateResult{}, false, nil
		}
		return domain.IntermediateResult{}, false, fmt.Errorf("get intermediate result: %w", err)
	}
	if err := json.Unmarshal([]byte(segmentsJSON), &ir.Segments); err != nil {
		return domain.IntermediateResult{}, false, fmt.Errorf("unmarshal segments: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &ir.Metadata); err != nil {
			return domain.IntermediateResult{}, false, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return ir, true, nil
}

// SaveIntermediateResult writes (or overwrites) the single IntermediateResult
// row for a document — it is unique per document by primary key.
func (s *Store) SaveIntermediateResult(ctx context.Context, ir domain.IntermediateResult) error {
	segmentsJSON, err := json.Marshal(ir.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	metadataJSON, err := json.Marshal(ir.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO intermediate_results (document_id, raw_text, preprocessed_text, segments_json, metadata_json)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT(document_id) DO UPDATE SET raw_text=excluded.raw_text, preprocessed_text=excluded.preprocessed_text,
		   segments_json=excluded.segments_json, metadata_json=excluded.metadata_json`,
		ir.DocumentID, ir.RawText, ir.PreprocessedText, string(segmentsJSON), string(metadataJSON))
	if err != nil {
		return fmt.Errorf("save intermediate result: %w", err)
	}
	return nil
}
