package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docengine/itdoc/internal/domain"
)

// RecordAiCall implements llmgw.MetricSink. The insert runs synchronously
// on the caller's goroutine, and the gateway calls this inline after each
// attempt, so a slow insert delays the call's return. Any failure here is
// logged, not propagated.
func (s *Store) RecordAiCall(m domain.AiCallMetric) {
	_, err := s.db.Exec(
		`INSERT INTO ai_call_metrics (document_id, call_type, status, response_time_ms, error_type, retry_count, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		nullableString(m.DocumentID), m.CallType, m.Status, m.ResponseTimeMS, nullableString(m.ErrorType), m.RetryCount, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		slog.Warn("record ai call metric failed", "error", err)
	}
}

// RecordAiResultQuality stores a completed view's quality row.
func (s *Store) RecordAiResultQuality(ctx context.Context, q domain.AiResultQuality) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_result_quality (document_id, view, field_completeness, confidence_avg, confidence_min, confidence_max,
		   sources_count, sources_completeness, quality_score, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		q.DocumentID, string(q.View), q.FieldCompleteness, q.ConfidenceAvg, q.ConfidenceMin, q.ConfidenceMax,
		q.SourcesCount, q.SourcesCompleteness, q.QualityScore, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record ai result quality: %w", err)
	}
	return nil
}

// SweepOldMetrics deletes ai_call_metrics/ai_result_quality rows older
// than retentionDays — the time-based sweep spec.md §3 requires.
func (s *Store) SweepOldMetrics(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ai_call_metrics WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("sweep ai_call_metrics: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ai_result_quality WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("sweep ai_result_quality: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
