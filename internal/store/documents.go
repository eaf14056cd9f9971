package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docengine/itdoc/internal/apperr"
	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/pkg/repo"
)

// DocumentRepo adapts Store to repo.Repository[domain.Document, string],
// reusing the teacher's generic CRUD contract (pkg/repo.Repository) for
// the one entity in this system simple enough for it.
type DocumentRepo struct {
	s *Store
}

func (s *Store) Documents() *DocumentRepo { return &DocumentRepo{s: s} }

var _ repo.Repository[domain.Document, string] = (*DocumentRepo)(nil)

func (r *DocumentRepo) Get(ctx context.Context, id string) (domain.Document, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT id, filename, blob_path, file_size, file_type, uploaded_at, status FROM documents WHERE id = ?`, id)
	var d domain.Document
	var uploadedAt string
	if err := row.Scan(&d.ID, &d.Filename, &d.BlobPath, &d.FileSize, &d.FileType, &uploadedAt, &d.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, apperr.New(apperr.KindBadRequest, "store", "document not found")
		}
		return domain.Document{}, fmt.Errorf("get document: %w", err)
	}
	d.UploadedAt, _ = time.Parse(time.RFC3339, uploadedAt)
	return d, nil
}

func (r *DocumentRepo) List(ctx context.Context, opts repo.ListOpts) ([]domain.Document, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, filename, blob_path, file_size, file_type, uploaded_at, status FROM documents`
	args := []any{}
	if status, ok := opts.Filter["status"]; ok {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY uploaded_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.Filename, &d.BlobPath, &d.FileSize, &d.FileType, &uploadedAt, &d.Status); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.UploadedAt, _ = time.Parse(time.RFC3339, uploadedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DocumentRepo) Create(ctx context.Context, d domain.Document) (domain.Document, error) {
	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, blob_path, file_size, file_type, uploaded_at, status) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.Filename, d.BlobPath, d.FileSize, d.FileType, d.UploadedAt.Format(time.RFC3339), d.Status)
	if err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) Update(ctx context.Context, d domain.Document) (domain.Document, error) {
	_, err := r.s.db.ExecContext(ctx,
		`UPDATE documents SET filename=?, blob_path=?, file_size=?, file_type=?, status=? WHERE id=?`,
		d.Filename, d.BlobPath, d.FileSize, d.FileType, d.Status, d.ID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("update document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	// Deleting a document cascades to every dependent table; sqlite has no
	// ON DELETE CASCADE configured here since foreign keys are off by
	// default, so each table is cleared explicitly.
	for _, table := range []string{"processing_tasks", "intermediate_results", "document_view_profiles", "processing_results", "ai_call_metrics", "ai_result_quality"} {
		if _, err := r.s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = ?`, table), id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

// UpdateStatus sets a document's lifecycle status.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) error {
	_, err := r.s.db.ExecContext(ctx, `UPDATE documents SET status=? WHERE id=?`, status, id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

