package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/docengine/itdoc/internal/domain"
)

// GetProfile returns the classifier's verdict for a document, or
// (false, nil) if none has been computed yet.
func (s *Store) GetProfile(ctx context.Context, documentID string) (domain.DocumentViewProfile, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT primary_view, enabled_views, detection_scores, detection_method, confidence FROM document_view_profiles WHERE document_id = ?`, documentID)

	var p domain.DocumentViewProfile
	p.DocumentID = documentID
	var primary, enabledCSV, scoresJSON, method string
	if err := row.Scan(&primary, &enabledCSV, &scoresJSON, &method, &p.Confidence); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentViewProfile{}, false, nil
		}
		return domain.DocumentViewProfile{}, false, fmt.Errorf("get profile: %w", err)
	}
	p.PrimaryView = domain.View(primary)
	p.DetectionMethod = domain.DetectionMethod(method)
	for _, v := range strings.Split(enabledCSV, ",") {
		if v != "" {
			p.EnabledViews = append(p.EnabledViews, domain.View(v))
		}
	}
	rawScores := map[string]float64{}
	if err := json.Unmarshal([]byte(scoresJSON), &rawScores); err != nil {
		return domain.DocumentViewProfile{}, false, fmt.Errorf("unmarshal detection scores: %w", err)
	}
	p.DetectionScores = make(map[domain.View]float64, len(rawScores))
	for k, v := range rawScores {
		p.DetectionScores[domain.View(k)] = v
	}
	return p, true, nil
}

// SaveProfile writes (or overwrites) the single DocumentViewProfile row
// for a document.
func (s *Store) SaveProfile(ctx context.Context, p domain.DocumentViewProfile) error {
	enabled := make([]string, len(p.EnabledViews))
	for i, v := range p.EnabledViews {
		enabled[i] = string(v)
	}
	rawScores := make(map[string]float64, len(p.DetectionScores))
	for k, v := range p.DetectionScores {
		rawScores[string(k)] = v
	}
	scoresJSON, err := json.Marshal(rawScores)
	if err != nil {
		return fmt.Errorf("marshal detection scores: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_view_profiles (document_id, primary_view, enabled_views, detection_scores, detection_method, confidence)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT(document_id) DO UPDATE SET primary_view=excluded.primary_view, enabled_views=excluded.enabled_views,
		   detection_scores=excluded.detection_scores, detection_method=excluded.detection_method, confidence=excluded.confidence`,
		p.DocumentID, string(p.PrimaryView), strings.Join(enabled, ","), string(scoresJSON), string(p.DetectionMethod), p.Confidence)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
