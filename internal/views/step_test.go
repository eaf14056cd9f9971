package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docengine/itdoc/internal/domain"
)

func TestProcessStep_ValidatesAndResolvesSources(t *testing.T) {
	segments := []domain.Segment{
		{ID: 1, Text: "Docker is a containerization platform.", Start: 0, End: 39},
		{ID: 2, Text: "Kubernetes orchestrates containers.", Start: 40, End: 76},
	}
	obj := map[string]any{
		"required":    []any{"docker"},
		"source_ids":  []any{1.0, 99.0},
		"confidence":  85.0,
	}
	result := ProcessStep(obj, segments, "Docker is a containerization platform. Kubernetes orchestrates containers.")

	require.Len(t, result.Sources, 1)
	assert.Equal(t, 1, result.Sources[0].ID)
	assert.NotContains(t, result.Data, "source_ids")
	assert.NotContains(t, result.Data, "confidence")
	assert.Contains(t, result.Data, "required")
}

func TestProcessStep_PenalizesOutOfRangeIDs(t *testing.T) {
	segments := []domain.Segment{{ID: 1, Text: "x", Start: 0, End: 1}}
	withBad := ProcessStep(map[string]any{"source_ids": []any{99.0}, "confidence": 90.0}, segments, "x")
	withGood := ProcessStep(map[string]any{"source_ids": []any{1.0}, "confidence": 90.0}, segments, "x")
	assert.Less(t, withBad.Confidence, withGood.Confidence)
}

func TestProcessStep_PenalizesSelfContradiction(t *testing.T) {
	segments := []domain.Segment{{ID: 1, Text: "x", Start: 0, End: 1}}
	contradictory := ProcessStep(map[string]any{
		"description": "Enabling TLS is required, though it remains optional for internal traffic.",
		"source_ids":  []any{1.0},
		"confidence":  90.0,
	}, segments, "x")
	clean := ProcessStep(map[string]any{
		"description": "Enabling TLS is required for all traffic.",
		"source_ids":  []any{1.0},
		"confidence":  90.0,
	}, segments, "x")
	assert.Less(t, contradictory.Confidence, clean.Confidence)
}

func TestProcessStep_DefaultsConfidenceWhenAbsent(t *testing.T) {
	result := ProcessStep(map[string]any{}, nil, "")
	assert.Equal(t, LabelFor(50), result.Label)
}

func TestTruncateForPrompt_LeavesShortTextUntouched(t *testing.T) {
	text := "short document"
	out, truncated := TruncateForPrompt(text, 15000, 5000)
	assert.False(t, truncated)
	assert.Equal(t, text, out)
}

func TestTruncateForPrompt_KeepsHeadAndTail(t *testing.T) {
	head := make([]rune, 20)
	for i := range head {
		head[i] = 'a'
	}
	tail := make([]rune, 20)
	for i := range tail {
		tail[i] = 'b'
	}
	text := string(head) + string(make([]rune, 100)) + string(tail)
	out, truncated := TruncateForPrompt(text, 10, 10)
	assert.True(t, truncated)
	assert.Contains(t, out, "aaaaaaaaaa")
	assert.Contains(t, out, "bbbbbbbbbb")
}
