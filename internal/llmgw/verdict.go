package llmgw

import (
	"context"

	"github.com/docengine/itdoc/internal/classify"
	"github.com/docengine/itdoc/internal/domain"
)

// GenerateVerdict implements classify.VerdictGenerator: a single fixed-prompt
// call asking the model to classify a document into one of the three views
// (spec.md §4.5).
func (g *Gateway) GenerateVerdict(ctx context.Context, text string) (classify.Verdict, error) {
	const schemaHint = `{"view": "learning|qa|system", "confidence": 0.0}`
	messages := []Message{
		{Role: "system", Content: "You classify IT documents into exactly one of: learning, qa, system. Respond with JSON only."},
		{Role: "user", Content: "Classify this document and return " + schemaHint + ":\n\n" + truncate(text, 4000)},
	}

	obj, err := g.GenerateJSON(ctx, "", "classify_verdict", schemaHint, messages)
	if err != nil {
		return classify.Verdict{}, err
	}
	return parseVerdict(obj), nil
}

func parseVerdict(obj map[string]any) classify.Verdict {
	v := classify.Verdict{View: domain.ViewLearning, Confidence: 0}
	if raw, ok := obj["view"].(string); ok {
		view := domain.View(raw)
		if view.IsValid() {
			v.View = view
		}
	}
	if conf, ok := obj["confidence"].(float64); ok {
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		v.Confidence = conf
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
