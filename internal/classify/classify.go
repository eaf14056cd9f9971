// Package classify scores a document against the three registered views
// and decides which to enable, escalating to an LLM verdict when the rule
// result is unconfident (spec.md §4.5).
package classify

import (
	"context"
	"sort"

	"github.com/docengine/itdoc/internal/domain"
)

const (
	thetaEnable    = 0.3
	thetaConfident = 0.5
)

// Verdict is the typed LLM response shape for the escalation call.
type Verdict struct {
	View       domain.View `json:"view"`
	Confidence float64     `json:"confidence"`
}

// VerdictGenerator is the narrow capability the classifier needs from the
// LLM gateway — satisfied by internal/llmgw.Gateway's GenerateVerdict,
// which is built on its GenerateJSON.
type VerdictGenerator interface {
	GenerateVerdict(ctx context.Context, text string) (Verdict, error)
}

// Classifier scores documents and decides enabled views. A nil
// VerdictGenerator disables LLM escalation (method is always "rule" or
// "none" in that case).
type Classifier struct {
	LLM VerdictGenerator
}

// New builds a Classifier. llm may be nil.
func New(llm VerdictGenerator) *Classifier {
	return &Classifier{LLM: llm}
}

// Classify scores preprocessedText against the three views and returns the
// resulting profile. ctx governs the optional LLM escalation call.
func (c *Classifier) Classify(ctx context.Context, documentID, preprocessedText string) domain.DocumentViewProfile {
	scores := ruleScores(preprocessedText)
	primary, topScore := argmax(scores)
	method := domain.MethodRule

	confidence := topScore
	if topScore < thetaConfident && c.LLM != nil {
		if v, err := c.LLM.GenerateVerdict(ctx, preprocessedText); err == nil {
			if v.Confidence >= topScore {
				primary = v.View
				confidence = v.Confidence
				method = domain.MethodHybrid
				if v.Confidence >= thetaConfident {
					method = domain.MethodAI
				}
			}
		}
	}
	if len(preprocessedText) == 0 {
		method = domain.MethodNone
	}

	enabled := enabledViews(primary, scores)

	return domain.DocumentViewProfile{
		DocumentID:      documentID,
		PrimaryView:     primary,
		EnabledViews:    enabled,
		DetectionScores: scores,
		DetectionMethod: method,
		Confidence:      confidence,
	}
}

// ruleScores computes the three marker densities and normalizes them to
// [0,1] by dividing by their sum (falling back to an equal split when the
// text carries no signal at all).
func ruleScores(text string) map[domain.View]float64 {
	raw := map[domain.View]float64{
		domain.ViewQA:       density(qaMarkerRe, text),
		domain.ViewSystem:   density(systemMarkerRe, text),
		domain.ViewLearning: density(learningMarkerRe, text),
	}
	sum := raw[domain.ViewQA] + raw[domain.ViewSystem] + raw[domain.ViewLearning]
	if sum == 0 {
		third := 1.0 / 3.0
		return map[domain.View]float64{domain.ViewQA: third, domain.ViewSystem: third, domain.ViewLearning: third}
	}
	for v := range raw {
		raw[v] = raw[v] / sum
	}
	return raw
}

// argmax returns the highest-scoring view, breaking ties by the stable
// AllViews order.
func argmax(scores map[domain.View]float64) (domain.View, float64) {
	best := domain.AllViews[0]
	bestScore := scores[best]
	for _, v := range domain.AllViews[1:] {
		if scores[v] > bestScore {
			best = v
			bestScore = scores[v]
		}
	}
	return best, bestScore
}

// enabledViews is {primary} union {v : score_v >= thetaEnable}, returned in
// the stable AllViews order.
func enabledViews(primary domain.View, scores map[domain.View]float64) []domain.View {
	set := map[domain.View]bool{primary: true}
	for _, v := range domain.AllViews {
		if scores[v] >= thetaEnable {
			set[v] = true
		}
	}
	out := make([]domain.View, 0, len(set))
	for _, v := range domain.AllViews {
		if set[v] {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return indexOf(out[i]) < indexOf(out[j])
	})
	return out
}

func indexOf(v domain.View) int {
	for i, av := range domain.AllViews {
		if av == v {
			return i
		}
	}
	return len(domain.AllViews)
}
