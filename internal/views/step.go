package views

import (
	"strings"

	"github.com/docengine/itdoc/internal/domain"
)

// StepResult is one field-group's fully processed output: the model's raw
// fields (minus source_ids/confidence) plus the repaired confidence,
// label, and resolved sources.
type StepResult struct {
	Data       map[string]any
	Confidence int
	Label      ConfidenceLabel
	Sources    []Source
}

// ProcessStep extracts source_ids/confidence from a parsed model response,
// validates and repairs them, re-scores confidence against the segment
// set, and resolves sources — the shared post-processing every field
// group in every view goes through (spec.md §4.6 steps 2-4).
func ProcessStep(obj map[string]any, segments []domain.Segment, preprocessedText string) StepResult {
	fg := extractFieldGroup(obj)
	segmentCount := len(segments)
	outOfRange := HadOutOfRangeIDs(fg, segmentCount)
	repaired := ValidateAndRepair(fg, segmentCount)

	concepts := stringValues(obj, "required", "recommended", "technologies")
	absentConcept := len(concepts) > 0 && MentionsAbsentConcept(preprocessedText, concepts)
	selfContradiction := DetectSelfContradiction(flattenStrings(obj))

	retrievalStrength := 0.0
	if len(repaired.SourceIDs) > 0 {
		retrievalStrength = 100.0
	}
	concentration := 100.0
	if n := len(repaired.SourceIDs); n > 1 {
		concentration = 100.0 / float64(n)
	}

	score, label := Rescore(RescoreInputs{
		BaseConfidence:         float64(repaired.Confidence),
		RetrievalStrength:      retrievalStrength,
		Similarity:             70,
		Concentration:          concentration,
		Consistency:            100,
		ReferencesOutOfRangeID: outOfRange,
		MentionsAbsentConcept:  absentConcept,
		SelfContradictionFound: selfContradiction,
	})

	data := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == "source_ids" || k == "confidence" {
			continue
		}
		data[k] = v
	}

	return StepResult{
		Data:       data,
		Confidence: score,
		Label:      label,
		Sources:    ResolveSources(repaired.SourceIDs, segments),
	}
}

func extractFieldGroup(obj map[string]any) FieldGroup {
	fg := FieldGroup{}
	if raw, ok := obj["source_ids"].([]any); ok {
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				fg.SourceIDs = append(fg.SourceIDs, int(f))
			}
		}
	}
	if c, ok := obj["confidence"].(float64); ok {
		fg.Confidence = int(c)
	}
	return fg
}

func stringValues(obj map[string]any, keys ...string) []string {
	var out []string
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		case string:
			out = append(out, v)
		}
	}
	return out
}

// TruncateForPrompt implements the system-view long-input truncation rule:
// first 15000 chars + last 5000 chars, documenting the cut in metadata
// (spec.md §4.6).
func TruncateForPrompt(text string, head, tail int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= head+tail {
		return text, false
	}
	var b strings.Builder
	b.WriteString(string(runes[:head]))
	b.WriteString("\n...[truncated]...\n")
	b.WriteString(string(runes[len(runes)-tail:]))
	return b.String(), true
}
