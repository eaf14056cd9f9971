// Package views holds the logic shared by the three view processors:
// field-group validation/repair, confidence re-scoring, source
// resolution, and the CJK-parenthetical stripping post-process
// (spec.md §4.6).
package views

import (
	"regexp"
	"strings"

	"github.com/docengine/itdoc/internal/domain"
)

// Re-score weights (spec.md §9 Open Question — decision recorded in
// SPEC_FULL.md §10). Must sum to 1.
const (
	wBase  = 0.40
	wR     = 0.20
	wS     = 0.15
	wC     = 0.15
	wCons  = 0.10
)

const (
	penaltyOutOfRangeID     = -20
	penaltyAbsentConcept    = -15
	penaltySelfContradiction = -10
)

// ConfidenceLabel classifies a [0,100] confidence into {high, medium, low}.
type ConfidenceLabel string

const (
	LabelHigh   ConfidenceLabel = "high"
	LabelMedium ConfidenceLabel = "medium"
	LabelLow    ConfidenceLabel = "low"
)

func LabelFor(score int) ConfidenceLabel {
	switch {
	case score >= 75:
		return LabelHigh
	case score >= 40:
		return LabelMedium
	default:
		return LabelLow
	}
}

// RescoreInputs are the signals the re-score formula combines.
type RescoreInputs struct {
	BaseConfidence    float64 // model-reported confidence, 0..100
	RetrievalStrength float64 // 0..100
	Similarity        float64 // 0..100
	Concentration     float64 // 0..100
	Consistency       float64 // 0..100

	ReferencesOutOfRangeID  bool
	MentionsAbsentConcept   bool
	SelfContradictionFound bool
}

// Rescore combines the weighted signals and applies penalties, clamping to
// [0,100].
func Rescore(in RescoreInputs) (int, ConfidenceLabel) {
	score := in.BaseConfidence*wBase + in.RetrievalStrength*wR + in.Similarity*wS +
		in.Concentration*wC + in.Consistency*wCons

	if in.ReferencesOutOfRangeID {
		score += penaltyOutOfRangeID
	}
	if in.MentionsAbsentConcept {
		score += penaltyAbsentConcept
	}
	if in.SelfContradictionFound {
		score += penaltySelfContradiction
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	rounded := int(score + 0.5)
	return rounded, LabelFor(rounded)
}

// FieldGroup is the raw LLM-reported {source_ids, confidence} pair for one
// field group, before validation/repair.
type FieldGroup struct {
	SourceIDs  []int `json:"source_ids"`
	Confidence int   `json:"confidence"`
}

// ValidateAndRepair drops source ids outside [1,segmentCount], clamps
// confidence into [0,100], and applies the documented defaults for absent
// fields (spec.md §4.6 step 2).
func ValidateAndRepair(fg FieldGroup, segmentCount int) FieldGroup {
	out := FieldGroup{Confidence: fg.Confidence}
	if fg.SourceIDs == nil {
		out.SourceIDs = []int{}
	} else {
		out.SourceIDs = make([]int, 0, len(fg.SourceIDs))
		for _, id := range fg.SourceIDs {
			if id >= 1 && id <= segmentCount {
				out.SourceIDs = append(out.SourceIDs, id)
			}
		}
	}
	if out.Confidence == 0 && fg.Confidence == 0 {
		out.Confidence = 50
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 100 {
		out.Confidence = 100
	}
	return out
}

// HadOutOfRangeIDs reports whether raw referenced at least one id outside
// [1,segmentCount] — feeds the re-score penalty.
func HadOutOfRangeIDs(fg FieldGroup, segmentCount int) bool {
	for _, id := range fg.SourceIDs {
		if id < 1 || id > segmentCount {
			return true
		}
	}
	return false
}

// Source is a resolved citation: the segment text (capped) plus its
// position in the preprocessed document.
type Source struct {
	ID       int    `json:"id"`
	Text     string `json:"text"`
	Position Span   `json:"position"`
}

type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

const maxSourceTextLen = 200

// ResolveSources maps validated source ids to their Source citation.
func ResolveSources(ids []int, segments []domain.Segment) []Source {
	bySegID := make(map[int]domain.Segment, len(segments))
	for _, s := range segments {
		bySegID[s.ID] = s
	}
	sources := make([]Source, 0, len(ids))
	for _, id := range ids {
		seg, ok := bySegID[id]
		if !ok {
			continue
		}
		text := seg.Text
		if len([]rune(text)) > maxSourceTextLen {
			text = string([]rune(text)[:maxSourceTextLen])
		}
		sources = append(sources, Source{ID: id, Text: text, Position: Span{Start: seg.Start, End: seg.End}})
	}
	return sources
}

// cjkParenRe matches a trailing parenthetical whose contents are
// predominantly CJK script — the Open-Question decision in spec.md §9:
// strip it only when the parenthetical is in a different script family
// than a typical Latin-script technology name, so an English gloss inside
// an English document survives untouched. The class also admits the
// prolonged sound mark ー (U+30FC), which Unicode assigns to the Common
// script rather than to Katakana.
var cjkParenRe = regexp.MustCompile(`\s*\([\p{Han}\p{Hiragana}\p{Katakana}\p{Hangul}\x{30FC}\s]+\)\s*$`)

// StripTranslationParenthetical removes a trailing CJK parenthetical from a
// technology name.
func StripTranslationParenthetical(name string) string {
	return strings.TrimSpace(cjkParenRe.ReplaceAllString(name, ""))
}

// MentionsAbsentConcept reports whether any of concepts is absent from
// text — a cheap substring check backing the re-score penalty.
func MentionsAbsentConcept(text string, concepts []string) bool {
	lower := strings.ToLower(text)
	for _, c := range concepts {
		if c == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// polarityPairs are assertion/negation word pairs whose joint presence in
// one field group's own output marks it self-contradictory — e.g. a step
// that calls the same thing both "required" and "optional".
var polarityPairs = [][2]string{
	{"required", "optional"},
	{"mandatory", "voluntary"},
	{"always", "never"},
	{"enabled", "disabled"},
	{"permitted", "forbidden"},
	{"recommended", "discouraged"},
	{"available", "missing"},
}

// DetectSelfContradiction reports whether text asserts both sides of a
// known polarity pair, feeding the re-score self-contradiction penalty
// (spec.md §4.6 step 3). Deliberately intra-step: it flags a field group
// whose own generated text contradicts itself, not a disagreement across
// separate steps or against the source document — see DESIGN.md's
// Open-Question decision on the scope of this check.
func DetectSelfContradiction(text string) bool {
	lower := strings.ToLower(text)
	for _, pair := range polarityPairs {
		if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
			return true
		}
	}
	return false
}

// flattenStrings concatenates every string value reachable from v,
// walking through []any and map[string]any, for feeding to
// DetectSelfContradiction.
func flattenStrings(v any) string {
	var b strings.Builder
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			b.WriteString(t)
			b.WriteByte(' ')
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(v)
	return b.String()
}
