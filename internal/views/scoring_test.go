package views

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docengine/itdoc/internal/domain"
)

func TestRescore_WeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, wBase+wR+wS+wC+wCons, 1e-9)
}

func TestRescore_ClampsToRange(t *testing.T) {
	score, label := Rescore(RescoreInputs{BaseConfidence: 100, RetrievalStrength: 100, Similarity: 100, Concentration: 100, Consistency: 100})
	assert.Equal(t, 100, score)
	assert.Equal(t, LabelHigh, label)

	score, label = Rescore(RescoreInputs{SelfContradictionFound: true, ReferencesOutOfRangeID: true, MentionsAbsentConcept: true})
	assert.Equal(t, 0, score)
	assert.Equal(t, LabelLow, label)
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, LabelHigh, LabelFor(75))
	assert.Equal(t, LabelMedium, LabelFor(40))
	assert.Equal(t, LabelLow, LabelFor(39))
}

func TestValidateAndRepair_DropsOutOfRangeIDs(t *testing.T) {
	out := ValidateAndRepair(FieldGroup{SourceIDs: []int{1, 5, 0, -1}, Confidence: 80}, 3)
	assert.Equal(t, []int{1}, out.SourceIDs)
	assert.Equal(t, 80, out.Confidence)
}

func TestValidateAndRepair_DefaultsAbsentConfidence(t *testing.T) {
	out := ValidateAndRepair(FieldGroup{}, 3)
	assert.Equal(t, 50, out.Confidence)
	assert.Equal(t, []int{}, out.SourceIDs)
}

func TestValidateAndRepair_ClampsConfidence(t *testing.T) {
	out := ValidateAndRepair(FieldGroup{Confidence: 500}, 3)
	assert.Equal(t, 100, out.Confidence)
	out = ValidateAndRepair(FieldGroup{Confidence: -50}, 3)
	assert.Equal(t, 0, out.Confidence)
}

func TestResolveSources_CapsTextLength(t *testing.T) {
	longText := make([]byte, 500)
	for i := range longText {
		longText[i] = 'a'
	}
	segs := []domain.Segment{{ID: 1, Text: string(longText), Start: 0, End: 500}}
	sources := ResolveSources([]int{1}, segs)
	assert.Len(t, sources[0].Text, 200)
}

func TestResolveSources_SkipsUnknownIDs(t *testing.T) {
	segs := []domain.Segment{{ID: 1, Text: "hi", Start: 0, End: 2}}
	sources := ResolveSources([]int{1, 99}, segs)
	assert.Len(t, sources, 1)
}

func TestStripTranslationParenthetical(t *testing.T) {
	assert.Equal(t, "Kubernetes", StripTranslationParenthetical("Kubernetes (クバネティス)"))
	assert.Equal(t, "Kubernetes (container orchestrator)", StripTranslationParenthetical("Kubernetes (container orchestrator)"))
	assert.Equal(t, "负载均衡器 (Load Balancer)", StripTranslationParenthetical("负载均衡器 (Load Balancer)"))
}

func TestDetectSelfContradiction(t *testing.T) {
	assert.True(t, DetectSelfContradiction("This step is required, but it is also optional."))
	assert.False(t, DetectSelfContradiction("This step is required for all deployments."))
}

func TestMentionsAbsentConcept(t *testing.T) {
	assert.True(t, MentionsAbsentConcept("some text about docker", []string{"kubernetes"}))
	assert.False(t, MentionsAbsentConcept("some text about docker and kubernetes", []string{"kubernetes"}))
}
