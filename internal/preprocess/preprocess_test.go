package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docengine/itdoc/internal/apperr"
)

func TestPreprocess_NormalizesLineEndingsAndWhitespace(t *testing.T) {
	raw := "line one\r\nline  two\r\nline three\r\n"
	out, err := Preprocess(raw)
	require.NoError(t, err)
	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "  ")
}

func TestPreprocess_EmptyInputIsLowQuality(t *testing.T) {
	_, err := Preprocess("   \n\n  ")
	require.Error(t, err)
	assert.Equal(t, apperr.KindLowQuality, apperr.KindOf(err))
}

func TestPreprocess_DropsRepeatedHeaderFooterLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("Confidential - Internal Use Only\n")
		b.WriteString("Body content section " + string(rune('a'+i)) + " is long enough to survive.\n")
	}
	out, err := Preprocess(b.String())
	require.NoError(t, err)
	assert.NotContains(t, out, "Confidential - Internal Use Only")
	assert.Contains(t, out, "Body content")
}

func TestSegment_TilesWithoutGapsOrOverlap(t *testing.T) {
	text := "Paragraph one has some content.\n\nParagraph two has more content.\n\nParagraph three wraps up."
	segs := Segment(text)
	require.NotEmpty(t, segs)

	if segs[0].Start != 0 {
		t.Fatalf("first segment must start at 0, got %d", segs[0].Start)
	}
	for i := 1; i < len(segs); i++ {
		assert.Equal(t, segs[i-1].End, segs[i].Start, "segments must tile without gaps or overlap")
	}
	assert.Equal(t, len(text), segs[len(segs)-1].End)
}

func TestSegment_NumbersSequentiallyFromOne(t *testing.T) {
	text := "first block\n\nsecond block\n\nthird block"
	segs := Segment(text)
	for i, s := range segs {
		assert.Equal(t, i+1, s.ID)
	}
}

func TestSegment_SplitsLongParagraphsBySentenceBoundary(t *testing.T) {
	sentence := "This is one sentence of moderate length for testing. "
	var b strings.Builder
	for i := 0; i < 80; i++ {
		b.WriteString(sentence)
	}
	segs := Segment(b.String())
	require.Greater(t, len(segs), 1)
	for _, s := range segs {
		assert.LessOrEqual(t, len([]rune(s.Text)), MaxSegmentLength+200)
	}
}

func TestSegment_EmptyTextYieldsNoSegments(t *testing.T) {
	segs := Segment("")
	assert.Empty(t, segs)
}
