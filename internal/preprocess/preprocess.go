// Package preprocess normalizes extracted text and splits it into stable,
// numbered segments (spec.md §4.3). Both steps are pure functions with no
// I/O; the only failure mode is an empty result, which the caller maps to
// low_quality.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/docengine/itdoc/internal/apperr"
	"github.com/docengine/itdoc/internal/domain"
)

const minLineLength = 3

var (
	controlCharsRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	whitespaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
	blankLinesRunRe = regexp.MustCompile(`\n{3,}`)
)

// Preprocess normalizes raw extracted text: line endings, control
// characters, whitespace runs, repeated header/footer lines, and short
// non-code lines. Returns apperr low_quality if the result is empty.
func Preprocess(raw string) (string, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlCharsRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	lines = dropRepeatedHeadersFooters(lines)
	lines = dropShortNonCodeLines(lines)

	text = strings.Join(lines, "\n")
	text = whitespaceRunRe.ReplaceAllString(text, " ")
	text = blankLinesRunRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if text == "" {
		return "", apperr.New(apperr.KindLowQuality, "preprocess", "preprocessed text is empty")
	}
	return text, nil
}

// dropRepeatedHeadersFooters removes lines that recur often enough across
// the document to look like a page header/footer rather than content.
func dropRepeatedHeadersFooters(lines []string) []string {
	if len(lines) < 8 {
		return lines
	}
	counts := make(map[string]int, len(lines))
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		counts[trimmed]++
	}
	threshold := len(lines) / 10
	if threshold < 3 {
		threshold = 3
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed != "" && counts[trimmed] >= threshold {
			continue
		}
		out = append(out, l)
	}
	return out
}

// dropShortNonCodeLines removes lines shorter than minLineLength unless
// they sit inside a fenced code block (``` ... ```).
func dropShortNonCodeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	inCodeBlock := false
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "```") {
			inCodeBlock = !inCodeBlock
			out = append(out, l)
			continue
		}
		if inCodeBlock || len([]rune(trimmed)) >= minLineLength || trimmed == "" {
			out = append(out, l)
		}
	}
	return out
}

// MaxSegmentLength is the soft ceiling before a segment is split further.
const MaxSegmentLength = 2000

var sentenceBoundaryRe = regexp.MustCompile(`[.!?][\s]+`)

// Segment splits preprocessed text into numbered, position-bounded
// segments. Candidate boundaries are blank lines and Markdown heading
// lines; any candidate exceeding MaxSegmentLength is split further by
// sliding a window over sentence boundaries.
func Segment(text string) []domain.Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	candidates := splitBlocks(text)

	var segments []domain.Segment
	id := 1
	for _, c := range candidates {
		if c.end <= c.start {
			continue
		}
		chunkText := text[c.start:c.end]
		if len([]rune(chunkText)) <= MaxSegmentLength {
			segments = append(segments, domain.Segment{ID: id, Text: chunkText, Start: c.start, End: c.end})
			id++
			continue
		}
		for _, sub := range splitLong(chunkText, c.start) {
			segments = append(segments, domain.Segment{ID: id, Text: text[sub.start:sub.end], Start: sub.start, End: sub.end})
			id++
		}
	}
	return segments
}

type span struct{ start, end int }

// splitBlocks finds blank-line and Markdown heading boundaries,
// returning contiguous, non-overlapping, gap-free spans covering the
// whole input.
func splitBlocks(text string) []span {
	var spans []span
	start := 0
	paraBoundaries := regexp.MustCompile(`\n\s*\n|\n#{1,6}[ \t]`)
	locs := paraBoundaries.FindAllStringIndex(text, -1)
	last := 0
	for _, loc := range locs {
		spans = append(spans, span{start: last, end: loc[0]})
		last = loc[1]
		if text[loc[0]+1] == '#' {
			// A heading line opens a new block at its own '#'.
			last = loc[0] + 1
		}
	}
	spans = append(spans, span{start: last, end: len(text)})
	_ = start
	// Trim leading/trailing whitespace from each span without losing
	// coverage of the overall [0,len(text)] range: extend the previous
	// span's end into any trimmed whitespace so spans still tile without
	// gaps or overlap, per spec.md §8.
	return tileSpans(spans, len(text))
}

// tileSpans ensures consecutive spans cover [0,total] with no gaps/overlap.
func tileSpans(spans []span, total int) []span {
	if len(spans) == 0 {
		return []span{{0, total}}
	}
	out := make([]span, len(spans))
	copy(out, spans)
	for i := 0; i < len(out)-1; i++ {
		out[i].end = out[i+1].start
	}
	out[len(out)-1].end = total
	out[0].start = 0
	return out
}

// splitLong slides a window over sentence boundaries inside a single long
// span, choosing cuts near MaxSegmentLength that minimize
// splitting-across-a-sentence. Lengths are counted in runes; the returned
// spans are byte offsets into the full text, like splitBlocks' spans.
func splitLong(chunk string, offset int) []span {
	runes := []rune(chunk)
	n := len(runes)
	if n <= MaxSegmentLength {
		return []span{{offset, offset + len(chunk)}}
	}

	// byteAt maps a rune index in chunk to its byte offset in chunk.
	byteAt := make([]int, 0, n+1)
	for i := range chunk {
		byteAt = append(byteAt, i)
	}
	byteAt = append(byteAt, len(chunk))

	boundaries := sentenceBoundaryEnds(chunk)

	var spans []span
	cursor := 0
	for cursor < n {
		target := cursor + MaxSegmentLength
		if target >= n {
			spans = append(spans, span{offset + byteAt[cursor], offset + len(chunk)})
			break
		}
		cut := bestCut(boundaries, cursor, target, n)
		spans = append(spans, span{offset + byteAt[cursor], offset + byteAt[cut]})
		cursor = cut
	}
	return spans
}

// sentenceBoundaryEnds returns rune-index positions immediately after a
// sentence-ending punctuation run.
func sentenceBoundaryEnds(chunk string) []int {
	var ends []int
	runes := []rune(chunk)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j > i+1 {
				ends = append(ends, j)
			}
		}
	}
	return ends
}

// bestCut picks the sentence boundary closest to target within
// [cursor, n], falling back to a hard cut at target if none exists.
func bestCut(boundaries []int, cursor, target, n int) int {
	best := -1
	bestDist := n + 1
	for _, b := range boundaries {
		if b <= cursor || b > n {
			continue
		}
		dist := target - b
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			best = b
		}
	}
	if best == -1 || best <= cursor {
		return target
	}
	return best
}
