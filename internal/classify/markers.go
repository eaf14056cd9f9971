package classify

import "regexp"

// Marker patterns drive the rule-based detection scores. Density (matches
// per 1000 characters) is the raw signal; ruleScores normalizes it.
var (
	qaMarkerRe = regexp.MustCompile(`(?i)\b(q:|a:|question|answer|faq|how do i|what is|why does|troubleshoot|issue:|symptom|resolution)\b`)

	systemMarkerRe = regexp.MustCompile(`(?i)\b(architecture|component|deployment|service|cluster|node|topology|infrastructure|pipeline|container|endpoint|configuration)\b`)

	learningMarkerRe = regexp.MustCompile(`(?i)\b(tutorial|guide|how[- ]to|step \d|walkthrough|lesson|exercise|learn|introduction to|getting started)\b`)
)

const densityScale = 1000.0

func density(re *regexp.Regexp, text string) float64 {
	if len(text) == 0 {
		return 0
	}
	n := len(re.FindAllStringIndex(text, -1))
	return float64(n) * densityScale / float64(len(text))
}
