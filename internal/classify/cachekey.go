package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/docengine/itdoc/internal/domain"
)

// CacheKey derives the classifier's cache key from (documentID,
// detectionScores) only. primary_view and enabled_views must never feed
// this — permuting either must not change the key (spec.md §4.5, §8).
func CacheKey(documentID string, scores map[domain.View]float64) string {
	views := make([]string, 0, len(scores))
	for v := range scores {
		views = append(views, string(v))
	}
	sort.Strings(views)

	var b strings.Builder
	b.WriteString(documentID)
	for _, v := range views {
		fmt.Fprintf(&b, "|%s=%.6f", v, scores[domain.View(v)])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
