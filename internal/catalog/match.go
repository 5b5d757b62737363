package catalog

import (
	"regexp"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

var (
	marketingNoiseRx = regexp.MustCompile(`(?i)\s*(season finale|new episodes|original series|tv series|limited series)\s*`)
	parenYearRx      = regexp.MustCompile(`\s*\(\d{4}\)$`)
	bareYearRx       = regexp.MustCompile(`\s+\d{4}$`)
	whitespaceRx     = regexp.MustCompile(`\s+`)
)

// NormalizeTitle lowercases and collapses whitespace. Normalized titles
// are the identity used for cache keys and exact matching.
func NormalizeTitle(title string) string {
	return whitespaceRx.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), " ")
}

// CleanSearchTitle strips marketing suffixes and trailing year tags that
// channel posts append but the catalog search chokes on.
func CleanSearchTitle(title string) string {
	cleaned := marketingNoiseRx.ReplaceAllString(title, " ")
	cleaned = parenYearRx.ReplaceAllString(cleaned, "")
	cleaned = bareYearRx.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(whitespaceRx.ReplaceAllString(cleaned, " "))
}

// bestMatch picks a catalog candidate for a title. An exact
// case-insensitive match always wins; otherwise the best fuzzy similarity
// is accepted only at or above the threshold (0-100). Below-threshold
// candidates are rejected rather than risk attaching the wrong show.
func bestMatch(title string, candidates []searchResult, threshold int) (int64, bool) {
	normalized := NormalizeTitle(title)

	for _, candidate := range candidates {
		if NormalizeTitle(candidate.Name) == normalized {
			return candidate.ID, true
		}
	}

	lev := metrics.NewLevenshtein()
	bestScore := -1.0
	var bestID int64
	for _, candidate := range candidates {
		score := strutil.Similarity(normalized, NormalizeTitle(candidate.Name), lev) * 100
		if score > bestScore {
			bestScore = score
			bestID = candidate.ID
		}
	}

	if bestScore >= float64(threshold) && bestScore >= 0 {
		return bestID, true
	}
	return 0, false
}
