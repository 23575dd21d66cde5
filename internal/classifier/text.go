package classifier

import (
	"math"
	"regexp"
	"strings"
)

var (
	urlRe     = regexp.MustCompile(`https?://\S+`)
	spaceRe   = regexp.MustCompile(`\s+`)
	bangRe    = regexp.MustCompile(`!{2,}`)
	hashtagRe = regexp.MustCompile(`#(\w+)`)
	mentionRe = regexp.MustCompile(`@(\w+)`)
)

// normalizeText strips URLs, collapses whitespace and runs of "!" and trims.
func normalizeText(text string) string {
	text = urlRe.ReplaceAllString(text, "")
	text = spaceRe.ReplaceAllString(text, " ")
	text = bangRe.ReplaceAllString(text, "!")
	return strings.TrimSpace(text)
}

// extractKeywords returns every dictionary keyword contained in lower, primary
// tier first, in dictionary order.
func extractKeywords(lower string) []string {
	found := make([]string, 0)
	for _, dict := range [][]string{primaryKeywords, secondaryKeywords} {
		for _, kw := range dict {
			if strings.Contains(lower, kw) {
				found = append(found, kw)
			}
		}
	}
	return found
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func countContained(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

func submatches(re *regexp.Regexp, text string) []string {
	out := make([]string, 0)
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// round2 fixes confidences to two decimals so threshold comparisons do not
// depend on float accumulation order.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
