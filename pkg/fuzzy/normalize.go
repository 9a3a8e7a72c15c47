// Package fuzzy provides name folding and similarity scoring for spoken artist names.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// FoldKey lower-cases a name, strips diacritics and collapses whitespace so it can be
// used as a lookup key. Punctuation is preserved ("ac/dc" and "acdc" stay distinct).
func FoldKey(name string) string {
	name = norm.NFKD.String(name)

	var result strings.Builder
	for _, r := range name {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}

	folded := whitespaceRegex.ReplaceAllString(result.String(), " ")
	return strings.ToLower(strings.TrimSpace(folded))
}

// Ratio returns the Ratcliff/Obershelp similarity of a and b in [0, 1]: twice the number of
// matched runes divided by the total number of runes. Comparison is case-sensitive.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}

	return 2.0 * float64(matchingRunes(ra, rb, 0, len(ra), 0, len(rb))) / float64(total)
}

// BestMatch returns the candidate with the highest Ratio against name. Ties keep the
// earliest candidate. ok is false when candidates is empty.
func BestMatch(name string, candidates []string) (best string, score float64, ok bool) {
	for _, candidate := range candidates {
		if r := Ratio(name, candidate); !ok || r > score {
			best, score, ok = candidate, r, true
		}
	}
	return best, score, ok
}

// matchingRunes counts the runes in the matching blocks of a[alo:ahi] and b[blo:bhi]: the
// longest common block, then recursively the regions left and right of it.
func matchingRunes(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, k := longestMatch(a, b, alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}

	count := k
	if alo < i && blo < j {
		count += matchingRunes(a, b, alo, i, blo, j)
	}
	if i+k < ahi && j+k < bhi {
		count += matchingRunes(a, b, i+k, ahi, j+k, bhi)
	}
	return count
}

// longestMatch finds the longest common block. Ties resolve to the block starting earliest
// in a, then earliest in b.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo

	// prev[j+1] is the length of the match ending at a[i-1], b[j].
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				curr[j+1] = 0
				continue
			}
			k := prev[j] + 1
			curr[j+1] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, curr = curr, prev
		clear(curr)
	}

	return besti, bestj, bestk
}
