package columns

import (
	"slices"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// indel counts a substitution as a delete plus an insert, which turns the
// levenshtein ratio into the classic sequence-matcher ratio.
var indel = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 2,
	Matches: levenshtein.IdenticalRunes,
}

// Ratio returns the edit-distance similarity of two strings in [0,1].
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return levenshtein.RatioForStrings(ra, rb, indel)
}

// TokenSortRatio compares the strings after sorting their whitespace
// separated tokens, so word order does not matter.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	slices.Sort(tokens)
	return strings.Join(tokens, " ")
}

// PartialRatio scores the shorter string against its best aligned window in
// the longer one.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 1
		}
		return 0
	}

	s := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := Ratio(s, string(long[i:i+len(short)])); r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}

// MatchScore is the score used for column resolution. Substring overlap is
// left out so that short variants such as "amount" do not claim longer
// headers such as "disputed amount".
func MatchScore(header, variant string) float64 {
	return max(Ratio(header, variant), TokenSortRatio(header, variant))
}

// Similarity is the display score: the best of all three metrics.
func Similarity(header, variant string) float64 {
	return max(MatchScore(header, variant), PartialRatio(header, variant))
}
