package similarity

import "strings"

// DefaultThreshold is the score at or above which two phrases are considered close.
const DefaultThreshold = 0.72

const (
	compactWeight = 0.6
	tokenWeight   = 0.4
	compactFloor  = 0.9
)

// TokenSimilarity aligns two token sequences with a weighted longest-common-subsequence over
// the pairwise CharSimilarity matrix and normalizes by the longer sequence. Tokens that appear
// in the same relative order score higher than permuted or missing ones.
func TokenSimilarity(a, b []string) float64 {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return 1
	}
	if n == 0 || m == 0 {
		return 0
	}

	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			dp[i][j] = max(dp[i-1][j], dp[i][j-1], dp[i-1][j-1]+CharSimilarity(a[i-1], b[j-1]))
		}
	}
	return dp[n][m] / float64(max(n, m))
}

// PhraseSimilarity scores a and b in [0,1]. The compact (space-free) similarity carries most of
// the weight and also acts as a floor, so a strong merged-text match is never dragged down by
// token fragmentation.
func PhraseSimilarity(a, b string) float64 {
	ta, ca := Normalize(a)
	tb, cb := Normalize(b)

	compact := compactSimilarity(ca, cb)
	combo := compactWeight*compact + tokenWeight*TokenSimilarity(ta, tb)
	return max(combo, compact*compactFloor)
}

// compactSimilarity also compares phonetically folded forms when exactly one side is spelled
// with "x", so that "aitex" matches "aitech" and "aitekh". Pairs without an "x" on one side
// are compared as written.
func compactSimilarity(a, b string) float64 {
	plain := CharSimilarity(a, b)
	if plain == 1 || strings.Contains(a, "x") == strings.Contains(b, "x") {
		return plain
	}
	return max(plain, CharSimilarity(foldPhonetic(a), foldPhonetic(b)))
}

// IsClose reports whether PhraseSimilarity(a, b) reaches threshold.
// A non-positive threshold selects DefaultThreshold.
func IsClose(a, b string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return PhraseSimilarity(a, b) >= threshold
}
