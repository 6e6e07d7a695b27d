package similarity

import "sync"

// OSADistance returns the optimal string alignment distance between a and b: insertions,
// deletions, substitutions and transpositions of adjacent characters all cost 1, and no
// substring is edited more than once. Runes, not bytes, are compared.
func OSADistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	// Three rolling rows are enough: transposition looks back two rows.
	prev2 := make([]int, m+1)
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}

	for i := 1; i <= n; i++ {
		cur[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d = min(d, prev2[j-2]+1)
			}
			cur[j] = d
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[m]
}

// charMemo caches CharSimilarity per exact (a, b) pair for the lifetime of the process.
// Inputs are short identifiers, so the cache stays small in practice.
var charMemo sync.Map

type pairKey struct{ a, b string }

// CharSimilarity maps the OSA distance onto [0,1]: 1 - d/max(len(a), len(b)).
// Two empty strings are identical (1); exactly one empty string scores 0.
func CharSimilarity(a, b string) float64 {
	if v, ok := charMemo.Load(pairKey{a, b}); ok {
		return v.(float64)
	}
	s := charSimilarity(a, b)
	charMemo.Store(pairKey{a, b}, s)
	return s
}

func charSimilarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	d := OSADistance(a, b)
	s := 1 - float64(d)/float64(max(la, lb))
	if s < 0 {
		return 0
	}
	return s
}
