package vectorstore

import (
	"fmt"
	"math"
	"sort"
)

// Search ranks projects by the cosine distance (1 - cosine similarity) of their closest record
// to query. Projects farther than maxDistance are dropped; score is 1 - min(distance, 2)/2.
// A non-positive limit returns every match.
func (s *Store) Search(query []float32, limit int, maxDistance float64) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	if s.dims > 0 && len(query) != s.dims {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(query), s.dims)
	}
	qn := norm(query)
	if qn == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(s.records))
	for key, records := range s.records {
		best := Match{Distance: math.Inf(1)}
		for _, r := range records {
			rn := norm(r.Vector)
			if rn == 0 {
				continue
			}
			d := 1 - dot(query, r.Vector)/(qn*rn)
			if d < best.Distance {
				best = Match{Key: key, Name: r.Name, SearchText: r.SearchText, Distance: d}
			}
		}
		if math.IsInf(best.Distance, 1) || best.Distance > maxDistance {
			continue
		}
		best.Score = 1 - math.Min(math.Max(best.Distance, 0), 2)/2
		matches = append(matches, best)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Key < matches[j].Key
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
