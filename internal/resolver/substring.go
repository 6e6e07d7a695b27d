package resolver

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/golovatskygroup/jira-lens/internal/catalog"
)

const (
	pointsKey         = 100
	pointsName        = 60
	pointsDescription = 20
	pointsMax         = pointsKey + pointsName + pointsDescription
)

// substringMatches is the last resort: case-insensitive containment in key, name or description.
// Hits are weighted by field and, within the same weight, ordered by fuzzysearch distance to the
// name so tighter names come first.
func substringMatches(snap *catalog.Snapshot, query string) []Result {
	q := strings.ToLower(query)

	type scored struct {
		res      Result
		points   int
		distance int
	}
	var hits []scored
	for _, p := range snap.Sorted() {
		points := 0
		if strings.Contains(strings.ToLower(p.Key), q) {
			points += pointsKey
		}
		if strings.Contains(strings.ToLower(p.Name), q) {
			points += pointsName
		}
		if p.Description != "" && strings.Contains(strings.ToLower(p.Description), q) {
			points += pointsDescription
		}
		if points == 0 {
			continue
		}
		distance := fuzzy.RankMatchNormalizedFold(query, p.Name)
		if distance < 0 {
			distance = fuzzy.RankMatchNormalizedFold(query, p.Key)
		}
		if distance < 0 {
			distance = len(p.Name) + len(p.Key)
		}
		hits = append(hits, scored{
			res:      Result{Key: p.Key, Name: p.Name, Score: float64(points) / pointsMax, Source: SourceSubstring},
			points:   points,
			distance: distance,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].points != hits[j].points {
			return hits[i].points > hits[j].points
		}
		return hits[i].distance < hits[j].distance
	})

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.res)
	}
	return out
}
