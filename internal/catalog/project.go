// Package catalog holds the project catalog fetched from Jira and the lexical variants derived
// from each project.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/golovatskygroup/jira-lens/internal/translit"
)

// Project is one entry of the upstream catalog, unique by Key.
type Project struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// VariantSet lists the strings a project can be matched by. It has no duplicates.
type VariantSet []string

// BuildVariants derives the match candidates of p: key and name as given, their lowercase forms,
// both transliterations with lower and upper case forms, and the description when present.
func BuildVariants(p Project) VariantSet {
	var out VariantSet
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, base := range []string{p.Key, p.Name} {
		add(base)
		add(strings.ToLower(base))
	}
	for _, base := range []string{p.Name, p.Key} {
		for _, tr := range []string{translit.ToCyrillic(base), translit.ToLatin(base)} {
			if tr == base {
				continue
			}
			add(tr)
			add(strings.ToLower(tr))
			add(strings.ToUpper(tr))
		}
	}
	add(p.Description)
	return out
}

// Snapshot is one complete, immutable view of the catalog. Callers must not modify it.
type Snapshot struct {
	FetchedAt time.Time
	ExpiresAt time.Time
	Projects  map[string]Project
	Variants  map[string]VariantSet

	keys       []string
	generation uint64
}

func newSnapshot(projects []Project, fetchedAt time.Time, ttl time.Duration, generation uint64) *Snapshot {
	s := &Snapshot{
		FetchedAt:  fetchedAt,
		ExpiresAt:  fetchedAt.Add(ttl),
		Projects:   make(map[string]Project, len(projects)),
		Variants:   make(map[string]VariantSet, len(projects)),
		generation: generation,
	}
	for _, p := range projects {
		p.Key = strings.TrimSpace(p.Key)
		if p.Key == "" {
			continue
		}
		p.Name = strings.TrimSpace(p.Name)
		p.Description = strings.TrimSpace(p.Description)
		s.Projects[p.Key] = p
	}
	s.keys = make([]string, 0, len(s.Projects))
	for k, p := range s.Projects {
		s.keys = append(s.keys, k)
		s.Variants[k] = BuildVariants(p)
	}
	sort.Strings(s.keys)
	return s
}

// Keys returns the project keys in ascending order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.keys...)
}

// Sorted returns all projects ordered by key.
func (s *Snapshot) Sorted() []Project {
	if s == nil {
		return nil
	}
	out := make([]Project, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.Projects[k])
	}
	return out
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Projects)
}

// Expired reports whether the snapshot's TTL has passed at now.
func (s *Snapshot) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}
