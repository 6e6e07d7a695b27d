// Package resolver answers project lookups ("aitex", "TECH AI", "*") against the Jira catalog,
// trying the embedding index first and falling back to lexical matching.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/golovatskygroup/jira-lens/internal/catalog"
	"github.com/golovatskygroup/jira-lens/internal/embedding"
	"github.com/golovatskygroup/jira-lens/internal/logging"
	"github.com/golovatskygroup/jira-lens/internal/schedule"
	"github.com/golovatskygroup/jira-lens/internal/similarity"
	"github.com/golovatskygroup/jira-lens/internal/vectorstore"
)

// Wildcard lists every project.
const Wildcard = "*"

const (
	DefaultLimit       = 10
	DefaultMinScore    = 0.33
	DefaultMaxDistance = 0.7
	refreshTimeout     = 10 * time.Minute
)

// Source names the layer that produced a result.
type Source string

const (
	SourceWildcard  Source = "wildcard"
	SourceSemantic  Source = "semantic"
	SourceExact     Source = "exact"
	SourceFuzzy     Source = "fuzzy"
	SourceSubstring Source = "substring"
)

// Result is a ranked project. Score is in [0,1], higher is better.
type Result struct {
	Key    string  `json:"key"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Source Source  `json:"source"`
}

// Match is the externally visible form of a Result.
type Match struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Embedder is the embedding side of the semantic layer.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
	TokensUsed() int64
}

// VectorIndex is the persisted side of the semantic layer.
type VectorIndex interface {
	Replace(deleteKeys []string, records []vectorstore.Record) (int, error)
	Search(query []float32, limit int, maxDistance float64) ([]vectorstore.Match, error)
	Clear() error
	Keys() []string
	Records(key string) []vectorstore.Record
	Len() int
}

type Options struct {
	Catalog   *catalog.Cache
	Scheduler *schedule.Scheduler
	// Embedder and Index enable the semantic layer; leave either nil for lexical-only search.
	Embedder Embedder
	Index    VectorIndex

	DefaultLimit int
	MinScore     float64
	MaxDistance  float64
	Logger       *slog.Logger
}

// Resolver is safe for concurrent use. Build one per process.
type Resolver struct {
	catalog   *catalog.Cache
	scheduler *schedule.Scheduler
	embedder  Embedder
	index     VectorIndex

	defaultLimit int
	minScore     float64
	maxDistance  float64
	logger       *slog.Logger

	refreshGroup singleflight.Group
	refreshMu    sync.Mutex
	lastReport   atomic.Pointer[RefreshReport]

	semanticOff    atomic.Bool
	disabledReason atomic.Pointer[string]

	bgRunning atomic.Bool
	bg        sync.WaitGroup
}

func New(opts Options) (*Resolver, error) {
	if opts.Catalog == nil {
		return nil, errors.New("resolver: catalog is required")
	}
	r := &Resolver{
		catalog:      opts.Catalog,
		scheduler:    opts.Scheduler,
		embedder:     opts.Embedder,
		index:        opts.Index,
		defaultLimit: opts.DefaultLimit,
		minScore:     opts.MinScore,
		maxDistance:  opts.MaxDistance,
		logger:       logging.OrDiscard(opts.Logger),
	}
	if r.scheduler == nil {
		r.scheduler = schedule.New(schedule.DefaultInterval)
	}
	if r.defaultLimit <= 0 {
		r.defaultLimit = DefaultLimit
	}
	if r.minScore <= 0 {
		r.minScore = DefaultMinScore
	}
	if r.maxDistance <= 0 {
		r.maxDistance = DefaultMaxDistance
	}
	return r, nil
}

// SemanticConfigured reports whether an embedder and an index were supplied.
func (r *Resolver) SemanticConfigured() bool {
	return r.embedder != nil && r.index != nil
}

// SemanticActive reports whether queries currently go to the embedding index.
func (r *Resolver) SemanticActive() bool {
	return r.SemanticConfigured() && !r.semanticOff.Load()
}

func (r *Resolver) disableSemantic(reason error) {
	msg := reason.Error()
	r.disabledReason.Store(&msg)
	if r.semanticOff.CompareAndSwap(false, true) {
		r.logger.Warn("semantic search disabled, using lexical matching", "reason", msg)
	}
}

func (r *Resolver) enableSemantic() {
	if r.semanticOff.CompareAndSwap(true, false) {
		r.disabledReason.Store(nil)
		r.logger.Info("semantic search re-enabled")
	}
}

// Find is Search with scores stripped.
func (r *Resolver) Find(ctx context.Context, query string, limit int) ([]Match, error) {
	results, err := r.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(results))
	for _, res := range results {
		out = append(out, Match{Key: res.Key, Name: res.Name})
	}
	return out, nil
}

// Search resolves query to at most limit projects (the default limit when limit <= 0).
// A blank query yields no results. An error is returned only when no catalog data is
// available at all.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = r.defaultLimit
	}

	snap, err := r.catalog.Get(ctx)
	if err != nil {
		if snap == nil {
			if query != Wildcard && r.SemanticActive() && r.index.Len() > 0 {
				r.logger.Warn("catalog unavailable, answering from the embedding index only", "error", err)
				if res, ok := r.searchSemantic(ctx, nil, query, limit); ok {
					return res, nil
				}
			}
			return nil, err
		}
		r.logger.Warn("catalog refresh failed, serving stale projects", "error", err, "fetched_at", snap.FetchedAt)
	}

	if query == Wildcard {
		return wildcard(snap, limit), nil
	}

	if r.SemanticActive() {
		r.ensureIndex(ctx)
		if res, ok := r.searchSemantic(ctx, snap, query, limit); ok {
			return res, nil
		}
	}
	return r.searchLexical(snap, query, limit), nil
}

func wildcard(snap *catalog.Snapshot, limit int) []Result {
	projects := snap.Sorted()
	if len(projects) > limit {
		projects = projects[:limit]
	}
	out := make([]Result, 0, len(projects))
	for _, p := range projects {
		out = append(out, Result{Key: p.Key, Name: p.Name, Score: 1, Source: SourceWildcard})
	}
	return out
}

// ensureIndex builds an empty index synchronously and refreshes a populated but stale one in
// the background.
func (r *Resolver) ensureIndex(ctx context.Context) {
	if r.index.Len() == 0 {
		if _, err := r.Refresh(ctx, false); err != nil {
			r.logger.Warn("index build failed", "error", err)
		}
		return
	}
	if !r.scheduler.ShouldUpdate() || !r.bgRunning.CompareAndSwap(false, true) {
		return
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		defer r.bgRunning.Store(false)
		if _, err := r.Refresh(context.WithoutCancel(ctx), false); err != nil {
			r.logger.Warn("background index refresh failed", "error", err)
		}
	}()
}

// searchSemantic returns ok=false when the lexical path should answer instead, including
// while the index holds nothing to compare against.
func (r *Resolver) searchSemantic(ctx context.Context, snap *catalog.Snapshot, query string, limit int) ([]Result, bool) {
	if !r.SemanticActive() || r.index.Len() == 0 {
		return nil, false
	}
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if errors.Is(err, embedding.ErrOversizedInput) {
			return nil, false
		}
		r.disableSemantic(err)
		return nil, false
	}
	if vec == nil {
		return nil, false
	}

	// Ask for extra rows so that projects missing from the catalog can be dropped.
	want := limit
	if snap != nil {
		want = limit * 2
	}
	matches, err := r.index.Search(vec, want, r.maxDistance)
	if err != nil {
		r.disableSemantic(err)
		return nil, false
	}

	out := make([]Result, 0, min(len(matches), limit))
	for _, m := range matches {
		name := m.Name
		if snap != nil {
			p, ok := snap.Projects[m.Key]
			if !ok {
				continue
			}
			name = p.Name
		}
		out = append(out, Result{Key: m.Key, Name: name, Score: m.Score, Source: SourceSemantic})
		if len(out) == limit {
			break
		}
	}
	return out, true
}

func (r *Resolver) searchLexical(snap *catalog.Snapshot, query string, limit int) []Result {
	keys := snap.Keys()

	var exact []Result
	for _, k := range keys {
		for _, v := range snap.Variants[k] {
			if strings.EqualFold(v, query) {
				exact = append(exact, Result{Key: k, Name: snap.Projects[k].Name, Score: 1, Source: SourceExact})
				break
			}
		}
	}
	if len(exact) > 0 {
		return truncate(exact, limit)
	}

	var fuzzy []Result
	for _, k := range keys {
		best := 0.0
		for _, v := range snap.Variants[k] {
			if s := similarity.PhraseSimilarity(query, v); s > best {
				best = s
			}
		}
		if best > r.minScore {
			fuzzy = append(fuzzy, Result{Key: k, Name: snap.Projects[k].Name, Score: best, Source: SourceFuzzy})
		}
	}
	if len(fuzzy) > 0 {
		sortResults(fuzzy)
		return truncate(fuzzy, limit)
	}

	return truncate(substringMatches(snap, query), limit)
}

func sortResults(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return rs[i].Key < rs[j].Key
	})
}

func truncate(rs []Result, limit int) []Result {
	if limit > 0 && len(rs) > limit {
		return rs[:limit]
	}
	return rs
}
