package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/golovatskygroup/jira-lens/internal/catalog"
	"github.com/golovatskygroup/jira-lens/internal/translit"
	"github.com/golovatskygroup/jira-lens/internal/vectorstore"
)

// RefreshReport describes one index rebuild.
type RefreshReport struct {
	RunID       string        `json:"run_id"`
	Forced      bool          `json:"forced"`
	Skipped     bool          `json:"skipped"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Projects    int           `json:"projects"`
	Embedded    int           `json:"embedded"`
	Unchanged   int           `json:"unchanged"`
	Removed     int           `json:"removed"`
	FailedTexts int           `json:"failed_texts"`
	TokensUsed  int64         `json:"tokens_used"`
	Semantic    bool          `json:"semantic"`
	NextIn      time.Duration `json:"next_refresh_in"`
}

// Refresh rebuilds the project index. Without force it does nothing until the scheduler
// interval has passed since the last successful rebuild. With force the catalog is refetched,
// every project is re-embedded and a disabled semantic layer is re-enabled on success.
// Concurrent calls with the same force value share one run.
func (r *Resolver) Refresh(ctx context.Context, force bool) (RefreshReport, error) {
	key := "refresh"
	if force {
		key = "refresh:force"
	}
	ch := r.refreshGroup.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return r.refresh(rctx, force)
	})
	select {
	case res := <-ch:
		rep, _ := res.Val.(RefreshReport)
		return rep, res.Err
	case <-ctx.Done():
		return RefreshReport{}, ctx.Err()
	}
}

func (r *Resolver) refresh(ctx context.Context, force bool) (RefreshReport, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	rep := RefreshReport{RunID: uuid.NewString(), Forced: force, StartedAt: time.Now()}
	log := r.logger.With("run_id", rep.RunID, "forced", force)
	if !force && !r.scheduler.ShouldUpdate() {
		rep.Skipped = true
		rep.NextIn = r.scheduler.TimeToNextUpdate()
		return rep, nil
	}

	if force {
		r.catalog.Clear()
	}
	snap, err := r.catalog.Get(ctx)
	if err != nil {
		log.Warn("index refresh aborted", "error", err)
		return rep, err
	}
	rep.Projects = snap.Len()

	indexing := r.SemanticConfigured() && (force || !r.semanticOff.Load())
	if indexing {
		if err := r.rebuildIndex(ctx, snap, force, &rep); err != nil {
			r.disableSemantic(err)
			rep.Duration = time.Since(rep.StartedAt)
			r.lastReport.Store(&rep)
			log.Warn("index refresh failed", "error", err)
			return rep, err
		}
		rep.Semantic = true
		if force {
			r.enableSemantic()
		}
	}

	r.scheduler.MarkUpdated()
	rep.Duration = time.Since(rep.StartedAt)
	rep.NextIn = r.scheduler.TimeToNextUpdate()
	r.lastReport.Store(&rep)
	log.Info("index refreshed", "projects", rep.Projects, "embedded", rep.Embedded,
		"unchanged", rep.Unchanged, "removed", rep.Removed, "failed_texts", rep.FailedTexts,
		"duration", rep.Duration)
	return rep, nil
}

func (r *Resolver) rebuildIndex(ctx context.Context, snap *catalog.Snapshot, force bool, rep *RefreshReport) error {
	var vanished []string
	for _, k := range r.index.Keys() {
		if _, ok := snap.Projects[k]; !ok {
			vanished = append(vanished, k)
		}
	}

	type pending struct {
		project catalog.Project
		texts   []string
	}
	var todo []pending
	var texts []string
	for _, p := range snap.Sorted() {
		st := SearchTexts(p)
		if !force && upToDate(r.index.Records(p.Key), p, st) {
			rep.Unchanged++
			continue
		}
		todo = append(todo, pending{project: p, texts: st})
		texts = append(texts, st...)
	}

	tokensBefore := r.embedder.TokensUsed()
	vecs, embedErr := r.embedder.Embed(ctx, texts)
	rep.TokensUsed += r.embedder.TokensUsed() - tokensBefore
	if len(texts) > 0 && countNonNil(vecs) == 0 {
		if embedErr == nil {
			embedErr = errors.New("no embeddings returned")
		}
		return fmt.Errorf("embed project texts: %w", embedErr)
	}

	var records []vectorstore.Record
	var replaced []string
	offset := 0
	now := time.Now()
	for _, t := range todo {
		var recs []vectorstore.Record
		for i, text := range t.texts {
			v := vecs[offset+i]
			if v == nil {
				rep.FailedTexts++
				continue
			}
			recs = append(recs, vectorstore.Record{Key: t.project.Key, Name: t.project.Name, SearchText: text, Vector: v, UpdatedAt: now})
		}
		offset += len(t.texts)
		// Projects with nothing embedded keep their previous records.
		if len(recs) == 0 {
			continue
		}
		replaced = append(replaced, t.project.Key)
		records = append(records, recs...)
		rep.Embedded++
	}

	_, err := r.index.Replace(append(vanished, replaced...), records)
	if errors.Is(err, vectorstore.ErrDimensionMismatch) {
		if !force {
			// Unchanged projects still carry vectors of the old size.
			r.logger.Warn("embedding size changed, re-embedding every project", "error", err)
			rep.Embedded, rep.Unchanged, rep.FailedTexts = 0, 0, 0
			return r.rebuildIndex(ctx, snap, true, rep)
		}
		if err := r.index.Clear(); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		_, err = r.index.Replace(nil, records)
	}
	if err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	rep.Removed = len(vanished)
	return nil
}

func countNonNil(vecs [][]float32) int {
	n := 0
	for _, v := range vecs {
		if v != nil {
			n++
		}
	}
	return n
}

// upToDate reports whether stored holds exactly the search texts of p under its current name.
func upToDate(stored []vectorstore.Record, p catalog.Project, texts []string) bool {
	if len(stored) != len(texts) {
		return false
	}
	have := make([]string, 0, len(stored))
	for _, rec := range stored {
		if rec.Name != p.Name {
			return false
		}
		have = append(have, rec.SearchText)
	}
	want := append([]string(nil), texts...)
	sort.Strings(have)
	sort.Strings(want)
	for i := range have {
		if have[i] != want[i] {
			return false
		}
	}
	return true
}

// SearchTexts lists the texts embedded for p: the name, "KEY name", transliterations of the name
// and the description. Case-insensitive duplicates are dropped.
func SearchTexts(p catalog.Project) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			return
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	name := p.Name
	if name == "" {
		name = p.Key
	}
	add(name)
	add(p.Key + " " + p.Name)
	add(translit.ToLatin(name))
	add(translit.ToCyrillic(name))
	add(p.Description)
	return out
}
