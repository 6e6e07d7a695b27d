package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/golovatskygroup/jira-lens/internal/logging"
)

// ErrOversizedInput marks a text that alone exceeds the batch token budget.
var ErrOversizedInput = errors.New("text exceeds embedding token budget")

const (
	DefaultTokenBudget    = 8000
	DefaultMaxBatchInputs = 96
	DefaultConcurrency    = 2
	DefaultQueryCacheSize = 512
)

type AdapterConfig struct {
	TokenBudget    int
	MaxBatchInputs int
	Concurrency    int
	QueryCacheSize int
}

// Adapter batches texts for a Provider. Failures never abort a call: texts whose batch failed
// come back as nil vectors and the failure is reported alongside.
type Adapter struct {
	provider Provider
	cfg      AdapterConfig
	queries  *lru.Cache[string, []float32]
	logger   *slog.Logger

	tokensUsed atomic.Int64
	calls      atomic.Int64
}

func NewAdapter(p Provider, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.MaxBatchInputs <= 0 {
		cfg.MaxBatchInputs = DefaultMaxBatchInputs
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](cfg.QueryCacheSize)
	return &Adapter{
		provider: p,
		cfg:      cfg,
		queries:  cache,
		logger:   logging.OrDiscard(logger),
	}
}

// EstimateTokens approximates the token count of s as ceil(runes/2).
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 1) / 2
}

func (a *Adapter) Model() string { return a.provider.Model() }
func (a *Adapter) Dimensions() int { return a.provider.Dimensions() }

// TokensUsed is the provider-reported token total across all calls.
func (a *Adapter) TokensUsed() int64 { return a.tokensUsed.Load() }

func (a *Adapter) ProviderCalls() int64 { return a.calls.Load() }

type batch struct {
	indexes []int
	texts   []string
}

// batches splits texts into provider calls under the token budget and input cap. Indexes of
// blank or oversized texts are returned separately and never sent.
func (a *Adapter) batches(texts []string) (batches []batch, skipped []int) {
	var cur batch
	curTokens := 0
	flush := func() {
		if len(cur.texts) > 0 {
			batches = append(batches, cur)
		}
		cur = batch{}
		curTokens = 0
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			skipped = append(skipped, i)
			continue
		}
		est := EstimateTokens(t)
		if est > a.cfg.TokenBudget {
			skipped = append(skipped, i)
			continue
		}
		if curTokens+est > a.cfg.TokenBudget || len(cur.texts) >= a.cfg.MaxBatchInputs {
			flush()
		}
		cur.indexes = append(cur.indexes, i)
		cur.texts = append(cur.texts, t)
		curTokens += est
	}
	flush()
	return batches, skipped
}

// Embed returns one vector per text, in order. Blank and oversized texts, and every text of a
// failed batch, get a nil vector. The returned error joins the batch failures and is nil when
// every batch succeeded.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	batches, skipped := a.batches(texts)
	for _, i := range skipped {
		if strings.TrimSpace(texts[i]) != "" {
			a.logger.Warn("embedding input skipped", "reason", ErrOversizedInput, "tokens", EstimateTokens(texts[i]), "budget", a.cfg.TokenBudget)
		}
	}

	var mu sync.Mutex
	var errs []error
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			vecs, err := a.embedBatch(gctx, b.texts)
			if err != nil {
				a.logger.Warn("embedding batch failed", "inputs", len(b.texts), "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			for j, idx := range b.indexes {
				out[idx] = vecs[j]
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errors.Join(errs...)
}

func (a *Adapter) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	a.calls.Add(1)
	resp, err := a.provider.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	a.tokensUsed.Add(int64(resp.TokensUsed))
	if len(resp.Vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrProvider, len(resp.Vectors), len(texts))
	}
	want := a.provider.Dimensions()
	for i, v := range resp.Vectors {
		if v != nil && want > 0 && len(v) != want {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrProvider, i, len(v), want)
		}
	}
	return resp.Vectors, nil
}

// EmbedQuery embeds a single search query, caching results per model and text.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if EstimateTokens(text) > a.cfg.TokenBudget {
		return nil, ErrOversizedInput
	}
	key := a.provider.Model() + "\x00" + text
	if v, ok := a.queries.Get(key); ok {
		return v, nil
	}
	vecs, err := a.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if vecs[0] == nil {
		return nil, fmt.Errorf("%w: empty embedding for query", ErrProvider)
	}
	a.queries.Add(key, vecs[0])
	return vecs[0], nil
}
