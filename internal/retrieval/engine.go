// Package retrieval answers memory queries for context injection.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/etoslabs/memvault/internal/embedding"
	"github.com/etoslabs/memvault/internal/index"
	"github.com/etoslabs/memvault/internal/model"
	"github.com/etoslabs/memvault/internal/record"
)

// ErrUnavailable marks a retrieval failure, distinct from an empty result:
// callers decide whether to degrade to no memory context or to propagate.
var ErrUnavailable = errors.New("retrieval unavailable")

// Mode selects the matching strategy.
type Mode string

const (
	// ModeVector embeds the query and searches the vector index.
	ModeVector Mode = "vector"
	// ModeKeyword runs a case-insensitive token-overlap scan over
	// non-archived content, independent of the vector index.
	ModeKeyword Mode = "keyword"
)

// Params configures one retrieval call.
type Params struct {
	Query string
	// TopK caps the number of memories returned. Zero or negative means
	// "inject everything": every non-archived memory's content is
	// returned in recency order, bypassing embedding and search.
	TopK            int
	IncludeArchived bool
	Mode            Mode
}

// Engine retrieves ranked memory content.
type Engine struct {
	records    *record.Store
	idx        *index.Index
	provider   func() embedding.Provider
	reconciler Reconciler
	log        *slog.Logger
}

// Reconciler is the background-repair surface the engine pokes when it
// notices pending embedding work during a retrieval.
type Reconciler interface {
	Busy() bool
	HasPendingWork(ctx context.Context) (bool, error)
	TriggerReconcile(ctx context.Context) error
}

// New creates a retrieval engine. reconciler may be nil to disable the
// automatic reconcile-on-retrieve pass.
func New(records *record.Store, idx *index.Index, provider func() embedding.Provider, reconciler Reconciler, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		records:    records,
		idx:        idx,
		provider:   provider,
		reconciler: reconciler,
		log:        log,
	}
}

// Retrieve returns ranked memory content for the query.
func (e *Engine) Retrieve(ctx context.Context, p Params) ([]string, error) {
	e.maybeReconcile(ctx)

	if p.TopK <= 0 {
		return e.everything(ctx, p.IncludeArchived)
	}
	if p.Mode == ModeKeyword {
		return e.keyword(ctx, p)
	}
	return e.vector(ctx, p)
}

// everything returns all (by default non-archived) memory content in stable
// recency order; the explicit "skip retrieval" mode.
func (e *Engine) everything(ctx context.Context, includeArchived bool) ([]string, error) {
	records, err := e.records.List(ctx, record.ListParams{IncludeArchived: includeArchived, Recent: true})
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Content)
	}
	return out, nil
}

func (e *Engine) vector(ctx context.Context, p Params) ([]string, error) {
	provider := e.provider()
	if provider == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, embedding.ErrNoModel)
	}

	queryVec, err := provider.Embed(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}

	hits, err := e.idx.Search(ctx, queryVec, p.TopK, p.IncludeArchived)
	if err != nil {
		return nil, fmt.Errorf("%w: search index: %v", ErrUnavailable, err)
	}

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		rec, err := e.records.Get(ctx, h.MemoryID)
		if errors.Is(err, record.ErrNotFound) {
			// Deleted concurrently; skip rather than error.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", ErrUnavailable, h.MemoryID, err)
		}
		out = append(out, rec.Content)
	}
	return out, nil
}

func (e *Engine) keyword(ctx context.Context, p Params) ([]string, error) {
	records, err := e.records.List(ctx, record.ListParams{IncludeArchived: p.IncludeArchived, Recent: true})
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	queryTokens := tokenize(p.Query)
	queryLower := strings.ToLower(p.Query)

	type scored struct {
		rec   model.MemoryRecord
		score float64
		pos   int
	}
	var candidates []scored
	for i, r := range records {
		s := keywordScore(r.Content, queryLower, queryTokens)
		if s > 0 {
			candidates = append(candidates, scored{rec: r, score: s, pos: i})
		}
	}

	// Stable recency order from List breaks score ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > p.TopK {
		candidates = candidates[:p.TopK]
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.rec.Content)
	}
	return out, nil
}

// keywordScore is the token-overlap fraction, with a bonus for a whole-query
// substring match.
func keywordScore(content, queryLower string, queryTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	contentLower := strings.ToLower(content)
	contentTokens := map[string]bool{}
	for _, t := range tokenize(content) {
		contentTokens[t] = true
	}

	var overlap int
	for _, t := range queryTokens {
		if contentTokens[t] || strings.Contains(contentLower, t) {
			overlap++
		}
	}
	score := float64(overlap) / float64(len(queryTokens))
	if strings.Contains(contentLower, queryLower) {
		score += 1
	}
	return score
}

// tokenize lowercases and splits on any non-alphanumeric rune.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// maybeReconcile kicks a background reconcile pass when records are pending
// embedding and no job is running. Best effort; losing the ErrBusy race to
// another trigger is fine.
func (e *Engine) maybeReconcile(ctx context.Context) {
	if e.reconciler == nil || e.reconciler.Busy() {
		return
	}
	pending, err := e.reconciler.HasPendingWork(ctx)
	if err != nil {
		e.log.Warn("pending-work check failed", "err", err)
		return
	}
	if !pending {
		return
	}
	if err := e.reconciler.TriggerReconcile(ctx); err != nil {
		// Usually a lost single-flight race; not worth more than a debug line.
		e.log.Debug("auto reconcile not started", "err", err)
	}
}
