// Package reconcile keeps the vector index consistent with the memory
// record collection.
//
// The engine runs at most one job at a time. A full rebuild clears the index
// and re-embeds every record; a reconcile pass touches only records that are
// unembedded, failed, or embedded under a stale model fingerprint. Records
// are processed one at a time in ascending id order, so progress counters
// and the "currently processing" preview are reproducible across runs.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/etoslabs/memvault/internal/chunker"
	"github.com/etoslabs/memvault/internal/embedding"
	"github.com/etoslabs/memvault/internal/index"
	"github.com/etoslabs/memvault/internal/model"
	"github.com/etoslabs/memvault/internal/record"
)

// ErrBusy is returned when a trigger arrives while a job is running. This is
// a single-flight guard, not a queue: the caller retries after the current
// job reaches a terminal phase.
var ErrBusy = errors.New("a reconciliation job is already running")

const (
	previewLen      = 80
	excerptLen      = 120
	progressBufSize = 64
)

// ProgressUpdate is published to subscribers after every processed memory
// and on every phase change.
type ProgressUpdate struct {
	JobID       string         `json:"job_id"`
	Kind        model.JobKind  `json:"kind"`
	Phase       model.JobPhase `json:"phase"`
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	CurrentItem string         `json:"current_item,omitempty"`
	Err         string         `json:"error,omitempty"`
}

// Engine owns the single-flight reconciliation job.
type Engine struct {
	records  *record.Store
	idx      *index.Index
	provider func() embedding.Provider
	opts     chunker.Options
	log      *slog.Logger

	mu     sync.Mutex
	job    *model.Job
	cancel chan struct{}
	subs   []chan ProgressUpdate
}

// New creates an engine. The provider accessor is called at job start so a
// model switch between jobs is always picked up; it may return nil when no
// model is selected.
func New(records *record.Store, idx *index.Index, provider func() embedding.Provider, opts chunker.Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if opts.TargetSize == 0 {
		opts = chunker.DefaultOptions()
	}
	return &Engine{
		records:  records,
		idx:      idx,
		provider: provider,
		opts:     opts,
		log:      log,
	}
}

// Subscribe returns a channel of progress updates. Updates are dropped for
// slow subscribers rather than blocking the job.
func (e *Engine) Subscribe() <-chan ProgressUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan ProgressUpdate, progressBufSize)
	e.subs = append(e.subs, ch)
	return ch
}

// TriggerFullRebuild starts a full rebuild, or returns ErrBusy.
func (e *Engine) TriggerFullRebuild(ctx context.Context) error {
	return e.trigger(ctx, model.JobFullRebuild)
}

// TriggerReconcile starts an incremental reconcile pass, or returns ErrBusy.
func (e *Engine) TriggerReconcile(ctx context.Context) error {
	return e.trigger(ctx, model.JobReconcilePending)
}

func (e *Engine) trigger(ctx context.Context, kind model.JobKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job != nil && e.job.Phase == model.JobRunning {
		return ErrBusy
	}
	// A new trigger after a terminal phase replaces the old job.
	e.job = &model.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Phase:     model.JobRunning,
		StartedAt: time.Now().UTC(),
	}
	e.cancel = make(chan struct{})
	go e.run(ctx, kind, e.cancel)
	return nil
}

// Cancel requests cancellation of the running job between items. Returns
// false when no job is running.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil || e.job.Phase != model.JobRunning || e.cancel == nil {
		return false
	}
	select {
	case <-e.cancel:
	default:
		close(e.cancel)
	}
	return true
}

// Snapshot returns a copy of the current job state, false when idle.
func (e *Engine) Snapshot() (model.Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil {
		return model.Job{}, false
	}
	return *e.job, true
}

// Busy reports whether a job is running.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job != nil && e.job.Phase == model.JobRunning
}

// Acknowledge tears down a terminal job, returning the engine to idle.
// Returns false when there is nothing to acknowledge.
func (e *Engine) Acknowledge() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil || !e.job.Terminal() {
		return false
	}
	e.job = nil
	e.cancel = nil
	return true
}

// HasPendingWork reports whether a reconcile pass would find records to
// process under the currently selected model. False when no model is set.
func (e *Engine) HasPendingWork(ctx context.Context) (bool, error) {
	p := e.provider()
	if p == nil {
		return false, nil
	}
	n, err := e.records.CountStale(ctx, p.Fingerprint())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *Engine) run(ctx context.Context, kind model.JobKind, cancel chan struct{}) {
	provider := e.provider()
	if provider == nil {
		e.fail(embedding.ErrNoModel.Error())
		return
	}
	fingerprint := provider.Fingerprint()

	// Archived records are included: they keep their embeddings so a
	// restore needs no recomputation.
	all, err := e.records.List(ctx, record.ListParams{IncludeArchived: true})
	if err != nil {
		e.fail(fmt.Sprintf("list memories: %v", err))
		return
	}

	var selected []model.MemoryRecord
	switch kind {
	case model.JobFullRebuild:
		if err := e.idx.ClearAll(ctx); err != nil {
			e.fail(fmt.Sprintf("clear index: %v", err))
			return
		}
		selected = all
	case model.JobReconcilePending:
		for _, r := range all {
			if stale(r, fingerprint) {
				selected = append(selected, r)
			}
		}
	}

	e.update(func(j *model.Job) { j.Total = len(selected) })
	e.log.Info("reconciliation started",
		"kind", string(kind), "total", len(selected), "fingerprint", fingerprint)

	var processed, chunkTotal int
	for _, rec := range selected {
		select {
		case <-cancel:
			e.fail("cancelled by caller")
			return
		default:
		}

		e.update(func(j *model.Job) { j.CurrentItem = preview(rec.Content, previewLen) })

		n, err := e.processOne(ctx, provider, fingerprint, rec)
		if err != nil {
			// Index write failures are fatal; writes are atomic per
			// memory, so everything before this job item stays intact.
			e.fail(err.Error())
			return
		}
		processed++
		chunkTotal += n
		e.update(func(j *model.Job) {
			j.Processed = processed
			j.CurrentItem = ""
		})
	}

	now := time.Now().UTC()
	e.update(func(j *model.Job) {
		j.Phase = model.JobCompleted
		j.Summary = &model.JobSummary{Processed: processed, Chunks: chunkTotal}
		j.FinishedAt = &now
	})
	e.log.Info("reconciliation completed", "kind", string(kind),
		"processed", processed, "chunks", chunkTotal)
}

// processOne chunks, embeds and indexes a single record. Embedding failures
// are recorded on the record and do not abort the job; index write failures
// are returned and fail the job.
func (e *Engine) processOne(ctx context.Context, provider embedding.Provider, fingerprint string, rec model.MemoryRecord) (int, error) {
	texts := chunker.Chunk(rec.Content, e.opts)

	entries := make([]index.Entry, 0, len(texts))
	for seq, text := range texts {
		vec, err := provider.Embed(ctx, text)
		if err != nil {
			if errors.Is(err, embedding.ErrNoModel) {
				return 0, err
			}
			e.log.Warn("embedding failed", "memory_id", rec.ID, "chunk", seq, "err", err)
			// Drop any vectors computed from earlier content; a failed
			// record must not be retrievable on the strength of text it
			// no longer contains.
			if derr := e.idx.DeleteMemory(ctx, rec.ID); derr != nil {
				return 0, fmt.Errorf("drop vectors %s: %w", rec.ID, derr)
			}
			if serr := e.records.UpdateStatus(ctx, rec.ID, model.EmbedFailed(err.Error())); serr != nil && !errors.Is(serr, record.ErrNotFound) {
				return 0, fmt.Errorf("mark failed %s: %w", rec.ID, serr)
			}
			return 0, nil
		}
		entries = append(entries, index.Entry{Seq: seq, Vector: vec, Excerpt: preview(text, excerptLen)})
	}

	// Empty content yields zero chunks: a valid terminal state. The
	// empty insert clears any entries left from previous content.
	if err := e.idx.InsertChunks(ctx, rec.ID, fingerprint, entries); err != nil {
		return 0, fmt.Errorf("index %s: %w", rec.ID, err)
	}

	err := e.records.UpdateStatus(ctx, rec.ID, model.Embedded(len(entries), fingerprint))
	if errors.Is(err, record.ErrNotFound) {
		// Record vanished mid-job; drop its chunks and move on.
		if derr := e.idx.DeleteMemory(ctx, rec.ID); derr != nil {
			return 0, fmt.Errorf("cleanup vanished %s: %w", rec.ID, derr)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("update status %s: %w", rec.ID, err)
	}
	return len(entries), nil
}

func stale(r model.MemoryRecord, fingerprint string) bool {
	return r.Embedding.State != model.EmbedStateEmbedded || r.Embedding.Fingerprint != fingerprint
}

func (e *Engine) fail(reason string) {
	now := time.Now().UTC()
	e.update(func(j *model.Job) {
		j.Phase = model.JobFailed
		j.Err = reason
		j.CurrentItem = ""
		j.FinishedAt = &now
	})
	e.log.Warn("reconciliation failed", "reason", reason)
}

// update mutates the job under the lock and publishes the new state.
func (e *Engine) update(fn func(*model.Job)) {
	e.mu.Lock()
	if e.job == nil {
		e.mu.Unlock()
		return
	}
	fn(e.job)
	u := ProgressUpdate{
		JobID:       e.job.ID,
		Kind:        e.job.Kind,
		Phase:       e.job.Phase,
		Total:       e.job.Total,
		Processed:   e.job.Processed,
		CurrentItem: e.job.CurrentItem,
		Err:         e.job.Err,
	}
	subs := e.subs
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- u:
		default: // drop for slow subscribers
		}
	}
}

// preview truncates text to a short single-line excerpt, cutting only on
// rune boundaries.
func preview(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
