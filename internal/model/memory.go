// Package model defines the core memory data types.
package model

import "time"

// EmbedState describes where a memory sits in the embedding pipeline.
type EmbedState string

const (
	// EmbedStateUnembedded means the record has never been embedded, or its
	// content changed since the last successful embedding.
	EmbedStateUnembedded EmbedState = "unembedded"
	// EmbedStateEmbedded means every chunk of the current content has a
	// vector in the index.
	EmbedStateEmbedded EmbedState = "embedded"
	// EmbedStateFailed means the last embedding attempt for this record failed.
	EmbedStateFailed EmbedState = "failed"
)

// EmbeddingStatus is the derived marker the core maintains on each record.
type EmbeddingStatus struct {
	State       EmbedState `json:"state"`
	ChunkCount  int        `json:"chunk_count,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// Unembedded returns the initial status.
func Unembedded() EmbeddingStatus {
	return EmbeddingStatus{State: EmbedStateUnembedded}
}

// Embedded returns the status of a fully indexed record.
func Embedded(chunkCount int, fingerprint string) EmbeddingStatus {
	return EmbeddingStatus{State: EmbedStateEmbedded, ChunkCount: chunkCount, Fingerprint: fingerprint}
}

// EmbedFailed returns a status carrying the per-record failure reason.
func EmbedFailed(reason string) EmbeddingStatus {
	return EmbeddingStatus{State: EmbedStateFailed, Reason: reason}
}

// MemoryRecord is a stored memory item. The embedding pipeline reads ID,
// Content and Archived, and writes only Embedding; content is never mutated
// by the pipeline.
type MemoryRecord struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Archived  bool            `json:"archived"`
	Embedding EmbeddingStatus `json:"embedding"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobKind selects which reconciliation pass to run.
type JobKind string

const (
	// JobFullRebuild clears the vector index and re-embeds every record.
	JobFullRebuild JobKind = "full_rebuild"
	// JobReconcilePending re-embeds only unembedded, failed, or
	// stale-fingerprint records.
	JobReconcilePending JobKind = "reconcile_pending"
)

// JobPhase is the lifecycle phase of a reconciliation job.
type JobPhase string

const (
	JobRunning   JobPhase = "running"
	JobCompleted JobPhase = "completed"
	JobFailed    JobPhase = "failed"
)

// JobSummary reports what a completed job accomplished.
type JobSummary struct {
	Processed int `json:"processed"`
	Chunks    int `json:"chunks"`
}

// Job is a snapshot of the reconciliation engine's single-flight job.
type Job struct {
	ID          string      `json:"id"`
	Kind        JobKind     `json:"kind"`
	Phase       JobPhase    `json:"phase"`
	Total       int         `json:"total"`
	Processed   int         `json:"processed"`
	CurrentItem string      `json:"current_item,omitempty"`
	Err         string      `json:"error,omitempty"`
	Summary     *JobSummary `json:"summary,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has reached a final phase.
func (j Job) Terminal() bool {
	return j.Phase == JobCompleted || j.Phase == JobFailed
}
