// Package index provides the persistent vector index.
//
// The index maps (memory id, chunk seq) to an embedding vector plus the
// fingerprint of the model that produced it. It lives in the same SQLite
// database as the record collection; chunk replacement for one memory and
// ClearAll each run inside a transaction, so a concurrent search never
// observes a partially written memory or a half-cleared index.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// Entry is one chunk's vector plus metadata.
type Entry struct {
	Seq     int
	Vector  []float32
	Excerpt string
}

// Key identifies a stored chunk.
type Key struct {
	MemoryID string
	Seq      int
}

// Hit is one search result: a memory ranked by its best-matching chunk.
type Hit struct {
	MemoryID string
	Score    float64
}

// Index is the SQLite-backed vector index.
type Index struct {
	db *sql.DB
}

// New creates the index and applies its schema.
func New(db *sql.DB) (*Index, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS vectors (
		memory_id   TEXT NOT NULL,
		chunk_seq   INTEGER NOT NULL,
		vector      BLOB NOT NULL,
		fingerprint TEXT NOT NULL,
		excerpt     TEXT NOT NULL DEFAULT '',
		updated_at  TEXT NOT NULL,
		PRIMARY KEY (memory_id, chunk_seq)
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_fingerprint ON vectors(fingerprint);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate vectors: %w", err)
	}
	return &Index{db: db}, nil
}

// InsertChunks replaces all entries for a memory with the given set in one
// transaction. An empty set just deletes; that is the terminal state for a
// memory whose content has no embeddable text.
func (ix *Index) InsertChunks(ctx context.Context, memoryID, fingerprint string, entries []Entry) error {
	dim := -1
	for _, e := range entries {
		if dim == -1 {
			dim = len(e.Vector)
		}
		if len(e.Vector) == 0 || len(e.Vector) != dim {
			return fmt.Errorf("insert chunks for %s: inconsistent vector dimensions", memoryID)
		}
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE memory_id = ?`, memoryID); err != nil {
		return fmt.Errorf("replace chunks for %s: %w", memoryID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO vectors (memory_id, chunk_seq, vector, fingerprint, excerpt, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			memoryID, e.Seq, encodeVector(e.Vector), fingerprint, e.Excerpt, now)
		if err != nil {
			return fmt.Errorf("insert chunk %s/%d: %w", memoryID, e.Seq, err)
		}
	}

	return tx.Commit()
}

// DeleteMemory removes all entries for a memory. Used on record deletion,
// never on archive.
func (ix *Index) DeleteMemory(ctx context.Context, memoryID string) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM vectors WHERE memory_id = ?`, memoryID)
	return err
}

// ClearAll drops every entry. Only the first step of a full rebuild calls it.
func (ix *Index) ClearAll(ctx context.Context) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM vectors`)
	return err
}

// Search ranks memories by cosine similarity against the query vector. Each
// memory appears at most once, scored by its best-matching chunk; archived
// memories are excluded unless includeArchived is set. Ties break toward the
// more recently updated record. Callers must ensure k > 0.
func (ix *Index) Search(ctx context.Context, queryVec []float32, k int, includeArchived bool) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search: k must be positive, got %d", k)
	}

	query := `
		SELECT v.memory_id, v.vector, m.updated_at
		FROM vectors v
		JOIN memories m ON m.id = v.memory_id`
	if !includeArchived {
		query += ` WHERE m.archived = 0`
	}

	rows, err := ix.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type candidate struct {
		score   float64
		updated time.Time
	}
	best := map[string]candidate{}
	for rows.Next() {
		var memoryID, updatedAt string
		var blob []byte
		if err := rows.Scan(&memoryID, &blob, &updatedAt); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk for %s: %w", memoryID, err)
		}
		score := cosineSimilarity(queryVec, vec)
		if math.IsNaN(score) {
			continue
		}
		updated, _ := time.Parse(time.RFC3339Nano, updatedAt)
		if cur, ok := best[memoryID]; !ok || score > cur.score {
			best[memoryID] = candidate{score: score, updated: updated}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(best))
	order := make(map[string]time.Time, len(best))
	for id, c := range best {
		hits = append(hits, Hit{MemoryID: id, Score: c.score})
		order[id] = c.updated
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			ti, tj := order[hits[i].MemoryID], order[hits[j].MemoryID]
			if ti.Equal(tj) {
				return hits[i].MemoryID > hits[j].MemoryID
			}
			return ti.After(tj)
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Keys returns every (memory id, chunk seq) pair in the index.
func (ix *Index) Keys(ctx context.Context) ([]Key, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT memory_id, chunk_seq FROM vectors ORDER BY memory_id, chunk_seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.MemoryID, &k.Seq); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ChunkVector returns the stored vector and fingerprint for one chunk.
func (ix *Index) ChunkVector(ctx context.Context, memoryID string, seq int) ([]float32, string, error) {
	var blob []byte
	var fingerprint string
	err := ix.db.QueryRowContext(ctx,
		`SELECT vector, fingerprint FROM vectors WHERE memory_id = ? AND chunk_seq = ?`,
		memoryID, seq).Scan(&blob, &fingerprint)
	if err != nil {
		return nil, "", err
	}
	vec, err := decodeVector(blob)
	return vec, fingerprint, err
}

// Count returns the number of stored chunk vectors.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n)
	return n, err
}

// Fingerprints returns vector counts per model fingerprint. More than one
// key means the index holds embeddings from different models and cannot be
// trusted until a full rebuild runs.
func (ix *Index) Fingerprints(ctx context.Context) (map[string]int, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT fingerprint, COUNT(*) FROM vectors GROUP BY fingerprint`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var fp string
		var n int
		if err := rows.Scan(&fp, &n); err != nil {
			return nil, err
		}
		out[fp] = n
	}
	return out, rows.Err()
}
