// Package record provides the memory record collection backed by SQLite.
//
// Records own content, the archived flag, and timestamps. The embedding
// pipeline only ever writes the derived embedding status columns; content is
// mutated exclusively through Add and UpdateContent.
package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/etoslabs/memvault/internal/model"
)

// ErrNotFound is returned when a record id resolves to nothing, typically
// because the record was deleted concurrently.
var ErrNotFound = errors.New("memory record not found")

// Open opens or creates the memvault database at the given path.
// Records and vectors share one file so per-memory index replacement can be
// transactional across both tables.
func Open(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

// DeleteHook is invoked after a record is removed, so derived state (vector
// index entries) can be cleaned up.
type DeleteHook func(ctx context.Context, memoryID string) error

// Store implements the memory record collection.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	entropy  *ulid.MonotonicEntropy
	onDelete []DeleteHook
}

// NewStore creates the record store and applies its schema.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db: db,
		// Monotonic entropy keeps IDs strictly increasing even within one
		// millisecond, so ascending-id order is creation order.
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate records: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		content           TEXT NOT NULL,
		archived          INTEGER NOT NULL DEFAULT 0,
		embed_state       TEXT NOT NULL DEFAULT 'unembedded',
		embed_chunks      INTEGER NOT NULL DEFAULT 0,
		embed_fingerprint TEXT NOT NULL DEFAULT '',
		embed_reason      TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(archived);
	CREATE INDEX IF NOT EXISTS idx_memories_embed_state ON memories(embed_state, embed_fingerprint);
	CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories(updated_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// OnDelete registers a hook fired after every successful Delete.
func (s *Store) OnDelete(hook DeleteHook) {
	s.onDelete = append(s.onDelete, hook)
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Add stores a new memory record in the unembedded state.
func (s *Store) Add(ctx context.Context, content string) (*model.MemoryRecord, error) {
	now := time.Now().UTC()
	rec := &model.MemoryRecord{
		ID:        s.newID(),
		Content:   content,
		Embedding: model.Unembedded(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, content, archived, embed_state, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?)`,
		rec.ID, rec.Content, string(rec.Embedding.State),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return rec, nil
}

// Get retrieves a record by id.
func (s *Store) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, archived, embed_state, embed_chunks, embed_fingerprint, embed_reason, created_at, updated_at
		 FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListParams holds filters for List.
type ListParams struct {
	IncludeArchived bool
	// Recent orders by most recent update first; the default is ascending
	// id order, which for ULIDs is creation order and gives reconciliation
	// jobs a reproducible processing sequence.
	Recent bool
}

// List returns records matching the filters.
func (s *Store) List(ctx context.Context, p ListParams) ([]model.MemoryRecord, error) {
	query := `SELECT id, content, archived, embed_state, embed_chunks, embed_fingerprint, embed_reason, created_at, updated_at
	          FROM memories`
	if !p.IncludeArchived {
		query += ` WHERE archived = 0`
	}
	if p.Recent {
		query += ` ORDER BY updated_at DESC, id DESC`
	} else {
		query += ` ORDER BY id ASC`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// UpdateContent replaces a record's content and resets it to unembedded.
func (s *Store) UpdateContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET content = ?, embed_state = 'unembedded', embed_chunks = 0,
		        embed_fingerprint = '', embed_reason = '', updated_at = ?
		 WHERE id = ?`,
		content, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	return checkAffected(res, id)
}

// SetArchived flips the archived flag. Archiving keeps index entries so a
// restore needs no recomputation.
func (s *Store) SetArchived(ctx context.Context, id string, archived bool) error {
	flag := 0
	if archived {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET archived = ?, updated_at = ? WHERE id = ?`,
		flag, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	return checkAffected(res, id)
}

// UpdateStatus writes the derived embedding status for a record.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.EmbeddingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET embed_state = ?, embed_chunks = ?, embed_fingerprint = ?, embed_reason = ?
		 WHERE id = ?`,
		string(status.State), status.ChunkCount, status.Fingerprint, status.Reason, id)
	if err != nil {
		return err
	}
	return checkAffected(res, id)
}

// Delete removes a record and fires the registered delete hooks.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkAffected(res, id); err != nil {
		return err
	}
	for _, hook := range s.onDelete {
		if err := hook(ctx, id); err != nil {
			return fmt.Errorf("delete hook: %w", err)
		}
	}
	return nil
}

// CountStale counts records needing embedding work under the given model
// fingerprint: unembedded, failed, or embedded under a different model.
func (s *Store) CountStale(ctx context.Context, fingerprint string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories
		 WHERE embed_state != 'embedded' OR embed_fingerprint != ?`,
		fingerprint).Scan(&n)
	return n, err
}

// Stats holds record collection statistics.
type Stats struct {
	Total      int `json:"total"`
	Archived   int `json:"archived"`
	Embedded   int `json:"embedded"`
	Unembedded int `json:"unembedded"`
	Failed     int `json:"failed"`
}

// Stats returns record counts by state.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.Total); err != nil {
		return nil, err
	}
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE archived = 1`).Scan(&st.Archived)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE embed_state = 'embedded'`).Scan(&st.Embedded)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE embed_state = 'unembedded'`).Scan(&st.Unembedded)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE embed_state = 'failed'`).Scan(&st.Failed)
	return st, nil
}

func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*model.MemoryRecord, error) {
	var rec model.MemoryRecord
	var archived int
	var state, createdAt, updatedAt string

	err := row.Scan(&rec.ID, &rec.Content, &archived, &state,
		&rec.Embedding.ChunkCount, &rec.Embedding.Fingerprint, &rec.Embedding.Reason,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Archived = archived != 0
	rec.Embedding.State = model.EmbedState(state)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}
