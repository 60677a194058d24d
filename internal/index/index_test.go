package index

import (
	"context"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/etoslabs/memvault/internal/record"
)

const fp = "stub/test-model"

func newTestIndex(t *testing.T) (*Index, *record.Store) {
	t.Helper()
	db, err := record.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	records, err := record.NewStore(db)
	if err != nil {
		t.Fatalf("record store: %v", err)
	}
	ix, err := New(db)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	return ix, records
}

func addRecord(t *testing.T, records *record.Store, content string) string {
	t.Helper()
	rec, err := records.Add(context.Background(), content)
	if err != nil {
		t.Fatalf("add record: %v", err)
	}
	return rec.ID
}

func TestEncodingRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75, 0}
	got, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(vec, got) {
		t.Errorf("round trip mismatch: %v != %v", vec, got)
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestInsertChunks_ReplacesExisting(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)
	id := addRecord(t, records, "memory")

	err := ix.InsertChunks(ctx, id, fp, []Entry{
		{Seq: 0, Vector: []float32{1, 0}},
		{Seq: 1, Vector: []float32{0, 1}},
		{Seq: 2, Vector: []float32{1, 1}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Re-index with fewer chunks; the old set must be fully replaced.
	err = ix.InsertChunks(ctx, id, fp, []Entry{{Seq: 0, Vector: []float32{0.5, 0.5}}})
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}

	keys, err := ix.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	want := []Key{{MemoryID: id, Seq: 0}}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}
}

func TestInsertChunks_EmptySetDeletes(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)
	id := addRecord(t, records, "memory")

	ix.InsertChunks(ctx, id, fp, []Entry{{Seq: 0, Vector: []float32{1, 0}}})
	if err := ix.InsertChunks(ctx, id, fp, nil); err != nil {
		t.Fatalf("empty insert: %v", err)
	}
	n, _ := ix.Count(ctx)
	if n != 0 {
		t.Errorf("expected empty index, got %d entries", n)
	}
}

func TestInsertChunks_RejectsMixedDimensions(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)
	id := addRecord(t, records, "memory")

	err := ix.InsertChunks(ctx, id, fp, []Entry{
		{Seq: 0, Vector: []float32{1, 0}},
		{Seq: 1, Vector: []float32{1, 0, 0}},
	})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestDeleteMemory(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)
	a := addRecord(t, records, "a")
	b := addRecord(t, records, "b")

	ix.InsertChunks(ctx, a, fp, []Entry{{Seq: 0, Vector: []float32{1, 0}}})
	ix.InsertChunks(ctx, b, fp, []Entry{{Seq: 0, Vector: []float32{0, 1}}})

	if err := ix.DeleteMemory(ctx, a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	keys, _ := ix.Keys(ctx)
	if len(keys) != 1 || keys[0].MemoryID != b {
		t.Errorf("expected only %s left, got %v", b, keys)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)
	a := addRecord(t, records, "a")

	ix.InsertChunks(ctx, a, fp, []Entry{{Seq: 0, Vector: []float32{1, 0}}, {Seq: 1, Vector: []float32{0, 1}}})
	if err := ix.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ := ix.Count(ctx)
	if n != 0 {
		t.Errorf("expected 0 entries after clear, got %d", n)
	}
}

func TestSearch_RanksAndAggregates(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)
	a := addRecord(t, records, "about food")
	b := addRecord(t, records, "about cities")

	// Memory a has two chunks; its best chunk should determine its rank.
	ix.InsertChunks(ctx, a, fp, []Entry{
		{Seq: 0, Vector: []float32{0, 1, 0}},
		{Seq: 1, Vector: []float32{0.9, 0.1, 0}},
	})
	ix.InsertChunks(ctx, b, fp, []Entry{
		{Seq: 0, Vector: []float32{0.5, 0.5, 0}},
	})

	hits, err := ix.Search(ctx, []float32{1, 0, 0}, 10, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].MemoryID != a {
		t.Errorf("expected %s ranked first by its best chunk, got %s", a, hits[0].MemoryID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("expected descending scores, got %v", hits)
	}
}

func TestSearch_ExcludesArchived(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)
	a := addRecord(t, records, "archived one")
	b := addRecord(t, records, "active one")

	// The archived memory matches the query perfectly.
	ix.InsertChunks(ctx, a, fp, []Entry{{Seq: 0, Vector: []float32{1, 0}}})
	ix.InsertChunks(ctx, b, fp, []Entry{{Seq: 0, Vector: []float32{0.7, 0.7}}})
	if err := records.SetArchived(ctx, a, true); err != nil {
		t.Fatalf("archive: %v", err)
	}

	hits, err := ix.Search(ctx, []float32{1, 0}, 10, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].MemoryID != b {
		t.Errorf("archived memory leaked into results: %v", hits)
	}

	// Index entries survive archiving; includeArchived surfaces it again.
	hits, err = ix.Search(ctx, []float32{1, 0}, 10, true)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 || hits[0].MemoryID != a {
		t.Errorf("expected archived memory first with includeArchived, got %v", hits)
	}
}

func TestSearch_TopKAndTieBreak(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)

	older := addRecord(t, records, "older")
	newer := addRecord(t, records, "newer")
	other := addRecord(t, records, "other")

	// older and newer tie exactly; newer has the later update timestamp.
	vec := []float32{1, 0}
	ix.InsertChunks(ctx, older, fp, []Entry{{Seq: 0, Vector: vec}})
	ix.InsertChunks(ctx, newer, fp, []Entry{{Seq: 0, Vector: vec}})
	ix.InsertChunks(ctx, other, fp, []Entry{{Seq: 0, Vector: []float32{0, 1}}})
	if err := records.SetArchived(ctx, newer, false); err != nil {
		t.Fatalf("touch: %v", err)
	}

	hits, err := ix.Search(ctx, []float32{1, 0}, 2, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected top-2, got %d", len(hits))
	}
	if hits[0].MemoryID != newer {
		t.Errorf("tie should break toward the more recent record, got %s first", hits[0].MemoryID)
	}
	if math.Abs(hits[0].Score-hits[1].Score) > 1e-9 {
		t.Errorf("expected exact tie, got %v vs %v", hits[0].Score, hits[1].Score)
	}
}

func TestFingerprints(t *testing.T) {
	ctx := context.Background()
	ix, records := newTestIndex(t)
	a := addRecord(t, records, "a")
	b := addRecord(t, records, "b")

	ix.InsertChunks(ctx, a, "stub/old", []Entry{{Seq: 0, Vector: []float32{1, 0}}})
	ix.InsertChunks(ctx, b, "stub/new", []Entry{{Seq: 0, Vector: []float32{0, 1}}, {Seq: 1, Vector: []float32{1, 1}}})

	fps, err := ix.Fingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	if len(fps) != 2 || fps["stub/old"] != 1 || fps["stub/new"] != 2 {
		t.Errorf("unexpected fingerprint counts: %v", fps)
	}
}
