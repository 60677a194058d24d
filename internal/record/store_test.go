package record

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/etoslabs/memvault/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s
}

func TestAddAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.Add(ctx, "buys oat milk")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected non-empty ID")
	}
	if rec.Embedding.State != model.EmbedStateUnembedded {
		t.Errorf("expected unembedded state, got %q", rec.Embedding.State)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "buys oat milk" {
		t.Errorf("expected content round-trip, got %q", got.Content)
	}
	if got.Archived {
		t.Error("new record should not be archived")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestList_OrderAndArchiveFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.Add(ctx, "first")
	b, _ := s.Add(ctx, "second")
	c, _ := s.Add(ctx, "third")
	if err := s.SetArchived(ctx, b.ID, true); err != nil {
		t.Fatalf("archive: %v", err)
	}

	all, err := s.List(ctx, ListParams{IncludeArchived: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	// Ascending ULID order is creation order.
	if all[0].ID != a.ID || all[2].ID != c.ID {
		t.Errorf("expected creation order, got %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	active, err := s.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 non-archived records, got %d", len(active))
	}
	for _, r := range active {
		if r.ID == b.ID {
			t.Error("archived record leaked into default list")
		}
	}
}

func TestUpdateContent_ResetsStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, _ := s.Add(ctx, "original")
	if err := s.UpdateStatus(ctx, rec.ID, model.Embedded(2, "stub/m1")); err != nil {
		t.Fatalf("update status: %v", err)
	}

	if err := s.UpdateContent(ctx, rec.ID, "edited"); err != nil {
		t.Fatalf("update content: %v", err)
	}
	got, _ := s.Get(ctx, rec.ID)
	if got.Content != "edited" {
		t.Errorf("expected edited content, got %q", got.Content)
	}
	if got.Embedding.State != model.EmbedStateUnembedded {
		t.Errorf("edit should reset status to unembedded, got %q", got.Embedding.State)
	}
	if got.Embedding.ChunkCount != 0 || got.Embedding.Fingerprint != "" {
		t.Errorf("edit should clear chunk count and fingerprint, got %+v", got.Embedding)
	}
}

func TestUpdateStatus_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, _ := s.Add(ctx, "content")
	if err := s.UpdateStatus(ctx, rec.ID, model.EmbedFailed("rate limited")); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := s.Get(ctx, rec.ID)
	if got.Embedding.State != model.EmbedStateFailed {
		t.Errorf("expected failed state, got %q", got.Embedding.State)
	}
	if got.Embedding.Reason != "rate limited" {
		t.Errorf("expected reason to survive, got %q", got.Embedding.Reason)
	}

	if err := s.UpdateStatus(ctx, "missing", model.Unembedded()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for vanished record, got %v", err)
	}
}

func TestDelete_FiresHook(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var hookIDs []string
	s.OnDelete(func(ctx context.Context, id string) error {
		hookIDs = append(hookIDs, id)
		return nil
	})

	rec, _ := s.Add(ctx, "to delete")
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(hookIDs) != 1 || hookIDs[0] != rec.ID {
		t.Errorf("expected delete hook with %s, got %v", rec.ID, hookIDs)
	}
	if _, err := s.Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected record gone, got %v", err)
	}

	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCountStale(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.Add(ctx, "a")
	b, _ := s.Add(ctx, "b")
	s.Add(ctx, "c")

	s.UpdateStatus(ctx, a.ID, model.Embedded(1, "stub/current"))
	s.UpdateStatus(ctx, b.ID, model.Embedded(1, "stub/old"))

	// c is unembedded, b has a stale fingerprint.
	n, err := s.CountStale(ctx, "stub/current")
	if err != nil {
		t.Fatalf("count stale: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 stale records, got %d", n)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.Add(ctx, "a")
	b, _ := s.Add(ctx, "b")
	s.Add(ctx, "c")
	s.UpdateStatus(ctx, a.ID, model.Embedded(3, "stub/m"))
	s.UpdateStatus(ctx, b.ID, model.EmbedFailed("boom"))
	s.SetArchived(ctx, b.ID, true)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 || st.Archived != 1 || st.Embedded != 1 || st.Unembedded != 1 || st.Failed != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}
