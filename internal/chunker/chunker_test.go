package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk_EmptyInput(t *testing.T) {
	if got := Chunk("", DefaultOptions()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := Chunk("   \n\t\n  ", DefaultOptions()); got != nil {
		t.Errorf("expected nil for whitespace-only input, got %v", got)
	}
}

func TestChunk_ShortContent(t *testing.T) {
	text := "User is allergic to peanuts."
	got := Chunk(text, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0] != text {
		t.Errorf("expected %q, got %q", text, got[0])
	}
}

func TestChunk_Deterministic(t *testing.T) {
	para := strings.Repeat("A fact worth remembering about the user. ", 12)
	text := para + "\n\n" + para + "\n\n" + para

	first := Chunk(text, DefaultOptions())
	second := Chunk(text, DefaultOptions())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("chunking is not deterministic:\n%v\n%v", first, second)
	}
	if len(first) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(first))
	}
}

func TestChunk_RespectsMaxSize(t *testing.T) {
	opts := Options{TargetSize: 200, MaxSize: 300}
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "This is a sentence that is about fifty characters. ")
	}
	got := Chunk(strings.Join(lines, ""), opts)
	if len(got) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(got))
	}
	for i, c := range got {
		if len(c) > opts.MaxSize {
			t.Errorf("chunk %d exceeds max size: %d > %d", i, len(c), opts.MaxSize)
		}
	}
}

func TestChunk_MergesSmallParagraphs(t *testing.T) {
	text := "Likes oat milk.\n\nLives in Berlin.\n\nPrefers morning meetings."
	got := Chunk(text, Options{TargetSize: 400, MaxSize: 600})
	if len(got) != 1 {
		t.Errorf("expected 1 merged chunk, got %d", len(got))
	}
}

func TestChunk_SplitsOnParagraphs(t *testing.T) {
	para := strings.Repeat("This is a sentence. ", 15)
	text := para + "\n\n" + para + "\n\n" + para

	got := Chunk(text, Options{TargetSize: 400, MaxSize: 500})
	if len(got) < 2 {
		t.Fatalf("expected at least 2 chunks from paragraph splits, got %d", len(got))
	}
}

func TestChunk_HardSplitsUnbrokenText(t *testing.T) {
	// A single run with no sentence boundaries at all.
	text := strings.Repeat("x", 1500)
	opts := Options{TargetSize: 400, MaxSize: 600}
	got := Chunk(text, opts)
	if len(got) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(got))
	}
	var total int
	for _, c := range got {
		total += len(c)
	}
	if total != len(text) {
		t.Errorf("hard split lost content: got %d chars, want %d", total, len(text))
	}
}

func TestChunk_HardSplitKeepsRunesIntact(t *testing.T) {
	// CJK text has no ASCII sentence boundaries, so the hard cut does all
	// the work; it must never land inside a multi-byte rune.
	text := strings.Repeat("用户对花生过敏并且住在柏林", 60)
	opts := Options{TargetSize: 400, MaxSize: 600}
	got := Chunk(text, opts)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	var total int
	for i, c := range got {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %.24q", i, c)
		}
		if len(c) > opts.MaxSize {
			t.Errorf("chunk %d exceeds max size: %d > %d", i, len(c), opts.MaxSize)
		}
		total += len(c)
	}
	if total != len(text) {
		t.Errorf("hard split lost content: got %d bytes, want %d", total, len(text))
	}
}

func TestChunk_OrderIsStable(t *testing.T) {
	text := "First paragraph about apples.\n\n" +
		strings.Repeat("Second paragraph about oranges and other citrus fruit. ", 12) +
		"\n\nThird paragraph about pears."
	got := Chunk(text, Options{TargetSize: 300, MaxSize: 400})
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	if !strings.Contains(got[0], "apples") {
		t.Errorf("first chunk should keep source order, got %q", got[0])
	}
	if !strings.Contains(got[len(got)-1], "pears") {
		t.Errorf("last chunk should keep source order, got %q", got[len(got)-1])
	}
}
