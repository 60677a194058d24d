// Package chunker splits memory text into embeddable chunks.
//
// Chunking is a pure function of the input text and the options: the same
// content always yields the same chunk sequence, which keeps index rebuilds
// idempotent.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// Options configures chunking behavior.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Chunk splits text into ordered chunks. Short text (<= MaxSize) returns a
// single chunk; empty or whitespace-only text returns nil, which callers
// treat as "no embeddable content", not an error.
func Chunk(text string, opts Options) []string {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if len(text) <= opts.MaxSize {
		return []string{text}
	}

	// Split on paragraph boundaries, then merge small paragraphs and
	// sentence-split oversized ones toward the target size.
	return mergeParagraphs(splitParagraphs(text), opts)
}

// splitParagraphs splits text on blank lines.
func splitParagraphs(text string) []string {
	var paras []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		p := strings.TrimSpace(strings.Join(current, "\n"))
		if p != "" {
			paras = append(paras, p)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return paras
}

// mergeParagraphs combines small paragraphs and splits oversized ones.
func mergeParagraphs(paras []string, opts Options) []string {
	var chunks []string
	var accum string

	flushAccum := func() {
		accum = strings.TrimSpace(accum)
		if accum == "" {
			return
		}
		if len(accum) > opts.MaxSize {
			chunks = append(chunks, splitSentences(accum, opts)...)
		} else {
			chunks = append(chunks, accum)
		}
		accum = ""
	}

	for _, p := range paras {
		if accum == "" {
			accum = p
			continue
		}
		combined := accum + "\n\n" + p
		if len(combined) <= opts.TargetSize {
			accum = combined
		} else {
			flushAccum()
			accum = p
		}
	}
	flushAccum()

	return chunks
}

// splitSentences breaks an oversized paragraph on sentence boundaries,
// falling back to a hard cut for a single run with no boundary.
func splitSentences(text string, opts Options) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		c := strings.TrimSpace(current.String())
		if c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
	}

	for _, sentence := range sentences(text) {
		for len(sentence) > opts.MaxSize {
			// No usable boundary; cut at the target size, never mid-rune.
			flush()
			cut := runeCut(sentence, opts.TargetSize)
			chunks = append(chunks, strings.TrimSpace(sentence[:cut]))
			sentence = strings.TrimSpace(sentence[cut:])
		}
		if current.Len() > 0 && current.Len()+len(sentence)+1 > opts.TargetSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// runeCut returns the largest cut index <= max that lands on a rune
// boundary, so a hard cut never produces invalid UTF-8.
func runeCut(s string, max int) int {
	if len(s) <= max {
		return len(s)
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	if max == 0 {
		// Pathologically small max; take the first rune whole.
		_, n := utf8.DecodeRuneInString(s)
		return n
	}
	return max
}

// sentences splits text after terminal punctuation followed by whitespace.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			if text[i+1] == ' ' || text[i+1] == '\n' {
				s := strings.TrimSpace(text[start : i+1])
				if s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
