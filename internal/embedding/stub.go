package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// StubProvider is a deterministic in-process provider for tests and offline
// use. Texts with a hand-set vector return it verbatim; anything else gets a
// hash-derived unit vector, stable across runs.
type StubProvider struct {
	Name    string
	Dims    int
	Vectors map[string][]float32
	Fail    map[string]error
}

// NewStubProvider creates a stub with the given model name and dimensionality.
func NewStubProvider(name string, dims int) *StubProvider {
	if dims <= 0 {
		dims = 8
	}
	return &StubProvider{
		Name:    name,
		Dims:    dims,
		Vectors: map[string][]float32{},
		Fail:    map[string]error{},
	}
}

// Set assigns a hand-crafted vector for an exact text. The vector is
// normalized on the way in so cosine expectations stay exact.
func (s *StubProvider) Set(text string, vec []float32) {
	s.Vectors[text] = Normalize(vec)
}

func (s *StubProvider) Fingerprint() string { return "stub/" + s.Name }

func (s *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err, ok := s.Fail[text]; ok {
		return nil, err
	}
	if vec, ok := s.Vectors[text]; ok {
		return vec, nil
	}
	return s.hashVector(text), nil
}

// hashVector derives a stable pseudo-random unit vector from the text.
func (s *StubProvider) hashVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, s.Dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return Normalize(vec)
}

// Normalize scales vec to unit length. Zero vectors are returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// FailingProvider always returns the same error; used to exercise
// model-unavailable and per-item failure paths.
type FailingProvider struct {
	Name string
	Err  error
}

func (f *FailingProvider) Fingerprint() string { return "failing/" + f.Name }

func (f *FailingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, fmt.Errorf("embed %q: provider unavailable", text)
}
