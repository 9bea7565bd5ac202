package exam

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
)

// Sampler draws question ids from the catalog. It never writes.
type Sampler struct {
	catalog catalog.Store
	shuffle func(n int, swap func(i, j int))
}

type SamplerOption func(*Sampler)

// WithShuffle replaces the permutation source, mostly for deterministic tests.
func WithShuffle(f func(n int, swap func(i, j int))) SamplerOption {
	return func(s *Sampler) { s.shuffle = f }
}

func NewSampler(c catalog.Store, opts ...SamplerOption) *Sampler {
	s := &Sampler{catalog: c, shuffle: rand.Shuffle}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sample returns up to size ids matching f, uniformly drawn without
// replacement. The returned order is the order questions appear in the attempt.
// Fewer matches than size yields every match.
func (s *Sampler) Sample(ctx context.Context, f catalog.Filter, size int) ([]string, error) {
	if size <= 0 {
		return []string{}, nil
	}
	ids, err := s.catalog.FindQuestionIDs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: find questions: %v", ErrInternal, err)
	}
	pool := append([]string(nil), ids...)
	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > size {
		pool = pool[:size]
	}
	return pool, nil
}

// Fixed returns a copy of an authored id list in authored order.
func (s *Sampler) Fixed(ids []string) []string {
	return append(make([]string, 0, len(ids)), ids...)
}

// ParseList splits a comma-separated list, trimming blanks and dropping empties.
func ParseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
