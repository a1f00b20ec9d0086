package dataset

import (
	"fmt"
	"math/rand"
)

// Subset is a view of a Dataset restricted to some of its indices.
type Subset struct {
	base    Dataset
	indices []int
}

// NewSubset returns a view of base over indices, in the given order.
func NewSubset(base Dataset, indices []int) (*Subset, error) {
	n := base.Len()
	for _, i := range indices {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("subset index %d out of range [0, %d)", i, n)
		}
	}
	idx := make([]int, len(indices))
	copy(idx, indices)
	return &Subset{base: base, indices: idx}, nil
}

// Len implements Dataset.
func (s *Subset) Len() int { return len(s.indices) }

// Example implements Dataset.
func (s *Subset) Example(i int) (*Example, error) {
	if i < 0 || i >= len(s.indices) {
		return nil, fmt.Errorf("index %d out of range [0, %d)", i, len(s.indices))
	}
	return s.base.Example(s.indices[i])
}

// Indices returns the base indices covered by the subset.
func (s *Subset) Indices() []int {
	out := make([]int, len(s.indices))
	copy(out, s.indices)
	return out
}

// RandomSplit shuffles ds with a seeded permutation and cuts it in two. The
// first part has firstSize examples. The same seed always gives the same
// split.
func RandomSplit(ds Dataset, firstSize int, seed int64) (*Subset, *Subset, error) {
	n := ds.Len()
	if firstSize < 0 || firstSize > n {
		return nil, nil, fmt.Errorf("first split size %d outside [0, %d]", firstSize, n)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	first := &Subset{base: ds, indices: perm[:firstSize]}
	second := &Subset{base: ds, indices: perm[firstSize:]}
	return first, second, nil
}
