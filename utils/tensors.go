package utils

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ArgSortDescending returns the indices of data ordered by decreasing value. The sort is stable,
// so equal values keep their input order. NaN sorts after every number.
func ArgSortDescending(data []float32) []int {
	indices := make([]int, len(data))
	for i := range indices {
		indices[i] = i
	}

	key := func(i int) float32 {
		v := data[indices[i]]
		if math32.IsNaN(v) {
			return math32.Inf(-1)
		}
		return v
	}

	sort.SliceStable(indices, func(i, j int) bool {
		ki, kj := key(i), key(j)
		if ki == kj {
			return false
		}
		return ki > kj
	})

	return indices
}

// Float32Dense checks that t holds float32 data and returns a tensor whose backing slice is laid
// out in row-major order, copying only when t is a view.
func Float32Dense(t *tensor.Dense) (*tensor.Dense, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	if t.Dtype() != tensor.Float32 {
		return nil, errors.Errorf("expected a float32 tensor, got %v", t.Dtype())
	}
	if t.IsMaterializable() {
		return t.Materialize().(*tensor.Dense), nil
	}
	return t, nil
}
