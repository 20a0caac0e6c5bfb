package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestArgSortDescending(t *testing.T) {
	data := []float32{0.2, 0.9, 0.5, 0.9, float32(math.NaN()), 0.1}
	assert.Equal(t, []int{1, 3, 2, 0, 5, 4}, ArgSortDescending(data))
	assert.Empty(t, ArgSortDescending(nil))
}

func TestFloat32Dense(t *testing.T) {
	d := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(2, 3),
		tensor.WithBacking([]float32{0, 1, 2, 3, 4, 5}),
	)
	out, err := Float32Dense(d)
	require.NoError(t, err)
	assert.Same(t, d, out)

	view, err := d.Slice(tensor.S(1))
	require.NoError(t, err)
	out, err = Float32Dense(view.(*tensor.Dense))
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4, 5}, out.Float32s())

	_, err = Float32Dense(tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(2), tensor.WithBacking([]float64{1, 2})))
	assert.Error(t, err)

	_, err = Float32Dense(nil)
	assert.Error(t, err)
}

func TestBytesToT32(t *testing.T) {
	raw := make([]byte, 0, 12)
	for _, v := range []float32{1.5, -2, 0} {
		bits := math.Float32bits(v)
		raw = append(raw, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	raw = append(raw, 0xff)

	assert.Equal(t, []float32{1.5, -2, 0}, BytesToT32[float32](raw))
	assert.Equal(t, []int32{1}, BytesToT32[int32]([]byte{1, 0, 0, 0}))
}
