package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAnchors_Default(t *testing.T) {
	anchors, err := GenerateAnchors(16, []float32{0.5, 1, 2}, []float32{8, 16, 32})
	require.NoError(t, err)
	assert.Equal(t, []int{9, 4}, []int(anchors.Shape()))

	expected := []float32{
		-84, -40, 99, 55,
		-176, -88, 191, 103,
		-360, -184, 375, 199,
		-56, -56, 71, 71,
		-120, -120, 135, 135,
		-248, -248, 263, 263,
		-36, -80, 51, 95,
		-80, -168, 95, 183,
		-168, -344, 183, 359,
	}
	assert.InDeltaSlice(t, expected, anchors.Float32s(), 1e-4)
}

func TestGenerateAnchors_SingleTemplate(t *testing.T) {
	anchors, err := GenerateAnchors(16, []float32{1}, []float32{1})
	require.NoError(t, err)

	boxes, err := BoxesFromTensor(anchors)
	require.NoError(t, err)
	assert.Equal(t, []Box{{X1: 0, Y1: 0, X2: 15, Y2: 15}}, boxes)
}

func TestGenerateAnchors_Invalid(t *testing.T) {
	_, err := GenerateAnchors(0, []float32{1}, []float32{1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = GenerateAnchors(16, []float32{0}, []float32{1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = GenerateAnchors(16, []float32{1}, []float32{-2})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
