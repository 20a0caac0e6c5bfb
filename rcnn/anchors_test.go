package rcnn

import (
	"sync"
	"testing"

	"github.com/okieraised/go-rpn-proposal/processing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnchors_RowMajorOrder(t *testing.T) {
	templates := []processing.Box{{X1: 0, Y1: 0, X2: 15, Y2: 15}}

	anchors, err := Anchors(2, 2, 16, templates)
	require.NoError(t, err)
	require.Len(t, anchors, 4)

	for r := range 2 {
		for c := range 2 {
			b := anchors[r*2+c]
			assert.Equal(t, float32(c*16)+7.5, (b.X1+b.X2)/2)
			assert.Equal(t, float32(r*16)+7.5, (b.Y1+b.Y2)/2)
		}
	}
}

func TestAnchors_TemplateInner(t *testing.T) {
	templates := []processing.Box{
		{X1: -8, Y1: -8, X2: 7, Y2: 7},
		{X1: -16, Y1: -4, X2: 15, Y2: 3},
		{X1: 0, Y1: 0, X2: 1, Y2: 1},
	}

	anchors, err := Anchors(2, 3, 10, templates)
	require.NoError(t, err)
	require.Len(t, anchors, 2*3*3)

	// cell (r=1, c=2) is K-index 5
	for k, tpl := range templates {
		assert.Equal(t, processing.Box{
			X1: tpl.X1 + 20, Y1: tpl.Y1 + 10, X2: tpl.X2 + 20, Y2: tpl.Y2 + 10,
		}, anchors[5*3+k])
	}
}

func TestAnchors_Empty(t *testing.T) {
	templates := []processing.Box{{X1: 0, Y1: 0, X2: 15, Y2: 15}}

	anchors, err := Anchors(0, 5, 16, templates)
	require.NoError(t, err)
	assert.Empty(t, anchors)

	anchors, err = Anchors(3, 3, 16, nil)
	require.NoError(t, err)
	assert.Empty(t, anchors)

	_, err = Anchors(-1, 3, 16, templates)
	assert.ErrorIs(t, err, processing.ErrShapeMismatch)
}

func TestAnchorCache(t *testing.T) {
	templates := []processing.Box{{X1: 0, Y1: 0, X2: 15, Y2: 15}, {X1: -8, Y1: -8, X2: 23, Y2: 23}}
	cache := NewAnchorCache(16, templates)
	assert.Equal(t, 2, cache.NumAnchors())
	assert.Equal(t, 16, cache.Stride())

	expected, err := Anchors(4, 5, 16, templates)
	require.NoError(t, err)

	var wg sync.WaitGroup
	grids := make([][]processing.Box, 8)
	for i := range grids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			grid, err := cache.Get(4, 5)
			assert.NoError(t, err)
			grids[i] = grid
		}(i)
	}
	wg.Wait()

	for _, grid := range grids {
		assert.Equal(t, expected, grid)
		assert.Same(t, &grids[0][0], &grid[0])
	}

	other, err := cache.Get(2, 2)
	require.NoError(t, err)
	assert.Len(t, other, 8)

	_, err = cache.Get(-2, 2)
	assert.ErrorIs(t, err, processing.ErrShapeMismatch)
}
