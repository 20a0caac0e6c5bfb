package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnoreMask_NoRegions(t *testing.T) {
	proposals := []Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 5, Y1: 5, X2: 6, Y2: 6},
		{X1: 9, Y1: 9, X2: 1, Y2: 1},
	}
	assert.Equal(t, []bool{true, true, true}, IgnoreMask(proposals, nil, DefaultIgnoreThresh))
	assert.Empty(t, IgnoreMask(nil, nil, DefaultIgnoreThresh))
}

func TestIgnoreMask_HighOverlapDropped(t *testing.T) {
	region := Box{X1: 0, Y1: 0, X2: 99, Y2: 99}
	proposals := []Box{
		{X1: 0, Y1: 0, X2: 99, Y2: 99},
		{X1: 0, Y1: 0, X2: 94, Y2: 94},
		{X1: 200, Y1: 200, X2: 220, Y2: 220},
	}

	keep := IgnoreMask(proposals, []Box{region}, DefaultIgnoreThresh)
	// proposal 1 has IoU 0.9025 with the region
	assert.Equal(t, []bool{false, false, true}, keep)
}

func TestIgnoreMask_BestMatchDroppedBelowThreshold(t *testing.T) {
	region := Box{X1: 0, Y1: 0, X2: 99, Y2: 99}
	proposals := []Box{
		{X1: 0, Y1: 0, X2: 49, Y2: 49},
		{X1: 0, Y1: 0, X2: 29, Y2: 29},
		{X1: 300, Y1: 300, X2: 310, Y2: 310},
	}

	keep := IgnoreMask(proposals, []Box{region}, DefaultIgnoreThresh)
	// proposal 0 (IoU 0.25) is the region's best match even though it is under 0.7
	assert.Equal(t, []bool{false, true, true}, keep)
}

func TestIgnoreMask_RegionWithoutOverlap(t *testing.T) {
	proposals := []Box{
		{X1: 0, Y1: 0, X2: 9, Y2: 9},
		{X1: 20, Y1: 20, X2: 29, Y2: 29},
	}
	regions := []Box{{X1: 500, Y1: 500, X2: 600, Y2: 600}}

	assert.Equal(t, []bool{true, true}, IgnoreMask(proposals, regions, DefaultIgnoreThresh))
}

func TestIgnoreMask_TiedBestMatches(t *testing.T) {
	region := Box{X1: 0, Y1: 0, X2: 99, Y2: 99}
	proposals := []Box{
		{X1: 0, Y1: 0, X2: 39, Y2: 39},
		{X1: 60, Y1: 60, X2: 99, Y2: 99},
		{X1: 0, Y1: 0, X2: 9, Y2: 9},
	}

	keep := IgnoreMask(proposals, []Box{region}, DefaultIgnoreThresh)
	assert.Equal(t, []bool{false, false, true}, keep)
}
