package processing

// DefaultIgnoreThresh is the overlap above which a proposal is considered inside an ignore region.
const DefaultIgnoreThresh float32 = 0.7

// ignoreEpsilon stands in for a zero column maximum so that zero overlaps never count as the
// best match for an ignore region.
const ignoreEpsilon float32 = 1e-5

// IgnoreMask reports which proposals survive the ignore regions (true = keep). A proposal is
// dropped when its largest overlap with any region exceeds threshold, or when it is the best
// matching proposal of some region that it overlaps at all.
func IgnoreMask(proposals, ignoreRegions []Box, threshold float32) []bool {
	keep := make([]bool, len(proposals))
	for i := range keep {
		keep[i] = true
	}
	if len(ignoreRegions) == 0 || len(proposals) == 0 {
		return keep
	}

	overlaps := BBoxOverlaps(proposals, ignoreRegions)

	regionMax := make([]float32, len(ignoreRegions))
	for _, row := range overlaps {
		for r, ov := range row {
			if ov > regionMax[r] {
				regionMax[r] = ov
			}
		}
	}
	for r := range regionMax {
		if regionMax[r] == 0 {
			regionMax[r] = ignoreEpsilon
		}
	}

	for n, row := range overlaps {
		var proposalMax float32
		bestForRegion := false
		for r, ov := range row {
			if ov > proposalMax {
				proposalMax = ov
			}
			if ov == regionMax[r] {
				bestForRegion = true
			}
		}
		if proposalMax > threshold || bestForRegion {
			keep[n] = false
		}
	}
	return keep
}
