package processing

import "github.com/chewxy/math32"

const overlapEpsilon float32 = 1e-10

// IoU is the intersection over union of two boxes under the inclusive pixel convention. It is 0
// for disjoint boxes and whenever either box has a non-positive area.
func IoU(a, b Box) float32 {
	return iou(a, b, a.Area(), b.Area())
}

func iou(a, b Box, areaA, areaB float32) float32 {
	if areaA <= 0 || areaB <= 0 {
		return 0
	}
	iw := math32.Min(a.X2, b.X2) - math32.Max(a.X1, b.X1) + 1
	if iw <= 0 {
		return 0
	}
	ih := math32.Min(a.Y2, b.Y2) - math32.Max(a.Y1, b.Y1) + 1
	if ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := areaA + areaB - inter
	if union < overlapEpsilon {
		union = overlapEpsilon
	}
	return inter / union
}

// BBoxOverlaps returns the [len(boxes)][len(query)] IoU matrix.
func BBoxOverlaps(boxes, query []Box) [][]float32 {
	queryAreas := make([]float32, len(query))
	for k, q := range query {
		queryAreas[k] = q.Area()
	}

	overlaps := make([][]float32, len(boxes))
	backing := make([]float32, len(boxes)*len(query))
	for n, b := range boxes {
		row := backing[n*len(query) : (n+1)*len(query) : (n+1)*len(query)]
		area := b.Area()
		for k, q := range query {
			row[k] = iou(b, q, area, queryAreas[k])
		}
		overlaps[n] = row
	}
	return overlaps
}
