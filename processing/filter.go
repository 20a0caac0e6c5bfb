package processing

// FilterBoxes marks boxes whose width and height are both at least minSize (true = keep).
// minSize <= 0 keeps everything.
func FilterBoxes(boxes []Box, minSize float32) []bool {
	keep := make([]bool, len(boxes))
	for i, b := range boxes {
		keep[i] = minSize <= 0 || (b.Width() >= minSize && b.Height() >= minSize)
	}
	return keep
}
