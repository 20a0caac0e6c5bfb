package processing

type nmsTag uint8

const (
	nmsUnvisited nmsTag = iota
	nmsKept
	nmsSuppressed
)

// NMS runs greedy non-maximum suppression over ranked, which must already be sorted by
// decreasing score. It returns the positions of the kept items in ranked order. An item is
// suppressed when its IoU with an earlier kept item is strictly greater than threshold.
// maxKeep > 0 stops the scan once that many items are kept.
func NMS(ranked []Scored, threshold float32, maxKeep int) []int {
	n := len(ranked)
	if n == 0 {
		return []int{}
	}

	areas := make([]float32, n)
	for i := range ranked {
		areas[i] = ranked[i].Box.Area()
	}

	tags := make([]nmsTag, n)
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if tags[i] != nmsUnvisited {
			continue
		}
		tags[i] = nmsKept
		keep = append(keep, i)
		if maxKeep > 0 && len(keep) >= maxKeep {
			break
		}

		current := ranked[i].Box
		for j := i + 1; j < n; j++ {
			if tags[j] != nmsUnvisited {
				continue
			}
			if iou(current, ranked[j].Box, areas[i], areas[j]) > threshold {
				tags[j] = nmsSuppressed
			}
		}
	}

	return keep
}
