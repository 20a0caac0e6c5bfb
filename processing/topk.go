package processing

import "github.com/okieraised/go-rpn-proposal/utils"

// TopK orders scored boxes by decreasing score and keeps at most k of them. k <= 0 keeps all.
// Equal scores keep their input order; NaN scores rank last.
func TopK(scored []Scored, k int) []Scored {
	scores := make([]float32, len(scored))
	for i, s := range scored {
		scores[i] = s.Score
	}
	order := utils.ArgSortDescending(scores)
	if k > 0 && k < len(order) {
		order = order[:k]
	}

	ranked := make([]Scored, len(order))
	for i, idx := range order {
		ranked[i] = scored[idx]
	}
	return ranked
}
