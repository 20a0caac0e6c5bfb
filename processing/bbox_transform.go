package processing

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// BBoxXformClip bounds dw and dh before exponentiation so a box never grows more than
// 1000/16 times its anchor.
var BBoxXformClip = math32.Log(1000.0 / 16.0)

// BBoxTransformInv decodes regression deltas against their anchors. Index i of deltas belongs to
// index i of anchors. Non-finite inputs are saturated so the output never carries NaN.
func BBoxTransformInv(anchors []Box, deltas []Delta) ([]Box, error) {
	if len(anchors) != len(deltas) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d anchors but %d deltas", len(anchors), len(deltas))
	}

	proposals := make([]Box, len(anchors))
	for i, a := range anchors {
		d := deltas[i]
		w := a.Width()
		h := a.Height()
		centerX := a.X1 + 0.5*w
		centerY := a.Y1 + 0.5*h

		dw := math32.Min(finite(d.DW), BBoxXformClip)
		dh := math32.Min(finite(d.DH), BBoxXformClip)

		predCenterX := finite(d.DX)*w + centerX
		predCenterY := finite(d.DY)*h + centerY
		predW := math32.Exp(dw) * w
		predH := math32.Exp(dh) * h

		proposals[i] = Box{
			X1: finite(predCenterX - 0.5*predW),
			Y1: finite(predCenterY - 0.5*predH),
			X2: finite(predCenterX + 0.5*predW - 1),
			Y2: finite(predCenterY + 0.5*predH - 1),
		}
	}
	return proposals, nil
}

// ClipBoxes clamps x into [0, width-1] and y into [0, height-1]. Boxes that end up with
// x1 > x2 or y1 > y2 are returned as they are.
func ClipBoxes(boxes []Box, height, width float32) []Box {
	maxX := width - 1
	maxY := height - 1

	clipped := make([]Box, len(boxes))
	for i, b := range boxes {
		clipped[i] = Box{
			X1: clamp(b.X1, maxX),
			Y1: clamp(b.Y1, maxY),
			X2: clamp(b.X2, maxX),
			Y2: clamp(b.Y2, maxY),
		}
	}
	return clipped
}

func clamp(x, upper float32) float32 {
	return math32.Max(math32.Min(x, upper), 0)
}

// finite maps NaN to zero and infinities to the largest finite float32 of the same sign.
func finite(x float32) float32 {
	switch {
	case math32.IsNaN(x):
		return 0
	case math32.IsInf(x, 1):
		return math.MaxFloat32
	case math32.IsInf(x, -1):
		return -math.MaxFloat32
	}
	return x
}
