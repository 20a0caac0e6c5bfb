package processing

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// Box is an axis-aligned rectangle in pixel coordinates. X1 <= X2 and Y1 <= Y2 are expected but
// not enforced; degenerate boxes are tolerated everywhere.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Width follows the inclusive pixel convention, x2 - x1 + 1.
func (b Box) Width() float32 {
	return b.X2 - b.X1 + 1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1 + 1
}

// Area is zero for boxes with a non-positive width or height.
func (b Box) Area() float32 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Delta is a regression offset (dx, dy, dw, dh) predicted for one anchor.
type Delta struct {
	DX, DY, DW, DH float32
}

// Scored pairs a box with its objectness score and the anchor index it was decoded from.
type Scored struct {
	Box   Box
	Score float32
	Index int
}

// BoxesFromTensor reads an [N, 4] float32 tensor into boxes.
func BoxesFromTensor(t *tensor.Dense) ([]Box, error) {
	shape := t.Shape()
	if len(shape) != 2 || shape[1] != 4 {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected boxes of shape [N, 4], got %v", shape)
	}
	if shape[0] == 0 {
		return []Box{}, nil
	}
	rows, err := native.MatrixF32(t)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read boxes tensor")
	}
	boxes := make([]Box, len(rows))
	for i, row := range rows {
		boxes[i] = Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}
	}
	return boxes, nil
}

// BoxesToTensor packs boxes into an [N, 4] float32 tensor.
func BoxesToTensor(boxes []Box) *tensor.Dense {
	backing := make([]float32, 0, len(boxes)*4)
	for _, b := range boxes {
		backing = append(backing, b.X1, b.Y1, b.X2, b.Y2)
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(boxes), 4),
		tensor.WithBacking(backing),
	)
}
