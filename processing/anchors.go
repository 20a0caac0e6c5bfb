package processing

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// GenerateAnchors enumerates the anchor templates for one feature stride. A reference window
// (0, 0, baseSize-1, baseSize-1) is reshaped to every aspect ratio and each result is scaled by
// every scale, giving len(ratios)*len(scales) templates ordered ratio-major. The result is an
// [A, 4] float32 tensor.
func GenerateAnchors(baseSize int, ratios, scales []float32) (*tensor.Dense, error) {
	if baseSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "anchor base size must be positive, got %d", baseSize)
	}
	for _, r := range ratios {
		if !(r > 0) {
			return nil, errors.Wrapf(ErrInvalidConfig, "anchor ratio must be positive, got %v", r)
		}
	}
	for _, s := range scales {
		if !(s > 0) {
			return nil, errors.Wrapf(ErrInvalidConfig, "anchor scale must be positive, got %v", s)
		}
	}

	baseAnchor := Box{X1: 1 - 1, Y1: 1 - 1, X2: float32(baseSize) - 1, Y2: float32(baseSize) - 1}

	anchors := make([]Box, 0, len(ratios)*len(scales))
	for _, ratioAnchor := range ratioEnum(baseAnchor, ratios) {
		anchors = append(anchors, scaleEnum(ratioAnchor, scales)...)
	}
	return BoxesToTensor(anchors), nil
}

func whctrs(anchor Box) (float32, float32, float32, float32) {
	w := anchor.X2 - anchor.X1 + 1
	h := anchor.Y2 - anchor.Y1 + 1
	centerX := anchor.X1 + 0.5*(w-1)
	centerY := anchor.Y1 + 0.5*(h-1)

	return w, h, centerX, centerY
}

func mkanchors(ws, hs []float32, centerX, centerY float32) []Box {
	anchors := make([]Box, len(ws))
	for i := range ws {
		halfW := 0.5 * (ws[i] - 1)
		halfH := 0.5 * (hs[i] - 1)
		anchors[i] = Box{
			X1: centerX - halfW,
			Y1: centerY - halfH,
			X2: centerX + halfW,
			Y2: centerY + halfH,
		}
	}
	return anchors
}

func ratioEnum(anchor Box, ratios []float32) []Box {
	w, h, centerX, centerY := whctrs(anchor)
	size := w * h

	ws := make([]float32, len(ratios))
	hs := make([]float32, len(ratios))
	for i, r := range ratios {
		ws[i] = roundHalfEven(math32.Sqrt(size / r))
		hs[i] = roundHalfEven(ws[i] * r)
	}
	return mkanchors(ws, hs, centerX, centerY)
}

func scaleEnum(anchor Box, scales []float32) []Box {
	w, h, centerX, centerY := whctrs(anchor)

	ws := make([]float32, len(scales))
	hs := make([]float32, len(scales))
	for i, s := range scales {
		ws[i] = w * s
		hs[i] = h * s
	}
	return mkanchors(ws, hs, centerX, centerY)
}

// roundHalfEven matches numpy's rounding so template sizes agree with published anchor tables.
func roundHalfEven(x float32) float32 {
	return float32(math.RoundToEven(float64(x)))
}
