package rcnn

import (
	"github.com/okieraised/go-rpn-proposal/processing"
	"github.com/pkg/errors"
)

// Anchors shifts every template to every cell of a height x width feature map. The box for cell
// (r, c) and template t sits at index (r*width+c)*len(templates)+t, the same order in which
// scores and deltas are flattened from their [A, H, W] channels.
func Anchors(height, width, stride int, templates []processing.Box) ([]processing.Box, error) {
	if height < 0 || width < 0 {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "negative feature map size %dx%d", height, width)
	}

	a := len(templates)
	allAnchors := make([]processing.Box, height*width*a)

	for ih := range height {
		sh := float32(ih * stride)
		for iw := range width {
			sw := float32(iw * stride)
			base := (ih*width + iw) * a
			for k, tpl := range templates {
				allAnchors[base+k] = processing.Box{
					X1: tpl.X1 + sw,
					Y1: tpl.Y1 + sh,
					X2: tpl.X2 + sw,
					Y2: tpl.Y2 + sh,
				}
			}
		}
	}

	return allAnchors, nil
}
