package modules

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ImageToOpenCV decodes an encoded image into a 3-channel BGR matrix.
func ImageToOpenCV(bImage []byte) (*gocv.Mat, error) {
	dstMat := gocv.NewMat()
	srcMat, err := gocv.IMDecode(bImage, gocv.IMReadUnchanged)
	if err != nil {
		dstMat.Close()
		return nil, errors.Wrap(err, "cannot decode image")
	}
	if srcMat.Empty() {
		dstMat.Close()
		return nil, errors.New("decoded image is empty")
	}

	switch srcMat.Channels() {
	case 4: // BGRA
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRAToBGR)
		srcMat.Close()
	case 1: // Grayscale
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorGrayToBGR)
		srcMat.Close()
	case 3:
		dstMat.Close()
		dstMat = srcMat
	default:
		channels := srcMat.Channels()
		srcMat.Close()
		dstMat.Close()
		return nil, errors.Errorf("unsupported number of channels: %d", channels)
	}
	return &dstMat, nil
}
