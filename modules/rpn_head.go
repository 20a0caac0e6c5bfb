package modules

import (
	"image"

	"github.com/okieraised/go-rpn-proposal/config"
	"github.com/okieraised/go-rpn-proposal/logger"
	"github.com/okieraised/go-rpn-proposal/processing"
	"github.com/okieraised/go-rpn-proposal/rcnn"
	"github.com/okieraised/go-rpn-proposal/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// RPNHeadClient runs the region proposal head served by Triton and returns its outputs in the
// layout expected by rcnn.ProposalLayer.
type RPNHeadClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelParams  *config.RPNHeadParams
	ModelConfig  *triton_proto.ModelConfigResponse
	imageSize    [2]int
	pixelMeans   [3]float32
}

func NewRPNHeadClient(tritonClient *gotritonclient.TritonGRPCClient, cfg *config.RPNHeadParams) (*RPNHeadClient, error) {
	client := &RPNHeadClient{}
	client.ModelParams = cfg

	inferenceConfig, err := tritonClient.GetModelConfiguration(cfg.Timeout, cfg.ModelName, cfg.ModelVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot get configuration of model %q", cfg.ModelName)
	}
	client.tritonClient = tritonClient
	client.ModelConfig = inferenceConfig
	client.imageSize = cfg.ImageSize
	client.pixelMeans = cfg.PixelMeans

	logger.L().Info("rpn head model resolved",
		zap.String("model", cfg.ModelName),
		zap.Int("inputs", len(inferenceConfig.Config.Input)),
		zap.Int("outputs", len(inferenceConfig.Config.Output)),
	)

	return client, nil
}

// preprocess resizes img to fit the model input while keeping its aspect ratio and pads the
// remainder with zeros. It returns the padded image, the valid height and width, and the scale
// applied to the original image.
func (c *RPNHeadClient) preprocess(img gocv.Mat) (gocv.Mat, [2]int, float64, error) {
	imgShape := img.Size()
	if len(imgShape) < 2 || imgShape[0] == 0 || imgShape[1] == 0 {
		return gocv.Mat{}, [2]int{}, 0, errors.New("empty input image")
	}
	imRatio := float64(imgShape[0]) / float64(imgShape[1])
	modelRatio := float64(c.imageSize[1]) / float64(c.imageSize[0])

	var newWidth, newHeight int

	if imRatio > modelRatio {
		newHeight = c.imageSize[1]
		newWidth = int(float64(newHeight) / imRatio)
	} else {
		newWidth = c.imageSize[0]
		newHeight = int(float64(newWidth) * imRatio)
	}
	detScale := float64(newHeight) / float64(imgShape[0])

	resizedImg := gocv.NewMat()
	defer resizedImg.Close()
	gocv.Resize(img, &resizedImg, image.Point{X: newWidth, Y: newHeight}, 0.0, 0.0, gocv.InterpolationLinear)

	detImg := gocv.NewMatWithSizesWithScalar([]int{c.imageSize[1], c.imageSize[0]}, gocv.MatTypeCV8UC3, gocv.NewScalar(0, 0, 0, 0))
	roi := detImg.Region(image.Rect(0, 0, newWidth, newHeight))
	defer roi.Close()
	resizedImg.CopyTo(&roi)

	return detImg, [2]int{newHeight, newWidth}, detScale, nil
}

// toTensor converts a BGR image into a [1, 3, H, W] mean-subtracted tensor.
func (c *RPNHeadClient) toTensor(img gocv.Mat) *tensor.Dense {
	imgShape := img.Size()
	height, width := imgShape[0], imgShape[1]
	backing := make([]float32, 3*height*width)
	for y := range height {
		for x := range width {
			px := img.GetVecbAt(y, x)
			for z := range 3 {
				backing[(z*height+y)*width+x] = float32(px[z]) - c.pixelMeans[z]
			}
		}
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, 3, height, width),
		tensor.WithBacking(backing),
	)
}

// Infer runs the RPN head on a BGR image. The returned input carries foreground scores, box
// deltas and im_info for the padded model input; the float is the resize scale.
func (c *RPNHeadClient) Infer(img gocv.Mat) (*rcnn.ProposalInput, float64, error) {
	preprocessedImg, validSize, detScale, err := c.preprocess(img)
	if err != nil {
		return nil, 0, err
	}
	imgTensors := c.toTensor(preprocessedImg)
	_ = preprocessedImg.Close()

	modelRequest := &triton_proto.ModelInferRequest{
		ModelName:    c.ModelParams.ModelName,
		ModelVersion: c.ModelParams.ModelVersion,
	}

	inputShape := make([]int64, 0, 4)
	for _, d := range imgTensors.Shape() {
		inputShape = append(inputShape, int64(d))
	}

	modelInputs := make([]*triton_proto.ModelInferRequest_InferInputTensor, 0)
	for _, inputCfg := range c.ModelConfig.Config.Input {
		modelInput := &triton_proto.ModelInferRequest_InferInputTensor{
			Name:     inputCfg.Name,
			Datatype: inputCfg.DataType.String()[5:],
			Shape:    inputShape,
			Contents: &triton_proto.InferTensorContents{
				Fp32Contents: imgTensors.Float32s(),
			},
		}
		modelInputs = append(modelInputs, modelInput)
	}

	modelRequest.Inputs = modelInputs
	inferResp, err := c.tritonClient.ModelGRPCInfer(c.ModelParams.Timeout, modelRequest)
	if err != nil {
		return nil, 0, errors.Wrap(err, "rpn head inference failed")
	}

	var clsProb, bboxDeltas *tensor.Dense
	for idx, out := range inferResp.Outputs {
		if idx >= len(inferResp.RawOutputContents) {
			return nil, 0, errors.Wrapf(processing.ErrShapeMismatch, "output %q has no raw contents", out.Name)
		}
		outShape := make([]int, 0, len(out.Shape))
		size := 1
		for _, shape := range out.Shape {
			outShape = append(outShape, int(shape))
			size *= int(shape)
		}
		data := utils.BytesToT32[float32](inferResp.RawOutputContents[idx])
		if len(data) != size {
			return nil, 0, errors.Wrapf(processing.ErrShapeMismatch, "output %q has %d values for shape %v", out.Name, len(data), outShape)
		}
		outTensors := tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(outShape...),
			tensor.WithBacking(data),
		)

		switch out.Name {
		case c.ModelParams.ScoreOutput:
			clsProb = outTensors
		case c.ModelParams.DeltaOutput:
			bboxDeltas = outTensors
		}
	}
	if clsProb == nil || bboxDeltas == nil {
		return nil, 0, errors.Wrapf(processing.ErrShapeMismatch, "model %q did not return both %q and %q",
			c.ModelParams.ModelName, c.ModelParams.ScoreOutput, c.ModelParams.DeltaOutput)
	}

	scores, err := rcnn.ForegroundScores(clsProb)
	if err != nil {
		return nil, 0, err
	}

	imInfo := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, 3),
		tensor.WithBacking([]float32{float32(validSize[0]), float32(validSize[1]), float32(detScale)}),
	)

	return &rcnn.ProposalInput{
		Scores:     scores,
		BBoxDeltas: bboxDeltas,
		ImInfo:     imInfo,
	}, detScale, nil
}
