package go_rpn_proposal

import (
	"github.com/okieraised/go-rpn-proposal/config"
	"github.com/okieraised/go-rpn-proposal/modules"
	"github.com/okieraised/go-rpn-proposal/rcnn"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

type ProposalResult struct {
	// Proposals are (image index, x1, y1, x2, y2) rows in model input coordinates.
	Proposals *tensor.Dense `json:"proposals"`
	// ImageProposals holds the same rows mapped back onto the original image.
	ImageProposals *tensor.Dense `json:"image_proposals"`
	Scale          float64       `json:"scale"`
}

type ProposalPipeline struct {
	rpnHead       *modules.RPNHeadClient
	proposalLayer *rcnn.ProposalLayer
	cfgKey        string
}

// NewProposalPipeline wires a Triton-served RPN head to a proposal layer. A nil head or rpn
// config falls back to the defaults.
func NewProposalPipeline(tritonClient *gotritonclient.TritonGRPCClient, headParams *config.RPNHeadParams, rpnConfig *config.Config, cfgKey string) (*ProposalPipeline, error) {
	if headParams == nil {
		headParams = config.DefaultRPNHeadParams
	}
	if rpnConfig == nil {
		rpnConfig = config.DefaultConfig
	}
	if _, err := rpnConfig.Resolve(cfgKey); err != nil {
		return nil, err
	}

	client := &ProposalPipeline{cfgKey: cfgKey}

	rpnHead, err := modules.NewRPNHeadClient(tritonClient, headParams)
	if err != nil {
		return nil, err
	}
	client.rpnHead = rpnHead

	proposalLayer, err := rcnn.NewProposalLayer(headParams.FeatStride, headParams.Scales, headParams.Ratios, rpnConfig)
	if err != nil {
		return nil, err
	}
	client.proposalLayer = proposalLayer

	return client, nil
}

func (c *ProposalPipeline) Propose(img gocv.Mat) (*ProposalResult, error) {
	input, scale, err := c.rpnHead.Infer(img)
	if err != nil {
		return nil, err
	}
	input.CfgKey = c.cfgKey

	proposals, err := c.proposalLayer.Forward(input)
	if err != nil {
		return nil, err
	}

	imageProposals, err := rescaleProposals(proposals, scale)
	if err != nil {
		return nil, err
	}

	return &ProposalResult{
		Proposals:      proposals,
		ImageProposals: imageProposals,
		Scale:          scale,
	}, nil
}

func (c *ProposalPipeline) ProposeBytes(bImage []byte) (resp *ProposalResult, err error) {
	img, err := modules.ImageToOpenCV(bImage)
	if err != nil {
		return nil, err
	}
	defer func(m *gocv.Mat) {
		cErr := m.Close()
		if cErr != nil && err == nil {
			err = cErr
		}
	}(img)

	return c.Propose(*img)
}

// rescaleProposals divides the coordinate columns of a [batch, N, 5] proposal tensor by scale,
// leaving the image index column untouched.
func rescaleProposals(proposals *tensor.Dense, scale float64) (*tensor.Dense, error) {
	if !(scale > 0) {
		return nil, errors.Errorf("invalid image scale %v", scale)
	}
	shape := proposals.Shape()
	if len(shape) != 3 || shape[2] != 5 {
		return nil, errors.Errorf("expected proposals of shape [batch, N, 5], got %v", shape)
	}

	data := append([]float32(nil), proposals.Float32s()...)
	inv := float32(1 / scale)
	for r := 0; r+5 <= len(data); r += 5 {
		for j := 1; j < 5; j++ {
			data[r+j] *= inv
		}
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(shape...),
		tensor.WithBacking(data),
	), nil
}
