package config

import (
	"io"
	"os"
	"time"

	"github.com/okieraised/go-rpn-proposal/processing"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ModeTrain = "TRAIN"
	ModeTest  = "TEST"
)

// RPNParams is the threshold bundle used by one proposal forward pass.
type RPNParams struct {
	PreNMSTopN   int     `json:"pre_nms_top_n" yaml:"pre_nms_top_n"`
	PostNMSTopN  int     `json:"post_nms_top_n" yaml:"post_nms_top_n"`
	NMSThresh    float32 `json:"nms_thresh" yaml:"nms_thresh"`
	MinSize      float32 `json:"min_size" yaml:"min_size"`
	IgnoreThresh float32 `json:"ignore_thresh" yaml:"ignore_thresh"`
}

var DefaultTrainRPNParams = RPNParams{
	PreNMSTopN:   12000,
	PostNMSTopN:  2000,
	NMSThresh:    0.7,
	MinSize:      0,
	IgnoreThresh: processing.DefaultIgnoreThresh,
}

var DefaultTestRPNParams = RPNParams{
	PreNMSTopN:   6000,
	PostNMSTopN:  300,
	NMSThresh:    0.7,
	MinSize:      0,
	IgnoreThresh: processing.DefaultIgnoreThresh,
}

func NewRPNParams(preNMSTopN, postNMSTopN int, nmsThresh, minSize, ignoreThresh float32) RPNParams {
	return RPNParams{
		PreNMSTopN:   preNMSTopN,
		PostNMSTopN:  postNMSTopN,
		NMSThresh:    nmsThresh,
		MinSize:      minSize,
		IgnoreThresh: ignoreThresh,
	}
}

// Validate rejects bundles the proposal layer cannot honour. PreNMSTopN <= 0 is valid and means
// no truncation before NMS.
func (p RPNParams) Validate() error {
	if p.PostNMSTopN <= 0 {
		return errors.Wrapf(processing.ErrInvalidConfig, "post_nms_top_n must be positive, got %d", p.PostNMSTopN)
	}
	if !(p.NMSThresh >= 0) {
		return errors.Wrapf(processing.ErrInvalidConfig, "nms_thresh must not be negative, got %v", p.NMSThresh)
	}
	if !(p.IgnoreThresh >= 0) {
		return errors.Wrapf(processing.ErrInvalidConfig, "ignore_thresh must not be negative, got %v", p.IgnoreThresh)
	}
	if !(p.MinSize >= 0) {
		return errors.Wrapf(processing.ErrInvalidConfig, "min_size must not be negative, got %v", p.MinSize)
	}
	return nil
}

// Config maps a mode key such as TRAIN or TEST to its threshold bundle.
type Config struct {
	Modes map[string]RPNParams `json:"modes" yaml:"modes"`
}

var DefaultConfig = &Config{
	Modes: map[string]RPNParams{
		ModeTrain: DefaultTrainRPNParams,
		ModeTest:  DefaultTestRPNParams,
	},
}

func NewConfig(modes map[string]RPNParams) *Config {
	return &Config{
		Modes: modes,
	}
}

// Resolve returns the validated bundle registered under key.
func (c *Config) Resolve(key string) (RPNParams, error) {
	if c == nil {
		return RPNParams{}, errors.Wrap(processing.ErrInvalidConfig, "nil config")
	}
	params, ok := c.Modes[key]
	if !ok {
		return RPNParams{}, errors.Wrapf(processing.ErrInvalidConfig, "unknown config key %q", key)
	}
	if err := params.Validate(); err != nil {
		return RPNParams{}, errors.Wrapf(err, "config key %q", key)
	}
	return params, nil
}

// LoadConfig parses a YAML document of the form
//
//	modes:
//	  TEST:
//	    pre_nms_top_n: 6000
//	    post_nms_top_n: 300
//	    nms_thresh: 0.7
//
// Fields left out of a mode take the TEST defaults. Every mode is validated.
func LoadConfig(r io.Reader) (*Config, error) {
	var raw struct {
		Modes map[string]yaml.Node `yaml:"modes"`
	}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "cannot decode rpn config")
	}

	cfg := NewConfig(make(map[string]RPNParams, len(raw.Modes)))
	for key, node := range raw.Modes {
		params := DefaultTestRPNParams
		if err := node.Decode(&params); err != nil {
			return nil, errors.Wrapf(err, "cannot decode config key %q", key)
		}
		if err := params.Validate(); err != nil {
			return nil, errors.Wrapf(err, "config key %q", key)
		}
		cfg.Modes[key] = params
	}
	return cfg, nil
}

func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open rpn config")
	}
	defer f.Close()

	return LoadConfig(f)
}

// RPNHeadParams describes the served network that produces objectness scores and box deltas.
type RPNHeadParams struct {
	ModelName    string        `json:"model_name" yaml:"model_name"`
	ModelVersion string        `json:"model_version" yaml:"model_version"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	ImageSize    [2]int        `json:"image_size" yaml:"image_size"`
	FeatStride   int           `json:"feat_stride" yaml:"feat_stride"`
	Scales       []float32     `json:"scales" yaml:"scales"`
	Ratios       []float32     `json:"ratios" yaml:"ratios"`
	PixelMeans   [3]float32    `json:"pixel_means" yaml:"pixel_means"`
	ScoreOutput  string        `json:"score_output" yaml:"score_output"`
	DeltaOutput  string        `json:"delta_output" yaml:"delta_output"`
}

var DefaultRPNHeadParams = &RPNHeadParams{
	ModelName:   "rpn_head",
	Timeout:     20 * time.Second,
	ImageSize:   [2]int{1000, 600},
	FeatStride:  16,
	Scales:      []float32{8, 16, 32},
	Ratios:      []float32{0.5, 1, 2},
	PixelMeans:  [3]float32{102.9801, 115.9465, 122.7717},
	ScoreOutput: "rpn_cls_prob",
	DeltaOutput: "rpn_bbox_pred",
}

func NewRPNHeadParams(modelName string, timeout time.Duration, imgSize [2]int, featStride int, scales, ratios []float32) *RPNHeadParams {
	return &RPNHeadParams{
		ModelName:   modelName,
		Timeout:     timeout,
		ImageSize:   imgSize,
		FeatStride:  featStride,
		Scales:      scales,
		Ratios:      ratios,
		PixelMeans:  DefaultRPNHeadParams.PixelMeans,
		ScoreOutput: DefaultRPNHeadParams.ScoreOutput,
		DeltaOutput: DefaultRPNHeadParams.DeltaOutput,
	}
}
