package rcnn

import (
	"sync"

	"github.com/okieraised/go-rpn-proposal/config"
	"github.com/okieraised/go-rpn-proposal/logger"
	"github.com/okieraised/go-rpn-proposal/processing"
	"github.com/okieraised/go-rpn-proposal/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// ProposalInput is one forward call of the proposal layer.
type ProposalInput struct {
	// Scores holds foreground objectness, [batch, A, H, W].
	Scores *tensor.Dense
	// BBoxDeltas holds (dx, dy, dw, dh) per anchor, [batch, 4A, H, W].
	BBoxDeltas *tensor.Dense
	// ImInfo holds (height, width, scale) per image, [batch, 3].
	ImInfo *tensor.Dense
	// CfgKey selects the threshold bundle, e.g. config.ModeTest.
	CfgKey string
	// IgnoreRegions is [batch, R_max, 4]. It may be nil when no image has ignore regions.
	IgnoreRegions *tensor.Dense
	// NumIgnore is the number of valid rows of IgnoreRegions. A single value applies to every
	// image; otherwise there is one value per image.
	NumIgnore []int
}

// ProposalLayer turns RPN scores and deltas into a fixed number of proposals per image.
type ProposalLayer struct {
	featStride int
	anchors    *AnchorCache
	cfg        *config.Config

	// Workers bounds how many images are processed concurrently. Values below 2 run the batch
	// sequentially.
	Workers int
}

// NewProposalLayer builds the anchor templates for featStride from scales and ratios, using the
// stride as the template base size.
func NewProposalLayer(featStride int, scales, ratios []float32, cfg *config.Config) (*ProposalLayer, error) {
	templates, err := processing.GenerateAnchors(featStride, ratios, scales)
	if err != nil {
		return nil, err
	}
	return NewProposalLayerWithTemplates(featStride, templates, cfg)
}

// NewProposalLayerWithTemplates uses a precomputed [A, 4] template table.
func NewProposalLayerWithTemplates(featStride int, templates *tensor.Dense, cfg *config.Config) (*ProposalLayer, error) {
	if featStride <= 0 {
		return nil, errors.Wrapf(processing.ErrInvalidConfig, "feature stride must be positive, got %d", featStride)
	}
	if cfg == nil {
		cfg = config.DefaultConfig
	}
	boxes, err := processing.BoxesFromTensor(templates)
	if err != nil {
		return nil, errors.Wrap(err, "anchor templates")
	}
	return &ProposalLayer{
		featStride: featStride,
		anchors:    NewAnchorCache(featStride, boxes),
		cfg:        cfg,
	}, nil
}

func (l *ProposalLayer) FeatStride() int {
	return l.featStride
}

func (l *ProposalLayer) NumAnchors() int {
	return l.anchors.NumAnchors()
}

// Forward resolves in.CfgKey against the layer's config and runs ForwardWithParams.
func (l *ProposalLayer) Forward(in *ProposalInput) (*tensor.Dense, error) {
	if in == nil {
		return nil, errors.Wrap(processing.ErrShapeMismatch, "nil proposal input")
	}
	params, err := l.cfg.Resolve(in.CfgKey)
	if err != nil {
		return nil, err
	}
	return l.ForwardWithParams(in, params)
}

// ForwardWithParams returns a [batch, PostNMSTopN, 5] tensor of (image index, x1, y1, x2, y2)
// rows. Images with fewer proposals are padded with rows holding only the image index.
func (l *ProposalLayer) ForwardWithParams(in *ProposalInput, params config.RPNParams) (*tensor.Dense, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if in == nil {
		return nil, errors.Wrap(processing.ErrShapeMismatch, "nil proposal input")
	}

	batch, err := l.decodeInput(in)
	if err != nil {
		return nil, err
	}

	anchors, err := l.anchors.Get(batch.height, batch.width)
	if err != nil {
		return nil, err
	}

	postN := params.PostNMSTopN
	output := make([]float32, batch.size*postN*5)
	kept := make([]int, batch.size)
	errs := make([]error, batch.size)

	run := func(i int) {
		proposals, err := l.proposeSingle(batch, i, anchors, params)
		if err != nil {
			errs[i] = err
			return
		}
		kept[i] = len(proposals)

		rows := output[i*postN*5 : (i+1)*postN*5]
		for r := range postN {
			row := rows[r*5 : (r+1)*5]
			row[0] = float32(i)
			if r < len(proposals) {
				b := proposals[r].Box
				row[1], row[2], row[3], row[4] = b.X1, b.Y1, b.X2, b.Y2
			}
		}
	}

	if l.Workers > 1 && batch.size > 1 {
		sem := make(chan struct{}, l.Workers)
		var wg sync.WaitGroup
		for i := range batch.size {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				run(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range batch.size {
			run(i)
		}
	}

	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
	}

	logger.L().Debug("rpn proposals",
		zap.String("cfg_key", in.CfgKey),
		zap.Int("batch", batch.size),
		zap.Int("feat_height", batch.height),
		zap.Int("feat_width", batch.width),
		zap.Int("anchors", len(anchors)),
		zap.Ints("kept", kept),
	)

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(batch.size, postN, 5),
		tensor.WithBacking(output),
	), nil
}

// proposeSingle runs decode, clip, filtering, ranking and NMS for image i.
func (l *ProposalLayer) proposeSingle(batch *decodedBatch, i int, anchors []processing.Box, params config.RPNParams) ([]processing.Scored, error) {
	numAnchors := len(anchors)
	deltas := batch.deltas(i)

	proposals, err := processing.BBoxTransformInv(anchors, deltas)
	if err != nil {
		return nil, err
	}

	info := batch.imInfo[i]
	proposals = processing.ClipBoxes(proposals, info[0], info[1])

	keep := processing.FilterBoxes(proposals, params.MinSize*info[2])
	ignoreKeep := processing.IgnoreMask(proposals, batch.ignoreRegions(i), params.IgnoreThresh)

	scores := batch.scores(i)
	scored := make([]processing.Scored, 0, numAnchors)
	for idx := range numAnchors {
		if !keep[idx] || !ignoreKeep[idx] {
			continue
		}
		scored = append(scored, processing.Scored{
			Box:   proposals[idx],
			Score: scores[idx],
			Index: idx,
		})
	}

	ranked := processing.TopK(scored, params.PreNMSTopN)
	keepIdx := processing.NMS(ranked, params.NMSThresh, params.PostNMSTopN)
	if len(keepIdx) > params.PostNMSTopN {
		keepIdx = keepIdx[:params.PostNMSTopN]
	}

	out := make([]processing.Scored, len(keepIdx))
	for r, idx := range keepIdx {
		out[r] = ranked[idx]
	}
	return out, nil
}

// ForegroundScores keeps the second half of the channels of a [batch, 2A, H, W] class
// probability tensor, the foreground objectness for each of the A anchors.
func ForegroundScores(clsProb *tensor.Dense) (*tensor.Dense, error) {
	shape := clsProb.Shape()
	if len(shape) != 4 || shape[1]%2 != 0 {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "expected class probabilities of shape [N, 2A, H, W], got %v", shape)
	}
	a := shape[1] / 2

	fg, err := clsProb.Slice(nil, tensor.S(a, shape[1]), nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot slice foreground channels")
	}
	fgDense, err := utils.Float32Dense(fg.(*tensor.Dense))
	if err != nil {
		return nil, err
	}

	// size-one slices drop their axis, so the shape is restored explicitly
	data := fgDense.Float32s()
	if len(data) != shape[0]*a*shape[2]*shape[3] {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "foreground slice holds %d values", len(data))
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(shape[0], a, shape[2], shape[3]),
		tensor.WithBacking(append([]float32(nil), data...)),
	), nil
}

type decodedBatch struct {
	size, numAnchors, height, width int

	scoreData  []float32
	deltaData  []float32
	imInfo     [][]float32
	ignore     [][][]float32
	ignoreUsed []int
}

func (b *decodedBatch) cells() int {
	return b.height * b.width
}

// scores flattens image i's [A, H, W] block into anchor order (cell outer, template inner).
func (b *decodedBatch) scores(i int) []float32 {
	k, a := b.cells(), b.numAnchors
	out := make([]float32, k*a)
	base := i * a * k
	for t := range a {
		channel := b.scoreData[base+t*k : base+(t+1)*k]
		for cell, v := range channel {
			out[cell*a+t] = v
		}
	}
	return out
}

// deltas gathers image i's [4A, H, W] block into one Delta per anchor, in anchor order.
func (b *decodedBatch) deltas(i int) []processing.Delta {
	k, a := b.cells(), b.numAnchors
	out := make([]processing.Delta, k*a)
	base := i * 4 * a * k
	for t := range a {
		dx := b.deltaData[base+(4*t)*k:]
		dy := b.deltaData[base+(4*t+1)*k:]
		dw := b.deltaData[base+(4*t+2)*k:]
		dh := b.deltaData[base+(4*t+3)*k:]
		for cell := range k {
			out[cell*a+t] = processing.Delta{DX: dx[cell], DY: dy[cell], DW: dw[cell], DH: dh[cell]}
		}
	}
	return out
}

func (b *decodedBatch) ignoreRegions(i int) []processing.Box {
	if b.ignoreUsed == nil || b.ignoreUsed[i] == 0 {
		return nil
	}
	rows := b.ignore[i][:b.ignoreUsed[i]]
	boxes := make([]processing.Box, len(rows))
	for r, row := range rows {
		boxes[r] = processing.Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}
	}
	return boxes
}

// decodeInput checks every shape contract up front so that no image is processed unless the
// whole batch can be.
func (l *ProposalLayer) decodeInput(in *ProposalInput) (*decodedBatch, error) {
	if in.Scores == nil || in.BBoxDeltas == nil || in.ImInfo == nil {
		return nil, errors.Wrap(processing.ErrShapeMismatch, "scores, bbox deltas and im_info are required")
	}

	scores, err := utils.Float32Dense(in.Scores)
	if err != nil {
		return nil, errors.Wrap(processing.ErrShapeMismatch, err.Error())
	}
	deltas, err := utils.Float32Dense(in.BBoxDeltas)
	if err != nil {
		return nil, errors.Wrap(processing.ErrShapeMismatch, err.Error())
	}
	imInfo, err := utils.Float32Dense(in.ImInfo)
	if err != nil {
		return nil, errors.Wrap(processing.ErrShapeMismatch, err.Error())
	}

	sShape := scores.Shape()
	if len(sShape) != 4 {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "scores must be [batch, A, H, W], got %v", sShape)
	}
	b := &decodedBatch{size: sShape[0], numAnchors: sShape[1], height: sShape[2], width: sShape[3]}
	if b.size == 0 {
		return nil, errors.Wrap(processing.ErrShapeMismatch, "empty batch")
	}
	if b.numAnchors != l.anchors.NumAnchors() {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "scores carry %d anchors per cell, layer has %d templates", b.numAnchors, l.anchors.NumAnchors())
	}

	dShape := deltas.Shape()
	if len(dShape) != 4 || dShape[0] != b.size || dShape[1] != 4*b.numAnchors || dShape[2] != b.height || dShape[3] != b.width {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "bbox deltas must be %v, got %v",
			[]int{b.size, 4 * b.numAnchors, b.height, b.width}, dShape)
	}

	iShape := imInfo.Shape()
	if len(iShape) != 2 || iShape[0] != b.size || iShape[1] != 3 {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "im_info must be [%d, 3], got %v", b.size, iShape)
	}

	b.scoreData = scores.Float32s()
	b.deltaData = deltas.Float32s()
	if b.imInfo, err = native.MatrixF32(imInfo); err != nil {
		return nil, errors.Wrap(err, "cannot read im_info")
	}

	if err := b.decodeIgnore(in); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *decodedBatch) decodeIgnore(in *ProposalInput) error {
	counts := make([]int, b.size)
	switch len(in.NumIgnore) {
	case 0:
	case 1:
		for i := range counts {
			counts[i] = in.NumIgnore[0]
		}
	case b.size:
		copy(counts, in.NumIgnore)
	default:
		return errors.Wrapf(processing.ErrShapeMismatch, "num_ignore has %d entries for a batch of %d", len(in.NumIgnore), b.size)
	}

	total := 0
	for _, c := range counts {
		if c < 0 {
			return errors.Wrapf(processing.ErrShapeMismatch, "negative ignore region count %d", c)
		}
		total += c
	}
	if total == 0 {
		return nil
	}

	if in.IgnoreRegions == nil {
		return errors.Wrap(processing.ErrShapeMismatch, "ignore regions counted but not supplied")
	}
	regions, err := utils.Float32Dense(in.IgnoreRegions)
	if err != nil {
		return errors.Wrap(processing.ErrShapeMismatch, err.Error())
	}
	rShape := regions.Shape()
	if len(rShape) != 3 || rShape[0] != b.size || rShape[2] != 4 {
		return errors.Wrapf(processing.ErrShapeMismatch, "ignore regions must be [%d, R, 4], got %v", b.size, rShape)
	}
	for i, c := range counts {
		if c > rShape[1] {
			return errors.Wrapf(processing.ErrShapeMismatch, "image %d counts %d ignore regions, only %d supplied", i, c, rShape[1])
		}
	}

	if b.ignore, err = native.Tensor3F32(regions); err != nil {
		return errors.Wrap(err, "cannot read ignore regions")
	}
	b.ignoreUsed = counts
	return nil
}
