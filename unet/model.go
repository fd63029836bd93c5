package unet

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unetseg/base"
	"github.com/sugarme/unetseg/encoder"
)

// UNet is a UNET model struct with valid convolutions and padded skip
// merges.
// Ref: https://arxiv.org/abs/1505.04597
type UNet struct {
	encoder encoder.Encoder
	blocks  []*base.DoubleConv
	decoder *Decoder
	segHead *base.SegmentationHead
	strict  bool
}

type options struct {
	strict bool
}

// Option configures a UNet.
type Option func(*options)

// WithStrictAlignment makes the skip bridge reject an upsampled map larger
// than its skip map instead of cropping it.
func WithStrictAlignment() Option {
	return func(o *options) { o.strict = true }
}

// NewUNet creates a UNet under path p. Variables are named after the
// stage table (c1..c9, each with c1, bn1, c2, bn2) and the head (c10).
func NewUNet(p *nn.Path, opts ...Option) *UNet {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	stages := base.Stages()
	if err := base.CheckStages(stages); err != nil {
		log.Fatalf("Invalid stage table: %v\n", err)
	}

	var down, up []base.Stage
	for _, s := range stages {
		if s.Contracting() {
			down = append(down, s)
		} else {
			up = append(up, s)
		}
	}

	enc := encoder.NewContracting(p, down)
	dec := NewDecoder(p, up, o.strict)
	head := base.NewSegmentationHead(p.Sub(base.HeadName), up[len(up)-1].COut, base.OutChannels, base.OutSize)

	var blocks []*base.DoubleConv
	blocks = append(blocks, enc.Blocks...)
	blocks = append(blocks, dec.Blocks...)

	return &UNet{
		encoder: enc,
		blocks:  blocks,
		decoder: dec,
		segHead: head,
		strict:  o.strict,
	}
}

// Blocks returns the nine two-layer blocks in stage order.
func (n *UNet) Blocks() []*base.DoubleConv {
	return append([]*base.DoubleConv(nil), n.blocks...)
}

// Head returns the output head.
func (n *UNet) Head() *base.SegmentationHead { return n.segHead }

// Forward checks x ([B 3 H W]) and forwards it to a [B 1 256 256] map of
// probabilities. With train=true batch-norm statistics come from the batch
// and running estimates are updated; otherwise running estimates are read.
// Training needs more than one value per channel at every batch norm: a
// single 140x140 image leaves the bottleneck at 1x1 and is rejected with a
// *BatchStatsError.
func (n *UNet) Forward(x *ts.Tensor, train bool) (*ts.Tensor, error) {
	size := x.MustSize()
	if len(size) != 4 {
		return nil, &RankError{Want: 4, Got: size}
	}
	if size[1] != base.InChannels {
		return nil, &ChannelMismatchError{Want: base.InChannels, Got: size[1]}
	}
	plan, err := NewPlan(size[2], size[3], n.strict)
	if err != nil {
		return nil, err
	}
	if train {
		// reject before any running statistics are touched.
		if err := plan.CheckBatchStats(size[0]); err != nil {
			return nil, err
		}
	}

	features, err := n.encoder.ForwardAll(x, train)
	if err != nil {
		return nil, err
	}

	skips := &SkipStack{}
	defer skips.Drop()
	last := len(features) - 1
	bottleneck := features[last]
	for i, f := range features[:last] {
		if err := skips.Push(f); err != nil {
			for _, rest := range features[i:] {
				rest.MustDrop()
			}
			return nil, err
		}
	}

	out, err := n.decoder.ForwardSkips(bottleneck, skips, train)
	bottleneck.MustDrop()
	if err != nil {
		return nil, err
	}
	if skips.Len() != 0 {
		out.MustDrop()
		return nil, fmt.Errorf("%v skip maps left unconsumed", skips.Len())
	}

	masks := n.segHead.ForwardT(out, train)
	out.MustDrop()

	return masks, nil
}

// ForwardT implements ts.ModuleT for UNet. It panics where Forward
// returns an error.
func (n *UNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	masks, err := n.Forward(x, train)
	if err != nil {
		panic(err)
	}
	return masks
}

// Predict runs an evaluation-mode forward pass without gradient tracking.
func (n *UNet) Predict(x *ts.Tensor) (*ts.Tensor, error) {
	var (
		masks *ts.Tensor
		err   error
	)
	ts.NoGrad(func() {
		masks, err = n.Forward(x, false)
	})
	return masks, err
}
