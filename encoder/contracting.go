package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unetseg/base"
)

var _ Encoder = (*Contracting)(nil)

// Contracting is the contracting path of a UNet: a two-layer block per
// stage, each followed by 2x2 max-pooling except the last one.
type Contracting struct {
	Stages []base.Stage
	Blocks []*base.DoubleConv
}

// NewContracting creates the contracting path for the given stages.
// Block variables live under p.Sub(stage.Name).
func NewContracting(p *nn.Path, stages []base.Stage) *Contracting {
	blocks := make([]*base.DoubleConv, len(stages))
	for i, s := range stages {
		blocks[i] = base.NewDoubleConv(p.Sub(s.Name), s.Name, s.CIn, s.COut)
	}

	return &Contracting{
		Stages: stages,
		Blocks: blocks,
	}
}

// ForwardAll implements Encoder interface for Contracting.
//
// With the default table and a [B 3 572 572] input:
//   c1 [B  64 568 568]  (skip)
//   c2 [B 128 280 280]  (skip)
//   c3 [B 256 136 136]  (skip)
//   c4 [B 512  64  64]  (skip)
//   c5 [B 512  28  28]
func (e *Contracting) ForwardAll(x *ts.Tensor, train bool) ([]*ts.Tensor, error) {
	var features []*ts.Tensor
	fail := func(err error) ([]*ts.Tensor, error) {
		for _, f := range features {
			f.MustDrop()
		}
		return nil, err
	}

	cur := x
	for i, b := range e.Blocks {
		s := e.Stages[i]
		out, err := b.Forward(cur, train)
		if cur != x {
			cur.MustDrop()
		}
		if err != nil {
			return fail(fmt.Errorf("contracting path: %w", err))
		}

		if !s.Pool {
			features = append(features, out)
			return features, nil
		}

		if s.Push {
			features = append(features, out)
		}
		size := out.MustSize()
		if err := base.CheckPool(s.Name, size[2], size[3]); err != nil {
			if !s.Push {
				out.MustDrop()
			}
			return fail(fmt.Errorf("contracting path: %w", err))
		}
		// ksize = 2; stride=2; padding=0; dilation=1; ceil=false
		cur = out.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, !s.Push)
	}

	// every stage pooled: the last pooled map is the deepest feature.
	if cur != x {
		features = append(features, cur)
	}
	return features, nil
}
