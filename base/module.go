package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// BlockOut returns the spatial size after a two-layer block.
func BlockOut(n int64) int64 { return n - BlockShrink }

// PoolOut returns the spatial size after 2x2 max-pooling (floor on odd sizes).
func PoolOut(n int64) int64 { return n / 2 }

// CheckBlock returns a *ShapeError if a block named stage cannot process
// an input of spatial size (h, w).
func CheckBlock(stage string, h, w int64) error {
	oh, ow := BlockOut(h), BlockOut(w)
	switch {
	case oh <= 0:
		return &ShapeError{Stage: stage, Dim: "height", Input: []int64{h, w}, Output: []int64{oh, ow}}
	case ow <= 0:
		return &ShapeError{Stage: stage, Dim: "width", Input: []int64{h, w}, Output: []int64{oh, ow}}
	}
	return nil
}

// CheckPool returns a *ShapeError if 2x2 max-pooling the output of stage
// would leave nothing of a (h, w) map.
func CheckPool(stage string, h, w int64) error {
	oh, ow := PoolOut(h), PoolOut(w)
	switch {
	case oh <= 0:
		return &ShapeError{Stage: stage + " pool", Dim: "height", Input: []int64{h, w}, Output: []int64{oh, ow}}
	case ow <= 0:
		return &ShapeError{Stage: stage + " pool", Dim: "width", Input: []int64{h, w}, Output: []int64{oh, ow}}
	}
	return nil
}

// CheckBatchStats returns a *BatchStatsError if a block named stage, fed a
// batch of (h, w) maps in training mode, would normalize fewer than two
// values per channel. The second batch norm sees the smallest map.
func CheckBatchStats(stage string, batch, h, w int64) error {
	oh, ow := BlockOut(h), BlockOut(w)
	if batch*oh*ow < 2 {
		return &BatchStatsError{Stage: stage, Batch: batch, Size: []int64{oh, ow}}
	}
	return nil
}

// DoubleConv is a two-layer block: (valid 3x3 conv -> ReLU -> BatchNorm) x 2.
//
// Running statistics of both batch norms are written only when ForwardT
// is called with train=true.
type DoubleConv struct {
	Name string
	CIn  int64
	COut int64

	C1  *nn.Conv2D
	Bn1 *nn.BatchNorm
	C2  *nn.Conv2D
	Bn2 *nn.BatchNorm
}

// NewDoubleConv creates a DoubleConv under path p. Variables are named
// c1, bn1, c2, bn2.
func NewDoubleConv(p *nn.Path, name string, cIn, cOut int64) *DoubleConv {
	return &DoubleConv{
		Name: name,
		CIn:  cIn,
		COut: cOut,
		C1:   Conv2d(p.Sub("c1"), cIn, cOut, KernelSize, 0, 1),
		Bn1:  nn.BatchNorm2D(p.Sub("bn1"), cOut, nn.DefaultBatchNormConfig()),
		C2:   Conv2d(p.Sub("c2"), cOut, cOut, KernelSize, 0, 1),
		Bn2:  nn.BatchNorm2D(p.Sub("bn2"), cOut, nn.DefaultBatchNormConfig()),
	}
}

// Forward checks the input size and forwards x through the block.
func (b *DoubleConv) Forward(x *ts.Tensor, train bool) (*ts.Tensor, error) {
	size := x.MustSize()
	if len(size) != 4 {
		return nil, &RankError{Want: 4, Got: size}
	}
	if err := CheckBlock(b.Name, size[2], size[3]); err != nil {
		return nil, err
	}
	if train {
		if err := CheckBatchStats(b.Name, size[0], size[2], size[3]); err != nil {
			return nil, err
		}
	}

	c1 := b.C1.ForwardT(x, train)
	r1 := c1.MustRelu(true)
	n1 := b.Bn1.ForwardT(r1, train)
	r1.MustDrop()

	c2 := b.C2.ForwardT(n1, train)
	n1.MustDrop()
	r2 := c2.MustRelu(true)
	out := b.Bn2.ForwardT(r2, train)
	r2.MustDrop()

	return out, nil
}

// ForwardT implements ts.ModuleT for DoubleConv. It panics where Forward returns an error.
func (b *DoubleConv) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out, err := b.Forward(x, train)
	if err != nil {
		panic(err)
	}
	return out
}
