package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// SegmentationHead is a 1x1 projection followed by a nearest resize to a
// fixed resolution and a sigmoid.
type SegmentationHead struct {
	Conv *nn.Conv2D
	Size []int64
}

// NewSegmentationHead creates new SegmentationHead.
func NewSegmentationHead(p *nn.Path, cIn, cOut, outSize int64) *SegmentationHead {
	return &SegmentationHead{
		Conv: Conv2d(p, cIn, cOut, 1, 0, 1),
		Size: []int64{outSize, outSize},
	}
}

// Logits returns the projected map resized to the head resolution,
// before the sigmoid.
func (h *SegmentationHead) Logits(x *ts.Tensor, train bool) *ts.Tensor {
	logit := h.Conv.ForwardT(x, train)
	return logit.MustUpsampleNearest2d(h.Size, nil, nil, true)
}

// ForwardT implements ts.ModuleT for SegmentationHead.
func (h *SegmentationHead) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return h.Logits(x, train).MustSigmoid(true)
}
