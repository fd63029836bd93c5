package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unetseg/base"
)

// SplitDeficit splits a size deficit d into leading and trailing padding:
// floor(d/2) leads, the rest trails. A negative d gives negative amounts,
// i.e. a crop, with the same floor rule.
func SplitDeficit(d int64) (lead, trail int64) {
	lead = d / 2
	if d < 0 && d%2 != 0 {
		lead-- // floor, not truncate
	}
	return lead, d - lead
}

// Padding returns the [top, bottom, left, right] amounts that bring a map of
// spatial size up to the spatial size of ref.
func Padding(ref, up []int64) []int64 {
	top, bottom := SplitDeficit(ref[0] - up[0])
	left, right := SplitDeficit(ref[1] - up[1])
	return []int64{top, bottom, left, right}
}

// ResizeAndCat zero-pads up to the spatial size of skip and concatenates
// them along channels, skip first.
//
// When up is larger than skip in some dimension the deficit is negative:
// up is cropped with the same split, or an *AlignmentError is returned
// if strict is set.
func ResizeAndCat(skip, up *ts.Tensor, strict bool) (*ts.Tensor, error) {
	a := skip.MustSize()
	b := up.MustSize()
	if len(a) != 4 {
		return nil, &RankError{Want: 4, Got: a}
	}
	if len(b) != 4 {
		return nil, &RankError{Want: 4, Got: b}
	}
	if a[0] != b[0] {
		return nil, fmt.Errorf("batch size mismatch: skip %v, upsampled %v", a, b)
	}

	pad := Padding(a[2:], b[2:])
	top, bottom, left, right := pad[0], pad[1], pad[2], pad[3]
	if strict && (top+bottom < 0 || left+right < 0) {
		return nil, &AlignmentError{Skip: a, Up: b}
	}

	padded := padOrCrop(up, top, bottom, left, right)
	cat := ts.MustCat([]ts.Tensor{*skip, *padded}, 1)
	if padded != up {
		padded.MustDrop()
	}

	return cat, nil
}

// padOrCrop applies signed padding on dims 2 (top/bottom) and 3
// (left/right). It returns x itself when all amounts are zero.
func padOrCrop(x *ts.Tensor, top, bottom, left, right int64) *ts.Tensor {
	out := x
	crop := func(dim, lead, trail int64) {
		if lead >= 0 && trail >= 0 {
			return
		}
		size := out.MustSize()[dim]
		start := -min64(lead, 0)
		length := size + min64(lead, 0) + min64(trail, 0)
		narrowed := out.MustNarrow(dim, start, length, false)
		if out != x {
			out.MustDrop()
		}
		out = narrowed
	}
	crop(2, top, bottom)
	crop(3, left, right)

	// padding order: last dim first.
	pad := []int64{max64(left, 0), max64(right, 0), max64(top, 0), max64(bottom, 0)}
	if pad[0] == 0 && pad[1] == 0 && pad[2] == 0 && pad[3] == 0 {
		return out
	}
	padded := out.MustConstantPadNd(pad, false)
	if out != x {
		out.MustDrop()
	}
	return padded
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// interpolation using `nearest` algorithm, scale factor 2.
func upsample(x *ts.Tensor) *ts.Tensor {
	size := x.MustSize()
	return x.MustUpsampleNearest2d([]int64{2 * size[2], 2 * size[3]}, nil, nil, false)
}

// Decoder is the expanding path of a UNet.
type Decoder struct {
	Stages []base.Stage
	Blocks []*base.DoubleConv
	strict bool
}

// NewDecoder creates the expanding path for the given stages.
func NewDecoder(p *nn.Path, stages []base.Stage, strict bool) *Decoder {
	blocks := make([]*base.DoubleConv, len(stages))
	for i, s := range stages {
		blocks[i] = base.NewDoubleConv(p.Sub(s.Name), s.Name, s.CIn, s.COut)
	}

	return &Decoder{
		Stages: stages,
		Blocks: blocks,
		strict: strict,
	}
}

// ForwardSkips upsamples x and, per stage, merges it with the next skip map
// popped from skips before forwarding through the stage block.
func (d *Decoder) ForwardSkips(x *ts.Tensor, skips *SkipStack, train bool) (*ts.Tensor, error) {
	cur := x
	release := func() {
		if cur != x {
			cur.MustDrop()
		}
	}

	for _, b := range d.Blocks {
		skip, err := skips.Pop()
		if err != nil {
			release()
			return nil, fmt.Errorf("%v: %w", b.Name, err)
		}

		up := upsample(cur)
		release()
		cat, err := ResizeAndCat(skip, up, d.strict)
		skip.MustDrop()
		up.MustDrop()
		if err != nil {
			return nil, fmt.Errorf("%v: %w", b.Name, err)
		}

		cur, err = b.Forward(cat, train)
		cat.MustDrop()
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
	}

	return cur, nil
}
