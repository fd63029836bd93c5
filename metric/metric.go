// Package metric scores predicted probability maps against binary masks.
//
// Both inputs are thresholded at Threshold before counting, so they may be
// probabilities, logits shifted to (0, 1), or 0/1 masks of any shape with
// the same number of elements.
package metric

import (
	"fmt"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// Threshold separates foreground from background.
const Threshold = 0.5

type confusion struct {
	tp float64 // predicted and true foreground
	p  float64 // predicted foreground
	t  float64 // true foreground
	n  float64 // all elements
}

func sum(x *ts.Tensor) float64 {
	s := x.MustSum(gotch.Double, false)
	v := s.Float64Values()[0]
	s.MustDrop()
	return v
}

func count(pred, target *ts.Tensor) confusion {
	if pred.Numel() != target.Numel() {
		panic(fmt.Errorf("Expected tensors of the same number of elements. Got %v and %v", pred.MustSize(), target.MustSize()))
	}

	iflat := pred.MustReshape([]int64{-1}, false)
	tflat := target.MustReshape([]int64{-1}, false)
	p := iflat.MustGt(ts.FloatScalar(Threshold), true)
	t := tflat.MustGt(ts.FloatScalar(Threshold), true)
	pt := p.MustMul(t, false)

	c := confusion{
		tp: sum(pt),
		p:  sum(p),
		t:  sum(t),
		n:  float64(p.Numel()),
	}
	p.MustDrop()
	t.MustDrop()
	pt.MustDrop()

	return c
}

// DiceCoeff returns 2|P∩T| / (|P|+|T|). Two empty masks score 1.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	c := count(pred, target)
	if c.p+c.t == 0 {
		return 1
	}
	return 2 * c.tp / (c.p + c.t)
}

// IoU returns the foreground intersection over union |P∩T| / |P∪T|.
// Two empty masks score 1.
func IoU(pred, target *ts.Tensor) float64 {
	c := count(pred, target)
	return ratio(c.tp, c.p+c.t-c.tp)
}

// JaccardIndex returns the mean of foreground and background IoU.
func JaccardIndex(pred, target *ts.Tensor) float64 {
	c := count(pred, target)
	fg := ratio(c.tp, c.p+c.t-c.tp)
	tn := c.n - c.p - c.t + c.tp
	bg := ratio(tn, c.n-c.tp)
	return (fg + bg) / 2
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 1
	}
	return a / b
}
