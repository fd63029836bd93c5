package unet

import (
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unetseg/base"
)

// SkipStack holds the skip feature maps of one forward pass. Maps are
// pushed by the contracting path and popped, last first, by the expanding
// path. A popped map belongs to the caller.
type SkipStack struct {
	maps [base.Depth]*ts.Tensor
	n    int
}

// Push caches x. It fails with ErrSkipOverflow when the stack is full.
func (s *SkipStack) Push(x *ts.Tensor) error {
	if s.n == len(s.maps) {
		return ErrSkipOverflow
	}
	s.maps[s.n] = x
	s.n++
	return nil
}

// Pop returns the most recently pushed map.
func (s *SkipStack) Pop() (*ts.Tensor, error) {
	if s.n == 0 {
		return nil, ErrSkipUnderflow
	}
	s.n--
	x := s.maps[s.n]
	s.maps[s.n] = nil
	return x, nil
}

// Len returns the number of maps not yet consumed.
func (s *SkipStack) Len() int { return s.n }

// Drop releases maps that were never popped.
func (s *SkipStack) Drop() {
	for s.n > 0 {
		s.n--
		if x := s.maps[s.n]; x != nil {
			x.MustDrop()
		}
		s.maps[s.n] = nil
	}
}
