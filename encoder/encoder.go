package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Encoder is encoder interface for a image segmentation model.
//
// ForwardAll returns the skip feature maps in capture order followed by
// the deepest feature map.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) ([]*ts.Tensor, error)
}
