package base

import "fmt"

// ShapeError reports a stage whose output would have a non-positive
// spatial size.
type ShapeError struct {
	Stage  string
	Dim    string  // "height" or "width"
	Input  []int64 // spatial size entering the stage
	Output []int64 // spatial size the stage would produce
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%v: %v collapses: input %v would give output %v", e.Stage, e.Dim, e.Input, e.Output)
}

// ChannelMismatchError reports an input with the wrong number of channels.
type ChannelMismatchError struct {
	Want int64
	Got  int64
}

func (e *ChannelMismatchError) Error() string {
	return fmt.Sprintf("Expected input of %v channels. Got %v", e.Want, e.Got)
}

// AlignmentError reports an upsampled map larger than its skip map while
// strict alignment is on.
type AlignmentError struct {
	Skip []int64
	Up   []int64
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("upsampled map %v exceeds skip map %v", e.Up, e.Skip)
}

// RankError reports a tensor that is not [batch, channels, height, width].
type RankError struct {
	Want int
	Got  []int64
}

func (e *RankError) Error() string {
	return fmt.Sprintf("Expected %vD tensor. Got shape %v", e.Want, e.Got)
}

// BatchStatsError reports a training-mode pass in which a batch norm of
// stage would see fewer than two values per channel. Its running variance
// would become NaN.
type BatchStatsError struct {
	Stage string
	Batch int64
	Size  []int64 // spatial size of the normalized map
}

func (e *BatchStatsError) Error() string {
	return fmt.Sprintf("%v: Expected more than 1 value per channel when training. Got batch %v of %v", e.Stage, e.Batch, e.Size)
}
