package unet

import (
	"errors"

	"github.com/sugarme/unetseg/base"
)

type (
	ShapeError           = base.ShapeError
	ChannelMismatchError = base.ChannelMismatchError
	AlignmentError       = base.AlignmentError
	RankError            = base.RankError
	BatchStatsError      = base.BatchStatsError
)

var (
	ErrSkipOverflow  = errors.New("skip stack is full")
	ErrSkipUnderflow = errors.New("skip stack is empty")
)
