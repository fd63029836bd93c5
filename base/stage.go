package base

import "fmt"

// Fixed constants of the architecture.
const (
	InChannels  int64 = 3   // RGB input
	OutChannels int64 = 1   // binary mask
	OutSize     int64 = 256 // canonical output resolution
	KernelSize  int64 = 3
	Depth             = 4 // number of skip connections

	// BlockShrink is how much a two-layer block of valid convolutions
	// removes from each spatial dimension.
	BlockShrink = 2 * (KernelSize - 1)

	HeadName = "c10"
)

// Stage describes one two-layer block and what happens around it.
type Stage struct {
	Name string // variable path of the block
	CIn  int64
	COut int64
	Push bool // cache the block output as a skip map
	Pool bool // 2x2 max-pool the block output
	Pop  bool // upsample x2 and merge with the last cached skip map before the block
}

// Contracting reports whether the stage belongs to the contracting path
// (including the bottleneck).
func (s Stage) Contracting() bool { return !s.Pop }

var stages = [...]Stage{
	{Name: "c1", CIn: 3, COut: 64, Push: true, Pool: true},
	{Name: "c2", CIn: 64, COut: 128, Push: true, Pool: true},
	{Name: "c3", CIn: 128, COut: 256, Push: true, Pool: true},
	{Name: "c4", CIn: 256, COut: 512, Push: true, Pool: true},
	{Name: "c5", CIn: 512, COut: 512}, // bottleneck: width capped, not doubled
	{Name: "c6", CIn: 1024, COut: 256, Pop: true},
	{Name: "c7", CIn: 512, COut: 128, Pop: true},
	{Name: "c8", CIn: 256, COut: 64, Pop: true},
	{Name: "c9", CIn: 128, COut: 64, Pop: true},
}

// Stages returns a copy of the nine-stage table in execution order.
func Stages() []Stage {
	s := stages
	return s[:]
}

// CheckStages validates the channel-width invariants of a stage table:
// the contracting path doubles its width (the bottleneck may repeat it),
// every expanding block consumes upsampled plus skip channels, skips are
// consumed last-in first-out, and the final width feeds the head.
func CheckStages(stages []Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("empty stage table")
	}
	if stages[0].CIn != InChannels {
		return fmt.Errorf("stage %v: expected %v input channels. Got %v", stages[0].Name, InChannels, stages[0].CIn)
	}

	var (
		skips    []int64
		prevOut  int64 = InChannels
		expanded bool
	)
	for i, s := range stages {
		if s.Pop {
			expanded = true
			if len(skips) == 0 {
				return fmt.Errorf("stage %v: no skip map left to merge", s.Name)
			}
			skip := skips[len(skips)-1]
			skips = skips[:len(skips)-1]
			if s.CIn != skip+prevOut {
				return fmt.Errorf("stage %v: expected %v input channels (%v skip + %v upsampled). Got %v", s.Name, skip+prevOut, skip, prevOut, s.CIn)
			}
		} else {
			if expanded {
				return fmt.Errorf("stage %v: contracting stage after the expanding path", s.Name)
			}
			if s.CIn != prevOut {
				return fmt.Errorf("stage %v: expected %v input channels. Got %v", s.Name, prevOut, s.CIn)
			}
			bottleneck := !s.Push
			switch {
			case i == 0:
			case s.COut == 2*s.CIn:
			case bottleneck && s.COut == s.CIn:
			default:
				return fmt.Errorf("stage %v: contracting width %v -> %v is neither doubled nor a bottleneck cap", s.Name, s.CIn, s.COut)
			}
		}
		if s.Push {
			if !s.Pool {
				return fmt.Errorf("stage %v: cached stage must be pooled", s.Name)
			}
			skips = append(skips, s.COut)
			if len(skips) > Depth {
				return fmt.Errorf("stage %v: more than %v skip maps", s.Name, Depth)
			}
		}
		prevOut = s.COut
	}

	if len(skips) != 0 {
		return fmt.Errorf("%v skip maps never consumed", len(skips))
	}

	return nil
}
