package unet

import (
	"github.com/sugarme/unetseg/base"
)

// StagePlan is the spatial bookkeeping of one stage for a given input size.
// Sizes are [height, width].
type StagePlan struct {
	Stage base.Stage
	In    []int64 // block input
	Out   []int64 // block output

	// contracting stages with Pool set
	Pooled []int64

	// expanding stages
	Up       []int64 // upsampled map before the bridge
	Skip     []int64 // skip map it is merged with
	PadLead  []int64 // top, left
	PadTrail []int64 // bottom, right
}

// Plan is the shape trace of a whole forward pass.
type Plan struct {
	Input  []int64
	Stages []StagePlan
	Output []int64
}

// NewPlan traces spatial sizes through the network for an (h, w) input
// without touching tensors. It fails where the forward pass would: a
// *ShapeError for a collapsing block or pool, an *AlignmentError for a
// negative bridge deficit when strict is set.
func NewPlan(h, w int64, strict bool) (*Plan, error) {
	plan := &Plan{Input: []int64{h, w}}

	var (
		cur   = []int64{h, w}
		skips [][]int64
	)
	for _, s := range base.Stages() {
		sp := StagePlan{Stage: s}
		if s.Pop {
			skip := skips[len(skips)-1]
			skips = skips[:len(skips)-1]
			up := []int64{2 * cur[0], 2 * cur[1]}
			pad := Padding(skip, up)
			if strict && (pad[0]+pad[1] < 0 || pad[2]+pad[3] < 0) {
				return nil, &AlignmentError{Skip: skip, Up: up}
			}
			sp.Up = up
			sp.Skip = skip
			sp.PadLead = []int64{pad[0], pad[2]}
			sp.PadTrail = []int64{pad[1], pad[3]}
			cur = skip
		}

		if err := base.CheckBlock(s.Name, cur[0], cur[1]); err != nil {
			return nil, err
		}
		sp.In = cur
		sp.Out = []int64{base.BlockOut(cur[0]), base.BlockOut(cur[1])}
		cur = sp.Out

		if s.Push {
			skips = append(skips, sp.Out)
		}
		if s.Pool {
			if err := base.CheckPool(s.Name, cur[0], cur[1]); err != nil {
				return nil, err
			}
			sp.Pooled = []int64{base.PoolOut(cur[0]), base.PoolOut(cur[1])}
			cur = sp.Pooled
		}
		plan.Stages = append(plan.Stages, sp)
	}
	plan.Output = []int64{base.OutSize, base.OutSize}

	return plan, nil
}

// CheckBatchStats returns a *BatchStatsError for the first stage whose
// batch norms would see fewer than two values per channel when a batch of
// the given size is forwarded in training mode.
func (p *Plan) CheckBatchStats(batch int64) error {
	for _, sp := range p.Stages {
		if err := base.CheckBatchStats(sp.Stage.Name, batch, sp.In[0], sp.In[1]); err != nil {
			return err
		}
	}
	return nil
}

// maxSearch bounds MinInputSize; the reference table needs 140.
const maxSearch = 1 << 14

// MinInputSize returns the smallest n for which an n x n input survives
// the network, or 0 if none up to maxSearch does.
func MinInputSize() int64 {
	for n := int64(1); n <= maxSearch; n++ {
		if _, err := NewPlan(n, n, false); err == nil {
			return n
		}
	}
	return 0
}
