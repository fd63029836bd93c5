package base_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unetseg/base"
)

func TestCheckBlock(t *testing.T) {
	assert.NoError(t, base.CheckBlock("c1", 5, 5))
	assert.NoError(t, base.CheckBlock("c1", 572, 9))

	err := base.CheckBlock("c1", 4, 10)
	var shapeErr *base.ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "c1", shapeErr.Stage)
	assert.Equal(t, "height", shapeErr.Dim)
	assert.Equal(t, []int64{4, 10}, shapeErr.Input)
	assert.Equal(t, []int64{0, 6}, shapeErr.Output)

	err = base.CheckBlock("c3", 10, 2)
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "width", shapeErr.Dim)
}

func TestCheckPool(t *testing.T) {
	assert.NoError(t, base.CheckPool("c4", 2, 3))
	assert.Equal(t, int64(4), base.PoolOut(9))

	err := base.CheckPool("c4", 1, 8)
	var shapeErr *base.ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "c4 pool", shapeErr.Stage)
}

func TestDoubleConvForward(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	block := base.NewDoubleConv(vs.Root().Sub("c1"), "c1", 3, 8)

	ts.NoGrad(func() {
		x := ts.MustRand([]int64{2, 3, 12, 9}, gotch.Float, gotch.CPU)
		out, err := block.Forward(x, false)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 8, 8, 5}, out.MustSize())
		out.MustDrop()

		small := ts.MustRand([]int64{1, 3, 4, 9}, gotch.Float, gotch.CPU)
		_, err = block.Forward(small, false)
		var shapeErr *base.ShapeError
		assert.True(t, errors.As(err, &shapeErr))

		flat := ts.MustRand([]int64{3, 12, 9}, gotch.Float, gotch.CPU)
		_, err = block.Forward(flat, false)
		var rankErr *base.RankError
		assert.True(t, errors.As(err, &rankErr))

		x.MustDrop()
		small.MustDrop()
		flat.MustDrop()
	})

	vars := vs.Variables()
	for _, name := range []string{
		"c1.c1.weight", "c1.c1.bias", "c1.c2.weight", "c1.c2.bias",
		"c1.bn1.weight", "c1.bn1.bias", "c1.bn1.running_mean", "c1.bn1.running_var",
		"c1.bn2.weight", "c1.bn2.bias", "c1.bn2.running_mean", "c1.bn2.running_var",
	} {
		_, ok := vars[name]
		assert.True(t, ok, name)
	}
	w := vars["c1.c1.weight"]
	assert.Equal(t, []int64{8, 3, 3, 3}, w.MustSize())
}

func TestDoubleConvTrainUpdatesRunningStats(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	block := base.NewDoubleConv(vs.Root(), "c1", 3, 4)

	before := block.Bn1.RunningMean.Float64Values()
	ts.NoGrad(func() {
		x := ts.MustRand([]int64{2, 3, 8, 8}, gotch.Float, gotch.CPU)
		out := block.ForwardT(x, false)
		out.MustDrop()
		assert.Equal(t, before, block.Bn1.RunningMean.Float64Values())

		out = block.ForwardT(x, true)
		out.MustDrop()
		x.MustDrop()
	})
	assert.NotEqual(t, before, block.Bn1.RunningMean.Float64Values())
}

func TestSegmentationHead(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	head := base.NewSegmentationHead(vs.Root().Sub(base.HeadName), 64, 1, base.OutSize)

	ts.NoGrad(func() {
		x := ts.MustRandn([]int64{2, 64, 20, 30}, gotch.Float, gotch.CPU)
		out := head.ForwardT(x, false)
		assert.Equal(t, []int64{2, 1, 256, 256}, out.MustSize())
		for _, v := range out.Float64Values() {
			assert.True(t, v > 0 && v < 1)
		}
		out.MustDrop()
		x.MustDrop()
	})

	w := vs.Variables()["c10.weight"]
	assert.Equal(t, []int64{1, 64, 1, 1}, w.MustSize())
}

func TestDoubleConvBatchStats(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	block := base.NewDoubleConv(vs.Root(), "c5", 3, 4)

	// a single 5x5 map leaves one value per channel at bn2.
	x := ts.MustRand([]int64{1, 3, 5, 5}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	before := block.Bn2.RunningVar.Float64Values()
	_, err := block.Forward(x, true)
	var statsErr *base.BatchStatsError
	require.True(t, errors.As(err, &statsErr))
	assert.Equal(t, "c5", statsErr.Stage)
	assert.Equal(t, int64(1), statsErr.Batch)
	assert.Equal(t, []int64{1, 1}, statsErr.Size)
	assert.Equal(t, before, block.Bn2.RunningVar.Float64Values())

	// evaluation mode reads running estimates and is fine.
	out, err := block.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 1, 1}, out.MustSize())
	out.MustDrop()

	assert.NoError(t, base.CheckBatchStats("c5", 2, 5, 5))
	assert.NoError(t, base.CheckBatchStats("c5", 1, 6, 5))
	assert.Error(t, base.CheckBatchStats("c5", 1, 5, 5))
}
