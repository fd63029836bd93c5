package unet_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unetseg/unet"
)

func TestSplitDeficit(t *testing.T) {
	tests := []struct {
		d, lead, trail int64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{3, 1, 2},
		{5, 2, 3},
		{8, 4, 4},
		{-1, -1, 0},
		{-3, -2, -1},
		{-4, -2, -2},
	}
	for _, tt := range tests {
		lead, trail := unet.SplitDeficit(tt.d)
		assert.Equal(t, tt.lead, lead, "lead of %v", tt.d)
		assert.Equal(t, tt.trail, trail, "trail of %v", tt.d)
	}
}

func TestPadding(t *testing.T) {
	// deficit (3, 5): (1, 2) leading, (2, 3) trailing.
	pad := unet.Padding([]int64{7, 9}, []int64{4, 4})
	assert.Equal(t, []int64{1, 2, 2, 3}, pad)
}

// at reads element [b, c, h, w] of a contiguous 4D tensor.
func at(vals []float64, size []int64, b, c, h, w int64) float64 {
	return vals[((b*size[1]+c)*size[2]+h)*size[3]+w]
}

func TestResizeAndCatPads(t *testing.T) {
	skip := ts.MustZeros([]int64{2, 2, 7, 9}, gotch.Float, gotch.CPU)
	up := ts.MustOnes([]int64{2, 3, 4, 4}, gotch.Float, gotch.CPU)
	defer skip.MustDrop()
	defer up.MustDrop()

	cat, err := unet.ResizeAndCat(skip, up, true)
	require.NoError(t, err)
	defer cat.MustDrop()

	size := cat.MustSize()
	assert.Equal(t, []int64{2, 5, 7, 9}, size)

	vals := cat.Float64Values()
	for b := int64(0); b < 2; b++ {
		for c := int64(0); c < 5; c++ {
			for h := int64(0); h < 7; h++ {
				for w := int64(0); w < 9; w++ {
					want := 0.0
					// skip channels first; the upsampled block sits at rows 1..4, cols 2..5.
					if c >= 2 && h >= 1 && h < 5 && w >= 2 && w < 6 {
						want = 1
					}
					require.Equal(t, want, at(vals, size, b, c, h, w), "[%v %v %v %v]", b, c, h, w)
				}
			}
		}
	}
}

func TestResizeAndCatSameSize(t *testing.T) {
	skip := ts.MustOnes([]int64{1, 4, 6, 6}, gotch.Float, gotch.CPU)
	up := ts.MustOnes([]int64{1, 2, 6, 6}, gotch.Float, gotch.CPU)
	defer skip.MustDrop()
	defer up.MustDrop()

	cat, err := unet.ResizeAndCat(skip, up, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 6, 6, 6}, cat.MustSize())
	cat.MustDrop()
}

func TestResizeAndCatNegativeDeficit(t *testing.T) {
	skip := ts.MustZeros([]int64{1, 1, 4, 6}, gotch.Float, gotch.CPU)
	up := ts.MustOnes([]int64{1, 1, 7, 6}, gotch.Float, gotch.CPU)
	defer skip.MustDrop()
	defer up.MustDrop()

	_, err := unet.ResizeAndCat(skip, up, true)
	var alignErr *unet.AlignmentError
	require.True(t, errors.As(err, &alignErr))
	assert.Equal(t, []int64{1, 1, 4, 6}, alignErr.Skip)
	assert.Equal(t, []int64{1, 1, 7, 6}, alignErr.Up)

	// crop fallback keeps the skip size.
	cat, err := unet.ResizeAndCat(skip, up, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4, 6}, cat.MustSize())
	cat.MustDrop()
}

func TestResizeAndCatCropRows(t *testing.T) {
	// rows 0..6 hold their index; a deficit of -3 crops 2 leading and 1 trailing row.
	rows := make([]float32, 7)
	for i := range rows {
		rows[i] = float32(i)
	}
	up := ts.MustOfSlice(rows).MustView([]int64{1, 1, 7, 1}, true)
	skip := ts.MustZeros([]int64{1, 1, 4, 1}, gotch.Float, gotch.CPU)
	defer skip.MustDrop()
	defer up.MustDrop()

	cat, err := unet.ResizeAndCat(skip, up, false)
	require.NoError(t, err)
	defer cat.MustDrop()

	vals := cat.Float64Values()
	assert.Equal(t, []float64{0, 0, 0, 0, 2, 3, 4, 5}, vals)
}

func TestResizeAndCatErrors(t *testing.T) {
	skip := ts.MustZeros([]int64{2, 1, 4, 4}, gotch.Float, gotch.CPU)
	up := ts.MustZeros([]int64{1, 1, 4, 4}, gotch.Float, gotch.CPU)
	flat := ts.MustZeros([]int64{1, 4, 4}, gotch.Float, gotch.CPU)
	defer skip.MustDrop()
	defer up.MustDrop()
	defer flat.MustDrop()

	_, err := unet.ResizeAndCat(skip, up, false)
	assert.Error(t, err)

	_, err = unet.ResizeAndCat(flat, up, false)
	var rankErr *unet.RankError
	assert.True(t, errors.As(err, &rankErr))
}
