// Package report renders network shape plans and prediction statistics.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/unetseg/unet"
)

var planColumns = []string{"stage", "in_ch", "out_ch", "input", "output", "pooled", "up", "skip", "pad_lead", "pad_trail"}

func hw(size []int64) string {
	if len(size) == 0 {
		return "-"
	}
	return fmt.Sprintf("%vx%v", size[0], size[1])
}

// PlanFrame returns one row per stage of plan.
func PlanFrame(plan *unet.Plan) dataframe.DataFrame {
	records := [][]string{planColumns}
	for _, sp := range plan.Stages {
		records = append(records, []string{
			sp.Stage.Name,
			strconv.FormatInt(sp.Stage.CIn, 10),
			strconv.FormatInt(sp.Stage.COut, 10),
			hw(sp.In),
			hw(sp.Out),
			hw(sp.Pooled),
			hw(sp.Up),
			hw(sp.Skip),
			hw(sp.PadLead),
			hw(sp.PadTrail),
		})
	}

	return dataframe.LoadRecords(records)
}

// WritePlan writes the plan table as CSV.
func WritePlan(w io.Writer, plan *unet.Plan) error {
	df := PlanFrame(plan)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// SaveHistogram plots a histogram of values into filename. The format
// follows the file extension (png, svg, pdf, ...).
func SaveHistogram(filename, title string, values []float64, bins int) error {
	p, err := plot.New()
	if err != nil {
		return err
	}

	v := make(plotter.Values, len(values))
	copy(v, values)

	h, err := plotter.NewHist(v, bins)
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.X.Label.Text = "probability"
	p.Y.Label.Text = "pixels"
	p.Add(h)

	return p.Save(4*vg.Inch, 4*vg.Inch, filename)
}
