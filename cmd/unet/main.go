package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/sugarme/gotch"
)

// flag variables
var (
	InputPath  string
	OutputPath string
	ModelPath  string
	ModelFrom  string
	HistPath   string
	Cuda       bool
	Overlay    bool
	task       string
	Device     gotch.Device
)

// inference settings
var (
	ImageSize int     // input resize; 0 keeps the original resolution
	BatchSize int     // images per forward pass
	Workers   int     // concurrent image decoders
	Threshold float64 // mask binarization; 0 writes probabilities
	Height    int64   // plan task input height
	Width     int64   // plan task input width
)

func init() {
	flag.StringVar(&InputPath, "input", "./input", "specify input image file or directory")
	flag.StringVar(&OutputPath, "output", "./output", "specify output directory or file")
	flag.StringVar(&ModelPath, "model", "", "specify full path to model weight '.ot' file.")
	flag.StringVar(&ModelFrom, "from", "checkpoint", "specify how to load weights: 'checkpoint' or 'partial'")
	flag.StringVar(&HistPath, "hist", "", "specify file to plot a histogram of predicted probabilities")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
	flag.BoolVar(&Overlay, "overlay", false, "specify whether to write mask overlays")
	flag.StringVar(&task, "task", "predict", "specify task to run: plan, params, init, predict, eval")
	flag.IntVar(&ImageSize, "size", 572, "specify input image size")
	flag.IntVar(&BatchSize, "batch", 4, "specify batch size")
	flag.IntVar(&Workers, "workers", 4, "specify number of image loading workers")
	flag.Float64Var(&Threshold, "threshold", 0.5, "specify mask threshold")
	flag.Int64Var(&Height, "height", 572, "specify input height for plan task")
	flag.Int64Var(&Width, "width", 572, "specify input width for plan task")
}

func main() {
	flag.Parse()

	InputPath = absPath(InputPath)
	OutputPath = absPath(OutputPath)
	if ModelPath != "" {
		ModelPath = absPath(ModelPath)
	}

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	var err error
	switch task {
	case "plan":
		err = runPlan()
	case "params":
		err = runParams()
	case "init":
		err = runInit()
	case "predict":
		err = runPredict()
	case "eval":
		err = runEval()
	default:
		err = fmt.Errorf("Unknown 'task' name %q. Please specify valid 'task' flag to run.", task)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}
