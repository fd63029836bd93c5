package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/unetseg/report"
	"github.com/sugarme/unetseg/unet"
)

// newModel creates the network and loads weights when a model path is given.
func newModel() (*nn.VarStore, *unet.UNet, error) {
	vs := nn.NewVarStore(Device)
	net := unet.NewUNet(vs.Root())
	if ModelPath == "" {
		log.Printf("No weights given. Using freshly initialised parameters.\n")
		return vs, net, nil
	}

	if err := loadWeights(vs, ModelPath, ModelFrom); err != nil {
		return nil, nil, err
	}
	return vs, net, nil
}

func loadWeights(vs *nn.VarStore, fpath string, from string) error {
	switch from {
	case "checkpoint":
		return vs.Load(fpath)
	case "partial":
		missing, err := vs.LoadPartial(fpath)
		if err != nil {
			return err
		}
		for _, name := range missing {
			log.Printf("Not found in %v: %v\n", fpath, name)
		}
		return nil
	default:
		return fmt.Errorf("Invalid load option. Expected 'checkpoint' or 'partial'. Got: %v", from)
	}
}

func runPlan() error {
	plan, err := unet.NewPlan(Height, Width, false)
	if err != nil {
		return err
	}

	fmt.Println(report.PlanFrame(plan))
	fmt.Printf("output: %v, minimum square input: %v\n", plan.Output, unet.MinInputSize())

	if filepath.Ext(OutputPath) == ".csv" {
		f, err := os.Create(OutputPath)
		if err != nil {
			return err
		}
		if err := report.WritePlan(f, plan); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}

// runParams prints variables sorted by name
func runParams() error {
	vs, _, err := newModel()
	if err != nil {
		return err
	}

	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		v := vars[n]
		fmt.Printf("%v \t\t %v\n", n, v.MustSize())
	}
	fmt.Printf("%v variables\n", len(names))
	return nil
}

// runInit saves freshly initialised weights to the output path.
func runInit() error {
	vs, _, err := newModel()
	if err != nil {
		return err
	}
	if err := vs.Save(OutputPath); err != nil {
		return err
	}
	log.Printf("Saved weights to %v\n", OutputPath)
	return nil
}
