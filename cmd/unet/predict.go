package main

import (
	"fmt"
	"image"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unetseg/base"
	"github.com/sugarme/unetseg/imgio"
	"github.com/sugarme/unetseg/metric"
	"github.com/sugarme/unetseg/report"
	"github.com/sugarme/unetseg/unet"
)

// sample is one decoded input image, and its ground-truth mask in eval.
type sample struct {
	index int
	name  string
	input *ts.Tensor  // [3 H W]
	image image.Image // as decoded
	mask  *ts.Tensor  // [1 256 256], eval only
}

func (s sample) drop() {
	s.input.MustDrop()
	if s.mask != nil {
		s.mask.MustDrop()
	}
}

// listImages returns image files at path (a file or a directory), sorted.
func listImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := ioutil.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range files {
		if !f.IsDir() && imgio.IsImage(f.Name()) {
			names = append(names, filepath.Join(path, f.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

// loadSamples decodes files with at most Workers goroutines. maskDir, when
// set, holds a mask of the same file name for each image.
func loadSamples(files []string, maskDir string) ([]sample, error) {
	if Workers < 1 {
		return nil, fmt.Errorf("Invalid number of workers: %v", Workers)
	}

	p := pool.NewWithResults[sample]().WithErrors().WithMaxGoroutines(Workers)
	for i, fname := range files {
		i, fname := i, fname
		p.Go(func() (sample, error) {
			x, img, err := imgio.Load(fname, ImageSize)
			if err != nil {
				return sample{}, fmt.Errorf("%v: %w", fname, err)
			}
			s := sample{index: i, name: filepath.Base(fname), input: x, image: img}
			if maskDir == "" {
				return s, nil
			}

			m, err := imgio.Decode(filepath.Join(maskDir, s.name))
			if err != nil {
				x.MustDrop()
				return sample{}, err
			}
			s.mask = imgio.MaskTensor(m, int(base.OutSize))
			return s, nil
		})
	}

	samples, err := p.Wait()
	if err != nil {
		for _, s := range samples {
			if s.input != nil {
				s.drop()
			}
		}
		return nil, err
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].index < samples[j].index })
	return samples, nil
}

// forEachBatch predicts samples BatchSize at a time and calls fn with each
// sample and its [1 1 256 256] probability map on CPU.
func forEachBatch(net *unet.UNet, samples []sample, fn func(s sample, probs *ts.Tensor) error) error {
	if BatchSize < 1 {
		return fmt.Errorf("Invalid batch size: %v", BatchSize)
	}

	for start := 0; start < len(samples); start += BatchSize {
		end := start + BatchSize
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[start:end]

		inputs := make([]*ts.Tensor, len(chunk))
		for i, s := range chunk {
			inputs[i] = s.input
		}
		x := imgio.Batch(inputs).MustTo(Device, true)
		out, err := net.Predict(x)
		x.MustDrop()
		if err != nil {
			return err
		}
		probs := out.MustTo(gotch.CPU, true)

		for i, s := range chunk {
			item := probs.MustNarrow(0, int64(i), 1, false)
			err := fn(s, item)
			item.MustDrop()
			if err != nil {
				probs.MustDrop()
				return err
			}
		}
		probs.MustDrop()
	}
	return nil
}

func runPredict() error {
	_, net, err := newModel()
	if err != nil {
		return err
	}

	files, err := listImages(InputPath)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("No images found in %v", InputPath)
	}
	if err := os.MkdirAll(OutputPath, 0755); err != nil {
		return err
	}

	start := time.Now()
	samples, err := loadSamples(files, "")
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range samples {
			s.drop()
		}
	}()
	log.Printf("Loaded %v images in %v\n", len(samples), time.Since(start))

	var hist []float64
	err = forEachBatch(net, samples, func(s sample, probs *ts.Tensor) error {
		if HistPath != "" {
			hist = append(hist, probs.Float64Values()...)
		}

		mask, err := imgio.MaskImage(probs, Threshold)
		if err != nil {
			return err
		}
		b := s.image.Bounds()
		full := imgio.ResizeMask(mask, b.Dx(), b.Dy())

		stem := strings.TrimSuffix(s.name, filepath.Ext(s.name))
		maskPath := filepath.Join(OutputPath, stem+"_mask.png")
		if err := imgio.SavePNG(maskPath, full); err != nil {
			return err
		}
		if Overlay {
			if err := imgio.SavePNG(filepath.Join(OutputPath, stem+"_overlay.png"), imgio.Overlay(s.image, full, 96)); err != nil {
				return err
			}
		}
		log.Printf("%02d - %v -> %v\n", s.index, s.name, maskPath)
		return nil
	})
	if err != nil {
		return err
	}

	if HistPath != "" {
		if err := report.SaveHistogram(HistPath, "Predicted probabilities", hist, 20); err != nil {
			return err
		}
		log.Printf("Saved histogram to %v\n", HistPath)
	}
	log.Printf("Done in %v\n", time.Since(start))
	return nil
}

// runEval scores predictions against masks. InputPath holds 'image' and
// 'mask' directories with matching file names.
func runEval() error {
	_, net, err := newModel()
	if err != nil {
		return err
	}

	files, err := listImages(filepath.Join(InputPath, "image"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("No images found in %v", filepath.Join(InputPath, "image"))
	}

	samples, err := loadSamples(files, filepath.Join(InputPath, "mask"))
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range samples {
			s.drop()
		}
	}()

	var dice, iou float64
	err = forEachBatch(net, samples, func(s sample, probs *ts.Tensor) error {
		d := metric.DiceCoeff(probs, s.mask)
		j := metric.IoU(probs, s.mask)
		dice += d
		iou += j
		log.Printf("%02d - %v: dice %0.4f, IoU %0.4f\n", s.index, s.name, d, j)
		return nil
	})
	if err != nil {
		return err
	}

	n := float64(len(samples))
	fmt.Printf("images: %v, mean dice: %0.4f, mean IoU: %0.4f\n", len(samples), dice/n, iou/n)
	return nil
}
