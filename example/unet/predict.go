package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/imgutil"
	"github.com/sugarme/useg/inspect"
)

// runPredict segments ImagePath and writes the first mask channel to OutPath
// at the original image size.
func runPredict() error {
	if ImagePath == "" {
		return errors.New("predict: no input image, please specify 'image' flag")
	}

	vs := nn.NewVarStore(Device)
	m, err := buildModel(vs)
	if err != nil {
		return err
	}
	if m.inChannels != 3 {
		return fmt.Errorf("predict: model expects %d input channels, images have 3", m.inChannels)
	}

	img, err := imgutil.ReadImage(absPath(ImagePath))
	if err != nil {
		return err
	}
	b := img.Bounds()
	resized := imgutil.Resize(img, int(m.width), int(m.height))

	x := imgutil.ToTensor(resized).MustTo(Device, true)
	var out *ts.Tensor
	ts.NoGrad(func() {
		out = m.net.ForwardT(x, false)
	})
	x.MustDrop()

	probs := out.MustTo(gotch.CPU, true)
	mask := probs.MustSelect(1, 0, true)
	defer mask.MustDrop()

	stats := inspect.TensorStats(mask)
	log.Printf("mask: min %.4f max %.4f mean %.4f\n", stats.Min, stats.Max, stats.Mean)

	gray, err := imgutil.MaskToImage(mask, Threshold)
	if err != nil {
		return err
	}
	gray = imgutil.ResizeMask(gray, b.Dx(), b.Dy())
	if err := imgutil.SaveImage(gray, absPath(OutPath)); err != nil {
		return err
	}
	log.Printf("Mask written to %q\n", OutPath)

	if RLEPath != "" {
		if Threshold <= 0 {
			return errors.New("predict: run-length encoding needs a positive 'threshold'")
		}
		f, err := os.Create(absPath(RLEPath))
		if err != nil {
			return err
		}
		defer f.Close()
		id := strings.TrimSuffix(filepath.Base(ImagePath), filepath.Ext(ImagePath))
		if err := imgutil.WriteRLE(f, []string{id}, []string{imgutil.EncodeRLE(gray)}); err != nil {
			return err
		}
		log.Printf("Run-length mask written to %q\n", RLEPath)
	}

	return nil
}
