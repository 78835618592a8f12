package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/encoder"
	"github.com/sugarme/useg/inspect"
	"github.com/sugarme/useg/unet"
)

// model is a built network together with the input it expects.
type model struct {
	net         unet.Model
	height      int64
	width       int64
	inChannels  int64
	outChannels int64
}

// loadFileConfig reads -config if given. The file's input_shape is the only
// source of the input size then, so an explicit -height or -width is an error.
func loadFileConfig() (*unet.FileConfig, error) {
	if ConfigPath == "" {
		return nil, nil
	}
	if set := shapeFlagsSet(); len(set) > 0 {
		return nil, fmt.Errorf("%v cannot be combined with -config: set input_shape in %s instead", set, ConfigPath)
	}
	return unet.LoadConfigFile(absPath(ConfigPath))
}

// shapeFlagsSet returns the input size flags given on the command line.
func shapeFlagsSet() []string {
	var set []string
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "height" || f.Name == "width" {
			set = append(set, "-"+f.Name)
		}
	})
	return set
}

// buildModel creates the selected architecture in vs and loads trained
// weights if given.
func buildModel(vs *nn.VarStore) (*model, error) {
	fc, err := loadFileConfig()
	if err != nil {
		return nil, err
	}

	var m *model
	switch arch {
	case "base":
		cfg := unet.DefaultConfig(Height, Width)
		if fc != nil {
			if fc.Base == nil {
				return nil, fmt.Errorf("config file %s has no base_unet block", ConfigPath)
			}
			cfg = *fc.Base
		}
		net, err := unet.NewBaseUNet(vs.Root(), cfg)
		if err != nil {
			return nil, err
		}
		for _, l := range net.Levels() {
			log.Printf("level %d: %3d filters %4dx%-4d in %4d out %4d\n", l.Index, l.Filters, l.Height, l.Width, l.InChannels, l.OutChannels)
		}
		m = &model{net, cfg.InputShape[0], cfg.InputShape[1], cfg.InChannels, cfg.OutChannels}

	case "resnet":
		cfg := unet.DefaultResNetConfig()
		cfg.InputShape = [2]int64{Height, Width}
		cfg.Pretrained = Pretrained != ""
		cfg.WeightsPath = absPath(Pretrained)
		if fc != nil {
			if fc.ResNet == nil {
				return nil, fmt.Errorf("config file %s has no resnet_unet block", ConfigPath)
			}
			cfg = *fc.ResNet
			if Pretrained != "" {
				cfg.Pretrained = true
				cfg.WeightsPath = absPath(Pretrained)
			}
		}
		net, err := unet.BuildResNetUNet(vs, cfg)
		if err != nil {
			return nil, err
		}
		log.Printf("ResNet101 encoder: %d layers\n", len(encoder.LayerNames(encoder.ResNet101Topology)))
		m = &model{net, cfg.InputShape[0], cfg.InputShape[1], cfg.InChannels, cfg.OutChannels}

	default:
		return nil, fmt.Errorf("unknown architecture %q: want base or resnet", arch)
	}

	if ModelPath != "" {
		if err := vs.Load(absPath(ModelPath)); err != nil {
			return nil, fmt.Errorf("load model weights: %w", err)
		}
		log.Printf("Loaded model weights from %q\n", ModelPath)
	}

	return m, nil
}

func runCheckModel() error {
	vs := nn.NewVarStore(Device)
	m, err := buildModel(vs)
	if err != nil {
		return err
	}

	image := ts.MustRand([]int64{1, m.inChannels, m.height, m.width}, gotch.Float, Device)
	var mask *ts.Tensor
	ts.NoGrad(func() {
		mask = m.net.ForwardT(image, false)
	})
	image.MustDrop()

	cpuMask := mask.MustTo(gotch.CPU, true)
	stats := inspect.TensorStats(cpuMask)
	fmt.Printf("input:  %v\n", []int64{1, m.inChannels, m.height, m.width})
	fmt.Printf("output: %v\n", cpuMask.MustSize())
	fmt.Printf("range:  [%.4f, %.4f] mean %.4f std %.4f\n", stats.Min, stats.Max, stats.Mean, stats.StdDev)
	cpuMask.MustDrop()

	reg := m.net.RegularizationLoss()
	fmt.Printf("l2 penalty: %.6f\n", reg.Float64Values()[0])
	reg.MustDrop()

	return nil
}

func runSummary() error {
	vs := nn.NewVarStore(Device)
	if _, err := buildModel(vs); err != nil {
		return err
	}

	vars := inspect.Summarize(vs)
	groups := inspect.GroupParams(vars, 1)
	for _, g := range groups {
		fmt.Printf("%-10s %5d variables %12d parameters\n", g.Name, g.Vars, g.Params)
	}
	fmt.Printf("total: %d variables, %d parameters\n", len(vars), inspect.TotalParams(vars))

	f, err := os.Create(absPath(CSVPath))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := inspect.WriteCSV(f, vars); err != nil {
		return err
	}
	log.Printf("Variable summary written to %q\n", CSVPath)

	title := fmt.Sprintf("%s U-Net parameters", arch)
	if err := inspect.PlotParams(groups, title, absPath(PlotPath)); err != nil {
		return err
	}
	log.Printf("Parameter chart written to %q\n", PlotPath)

	return nil
}
