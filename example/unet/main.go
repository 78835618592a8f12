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
	task       string
	arch       string
	ConfigPath string
	ModelPath  string
	Pretrained string
	ImagePath  string
	OutPath    string
	RLEPath    string
	CSVPath    string
	PlotPath   string
	Cuda       bool
	Device     gotch.Device
)

// model input
var (
	Height    int64   // input image height
	Width     int64   // input image width
	Threshold float64 // mask binarisation threshold, 0 keeps probabilities
)

func init() {
	flag.StringVar(&task, "task", "model", "specify task to run: model, summary or predict")
	flag.StringVar(&arch, "arch", "base", "specify architecture: base or resnet")
	flag.StringVar(&ConfigPath, "config", "", "specify architecture config file (HCL)")
	flag.Int64Var(&Height, "height", 256, "specify input image height")
	flag.Int64Var(&Width, "width", 256, "specify input image width")
	flag.StringVar(&ModelPath, "weights", "", "specify full path to trained model weight '.ot' file")
	flag.StringVar(&Pretrained, "pretrained", "", "specify ResNet101 encoder weight '.ot' file")
	flag.StringVar(&ImagePath, "image", "", "specify input image for predict task")
	flag.StringVar(&OutPath, "out", "mask.png", "specify output mask image")
	flag.StringVar(&RLEPath, "rle", "", "specify CSV file for the run-length encoded mask")
	flag.StringVar(&CSVPath, "csv", "summary.csv", "specify variable summary CSV file")
	flag.StringVar(&PlotPath, "plot", "params.png", "specify parameter chart file")
	flag.Float64Var(&Threshold, "threshold", 0.5, "specify mask threshold")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
}

func main() {
	flag.Parse()

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	var err error
	switch task {
	case "model":
		err = runCheckModel()
	case "summary":
		err = runSummary()
	case "predict":
		err = runPredict()
	default:
		err = fmt.Errorf("Unknown 'task' name %q. Please specify valid 'task' flag to run.", task)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// helper to get absolute file path
func absPath(p string) string {
	if p == "" {
		return p
	}
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}
