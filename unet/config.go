package unet

import (
	"fmt"

	"github.com/sugarme/useg/base"
)

// Config holds the hyperparameters of a BaseUNet.
type Config struct {
	InputShape  [2]int64 // height, width
	InChannels  int64
	OutChannels int64 // channels of the mask, one sigmoid per channel
	NumFilters  int64 // filters of the outermost level
	Depth       int   // number of downsampling levels
	Activation  string
	Dropout     float64 // dropout rate of the innermost block
	BatchNorm   bool
	MaxPool     bool // max-pooling (true) or strided convolution (false) downsampling
	IsDeconv    bool // nearest upsampling + 2x2 conv (true) or 3x3 transposed convolution (false)
	Residual    bool // concatenate each conv block's input to its output
	IncRate     float64
	L2Reg       float64
}

// DefaultConfig returns the default BaseUNet configuration for images of
// height x width.
func DefaultConfig(height, width int64) Config {
	return Config{
		InputShape:  [2]int64{height, width},
		InChannels:  3,
		OutChannels: 1,
		NumFilters:  64,
		Depth:       4,
		Activation:  string(base.ActRelu),
		Dropout:     0.5,
		BatchNorm:   false,
		MaxPool:     true,
		IsDeconv:    true,
		Residual:    false,
		IncRate:     2.0,
		L2Reg:       0.0001,
	}
}

func (c Config) validate() error {
	switch {
	case c.Depth < 0:
		return fmt.Errorf("unet: depth must be >= 0, got %d", c.Depth)
	case c.NumFilters <= 0:
		return fmt.Errorf("unet: num filters must be > 0, got %d", c.NumFilters)
	case c.IncRate <= 0:
		return fmt.Errorf("unet: inc rate must be > 0, got %v", c.IncRate)
	case c.InChannels <= 0 || c.OutChannels <= 0:
		return fmt.Errorf("unet: channels must be > 0, got in=%d out=%d", c.InChannels, c.OutChannels)
	case c.InputShape[0] <= 0 || c.InputShape[1] <= 0:
		return fmt.Errorf("unet: input shape must be positive, got %v", c.InputShape)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("unet: dropout must be in [0, 1), got %v", c.Dropout)
	}
	if _, err := base.ParseActivation(c.Activation); err != nil {
		return fmt.Errorf("unet: %w", err)
	}
	return nil
}

// ResNetConfig holds the hyperparameters of a ResNetUNet.
type ResNetConfig struct {
	InputShape  [2]int64 // height, width
	InChannels  int64
	OutChannels int64
	Dropout     float64 // dropout before the output convolution
	NumFilters  int64   // decoder width multiplier
	IsDeconv    bool    // decoder blocks use 4x4 transposed convs (true) or upsampling + convs (false)
	Pretrained  bool    // load encoder weights from WeightsPath
	L2Reg       float64
	WeightsPath string // gotch weight file with Caffe-named ResNet101 variables
	Attention   bool   // SCSE attention on decoder block inputs
}

// DefaultResNetConfig returns the default ResNetUNet configuration.
func DefaultResNetConfig() ResNetConfig {
	return ResNetConfig{
		InputShape:  [2]int64{256, 256},
		InChannels:  3,
		OutChannels: 1,
		Dropout:     0.2,
		NumFilters:  32,
		IsDeconv:    false,
		Pretrained:  true,
		L2Reg:       0.0001,
		WeightsPath: "data/resnet101.ot",
		Attention:   false,
	}
}

// resNetStride is the total downsampling of the encoder plus the center pooling.
const resNetStride = 64

func (c ResNetConfig) validate() error {
	switch {
	case c.InChannels != 3:
		return fmt.Errorf("unet: resnet101 encoder expects 3 input channels, got %d", c.InChannels)
	case c.OutChannels <= 0:
		return fmt.Errorf("unet: out channels must be > 0, got %d", c.OutChannels)
	case c.NumFilters <= 0:
		return fmt.Errorf("unet: num filters must be > 0, got %d", c.NumFilters)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("unet: dropout must be in [0, 1), got %v", c.Dropout)
	case c.InputShape[0] <= 0 || c.InputShape[1] <= 0 ||
		c.InputShape[0]%resNetStride != 0 || c.InputShape[1]%resNetStride != 0:
		return fmt.Errorf("unet: input shape %v must be positive multiples of %d", c.InputShape, resNetStride)
	}
	return nil
}
