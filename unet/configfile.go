package unet

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// FileConfig is the content of an architecture config file. A nil field means
// the file has no block for that architecture.
//
//	base_unet {
//	  input_shape = [256, 256]
//	  depth       = 4
//	  residual    = true
//	}
//
//	resnet_unet {
//	  pretrained   = true
//	  weights_path = "data/resnet101.ot"
//	}
type FileConfig struct {
	Base   *Config
	ResNet *ResNetConfig
}

type fileSchema struct {
	Base   *baseUNetBlock   `hcl:"base_unet,block"`
	ResNet *resNetUNetBlock `hcl:"resnet_unet,block"`
}

type baseUNetBlock struct {
	InputShape  []int64  `hcl:"input_shape,optional"`
	InChannels  *int64   `hcl:"in_channels,optional"`
	OutChannels *int64   `hcl:"out_channels,optional"`
	NumFilters  *int64   `hcl:"num_filters,optional"`
	Depth       *int     `hcl:"depth,optional"`
	Activation  *string  `hcl:"activation,optional"`
	Dropout     *float64 `hcl:"dropout,optional"`
	BatchNorm   *bool    `hcl:"batch_norm,optional"`
	MaxPool     *bool    `hcl:"maxpool,optional"`
	IsDeconv    *bool    `hcl:"is_deconv,optional"`
	Residual    *bool    `hcl:"residual,optional"`
	IncRate     *float64 `hcl:"inc_rate,optional"`
	L2Reg       *float64 `hcl:"l2_reg,optional"`
}

type resNetUNetBlock struct {
	InputShape  []int64  `hcl:"input_shape,optional"`
	InChannels  *int64   `hcl:"in_channels,optional"`
	OutChannels *int64   `hcl:"out_channels,optional"`
	Dropout     *float64 `hcl:"dropout,optional"`
	NumFilters  *int64   `hcl:"num_filters,optional"`
	IsDeconv    *bool    `hcl:"is_deconv,optional"`
	Pretrained  *bool    `hcl:"resnet_pretrained,optional"`
	L2Reg       *float64 `hcl:"l2_reg,optional"`
	WeightsPath *string  `hcl:"resnet_weights_path,optional"`
	Attention   *bool    `hcl:"attention,optional"`
}

// LoadConfigFile reads an architecture config file.
func LoadConfigFile(path string) (*FileConfig, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}
	return decodeConfig(file, path)
}

// ParseConfig parses architecture config source. filename is used in
// diagnostics only.
func ParseConfig(src []byte, filename string) (*FileConfig, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, diags)
	}
	return decodeConfig(file, filename)
}

func decodeConfig(file *hcl.File, filename string) (*FileConfig, error) {
	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config file %s: %w", filename, diags)
	}

	fc := &FileConfig{}
	if b := schema.Base; b != nil {
		shape, err := inputShape(b.InputShape, [2]int64{256, 256})
		if err != nil {
			return nil, fmt.Errorf("%s: base_unet: %w", filename, err)
		}
		cfg := DefaultConfig(shape[0], shape[1])
		setInt64(&cfg.InChannels, b.InChannels)
		setInt64(&cfg.OutChannels, b.OutChannels)
		setInt64(&cfg.NumFilters, b.NumFilters)
		if b.Depth != nil {
			cfg.Depth = *b.Depth
		}
		if b.Activation != nil {
			cfg.Activation = *b.Activation
		}
		setFloat(&cfg.Dropout, b.Dropout)
		setBool(&cfg.BatchNorm, b.BatchNorm)
		setBool(&cfg.MaxPool, b.MaxPool)
		setBool(&cfg.IsDeconv, b.IsDeconv)
		setBool(&cfg.Residual, b.Residual)
		setFloat(&cfg.IncRate, b.IncRate)
		setFloat(&cfg.L2Reg, b.L2Reg)
		fc.Base = &cfg
	}

	if b := schema.ResNet; b != nil {
		cfg := DefaultResNetConfig()
		shape, err := inputShape(b.InputShape, cfg.InputShape)
		if err != nil {
			return nil, fmt.Errorf("%s: resnet_unet: %w", filename, err)
		}
		cfg.InputShape = shape
		setInt64(&cfg.InChannels, b.InChannels)
		setInt64(&cfg.OutChannels, b.OutChannels)
		setFloat(&cfg.Dropout, b.Dropout)
		setInt64(&cfg.NumFilters, b.NumFilters)
		setBool(&cfg.IsDeconv, b.IsDeconv)
		setBool(&cfg.Pretrained, b.Pretrained)
		setFloat(&cfg.L2Reg, b.L2Reg)
		if b.WeightsPath != nil {
			cfg.WeightsPath = *b.WeightsPath
		}
		setBool(&cfg.Attention, b.Attention)
		fc.ResNet = &cfg
	}

	return fc, nil
}

func inputShape(v []int64, def [2]int64) ([2]int64, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 2:
		return [2]int64{v[0], v[1]}, nil
	default:
		return def, fmt.Errorf("input_shape must be [height, width], got %v", v)
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
