package unet_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/useg/unet"
)

func TestParseConfigDefaults(t *testing.T) {
	fc, err := unet.ParseConfig([]byte("base_unet {}\nresnet_unet {}\n"), "empty.hcl")
	require.NoError(t, err)

	require.NotNil(t, fc.Base)
	assert.Equal(t, unet.DefaultConfig(256, 256), *fc.Base)
	require.NotNil(t, fc.ResNet)
	assert.Equal(t, unet.DefaultResNetConfig(), *fc.ResNet)
}

func TestParseConfigOverrides(t *testing.T) {
	src := `
base_unet {
  input_shape = [128, 64]
  depth       = 3
  num_filters = 16
  activation  = "leaky_relu"
  residual    = true
  maxpool     = false
  is_deconv   = false
  inc_rate    = 1.5
  l2_reg      = 0
}
`
	fc, err := unet.ParseConfig([]byte(src), "base.hcl")
	require.NoError(t, err)
	assert.Nil(t, fc.ResNet)
	require.NotNil(t, fc.Base)

	want := unet.DefaultConfig(128, 64)
	want.Depth = 3
	want.NumFilters = 16
	want.Activation = "leaky_relu"
	want.Residual = true
	want.MaxPool = false
	want.IsDeconv = false
	want.IncRate = 1.5
	want.L2Reg = 0
	assert.Equal(t, want, *fc.Base)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resnet.hcl")
	src := `
resnet_unet {
  input_shape         = [512, 512]
  num_filters         = 16
  is_deconv           = true
  attention           = true
  resnet_pretrained   = false
  resnet_weights_path = "weights/r101.ot"
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	fc, err := unet.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Nil(t, fc.Base)
	require.NotNil(t, fc.ResNet)

	want := unet.DefaultResNetConfig()
	want.InputShape = [2]int64{512, 512}
	want.NumFilters = 16
	want.IsDeconv = true
	want.Attention = true
	want.Pretrained = false
	want.WeightsPath = "weights/r101.ot"
	assert.Equal(t, want, *fc.ResNet)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"bad shape", "base_unet {\n  input_shape = [256]\n}\n", "input_shape"},
		{"unknown attribute", "base_unet {\n  layers = 4\n}\n", "failed to decode"},
		{"syntax", "base_unet {\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unet.ParseConfig([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := unet.LoadConfigFile(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
