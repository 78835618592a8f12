package encoder_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/encoder"
)

var tinyTopology = []encoder.StageSpec{
	{Stage: 2, Blocks: 2, Numbered: false, Mid: 4, Out: 8, Stride: 1},
	{Stage: 3, Blocks: 3, Numbered: true, Mid: 4, Out: 16, Stride: 2},
}

func TestBlockNames(t *testing.T) {
	assert.Equal(t, "2a", encoder.BlockID{Stage: 2, Index: 0}.Name())
	assert.Equal(t, "2c", encoder.BlockID{Stage: 2, Index: 2}.Name())
	assert.Equal(t, "3b1", encoder.BlockID{Stage: 3, Index: 1, Numbered: true}.Name())
	assert.Equal(t, "4b22", encoder.BlockID{Stage: 4, Index: 22, Numbered: true}.Name())
	assert.Equal(t, "5b", encoder.BlockID{Stage: 5, Index: 1}.Name())

	id := encoder.BlockID{Stage: 3, Index: 2, Numbered: true}
	assert.Equal(t, "res3b2_branch2a", encoder.LayerKey{Block: id, Branch: encoder.Branch2a, Kind: encoder.KindConv}.Name())
	assert.Equal(t, "bn3b2_branch2b", encoder.LayerKey{Block: id, Branch: encoder.Branch2b, Kind: encoder.KindBatchNorm}.Name())
	assert.Equal(t, "scale3b2_branch2c", encoder.LayerKey{Block: id, Branch: encoder.Branch2c, Kind: encoder.KindScale}.Name())
}

func TestBlockLayerNames(t *testing.T) {
	want := []string{
		"res2a_branch2a", "bn2a_branch2a", "scale2a_branch2a", "res2a_branch2a_relu",
		"res2a_branch2b_zeropadding", "res2a_branch2b", "bn2a_branch2b", "scale2a_branch2b", "res2a_branch2b_relu",
		"res2a_branch2c", "bn2a_branch2c", "scale2a_branch2c",
		"res2a_branch1", "bn2a_branch1", "scale2a_branch1",
		"res2a", "res2a_relu",
	}
	assert.Equal(t, want, encoder.BlockLayerNames(encoder.BlockID{Stage: 2, Index: 0}))

	identity := encoder.BlockLayerNames(encoder.BlockID{Stage: 5, Index: 1})
	assert.Len(t, identity, 14)
	assert.NotContains(t, identity, "res5b_branch1")
}

func TestResNet101Schema(t *testing.T) {
	assert.Equal(t, map[int]int{2: 3, 3: 3, 4: 23, 5: 3}, encoder.BlockCounts(encoder.ResNet101Topology))

	// 32 blocks of 9 layers plus 4 projection shortcuts of 3 layers.
	assert.Len(t, encoder.Schema(encoder.ResNet101Topology), 32*9+4*3)

	names := encoder.LayerNames(encoder.ResNet101Topology)
	// 6 stem layers, 32 blocks of 14 layers plus 4 projection shortcuts of 3.
	assert.Len(t, names, 6+32*14+4*3)
	assert.Equal(t, "conv1_zeropadding", names[0])
	assert.Equal(t, "res2a_branch2a", names[6])
	assert.Equal(t, "res5c_relu", names[len(names)-1])
}

func TestResNetForwardAll(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	r := encoder.NewResNet(vs.Root().Sub("encoder"), tinyTopology)
	enc, err := r.Encoder(tinyTopology)
	require.NoError(t, err)
	assert.Equal(t, []int64{64, 8, 16}, enc.OutChannels())

	x := ts.MustRand([]int64{2, 3, 32, 32}, gotch.Float, gotch.CPU)
	features := enc.ForwardAll(x, false)
	require.Len(t, features, 3)
	assert.Equal(t, []int64{2, 64, 16, 16}, features[0].MustSize())
	assert.Equal(t, []int64{2, 8, 8, 8}, features[1].MustSize())
	assert.Equal(t, []int64{2, 16, 4, 4}, features[2].MustSize())

	x.MustDrop()
	for _, f := range features {
		f.MustDrop()
	}
}

func TestResNet101ForwardAll(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	enc, err := encoder.NewResNet101(vs.Root()).Encoder(encoder.ResNet101Topology)
	require.NoError(t, err)

	x := ts.MustRand([]int64{1, 3, 64, 64}, gotch.Float, gotch.CPU)
	var features []*ts.Tensor
	ts.NoGrad(func() {
		features = enc.ForwardAll(x, false)
	})
	require.Len(t, features, 5)

	want := [][]int64{
		{1, 64, 32, 32},
		{1, 256, 16, 16},
		{1, 512, 8, 8},
		{1, 1024, 4, 4},
		{1, 2048, 2, 2},
	}
	for i, f := range features {
		assert.Equal(t, want[i], f.MustSize(), "feature %d", i)
		f.MustDrop()
	}
	x.MustDrop()

	vars := vs.Variables()
	assert.Contains(t, vars, "conv1.weight")
	assert.Contains(t, vars, "bn_conv1.running_mean")
	assert.Contains(t, vars, "scale_conv1.weight")
	assert.Contains(t, vars, "res4b22_branch2c.weight")
	assert.Contains(t, vars, "bn5a_branch1.running_var")
	assert.NotContains(t, vars, "res3b3_branch2a.weight")
}

func TestValidateReportsMissingBlocks(t *testing.T) {
	truncated := []encoder.StageSpec{
		encoder.ResNet101Topology[0],
		encoder.ResNet101Topology[1],
		{Stage: 4, Blocks: 22, Numbered: true, Mid: 256, Out: 1024, Stride: 2},
		encoder.ResNet101Topology[3],
	}

	vs := nn.NewVarStore(gotch.CPU)
	r := encoder.NewResNet(vs.Root(), truncated)

	_, err := r.Encoder(encoder.ResNet101Topology)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "9 layers missing")
	assert.Contains(t, err.Error(), "res4b22_branch2a")
	assert.Contains(t, err.Error(), "scale4b22_branch2c")
	assert.NotContains(t, err.Error(), "res4b21_")

	_, err = r.Bottleneck(encoder.BlockID{Stage: 4, Index: 22, Numbered: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"res4b22_branch2a"`)
}

func TestLoadPretrained(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tiny.ot")

	src := nn.NewVarStore(gotch.CPU)
	encoder.NewResNet(src.Root().Sub("encoder"), tinyTopology)
	require.NoError(t, src.Save(file))

	// Same encoder plus a decoder variable absent from the file.
	dst := nn.NewVarStore(gotch.CPU)
	encoder.NewResNet(dst.Root().Sub("encoder"), tinyTopology)
	dst.Root().Sub("decoder").Zeros("bias", []int64{4})
	require.NoError(t, encoder.LoadPretrained(dst, file, "encoder"))

	srcW := src.Variables()["encoder.res3b2_branch2c.weight"]
	dstW := dst.Variables()["encoder.res3b2_branch2c.weight"]
	assert.Equal(t, srcW.Float64Values(), dstW.Float64Values())
	bias := dst.Variables()["decoder.bias"]
	assert.Equal(t, []float64{0, 0, 0, 0}, bias.Float64Values())

	// A deeper encoder needs weights the file does not have.
	deeper := []encoder.StageSpec{tinyTopology[0], {Stage: 3, Blocks: 4, Numbered: true, Mid: 4, Out: 16, Stride: 2}}
	bigger := nn.NewVarStore(gotch.CPU)
	encoder.NewResNet(bigger.Root().Sub("encoder"), deeper)
	err := encoder.LoadPretrained(bigger, file, "encoder")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder.res3b3_branch2a.weight")

	err = encoder.LoadPretrained(dst, filepath.Join(t.TempDir(), "absent.ot"), "encoder")
	assert.Error(t, err)
}

func TestLoadPretrainedShapeMismatch(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wide.ot")

	wide := []encoder.StageSpec{
		{Stage: 2, Blocks: 2, Numbered: false, Mid: 6, Out: 8, Stride: 1},
		tinyTopology[1],
	}
	src := nn.NewVarStore(gotch.CPU)
	encoder.NewResNet(src.Root().Sub("encoder"), wide)
	require.NoError(t, src.Save(file))

	dst := nn.NewVarStore(gotch.CPU)
	encoder.NewResNet(dst.Root().Sub("encoder"), tinyTopology)
	before := dst.Variables()["encoder.conv1.weight"]
	want := before.Float64Values()

	err := encoder.LoadPretrained(dst, file, "encoder")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape mismatches")
	assert.Contains(t, err.Error(), "encoder.res2a_branch2a.weight (want [4 64 1 1], got [6 64 1 1])")
	assert.NotContains(t, err.Error(), "encoder.conv1.weight")

	// Nothing is copied when the file does not fit.
	after := dst.Variables()["encoder.conv1.weight"]
	assert.Equal(t, want, after.Float64Values())
}
