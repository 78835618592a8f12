package base_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/base"
)

func TestParseActivation(t *testing.T) {
	for _, name := range []string{"relu", "leaky_relu", "tanh", "sigmoid", "linear"} {
		a, err := base.ParseActivation(name)
		require.NoError(t, err)
		assert.Equal(t, base.Activation(name), a)
	}

	a, err := base.ParseActivation("")
	require.NoError(t, err)
	assert.Equal(t, base.ActLinear, a)

	_, err = base.ParseActivation("softmax")
	assert.Error(t, err)
}

func TestSameConv2dKeepsSize(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	x := ts.MustRand([]int64{1, 4, 9, 10}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	for _, k := range []int64{1, 2, 3, 4} {
		conv := base.NewSameConv2d(vs.Root().Sub(fmt.Sprintf("conv%d", k)), 4, 6, k, base.ActRelu)
		out := conv.ForwardT(x, false)
		assert.Equal(t, []int64{1, 6, 9, 10}, out.MustSize(), "kernel %d", k)
		out.MustDrop()
	}
}

func TestScaleStartsAsIdentity(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	scale := base.NewScale(vs.Root().Sub("scale"), 3)

	x := ts.MustRand([]int64{2, 3, 4, 4}, gotch.Float, gotch.CPU)
	y := scale.ForwardT(x, false)

	assert.Equal(t, x.MustSize(), y.MustSize())
	assert.InDeltaSlice(t, x.Float64Values(), y.Float64Values(), 1e-6)

	vars := vs.Variables()
	assert.Contains(t, vars, "scale.weight")
	assert.Contains(t, vars, "scale.bias")

	x.MustDrop()
	y.MustDrop()
}

func TestL2Loss(t *testing.T) {
	w1 := ts.MustOfSlice([]float32{1, 2, 3})
	w2 := ts.MustOfSlice([]float32{-1, 1})

	reg := base.NewL2(0.5)
	reg.Add(w1, w2)
	assert.Equal(t, 2, reg.Len())

	loss := reg.Loss()
	// 0.5 * (1 + 4 + 9 + 1 + 1)
	assert.InDelta(t, 8.0, loss.Float64Values()[0], 1e-6)
	loss.MustDrop()

	empty := base.NewL2(0.1).Loss()
	assert.InDelta(t, 0.0, empty.Float64Values()[0], 1e-12)
	empty.MustDrop()
}

func TestSegmentationHeadRange(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	head := base.NewSegmentationHead(vs.Root().Sub("logit"), 8, 2, 1)

	x := ts.MustRandn([]int64{1, 8, 5, 5}, gotch.Float, gotch.CPU)
	y := head.ForwardT(x, false)
	assert.Equal(t, []int64{1, 2, 5, 5}, y.MustSize())
	for _, v := range y.Float64Values() {
		assert.True(t, v >= 0 && v <= 1)
	}

	x.MustDrop()
	y.MustDrop()
}

func TestSCSEKeepsShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	attn := base.NewAttention(base.NewSCSE(vs.Root().Sub("attn"), 32))

	x := ts.MustRand([]int64{1, 32, 8, 8}, gotch.Float, gotch.CPU)
	y := attn.ForwardT(x, false)
	assert.Equal(t, x.MustSize(), y.MustSize())

	x.MustDrop()
	y.MustDrop()
}

func TestZeroPad2d(t *testing.T) {
	x := ts.MustOnes([]int64{1, 1, 2, 2}, gotch.Float, gotch.CPU)
	pad := base.ZeroPad2d([]int64{1, 0, 0, 2})
	out := pad.Forward(x)

	assert.Equal(t, []int64{1, 1, 4, 3}, out.MustSize())
	assert.Equal(t, []float64{
		0, 1, 1,
		0, 1, 1,
		0, 0, 0,
		0, 0, 0,
	}, out.Float64Values())

	x.MustDrop()
	out.MustDrop()
}

func TestIdentityKeepsGradient(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	x := vs.Root().Ones("w", []int64{2})
	out := base.NewIdentity().ForwardT(x, true)
	assert.True(t, out.MustRequiresGrad())
	out.MustDrop()
}

func TestSCSEVariables(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	base.NewSCSE(vs.Root().Sub("attn"), 8)

	vars := vs.Variables()
	assert.Len(t, vars, 6)
	w1 := vars["attn.cse.squeeze.weight"]
	w2 := vars["attn.cse.excite.weight"]
	w3 := vars["attn.sse.weight"]
	assert.Equal(t, []int64{1, 8, 1, 1}, w1.MustSize())
	assert.Equal(t, []int64{8, 1, 1, 1}, w2.MustSize())
	assert.Equal(t, []int64{1, 8, 1, 1}, w3.MustSize())
}

func TestConvTranspose2dDoublesSize(t *testing.T) {
	tests := []struct {
		name                               string
		ksize, padding, outPadding, stride int64
	}{
		{"k3 p1 op1", 3, 1, 1, 2},
		{"k4 p1", 4, 1, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := nn.NewVarStore(gotch.CPU)
			deconv := base.NewConvTranspose2d(vs.Root().Sub("up"), 8, 4, tt.ksize, tt.padding, tt.outPadding, tt.stride)
			assert.Equal(t, []int64{8, 4, tt.ksize, tt.ksize}, deconv.Ws.MustSize())
			assert.Equal(t, []int64{4}, deconv.Bs.MustSize())

			x := ts.MustRand([]int64{2, 8, 5, 7}, gotch.Float, gotch.CPU)
			out := deconv.ForwardT(x, false)
			assert.Equal(t, []int64{2, 4, 10, 14}, out.MustSize())

			x.MustDrop()
			out.MustDrop()
		})
	}
}
