package base

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Activation names an element-wise activation function.
type Activation string

const (
	ActRelu      Activation = "relu"
	ActLeakyRelu Activation = "leaky_relu"
	ActTanh      Activation = "tanh"
	ActSigmoid   Activation = "sigmoid"
	ActLinear    Activation = "linear"
)

// ParseActivation validates an activation name.
func ParseActivation(name string) (Activation, error) {
	switch a := Activation(name); a {
	case ActRelu, ActLeakyRelu, ActTanh, ActSigmoid, ActLinear:
		return a, nil
	case "":
		return ActLinear, nil
	default:
		return "", fmt.Errorf("unsupported activation %q", name)
	}
}

// Apply applies the activation. If del is true, x is dropped.
func (a Activation) Apply(x *ts.Tensor, del bool) *ts.Tensor {
	switch a {
	case ActRelu:
		return x.MustRelu(del)
	case ActLeakyRelu:
		return x.MustLeakyRelu(del)
	case ActTanh:
		return x.MustTanh(del)
	case ActSigmoid:
		return x.MustSigmoid(del)
	default:
		if del {
			return x
		}
		return x.MustShallowClone()
	}
}

// ZeroPad2d returns a parameter-free module padding the last two dimensions
// with zeros. pad is in [left, right, top, bottom] order.
func ZeroPad2d(pad []int64) nn.Func {
	return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustConstantPadNd(pad, false)
	})
}

// samePadding returns the [left, right, top, bottom] padding that keeps the
// spatial size of a stride-1 convolution. Even kernels pad more after.
func samePadding(ksize int64) []int64 {
	total := ksize - 1
	before := total / 2
	after := total - before

	return []int64{before, after, before, after}
}

// SameConv2d is a stride-1 convolution with "same" padding followed by an
// activation.
type SameConv2d struct {
	Conv *nn.Conv2D
	pad  []int64
	act  Activation
}

// NewSameConv2d creates a SameConv2d.
func NewSameConv2d(p *nn.Path, cIn, cOut, ksize int64, act Activation) *SameConv2d {
	pad := samePadding(ksize)
	var conv *nn.Conv2D
	if pad[0] == pad[1] {
		conv = Conv2d(p, cIn, cOut, ksize, pad[0], 1)
		pad = nil
	} else {
		conv = Conv2d(p, cIn, cOut, ksize, 0, 1)
	}

	return &SameConv2d{Conv: conv, pad: pad, act: act}
}

// ForwardT implements ts.ModuleT for SameConv2d.
func (c *SameConv2d) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	var out *ts.Tensor
	if c.pad != nil {
		padded := x.MustConstantPadNd(c.pad, false)
		out = c.Conv.ForwardT(padded, train)
		padded.MustDrop()
	} else {
		out = c.Conv.ForwardT(x, train)
	}

	return c.act.Apply(out, true)
}

// Scale is a per-channel affine layer: y = gamma * x + beta.
// It carries the separate scale parameters of Caffe-converted backbones.
type Scale struct {
	Gamma *ts.Tensor
	Beta  *ts.Tensor
	dim   int64
}

// NewScale creates a Scale layer over dim channels, initialised to identity.
func NewScale(p *nn.Path, dim int64) *Scale {
	return &Scale{
		Gamma: p.Ones("weight", []int64{dim}),
		Beta:  p.Zeros("bias", []int64{dim}),
		dim:   dim,
	}
}

// ForwardT implements ts.ModuleT for Scale.
func (s *Scale) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	gamma := s.Gamma.MustView([]int64{1, s.dim, 1, 1}, false)
	beta := s.Beta.MustView([]int64{1, s.dim, 1, 1}, false)
	mul := x.MustMul(gamma, false)
	res := mul.MustAdd(beta, true)
	gamma.MustDrop()
	beta.MustDrop()

	return res
}

// MaxPool2x2 halves spatial dimensions with a 2x2 max-pooling.
func MaxPool2x2(x *ts.Tensor) *ts.Tensor {
	return x.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
}

// UpsampleNearest2x doubles spatial dimensions with nearest-neighbor interpolation.
func UpsampleNearest2x(x *ts.Tensor) *ts.Tensor {
	size := x.MustSize()
	return x.MustUpsampleNearest2d([]int64{size[2] * 2, size[3] * 2}, nil, nil, false)
}

// ConvTranspose2d is a transposed convolution with equal stride and padding
// on both spatial dimensions. Its weight is laid out [cIn, cOut, k, k] as
// libtorch's conv_transpose2d expects.
type ConvTranspose2d struct {
	Ws         *ts.Tensor
	Bs         *ts.Tensor
	stride     []int64
	padding    []int64
	outPadding []int64
	dilation   []int64
}

// NewConvTranspose2d creates a ConvTranspose2d with "weight" and "bias"
// variables under p.
func NewConvTranspose2d(p *nn.Path, cIn, cOut, ksize, padding, outPadding, stride int64) *ConvTranspose2d {
	config := nn.DefaultConvTranspose2DConfig()

	return &ConvTranspose2d{
		Ws:         p.NewVar("weight", []int64{cIn, cOut, ksize, ksize}, config.WsInit),
		Bs:         p.NewVar("bias", []int64{cOut}, config.BsInit),
		stride:     []int64{stride, stride},
		padding:    []int64{padding, padding},
		outPadding: []int64{outPadding, outPadding},
		dilation:   []int64{1, 1},
	}
}

// Forward implements nn.Module for ConvTranspose2d.
func (c *ConvTranspose2d) Forward(x *ts.Tensor) *ts.Tensor {
	return ts.MustConvTranspose2d(x, c.Ws, c.Bs, c.stride, c.padding, c.outPadding, 1, c.dilation)
}

// ForwardT implements ts.ModuleT for ConvTranspose2d.
func (c *ConvTranspose2d) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return c.Forward(x)
}
