package base

import (
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Identity passes its input through. The result shares storage and autograd
// history with the input.
type Identity struct{}

// NewIdentity creates a new Identity.
func NewIdentity() *Identity {
	return &Identity{}
}

// Forward implements nn.Module for Identity.
func (i *Identity) Forward(x *ts.Tensor) *ts.Tensor {
	return x.MustShallowClone()
}

// ForwardT implements ts.ModuleT for Identity.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustShallowClone()
}

// SCSE recalibrates a feature map with a channel gate and a spatial gate:
// y = x * (cSE(x) + sSE(x)).
// Ref. https://arxiv.org/abs/1808.08127
type SCSE struct {
	cSE *nn.SequentialT // [N, C, 1, 1]
	sSE *nn.SequentialT // [N, 1, H, W]
}

func activationFn(a Activation) nn.Func {
	return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return a.Apply(xs, false)
	})
}

// NewSCSE creates a SCSE over cIn channels. The channel gate squeezes to
// cIn/reduction channels (16 by default, at least 1).
func NewSCSE(p *nn.Path, cIn int64, reductionOpt ...int64) *SCSE {
	reduction := int64(16)
	if len(reductionOpt) > 0 {
		reduction = reductionOpt[0]
	}
	mid := cIn / reduction
	if mid < 1 {
		mid = 1
	}

	cp := p.Sub("cse")
	cSE := nn.SeqT()
	cSE.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	}))
	cSE.Add(Conv2d(cp.Sub("squeeze"), cIn, mid, 1, 0, 1))
	cSE.AddFn(activationFn(ActRelu))
	cSE.Add(Conv2d(cp.Sub("excite"), mid, cIn, 1, 0, 1))
	cSE.AddFn(activationFn(ActSigmoid))

	sSE := nn.SeqT()
	sSE.Add(Conv2d(p.Sub("sse"), cIn, 1, 1, 0, 1))
	sSE.AddFn(activationFn(ActSigmoid))

	return &SCSE{cSE: cSE, sSE: sSE}
}

// ForwardT implements ts.ModuleT for SCSE.
func (m *SCSE) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	cse := m.cSE.ForwardT(x, train)
	sse := m.sSE.ForwardT(x, train)
	gate := cse.MustAdd(sse, true)
	sse.MustDrop()

	out := x.MustMul(gate, false)
	gate.MustDrop()

	return out
}

// Attention applies an optional attention module to decoder inputs. Without
// one it is an Identity.
type Attention struct {
	module ts.ModuleT
}

// NewAttention creates an Attention. Only *SCSE modules are supported.
func NewAttention(moduleOpt ...ts.ModuleT) *Attention {
	if len(moduleOpt) == 0 {
		return &Attention{module: NewIdentity()}
	}

	switch m := moduleOpt[0].(type) {
	case *SCSE:
		return &Attention{module: m}
	default:
		log.Fatalf("Unsupported attention module %T. Only *SCSE is supported.\n", m)
		return nil
	}
}

// ForwardT implements ts.ModuleT for Attention.
func (a *Attention) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return a.module.ForwardT(x, train)
}

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}
