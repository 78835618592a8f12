package unet

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/base"
)

// ConvBlock is two 3x3 same-padding convolutions, each optionally followed by
// batch-norm, with optional dropout in between. A residual block concatenates
// its input to its output along channels.
type ConvBlock struct {
	conv1    *base.SameConv2d
	bn1      *nn.BatchNorm
	dropout  *nn.Dropout
	conv2    *base.SameConv2d
	bn2      *nn.BatchNorm
	residual bool
}

// NewConvBlock creates a ConvBlock and registers its kernels with reg.
func NewConvBlock(p *nn.Path, cIn, filters int64, act base.Activation, batchNorm, residual bool, dropout float64, reg *base.L2) *ConvBlock {
	b := &ConvBlock{
		conv1:    base.NewSameConv2d(p.Sub("conv1"), cIn, filters, 3, act),
		conv2:    base.NewSameConv2d(p.Sub("conv2"), filters, filters, 3, act),
		residual: residual,
	}
	reg.Add(b.conv1.Conv.Ws, b.conv2.Conv.Ws)

	if batchNorm {
		b.bn1 = nn.BatchNorm2D(p.Sub("bn1"), filters, bnConfig())
		b.bn2 = nn.BatchNorm2D(p.Sub("bn2"), filters, bnConfig())
	}
	if dropout > 0 {
		b.dropout = nn.NewDropout(dropout)
	}

	return b
}

func bnConfig() *nn.BatchNormConfig {
	config := nn.DefaultBatchNormConfig()
	config.Eps = 0.001
	config.Momentum = 0.01
	return config
}

// ForwardT implements ts.ModuleT for ConvBlock.
func (b *ConvBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	h := b.conv1.ForwardT(x, train)
	if b.bn1 != nil {
		bn := b.bn1.ForwardT(h, train)
		h.MustDrop()
		h = bn
	}
	if b.dropout != nil {
		d := b.dropout.ForwardT(h, train)
		h.MustDrop()
		h = d
	}

	out := b.conv2.ForwardT(h, train)
	h.MustDrop()
	if b.bn2 != nil {
		bn := b.bn2.ForwardT(out, train)
		out.MustDrop()
		out = bn
	}

	if !b.residual {
		return out
	}
	res := ts.MustCat([]ts.Tensor{*x, *out}, 1)
	out.MustDrop()

	return res
}
