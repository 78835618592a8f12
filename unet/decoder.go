package unet

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/base"
)

// DecoderBlock doubles the spatial size of its (optionally skip-concatenated)
// input. In deconv mode it is a 3x3 conv then a 4x4 stride-2 transposed conv;
// otherwise nearest upsampling then two 3x3 convs. All activations are ReLU.
type DecoderBlock struct {
	Attn   *base.Attention
	Conv1  *base.SameConv2d
	Conv2  *base.SameConv2d
	Deconv *base.ConvTranspose2d
}

// NewDecoderBlock creates a DecoderBlock and registers its kernels with reg.
func NewDecoderBlock(p *nn.Path, cIn, cMid, cOut int64, isDeconv, attention bool, reg *base.L2) *DecoderBlock {
	d := &DecoderBlock{
		Attn:  base.NewAttention(),
		Conv1: base.NewSameConv2d(p.Sub("conv1"), cIn, cMid, 3, base.ActRelu),
	}
	if attention {
		d.Attn = base.NewAttention(base.NewSCSE(p.Sub("attn"), cIn))
	}
	reg.Add(d.Conv1.Conv.Ws)

	if isDeconv {
		d.Deconv = base.NewConvTranspose2d(p.Sub("deconv"), cMid, cOut, 4, 1, 0, 2)
		reg.Add(d.Deconv.Ws)
	} else {
		d.Conv2 = base.NewSameConv2d(p.Sub("conv2"), cMid, cOut, 3, base.ActRelu)
		reg.Add(d.Conv2.Conv.Ws)
	}

	return d
}

// ForwardSkip concatenates x with skip (if any) and decodes.
func (d *DecoderBlock) ForwardSkip(x, skip *ts.Tensor, train bool) *ts.Tensor {
	var attn *ts.Tensor
	if skip != nil {
		cat := concat(x, skip, "decoder")
		attn = d.Attn.ForwardT(cat, train)
		cat.MustDrop()
	} else {
		attn = d.Attn.ForwardT(x, train)
	}

	if d.Deconv != nil {
		c1 := d.Conv1.ForwardT(attn, train)
		attn.MustDrop()
		up := d.Deconv.Forward(c1)
		c1.MustDrop()
		return up.MustRelu(true)
	}

	up := base.UpsampleNearest2x(attn)
	attn.MustDrop()
	c1 := d.Conv1.ForwardT(up, train)
	up.MustDrop()
	c2 := d.Conv2.ForwardT(c1, train)
	c1.MustDrop()

	return c2
}
