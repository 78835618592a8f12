package unet

import (
	"fmt"
	"log"
	"reflect"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/base"
)

// Model is a segmentation network built by this package.
//
// ForwardT takes a [batch, channels, height, width] image tensor and returns
// per-pixel probabilities of shape [batch, out channels, height, width].
type Model interface {
	ts.ModuleT
	// RegularizationLoss is the L2 kernel penalty to add to a training loss.
	RegularizationLoss() *ts.Tensor
}

// concat joins a and b along channels. Their spatial sizes must match.
func concat(a, b *ts.Tensor, where string) *ts.Tensor {
	aSize := a.MustSize()
	bSize := b.MustSize()
	if !reflect.DeepEqual(aSize[2:], bSize[2:]) {
		log.Fatalf("unet: %s: cannot concatenate %v and %v: spatial sizes differ\n", where, aSize, bSize)
	}

	return ts.MustCat([]ts.Tensor{*a, *b}, 1)
}

type level struct {
	Level
	encode *ConvBlock
	down   ts.ModuleT
	up     ts.ModuleT
	decode *ConvBlock
}

// BaseUNet is a symmetric encoder-decoder with skip connections.
// Ref: https://arxiv.org/abs/1505.04597
//
//	level0.encode ─────────────── concat ─ level0.decode ─ logit
//	   down                                    up
//	   level1.encode ──── concat ─ level1.decode
//	      down                 up
//	      level2.block (terminal, dropout)
type BaseUNet struct {
	config Config
	plan   []Level
	levels []*level
	bottom *ConvBlock
	head   *base.SegmentationHead
	reg    *base.L2
}

// NewBaseUNet creates a BaseUNet under p.
func NewBaseUNet(p *nn.Path, cfg Config) (*BaseUNet, error) {
	plan, err := PlanLevels(cfg)
	if err != nil {
		return nil, err
	}
	act, err := base.ParseActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}

	n := &BaseUNet{
		config: cfg,
		plan:   plan,
		reg:    base.NewL2(cfg.L2Reg),
	}

	for _, l := range plan {
		lp := p.Sub(fmt.Sprintf("level%d", l.Index))
		if l.Terminal() {
			n.bottom = NewConvBlock(lp.Sub("block"), l.InChannels, l.Filters, act, cfg.BatchNorm, cfg.Residual, cfg.Dropout, n.reg)
			continue
		}

		inner := plan[l.Index+1]
		n.levels = append(n.levels, &level{
			Level:  l,
			encode: NewConvBlock(lp.Sub("encode"), l.InChannels, l.Filters, act, cfg.BatchNorm, cfg.Residual, 0, n.reg),
			down:   n.newDown(lp.Sub("down"), l),
			up:     n.newUp(lp.Sub("up"), inner.OutChannels, l.Filters, act),
			decode: NewConvBlock(lp.Sub("decode"), l.ConcatChannels, l.Filters, act, cfg.BatchNorm, cfg.Residual, 0, n.reg),
		})
	}

	outCh := plan[0].OutChannels
	n.head = base.NewSegmentationHead(p.Sub("logit"), outCh, cfg.OutChannels, 1)
	n.reg.Add(n.head.Conv.Ws)

	return n, nil
}

// newDown halves the spatial size by max-pooling or a strided convolution.
func (n *BaseUNet) newDown(p *nn.Path, l Level) ts.ModuleT {
	if n.config.MaxPool {
		return nn.NewFunc(base.MaxPool2x2)
	}

	conv := base.Conv2d(p, l.SkipChannels, l.Filters, 3, 1, 2)
	n.reg.Add(conv.Ws)
	return conv
}

// newUp doubles the spatial size with nearest upsampling followed by a 2x2
// same-padding convolution (IsDeconv), or with a transposed convolution.
func (n *BaseUNet) newUp(p *nn.Path, cIn, cOut int64, act base.Activation) ts.ModuleT {
	if !n.config.IsDeconv {
		deconv := base.NewConvTranspose2d(p, cIn, cOut, 3, 1, 1, 2)
		return nn.NewFuncT(func(x *ts.Tensor, train bool) *ts.Tensor {
			return act.Apply(deconv.Forward(x), true)
		})
	}

	conv := base.NewSameConv2d(p, cIn, cOut, 2, act)
	n.reg.Add(conv.Conv.Ws)
	return nn.NewFuncT(func(x *ts.Tensor, train bool) *ts.Tensor {
		up := base.UpsampleNearest2x(x)
		out := conv.ForwardT(up, train)
		up.MustDrop()
		return out
	})
}

// Levels returns the level layout, outermost first.
func (n *BaseUNet) Levels() []Level {
	return n.plan
}

// Config returns the configuration the model was built with.
func (n *BaseUNet) Config() Config {
	return n.config
}

// RegularizationLoss implements Model.
func (n *BaseUNet) RegularizationLoss() *ts.Tensor {
	return n.reg.Loss()
}

// ForwardT implements ts.ModuleT for BaseUNet.
func (n *BaseUNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	skips := make([]*ts.Tensor, len(n.levels))
	h := x
	for i, l := range n.levels {
		skip := l.encode.ForwardT(h, train)
		if h != x {
			h.MustDrop()
		}
		skips[i] = skip
		h = l.down.ForwardT(skip, train)
	}

	m := n.bottom.ForwardT(h, train)
	if h != x {
		h.MustDrop()
	}

	for i := len(n.levels) - 1; i >= 0; i-- {
		l := n.levels[i]
		up := l.up.ForwardT(m, train)
		m.MustDrop()
		cat := concat(skips[i], up, fmt.Sprintf("level%d", l.Index))
		skips[i].MustDrop()
		up.MustDrop()
		m = l.decode.ForwardT(cat, train)
		cat.MustDrop()
	}

	out := n.head.ForwardT(m, train)
	m.MustDrop()

	return out
}
