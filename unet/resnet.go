package unet

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/base"
	"github.com/sugarme/useg/encoder"
)

const encoderPrefix = "encoder"

// decoderSpec is one row of the ResNetUNet decoder table. Widths are
// multiples of NumFilters; skip indexes the encoder features, -1 for none.
type decoderSpec struct {
	name     string
	skip     int
	mid, out int64
}

//	layer0 (stem)                            dec1
//	   stage2 ──────────────────────── dec2
//	      stage3 ─────────────── dec3
//	         stage4 ────── dec4
//	            stage5 dec5
//	              pool center
var resNetDecoder = []decoderSpec{
	{name: "dec5", skip: 4, mid: 16, out: 8},
	{name: "dec4", skip: 3, mid: 16, out: 8},
	{name: "dec3", skip: 2, mid: 8, out: 2},
	{name: "dec2", skip: 1, mid: 4, out: 4},
	{name: "dec1", skip: -1, mid: 4, out: 1},
}

// ResNetUNet is a U-Net whose encoder is a ResNet101 backbone.
type ResNetUNet struct {
	config   ResNetConfig
	encoder  encoder.Encoder
	center   *DecoderBlock
	decoders []*DecoderBlock
	skips    []int
	final    *base.SameConv2d
	dropout  *nn.Dropout
	head     *base.SegmentationHead
	reg      *base.L2
}

// NewResNetUNet creates a ResNetUNet under p. Encoder variables live under
// p.Sub("encoder") with their Caffe layer names.
func NewResNetUNet(p *nn.Path, cfg ResNetConfig) (*ResNetUNet, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	backbone := encoder.NewResNet101(p.Sub(encoderPrefix))

	return NewResNetUNetWithBackbone(p, backbone, cfg)
}

// NewResNetUNetWithBackbone wires a decoder onto an existing backbone. The
// backbone must provide every layer of encoder.ResNet101Topology.
func NewResNetUNetWithBackbone(p *nn.Path, backbone *encoder.ResNet, cfg ResNetConfig) (*ResNetUNet, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	enc, err := backbone.Encoder(encoder.ResNet101Topology)
	if err != nil {
		return nil, fmt.Errorf("unet: resnet101 backbone: %w", err)
	}

	nf := cfg.NumFilters
	channels := enc.OutChannels()
	n := &ResNetUNet{
		config:  cfg,
		encoder: enc,
		reg:     base.NewL2(cfg.L2Reg),
	}

	dp := p.Sub("decoder")
	deepest := channels[len(channels)-1]
	n.center = NewDecoderBlock(dp.Sub("center"), deepest, nf*16, nf*8, cfg.IsDeconv, cfg.Attention, n.reg)

	cIn := nf * 8
	for _, row := range resNetDecoder {
		if row.skip >= 0 {
			cIn += channels[row.skip]
		}
		d := NewDecoderBlock(dp.Sub(row.name), cIn, nf*row.mid, nf*row.out, cfg.IsDeconv, cfg.Attention, n.reg)
		n.decoders = append(n.decoders, d)
		n.skips = append(n.skips, row.skip)
		cIn = nf * row.out
	}

	n.final = base.NewSameConv2d(dp.Sub("dec0"), cIn, nf, 3, base.ActRelu)
	n.dropout = nn.NewDropout(cfg.Dropout)
	n.head = base.NewSegmentationHead(p.Sub("logit"), nf, cfg.OutChannels, 1)
	n.reg.Add(n.final.Conv.Ws, n.head.Conv.Ws)

	return n, nil
}

// BuildResNetUNet creates a ResNetUNet at the root of vs and, if configured,
// loads pretrained encoder weights.
func BuildResNetUNet(vs *nn.VarStore, cfg ResNetConfig) (*ResNetUNet, error) {
	log.Println("Loading ResNet101 encoder...")
	net, err := NewResNetUNet(vs.Root(), cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Loaded ResNet101 encoder")

	if cfg.Pretrained {
		if err := encoder.LoadPretrained(vs, cfg.WeightsPath, encoderPrefix); err != nil {
			return nil, fmt.Errorf("unet: %w", err)
		}
	}

	return net, nil
}

// Config returns the configuration the model was built with.
func (n *ResNetUNet) Config() ResNetConfig {
	return n.config
}

// RegularizationLoss implements Model. Encoder kernels are not penalised.
func (n *ResNetUNet) RegularizationLoss() *ts.Tensor {
	return n.reg.Loss()
}

// ForwardT implements ts.ModuleT for ResNetUNet.
func (n *ResNetUNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	// E.g. x [bz 3 256 256]
	// 0- stem   [bz   64 128 128]
	// 1- stage2 [bz  256  64  64]
	// 2- stage3 [bz  512  32  32]
	// 3- stage4 [bz 1024  16  16]
	// 4- stage5 [bz 2048   8   8]
	features := n.encoder.ForwardAll(x, train)

	pool := base.MaxPool2x2(features[len(features)-1])
	h := n.center.ForwardSkip(pool, nil, train)
	pool.MustDrop()

	for i, d := range n.decoders {
		var skip *ts.Tensor
		if n.skips[i] >= 0 {
			skip = features[n.skips[i]]
		}
		next := d.ForwardSkip(h, skip, train)
		h.MustDrop()
		h = next
	}

	f := n.final.ForwardT(h, train)
	h.MustDrop()
	dropped := n.dropout.ForwardT(f, train)
	f.MustDrop()
	masks := n.head.ForwardT(dropped, train)
	dropped.MustDrop()

	for _, f := range features {
		f.MustDrop()
	}

	return masks
}
