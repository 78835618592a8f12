package encoder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/useg/base"
)

const (
	stemChannels int64   = 64
	inChannels   int64   = 3
	bnEps        float64 = 1.1e-5
)

// ResNet is a bottleneck residual network laid out with Caffe layer names.
// Its parameterised layers live in a table keyed by LayerKey so that a
// decoder can be wired against an expected schema.
type ResNet struct {
	topology []StageSpec

	stemPad   nn.Func
	stemConv  *nn.Conv2D
	stemBN    *nn.BatchNorm
	stemScale *base.Scale

	table map[LayerKey]ts.ModuleT
}

// NewResNet101 creates the 101-layer backbone.
func NewResNet101(p *nn.Path) *ResNet {
	return NewResNet(p, ResNet101Topology)
}

// NewResNet creates a backbone with the given stages under p.
func NewResNet(p *nn.Path, topology []StageSpec) *ResNet {
	r := &ResNet{
		topology:  topology,
		stemPad:   base.ZeroPad2d([]int64{3, 3, 3, 3}),
		stemConv:  base.Conv2dNoBias(p.Sub(StemConvName), inChannels, stemChannels, 7, 0, 2),
		stemBN:    nn.BatchNorm2D(p.Sub(StemBNName), stemChannels, bnConfig()),
		stemScale: base.NewScale(p.Sub(StemScaleName), stemChannels),
		table:     make(map[LayerKey]ts.ModuleT),
	}

	cIn := stemChannels
	for _, s := range topology {
		for _, id := range s.BlockIDs() {
			stride := int64(1)
			if id.Shortcut() {
				stride = s.Stride
			}
			r.addBlock(p, id, cIn, s.Mid, s.Out, stride)
			cIn = s.Out
		}
	}

	return r
}

func bnConfig() *nn.BatchNormConfig {
	config := nn.DefaultBatchNormConfig()
	config.Eps = bnEps
	return config
}

// addBlock registers conv, batch-norm and scale layers of a bottleneck.
func (r *ResNet) addBlock(p *nn.Path, id BlockID, cIn, mid, out, stride int64) {
	type branchSpec struct {
		branch       Branch
		cIn, cOut, k int64
		stride       int64
	}
	branches := []branchSpec{
		{Branch2a, cIn, mid, 1, stride},
		{Branch2b, mid, mid, 3, 1},
		{Branch2c, mid, out, 1, 1},
	}
	if id.Shortcut() {
		branches = append(branches, branchSpec{Branch1, cIn, out, 1, stride})
	}

	for _, b := range branches {
		convKey := LayerKey{Block: id, Branch: b.branch, Kind: KindConv}
		bnKey := LayerKey{Block: id, Branch: b.branch, Kind: KindBatchNorm}
		scaleKey := LayerKey{Block: id, Branch: b.branch, Kind: KindScale}

		// 3x3 convolutions are preceded by an explicit zero-padding layer.
		r.table[convKey] = base.Conv2dNoBias(p.Sub(convKey.Name()), b.cIn, b.cOut, b.k, 0, b.stride)
		r.table[bnKey] = nn.BatchNorm2D(p.Sub(bnKey.Name()), b.cOut, bnConfig())
		r.table[scaleKey] = base.NewScale(p.Sub(scaleKey.Name()), b.cOut)
	}
}

// Layer looks up a layer by key.
func (r *ResNet) Layer(key LayerKey) (ts.ModuleT, error) {
	l, ok := r.table[key]
	if !ok {
		return nil, fmt.Errorf("encoder: missing layer %q", key.Name())
	}
	return l, nil
}

// Validate checks the layer table against the schema of topology and reports
// every missing layer name.
func (r *ResNet) Validate(topology []StageSpec) error {
	var missing []string
	for _, key := range Schema(topology) {
		if _, ok := r.table[key]; !ok {
			missing = append(missing, key.Name())
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	return fmt.Errorf("encoder: %d layers missing from backbone: %s", len(missing), strings.Join(missing, ", "))
}

// Bottleneck resolves a block from the layer table.
func (r *ResNet) Bottleneck(id BlockID) (*Bottleneck, error) {
	resolve := func(branch Branch) ([]ts.ModuleT, error) {
		var layers []ts.ModuleT
		for _, kind := range []Kind{KindConv, KindBatchNorm, KindScale} {
			l, err := r.Layer(LayerKey{Block: id, Branch: branch, Kind: kind})
			if err != nil {
				return nil, err
			}
			layers = append(layers, l)
		}
		return layers, nil
	}

	b := &Bottleneck{ID: id, pad: base.ZeroPad2d([]int64{1, 1, 1, 1})}
	var err error
	if b.reduce, err = resolve(Branch2a); err != nil {
		return nil, err
	}
	if b.conv, err = resolve(Branch2b); err != nil {
		return nil, err
	}
	if b.expand, err = resolve(Branch2c); err != nil {
		return nil, err
	}
	if id.Shortcut() {
		if b.shortcut, err = resolve(Branch1); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Encoder validates the table against topology and returns an encoder that
// forwards through exactly the blocks of topology.
func (r *ResNet) Encoder(topology []StageSpec) (*ResNetEncoder, error) {
	if err := r.Validate(topology); err != nil {
		return nil, err
	}

	e := &ResNetEncoder{
		backbone: r,
		channels: []int64{stemChannels},
	}
	for _, s := range topology {
		var blocks []*Bottleneck
		for _, id := range s.BlockIDs() {
			b, err := r.Bottleneck(id)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		}
		e.stages = append(e.stages, blocks)
		e.channels = append(e.channels, s.Out)
	}

	return e, nil
}

// Bottleneck is a residual unit: 1x1 reduce, 3x3, 1x1 expand, each followed by
// batch-norm and scale, summed with an identity or projection shortcut.
type Bottleneck struct {
	ID       BlockID
	reduce   []ts.ModuleT
	pad      nn.Func
	conv     []ts.ModuleT
	expand   []ts.ModuleT
	shortcut []ts.ModuleT
}

// applyAll forwards x through layers. x is not dropped.
func applyAll(x *ts.Tensor, layers []ts.ModuleT, train bool) *ts.Tensor {
	out := x
	for _, l := range layers {
		next := l.ForwardT(out, train)
		if out != x {
			out.MustDrop()
		}
		out = next
	}
	return out
}

// ForwardT implements ts.ModuleT for Bottleneck.
func (b *Bottleneck) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	x2a := applyAll(x, b.reduce, train).MustRelu(true)
	pad := b.pad.Forward(x2a)
	x2a.MustDrop()
	x2b := applyAll(pad, b.conv, train).MustRelu(true)
	pad.MustDrop()
	x2c := applyAll(x2b, b.expand, train)
	x2b.MustDrop()

	var sum *ts.Tensor
	if b.shortcut != nil {
		short := applyAll(x, b.shortcut, train)
		sum = x2c.MustAdd(short, true)
		short.MustDrop()
	} else {
		sum = x2c.MustAdd(x, true)
	}

	return sum.MustRelu(true)
}

var _ Encoder = (*ResNetEncoder)(nil)

// ResNetEncoder implements Encoder over a validated ResNet.
type ResNetEncoder struct {
	backbone *ResNet
	stages   [][]*Bottleneck
	channels []int64
}

// OutChannels returns the channels of each feature returned by ForwardAll.
func (e *ResNetEncoder) OutChannels() []int64 {
	return e.channels
}

// ForwardAll implements Encoder interface for ResNetEncoder.
//
// Features are the stem output (stride 2) followed by one output per stage;
// a 2x2 max-pool sits between the stem and the first stage.
func (e *ResNetEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	r := e.backbone
	pad := r.stemPad.Forward(x)
	c1 := r.stemConv.ForwardT(pad, train)
	pad.MustDrop()
	bn1 := r.stemBN.ForwardT(c1, train)
	c1.MustDrop()
	sc1 := r.stemScale.ForwardT(bn1, train)
	bn1.MustDrop()
	x0 := sc1.MustRelu(true)

	features := []*ts.Tensor{x0}
	h := base.MaxPool2x2(x0)
	isFeature := false
	for _, blocks := range e.stages {
		for _, b := range blocks {
			out := b.ForwardT(h, train)
			if !isFeature {
				h.MustDrop()
			}
			h, isFeature = out, false
		}
		features = append(features, h)
		isFeature = true
	}

	return features
}
