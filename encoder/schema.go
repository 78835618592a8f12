package encoder

import (
	"fmt"
)

// StageSpec describes one stage of bottleneck blocks.
type StageSpec struct {
	Stage    int   // stage number used in layer names, e.g. 2 for "res2a"
	Blocks   int   // number of bottleneck blocks
	Numbered bool  // blocks after the first are named b1, b2, ... instead of b, c, ...
	Mid      int64 // channels of the 1x1 reduce and 3x3 convolutions
	Out      int64 // channels of the 1x1 expand convolution
	Stride   int64 // stride of the first block
}

// ResNet101Topology is the stage layout wired by the ResNet101 U-Net.
var ResNet101Topology = []StageSpec{
	{Stage: 2, Blocks: 3, Numbered: false, Mid: 64, Out: 256, Stride: 1},
	{Stage: 3, Blocks: 3, Numbered: true, Mid: 128, Out: 512, Stride: 2},
	{Stage: 4, Blocks: 23, Numbered: true, Mid: 256, Out: 1024, Stride: 2},
	{Stage: 5, Blocks: 3, Numbered: false, Mid: 512, Out: 2048, Stride: 2},
}

// BlockCounts returns stage number => number of blocks.
func BlockCounts(topology []StageSpec) map[int]int {
	counts := make(map[int]int, len(topology))
	for _, s := range topology {
		counts[s.Stage] = s.Blocks
	}
	return counts
}

// BlockID identifies a bottleneck block by stage and 0-based position.
type BlockID struct {
	Stage    int
	Index    int
	Numbered bool
}

// BlockIDs lists the block IDs of a stage in order.
func (s StageSpec) BlockIDs() []BlockID {
	ids := make([]BlockID, s.Blocks)
	for i := range ids {
		ids[i] = BlockID{Stage: s.Stage, Index: i, Numbered: s.Numbered}
	}
	return ids
}

// Letter is the block label: "a", then "b", "c", ... or "b1", "b2", ...
func (id BlockID) Letter() string {
	switch {
	case id.Index == 0:
		return "a"
	case id.Numbered:
		return fmt.Sprintf("b%d", id.Index)
	default:
		return string(rune('a' + id.Index))
	}
}

// Name is stage and letter, e.g. "4b22".
func (id BlockID) Name() string {
	return fmt.Sprintf("%d%s", id.Stage, id.Letter())
}

// Shortcut reports whether the block has a projection shortcut.
func (id BlockID) Shortcut() bool {
	return id.Index == 0
}

// Branch is a path of a bottleneck block.
type Branch int

const (
	Branch2a Branch = iota // 1x1 reduce
	Branch2b               // 3x3
	Branch2c               // 1x1 expand
	Branch1                // projection shortcut
)

func (b Branch) String() string {
	switch b {
	case Branch2a:
		return "2a"
	case Branch2b:
		return "2b"
	case Branch2c:
		return "2c"
	case Branch1:
		return "1"
	default:
		return fmt.Sprintf("Branch(%d)", int(b))
	}
}

// Kind is the type of a parameterised encoder layer.
type Kind int

const (
	KindConv Kind = iota
	KindBatchNorm
	KindScale
)

func (k Kind) prefix() string {
	switch k {
	case KindConv:
		return "res"
	case KindBatchNorm:
		return "bn"
	case KindScale:
		return "scale"
	default:
		return fmt.Sprintf("kind%d", int(k))
	}
}

// LayerKey addresses a parameterised layer of a bottleneck block.
type LayerKey struct {
	Block  BlockID
	Branch Branch
	Kind   Kind
}

// Name is the pretrained layer name, e.g. "bn3b1_branch2a".
func (k LayerKey) Name() string {
	return fmt.Sprintf("%s%s_branch%s", k.Kind.prefix(), k.Block.Name(), k.Branch)
}

// BlockKeys lists the parameterised layers of a block.
func BlockKeys(id BlockID) []LayerKey {
	branches := []Branch{Branch2a, Branch2b, Branch2c}
	if id.Shortcut() {
		branches = append(branches, Branch1)
	}

	keys := make([]LayerKey, 0, len(branches)*3)
	for _, b := range branches {
		for _, k := range []Kind{KindConv, KindBatchNorm, KindScale} {
			keys = append(keys, LayerKey{Block: id, Branch: b, Kind: k})
		}
	}
	return keys
}

// Schema lists every parameterised layer a topology requires.
func Schema(topology []StageSpec) []LayerKey {
	var keys []LayerKey
	for _, s := range topology {
		for _, id := range s.BlockIDs() {
			keys = append(keys, BlockKeys(id)...)
		}
	}
	return keys
}

// BlockLayerNames lists the layer names of a block in forward order,
// including parameter-free padding, activation and sum layers.
func BlockLayerNames(id BlockID) []string {
	conv := "res" + id.Name() + "_branch"
	bn := "bn" + id.Name() + "_branch"
	scale := "scale" + id.Name() + "_branch"

	names := []string{
		conv + "2a", bn + "2a", scale + "2a", conv + "2a_relu",
		conv + "2b_zeropadding", conv + "2b", bn + "2b", scale + "2b", conv + "2b_relu",
		conv + "2c", bn + "2c", scale + "2c",
	}
	if id.Shortcut() {
		names = append(names, conv+"1", bn+"1", scale+"1")
	}

	return append(names, "res"+id.Name(), "res"+id.Name()+"_relu")
}

// Stem layer names.
const (
	StemPadName   = "conv1_zeropadding"
	StemConvName  = "conv1"
	StemBNName    = "bn_conv1"
	StemScaleName = "scale_conv1"
	StemReluName  = "conv1_relu"
	PoolName      = "pool1"
)

// LayerNames lists every layer name of a backbone with topology in forward
// order, stem first.
func LayerNames(topology []StageSpec) []string {
	names := []string{StemPadName, StemConvName, StemBNName, StemScaleName, StemReluName, PoolName}
	for _, s := range topology {
		for _, id := range s.BlockIDs() {
			names = append(names, BlockLayerNames(id)...)
		}
	}
	return names
}
