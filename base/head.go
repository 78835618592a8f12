package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// SegmentationHead maps decoder features to per-pixel, per-channel
// probabilities with a convolution and a sigmoid.
type SegmentationHead struct {
	Conv *nn.Conv2D
}

// NewSegmentationHead creates new SegmentationHead.
func NewSegmentationHead(p *nn.Path, cIn, cOut, ksize int64) *SegmentationHead {
	return &SegmentationHead{
		Conv: Conv2d(p, cIn, cOut, ksize, ksize/2, 1),
	}
}

// ForwardT implements ts.ModuleT for SegmentationHead.
func (h *SegmentationHead) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	logit := h.Conv.ForwardT(x, train)
	return logit.MustSigmoid(true)
}
