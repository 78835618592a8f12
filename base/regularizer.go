package base

import (
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// L2 collects kernels penalised by an L2 weight regularizer.
//
// Loss returns lambda * sum(w^2) over every registered kernel, the term a
// training loop adds to its objective.
type L2 struct {
	Lambda  float64
	weights []*ts.Tensor
}

// NewL2 creates an empty L2 collector.
func NewL2(lambda float64) *L2 {
	return &L2{Lambda: lambda}
}

// Add registers kernels.
func (r *L2) Add(ws ...*ts.Tensor) {
	r.weights = append(r.weights, ws...)
}

// Len returns the number of registered kernels.
func (r *L2) Len() int {
	return len(r.weights)
}

// Loss computes the regularization term as a scalar tensor.
func (r *L2) Loss() *ts.Tensor {
	if len(r.weights) == 0 {
		return ts.MustZeros([]int64{}, gotch.Float, gotch.CPU)
	}
	if r.Lambda == 0 {
		return ts.MustZeros([]int64{}, gotch.Float, r.weights[0].MustDevice())
	}

	var total *ts.Tensor
	for _, w := range r.weights {
		sq := w.MustMul(w, false)
		sum := sq.MustSum(gotch.Float, true)
		if total == nil {
			total = sum
			continue
		}
		total = total.MustAdd(sum, true)
		sum.MustDrop()
	}

	return total.MustMul1(ts.FloatScalar(r.Lambda), true)
}
