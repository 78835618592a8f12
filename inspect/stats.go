package inspect

import (
	ts "github.com/sugarme/gotch/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the values of a tensor.
type Stats struct {
	Min, Max     float64
	Mean, StdDev float64
	Count        int
}

// TensorStats computes Stats over every element of x.
func TensorStats(x *ts.Tensor) Stats {
	values := x.Float64Values()
	if len(values) == 0 {
		return Stats{}
	}

	mean, std := stat.MeanStdDev(values, nil)
	return Stats{
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
		Count:  len(values),
	}
}

// InUnitInterval reports whether every value lies in [0, 1].
func (s Stats) InUnitInterval() bool {
	return s.Count > 0 && s.Min >= 0 && s.Max <= 1
}
