package readout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Standardizer rescales every feature column to zero mean and unit
// population variance. Constant columns are only centered.
type Standardizer struct {
	mean  []float64
	scale []float64
}

func FitStandardizer(x mat.Matrix) (*Standardizer, error) {
	n, c := x.Dims()
	if n == 0 {
		return nil, ErrEmpty
	}
	s := &Standardizer{mean: make([]float64, c), scale: make([]float64, c)}
	col := make([]float64, n)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.mean[j], s.scale[j] = mean, std
	}
	return s, nil
}

// Transform returns a standardized copy of x.
func (s *Standardizer) Transform(x mat.Matrix) (*mat.Dense, error) {
	n, c := x.Dims()
	if c != len(s.mean) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrColMismatch, c, len(s.mean))
	}
	out := mat.NewDense(n, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.mean[j]) / s.scale[j]
	}, x)
	return out, nil
}

func (s *Standardizer) Mean() []float64  { return s.mean }
func (s *Standardizer) Scale() []float64 { return s.scale }

func columnMeans(m mat.Matrix) []float64 {
	n, c := m.Dims()
	means := make([]float64, c)
	col := make([]float64, n)
	for j := range means {
		mat.Col(col, j, m)
		means[j] = stat.Mean(col, nil)
	}
	return means
}
