package readout

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ScoreFunc compares predictions with ground truth. Matrices of different
// shapes score NaN.
type ScoreFunc func(pred, truth mat.Matrix) float64

// Accuracy is the fraction of rows predicted exactly: labels for label
// columns, the whole row for indicator targets.
func Accuracy(pred, truth mat.Matrix) float64 {
	pr, pc := pred.Dims()
	tr, tc := truth.Dims()
	if pr != tr || pc != tc || pr*pc == 0 {
		return math.NaN()
	}
	p, t := mat.DenseCopyOf(pred), mat.DenseCopyOf(truth)
	hits := 0
	for i := 0; i < pr; i++ {
		if floats.Equal(p.RawRowView(i), t.RawRowView(i)) {
			hits++
		}
	}
	return float64(hits) / float64(pr)
}

// MeanSquaredError averages the squared error over every entry.
func MeanSquaredError(pred, truth mat.Matrix) float64 {
	p, t, ok := flatten(pred, truth)
	if !ok {
		return math.NaN()
	}
	d := floats.Distance(p, t, 2)
	return d * d / float64(len(p))
}

func RootMeanSquaredError(pred, truth mat.Matrix) float64 {
	return math.Sqrt(MeanSquaredError(pred, truth))
}

// RSquared is the coefficient of determination averaged over output columns.
func RSquared(pred, truth mat.Matrix) float64 {
	pr, pc := pred.Dims()
	tr, tc := truth.Dims()
	if pr != tr || pc != tc || pr == 0 {
		return math.NaN()
	}
	var sum float64
	for j := 0; j < pc; j++ {
		sum += stat.RSquaredFrom(mat.Col(nil, j, pred), mat.Col(nil, j, truth), nil)
	}
	return sum / float64(pc)
}

func flatten(pred, truth mat.Matrix) ([]float64, []float64, bool) {
	pr, pc := pred.Dims()
	tr, tc := truth.Dims()
	if pr != tr || pc != tc || pr*pc == 0 {
		return nil, nil, false
	}
	p := mat.DenseCopyOf(pred).RawMatrix().Data
	t := mat.DenseCopyOf(truth).RawMatrix().Data
	return p, t, true
}
