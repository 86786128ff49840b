package readout

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Classifier is one-vs-all ridge classification over ±1 encoded labels.
// Targets are either a single label column or a 0/1 indicator matrix with
// one column per class; predictions come back in the same form.
type Classifier struct {
	ridge     *Ridge
	classes   []float64
	indicator bool
}

func NewClassifier(alphas []float64) (*Classifier, error) {
	r, err := NewRidge(alphas)
	if err != nil {
		return nil, err
	}
	return &Classifier{ridge: r}, nil
}

// Classes returns the sorted labels seen by the last Fit, or the column
// indices of indicator targets.
func (c *Classifier) Classes() []float64 {
	return c.classes
}

func (c *Classifier) Alpha() float64 {
	return c.ridge.Alpha()
}

func (c *Classifier) Fit(x, y mat.Matrix) error {
	c.classes = nil
	_, cols := y.Dims()
	var encoded *mat.Dense
	var classes []float64
	var err error
	if cols > 1 {
		encoded, classes, err = encodeIndicators(y)
	} else {
		encoded, classes, err = encodeLabels(mat.Col(nil, 0, y))
	}
	if err != nil {
		return err
	}
	if err := c.ridge.Fit(x, encoded); err != nil {
		return err
	}
	c.classes, c.indicator = classes, cols > 1
	return nil
}

func encodeLabels(labels []float64) (*mat.Dense, []float64, error) {
	classes := distinct(labels)
	if len(classes) < 2 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrClasses, len(classes))
	}
	width := len(classes)
	if width == 2 {
		width = 1
	}
	encoded := mat.NewDense(len(labels), width, nil)
	for i, l := range labels {
		k := sort.SearchFloat64s(classes, l)
		row := encoded.RawRowView(i)
		if width == 1 {
			row[0] = -1
			if k == 1 {
				row[0] = 1
			}
			continue
		}
		for j := range row {
			row[j] = -1
		}
		row[k] = 1
	}
	return encoded, classes, nil
}

// encodeIndicators maps 0/1 indicator targets to ±1.
func encodeIndicators(y mat.Matrix) (*mat.Dense, []float64, error) {
	n, cols := y.Dims()
	encoded := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			switch y.At(i, j) {
			case 0:
				encoded.Set(i, j, -1)
			case 1:
				encoded.Set(i, j, 1)
			default:
				return nil, nil, fmt.Errorf("%w: indicator target (%d,%d) = %v", ErrClasses, i, j, y.At(i, j))
			}
		}
	}
	classes := make([]float64, cols)
	for j := range classes {
		classes[j] = float64(j)
	}
	return encoded, classes, nil
}

func (c *Classifier) Predict(x mat.Matrix) (*mat.Dense, error) {
	if c.classes == nil {
		return nil, ErrNotFitted
	}
	scores, err := c.ridge.Predict(x)
	if err != nil {
		return nil, err
	}
	n, cols := scores.Dims()
	if c.indicator {
		out := mat.NewDense(n, cols, nil)
		for i := 0; i < n; i++ {
			out.Set(i, floats.MaxIdx(scores.RawRowView(i)), 1)
		}
		return out, nil
	}
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		if len(row) == 1 {
			if row[0] > 0 {
				out.Set(i, 0, c.classes[1])
			} else {
				out.Set(i, 0, c.classes[0])
			}
			continue
		}
		out.Set(i, 0, c.classes[floats.MaxIdx(row)])
	}
	return out, nil
}

func distinct(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := sorted[:0]
	for _, v := range sorted {
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
