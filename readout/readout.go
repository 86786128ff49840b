// Package readout holds the trained part of a reservoir network: ridge
// regression and ridge classification with leave-one-out selection of the
// regularization strength, a feature standardizer and score functions.
package readout

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidAlphas = errors.New("readout: alphas must be a non-empty list of positive numbers")
	ErrUnknownTask   = errors.New("readout: unknown task")
	ErrEmpty         = errors.New("readout: no samples")
	ErrRowMismatch   = errors.New("readout: feature and target row counts differ")
	ErrColMismatch   = errors.New("readout: feature width differs from the fitted width")
	ErrNotFitted     = errors.New("readout: model used before Fit")
	ErrClasses       = errors.New("readout: classification needs at least two classes")
	ErrSVD           = errors.New("readout: SVD did not converge")
)

// Model is a linear readout fitted on reservoir features.
type Model interface {
	Fit(x, y mat.Matrix) error
	Predict(x mat.Matrix) (*mat.Dense, error)
}

// Task selects the readout family.
type Task string

const (
	Classification Task = "classification"
	Regression     Task = "regression"
)

// DefaultAlphas spans eight decades of regularization strength.
func DefaultAlphas() []float64 {
	return []float64{1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 1, 10, 100}
}

// ValidateAlphas reports whether alphas can drive the regularization search.
func ValidateAlphas(alphas []float64) error {
	if len(alphas) == 0 {
		return ErrInvalidAlphas
	}
	for i, a := range alphas {
		if !(a > 0) || math.IsInf(a, 1) {
			return fmt.Errorf("%w: alphas[%d] = %v", ErrInvalidAlphas, i, a)
		}
	}
	return nil
}

// New returns an unfitted readout for task.
func New(task Task, alphas []float64) (Model, error) {
	switch task {
	case Classification:
		return NewClassifier(alphas)
	case Regression:
		return NewRidge(alphas)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
}
