// Package dataset provides in-memory sequence datasets and a batch loader
// that feeds them to a reservoir network.
package dataset

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"
)

var (
	ErrMissingShape = errors.New("dataset: dataset does not expose data and target shapes")
	ErrIndex        = errors.New("dataset: index out of range")
	ErrSamples      = errors.New("dataset: data and target sample counts differ")
	ErrDtype        = errors.New("dataset: tensors must hold float64")
	ErrBatchSize    = errors.New("dataset: batch size must be positive")
)

// Dataset is an indexable collection of (sequence, target) samples.
type Dataset interface {
	Len() int
	// Batch gathers the samples at indices into fresh tensors whose first
	// axis has len(indices) entries.
	Batch(indices []int) (x, y *tensor.Dense, err error)
}

// Shaper exposes the whole-dataset shapes used to pre-allocate feature and
// target storage: samples × time [× inputs] and samples × targets
// [× time].
type Shaper interface {
	DataShape() tensor.Shape
	TargetShape() tensor.Shape
}

// Shapes returns the data and target shapes of ds, looking through subsets
// to the dataset they index.
func Shapes(ds Dataset) (data, target tensor.Shape, err error) {
	for {
		s, ok := ds.(*Subset)
		if !ok {
			break
		}
		ds = s.Parent
	}
	sh, ok := ds.(Shaper)
	if !ok {
		return nil, nil, ErrMissingShape
	}
	data, target = sh.DataShape(), sh.TargetShape()
	if len(data) < 2 || len(target) < 2 {
		return nil, nil, fmt.Errorf("%w: data %v, target %v", ErrMissingShape, data, target)
	}
	return data, target, nil
}

// Tensors is a dataset over two tensors sharing their first (sample) axis.
type Tensors struct {
	data   *tensor.Dense
	target *tensor.Dense
}

// NewTensors copies sliced views into contiguous tensors; other tensors
// are used as they are.
func NewTensors(data, target *tensor.Dense) (*Tensors, error) {
	data, target = contiguous(data), contiguous(target)
	if data.Dtype() != tensor.Float64 || target.Dtype() != tensor.Float64 {
		return nil, ErrDtype
	}
	if data.Dims() < 2 || target.Dims() < 2 {
		return nil, fmt.Errorf("%w: data %v, target %v", ErrMissingShape, data.Shape(), target.Shape())
	}
	if data.Shape()[0] == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrSamples)
	}
	if data.Shape()[0] != target.Shape()[0] {
		return nil, fmt.Errorf("%w: %d vs %d", ErrSamples, data.Shape()[0], target.Shape()[0])
	}
	return &Tensors{data: data, target: target}, nil
}

func contiguous(t *tensor.Dense) *tensor.Dense {
	if !t.IsView() {
		return t
	}
	if m, ok := t.Materialize().(*tensor.Dense); ok {
		return m
	}
	return t
}

func (d *Tensors) Len() int {
	return d.data.Shape()[0]
}

func (d *Tensors) DataShape() tensor.Shape {
	return d.data.Shape().Clone()
}

func (d *Tensors) TargetShape() tensor.Shape {
	return d.target.Shape().Clone()
}

func (d *Tensors) Batch(indices []int) (*tensor.Dense, *tensor.Dense, error) {
	x, err := gather(d.data, indices)
	if err != nil {
		return nil, nil, err
	}
	y, err := gather(d.target, indices)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func gather(src *tensor.Dense, indices []int) (*tensor.Dense, error) {
	shape := src.Shape().Clone()
	n := shape[0]
	per := shape.TotalSize() / n
	backing := src.Data().([]float64)
	out := make([]float64, len(indices)*per)
	for k, i := range indices {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%w: %d of %d", ErrIndex, i, n)
		}
		copy(out[k*per:(k+1)*per], backing[i*per:(i+1)*per])
	}
	shape[0] = len(indices)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
}

// Subset views Parent through Indices.
type Subset struct {
	Parent  Dataset
	Indices []int
}

func (s *Subset) Len() int {
	return len(s.Indices)
}

func (s *Subset) Batch(indices []int) (*tensor.Dense, *tensor.Dense, error) {
	mapped := make([]int, len(indices))
	for k, i := range indices {
		if i < 0 || i >= len(s.Indices) {
			return nil, nil, fmt.Errorf("%w: %d of %d", ErrIndex, i, len(s.Indices))
		}
		mapped[k] = s.Indices[i]
	}
	return s.Parent.Batch(mapped)
}
