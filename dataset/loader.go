package dataset

import (
	"gorgonia.org/tensor"
)

// Loader walks a dataset in order, batchSize samples at a time. The last
// batch holds the remainder when Len is not a multiple of batchSize.
type Loader struct {
	ds        Dataset
	batchSize int
}

func NewLoader(ds Dataset, batchSize int) (*Loader, error) {
	if batchSize <= 0 {
		return nil, ErrBatchSize
	}
	return &Loader{ds: ds, batchSize: batchSize}, nil
}

func (l *Loader) Dataset() Dataset {
	return l.ds
}

func (l *Loader) BatchSize() int {
	return l.batchSize
}

// Len returns the number of batches.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Batch returns batch i, 0 <= i < Len().
func (l *Loader) Batch(i int) (x, y *tensor.Dense, err error) {
	start := i * l.batchSize
	end := start + l.batchSize
	if end > l.ds.Len() {
		end = l.ds.Len()
	}
	if i < 0 || start >= end {
		return nil, nil, ErrIndex
	}
	indices := make([]int, end-start)
	for k := range indices {
		indices[k] = start + k
	}
	return l.ds.Batch(indices)
}
