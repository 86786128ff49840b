package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
	"gorgonia.org/tensor"
)

var (
	ErrRowLength = errors.New("dataset: rows have different lengths")
	ErrLabels    = errors.New("dataset: labels must be non-negative integers in one column")
)

// LoadCSV reads one sequence per line as "label,v1,...,vT". It returns
// data shaped N × T and targets shaped N × 1. Blank lines and lines
// starting with '#' are skipped.
func LoadCSV(filePath string) (*Tensors, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, essentials.AddCtx("load csv", err)
	}
	defer file.Close()

	var values, labels []float64
	steps := -1
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, ",")
		ctx := fmt.Sprintf("%s:%d", filePath, line)
		if len(fields) < 2 {
			return nil, essentials.AddCtx(ctx, fmt.Errorf("%w: need a label and at least one value", ErrRowLength))
		}
		if steps < 0 {
			steps = len(fields) - 1
		} else if len(fields)-1 != steps {
			return nil, essentials.AddCtx(ctx, fmt.Errorf("%w: %d values, want %d", ErrRowLength, len(fields)-1, steps))
		}
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, essentials.AddCtx(ctx, err)
			}
			row[i] = v
		}
		labels = append(labels, row[0])
		values = append(values, row[1:]...)
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("load csv", err)
	}
	if len(labels) == 0 {
		return nil, essentials.AddCtx(filePath, ErrSamples)
	}

	data := tensor.New(tensor.WithShape(len(labels), steps), tensor.WithBacking(values))
	target := tensor.New(tensor.WithShape(len(labels), 1), tensor.WithBacking(labels))
	return NewTensors(data, target)
}

// OneHot encodes integer labels as rows of a len(labels) × numClasses tensor.
func OneHot(labels []int, numClasses int) *tensor.Dense {
	numLabels := len(labels)
	norm := make([]float64, numLabels*numClasses)

	for i, label := range labels {
		norm[i*numClasses+label] = 1.0
	}

	return tensor.New(tensor.WithShape(numLabels, numClasses), tensor.WithBacking(norm))
}

// OneHotTargets returns a dataset over the same data whose N × 1 integer
// labels are replaced by N × classes one-hot rows, classes being the
// largest label plus one.
func (d *Tensors) OneHotTargets() (*Tensors, error) {
	shape := d.target.Shape()
	if len(shape) != 2 || shape[1] != 1 {
		return nil, fmt.Errorf("%w: target shape %v", ErrLabels, shape)
	}
	values := d.target.Data().([]float64)
	labels := make([]int, len(values))
	numClasses := 0
	for i, v := range values {
		if v < 0 || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: sample %d has label %v", ErrLabels, i, v)
		}
		labels[i] = int(v)
		if labels[i] >= numClasses {
			numClasses = labels[i] + 1
		}
	}
	return NewTensors(d.data, OneHot(labels, numClasses))
}
