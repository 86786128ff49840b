package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorgonia.org/tensor"
)

func sequences(n, steps int) *Tensors {
	data := make([]float64, n*steps)
	labels := make([]float64, n)
	for i := range labels {
		labels[i] = float64(i)
		for t := 0; t < steps; t++ {
			data[i*steps+t] = float64(i*100 + t)
		}
	}
	ds, err := NewTensors(
		tensor.New(tensor.WithShape(n, steps), tensor.WithBacking(data)),
		tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(labels)),
	)
	if err != nil {
		panic(err)
	}
	return ds
}

// bare hides the shapes of the dataset it wraps.
type bare struct{ ds *Tensors }

func (b bare) Len() int { return b.ds.Len() }

func (b bare) Batch(indices []int) (*tensor.Dense, *tensor.Dense, error) {
	return b.ds.Batch(indices)
}

func TestLoaderBatches(t *testing.T) {
	ds := sequences(5, 3)
	l, err := NewLoader(ds, 2)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d; want 3", l.Len())
	}
	wantRows := []int{2, 2, 1}
	next := 0.0
	for i, rows := range wantRows {
		x, y, err := l.Batch(i)
		if err != nil {
			t.Fatalf("Batch(%d): %v", i, err)
		}
		if got := x.Shape(); got[0] != rows || got[1] != 3 {
			t.Errorf("Batch(%d) x shape = %v; want (%d, 3)", i, got, rows)
		}
		for _, label := range y.Data().([]float64) {
			if label != next {
				t.Errorf("Batch(%d) label = %v; want %v", i, label, next)
			}
			next++
		}
	}
	if _, _, err := l.Batch(3); !errors.Is(err, ErrIndex) {
		t.Errorf("Batch(3) error = %v; want ErrIndex", err)
	}
}

func TestNewLoaderRejectsBatchSize(t *testing.T) {
	if _, err := NewLoader(sequences(2, 2), 0); !errors.Is(err, ErrBatchSize) {
		t.Errorf("NewLoader(0) error = %v; want ErrBatchSize", err)
	}
}

func TestSubsetBatchAndShapes(t *testing.T) {
	ds := sequences(6, 4)
	sub := &Subset{Parent: ds, Indices: []int{5, 1}}
	x, y, err := sub.Batch([]int{0, 1})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if got := y.Data().([]float64); got[0] != 5 || got[1] != 1 {
		t.Errorf("subset labels = %v; want [5 1]", got)
	}
	if got := x.Data().([]float64)[0]; got != 500 {
		t.Errorf("subset first value = %v; want 500", got)
	}
	data, target, err := Shapes(sub)
	if err != nil {
		t.Fatalf("Shapes: %v", err)
	}
	if !data.Eq(tensor.Shape{6, 4}) || !target.Eq(tensor.Shape{6, 1}) {
		t.Errorf("Shapes = %v, %v; want parent shapes (6, 4), (6, 1)", data, target)
	}
}

func TestShapesMissing(t *testing.T) {
	if _, _, err := Shapes(bare{sequences(2, 2)}); !errors.Is(err, ErrMissingShape) {
		t.Errorf("Shapes on a dataset without shapes error = %v; want ErrMissingShape", err)
	}
}

func TestNewTensorsErrors(t *testing.T) {
	data := tensor.New(tensor.WithShape(3, 2), tensor.WithBacking(make([]float64, 6)))
	target := tensor.New(tensor.WithShape(2, 1), tensor.WithBacking(make([]float64, 2)))
	if _, err := NewTensors(data, target); !errors.Is(err, ErrSamples) {
		t.Errorf("NewTensors with mismatched samples error = %v; want ErrSamples", err)
	}
	f32 := tensor.New(tensor.WithShape(3, 1), tensor.WithBacking(make([]float32, 3)))
	if _, err := NewTensors(data, f32); !errors.Is(err, ErrDtype) {
		t.Errorf("NewTensors with float32 target error = %v; want ErrDtype", err)
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seq.csv")
	content := "# label,values\n1,0.5,0.25,0\n\n0,1,2,3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if !ds.DataShape().Eq(tensor.Shape{2, 3}) {
		t.Errorf("DataShape = %v; want (2, 3)", ds.DataShape())
	}
	_, y, err := ds.Batch([]int{0, 1})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if got := y.Data().([]float64); got[0] != 1 || got[1] != 0 {
		t.Errorf("labels = %v; want [1 0]", got)
	}
}

func TestLoadCSVRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("1,2,3\n0,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadCSV(path)
	if err == nil {
		t.Fatal("LoadCSV with ragged rows returned nil error")
	}
	if !strings.Contains(err.Error(), "bad.csv:2") {
		t.Errorf("error %q does not name the offending line", err)
	}
}

func TestOneHot(t *testing.T) {
	out := OneHot([]int{2, 0}, 3)
	want := []float64{0, 0, 1, 1, 0, 0}
	for i, v := range out.Data().([]float64) {
		if v != want[i] {
			t.Errorf("OneHot[%d] = %v; want %v", i, v, want[i])
		}
	}
}

func TestNewTensorsCopiesViews(t *testing.T) {
	base := tensor.New(tensor.WithShape(3, 4), tensor.WithBacking([]float64{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
	}))
	v, err := base.Slice(nil, tensor.S(1, 3))
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	view := v.(*tensor.Dense)
	target := tensor.New(tensor.WithShape(3, 1), tensor.WithBacking([]float64{0, 1, 2}))

	ds, err := NewTensors(view, target)
	if err != nil {
		t.Fatalf("NewTensors: %v", err)
	}
	x, _, err := ds.Batch([]int{2})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	want := []float64{9, 10}
	for i, got := range x.Data().([]float64) {
		if got != want[i] {
			t.Errorf("Batch([2]) x = %v; want %v", x.Data(), want)
			break
		}
	}
}

func TestOneHotTargets(t *testing.T) {
	data := tensor.New(tensor.WithShape(3, 2), tensor.WithBacking([]float64{1, 2, 3, 4, 5, 6}))
	labels := tensor.New(tensor.WithShape(3, 1), tensor.WithBacking([]float64{2, 0, 1}))
	ds, err := NewTensors(data, labels)
	if err != nil {
		t.Fatalf("NewTensors: %v", err)
	}
	encoded, err := ds.OneHotTargets()
	if err != nil {
		t.Fatalf("OneHotTargets: %v", err)
	}
	if got := encoded.TargetShape(); got[0] != 3 || got[1] != 3 {
		t.Fatalf("TargetShape = %v; want (3, 3)", got)
	}
	_, y, err := encoded.Batch([]int{0, 1, 2})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	want := []float64{0, 0, 1, 1, 0, 0, 0, 1, 0}
	for i, v := range y.Data().([]float64) {
		if v != want[i] {
			t.Errorf("target[%d] = %v; want %v", i, v, want[i])
		}
	}

	bad, err := NewTensors(data, tensor.New(tensor.WithShape(3, 1), tensor.WithBacking([]float64{0, 1.5, 1})))
	if err != nil {
		t.Fatalf("NewTensors: %v", err)
	}
	if _, err := bad.OneHotTargets(); !errors.Is(err, ErrLabels) {
		t.Errorf("OneHotTargets with a fractional label error = %v; want ErrLabels", err)
	}
}
