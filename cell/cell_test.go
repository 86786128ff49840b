package cell

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestSparseKernelConnectivity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	k := sparseKernel(rng, 6, 10, 3, 1, Uniform, false, RandomSigns)
	for i := 0; i < 6; i++ {
		nonZero := 0
		for j := 0; j < 10; j++ {
			if k.At(i, j) != 0 {
				nonZero++
			}
		}
		if nonZero != 3 {
			t.Errorf("row %d has %d non-zero weights; want 3", i, nonZero)
		}
	}
}

func TestSparseKernelFixed(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	k := sparseKernel(rng, 4, 4, 4, 0.5, Normal, true, RandomSigns)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if v := math.Abs(k.At(i, j)); v != 0.5 {
				t.Errorf("fixed kernel weight (%d,%d) = %v; want magnitude 0.5", i, j, k.At(i, j))
			}
		}
	}
}

func TestMemoryRingShiftsState(t *testing.T) {
	m, err := NewMemory(MemoryParams{InputSize: 1, Units: 4, Scaling: 1, InputScaling: 1, InputConnectivity: 1}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	// Replace the random input kernel with a unit impulse into unit 0.
	m.inputKernel = mat.NewDense(4, 1, []float64{1, 0, 0, 0})
	m.Reset(1)

	inputs := []float64{1, 0, 0}
	var h *mat.Dense
	for _, v := range inputs {
		h, err = m.Step(mat.NewDense(1, 1, []float64{v}), nil)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	want := []float64{0, 0, 1, 0}
	for j, w := range want {
		if got := h.At(0, j); !floatEquals(got, w, 1e-12) {
			t.Errorf("state[%d] = %v; want %v", j, got, w)
		}
	}
}

func TestMemoryResetZeroesState(t *testing.T) {
	m, err := NewMemory(MemoryParams{InputSize: 2, Units: 3, Scaling: 1, InputScaling: 1, InputConnectivity: 2}, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	m.Reset(2)
	if _, err := m.Step(mat.NewDense(2, 2, []float64{1, 1, 1, 1}), nil); err != nil {
		t.Fatalf("Step: %v", err)
	}
	m.Reset(2)
	h, err := m.Step(mat.NewDense(2, 2, nil), nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if norm := mat.Norm(h, 2); norm != 0 {
		t.Errorf("state after Reset and zero input has norm %v; want 0", norm)
	}
}

func TestMemoryStepErrors(t *testing.T) {
	m, err := NewMemory(MemoryParams{InputSize: 2, Units: 3, Scaling: 1, InputScaling: 1, InputConnectivity: 1}, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if _, err := m.Step(mat.NewDense(1, 2, nil), nil); !errors.Is(err, ErrNotReset) {
		t.Errorf("Step before Reset error = %v; want ErrNotReset", err)
	}
	m.Reset(1)
	if _, err := m.Step(mat.NewDense(1, 3, nil), nil); !errors.Is(err, ErrInputSize) {
		t.Errorf("Step with wrong width error = %v; want ErrInputSize", err)
	}
	if _, err := m.Step(mat.NewDense(1, 2, nil), mat.NewDense(1, 1, nil)); !errors.Is(err, ErrSideInput) {
		t.Errorf("Step with side input error = %v; want ErrSideInput", err)
	}
}

func TestLegendreMemoryIsStable(t *testing.T) {
	m, err := NewMemory(MemoryParams{InputSize: 1, Units: 6, InputScaling: 1, InputConnectivity: 1, Legendre: true, Theta: 10}, rand.New(rand.NewSource(6)))
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	recurrent, _ := m.Kernels()
	rho, err := SpectralRadius(recurrent)
	if err != nil {
		t.Fatalf("SpectralRadius: %v", err)
	}
	if rho >= 1 {
		t.Errorf("Legendre transition spectral radius = %v; want < 1", rho)
	}
}

func TestNonLinearSpectralRadius(t *testing.T) {
	tests := []struct {
		description string
		params      NonLinearParams
	}{
		{
			description: "sparse kernel",
			params:      NonLinearParams{InputSize: 2, Units: 20, Scaling: 1, InputScaling: 1, Connectivity: 5, InputConnectivity: 1, SpectralRadius: 0.9, LeakyRate: 1},
		},
		{
			description: "circular kernel",
			params:      NonLinearParams{InputSize: 2, Units: 8, Scaling: 1, InputScaling: 1, InputConnectivity: 1, SpectralRadius: 0.7, LeakyRate: 0.5, Circular: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			c, err := NewNonLinear(tt.params, rand.New(rand.NewSource(7)))
			if err != nil {
				t.Fatalf("NewNonLinear: %v", err)
			}
			recurrent, _, _ := c.Kernels()
			rho, err := SpectralRadius(recurrent)
			if err != nil {
				t.Fatalf("SpectralRadius: %v", err)
			}
			if !floatEquals(rho, tt.params.SpectralRadius, 1e-6) {
				t.Errorf("spectral radius = %v; want %v", rho, tt.params.SpectralRadius)
			}
		})
	}
}

func TestNonLinearEffectiveRescaling(t *testing.T) {
	p := NonLinearParams{InputSize: 1, Units: 10, Scaling: 1, InputScaling: 1, Connectivity: 4, InputConnectivity: 1, SpectralRadius: 0.95, LeakyRate: 0.3, EffectiveRescaling: true}
	c, err := NewNonLinear(p, rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatalf("NewNonLinear: %v", err)
	}
	recurrent, _, _ := c.Kernels()
	eff := mat.NewDense(10, 10, nil)
	eff.Scale(p.LeakyRate, recurrent)
	for i := 0; i < 10; i++ {
		eff.Set(i, i, eff.At(i, i)+1-p.LeakyRate)
	}
	rho, err := SpectralRadius(eff)
	if err != nil {
		t.Fatalf("SpectralRadius: %v", err)
	}
	if !floatEquals(rho, p.SpectralRadius, 1e-6) {
		t.Errorf("effective spectral radius = %v; want %v", rho, p.SpectralRadius)
	}
}

func TestNonLinearSideInput(t *testing.T) {
	p := NonLinearParams{InputSize: 1, Units: 4, SideSize: 3, Scaling: 1, InputScaling: 1, SideScaling: 1, Connectivity: 2, InputConnectivity: 1, SideConnectivity: 2, SpectralRadius: 0.9, LeakyRate: 0.5, Bias: true, BiasScaling: 0.1}
	c, err := NewNonLinear(p, rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatalf("NewNonLinear: %v", err)
	}
	c.Reset(2)
	x := mat.NewDense(2, 1, []float64{1, -1})
	if _, err := c.Step(x, nil); !errors.Is(err, ErrSideInput) {
		t.Errorf("Step without side input error = %v; want ErrSideInput", err)
	}
	if _, err := c.Step(x, mat.NewDense(2, 2, nil)); !errors.Is(err, ErrSideInput) {
		t.Errorf("Step with narrow side input error = %v; want ErrSideInput", err)
	}
	h, err := c.Step(x, mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	r, n := h.Dims()
	if r != 2 || n != 4 {
		t.Fatalf("state dims = %dx%d; want 2x4", r, n)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < n; j++ {
			// Leaky tanh from a zero state is bounded by the leak rate.
			if v := math.Abs(h.At(i, j)); v > p.LeakyRate {
				t.Errorf("state (%d,%d) = %v; want |v| <= %v", i, j, h.At(i, j), p.LeakyRate)
			}
		}
	}
}

func TestNonLinearEulerUsesAntisymmetricKernel(t *testing.T) {
	p := NonLinearParams{InputSize: 1, Units: 5, Scaling: 1, InputScaling: 1, Connectivity: 3, InputConnectivity: 1, Euler: true, Epsilon: 0.01, Gamma: 0.001}
	c, err := NewNonLinear(p, rand.New(rand.NewSource(10)))
	if err != nil {
		t.Fatalf("NewNonLinear: %v", err)
	}
	recurrent, _, _ := c.Kernels()
	for i := 0; i < 5; i++ {
		if got := recurrent.At(i, i); !floatEquals(got, -p.Gamma, 1e-12) {
			t.Errorf("diagonal %d = %v; want %v", i, got, -p.Gamma)
		}
		for j := i + 1; j < 5; j++ {
			if !floatEquals(recurrent.At(i, j), -recurrent.At(j, i), 1e-12) {
				t.Errorf("kernel not antisymmetric at (%d,%d)", i, j)
			}
		}
	}
}

func TestNewNonLinearRejectsLeakyRate(t *testing.T) {
	p := NonLinearParams{InputSize: 1, Units: 2, LeakyRate: 0}
	if _, err := NewNonLinear(p, rand.New(rand.NewSource(11))); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("NewNonLinear with zero leaky rate error = %v; want ErrInvalidParams", err)
	}
}

func TestNonLinearEulerStep(t *testing.T) {
	p := NonLinearParams{InputSize: 2, Units: 3, Scaling: 1, InputScaling: 1, Connectivity: 2, InputConnectivity: 2, Euler: true, Epsilon: 0.1, Gamma: 0.01}
	c, err := NewNonLinear(p, rand.New(rand.NewSource(12)))
	if err != nil {
		t.Fatalf("NewNonLinear: %v", err)
	}
	recurrent, input, _ := c.Kernels()
	c.Reset(1)

	xs := [][]float64{{1, -0.5}, {0.25, 2}}
	h0 := make([]float64, 3)
	for step, x := range xs {
		want := make([]float64, 3)
		for i := 0; i < 3; i++ {
			var pre float64
			for j := range x {
				pre += input.At(i, j) * x[j]
			}
			for j := range h0 {
				pre += recurrent.At(i, j) * h0[j]
			}
			want[i] = h0[i] + p.Epsilon*math.Tanh(pre)
		}

		h, err := c.Step(mat.NewDense(1, 2, x), nil)
		if err != nil {
			t.Fatalf("Step %d: %v", step, err)
		}
		for i := range want {
			if !floatEquals(h.At(0, i), want[i], 1e-12) {
				t.Errorf("step %d unit %d = %v; want %v", step, i, h.At(0, i), want[i])
			}
		}
		h0 = want
	}
}

func TestPiDigits(t *testing.T) {
	want := []int{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9}
	got := piDigits(len(want))
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("piDigits = %v; want %v", got, want)
		}
	}
}

func TestSignSequences(t *testing.T) {
	tests := []struct {
		signs Signs
		want  []float64
	}{
		{PiSigns, []float64{-1, -1, -1, -1, 1, 1, -1, 1, 1, -1}},
		{LogisticSigns, []float64{1, -1, 1, -1, -1, 1, -1, -1}},
	}
	for _, test := range tests {
		got := test.signs.sequence(len(test.want))
		for i := range test.want {
			if got[i] != test.want[i] {
				t.Errorf("%s signs = %v; want %v", test.signs, got, test.want)
				break
			}
		}
	}
	if RandomSigns.sequence(4) != nil {
		t.Error("random signs should not produce a sequence")
	}
}

func TestSparseKernelSigns(t *testing.T) {
	// One weight per row, so rows follow the draw order.
	random := sparseKernel(rand.New(rand.NewSource(3)), 10, 1, 1, 1, Uniform, false, RandomSigns)
	pi := sparseKernel(rand.New(rand.NewSource(3)), 10, 1, 1, 1, Uniform, false, PiSigns)
	signs := PiSigns.sequence(10)
	for i := 0; i < 10; i++ {
		if !floatEquals(math.Abs(pi.At(i, 0)), math.Abs(random.At(i, 0)), 1e-12) {
			t.Errorf("row %d magnitude = %v; want %v", i, math.Abs(pi.At(i, 0)), math.Abs(random.At(i, 0)))
		}
		if pi.At(i, 0)*signs[i] < 0 {
			t.Errorf("row %d weight %v has the wrong sign; want %v", i, pi.At(i, 0), signs[i])
		}
	}
}

func TestParseSigns(t *testing.T) {
	tests := []struct {
		name string
		want Signs
		err  error
	}{
		{"", RandomSigns, nil},
		{"random", RandomSigns, nil},
		{"pi", PiSigns, nil},
		{"logistic", LogisticSigns, nil},
		{"e", "", ErrUnknownSigns},
	}
	for _, test := range tests {
		got, err := ParseSigns(test.name)
		if !errors.Is(err, test.err) || got != test.want {
			t.Errorf("ParseSigns(%q) = %q, %v; want %q, %v", test.name, got, err, test.want, test.err)
		}
	}
}

func TestLegendreInputKernel(t *testing.T) {
	m, err := NewMemory(MemoryParams{
		InputSize:         3,
		Units:             4,
		Scaling:           1,
		InputScaling:      1,
		InputConnectivity: 3,
		LegendreInput:     true,
		Theta:             5,
	}, rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	recurrent, input := m.Kernels()
	_, column := legendreKernels(4, 5)
	// Every input column is a multiple of the Legendre input column.
	for j := 0; j < 3; j++ {
		ratio := input.At(0, j) / column.At(0, 0)
		for i := 0; i < 4; i++ {
			if !floatEquals(input.At(i, j), ratio*column.At(i, 0), 1e-9) {
				t.Errorf("input kernel (%d,%d) = %v; want %v", i, j, input.At(i, j), ratio*column.At(i, 0))
			}
		}
	}
	// The transition stays a ring without Legendre.
	if recurrent.At(1, 0) != 1 || recurrent.At(0, 3) != 1 {
		t.Errorf("recurrent kernel is not the unit ring: %v", mat.Formatted(recurrent))
	}

	if _, err := NewMemory(MemoryParams{InputSize: 1, Units: 2, LegendreInput: true}, rand.New(rand.NewSource(8))); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("LegendreInput without theta error = %v; want ErrInvalidParams", err)
	}
}
