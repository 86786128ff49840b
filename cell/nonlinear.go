package cell

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type NonLinearParams struct {
	InputSize, Units, SideSize int

	Scaling      float64
	InputScaling float64
	SideScaling  float64

	Connectivity      int
	InputConnectivity int
	SideConnectivity  int

	SpectralRadius float64
	LeakyRate      float64

	Bias        bool
	BiasScaling float64

	Distribution     Distribution
	FixedInputKernel bool
	// Signs applies to the input and side kernels.
	Signs      Signs
	Activation Activation

	// EffectiveRescaling applies the spectral radius to the leaky
	// transition instead of the raw recurrent kernel.
	EffectiveRescaling bool
	Circular           bool

	// Euler switches to the antisymmetric update
	// h += Epsilon * f(Win x + Wm m + (W - Wᵀ - Gamma I) h + b).
	Euler   bool
	Epsilon float64
	Gamma   float64
}

// NonLinear is a leaky echo state reservoir, optionally conditioned on a
// side input such as the state of a memory reservoir.
type NonLinear struct {
	inputKernel *mat.Dense // units × inputs
	sideKernel  *mat.Dense // units × side, nil without side input
	recurrent   *mat.Dense // units × units
	bias        []float64

	activation Activation
	leak       float64
	euler      bool
	epsilon    float64

	state *mat.Dense
	next  *mat.Dense
	tmp   *mat.Dense
}

func NewNonLinear(p NonLinearParams, rng *rand.Rand) (*NonLinear, error) {
	if p.InputSize <= 0 || p.Units <= 0 || p.SideSize < 0 {
		return nil, fmt.Errorf("%w: non-linear cell %d(+%d) -> %d", ErrInvalidParams, p.InputSize, p.SideSize, p.Units)
	}
	if !p.Euler && (p.LeakyRate <= 0 || p.LeakyRate > 1) {
		return nil, fmt.Errorf("%w: leaky rate %v", ErrInvalidParams, p.LeakyRate)
	}
	if p.Activation == nil {
		p.Activation = Tanh
	}
	c := &NonLinear{
		inputKernel: sparseKernel(rng, p.Units, p.InputSize, p.InputConnectivity, p.InputScaling, p.Distribution, p.FixedInputKernel, p.Signs),
		activation:  p.Activation,
		leak:        p.LeakyRate,
		euler:       p.Euler,
		epsilon:     p.Epsilon,
	}
	if p.SideSize > 0 {
		c.sideKernel = sparseKernel(rng, p.Units, p.SideSize, p.SideConnectivity, p.SideScaling, p.Distribution, p.FixedInputKernel, p.Signs)
	}

	var w *mat.Dense
	if p.Circular {
		w = ringKernel(p.Units, p.Scaling)
	} else {
		w = sparseKernel(rng, p.Units, p.Units, p.Connectivity, p.Scaling, p.Distribution, false, RandomSigns)
	}
	switch {
	case p.Euler:
		anti := mat.NewDense(p.Units, p.Units, nil)
		anti.Sub(w, w.T())
		for i := 0; i < p.Units; i++ {
			anti.Set(i, i, anti.At(i, i)-p.Gamma)
		}
		w = anti
	case p.EffectiveRescaling:
		if err := effectiveRescale(w, p.SpectralRadius, p.LeakyRate); err != nil {
			return nil, err
		}
	default:
		if err := rescale(w, p.SpectralRadius); err != nil {
			return nil, err
		}
	}
	c.recurrent = w

	if p.Bias {
		c.bias = make([]float64, p.Units)
		for i := range c.bias {
			c.bias[i] = Uniform.sample(rng, p.BiasScaling)
		}
	}
	return c, nil
}

func (c *NonLinear) InputSize() int {
	_, n := c.inputKernel.Dims()
	return n
}

func (c *NonLinear) Units() int {
	r, _ := c.recurrent.Dims()
	return r
}

func (c *NonLinear) SideSize() int {
	if c.sideKernel == nil {
		return 0
	}
	_, n := c.sideKernel.Dims()
	return n
}

func (c *NonLinear) Reset(batch int) {
	units := c.Units()
	c.state = resetState(c.state, batch, units)
	c.next = resetState(c.next, batch, units)
	c.tmp = resetState(c.tmp, batch, units)
}

// Step advances the batch by one timestep. side must be nil exactly when
// the cell was built without a side input. The returned matrix is owned by
// the cell and is overwritten by the next Step.
func (c *NonLinear) Step(x, side mat.Matrix) (*mat.Dense, error) {
	if err := checkStep(c.state, x, c.InputSize()); err != nil {
		return nil, err
	}
	pre := c.next
	pre.Mul(x, c.inputKernel.T())
	switch {
	case c.sideKernel != nil && side == nil:
		return nil, fmt.Errorf("%w: missing side input", ErrSideInput)
	case c.sideKernel == nil && side != nil:
		return nil, fmt.Errorf("%w: cell takes no side input", ErrSideInput)
	case side != nil:
		batch, _ := c.state.Dims()
		if r, n := side.Dims(); r != batch || n != c.SideSize() {
			return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrSideInput, r, n, batch, c.SideSize())
		}
		c.tmp.Mul(side, c.sideKernel.T())
		pre.Add(pre, c.tmp)
	}
	c.tmp.Mul(c.state, c.recurrent.T())
	pre.Add(pre, c.tmp)
	pre.Apply(func(_, j int, v float64) float64 {
		if c.bias != nil {
			v += c.bias[j]
		}
		return c.activation(v)
	}, pre)

	if c.euler {
		pre.Scale(c.epsilon, pre)
		pre.Add(pre, c.state)
	} else {
		pre.Scale(c.leak, pre)
		c.tmp.Scale(1-c.leak, c.state)
		pre.Add(pre, c.tmp)
	}
	c.state, c.next = c.next, c.state
	return c.state, nil
}

// Kernels exposes the fixed kernels; side is nil without a side input.
func (c *NonLinear) Kernels() (recurrent, input, side mat.Matrix) {
	if c.sideKernel == nil {
		return c.recurrent, c.inputKernel, nil
	}
	return c.recurrent, c.inputKernel, c.sideKernel
}
