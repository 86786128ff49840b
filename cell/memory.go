package cell

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type MemoryParams struct {
	InputSize, Units  int
	Scaling           float64
	InputScaling      float64
	InputConnectivity int
	Distribution      Distribution
	FixedInputKernel  bool
	Signs             Signs
	// Legendre replaces the ring with a discretised Legendre delay line
	// spanning Theta steps.
	Legendre bool
	// LegendreInput feeds a scalar projection of the input through the
	// Legendre input column instead of a sparse random input kernel.
	LegendreInput bool
	Theta         float64
}

// Memory is a linear reservoir: h(t) = W h(t-1) + Win x(t).
type Memory struct {
	inputKernel  *mat.Dense // units × inputs
	memoryKernel *mat.Dense // units × units

	state *mat.Dense
	next  *mat.Dense
	drive *mat.Dense
}

func NewMemory(p MemoryParams, rng *rand.Rand) (*Memory, error) {
	if p.InputSize <= 0 || p.Units <= 0 {
		return nil, fmt.Errorf("%w: memory cell %d -> %d", ErrInvalidParams, p.InputSize, p.Units)
	}
	m := &Memory{}
	if (p.Legendre || p.LegendreInput) && p.Theta <= 0 {
		return nil, fmt.Errorf("%w: theta %v", ErrInvalidParams, p.Theta)
	}
	var transition, column *mat.Dense
	if p.Legendre || p.LegendreInput {
		transition, column = legendreKernels(p.Units, p.Theta)
	}
	if p.Legendre {
		m.memoryKernel = transition
	} else {
		m.memoryKernel = ringKernel(p.Units, p.Scaling)
	}
	if p.LegendreInput {
		// Project the input to a scalar before it enters the delay line.
		projection := sparseKernel(rng, 1, p.InputSize, p.InputConnectivity, p.InputScaling, p.Distribution, p.FixedInputKernel, p.Signs)
		m.inputKernel = mat.NewDense(p.Units, p.InputSize, nil)
		m.inputKernel.Mul(column, projection)
	} else {
		m.inputKernel = sparseKernel(rng, p.Units, p.InputSize, p.InputConnectivity, p.InputScaling, p.Distribution, p.FixedInputKernel, p.Signs)
	}
	return m, nil
}

func (m *Memory) InputSize() int {
	_, c := m.inputKernel.Dims()
	return c
}

func (m *Memory) Units() int {
	r, _ := m.memoryKernel.Dims()
	return r
}

func (m *Memory) SideSize() int { return 0 }

// Reset zeroes the state for a batch of independent sequences.
func (m *Memory) Reset(batch int) {
	units := m.Units()
	m.state = resetState(m.state, batch, units)
	m.next = resetState(m.next, batch, units)
	m.drive = resetState(m.drive, batch, units)
}

// Step advances every sequence of the batch by one timestep. The returned
// matrix is owned by the cell and is overwritten by the next Step.
func (m *Memory) Step(x, side mat.Matrix) (*mat.Dense, error) {
	if err := checkStep(m.state, x, m.InputSize()); err != nil {
		return nil, err
	}
	if side != nil {
		return nil, fmt.Errorf("%w: memory cells take no side input", ErrSideInput)
	}
	m.next.Mul(m.state, m.memoryKernel.T())
	m.drive.Mul(x, m.inputKernel.T())
	m.next.Add(m.next, m.drive)
	m.state, m.next = m.next, m.state
	return m.state, nil
}

// Kernels exposes the fixed recurrent and input kernels.
func (m *Memory) Kernels() (recurrent, input mat.Matrix) {
	return m.memoryKernel, m.inputKernel
}
