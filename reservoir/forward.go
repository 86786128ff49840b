package reservoir

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// StackOutput is what one stack reports for a batch. Both tensors are
// owned by the network and are overwritten by the next Forward.
type StackOutput struct {
	// States is batch × (steps - transients) × width, or nil when every
	// step is a transient.
	States *tensor.Dense
	// Last is batch × width at the final timestep, whatever the number of
	// transients.
	Last *tensor.Dense
}

// Output is the forward result of a batch. NonLinear is nil for
// memory-only networks.
type Output struct {
	Memory    StackOutput
	NonLinear *StackOutput
}

// Features returns the stack the readout is trained on.
func (o *Output) Features() StackOutput {
	if o.NonLinear != nil {
		return *o.NonLinear
	}
	return o.Memory
}

// Forward runs a batch × steps [× inputs] tensor through every layer.
// Rank-2 inputs are single-channel sequences.
func (n *Network) Forward(x *tensor.Dense) (*Output, error) {
	x, err := n.widen(x)
	if err != nil {
		return nil, err
	}
	shape := x.Shape()
	n.resetState(shape[0], shape[1])

	if err := runStack(n.memory, n.state.memory, n.state.memoryIn, x, nil); err != nil {
		return nil, err
	}
	out := &Output{
		Memory: n.collect(n.state.memory, n.state.memoryOut, n.cfg.ConcatenateMemory),
	}
	if n.nonLinear == nil {
		return out, nil
	}

	memoryStates := n.state.memory[len(n.state.memory)-1]
	if err := runStack(n.nonLinear, n.state.nonLinear, n.state.nonLinearIn, x, memoryStates); err != nil {
		return nil, err
	}
	nl := n.collect(n.state.nonLinear, n.state.nonLinearOut, n.cfg.ConcatenateNonLinear)
	out.NonLinear = &nl
	return out, nil
}

func (n *Network) widen(x *tensor.Dense) (*tensor.Dense, error) {
	if x.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("%w: dtype %v", ErrInputShape, x.Dtype())
	}
	if x.IsView() {
		x = x.Materialize().(*tensor.Dense)
	}
	switch x.Dims() {
	case 2:
		shape := x.Shape()
		x = x.ShallowClone()
		if err := x.Reshape(shape[0], shape[1], 1); err != nil {
			return nil, err
		}
	case 3:
	default:
		return nil, fmt.Errorf("%w: rank %d", ErrInputShape, x.Dims())
	}
	if shape := x.Shape(); shape[0] == 0 || shape[1] == 0 || shape[2] != n.cfg.InputUnits {
		return nil, fmt.Errorf("%w: got %v, want (batch, steps, %d)", ErrInputShape, shape, n.cfg.InputUnits)
	}
	return x, nil
}

// runStack drives layers in depth order over every timestep. Each layer
// reads the previous layer's state at the same timestep; the first layer
// reads x. Layers with a side input read side at the same timestep.
func runStack(layers []*Layer, states []*tensor.Dense, scratch []*mat.Dense, x, side *tensor.Dense) error {
	prev := x
	for i, l := range layers {
		shape := states[i].Shape()
		batch, steps := shape[0], shape[1]
		for t := 0; t < steps; t++ {
			var in mat.Matrix = timestep(prev, t)
			if l.ConcatInput {
				in = concatInto(scratch[i], in, timestep(x, t))
			}
			var s mat.Matrix
			if l.SideSize > 0 {
				s = timestep(side, t)
			}
			h, err := l.cell.Step(in, s)
			if err != nil {
				return fmt.Errorf("%s layer %d, step %d: %w", l.Stack, l.Depth, t, err)
			}
			if r, c := h.Dims(); r != batch || c != l.Units {
				return fmt.Errorf("%w: %s layer %d returned %dx%d, want %dx%d", ErrCellOutput, l.Stack, l.Depth, r, c, batch, l.Units)
			}
			timestep(states[i], t).Copy(h)
		}
		prev = states[i]
	}
	return nil
}

// timestep views slice t of a batch × steps × width tensor as a
// batch × width matrix sharing its backing array.
func timestep(d *tensor.Dense, t int) *mat.Dense {
	shape := d.Shape()
	steps, width := shape[1], shape[2]
	var m mat.Dense
	m.SetRawMatrix(blas64.General{
		Rows:   shape[0],
		Cols:   width,
		Stride: steps * width,
		Data:   d.Data().([]float64)[t*width:],
	})
	return &m
}

func concatInto(dst *mat.Dense, a, b mat.Matrix) *mat.Dense {
	r, ca := a.Dims()
	_, cb := b.Dims()
	dst.Slice(0, r, 0, ca).(*mat.Dense).Copy(a)
	dst.Slice(0, r, ca, ca+cb).(*mat.Dense).Copy(b)
	return dst
}

// collect copies a stack's trajectories into out: all layers side by side on
// the hidden axis when concatenate is set, otherwise the deepest one. The
// transient steps are left out of the trajectory; the last state is always
// the final step.
func (n *Network) collect(states []*tensor.Dense, out stackBuffers, concatenate bool) StackOutput {
	layers := states
	if !concatenate {
		layers = states[len(states)-1:]
	}
	shape := states[0].Shape()
	batch, steps := shape[0], shape[1]
	transients := n.cfg.InitialTransients
	kept := steps - transients
	width := out.last.Shape()[1]

	last := out.last.Data().([]float64)
	var trajectory []float64
	if out.states != nil {
		trajectory = out.states.Data().([]float64)
	}
	col := 0
	for _, s := range layers {
		units := s.Shape()[2]
		src := s.Data().([]float64)
		for b := 0; b < batch; b++ {
			for t := transients; t < steps; t++ {
				row := src[(b*steps+t)*units : (b*steps+t+1)*units]
				off := (b*kept+t-transients)*width + col
				copy(trajectory[off:off+units], row)
			}
			row := src[(b*steps+steps-1)*units : (b*steps+steps)*units]
			copy(last[b*width+col:b*width+col+units], row)
		}
		col += units
	}
	return StackOutput{States: out.states, Last: out.last}
}
