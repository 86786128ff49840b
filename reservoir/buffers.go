package reservoir

import (
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// stateBuffers is the per-batch scratch owned by one network: a
// batch × steps × units trajectory per layer, the concatenation scratch of
// input-to-all layers and the collected output of each stack.
type stateBuffers struct {
	batch, steps int

	memory    []*tensor.Dense
	nonLinear []*tensor.Dense

	memoryIn    []*mat.Dense
	nonLinearIn []*mat.Dense

	memoryOut    stackBuffers
	nonLinearOut stackBuffers
}

// stackBuffers receive a stack's kept trajectory and last state. states is
// nil when every step is a transient.
type stackBuffers struct {
	states *tensor.Dense
	last   *tensor.Dense
}

// resetState zeroes every cell for a new batch and makes sure the buffers
// match batch × steps, reusing the previous ones when the shape is the same.
func (n *Network) resetState(batch, steps int) {
	for _, l := range n.memory {
		l.cell.Reset(batch)
	}
	for _, l := range n.nonLinear {
		l.cell.Reset(batch)
	}
	if n.state != nil && n.state.batch == batch && n.state.steps == steps {
		return
	}
	s := &stateBuffers{batch: batch, steps: steps}
	s.memory, s.memoryIn = allocate(n.memory, batch, steps)
	s.nonLinear, s.nonLinearIn = allocate(n.nonLinear, batch, steps)
	kept := steps - n.cfg.InitialTransients
	s.memoryOut = allocateOutput(n.memory, n.cfg.ConcatenateMemory, batch, kept)
	if n.nonLinear != nil {
		s.nonLinearOut = allocateOutput(n.nonLinear, n.cfg.ConcatenateNonLinear, batch, kept)
	}
	n.state = s
	n.log.WithFields(logrus.Fields{
		"batch": batch,
		"steps": steps,
	}).Debug("allocated state buffers")
}

func allocate(layers []*Layer, batch, steps int) ([]*tensor.Dense, []*mat.Dense) {
	states := make([]*tensor.Dense, len(layers))
	scratch := make([]*mat.Dense, len(layers))
	for i, l := range layers {
		states[i] = tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(batch, steps, l.Units))
		if l.ConcatInput {
			scratch[i] = mat.NewDense(batch, l.InputSize, nil)
		}
	}
	return states, scratch
}

func allocateOutput(layers []*Layer, concatenate bool, batch, kept int) stackBuffers {
	width := outputWidth(layers, concatenate)
	out := stackBuffers{last: tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(batch, width))}
	if kept > 0 {
		out.states = tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(batch, kept, width))
	}
	return out
}

// outputWidth is the hidden width a stack reports: every layer side by side
// when concatenating, otherwise the deepest layer.
func outputWidth(layers []*Layer, concatenate bool) int {
	if !concatenate {
		return layers[len(layers)-1].Units
	}
	width := 0
	for _, l := range layers {
		width += l.Units
	}
	return width
}
