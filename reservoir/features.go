package reservoir

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/StefanoZanoni/deepRMN/dataset"
)

// layout is the dataset-level sizing resolved before any batch runs.
type layout struct {
	samples int
	steps   int
	// kept is steps minus the transients.
	kept int
	// perSample is 1 for last-state features and kept for trajectories.
	perSample int
	width     int

	targetRank int
	targetCols int
}

func (n *Network) plan(l *dataset.Loader, opts Options, withTargets bool) (layout, error) {
	data, target, err := dataset.Shapes(l.Dataset())
	if err != nil {
		return layout{}, err
	}
	p := layout{
		samples:   l.Dataset().Len(),
		steps:     data[1],
		width:     n.cfg.FeatureWidth(),
		perSample: 1,
	}
	p.kept = p.steps - n.cfg.InitialTransients
	if opts.Trajectory {
		// Last states never depend on the transients; trajectories need
		// at least one kept step.
		if p.kept <= 0 {
			return layout{}, fmt.Errorf("%w: %d steps with %d transients", ErrTransients, p.steps, n.cfg.InitialTransients)
		}
		p.perSample = p.kept
	}
	if !withTargets {
		return p, nil
	}

	p.targetRank = len(target)
	switch p.targetRank {
	case 2:
		p.targetCols = target[1]
	case 3:
		// Sequence targets must already be aligned with the kept steps.
		if !opts.Trajectory {
			return layout{}, fmt.Errorf("%w: sequence targets %v need trajectory features", ErrTargetShape, target)
		}
		if target[1] != p.kept {
			return layout{}, fmt.Errorf("%w: %d target steps, %d kept steps", ErrTargetShape, target[1], p.kept)
		}
		p.targetCols = target[2]
	default:
		return layout{}, fmt.Errorf("%w: rank %d", ErrTargetShape, p.targetRank)
	}
	return p, nil
}

// assemble runs every batch of l through the network and stacks the
// features (and targets when withTargets is set) in dataset order.
func (n *Network) assemble(l *dataset.Loader, opts Options, withTargets bool) (x, y *mat.Dense, err error) {
	p, err := n.plan(l, opts, withTargets)
	if err != nil {
		return nil, nil, err
	}
	x = mat.NewDense(p.samples*p.perSample, p.width, nil)
	if withTargets {
		y = mat.NewDense(p.samples*p.perSample, p.targetCols, nil)
	}

	sample := 0
	for b := 0; b < l.Len(); b++ {
		bx, by, err := l.Batch(b)
		if err != nil {
			return nil, nil, err
		}
		if steps := bx.Shape()[1]; steps != p.steps {
			return nil, nil, fmt.Errorf("%w: batch %d has %d steps, dataset %d", ErrInputShape, b, steps, p.steps)
		}
		out, err := n.Forward(bx)
		if err != nil {
			return nil, nil, err
		}
		feats := out.Features()
		src := feats.Last
		if opts.Trajectory {
			src = feats.States
		}
		shape := src.Shape()
		batch := shape[0]
		if width := shape[len(shape)-1]; width != p.width {
			return nil, nil, fmt.Errorf("%w: forward width %d, configured %d", ErrFeatureWidth, width, p.width)
		}
		if sample+batch > p.samples {
			return nil, nil, fmt.Errorf("%w: more than %d samples", ErrSamples, p.samples)
		}
		copyRows(x, sample*p.perSample, src.Data().([]float64), p.width)
		if withTargets {
			if err := copyTargets(y, by, sample, batch, p); err != nil {
				return nil, nil, err
			}
		}
		sample += batch

		n.log.WithFields(logrus.Fields{
			"batch":   b,
			"samples": batch,
		}).Debug("batch forwarded")
	}
	if sample != p.samples {
		return nil, nil, fmt.Errorf("%w: got %d, dataset reports %d", ErrSamples, sample, p.samples)
	}
	return x, y, nil
}

// copyTargets writes the targets of one batch. Per-sample targets are
// repeated on each of the sample's rows; sequence targets are flattened in
// step with the trajectory rows.
func copyTargets(y *mat.Dense, by *tensor.Dense, sample, batch int, p layout) error {
	shape := by.Shape()
	if len(shape) != p.targetRank || shape[0] != batch || shape[len(shape)-1] != p.targetCols {
		return fmt.Errorf("%w: batch targets %v", ErrTargetShape, shape)
	}
	data := by.Data().([]float64)
	if p.targetRank == 3 {
		if shape[1] != p.kept {
			return fmt.Errorf("%w: batch targets %v", ErrTargetShape, shape)
		}
		copyRows(y, sample*p.kept, data, p.targetCols)
		return nil
	}
	for i := 0; i < batch; i++ {
		row := data[i*p.targetCols : (i+1)*p.targetCols]
		for k := 0; k < p.perSample; k++ {
			y.SetRow((sample+i)*p.perSample+k, row)
		}
	}
	return nil
}

func copyRows(dst *mat.Dense, row0 int, src []float64, cols int) {
	for i := 0; i*cols < len(src); i++ {
		dst.SetRow(row0+i, src[i*cols:(i+1)*cols])
	}
}
