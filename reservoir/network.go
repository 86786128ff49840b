// Package reservoir builds deep reservoir memory networks: a stack of linear
// memory reservoirs, optionally followed by a stack of leaky non-linear
// reservoirs, whose states feed a trained linear readout.
package reservoir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/StefanoZanoni/deepRMN/dataset"
	"github.com/StefanoZanoni/deepRMN/readout"
)

var (
	ErrNotTrained      = errors.New("reservoir: network has not been trained")
	ErrNotStandardized = errors.New("reservoir: no standardization was fitted")
	ErrFeatureWidth    = errors.New("reservoir: feature width mismatch")
	ErrInputShape      = errors.New("reservoir: bad input shape")
	ErrTransients      = errors.New("reservoir: sequences not longer than the initial transients")
	ErrTargetShape     = errors.New("reservoir: bad target shape")
	ErrSamples         = errors.New("reservoir: batches disagree with the dataset length")
	ErrCellOutput      = errors.New("reservoir: cell returned a state of the wrong shape")
)

// Options select how features are taken from the network.
type Options struct {
	// Standardize fits (on Fit) or applies (on Score and Predict) a
	// zero-mean, unit-variance transform to the features.
	Standardize bool
	// Trajectory uses every kept timestep as a row instead of only the
	// last state of each sequence.
	Trajectory bool
}

type trainedState struct {
	readout readout.Model
	// scaler is nil when the readout was fitted on raw features.
	scaler *readout.Standardizer
}

type Network struct {
	cfg       Config
	memory    []*Layer
	nonLinear []*Layer

	state   *stateBuffers
	trained *trainedState

	log *logrus.Logger
}

type settings struct {
	log   *logrus.Logger
	cells CellFactory
}

type Option func(*settings)

func WithLogger(log *logrus.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithCellFactory replaces the random cells built from the config.
func WithCellFactory(f CellFactory) Option {
	return func(s *settings) { s.cells = f }
}

func New(cfg Config, opts ...Option) (*Network, error) {
	if cfg.Alphas == nil {
		cfg.Alphas = readout.DefaultAlphas()
	} else {
		alphas := make([]float64, len(cfg.Alphas))
		copy(alphas, cfg.Alphas)
		cfg.Alphas = alphas
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := settings{}
	for _, o := range opts {
		o(&s)
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	if s.cells == nil {
		cells, err := newRandomCells(cfg)
		if err != nil {
			return nil, err
		}
		s.cells = cells
	}

	memory, nonLinear, err := buildStacks(cfg, s.cells)
	if err != nil {
		return nil, err
	}
	n := &Network{cfg: cfg, memory: memory, nonLinear: nonLinear, log: s.log}
	n.log.WithFields(logrus.Fields{
		"task":              cfg.Task,
		"memory_layers":     len(memory),
		"non_linear_layers": len(nonLinear),
		"feature_width":     cfg.FeatureWidth(),
	}).Info("reservoir network built")
	return n, nil
}

// Fit trains a fresh readout on the features of every sample in l. Any
// previous training is discarded first, so on error the network is
// untrained.
func (n *Network) Fit(l *dataset.Loader, opts Options) error {
	n.trained = nil
	x, y, err := n.assemble(l, opts, true)
	if err != nil {
		return err
	}
	var scaler *readout.Standardizer
	if opts.Standardize {
		if scaler, err = readout.FitStandardizer(x); err != nil {
			return err
		}
		if x, err = scaler.Transform(x); err != nil {
			return err
		}
	}
	model, err := readout.New(n.cfg.Task, n.cfg.Alphas)
	if err != nil {
		return err
	}
	if err := model.Fit(x, y); err != nil {
		return err
	}
	n.trained = &trainedState{readout: model, scaler: scaler}

	rows, _ := x.Dims()
	fields := logrus.Fields{
		"rows":        rows,
		"standardize": opts.Standardize,
		"trajectory":  opts.Trajectory,
	}
	if a, ok := model.(interface{ Alpha() float64 }); ok {
		fields["alpha"] = a.Alpha()
	}
	n.log.WithFields(fields).Info("readout fitted")
	return nil
}

// Score predicts every sample in l and compares the predictions with its
// targets using fn.
func (n *Network) Score(l *dataset.Loader, fn readout.ScoreFunc, opts Options) (float64, error) {
	t, err := n.fitted(opts)
	if err != nil {
		return 0, err
	}
	x, y, err := n.assemble(l, opts, true)
	if err != nil {
		return 0, err
	}
	pred, err := t.predict(x, opts)
	if err != nil {
		return 0, err
	}
	score := fn(pred, y)
	rows, _ := pred.Dims()
	n.log.WithFields(logrus.Fields{
		"rows":  rows,
		"score": score,
	}).Info("scored")
	return score, nil
}

func (n *Network) Predict(l *dataset.Loader, opts Options) (*mat.Dense, error) {
	t, err := n.fitted(opts)
	if err != nil {
		return nil, err
	}
	x, _, err := n.assemble(l, opts, false)
	if err != nil {
		return nil, err
	}
	pred, err := t.predict(x, opts)
	if err != nil {
		return nil, err
	}
	rows, _ := pred.Dims()
	n.log.WithField("rows", rows).Debug("predicted")
	return pred, nil
}

func (n *Network) fitted(opts Options) (*trainedState, error) {
	switch {
	case n.trained == nil && opts.Standardize:
		return nil, fmt.Errorf("%w: %w", ErrNotTrained, ErrNotStandardized)
	case n.trained == nil:
		return nil, ErrNotTrained
	case opts.Standardize && n.trained.scaler == nil:
		return nil, ErrNotStandardized
	}
	return n.trained, nil
}

func (t *trainedState) predict(x *mat.Dense, opts Options) (*mat.Dense, error) {
	if opts.Standardize {
		var err error
		if x, err = t.scaler.Transform(x); err != nil {
			return nil, err
		}
	}
	return t.readout.Predict(x)
}

// Trained reports whether the last Fit succeeded.
func (n *Network) Trained() bool {
	return n.trained != nil
}

func (n *Network) Config() Config {
	return n.cfg
}

func (n *Network) MemoryLayers() []*Layer {
	return n.memory
}

// NonLinearLayers is nil for memory-only networks.
func (n *Network) NonLinearLayers() []*Layer {
	return n.nonLinear
}

func (n *Network) FeatureWidth() int {
	return n.cfg.FeatureWidth()
}

func (l *Layer) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s layer %d: %d -> %d units", l.Stack, l.Depth, l.InputSize, l.Units))
	if l.SideSize > 0 {
		sb.WriteString(fmt.Sprintf(", side %d", l.SideSize))
	}
	if l.ConcatInput {
		sb.WriteString(", input-to-all")
	}
	return sb.String()
}

func (n *Network) String() string {
	var sb strings.Builder

	for _, l := range n.memory {
		sb.WriteString(l.String() + "\n")
	}
	for _, l := range n.nonLinear {
		sb.WriteString(l.String() + "\n")
	}
	sb.WriteString(fmt.Sprintf("Features: %d, trained: %v\n", n.FeatureWidth(), n.Trained()))

	return sb.String()
}
