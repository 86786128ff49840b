package reservoir

import (
	"fmt"
	"math/rand"

	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/mat"

	"github.com/StefanoZanoni/deepRMN/cell"
)

// Cell is one reservoir layer's recurrent unit.
type Cell interface {
	// Reset zeroes the state for a batch of independent sequences.
	Reset(batch int)
	// Step consumes one timestep of batch × input values (and an optional
	// batch × side matrix) and returns the new batch × units state. The
	// result may be overwritten by the next Step.
	Step(x, side mat.Matrix) (*mat.Dense, error)
}

type StackKind int

const (
	MemoryStack StackKind = iota
	NonLinearStack
)

func (k StackKind) String() string {
	if k == MemoryStack {
		return "memory"
	}
	return "non-linear"
}

// LayerSpec is the sizing and wiring of one layer, as handed to a
// CellFactory.
type LayerSpec struct {
	Stack StackKind
	Depth int

	InputSize int
	Units     int
	// SideSize is the width of the memory state fed to the first
	// non-linear layer; zero everywhere else.
	SideSize int

	InputScaling          float64
	InputConnectivity     int
	RecurrentConnectivity int
	SideConnectivity      int
}

type CellFactory interface {
	NewCell(spec LayerSpec) (Cell, error)
}

type CellFactoryFunc func(spec LayerSpec) (Cell, error)

func (f CellFactoryFunc) NewCell(spec LayerSpec) (Cell, error) {
	return f(spec)
}

// Layer is a constructed layer. ConcatInput marks input-to-all wiring: the
// raw network input is appended to the previous layer's output.
type Layer struct {
	LayerSpec
	ConcatInput bool

	cell Cell
}

// stackWidths splits total units over layers. Without concatenation every
// layer is total wide; with it each layer gets total/layers units and the
// last one also takes the remainder.
func stackWidths(total, layers int, concatenate bool) []int {
	widths := make([]int, layers)
	if !concatenate {
		for i := range widths {
			widths[i] = total
		}
		return widths
	}
	per := essentials.MaxInt(1, total/layers)
	for i := range widths {
		widths[i] = per
	}
	widths[layers-1] += total % layers
	return widths
}

func splitConnectivity(connectivity, layers int, concatenate bool) int {
	if !concatenate {
		return connectivity
	}
	return essentials.MaxInt(1, connectivity/layers)
}

func buildStacks(cfg Config, cells CellFactory) (memory, nonLinear []*Layer, err error) {
	widths := stackWidths(cfg.TotalMemoryUnits, cfg.MemoryLayers, cfg.ConcatenateMemory)
	inputConn := splitConnectivity(cfg.InputMemoryConnectivity, cfg.MemoryLayers, cfg.ConcatenateMemory)
	interConn := splitConnectivity(cfg.InterMemoryConnectivity, cfg.MemoryLayers, cfg.ConcatenateMemory)
	for depth, units := range widths {
		spec := LayerSpec{
			Stack:             MemoryStack,
			Depth:             depth,
			InputSize:         cfg.InputUnits,
			Units:             units,
			InputScaling:      cfg.InputMemoryScaling,
			InputConnectivity: inputConn,
		}
		concat := false
		if depth > 0 {
			spec.InputSize = widths[depth-1]
			spec.InputScaling = cfg.InterMemoryScaling
			spec.InputConnectivity = interConn
			if cfg.InputToAllMemory {
				spec.InputSize += cfg.InputUnits
				concat = true
			}
		}
		layer, err := newLayer(spec, concat, cells)
		if err != nil {
			return nil, nil, err
		}
		memory = append(memory, layer)
	}
	if cfg.JustMemory {
		return memory, nil, nil
	}

	lastMemory := widths[len(widths)-1]
	widths = stackWidths(cfg.TotalNonLinearUnits, cfg.NonLinearLayers, cfg.ConcatenateNonLinear)
	inputConn = splitConnectivity(cfg.InputNonLinearConnectivity, cfg.NonLinearLayers, cfg.ConcatenateNonLinear)
	interConn = splitConnectivity(cfg.InterNonLinearConnectivity, cfg.NonLinearLayers, cfg.ConcatenateNonLinear)
	recurrentConn := splitConnectivity(cfg.NonLinearConnectivity, cfg.NonLinearLayers, cfg.ConcatenateNonLinear)
	sideConn := splitConnectivity(cfg.MemoryNonLinearConnectivity, cfg.NonLinearLayers, cfg.ConcatenateNonLinear)
	for depth, units := range widths {
		spec := LayerSpec{
			Stack:                 NonLinearStack,
			Depth:                 depth,
			InputSize:             cfg.InputUnits,
			Units:                 units,
			SideSize:              lastMemory,
			InputScaling:          cfg.InputNonLinearScaling,
			InputConnectivity:     inputConn,
			RecurrentConnectivity: recurrentConn,
			SideConnectivity:      sideConn,
		}
		concat := false
		if depth > 0 {
			spec.InputSize = widths[depth-1]
			spec.SideSize = 0
			spec.SideConnectivity = 0
			spec.InputScaling = cfg.InterNonLinearScaling
			spec.InputConnectivity = interConn
			if cfg.InputToAllNonLinear {
				spec.InputSize += cfg.InputUnits
				concat = true
			}
		}
		layer, err := newLayer(spec, concat, cells)
		if err != nil {
			return nil, nil, err
		}
		nonLinear = append(nonLinear, layer)
	}
	return memory, nonLinear, nil
}

func newLayer(spec LayerSpec, concat bool, cells CellFactory) (*Layer, error) {
	c, err := cells.NewCell(spec)
	if err != nil {
		return nil, fmt.Errorf("%s layer %d: %w", spec.Stack, spec.Depth, err)
	}
	return &Layer{LayerSpec: spec, ConcatInput: concat, cell: c}, nil
}

// randomCells builds cell.Memory and cell.NonLinear layers from the config
// hyperparameters, drawing every kernel from one seeded source.
type randomCells struct {
	cfg          Config
	rng          *rand.Rand
	distribution cell.Distribution
	activation   cell.Activation
	signs        cell.Signs
}

func newRandomCells(cfg Config) (*randomCells, error) {
	dist, err := cell.ParseDistribution(cfg.Distribution)
	if err != nil {
		return nil, err
	}
	act, err := cell.ParseActivation(cfg.NonLinearity)
	if err != nil {
		return nil, err
	}
	signs, err := cell.ParseSigns(cfg.SignsFrom)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = networkSeed(cfg)
	}
	return &randomCells{
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(seed)),
		distribution: dist,
		activation:   act,
		signs:        signs,
	}, nil
}

// networkSeed derives a reproducible seed from the layout.
func networkSeed(cfg Config) int64 {
	seed := cfg.InputUnits
	seed = seed + cfg.TotalMemoryUnits*cfg.MemoryLayers
	seed = seed + cfg.TotalNonLinearUnits*cfg.NonLinearLayers
	return int64(seed)
}

func (r *randomCells) NewCell(spec LayerSpec) (Cell, error) {
	if spec.Stack == MemoryStack {
		return cell.NewMemory(cell.MemoryParams{
			InputSize:         spec.InputSize,
			Units:             spec.Units,
			Scaling:           r.cfg.MemoryScaling,
			InputScaling:      spec.InputScaling,
			InputConnectivity: spec.InputConnectivity,
			Distribution:      r.distribution,
			FixedInputKernel:  r.cfg.FixedInputKernel,
			Signs:             r.signs,
			Legendre:          r.cfg.Legendre,
			LegendreInput:     r.cfg.LegendreInput,
			Theta:             r.cfg.Theta,
		}, r.rng)
	}
	biasScaling := spec.InputScaling
	if r.cfg.BiasScaling != nil {
		biasScaling = *r.cfg.BiasScaling
	}
	return cell.NewNonLinear(cell.NonLinearParams{
		InputSize:          spec.InputSize,
		Units:              spec.Units,
		SideSize:           spec.SideSize,
		Scaling:            r.cfg.NonLinearScaling,
		InputScaling:       spec.InputScaling,
		SideScaling:        r.cfg.MemoryNonLinearScaling,
		Connectivity:       spec.RecurrentConnectivity,
		InputConnectivity:  spec.InputConnectivity,
		SideConnectivity:   spec.SideConnectivity,
		SpectralRadius:     r.cfg.SpectralRadius,
		LeakyRate:          r.cfg.LeakyRate,
		Bias:               r.cfg.Bias,
		BiasScaling:        biasScaling,
		Distribution:       r.distribution,
		FixedInputKernel:   r.cfg.FixedInputKernel,
		Signs:              r.signs,
		Activation:         r.activation,
		EffectiveRescaling: r.cfg.EffectiveRescaling,
		Circular:           r.cfg.CircularNonLinearKernel,
		Euler:              r.cfg.Euler,
		Epsilon:            r.cfg.Epsilon,
		Gamma:              r.cfg.Gamma,
	}, r.rng)
}
