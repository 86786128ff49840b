package reservoir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/StefanoZanoni/deepRMN/cell"
	"github.com/StefanoZanoni/deepRMN/readout"
)

var (
	ErrInvalidConfig = errors.New("reservoir: invalid configuration")
	ErrInvalidAlphas = readout.ErrInvalidAlphas
)

// Config holds every hyperparameter fixed at construction. Scaling,
// connectivity and distribution fields are consumed by the cell factory.
type Config struct {
	Task                readout.Task `json:"task"`
	InputUnits          int          `json:"input_units"`
	TotalNonLinearUnits int          `json:"total_non_linear_units"`
	TotalMemoryUnits    int          `json:"total_memory_units"`
	NonLinearLayers     int          `json:"number_of_non_linear_layers"`
	MemoryLayers        int          `json:"number_of_memory_layers"`
	InitialTransients   int          `json:"initial_transients"`

	MemoryScaling          float64 `json:"memory_scaling"`
	NonLinearScaling       float64 `json:"non_linear_scaling"`
	InputMemoryScaling     float64 `json:"input_memory_scaling"`
	InputNonLinearScaling  float64 `json:"input_non_linear_scaling"`
	MemoryNonLinearScaling float64 `json:"memory_non_linear_scaling"`
	InterNonLinearScaling  float64 `json:"inter_non_linear_scaling"`
	InterMemoryScaling     float64 `json:"inter_memory_scaling"`
	SpectralRadius         float64 `json:"spectral_radius"`
	LeakyRate              float64 `json:"leaky_rate"`

	InputMemoryConnectivity     int `json:"input_memory_connectivity"`
	InputNonLinearConnectivity  int `json:"input_non_linear_connectivity"`
	NonLinearConnectivity       int `json:"non_linear_connectivity"`
	MemoryNonLinearConnectivity int `json:"memory_non_linear_connectivity"`
	InterNonLinearConnectivity  int `json:"inter_non_linear_connectivity"`
	InterMemoryConnectivity     int `json:"inter_memory_connectivity"`

	Bias bool `json:"bias"`
	// BiasScaling defaults to the layer's input scaling when nil.
	BiasScaling        *float64 `json:"bias_scaling"`
	Distribution       string   `json:"distribution"`
	FixedInputKernel   bool     `json:"fixed_input_kernel"`
	NonLinearity       string   `json:"non_linearity"`
	EffectiveRescaling bool     `json:"effective_rescaling"`

	ConcatenateNonLinear    bool `json:"concatenate_non_linear"`
	ConcatenateMemory       bool `json:"concatenate_memory"`
	CircularNonLinearKernel bool `json:"circular_non_linear_kernel"`

	Euler   bool    `json:"euler"`
	Epsilon float64 `json:"epsilon"`
	Gamma   float64 `json:"gamma"`

	// Alphas are the readout's regularization candidates; nil selects
	// readout.DefaultAlphas.
	Alphas []float64 `json:"alphas"`

	Legendre bool    `json:"legendre"`
	Theta    float64 `json:"theta"`
	// LegendreInput routes a scalar projection of each memory layer's input
	// through the Legendre input column.
	LegendreInput bool `json:"legendre_input"`
	// SignsFrom is "random", "pi" or "logistic"; empty means random.
	SignsFrom string `json:"signs_from"`

	JustMemory          bool `json:"just_memory"`
	InputToAllNonLinear bool `json:"input_to_all_non_linear"`
	InputToAllMemory    bool `json:"input_to_all_memory"`

	// Seed drives kernel initialization; zero derives one from the layout.
	Seed int64 `json:"seed"`
}

func DefaultConfig(task readout.Task, inputUnits, totalNonLinearUnits, totalMemoryUnits int) Config {
	return Config{
		Task:                        task,
		InputUnits:                  inputUnits,
		TotalNonLinearUnits:         totalNonLinearUnits,
		TotalMemoryUnits:            totalMemoryUnits,
		NonLinearLayers:             1,
		MemoryLayers:                1,
		MemoryScaling:               1,
		NonLinearScaling:            1,
		InputMemoryScaling:          1,
		InputNonLinearScaling:       1,
		MemoryNonLinearScaling:      1,
		InterNonLinearScaling:       1,
		InterMemoryScaling:          1,
		SpectralRadius:              0.9,
		LeakyRate:                   0.5,
		InputMemoryConnectivity:     1,
		InputNonLinearConnectivity:  1,
		NonLinearConnectivity:       1,
		MemoryNonLinearConnectivity: 1,
		InterNonLinearConnectivity:  1,
		InterMemoryConnectivity:     1,
		Bias:                        true,
		Distribution:                string(cell.Uniform),
		NonLinearity:                "tanh",
		EffectiveRescaling:          true,
		Epsilon:                     1e-3,
		Gamma:                       1e-3,
		Alphas:                      readout.DefaultAlphas(),
		Theta:                       1,
	}
}

// LoadConfig reads a JSON configuration. Fields absent from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig("", 0, 0, 0)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "alphas" {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidAlphas)
		}
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FeatureWidth is the number of readout features per row.
func (c Config) FeatureWidth() int {
	if c.JustMemory {
		return c.TotalMemoryUnits
	}
	return c.TotalNonLinearUnits
}

func (c Config) Validate() error {
	switch c.Task {
	case readout.Classification, readout.Regression:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, readout.ErrUnknownTask, c.Task)
	}
	if c.Alphas != nil {
		if err := readout.ValidateAlphas(c.Alphas); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if c.InputUnits <= 0 {
		return fmt.Errorf("%w: input_units %d", ErrInvalidConfig, c.InputUnits)
	}
	if c.InitialTransients < 0 {
		return fmt.Errorf("%w: initial_transients %d", ErrInvalidConfig, c.InitialTransients)
	}
	if err := validateStack("memory", c.TotalMemoryUnits, c.MemoryLayers, c.ConcatenateMemory); err != nil {
		return err
	}
	if !c.JustMemory {
		if err := validateStack("non_linear", c.TotalNonLinearUnits, c.NonLinearLayers, c.ConcatenateNonLinear); err != nil {
			return err
		}
	}
	if _, err := cell.ParseDistribution(c.Distribution); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := cell.ParseActivation(c.NonLinearity); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := cell.ParseSigns(c.SignsFrom); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if (c.Legendre || c.LegendreInput) && c.Theta <= 0 {
		return fmt.Errorf("%w: theta %v", ErrInvalidConfig, c.Theta)
	}
	return nil
}

func validateStack(name string, total, layers int, concatenate bool) error {
	if total <= 0 || layers <= 0 {
		return fmt.Errorf("%w: %s stack needs positive units and layers, got %d units over %d layers", ErrInvalidConfig, name, total, layers)
	}
	if concatenate && total < layers {
		return fmt.Errorf("%w: %s stack cannot split %d units over %d layers", ErrInvalidConfig, name, total, layers)
	}
	return nil
}
