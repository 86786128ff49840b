package cell

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Activation is the element-wise non-linearity applied by a NonLinear cell
// to its pre-activation.
type Activation func(float64) float64

// LeakySlope is the negative-side slope behind the "leaky_relu" name.
const LeakySlope = 0.01

var (
	Tanh     Activation = math.Tanh
	Identity Activation = func(x float64) float64 { return x }
	ReLU     Activation = func(x float64) float64 { return math.Max(x, 0) }
	Sigmoid  Activation = func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
)

// LeakyReLU keeps positive inputs and multiplies the rest by slope.
func LeakyReLU(slope float64) Activation {
	return func(x float64) float64 {
		if x > 0 {
			return x
		}
		return slope * x
	}
}

// activations maps non_linearity names to functions; "" selects tanh.
var activations = map[string]Activation{
	"":           Tanh,
	"tanh":       Tanh,
	"relu":       ReLU,
	"leaky_relu": LeakyReLU(LeakySlope),
	"sigmoid":    Sigmoid,
	"identity":   Identity,
	"linear":     Identity,
}

func ParseActivation(name string) (Activation, error) {
	if a, ok := activations[name]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownActivation, name, activationNames())
}

func activationNames() string {
	var names []string
	for name := range activations {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
