// Package cell holds the reservoir primitives driven by the deep network:
// linear memory cells and leaky non-linear cells. Their kernels are drawn
// once at construction and never trained.
package cell

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnknownActivation   = errors.New("cell: unknown non-linearity")
	ErrUnknownDistribution = errors.New("cell: unknown distribution")
	ErrInvalidParams       = errors.New("cell: invalid parameters")
	ErrInputSize           = errors.New("cell: input shape mismatch")
	ErrSideInput           = errors.New("cell: side input mismatch")
	ErrNotReset            = errors.New("cell: state used before Reset")
	ErrEigen               = errors.New("cell: eigen decomposition failed")
)

// Distribution selects how non-zero kernel weights are drawn.
type Distribution string

const (
	Uniform Distribution = "uniform"
	Normal  Distribution = "normal"
)

func ParseDistribution(name string) (Distribution, error) {
	switch Distribution(name) {
	case Uniform, "":
		return Uniform, nil
	case Normal:
		return Normal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDistribution, name)
}

// sample draws from [-scale, scale] (uniform) or N(0, scale²) (normal).
func (d Distribution) sample(rng *rand.Rand, scale float64) float64 {
	if d == Normal {
		return rng.NormFloat64() * scale
	}
	return (2*rng.Float64() - 1) * scale
}

// sparseKernel returns a rows × cols kernel in which every row has
// connectivity non-zero weights placed at random columns. With fixed set,
// every weight has magnitude scale and a random sign. Signs other than
// RandomSigns override the sign of each weight in draw order.
func sparseKernel(rng *rand.Rand, rows, cols, connectivity int, scale float64, dist Distribution, fixed bool, signs Signs) *mat.Dense {
	k := mat.NewDense(rows, cols, nil)
	if connectivity > cols {
		connectivity = cols
	}
	if connectivity < 1 {
		connectivity = 1
	}
	seq := signs.sequence(rows * connectivity)
	next := 0
	for i := 0; i < rows; i++ {
		for _, j := range rng.Perm(cols)[:connectivity] {
			v := dist.sample(rng, scale)
			if fixed {
				v = scale
				if rng.Intn(2) == 0 {
					v = -scale
				}
			}
			if seq != nil {
				v = math.Abs(v) * seq[next]
				next++
			}
			k.Set(i, j, v)
		}
	}
	return k
}

// ringKernel is the cyclic shift h_i <- h_{i-1} scaled by scale.
func ringKernel(n int, scale float64) *mat.Dense {
	k := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		k.Set(i, (i+n-1)%n, scale)
	}
	return k
}

// SpectralRadius returns the largest eigenvalue modulus of the square matrix m.
func SpectralRadius(m mat.Matrix) (float64, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenNone); !ok {
		return 0, ErrEigen
	}
	var rho float64
	for _, v := range eig.Values(nil) {
		if a := cmplx.Abs(v); a > rho {
			rho = a
		}
	}
	return rho, nil
}

func rescale(w *mat.Dense, target float64) error {
	rho, err := SpectralRadius(w)
	if err != nil {
		return err
	}
	if rho == 0 {
		return nil
	}
	w.Scale(target/rho, w)
	return nil
}

// effectiveRescale scales w so that the leaky transition (1-leak)I + leak*w
// has spectral radius target.
func effectiveRescale(w *mat.Dense, target, leak float64) error {
	n, _ := w.Dims()
	eff := mat.NewDense(n, n, nil)
	eff.Scale(leak, w)
	for i := 0; i < n; i++ {
		eff.Set(i, i, eff.At(i, i)+1-leak)
	}
	if err := rescale(eff, target); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		eff.Set(i, i, eff.At(i, i)-(1-leak))
	}
	w.Scale(1/leak, eff)
	return nil
}

// legendreKernels discretises the Legendre delay system of order n over a
// window theta with a zero-order hold of one step. It returns the n × n
// transition and the n × 1 input column.
func legendreKernels(n int, theta float64) (*mat.Dense, *mat.Dense) {
	aug := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		r := float64(2*i+1) / theta
		for j := 0; j < n; j++ {
			if i < j {
				aug.Set(i, j, -r)
			} else if (i-j+1)%2 == 0 {
				aug.Set(i, j, r)
			} else {
				aug.Set(i, j, -r)
			}
		}
		if i%2 == 0 {
			aug.Set(i, n, r)
		} else {
			aug.Set(i, n, -r)
		}
	}
	var e mat.Dense
	e.Exp(aug)
	transition := mat.DenseCopyOf(e.Slice(0, n, 0, n))
	input := mat.DenseCopyOf(e.Slice(0, n, n, n+1))
	return transition, input
}

// checkStep validates a batch input against the expected widths.
func checkStep(state *mat.Dense, x mat.Matrix, inputs int) error {
	if state == nil {
		return ErrNotReset
	}
	batch, _ := state.Dims()
	r, c := x.Dims()
	if r != batch || c != inputs {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrInputSize, r, c, batch, inputs)
	}
	return nil
}

// resetState returns a zeroed batch × units matrix, reusing prev when it
// already has that shape.
func resetState(prev *mat.Dense, batch, units int) *mat.Dense {
	if prev != nil {
		if r, c := prev.Dims(); r == batch && c == units {
			prev.Zero()
			return prev
		}
	}
	return mat.NewDense(batch, units, nil)
}
