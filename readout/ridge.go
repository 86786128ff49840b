package readout

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Ridge is multi-output ridge regression with an intercept. Fit picks the
// alpha with the lowest leave-one-out squared error; ties keep the earlier
// candidate.
type Ridge struct {
	alphas []float64

	alpha     float64
	coef      *mat.Dense // features × outputs
	intercept []float64
}

func NewRidge(alphas []float64) (*Ridge, error) {
	if err := ValidateAlphas(alphas); err != nil {
		return nil, err
	}
	return &Ridge{alphas: append([]float64(nil), alphas...)}, nil
}

// Alpha returns the regularization strength chosen by the last Fit.
func (r *Ridge) Alpha() float64 {
	return r.alpha
}

func (r *Ridge) Fit(x, y mat.Matrix) error {
	n, p := x.Dims()
	ny, k := y.Dims()
	if n == 0 {
		return ErrEmpty
	}
	if n != ny {
		return fmt.Errorf("%w: %d vs %d", ErrRowMismatch, n, ny)
	}
	xMean, xc := center(x)
	yMean, yc := center(y)

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return ErrSVD
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	var uty mat.Dense
	uty.Mul(u.T(), yc)

	best := math.Inf(1)
	for _, a := range r.alphas {
		if e := looError(&u, s, &uty, yc, a); e < best {
			best = e
			r.alpha = a
		}
	}

	shrunk := mat.DenseCopyOf(&uty)
	for i, sv := range s {
		row := shrunk.RawRowView(i)
		f := sv / (sv*sv + r.alpha)
		for j := range row {
			row[j] *= f
		}
	}
	coef := mat.NewDense(p, k, nil)
	coef.Mul(&v, shrunk)
	r.coef = coef

	r.intercept = make([]float64, k)
	for j := 0; j < k; j++ {
		b := yMean[j]
		for i, m := range xMean {
			b -= m * coef.At(i, j)
		}
		r.intercept[j] = b
	}
	return nil
}

func (r *Ridge) Predict(x mat.Matrix) (*mat.Dense, error) {
	if r.coef == nil {
		return nil, ErrNotFitted
	}
	n, p := x.Dims()
	if want, _ := r.coef.Dims(); p != want {
		return nil, fmt.Errorf("%w: %d vs %d", ErrColMismatch, p, want)
	}
	_, k := r.coef.Dims()
	out := mat.NewDense(n, k, nil)
	out.Mul(x, r.coef)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += r.intercept[j]
		}
	}
	return out, nil
}

// looError is the mean squared leave-one-out residual of the centered
// problem for one alpha, from the thin SVD xc = U diag(s) Vᵀ.
func looError(u *mat.Dense, s []float64, uty *mat.Dense, yc *mat.Dense, alpha float64) float64 {
	n, rank := u.Dims()
	_, k := yc.Dims()
	shrink := make([]float64, rank)
	for j, sv := range s {
		shrink[j] = sv * sv / (sv*sv + alpha)
	}

	scaled := mat.DenseCopyOf(uty)
	for j := 0; j < rank; j++ {
		row := scaled.RawRowView(j)
		for c := range row {
			row[c] *= shrink[j]
		}
	}
	var fitted mat.Dense
	fitted.Mul(u, scaled)

	var total float64
	for i := 0; i < n; i++ {
		// The intercept adds 1/n to every leverage.
		h := 1 / float64(n)
		for j := 0; j < rank; j++ {
			uij := u.At(i, j)
			h += uij * uij * shrink[j]
		}
		den := 1 - h
		if math.Abs(den) < 1e-12 {
			den = 1e-12
		}
		for c := 0; c < k; c++ {
			res := (yc.At(i, c) - fitted.At(i, c)) / den
			total += res * res
		}
	}
	return total / float64(n*k)
}

// center returns the column means of m and a centered copy.
func center(m mat.Matrix) ([]float64, *mat.Dense) {
	r, c := m.Dims()
	out := mat.DenseCopyOf(m)
	means := columnMeans(out)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for j := 0; j < c; j++ {
			row[j] -= means[j]
		}
	}
	return means, out
}
