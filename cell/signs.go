package cell

import (
	"errors"
	"fmt"
	"math/big"
)

var ErrUnknownSigns = errors.New("cell: unknown sign source")

// Signs selects where the signs of input weights come from. RandomSigns
// draws them with the weights; the other sources follow a fixed aperiodic
// sequence so that kernels differ only through their magnitudes.
type Signs string

const (
	RandomSigns   Signs = "random"
	PiSigns       Signs = "pi"
	LogisticSigns Signs = "logistic"
)

func ParseSigns(name string) (Signs, error) {
	switch Signs(name) {
	case RandomSigns, "":
		return RandomSigns, nil
	case PiSigns, LogisticSigns:
		return Signs(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSigns, name)
}

// sequence returns n signs, or nil for RandomSigns.
func (s Signs) sequence(n int) []float64 {
	out := make([]float64, n)
	switch s {
	case PiSigns:
		// Digits 0-4 of pi are negative, 5-9 positive.
		for i, d := range piDigits(n) {
			out[i] = 1
			if d < 5 {
				out[i] = -1
			}
		}
	case LogisticSigns:
		x := 0.33
		for i := range out {
			x = 4 * x * (1 - x)
			out[i] = 1
			if x < 0.5 {
				out[i] = -1
			}
		}
	default:
		return nil
	}
	return out
}

// piDigits streams the first n decimal digits of pi (3, 1, 4, 1, 5, ...)
// with Gibbons' unbounded spigot.
func piDigits(n int) []int {
	q, r, t := big.NewInt(1), big.NewInt(0), big.NewInt(1)
	k, d, l := big.NewInt(1), big.NewInt(3), big.NewInt(3)
	var a, b, c big.Int
	digits := make([]int, 0, n)
	for len(digits) < n {
		// 4q + r - t < d t
		a.Lsh(q, 2).Add(&a, r).Sub(&a, t)
		b.Mul(d, t)
		if a.Cmp(&b) < 0 {
			digits = append(digits, int(d.Int64()))
			// d' = 10(3q + r)/t - 10d, r' = 10(r - d t), q' = 10q
			a.Mul(q, big.NewInt(3)).Add(&a, r).Mul(&a, big.NewInt(10)).Quo(&a, t)
			c.Mul(d, big.NewInt(10))
			r.Sub(r, &b).Mul(r, big.NewInt(10))
			d.Sub(&a, &c)
			q.Mul(q, big.NewInt(10))
			continue
		}
		// r' = (2q + r) l, d' = (q(7k + 2) + r l) / (t l), q' = qk, t' = tl
		a.Mul(k, big.NewInt(7)).Add(&a, big.NewInt(2)).Mul(&a, q)
		c.Mul(r, l)
		a.Add(&a, &c)
		b.Mul(t, l)
		d.Quo(&a, &b)
		r.Lsh(q, 1).Mul(r, l).Add(r, &c)
		q.Mul(q, k)
		t.Set(&b)
		k.Add(k, big.NewInt(1))
		l.Add(l, big.NewInt(2))
	}
	return digits
}
