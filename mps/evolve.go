package mps

import (
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dipolar"
)

// RandomUnitaryEvolution applies layers of random charge conserving two-site gates, which scrambles a product state while keeping its charge.
// Each step sweeps the gates from left to right and back, truncating bonds to chiMax.
func (psi *MPS) RandomUnitaryEvolution(steps, chiMax int, rng *rand.Rand) error {
	n := psi.L()
	if n < 2 {
		return nil
	}
	if err := psi.moveCenter(0); err != nil {
		return errors.Wrap(err, "")
	}
	tr := truncation{chiMax: chiMax, svdMin: canonicalSVDMin}
	for step := range steps {
		for i := range n - 1 {
			if err := psi.applyRandomGate(i, true, tr, rng); err != nil {
				return errors.Wrapf(err, "step %d site %d", step, i)
			}
		}
		for i := n - 2; i >= 0; i-- {
			if err := psi.applyRandomGate(i, false, tr, rng); err != nil {
				return errors.Wrapf(err, "step %d site %d", step, i)
			}
		}
	}
	return nil
}

// applyRandomGate applies a random gate to sites i and i+1, one of which must be the orthogonality center.
func (psi *MPS) applyRandomGate(i int, right bool, tr truncation, rng *rand.Rand) error {
	a, b := psi.tensors[i], psi.tensors[i+1]
	dl, d1, d2, dr := a.Shape[0], a.Shape[1], b.Shape[1], b.Shape[2]
	theta := make([]float64, dl*d1*d2*dr)
	gemm(blas.NoTrans, blas.NoTrans, dl*d1, d2*dr, a.Shape[2], 1, a.Data, b.Data, 0, theta)

	pairQ := make([]dipolar.Charge, 0, d1*d2)
	for s1 := range d1 {
		for s2 := range d2 {
			pairQ = append(pairQ, psi.phys[i][s1].Add(psi.phys[i+1][s2]))
		}
	}
	gate := randomOrthogonal(pairQ, rng)

	// theta'(l, t, r) = sum_s gate(t, s) theta(l, s, r).
	next := make([]float64, len(theta))
	for l := range dl {
		x := theta[l*d1*d2*dr : (l+1)*d1*d2*dr]
		y := next[l*d1*d2*dr : (l+1)*d1*d2*dr]
		gemm(blas.NoTrans, blas.NoTrans, d1*d2, dr, d1*d2, 1, gate, x, 0, y)
	}

	// Put the gated wavefunction back as two sites before splitting it.
	psi.tensors[i] = Tensor{Shape: [3]int{dl, d1, d2 * dr}, Data: next}
	psi.tensors[i+1] = Tensor{Shape: [3]int{d2 * dr, d2, dr}, Data: make([]float64, d2*dr*d2*dr)}
	for s := range d2 {
		for r := range dr {
			psi.tensors[i+1].Data[((s*dr+r)*d2+s)*dr+r] = 1
		}
	}
	mid := make([]dipolar.Charge, 0, d2*dr)
	for s := range d2 {
		for r := range dr {
			mid = append(mid, psi.bonds[i+2][r].Sub(psi.phys[i+1][s]))
		}
	}
	psi.bonds[i+1] = mid
	psi.center = i

	if right {
		if _, err := psi.leftNormalize(i, tr); err != nil {
			return errors.Wrap(err, "")
		}
	} else {
		if _, err := psi.leftNormalize(i, truncation{svdMin: canonicalSVDMin}); err != nil {
			return errors.Wrap(err, "")
		}
		if _, err := psi.rightNormalize(i+1, tr); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if err := psi.Normalize(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// randomOrthogonal returns a random orthogonal matrix that only mixes states of equal charge.
func randomOrthogonal(qs []dipolar.Charge, rng *rand.Rand) []float64 {
	n := len(qs)
	u := make([]float64, n*n)
	groups := groupByCharge(qs)
	charges := slices.SortedFunc(maps.Keys(groups), dipolar.CompareCharge)
	for _, q := range charges {
		idx := groups[q]
		k := len(idx)
		g := mat.NewDense(k, k, nil)
		for x := range k {
			for y := range k {
				g.Set(x, y, rng.NormFloat64())
			}
		}
		var qr mat.QR
		qr.Factorize(g)
		var o mat.Dense
		qr.QTo(&o)
		for x, i := range idx {
			for y, j := range idx {
				u[i*n+j] = o.At(x, y)
			}
		}
	}
	return u
}
