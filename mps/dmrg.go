package mps

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"

	"github.com/fumin/dipolar"
)

// SweepParams are the parameters of one sweep.
type SweepParams struct {
	// ChiMax is the maximum bond dimension.
	ChiMax int
	// MixerAmplitude is the strength of the density matrix perturbation, zero disabling it.
	MixerAmplitude float64
	// SVDMin discards Schmidt values below it.
	SVDMin float64
	// LanczosMin and LanczosMax bound the number of Krylov vectors per update.
	LanczosMin int
	LanczosMax int
}

// SweepStats summarize a sweep.
type SweepStats struct {
	// Energy is the lowest eigenvalue of the last update.
	Energy float64
	// TruncationError is the largest discarded weight of the sweep.
	TruncationError float64
	// MaxBond is the largest bond dimension after the sweep.
	MaxBond int
	// Updates is the number of two-site updates.
	Updates int
}

// Engine performs two-site DMRG sweeps.
// See Section 6.3 Iterative ground state search, Ulrich Schollwock.
type Engine struct {
	psi *MPS
	w   *MPO
	// fs[i] is the L expression of bond i when i <= center, and the R expression otherwise.
	fs []env
	// allowed[i] are the charges of bond i that connect to both ends of the chain.
	allowed []map[dipolar.Charge]bool
	rng     *rand.Rand
	energy  float64
}

// NewEngine returns an engine optimizing a copy of psi for the operator w.
// The seed drives the random mixer.
func NewEngine(psi *MPS, w *MPO, seed uint64) (*Engine, error) {
	if psi.L() != w.L() {
		return nil, errors.Errorf("%d sites %d operator sites", psi.L(), w.L())
	}
	if psi.L() < 2 {
		return nil, errors.Errorf("two-site updates need at least two sites, got %d", psi.L())
	}
	for i, d := range psi.dims() {
		if w.dims[i] != d {
			return nil, errors.Errorf("site %d dimension %d operator dimension %d", i, d, w.dims[i])
		}
	}

	e := &Engine{psi: psi.Copy(), w: w, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	if err := e.psi.moveCenter(0); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := e.psi.Normalize(); err != nil {
		return nil, errors.Wrap(err, "")
	}

	n := e.psi.L()
	e.fs = make([]env, n+1)
	e.fs[0] = trivialEnv(w.bonds[0], 0)
	e.fs[n] = trivialEnv(w.bonds[n], 0)
	for i := n - 1; i >= 1; i-- {
		e.fs[i] = rExpression(e.fs[i+1], e.psi.tensors[i], w.w[i], w.bonds[i])
	}
	e.energy = contract(e.psi, w)
	e.allowed = reachable(e.psi.phys, e.psi.Charge())
	return e, nil
}

// reachable returns for every bond the charges that are sums of the physical charges to the left, and that leave total minus them for the sites to the right.
func reachable(phys [][]dipolar.Charge, total dipolar.Charge) []map[dipolar.Charge]bool {
	n := len(phys)
	left := make([]map[dipolar.Charge]bool, n+1)
	left[0] = map[dipolar.Charge]bool{{}: true}
	for i, ps := range phys {
		left[i+1] = make(map[dipolar.Charge]bool)
		for q := range left[i] {
			for _, p := range ps {
				left[i+1][q.Add(p)] = true
			}
		}
	}
	right := map[dipolar.Charge]bool{total: true}
	allowed := make([]map[dipolar.Charge]bool, n+1)
	for i := n; i >= 0; i-- {
		allowed[i] = make(map[dipolar.Charge]bool)
		for q := range right {
			if left[i][q] {
				allowed[i][q] = true
			}
		}
		if i == 0 {
			break
		}
		next := make(map[dipolar.Charge]bool)
		for q := range right {
			for _, p := range phys[i-1] {
				next[q.Sub(p)] = true
			}
		}
		right = next
	}
	return allowed
}

// State returns a copy of the current state.
func (e *Engine) State() *MPS { return e.psi.Copy() }

// Energy returns the energy of the last update.
func (e *Engine) Energy() float64 { return e.energy }

// Entropy returns the entanglement entropy of every bond of the current state.
func (e *Engine) Entropy() ([]float64, error) {
	s, err := e.psi.EntanglementEntropy()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

// Sweep optimizes every pair of neighboring sites from left to right and back.
// The orthogonality center starts and ends at the first site.
func (e *Engine) Sweep(p SweepParams) (SweepStats, error) {
	if p.ChiMax < 1 {
		return SweepStats{}, errors.Errorf("chi %d", p.ChiMax)
	}
	if e.psi.center != 0 {
		if err := e.psi.moveCenter(0); err != nil {
			return SweepStats{}, errors.Wrap(err, "")
		}
	}
	tr := truncation{chiMax: p.ChiMax, svdMin: p.SVDMin, noise: p.MixerAmplitude, rng: e.rng}
	lopt := NewLanczosOptions().MinIterations(p.LanczosMin).MaxIterations(p.LanczosMax)

	var stats SweepStats
	n := e.psi.L()
	for i := range n - 2 {
		if err := e.update(i, true, tr, lopt, &stats); err != nil {
			return SweepStats{}, errors.Wrap(err, fmt.Sprintf("right sweep site %d", i))
		}
	}
	for i := n - 2; i >= 0; i-- {
		if err := e.update(i, false, tr, lopt, &stats); err != nil {
			return SweepStats{}, errors.Wrap(err, fmt.Sprintf("left sweep site %d", i))
		}
	}

	stats.Energy = e.energy
	for _, d := range e.psi.BondDims() {
		stats.MaxBond = max(stats.MaxBond, d)
	}
	return stats, nil
}

// update optimizes sites i and i+1, and moves the orthogonality center to i+1 when moving right, or to i otherwise.
func (e *Engine) update(i int, right bool, tr truncation, lopt LanczosOptions, stats *SweepStats) error {
	psi := e.psi
	a, b := psi.tensors[i], psi.tensors[i+1]
	dl, d1, d2, dr := a.Shape[0], a.Shape[1], b.Shape[1], b.Shape[2]

	// theta is of shape {dl, d1, d2, dr}.
	theta := make([]float64, dl*d1*d2*dr)
	gemm(blas.NoTrans, blas.NoTrans, dl*d1, d2*dr, a.Shape[2], 1, a.Data, b.Data, 0, theta)

	left, rightEnv := e.fs[i], e.fs[i+2]
	w1, w2 := e.w.w[i], e.w.w[i+1]
	wMid := e.w.bonds[i+1]
	h := func(y, x []float64) {
		matvec(y, x, left, rightEnv, w1, w2, wMid, dl, d1, d2, dr)
	}
	energy, theta, err := lanczos(h, theta, lopt)
	if err != nil {
		return errors.Wrap(err, "")
	}
	e.energy = energy
	stats.Updates++

	rowQ := make([]dipolar.Charge, 0, dl*d1)
	for l := range dl {
		for s := range d1 {
			rowQ = append(rowQ, psi.bonds[i][l].Add(psi.phys[i][s]))
		}
	}
	colQ := make([]dipolar.Charge, 0, d2*dr)
	for s := range d2 {
		for r := range dr {
			colQ = append(colQ, psi.bonds[i+2][r].Sub(psi.phys[i+1][s]))
		}
	}

	tr.allowed = e.allowed[i+1]
	if right {
		bs, err := truncatedBasis(theta, dl*d1, d2*dr, rowQ, colQ, tr)
		if err != nil {
			return errors.Wrap(err, "")
		}
		// c = u^T theta is of shape {k, d2*dr}.
		c := make([]float64, bs.k*d2*dr)
		gemm(blas.Trans, blas.NoTrans, bs.k, d2*dr, dl*d1, 1, bs.u, theta, 0, c)
		psi.tensors[i] = Tensor{Shape: [3]int{dl, d1, bs.k}, Data: bs.u}
		psi.tensors[i+1] = Tensor{Shape: [3]int{bs.k, d2, dr}, Data: c}
		psi.bonds[i+1] = bs.q
		psi.center = i + 1
		stats.TruncationError = max(stats.TruncationError, bs.truncErr)
		e.fs[i+1] = lExpression(e.fs[i], psi.tensors[i], e.w.w[i], e.w.bonds[i+1])
	} else {
		bs, err := truncatedBasis(transpose(theta, dl*d1, d2*dr), d2*dr, dl*d1, colQ, rowQ, tr)
		if err != nil {
			return errors.Wrap(err, "")
		}
		// c = theta v is of shape {dl*d1, k}.
		c := make([]float64, dl*d1*bs.k)
		gemm(blas.NoTrans, blas.NoTrans, dl*d1, bs.k, d2*dr, 1, theta, bs.u, 0, c)
		psi.tensors[i] = Tensor{Shape: [3]int{dl, d1, bs.k}, Data: c}
		psi.tensors[i+1] = Tensor{Shape: [3]int{bs.k, d2, dr}, Data: transpose(bs.u, d2*dr, bs.k)}
		psi.bonds[i+1] = bs.q
		psi.center = i
		stats.TruncationError = max(stats.TruncationError, bs.truncErr)
		e.fs[i+1] = rExpression(e.fs[i+2], psi.tensors[i+1], e.w.w[i+1], e.w.bonds[i+1])
	}
	if err := psi.Normalize(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// matvec computes y = H x for the two-site wavefunction x of shape {dl, d1, d2, dr}.
// See Equation 210, Section 6.3 Iterative ground state search, Ulrich Schollwock.
func matvec(y, x []float64, left, right env, w1, w2 []mpoEntry, wMid, dl, d1, d2, dr int) {
	size := dl * d1 * d2 * dr
	// t1[b] = left[b] @ x is of shape {a', s1, s2, r}.
	t1 := make([][]float64, left.w)
	// t2[b] accumulates op1 on s1 and is of shape {a', s1', s2, r}.
	t2 := make([][]float64, wMid)
	for _, e := range w1 {
		if t1[e.l] == nil {
			t1[e.l] = make([]float64, size)
			gemm(blas.NoTrans, blas.NoTrans, dl, d1*d2*dr, dl, 1, left.block(e.l), x, 0, t1[e.l])
		}
		if t2[e.r] == nil {
			t2[e.r] = make([]float64, size)
		}
		applyOp(t2[e.r], t1[e.l], e.op, dl, d1, d2*dr)
	}

	// t3[b] accumulates op2 on s2 and is of shape {a', s1', s2', r}.
	t3 := make([][]float64, right.w)
	for _, e := range w2 {
		if t2[e.l] == nil {
			continue
		}
		if t3[e.r] == nil {
			t3[e.r] = make([]float64, size)
		}
		applyOp(t3[e.r], t2[e.l], e.op, dl*d1, d2, dr)
	}

	for b, t := range t3 {
		if t == nil {
			continue
		}
		// y(a', s1', s2', r') += t(a', s1', s2', r) right[b](r', r).
		gemm(blas.NoTrans, blas.Trans, dl*d1*d2, dr, dr, 1, t, right.block(b), 1, y)
	}
}
