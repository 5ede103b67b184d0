package mps

import (
	"gonum.org/v1/gonum/blas"
)

// env is an L or R expression, a stack of w matrices of shape {d, d}.
// Element (b, a', a) couples bond state b of the operator, a' of the bra and a of the ket.
type env struct {
	w, d int
	data []float64
}

func newEnv(w, d int) env {
	return env{w: w, d: d, data: make([]float64, w*d*d)}
}

func (e env) block(b int) []float64 {
	return e.data[b*e.d*e.d : (b+1)*e.d*e.d]
}

// trivialEnv returns the expression of an empty half chain whose operator bond state is b.
func trivialEnv(w, b int) env {
	e := newEnv(w, 1)
	e.data[b] = 1
	return e
}

// lExpression extends the L expression left of a site by the site.
// See Equation 192, Section 6.2 Applying a Hamiltonian MPO to a mixed canonical state, Ulrich Schollwock.
func lExpression(left env, a Tensor, ws []mpoEntry, wRight int) env {
	dl, d, dr := a.Shape[0], a.Shape[1], a.Shape[2]
	// t[b] = left[b] @ a is of shape {a', s, r}.
	t := make([][]float64, left.w)
	// u[b'] accumulates op[s'][s] t[b](a', s, r) and is of shape {a', s', r}.
	u := make([][]float64, wRight)
	for _, e := range ws {
		if t[e.l] == nil {
			t[e.l] = make([]float64, dl*d*dr)
			gemm(blas.NoTrans, blas.NoTrans, dl, d*dr, dl, 1, left.block(e.l), a.Data, 0, t[e.l])
		}
		if u[e.r] == nil {
			u[e.r] = make([]float64, dl*d*dr)
		}
		applyOp(u[e.r], t[e.l], e.op, dl, d, dr)
	}

	next := newEnv(wRight, dr)
	for b, ub := range u {
		if ub == nil {
			continue
		}
		// next[b](r', r) = sum_{a', s'} a(a', s', r') u[b](a', s', r).
		gemm(blas.Trans, blas.NoTrans, dr, dr, dl*d, 1, a.Data, ub, 0, next.block(b))
	}
	return next
}

// rExpression extends the R expression right of a site by the site.
// See Equation 193, Section 6.2 Applying a Hamiltonian MPO to a mixed canonical state, Ulrich Schollwock.
func rExpression(right env, a Tensor, ws []mpoEntry, wLeft int) env {
	dl, d, dr := a.Shape[0], a.Shape[1], a.Shape[2]
	// t[b'] = a @ right[b']^T is of shape {l, s, r'}.
	t := make([][]float64, right.w)
	// u[b] accumulates op[s'][s] t[b'](l, s, r') and is of shape {l, s', r'}.
	u := make([][]float64, wLeft)
	for _, e := range ws {
		if t[e.r] == nil {
			t[e.r] = make([]float64, dl*d*dr)
			gemm(blas.NoTrans, blas.Trans, dl*d, dr, dr, 1, a.Data, right.block(e.r), 0, t[e.r])
		}
		if u[e.l] == nil {
			u[e.l] = make([]float64, dl*d*dr)
		}
		applyOp(u[e.l], t[e.r], e.op, dl, d, dr)
	}

	next := newEnv(wLeft, dl)
	for b, ub := range u {
		if ub == nil {
			continue
		}
		// next[b](l', l) = sum_{s', r'} a(l', s', r') u[b](l, s', r').
		gemm(blas.NoTrans, blas.Trans, dl, dl, d*dr, 1, a.Data, ub, 0, next.block(b))
	}
	return next
}

// applyOp adds op[s'][s] x(a, s, b) to y(a, s', b).
func applyOp(y, x, op []float64, na, d, nb int) {
	for a := range na {
		for sp := range d {
			ys := y[(a*d+sp)*nb : (a*d+sp+1)*nb]
			for s := range d {
				c := op[sp*d+s]
				if c == 0 {
					continue
				}
				xs := x[(a*d+s)*nb : (a*d+s+1)*nb]
				for b, v := range xs {
					ys[b] += c * v
				}
			}
		}
	}
}

// contract returns <psi|W|psi>.
// See Figure 38, Ulrich Schollwock.
func contract(psi *MPS, w *MPO) float64 {
	f := trivialEnv(w.bonds[0], 0)
	for i, a := range psi.tensors {
		f = lExpression(f, a, w.w[i], w.bonds[i+1])
	}
	return f.data[0]
}
