package mps

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// LanczosOptions are options for the Lanczos eigensolver.
type LanczosOptions struct {
	minIterations int
	maxIterations int
	tol           float64
}

// NewLanczosOptions returns the default Lanczos options.
func NewLanczosOptions() LanczosOptions {
	opt := LanczosOptions{}
	opt.minIterations = 2
	opt.maxIterations = 20
	opt.tol = 1e-14
	return opt
}

// MinIterations sets the minimum number of Krylov vectors.
func (opt LanczosOptions) MinIterations(i int) LanczosOptions {
	opt.minIterations = i
	return opt
}

// MaxIterations sets the maximum number of Krylov vectors, which is the number of matrix vector products.
func (opt LanczosOptions) MaxIterations(i int) LanczosOptions {
	opt.maxIterations = i
	return opt
}

// lanczos returns the lowest eigenpair of the symmetric operator h, starting from v0.
// The Krylov vectors are fully reorthogonalized.
func lanczos(h func(y, x []float64), v0 []float64, opt LanczosOptions) (float64, []float64, error) {
	n := len(v0)
	maxIter := max(1, min(opt.maxIterations, n))
	minIter := min(max(1, opt.minIterations), maxIter)

	vec := func(x []float64) blas64.Vector { return blas64.Vector{N: n, Inc: 1, Data: x} }
	v := make([]float64, n)
	copy(v, v0)
	norm := blas64.Nrm2(vec(v))
	if norm == 0 || math.IsNaN(norm) {
		return 0, nil, errors.Errorf("initial vector norm %f", norm)
	}
	blas64.Scal(1/norm, vec(v))

	basis := [][]float64{v}
	var alphas, betas []float64
	var energy float64
	var ritz []float64
	w := make([]float64, n)
	for k := range maxIter {
		clear(w)
		h(w, basis[k])
		alpha := blas64.Dot(vec(w), vec(basis[k]))
		alphas = append(alphas, alpha)
		// Two passes of Gram-Schmidt keep the Krylov basis orthogonal to machine precision.
		for range 2 {
			for _, b := range basis {
				blas64.Axpy(-blas64.Dot(vec(w), vec(b)), vec(b), vec(w))
			}
		}
		beta := blas64.Nrm2(vec(w))

		e, y, err := tridiagonalGround(alphas, betas)
		if err != nil {
			return 0, nil, errors.Wrap(err, "")
		}
		converged := k+1 >= minIter && k > 0 && math.Abs(e-energy) < opt.tol*max(1, math.Abs(e))
		energy, ritz = e, y
		if converged || beta < 1e-13 || k == maxIter-1 {
			break
		}

		betas = append(betas, beta)
		next := make([]float64, n)
		copy(next, w)
		blas64.Scal(1/beta, vec(next))
		basis = append(basis, next)
	}
	if math.IsNaN(energy) {
		return 0, nil, errors.Errorf("lanczos energy %f", energy)
	}

	ground := make([]float64, n)
	for j, c := range ritz {
		blas64.Axpy(c, vec(basis[j]), vec(ground))
	}
	if norm := blas64.Nrm2(vec(ground)); norm > 0 {
		blas64.Scal(1/norm, vec(ground))
	}
	return energy, ground, nil
}

// tridiagonalGround returns the lowest eigenpair of the tridiagonal matrix with diagonal alphas and off diagonal betas.
func tridiagonalGround(alphas, betas []float64) (float64, []float64, error) {
	k := len(alphas)
	t := mat.NewSymDense(k, nil)
	for i, a := range alphas {
		t.SetSym(i, i, a)
		if i+1 < k {
			t.SetSym(i, i+1, betas[i])
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(t, true); !ok {
		return 0, nil, errors.Errorf("eigen decomposition of %d by %d tridiagonal matrix failed", k, k)
	}
	vals := eig.Values(nil)
	lowest := 0
	for i, v := range vals {
		if v < vals[lowest] {
			lowest = i
		}
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	y := make([]float64, k)
	for i := range y {
		y[i] = vecs.At(i, lowest)
	}
	return vals[lowest], y, nil
}
