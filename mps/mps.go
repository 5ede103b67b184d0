// Package mps implements the Matrix Product State algorithm for real states with abelian charges.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mps

import (
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/fumin/dipolar"
)

const (
	// mpsLeftAxis is the axis of a_{l-1} in Figure 6.
	mpsLeftAxis  = 0
	mpsUpAxis    = 1
	mpsRightAxis = 2

	// canonicalSVDMin drops numerically vanishing singular values when moving the orthogonality center.
	canonicalSVDMin = 1e-15
)

// Tensor is a site tensor with axes (left bond, physical, right bond), stored row major.
type Tensor struct {
	Shape [3]int
	Data  []float64
}

func newTensor(dl, d, dr int) Tensor {
	return Tensor{Shape: [3]int{dl, d, dr}, Data: make([]float64, dl*d*dr)}
}

// At returns the element at left bond l, physical index s and right bond r.
func (t Tensor) At(l, s, r int) float64 {
	return t.Data[(l*t.Shape[mpsUpAxis]+s)*t.Shape[mpsRightAxis]+r]
}

func (t Tensor) clone() Tensor {
	return Tensor{Shape: t.Shape, Data: slices.Clone(t.Data)}
}

// MPS is a matrix product state in mixed canonical form.
// Sites left of the center are left normalized, and sites right of it are right normalized.
//
// The charge of a bond state is the total charge of the sites to its left.
// A site tensor A[l, s, r] may be non-zero only if bond[l] + phys[s] = bond[r].
type MPS struct {
	phys    [][]dipolar.Charge
	bonds   [][]dipolar.Charge
	tensors []Tensor
	center  int
}

// NewProductState returns the product state in which site i is in basis state state[i].
func NewProductState(sites []*dipolar.Site, state []int) (*MPS, error) {
	if len(sites) != len(state) {
		return nil, errors.Errorf("%d sites %d states", len(sites), len(state))
	}
	if len(sites) == 0 {
		return nil, errors.Errorf("no sites")
	}
	psi := &MPS{bonds: [][]dipolar.Charge{{{}}}}
	for i, site := range sites {
		s := state[i]
		if s < 0 || s >= site.Dim() {
			return nil, errors.Errorf("state %d at site %d of dimension %d", s, i, site.Dim())
		}
		phys := site.Charges()
		psi.phys = append(psi.phys, phys)
		psi.bonds = append(psi.bonds, []dipolar.Charge{psi.bonds[i][0].Add(phys[s])})

		a := newTensor(1, site.Dim(), 1)
		a.Data[s] = 1
		psi.tensors = append(psi.tensors, a)
	}
	return psi, nil
}

// FromTensors assembles a state from its parts, as returned by the accessors of MPS.
func FromTensors(phys, bonds [][]dipolar.Charge, tensors []Tensor, center int) (*MPS, error) {
	n := len(tensors)
	if n == 0 || len(phys) != n || len(bonds) != n+1 {
		return nil, errors.Errorf("%d tensors %d physical %d bonds", n, len(phys), len(bonds))
	}
	if center < 0 || center >= n {
		return nil, errors.Errorf("center %d", center)
	}
	if len(bonds[0]) != 1 || len(bonds[n]) != 1 || !bonds[0][0].IsZero() {
		return nil, errors.Errorf("boundary bonds %v %v", bonds[0], bonds[n])
	}
	for i, t := range tensors {
		expected := [3]int{len(bonds[i]), len(phys[i]), len(bonds[i+1])}
		if t.Shape != expected || len(t.Data) != expected[0]*expected[1]*expected[2] {
			return nil, errors.Errorf("tensor %d shape %v data %d, expected %v", i, t.Shape, len(t.Data), expected)
		}
	}

	psi := &MPS{center: center}
	for i := range n {
		psi.phys = append(psi.phys, slices.Clone(phys[i]))
		psi.tensors = append(psi.tensors, tensors[i].clone())
	}
	for _, b := range bonds {
		psi.bonds = append(psi.bonds, slices.Clone(b))
	}
	return psi, nil
}

// L returns the number of sites.
func (psi *MPS) L() int { return len(psi.tensors) }

// Center returns the orthogonality center.
func (psi *MPS) Center() int { return psi.center }

// Tensor returns the tensor of site i.
// The tensor is shared and must not be modified.
func (psi *MPS) Tensor(i int) Tensor { return psi.tensors[i] }

// PhysicalCharges returns the charges of the basis states of site i.
func (psi *MPS) PhysicalCharges(i int) []dipolar.Charge { return slices.Clone(psi.phys[i]) }

// BondCharges returns the charges of bond i, which lies left of site i.
func (psi *MPS) BondCharges(i int) []dipolar.Charge { return slices.Clone(psi.bonds[i]) }

// BondDims returns the dimension of every bond, including the two trivial boundary bonds.
func (psi *MPS) BondDims() []int {
	dims := make([]int, 0, len(psi.bonds))
	for _, b := range psi.bonds {
		dims = append(dims, len(b))
	}
	return dims
}

// Charge returns the total charge of the state.
func (psi *MPS) Charge() dipolar.Charge { return psi.bonds[len(psi.bonds)-1][0] }

// Copy returns a deep copy.
func (psi *MPS) Copy() *MPS {
	c, err := FromTensors(psi.phys, psi.bonds, psi.tensors, psi.center)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return c
}

// Normalize scales the state to unit norm.
func (psi *MPS) Normalize() error {
	a := psi.tensors[psi.center]
	norm := blas64.Nrm2(blas64.Vector{N: len(a.Data), Inc: 1, Data: a.Data})
	if norm == 0 || math.IsNaN(norm) {
		return errors.Errorf("norm %f", norm)
	}
	blas64.Scal(1/norm, blas64.Vector{N: len(a.Data), Inc: 1, Data: a.Data})
	return nil
}

// moveCenter moves the orthogonality center to site target.
// See Section 4.4 Canonical form, Ulrich Schollwock.
func (psi *MPS) moveCenter(target int) error {
	tr := truncation{svdMin: canonicalSVDMin}
	for psi.center < target {
		if _, err := psi.leftNormalize(psi.center, tr); err != nil {
			return errors.Wrap(err, "")
		}
	}
	for psi.center > target {
		if _, err := psi.rightNormalize(psi.center, tr); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// leftNormalize decomposes site i = U C, keeps U at site i and multiplies C into site i+1.
// It returns the Schmidt values of the bond between i and i+1.
func (psi *MPS) leftNormalize(i int, tr truncation) (basis, error) {
	a := psi.tensors[i]
	dl, d, dr := a.Shape[0], a.Shape[1], a.Shape[2]
	rowQ := make([]dipolar.Charge, 0, dl*d)
	for l := range dl {
		for s := range d {
			rowQ = append(rowQ, psi.bonds[i][l].Add(psi.phys[i][s]))
		}
	}
	b, err := truncatedBasis(a.Data, dl*d, dr, rowQ, psi.bonds[i+1], tr)
	if err != nil {
		return basis{}, errors.Wrapf(err, "site %d", i)
	}

	// c = u^T a is of shape {k, dr}.
	c := make([]float64, b.k*dr)
	gemm(blas.Trans, blas.NoTrans, b.k, dr, dl*d, 1, b.u, a.Data, 0, c)
	psi.tensors[i] = Tensor{Shape: [3]int{dl, d, b.k}, Data: b.u}
	psi.bonds[i+1] = b.q

	next := psi.tensors[i+1]
	nd, ndr := next.Shape[1], next.Shape[2]
	data := make([]float64, b.k*nd*ndr)
	gemm(blas.NoTrans, blas.NoTrans, b.k, nd*ndr, dr, 1, c, next.Data, 0, data)
	psi.tensors[i+1] = Tensor{Shape: [3]int{b.k, nd, ndr}, Data: data}
	psi.center = i + 1
	return b, nil
}

// rightNormalize decomposes site i = C V^T, keeps V^T at site i and multiplies C into site i-1.
func (psi *MPS) rightNormalize(i int, tr truncation) (basis, error) {
	a := psi.tensors[i]
	dl, d, dr := a.Shape[0], a.Shape[1], a.Shape[2]
	at := transpose(a.Data, dl, d*dr)
	rowQ := make([]dipolar.Charge, 0, d*dr)
	for s := range d {
		for r := range dr {
			rowQ = append(rowQ, psi.bonds[i+1][r].Sub(psi.phys[i][s]))
		}
	}
	b, err := truncatedBasis(at, d*dr, dl, rowQ, psi.bonds[i], tr)
	if err != nil {
		return basis{}, errors.Wrapf(err, "site %d", i)
	}

	// c = a v is of shape {dl, k}.
	c := make([]float64, dl*b.k)
	gemm(blas.NoTrans, blas.NoTrans, dl, b.k, d*dr, 1, a.Data, b.u, 0, c)
	psi.tensors[i] = Tensor{Shape: [3]int{b.k, d, dr}, Data: transpose(b.u, d*dr, b.k)}
	psi.bonds[i] = b.q

	prev := psi.tensors[i-1]
	pdl, pd := prev.Shape[0], prev.Shape[1]
	data := make([]float64, pdl*pd*b.k)
	gemm(blas.NoTrans, blas.NoTrans, pdl*pd, b.k, dl, 1, prev.Data, c, 0, data)
	psi.tensors[i-1] = Tensor{Shape: [3]int{pdl, pd, b.k}, Data: data}
	psi.center = i - 1
	return b, nil
}

// EntanglementEntropy returns the von Neumann entropy of every bond between two sites.
func (psi *MPS) EntanglementEntropy() ([]float64, error) {
	c := psi.Copy()
	if err := c.moveCenter(0); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := c.Normalize(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	entropies := make([]float64, 0, c.L()-1)
	tr := truncation{svdMin: canonicalSVDMin}
	for i := range c.L() - 1 {
		b, err := c.leftNormalize(i, tr)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		entropies = append(entropies, entropy(b.s))
	}
	return entropies, nil
}

// Norm2 returns <psi|psi>.
// See Section 4.2.1 Efficient evaluation of contractions, Ulrich Schollwock.
func (psi *MPS) Norm2() float64 {
	return contract(psi, identityMPO(psi.dims()))
}

// Expectation returns <psi|O|psi> / <psi|psi> for an operator string in matrix product state positions.
func (psi *MPS) Expectation(p dipolar.Placement) (float64, error) {
	if p.First < 0 || p.Last() >= psi.L() {
		return 0, errors.Errorf("placement %d..%d on %d sites", p.First, p.Last(), psi.L())
	}
	w, err := buildMPO(psi.dims(), []dipolar.Placement{p})
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	norm2 := psi.Norm2()
	if norm2 == 0 {
		return 0, errors.Errorf("zero state")
	}
	return contract(psi, w) / norm2, nil
}

func (psi *MPS) dims() []int {
	dims := make([]int, 0, len(psi.phys))
	for _, p := range psi.phys {
		dims = append(dims, len(p))
	}
	return dims
}

func (psi *MPS) String() string {
	return fmt.Sprintf("MPS{L: %d, center: %d, bonds: %v}", psi.L(), psi.center, psi.BondDims())
}

func gemm(tA, tB blas.Transpose, m, n, k int, alpha float64, a, b []float64, beta float64, c []float64) {
	lda, ldb := k, n
	if tA == blas.Trans {
		lda = m
	}
	if tB == blas.Trans {
		ldb = k
	}
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		for i := range c[:m*n] {
			c[i] *= beta
		}
		return
	}
	blas64.Implementation().Dgemm(tA, tB, m, n, k, alpha, a, lda, b, ldb, beta, c, n)
}

func transpose(a []float64, rows, cols int) []float64 {
	t := make([]float64, len(a))
	for i := range rows {
		for j := range cols {
			t[j*rows+i] = a[i*cols+j]
		}
	}
	return t
}
