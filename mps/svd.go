package mps

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dipolar"
)

// truncation controls how many singular vectors a decomposition keeps.
type truncation struct {
	// chiMax is the maximum number of kept vectors, zero meaning no limit.
	chiMax int
	// svdMin discards singular values smaller than svdMin times the norm.
	svdMin float64
	// noise is the amplitude of the random perturbation added to the density matrix.
	noise float64
	rng   *rand.Rand
	// allowed restricts the charges of the kept vectors when not nil.
	allowed map[dipolar.Charge]bool
}

// basis holds the kept left singular vectors of a block diagonal matrix.
type basis struct {
	// u is a rows by k matrix, stored row major.
	u []float64
	k int
	// q is the charge of each kept vector.
	q []dipolar.Charge
	// s are the kept singular values, normalized.
	s []float64
	// truncErr is the discarded weight.
	truncErr float64
}

// svdBlock is the decomposition of the rows of one charge.
type svdBlock struct {
	q    dipolar.Charge
	rows []int
	// b is the block of the decomposed matrix, nil when no column carries charge q.
	b *mat.Dense
	u *mat.Dense
	s []float64
	// kept are the kept columns of u.
	kept []int
	// noise are the kept noise vectors.
	noise [][]float64
}

type singular struct {
	v     float64
	block int
	i     int
}

// noiseRankTol is the smallest noise singular value, relative to the norm, whose vector is kept.
// Smaller values belong to the null space of the projected noise and may overlap the kept vectors.
const noiseRankTol = 1e-8

// truncatedBasis returns the dominant left singular vectors of the rows by cols matrix m.
// Element (i, j) may be non-zero only if rowQ[i] equals colQ[j], so m is decomposed block by block and the kept vectors carry a definite charge.
//
// With noise, the slots left after the singular vectors of m are filled from the perturbed blocks [P B, sqrt(noise/n) P G],
// where G is an n by n Gaussian matrix and P projects out the vectors already kept.
// The noise vectors are orthogonal to the kept singular vectors of m, so the perturbation never discards weight of m.
func truncatedBasis(m []float64, rows, cols int, rowQ, colQ []dipolar.Charge, tr truncation) (basis, error) {
	if len(m) != rows*cols || len(rowQ) != rows || len(colQ) != cols {
		return basis{}, errors.Errorf("%d %d %d %d %d", len(m), rows, cols, len(rowQ), len(colQ))
	}
	rowIdx := groupByCharge(rowQ)
	colIdx := groupByCharge(colQ)
	charges := make([]dipolar.Charge, 0, len(rowIdx))
	for q := range rowIdx {
		if tr.allowed != nil && !tr.allowed[q] {
			continue
		}
		if _, ok := colIdx[q]; ok || tr.noise > 0 {
			charges = append(charges, q)
		}
	}
	slices.SortFunc(charges, dipolar.CompareCharge)

	blocks := make([]*svdBlock, 0, len(charges))
	svs := make([]singular, 0)
	for _, q := range charges {
		ri, ci := rowIdx[q], colIdx[q]
		blk := &svdBlock{q: q, rows: ri}
		blocks = append(blocks, blk)
		if len(ci) == 0 {
			continue
		}
		blk.b = mat.NewDense(len(ri), len(ci), nil)
		for x, i := range ri {
			for y, j := range ci {
				blk.b.Set(x, y, m[i*cols+j])
			}
		}
		var svd mat.SVD
		if ok := svd.Factorize(blk.b, mat.SVDThin); !ok {
			return basis{}, errors.Errorf("svd failed for block %s of shape %dx%d", q, len(ri), len(ci))
		}
		blk.u = &mat.Dense{}
		svd.UTo(blk.u)
		blk.s = svd.Values(nil)
		for i, v := range blk.s {
			svs = append(svs, singular{v: v, block: len(blocks) - 1, i: i})
		}
	}

	slices.SortStableFunc(svs, func(a, b singular) int { return cmp.Compare(b.v, a.v) })
	var norm2 float64
	for _, sv := range svs {
		norm2 += sv.v * sv.v
	}
	if norm2 == 0 {
		return basis{}, errors.Errorf("zero matrix %dx%d", rows, cols)
	}
	norm := math.Sqrt(norm2)
	kept := 0
	for kept < len(svs) {
		if tr.chiMax > 0 && kept >= tr.chiMax {
			break
		}
		v := svs[kept].v
		if kept > 0 && (v == 0 || v/norm < tr.svdMin) {
			break
		}
		kept++
	}
	var keptNorm2 float64
	for _, sv := range svs[:kept] {
		blocks[sv.block].kept = append(blocks[sv.block].kept, sv.i)
		keptNorm2 += sv.v * sv.v
	}
	for _, blk := range blocks {
		slices.Sort(blk.kept)
	}

	k := kept
	if tr.noise > 0 && (tr.chiMax == 0 || k < tr.chiMax) {
		slots := tr.chiMax - k
		if tr.chiMax == 0 {
			slots = rows
		}
		n, err := fillNoise(blocks, slots, norm, tr)
		if err != nil {
			return basis{}, errors.Wrap(err, "")
		}
		k += n
	}
	res := basis{u: make([]float64, rows*k), k: k}
	col := 0
	for _, blk := range blocks {
		for _, i := range blk.kept {
			for x, r := range blk.rows {
				res.u[r*k+col] = blk.u.At(x, i)
			}
			res.q = append(res.q, blk.q)
			res.s = append(res.s, blk.s[i]/norm)
			col++
		}
		for _, vec := range blk.noise {
			for x, r := range blk.rows {
				res.u[r*k+col] = vec[x]
			}
			res.q = append(res.q, blk.q)
			res.s = append(res.s, 0)
			col++
		}
	}
	res.truncErr = max(0, 1-keptNorm2/norm2)
	return res, nil
}

// fillNoise adds up to slots noise vectors to blocks, the largest first, and returns how many were added.
func fillNoise(blocks []*svdBlock, slots int, norm float64, tr truncation) (int, error) {
	type candidate struct {
		v     float64
		block int
		vec   []float64
	}
	tol := max(noiseRankTol, tr.svdMin)
	candidates := make([]candidate, 0)
	for bi, blk := range blocks {
		nr := len(blk.rows)
		nc := 0
		if blk.b != nil {
			_, nc = blk.b.Dims()
		}
		p := mat.NewDense(nr, nc+nr, nil)
		if blk.b != nil {
			p.Slice(0, nr, 0, nc).(*mat.Dense).Copy(blk.b)
		}
		a := math.Sqrt(tr.noise / float64(nr))
		for x := range nr {
			for y := range nr {
				p.Set(x, nc+y, a*tr.rng.NormFloat64())
			}
		}
		if len(blk.kept) > 0 {
			uk := mat.NewDense(nr, len(blk.kept), nil)
			for c, i := range blk.kept {
				for x := range nr {
					uk.Set(x, c, blk.u.At(x, i))
				}
			}
			var ukp, proj mat.Dense
			ukp.Mul(uk.T(), p)
			proj.Mul(uk, &ukp)
			p.Sub(p, &proj)
		}

		var svd mat.SVD
		if ok := svd.Factorize(p, mat.SVDThin); !ok {
			return 0, errors.Errorf("svd failed for noise of block %s of shape %dx%d", blk.q, nr, nc+nr)
		}
		var u mat.Dense
		svd.UTo(&u)
		for i, v := range svd.Values(nil) {
			if v/norm < tol {
				continue
			}
			candidates = append(candidates, candidate{v: v, block: bi, vec: mat.Col(nil, i, &u)})
		}
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int { return cmp.Compare(b.v, a.v) })
	n := min(slots, len(candidates))
	for _, c := range candidates[:n] {
		blocks[c.block].noise = append(blocks[c.block].noise, c.vec)
	}
	return n, nil
}

func groupByCharge(qs []dipolar.Charge) map[dipolar.Charge][]int {
	idx := make(map[dipolar.Charge][]int)
	for i, q := range qs {
		idx[q] = append(idx[q], i)
	}
	return idx
}

// entropy returns the von Neumann entropy of normalized Schmidt values.
func entropy(s []float64) float64 {
	var norm2 float64
	for _, v := range s {
		norm2 += v * v
	}
	var e float64
	for _, v := range s {
		p := v * v / norm2
		if p > 0 {
			e -= p * math.Log(p)
		}
	}
	return e
}
