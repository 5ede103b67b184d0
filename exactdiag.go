package dipolar

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/fumin/dipolar/mat"
)

// ExactHamiltonian returns the many-body matrix of h.
// Basis states are ordered with the first matrix product state site as the most significant digit.
func ExactHamiltonian(h *Hamiltonian) *mat.COO {
	n := h.lat.N()
	sites := h.lat.MPSSites()
	dim := 1
	for _, s := range sites {
		dim *= s.Dim()
	}

	hamiltonian := mat.COOZeros(dim, dim)
	system := mat.COOZeros(1, 1)
	for _, p := range h.placements {
		if p.Coeff == 0 {
			continue
		}
		system.Scalar(1)
		for pos := range n {
			switch {
			case pos >= p.First && pos <= p.Last():
				system.Kron(p.Ops[pos-p.First])
			default:
				system.Kron(sites[pos].ops[opId])
			}
		}
		hamiltonian.Add(p.Coeff, system)
	}
	return hamiltonian
}

// Sector returns the basis states of the lattice with total charge q, in the order of ExactHamiltonian.
func Sector(lat *Lattice, q Charge) []int {
	sites := lat.MPSSites()
	idx := make([]int, 0)
	for i, state := range digits(sites) {
		if StateCharge(sites, state) == q {
			idx = append(idx, i)
		}
	}
	return idx
}

// StateCharge returns the total charge of a product state.
func StateCharge(sites []*Site, state []int) Charge {
	var q Charge
	for i, s := range state {
		q = q.Add(sites[i].charges[s])
	}
	return q
}

// SectorGroundState returns the lowest eigenpair of h restricted to the states of charge q.
// The eigenvector is indexed by the position in Sector.
func SectorGroundState(h *Hamiltonian, q Charge) (mat.ValVec, []int, error) {
	sector := Sector(h.lat, q)
	if len(sector) == 0 {
		return mat.ValVec{}, nil, errors.Wrapf(ErrConfiguration, "empty sector %s", q)
	}
	pos := make(map[int]int, len(sector))
	for i, s := range sector {
		pos[s] = i
	}

	dense := make([][]float64, len(sector))
	for i := range dense {
		dense[i] = make([]float64, len(sector))
	}
	ExactHamiltonian(h).Each(func(i, j int, v float64) {
		pi, ok := pos[i]
		if !ok {
			return
		}
		pj, ok := pos[j]
		if !ok {
			return
		}
		dense[pi][pj] = v
	})

	vvs, err := mat.M(dense).Eigen()
	if err != nil {
		return mat.ValVec{}, nil, errors.Wrap(err, "")
	}
	return vvs[0], sector, nil
}

// digits iterates over all product states of sites, the first site being the most significant digit.
func digits(sites []*Site) iter.Seq2[int, []int] {
	state := make([]int, len(sites))
	return func(yield func(int, []int) bool) {
		numStates := 1
		for _, s := range sites {
			numStates *= s.Dim()
		}
		for i := range numStates {
			r := i
			for k := len(sites) - 1; k >= 0; k-- {
				d := sites[k].Dim()
				state[k] = r % d
				r /= d
			}
			if !yield(i, state) {
				return
			}
		}
	}
}
