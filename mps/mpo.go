package mps

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/dipolar"
)

// mpoEntry is a non-zero operator W[l, r] of a site of a matrix product operator.
type mpoEntry struct {
	l, r int
	// op is a d by d matrix op[s'][s], stored row major.
	op []float64
}

// MPO is a matrix product operator.
// See Section 6.1 Construction of a matrix product operator representation, Ulrich Schollwock.
type MPO struct {
	dims []int
	// bonds[i] is the dimension of the bond left of site i.
	bonds []int
	w     [][]mpoEntry
}

// NewMPO returns the matrix product operator of a Hamiltonian.
func NewMPO(h *dipolar.Hamiltonian) (*MPO, error) {
	sites := h.Lattice().MPSSites()
	dims := make([]int, 0, len(sites))
	for _, s := range sites {
		dims = append(dims, s.Dim())
	}
	w, err := buildMPO(dims, h.Placements())
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return w, nil
}

// L returns the number of sites.
func (w *MPO) L() int { return len(w.dims) }

// BondDims returns the bond dimensions, including the trivial boundary bonds.
func (w *MPO) BondDims() []int { return slices.Clone(w.bonds) }

// buildMPO sums operator strings into a matrix product operator.
//
// The bond states form a finite state machine read from left to right.
// "ready" means no operator has been placed yet, and "done" means a whole string has been placed.
// A string passes through intermediate states named after its start and the operators placed so far, so strings sharing a prefix share states.
// The coefficient of a string is multiplied into its last operator.
func buildMPO(dims []int, placements []dipolar.Placement) (*MPO, error) {
	n := len(dims)
	if n == 0 {
		return nil, errors.Errorf("no sites")
	}
	type bondStates struct {
		ready, done int
		inter       map[string]int
		size        int
	}
	bonds := make([]*bondStates, n+1)
	for i := range bonds {
		b := &bondStates{ready: -1, done: -1, inter: make(map[string]int)}
		if i < n {
			b.ready = b.size
			b.size++
		}
		if i > 0 {
			b.done = b.size
			b.size++
		}
		bonds[i] = b
	}

	type key struct{ l, r int }
	entries := make([]map[key][]float64, n)
	for i := range entries {
		entries[i] = make(map[key][]float64)
	}
	add := func(site int, k key, c float64, op []float64) {
		cur, ok := entries[site][k]
		if !ok {
			cur = make([]float64, len(op))
			entries[site][k] = cur
		}
		for x, v := range op {
			cur[x] += c * v
		}
	}
	set := func(site int, k key, op []float64) {
		if _, ok := entries[site][k]; !ok {
			entries[site][k] = op
		}
	}

	for pi, p := range placements {
		if p.First < 0 || p.Last() >= n || len(p.Ops) != len(p.Labels) {
			return nil, errors.Errorf("placement %d: sites %d..%d labels %d on %d sites", pi, p.First, p.Last(), len(p.Labels), n)
		}
		if p.Coeff == 0 {
			continue
		}
		ops := make([][]float64, 0, len(p.Ops))
		for k, m := range p.Ops {
			d := dims[p.First+k]
			if m.Rows() != d || m.Cols() != d {
				return nil, errors.Errorf("placement %d: operator %s of shape %dx%d at site %d of dimension %d", pi, p.Labels[k], m.Rows(), m.Cols(), p.First+k, d)
			}
			op := make([]float64, d*d)
			m.Each(func(i, j int, v float64) { op[i*d+j] = v })
			ops = append(ops, op)
		}

		state := bonds[p.First].ready
		for k, op := range ops {
			site := p.First + k
			next := bonds[site+1]
			if k == len(ops)-1 {
				add(site, key{state, next.done}, p.Coeff, op)
				break
			}
			name := fmt.Sprintf("%d|%s", p.First, strings.Join(p.Labels[:k+1], "|"))
			r, ok := next.inter[name]
			if !ok {
				r = next.size
				next.inter[name] = r
				next.size++
			}
			set(site, key{state, r}, op)
			state = r
		}
	}

	w := &MPO{dims: slices.Clone(dims)}
	for _, b := range bonds {
		w.bonds = append(w.bonds, b.size)
	}
	for site, d := range dims {
		id := identity(d)
		if l, r := bonds[site].ready, bonds[site+1].ready; l >= 0 && r >= 0 {
			set(site, key{l, r}, id)
		}
		if l, r := bonds[site].done, bonds[site+1].done; l >= 0 && r >= 0 {
			set(site, key{l, r}, id)
		}

		ws := make([]mpoEntry, 0, len(entries[site]))
		for k, op := range entries[site] {
			ws = append(ws, mpoEntry{l: k.l, r: k.r, op: op})
		}
		sortEntries(ws)
		w.w = append(w.w, ws)
	}
	return w, nil
}

// identityMPO returns the identity operator with bond dimension one.
func identityMPO(dims []int) *MPO {
	w := &MPO{dims: slices.Clone(dims), bonds: make([]int, len(dims)+1)}
	for i := range w.bonds {
		w.bonds[i] = 1
	}
	for _, d := range dims {
		w.w = append(w.w, []mpoEntry{{l: 0, r: 0, op: identity(d)}})
	}
	return w
}

func identity(d int) []float64 {
	id := make([]float64, d*d)
	for i := range d {
		id[i*d+i] = 1
	}
	return id
}

func sortEntries(ws []mpoEntry) {
	slices.SortFunc(ws, func(a, b mpoEntry) int {
		if c := cmp.Compare(a.l, b.l); c != 0 {
			return c
		}
		return cmp.Compare(a.r, b.r)
	})
}
