package dipolar

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/dipolar/mat"
)

// Factor is a local operator acting on one lattice site.
type Factor struct {
	// Site is the lattice index.
	Site int
	Op   OpKey
	// Dagger marks the adjoint of Op.
	Dagger bool
	M      *mat.COO
	Odd    bool
	Charge Charge
}

func (f Factor) String() string {
	dagger := ""
	if f.Dagger {
		dagger = "†"
	}
	return fmt.Sprintf("(%s)%s_%d", f.Op, dagger, f.Site)
}

// Term is a product of local fermionic operators, applied right to left.
type Term struct {
	Coeff   float64
	Factors []Factor
}

// Adjoint returns the Hermitian conjugate of t.
// The operators are reversed and each is transposed, the model being real.
func (t Term) Adjoint() Term {
	adj := Term{Coeff: t.Coeff, Factors: make([]Factor, 0, len(t.Factors))}
	for _, f := range slices.Backward(t.Factors) {
		f.Dagger = !f.Dagger
		f.M = f.M.T()
		f.Charge = Charge{}.Sub(f.Charge)
		adj.Factors = append(adj.Factors, f)
	}
	return adj
}

// Charge returns the charge the term adds to a state.
func (t Term) Charge() Charge {
	var q Charge
	for _, f := range t.Factors {
		q = q.Add(f.Charge)
	}
	return q
}

func (t Term) String() string {
	ss := make([]string, 0, len(t.Factors))
	for _, f := range t.Factors {
		ss = append(ss, f.String())
	}
	return fmt.Sprintf("%g %s", t.Coeff, strings.Join(ss, " "))
}

// Resolve looks up an operator at a lattice index.
func (l *Lattice) Resolve(i int, k OpKey) (Factor, error) {
	if i < 0 || i >= l.N() {
		return Factor{}, errors.Wrapf(ErrLookup, "site %d of %d", i, l.N())
	}
	s := l.Site(i)
	m, err := s.Op(k)
	if err != nil {
		return Factor{}, errors.Wrapf(err, "site %d", i)
	}
	odd, err := s.Odd(k)
	if err != nil {
		return Factor{}, errors.Wrapf(err, "site %d", i)
	}
	q, err := s.OpCharge(k)
	if err != nil {
		return Factor{}, errors.Wrapf(err, "site %d", i)
	}
	return Factor{Site: i, Op: k, M: m, Odd: odd, Charge: q}, nil
}

// Placement is a term rewritten as a product of bosonic local operators on consecutive matrix product state sites.
// The fermionic signs are carried by Jordan-Wigner strings and the sign of Coeff.
type Placement struct {
	Coeff float64
	// First is the matrix product state position of Ops[0].
	First int
	Ops   []*mat.COO
	// Labels name the operators in Ops.
	// Operators at the same position with the same label are identical.
	Labels []string
}

// Last returns the position of the last operator.
func (p Placement) Last() int { return p.First + len(p.Ops) - 1 }

// Place maps a term onto the matrix product state order of the lattice.
//
// Each fermionic operator at position j is a_j preceded by the string JW on all positions before j.
// Sorting the factors by position costs a sign for each exchanged pair of odd operators.
func (l *Lattice) Place(t Term) (Placement, error) {
	if len(t.Factors) == 0 {
		return Placement{}, errors.Wrapf(ErrConfiguration, "empty term")
	}
	if q := t.Charge(); !q.IsZero() {
		return Placement{}, errors.Wrapf(ErrConfiguration, "term %s changes charge by %s", t, q)
	}

	type placed struct {
		Factor
		pos int
	}
	fs := make([]placed, 0, len(t.Factors))
	var numOdd int
	for _, f := range t.Factors {
		fs = append(fs, placed{Factor: f, pos: l.MPSIndex(f.Site)})
		if f.Odd {
			numOdd++
		}
	}
	if numOdd%2 != 0 {
		return Placement{}, errors.Wrapf(ErrConfiguration, "term %s has odd fermion parity", t)
	}

	sign := 1.0
	for i := range fs {
		for j := i + 1; j < len(fs); j++ {
			if fs[i].Odd && fs[j].Odd && fs[i].pos > fs[j].pos {
				sign = -sign
			}
		}
	}
	slices.SortStableFunc(fs, func(a, b placed) int { return a.pos - b.pos })

	first, last := fs[0].pos, fs[len(fs)-1].pos
	p := Placement{Coeff: sign * t.Coeff, First: first}
	// oddAfter is the number of odd operators at positions after the current one.
	oddAfter := numOdd
	k := 0
	for pos := first; pos <= last; pos++ {
		site := l.Site(l.order[pos])
		var m *mat.COO
		var labels []string
		for ; k < len(fs) && fs[k].pos == pos; k++ {
			f := fs[k]
			if m == nil {
				m = f.M.Clone()
			} else {
				m = mat.Mul(m, f.M)
			}
			labels = append(labels, f.label())
			if f.Odd {
				oddAfter--
			}
		}

		jw := oddAfter%2 == 1
		switch {
		case m == nil && jw:
			m, labels = site.ops[opJW], []string{opJW.String()}
		case m == nil:
			m, labels = site.ops[opId], []string{opId.String()}
		case jw:
			m = mat.Mul(m, site.ops[opJW])
			labels = append(labels, opJW.String())
		}
		p.Ops = append(p.Ops, m)
		p.Labels = append(p.Labels, strings.Join(labels, "*"))
	}
	return p, nil
}

func (f Factor) label() string {
	if f.Dagger {
		return f.Op.String() + "†"
	}
	return f.Op.String()
}
