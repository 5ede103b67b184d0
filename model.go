package dipolar

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// TermOp is one operator of a coupling pattern.
// The operator acts on unit cell site Unit, Offset cells away from the anchor cell of an instance.
type TermOp struct {
	Op     OpKey
	Unit   int
	Offset int
}

// CouplingTerm is a coupling pattern, repeated under translation over every anchor cell.
type CouplingTerm struct {
	Coeff float64
	// Ops are applied in the given order, which fixes the fermionic sign of the term.
	Ops []TermOp
	// PlusHC adds the Hermitian conjugate as a separate term.
	PlusHC bool
}

func (c CouplingTerm) String() string {
	s := fmt.Sprintf("%g", c.Coeff)
	for _, op := range c.Ops {
		s += fmt.Sprintf(" (%s,%d,%d)", op.Op, op.Unit, op.Offset)
	}
	if c.PlusHC {
		s += " + h.c."
	}
	return s
}

// Model records coupling terms on a lattice.
// Operators are looked up only when the model is finalized.
type Model struct {
	lat       *Lattice
	couplings []CouplingTerm
}

// NewModel returns an empty model on a lattice.
func NewModel(lat *Lattice) *Model {
	return &Model{lat: lat}
}

// AddOnsite adds coeff*op on every unit cell site unit.
func (m *Model) AddOnsite(coeff float64, unit int, op OpKey) {
	m.couplings = append(m.couplings, CouplingTerm{Coeff: coeff, Ops: []TermOp{{Op: op, Unit: unit}}})
}

// AddCoupling adds coeff * op1_i op2_j, where j is dx cells after i.
func (m *Model) AddCoupling(coeff float64, u1 int, op1 OpKey, u2 int, op2 OpKey, dx int, plusHC bool) {
	ops := []TermOp{{Op: op1, Unit: u1}, {Op: op2, Unit: u2, Offset: dx}}
	m.couplings = append(m.couplings, CouplingTerm{Coeff: coeff, Ops: ops, PlusHC: plusHC})
}

// AddMultiCoupling adds coeff times the product of ops.
func (m *Model) AddMultiCoupling(coeff float64, ops ...TermOp) {
	m.couplings = append(m.couplings, CouplingTerm{Coeff: coeff, Ops: slices.Clone(ops)})
}

// AddMultiCouplingHC adds coeff times the product of ops, and its Hermitian conjugate.
func (m *Model) AddMultiCouplingHC(coeff float64, ops ...TermOp) {
	m.couplings = append(m.couplings, CouplingTerm{Coeff: coeff, Ops: slices.Clone(ops), PlusHC: true})
}

// Finalize expands every coupling over the lattice.
func (m *Model) Finalize() (*Hamiltonian, error) {
	h := &Hamiltonian{lat: m.lat, couplings: slices.Clone(m.couplings)}
	for ci, c := range m.couplings {
		if len(c.Ops) == 0 {
			return nil, errors.Wrapf(ErrConfiguration, "coupling %d has no operators", ci)
		}
		for _, op := range c.Ops {
			if op.Unit < 0 || op.Unit >= m.lat.UnitSize() {
				return nil, errors.Wrapf(ErrLookup, "coupling %d: unit %d of %d", ci, op.Unit, m.lat.UnitSize())
			}
		}

		var count int
		for cell := range m.lat.Cells() {
			sites, ok := m.instance(c, cell)
			if !ok {
				continue
			}
			term := Term{Coeff: c.Coeff}
			for k, op := range c.Ops {
				f, err := m.lat.Resolve(sites[k], op.Op)
				if err != nil {
					return nil, errors.Wrapf(err, "coupling %d %s", ci, c)
				}
				term.Factors = append(term.Factors, f)
			}
			terms := []Term{term}
			if c.PlusHC {
				terms = append(terms, term.Adjoint())
			}
			for _, t := range terms {
				p, err := m.lat.Place(t)
				if err != nil {
					return nil, errors.Wrapf(err, "coupling %d %s", ci, c)
				}
				h.terms = append(h.terms, t)
				h.placements = append(h.placements, p)
			}
			count++
		}
		h.instances = append(h.instances, count)
	}
	return h, nil
}

// instance returns the lattice indices of the operators of c anchored at a cell.
// On open lattices an instance reaching past either end is left out, so that callers may generate terms uniformly near boundaries.
// On periodic lattices cells wrap around, but a pattern spanning the whole chain is left out.
func (m *Model) instance(c CouplingTerm, cell int) ([]int, bool) {
	cells := m.lat.Cells()
	lo, hi := c.Ops[0].Offset, c.Ops[0].Offset
	for _, op := range c.Ops {
		lo, hi = min(lo, op.Offset), max(hi, op.Offset)
	}

	sites := make([]int, 0, len(c.Ops))
	switch m.lat.Boundary() {
	case BoundaryPeriodic:
		if hi-lo >= cells && len(c.Ops) > 1 {
			return nil, false
		}
		for _, op := range c.Ops {
			x := ((cell+op.Offset)%cells + cells) % cells
			sites = append(sites, m.lat.Index(x, op.Unit))
		}
	default:
		if cell+lo < 0 || cell+hi >= cells {
			return nil, false
		}
		for _, op := range c.Ops {
			sites = append(sites, m.lat.Index(cell+op.Offset, op.Unit))
		}
	}
	return sites, true
}

// Hamiltonian is a finalized model.
// It is immutable.
type Hamiltonian struct {
	lat       *Lattice
	couplings []CouplingTerm
	// instances[i] is the number of translated copies of couplings[i].
	instances  []int
	terms      []Term
	placements []Placement
}

func (h *Hamiltonian) Lattice() *Lattice { return h.lat }

// Couplings returns the recorded coupling patterns.
func (h *Hamiltonian) Couplings() []CouplingTerm { return slices.Clone(h.couplings) }

// Instances returns the number of translated copies of the i-th coupling, not counting Hermitian conjugates.
func (h *Hamiltonian) Instances(i int) int { return h.instances[i] }

// Terms returns every materialized term, Hermitian conjugates included.
func (h *Hamiltonian) Terms() []Term { return slices.Clone(h.terms) }

// Placements returns the Jordan-Wigner form of each term in Terms.
func (h *Hamiltonian) Placements() []Placement { return slices.Clone(h.placements) }
