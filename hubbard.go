package dipolar

import (
	"slices"

	"github.com/pkg/errors"
)

// Params are the parameters of the dipolar Fermi-Hubbard chain.
type Params struct {
	L int
	// T is the 3-site dipolar hopping amplitude.
	T float64
	// TP is the 4-site dipolar hopping amplitude.
	TP float64
	// H is the nearest neighbor hopping amplitude of the chain model.
	H float64
	// U is the onsite Hubbard interaction.
	U float64
	// Mu is the chemical potential of the chain model.
	Mu float64
}

// DipolarFermiHubbard returns the chain model with one site shared by every position.
// The dipole moment cannot be conserved, since its label depends on position.
// Without labels, particle number and spin are conserved.
func DipolarFermiHubbard(p Params, bc Boundary, conserve ...ChargeLabel) (*Hamiltonian, error) {
	if slices.Contains(conserve, ChargeD) {
		return nil, errors.Wrapf(ErrConfiguration, "a shared site cannot conserve the dipole moment")
	}
	opt := NewSiteOptions()
	if len(conserve) > 0 {
		opt = opt.Conserve(conserve...)
	}
	site, err := NewSite(opt)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	lat, err := NewLattice(p.L, []*Site{site}, bc, MPSFinite, OrderDefault)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	m := NewModel(lat)
	m.AddCoupling(-p.H, 0, opCdu, 0, opCu, 1, true)
	m.AddCoupling(-p.H, 0, opCdd, 0, opCd, 1, true)
	at := func(i int) TermOp { return TermOp{Offset: i} }
	addDipolarHopping3(m, p.T, at)
	addDipolarHopping4(m, p.TP, at)
	m.AddOnsite(p.U, 0, opNuNd)
	m.AddOnsite(-p.Mu, 0, opNtot)

	h, err := m.Finalize()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}

// DipolarFermiHubbardConserved returns the open chain model conserving particle number, spin and dipole moment.
// Every position has its own site, whose dipole label is the position times the particle number.
func DipolarFermiHubbardConserved(p Params) (*Hamiltonian, error) {
	if p.L < 1 {
		return nil, errors.Wrapf(ErrConfiguration, "L %d", p.L)
	}
	sites := make([]*Site, 0, p.L)
	for x := range p.L {
		s, err := NewSite(NewSiteOptions().Conserve(ChargeN, ChargeSz, ChargeD).Position(x))
		if err != nil {
			return nil, errors.Wrapf(err, "site %d", x)
		}
		sites = append(sites, s)
	}
	lat, err := NewLattice(p.L, sites, BoundaryOpen, MPSFinite, OrderDefault)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	m := NewModel(lat)
	// The unit cell spans the whole chain, so each instance is added explicitly.
	for x := range p.L - 2 {
		addDipolarHopping3(m, p.T, func(i int) TermOp { return TermOp{Unit: x + i} })
	}
	for x := range p.L - 3 {
		addDipolarHopping4(m, p.TP, func(i int) TermOp { return TermOp{Unit: x + i} })
	}
	for x := range p.L {
		m.AddOnsite(p.U, x, opNuNd)
	}

	h, err := m.Finalize()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}

// addDipolarHopping3 adds the 3-site hopping, in which a doublon splits onto both neighbors, and its reverse.
// at(i) places an operator on the i-th site of the pattern.
func addDipolarHopping3(m *Model, t float64, at func(i int) TermOp) {
	op := func(k OpKey, i int) TermOp {
		o := at(i)
		o.Op = k
		return o
	}
	m.AddMultiCoupling(-t, op(opCdu, 0), op(opCuCd, 1), op(opCdd, 2))
	m.AddMultiCoupling(-t, op(opCdd, 0), op(opCdCu, 1), op(opCdu, 2))
	m.AddMultiCoupling(-t, op(opCd, 2), op(opCddCdu, 1), op(opCu, 0))
	m.AddMultiCoupling(-t, op(opCu, 2), op(opCduCdd, 1), op(opCd, 0))
}

// addDipolarHopping4 adds the 4-site hopping, in which the two inner particles move outwards, and its reverse.
func addDipolarHopping4(m *Model, tp float64, at func(i int) TermOp) {
	op := func(k OpKey, i int) TermOp {
		o := at(i)
		o.Op = k
		return o
	}
	m.AddMultiCoupling(-tp, op(opCdu, 0), op(opCu, 1), op(opCd, 2), op(opCdd, 3))
	m.AddMultiCoupling(-tp, op(opCdd, 0), op(opCd, 1), op(opCu, 2), op(opCdu, 3))
	m.AddMultiCoupling(-tp, op(opCd, 3), op(opCdd, 2), op(opCdu, 1), op(opCu, 0))
	m.AddMultiCoupling(-tp, op(opCu, 3), op(opCdu, 2), op(opCdd, 1), op(opCd, 0))
}
