// Package dipolar builds the dipole conserving Fermi-Hubbard chain: local sites, lattices and the Hamiltonian term catalogue.
package dipolar

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/dipolar/mat"
)

// ChargeLabel names a conserved quantum number.
type ChargeLabel string

const (
	ChargeN  ChargeLabel = "N"
	ChargeSz ChargeLabel = "Sz"
	ChargeD  ChargeLabel = "D"
)

// Charge holds the conserved quantum numbers particle number, twice the spin projection, and dipole moment.
// Labels that are not conserved are zero.
type Charge [3]int

func (q Charge) Add(p Charge) Charge {
	return Charge{q[0] + p[0], q[1] + p[1], q[2] + p[2]}
}

func (q Charge) Sub(p Charge) Charge {
	return Charge{q[0] - p[0], q[1] - p[1], q[2] - p[2]}
}

func (q Charge) IsZero() bool { return q == Charge{} }

func (q Charge) String() string {
	return fmt.Sprintf("N=%d 2Sz=%d D=%d", q[0], q[1], q[2])
}

// CompareCharge orders charges lexicographically.
func CompareCharge(a, b Charge) int {
	for i := range a {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// OpKey identifies a local operator by the ordered elementary operators whose matrix product it is.
// An elementary operator has an empty second factor.
type OpKey [2]string

// Op returns the key of an elementary operator.
func Op(name string) OpKey { return OpKey{name, ""} }

// Prod returns the key of the product a @ b.
func Prod(a, b string) OpKey { return OpKey{a, b} }

// ParseOpKey parses the space separated form "Cu Cd".
func ParseOpKey(s string) (OpKey, error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return Op(fields[0]), nil
	case 2:
		return Prod(fields[0], fields[1]), nil
	default:
		return OpKey{}, errors.Wrapf(ErrLookup, "operator %q", s)
	}
}

func (k OpKey) IsProduct() bool { return k[1] != "" }

func (k OpKey) String() string {
	if k.IsProduct() {
		return k[0] + " " + k[1]
	}
	return k[0]
}

var (
	opId   = Op("Id")
	opJW   = Op("JW")
	opCu   = Op("Cu")
	opCd   = Op("Cd")
	opCdu  = Op("Cdu")
	opCdd  = Op("Cdd")
	opNu   = Op("Nu")
	opNd   = Op("Nd")
	opNuNd = Op("NuNd")
	opNtot = Op("Ntot")

	opCuCd   = Prod("Cu", "Cd")
	opCdCu   = Prod("Cd", "Cu")
	opCddCdu = Prod("Cdd", "Cdu")
	opCduCdd = Prod("Cdu", "Cdd")
)

// Basis states, indexed by n_up + 2*n_down.
var stateNames = []string{"empty", "up", "down", "full"}

var elementary = map[string][][]float64{
	// JW is the Jordan-Wigner string (-1)^(n_up+n_down).
	"JW": {
		{1, 0, 0, 0},
		{0, -1, 0, 0},
		{0, 0, -1, 0},
		{0, 0, 0, 1},
	},
	"JWu": {
		{1, 0, 0, 0},
		{0, -1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, -1},
	},
	"JWd": {
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, -1, 0},
		{0, 0, 0, -1},
	},
	// The up flavor is ordered before the down flavor, so Cd carries the local string JWu.
	"Cu": {
		{0, 1, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 1},
		{0, 0, 0, 0},
	},
	"Cd": {
		{0, 0, 1, 0},
		{0, 0, 0, -1},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
	"Nu": {
		{0, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 1},
	},
	"Nd": {
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	},
	"NuNd": {
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 1},
	},
	"Ntot": {
		{0, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 2},
	},
	"Sz": {
		{0, 0, 0, 0},
		{0, 0.5, 0, 0},
		{0, 0, -0.5, 0},
		{0, 0, 0, 0},
	},
	// Sp is Cdu @ Cd.
	"Sp": {
		{0, 0, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
}

// SiteOptions are options for building a site.
type SiteOptions struct {
	conserve    []ChargeLabel
	position    int
	hasPosition bool
	products    []OpKey
}

// NewSiteOptions returns the default site options: particle number and spin conserved, and the products used by the dipolar hopping terms.
func NewSiteOptions() SiteOptions {
	opt := SiteOptions{}
	opt.conserve = []ChargeLabel{ChargeN, ChargeSz}
	opt.products = []OpKey{opCuCd, opCdCu, opCddCdu, opCduCdd}
	return opt
}

// Conserve sets the conserved quantum numbers.
func (opt SiteOptions) Conserve(labels ...ChargeLabel) SiteOptions {
	opt.conserve = slices.Clone(labels)
	return opt
}

// Position sets the lattice position, which the dipole label depends on.
func (opt SiteOptions) Position(x int) SiteOptions {
	opt.position = x
	opt.hasPosition = true
	return opt
}

// Products sets the composite operators derived during construction.
func (opt SiteOptions) Products(keys ...OpKey) SiteOptions {
	opt.products = slices.Clone(keys)
	return opt
}

// Site is the local Hilbert space of a spin-1/2 fermion.
// A Site is immutable after construction and may be shared by any number of lattices and terms.
type Site struct {
	conserve []ChargeLabel
	position int

	charges []Charge
	parity  []int

	ops      map[OpKey]*mat.COO
	odd      map[OpKey]bool
	opCharge map[OpKey]Charge
}

// NewSite builds a site.
func NewSite(opt SiteOptions) (*Site, error) {
	var track struct{ n, sz, d bool }
	for _, l := range opt.conserve {
		switch l {
		case ChargeN:
			track.n = true
		case ChargeSz:
			track.sz = true
		case ChargeD:
			track.d = true
		default:
			return nil, errors.Wrapf(ErrConfiguration, "unknown conserved label %q", l)
		}
	}
	if track.d && !track.n {
		return nil, errors.Wrapf(ErrConfiguration, "dipole conservation requires particle number conservation %v", opt.conserve)
	}
	if track.d && !opt.hasPosition {
		return nil, errors.Wrapf(ErrConfiguration, "dipole conservation requires a position")
	}
	if opt.hasPosition && opt.position < 0 {
		return nil, errors.Wrapf(ErrConfiguration, "position %d", opt.position)
	}

	s := &Site{
		conserve: slices.Clone(opt.conserve),
		position: -1,
		ops:      make(map[OpKey]*mat.COO),
		odd:      make(map[OpKey]bool),
		opCharge: make(map[OpKey]Charge),
	}
	if opt.hasPosition {
		s.position = opt.position
	}
	for i := range stateNames {
		nUp, nDown := i&1, i>>1
		var q Charge
		if track.n {
			q[0] = nUp + nDown
		}
		if track.sz {
			q[1] = nUp - nDown
		}
		if track.d {
			q[2] = opt.position * (nUp + nDown)
		}
		s.charges = append(s.charges, q)
		s.parity = append(s.parity, (nUp+nDown)%2)
	}

	if err := s.register(opId, mat.COOIdentity(len(stateNames))); err != nil {
		return nil, errors.Wrap(err, "")
	}
	for name, dense := range elementary {
		if err := s.register(Op(name), mat.M(dense)); err != nil {
			return nil, errors.Wrap(err, name)
		}
	}
	if err := s.register(Op("Cdu"), s.ops[opCu].T()); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := s.register(Op("Cdd"), s.ops[opCd].T()); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := s.register(Op("Sm"), s.ops[Op("Sp")].T()); err != nil {
		return nil, errors.Wrap(err, "")
	}

	for _, k := range opt.products {
		if err := s.derive(k); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return s, nil
}

// derive registers the product of the two elementary factors of k.
// Deriving an existing product overwrites it with the same matrix.
func (s *Site) derive(k OpKey) error {
	if !k.IsProduct() {
		return errors.Wrapf(ErrLookup, "%q is not a product", k)
	}
	a, ok := s.ops[Op(k[0])]
	if !ok {
		return errors.Wrapf(ErrLookup, "operator %q", k[0])
	}
	b, ok := s.ops[Op(k[1])]
	if !ok {
		return errors.Wrapf(ErrLookup, "operator %q", k[1])
	}
	p := mat.Mul(a, b)
	if old, ok := s.ops[k]; ok && !old.Equal(p) {
		return errors.Errorf("%q changed from %s to %s", k, old, p)
	}
	return s.register(k, p)
}

func (s *Site) register(k OpKey, m *mat.COO) error {
	if m.NumNonZero() == 0 {
		return errors.Wrapf(ErrLookup, "%q is zero", k)
	}
	var odd, even bool
	var q Charge
	first := true
	var err error
	m.Each(func(i, j int, v float64) {
		if s.parity[i] != s.parity[j] {
			odd = true
		} else {
			even = true
		}
		dq := s.charges[i].Sub(s.charges[j])
		switch {
		case first:
			q = dq
			first = false
		case dq != q && err == nil:
			err = errors.Errorf("%q has no definite charge %v %v", k, q, dq)
		}
	})
	if err != nil {
		return err
	}
	if odd && even {
		return errors.Errorf("%q has no definite fermion parity", k)
	}

	s.ops[k] = m
	s.odd[k] = odd
	s.opCharge[k] = q
	return nil
}

// Dim returns the local dimension.
func (s *Site) Dim() int { return len(s.charges) }

// Position returns the lattice position of a position dependent site.
func (s *Site) Position() (int, bool) { return s.position, s.position >= 0 }

// Conserved returns the conserved quantum numbers.
func (s *Site) Conserved() []ChargeLabel { return slices.Clone(s.conserve) }

// Charges returns the charge of each basis state.
func (s *Site) Charges() []Charge { return slices.Clone(s.charges) }

// StateIndex returns the basis index of a named state.
func (s *Site) StateIndex(name string) (int, error) {
	i := slices.Index(stateNames, name)
	if i < 0 {
		return -1, errors.Wrapf(ErrLookup, "state %q", name)
	}
	return i, nil
}

// Op returns the matrix of an operator.
// The matrix is shared and must not be modified.
func (s *Site) Op(k OpKey) (*mat.COO, error) {
	m, ok := s.ops[k]
	if !ok {
		return nil, errors.Wrapf(ErrLookup, "operator %q", k)
	}
	return m, nil
}

// Odd reports whether an operator has odd fermion parity.
func (s *Site) Odd(k OpKey) (bool, error) {
	odd, ok := s.odd[k]
	if !ok {
		return false, errors.Wrapf(ErrLookup, "operator %q", k)
	}
	return odd, nil
}

// OpCharge returns the charge an operator adds to a state.
func (s *Site) OpCharge(k OpKey) (Charge, error) {
	q, ok := s.opCharge[k]
	if !ok {
		return Charge{}, errors.Wrapf(ErrLookup, "operator %q", k)
	}
	return q, nil
}
