package dipolar

import (
	"slices"

	"github.com/pkg/errors"
)

// Boundary is the boundary condition of the lattice geometry.
type Boundary int

const (
	BoundaryOpen Boundary = iota
	BoundaryPeriodic
)

func (b Boundary) String() string {
	switch b {
	case BoundaryOpen:
		return "open"
	case BoundaryPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

// ParseBoundary parses "open" or "periodic".
func ParseBoundary(s string) (Boundary, error) {
	switch s {
	case "open":
		return BoundaryOpen, nil
	case "periodic":
		return BoundaryPeriodic, nil
	default:
		return 0, errors.Wrapf(ErrConfiguration, "boundary %q", s)
	}
}

// MPSBoundary is the boundary condition of the matrix product state.
type MPSBoundary int

const (
	MPSFinite MPSBoundary = iota
	MPSInfinite
)

func (b MPSBoundary) String() string {
	switch b {
	case MPSFinite:
		return "finite"
	case MPSInfinite:
		return "infinite"
	default:
		return "unknown"
	}
}

// Order is the ordering of lattice sites in the matrix product state.
type Order int

const (
	OrderDefault Order = iota
	// OrderFolded interleaves both ends of the chain, which keeps periodic couplings short.
	OrderFolded
)

// Lattice is a one dimensional arrangement of a unit cell of sites.
type Lattice struct {
	unit  []*Site
	cells int

	bc    Boundary
	bcMPS MPSBoundary

	// order[k] is the lattice index of the k-th matrix product state site.
	order []int
	// mpsIndex is the inverse of order.
	mpsIndex []int
}

// NewLattice arranges sites on a chain of the given length.
// A single site is repeated on every position.
// Otherwise one site per position is required, which is the case when conserved labels depend on the position.
func NewLattice(length int, sites []*Site, bc Boundary, bcMPS MPSBoundary, order Order) (*Lattice, error) {
	if length < 1 {
		return nil, errors.Wrapf(ErrConfiguration, "length %d", length)
	}
	lat := &Lattice{bc: bc, bcMPS: bcMPS}
	switch len(sites) {
	case 1:
		lat.unit, lat.cells = slices.Clone(sites), length
	case length:
		lat.unit, lat.cells = slices.Clone(sites), 1
	default:
		return nil, errors.Wrapf(ErrConfiguration, "%d sites for length %d", len(sites), length)
	}
	for i, s := range lat.unit {
		if s == nil {
			return nil, errors.Wrapf(ErrConfiguration, "nil site %d", i)
		}
		x, ok := s.Position()
		switch {
		case !ok:
		case lat.cells > 1:
			return nil, errors.Wrapf(ErrConfiguration, "site at position %d repeated over %d cells", x, lat.cells)
		case x != i:
			return nil, errors.Wrapf(ErrConfiguration, "site at position %d placed at %d", x, i)
		}
	}
	if bcMPS == MPSInfinite && bc != BoundaryPeriodic {
		return nil, errors.Wrapf(ErrConfiguration, "infinite matrix product state with %s boundary", bc)
	}

	n := lat.N()
	switch order {
	case OrderDefault:
		for i := range n {
			lat.order = append(lat.order, i)
		}
	case OrderFolded:
		for i := range (n + 1) / 2 {
			lat.order = append(lat.order, i)
			if j := n - 1 - i; j != i {
				lat.order = append(lat.order, j)
			}
		}
	default:
		return nil, errors.Wrapf(ErrConfiguration, "order %d", order)
	}
	lat.mpsIndex = make([]int, n)
	for k, i := range lat.order {
		lat.mpsIndex[i] = k
	}
	return lat, nil
}

// N returns the number of sites.
func (l *Lattice) N() int { return len(l.unit) * l.cells }

// Cells returns the number of unit cells.
func (l *Lattice) Cells() int { return l.cells }

// UnitSize returns the number of sites in a unit cell.
func (l *Lattice) UnitSize() int { return len(l.unit) }

func (l *Lattice) Boundary() Boundary { return l.bc }

func (l *Lattice) MPSBoundary() MPSBoundary { return l.bcMPS }

// Index returns the lattice index of a site in a unit cell.
func (l *Lattice) Index(cell, unit int) int { return cell*len(l.unit) + unit }

// Site returns the site at a lattice index.
func (l *Lattice) Site(i int) *Site { return l.unit[i%len(l.unit)] }

// Positions returns the coordinate of every lattice site.
func (l *Lattice) Positions() []float64 {
	pos := make([]float64, l.N())
	for i := range pos {
		pos[i] = float64(i)
	}
	return pos
}

// Order returns the lattice index of every matrix product state site.
func (l *Lattice) Order() []int { return slices.Clone(l.order) }

// MPSIndex returns the matrix product state position of a lattice index.
func (l *Lattice) MPSIndex(i int) int { return l.mpsIndex[i] }

// MPSSites returns the sites in matrix product state order.
func (l *Lattice) MPSSites() []*Site {
	sites := make([]*Site, 0, l.N())
	for _, i := range l.order {
		sites = append(sites, l.Site(i))
	}
	return sites
}
