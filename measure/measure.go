// Package measure evaluates observables of a ground state.
package measure

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/fumin/dipolar"
	"github.com/fumin/dipolar/mps"
)

// Correlation channels.
const (
	ChannelUU = "uu"
	ChannelDD = "dd"
	ChannelUD = "ud"
)

// Channels lists the correlation channels in output order.
var Channels = []string{ChannelUU, ChannelDD, ChannelUD}

// Options are options of Measure.
type Options struct {
	anchor    int
	hasAnchor bool
	window    int
	hasWindow bool
	densities []string
}

// NewOptions returns options whose anchor and window are a third of the chain length.
func NewOptions() Options {
	opt := Options{}
	opt.densities = []string{"Nu", "Nd"}
	return opt
}

// Anchor sets the first site of the reference pair.
func (opt Options) Anchor(i int) Options {
	opt.anchor = i
	opt.hasAnchor = true
	return opt
}

// Window sets the number of separations.
func (opt Options) Window(r int) Options {
	opt.window = r
	opt.hasWindow = true
	return opt
}

// Densities sets the local operators measured on every site.
func (opt Options) Densities(ops ...string) Options {
	opt.densities = ops
	return opt
}

// Result holds the measured observables.
type Result struct {
	// Entropy is the entanglement entropy of every bond.
	Entropy []float64
	// Density maps an operator name to its expectation value on every site.
	Density map[string][]float64
	// Correlations maps a channel to the absolute dipole correlation at increasing separations.
	Correlations map[string][]float64
	// Anchor and Window are the reference site and the requested number of separations.
	Anchor int
	Window int
}

// MaxEntropy returns the largest bond entropy.
func (r Result) MaxEntropy() float64 {
	var m float64
	for _, s := range r.Entropy {
		m = max(m, s)
	}
	return m
}

// Measure evaluates the entanglement entropy, the densities and the dipole correlations of psi on lat.
//
// The correlation of channel ab at separation i is
// <Cda(I0+1) Ca(I0) Cdb(I0+2+i) Cb(I0+3+i)>, for the anchor I0.
// Separations whose last site is outside the chain are not evaluated.
func Measure(psi *mps.MPS, lat *dipolar.Lattice, opt Options) (Result, error) {
	l := lat.N()
	if psi.L() != l {
		return Result{}, errors.Errorf("%d sites, lattice of %d", psi.L(), l)
	}
	res := Result{Anchor: l / 3, Window: l / 3, Density: make(map[string][]float64), Correlations: make(map[string][]float64)}
	if opt.hasAnchor {
		res.Anchor = opt.anchor
	}
	if opt.hasWindow {
		res.Window = opt.window
	}
	if res.Anchor < 0 || res.Window < 0 {
		return Result{}, errors.Wrapf(dipolar.ErrConfiguration, "anchor %d window %d", res.Anchor, res.Window)
	}

	var err error
	res.Entropy, err = psi.EntanglementEntropy()
	if err != nil {
		return Result{}, errors.Wrap(err, "")
	}

	for _, name := range opt.densities {
		vs := make([]float64, 0, l)
		for i := range l {
			v, err := expectation(psi, lat, at{dipolar.Op(name), i})
			if err != nil {
				return Result{}, errors.Wrap(err, fmt.Sprintf("%s %d", name, i))
			}
			vs = append(vs, v)
		}
		res.Density[name] = vs
	}

	flavors := map[byte]struct{ create, annihilate dipolar.OpKey }{
		'u': {dipolar.Op("Cdu"), dipolar.Op("Cu")},
		'd': {dipolar.Op("Cdd"), dipolar.Op("Cd")},
	}
	for _, ch := range Channels {
		a, b := flavors[ch[0]], flavors[ch[1]]
		vs := make([]float64, 0, res.Window)
		for i := range res.Window {
			i0 := res.Anchor
			if i0+3+i >= l {
				break
			}
			v, err := expectation(psi, lat,
				at{a.create, i0 + 1}, at{a.annihilate, i0},
				at{b.create, i0 + 2 + i}, at{b.annihilate, i0 + 3 + i})
			if err != nil {
				return Result{}, errors.Wrap(err, fmt.Sprintf("%s %d", ch, i))
			}
			vs = append(vs, math.Abs(v))
		}
		res.Correlations[ch] = vs
	}
	return res, nil
}

// at is an operator at a lattice site.
type at struct {
	op   dipolar.OpKey
	site int
}

// expectation returns the expectation value of the product of ops, applied right to left.
func expectation(psi *mps.MPS, lat *dipolar.Lattice, ops ...at) (float64, error) {
	t := dipolar.Term{Coeff: 1}
	for _, o := range ops {
		f, err := lat.Resolve(o.site, o.op)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		t.Factors = append(t.Factors, f)
	}
	p, err := lat.Place(t)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	v, err := psi.Expectation(p)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return v, nil
}
