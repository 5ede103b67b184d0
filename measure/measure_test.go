package measure

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"github.com/fumin/dipolar"
	"github.com/fumin/dipolar/mps"
)

func TestMeasureProductState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state  []int
		nu, nd []float64
		corr   int
	}{
		{state: []int{1, 2, 1, 2, 1, 2}, nu: []float64{1, 0, 1, 0, 1, 0}, nd: []float64{0, 1, 0, 1, 0, 1}, corr: 1},
		{state: []int{3, 0, 3, 0, 3, 0, 3, 0, 3}, nu: []float64{1, 0, 1, 0, 1, 0, 1, 0, 1}, nd: []float64{1, 0, 1, 0, 1, 0, 1, 0, 1}, corr: 3},
		{state: []int{1, 2}, nu: []float64{1, 0}, nd: []float64{0, 1}, corr: 0},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.state), func(t *testing.T) {
			t.Parallel()
			h, err := dipolar.DipolarFermiHubbardConserved(dipolar.Params{L: len(test.state), T: 1, TP: 1, U: 20})
			if err != nil {
				t.Fatalf("%+v", err)
			}
			lat := h.Lattice()
			psi, err := mps.NewProductState(lat.MPSSites(), test.state)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			res, err := Measure(psi, lat, NewOptions())
			if err != nil {
				t.Fatalf("%+v", err)
			}

			approx := cmpopts.EquateApprox(0, 1e-12)
			if diff := cmp.Diff(test.nu, res.Density["Nu"], approx); diff != "" {
				t.Fatalf("%s", diff)
			}
			if diff := cmp.Diff(test.nd, res.Density["Nd"], approx); diff != "" {
				t.Fatalf("%s", diff)
			}
			if diff := cmp.Diff(make([]float64, len(test.state)-1), res.Entropy, approx); diff != "" {
				t.Fatalf("%s", diff)
			}
			for _, ch := range Channels {
				if diff := cmp.Diff(make([]float64, test.corr), res.Correlations[ch], approx, cmpopts.EquateEmpty()); diff != "" {
					t.Fatalf("%s %s", ch, diff)
				}
			}
			if res.Anchor != len(test.state)/3 || res.Window != len(test.state)/3 {
				t.Fatalf("%d %d", res.Anchor, res.Window)
			}
		})
	}
}

func TestMeasureExact(t *testing.T) {
	t.Parallel()
	const l = 6
	h, err := dipolar.DipolarFermiHubbardConserved(dipolar.Params{L: l, T: 1, TP: 0.8, U: 1.5})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	lat := h.Lattice()
	psi, err := mps.NewProductState(lat.MPSSites(), []int{1, 2, 3, 0, 1, 2})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := psi.RandomUnitaryEvolution(2, 32, rand.New(rand.NewPCG(1, 1))); err != nil {
		t.Fatalf("%+v", err)
	}
	w, err := mps.NewMPO(h)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	engine, err := mps.NewEngine(psi, w, 3)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for sweep := range 3 {
		p := mps.SweepParams{ChiMax: 32, MixerAmplitude: 1e-3 / float64(sweep+1), SVDMin: 1e-12, LanczosMin: 2, LanczosMax: 10}
		if _, err := engine.Sweep(p); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	psi = engine.State()

	res, err := Measure(psi, lat, NewOptions().Anchor(0).Window(4))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	v := denseVector(psi)

	density := func(op string, i int) float64 {
		return exactExpectation(t, lat, v, dipolar.TermOp{Op: dipolar.Op(op), Unit: i})
	}
	for _, op := range []string{"Nu", "Nd"} {
		for i := range l {
			if e := density(op, i); math.Abs(res.Density[op][i]-e) > 1e-10 {
				t.Fatalf("%s %d %f %f", op, i, res.Density[op][i], e)
			}
		}
	}

	flavors := map[byte][2]string{'u': {"Cdu", "Cu"}, 'd': {"Cdd", "Cd"}}
	for _, ch := range Channels {
		a, b := flavors[ch[0]], flavors[ch[1]]
		// The window of 4 is cut to the separations 0, 1 and 2.
		if len(res.Correlations[ch]) != 3 {
			t.Fatalf("%s %v", ch, res.Correlations[ch])
		}
		for i, got := range res.Correlations[ch] {
			e := exactExpectation(t, lat, v,
				dipolar.TermOp{Op: dipolar.Op(a[0]), Unit: 1}, dipolar.TermOp{Op: dipolar.Op(a[1]), Unit: 0},
				dipolar.TermOp{Op: dipolar.Op(b[0]), Unit: 2 + i}, dipolar.TermOp{Op: dipolar.Op(b[1]), Unit: 3 + i})
			if math.Abs(got-math.Abs(e)) > 1e-10 {
				t.Fatalf("%s %d %f %f", ch, i, got, e)
			}
		}
	}
}

func TestMeasureErrors(t *testing.T) {
	t.Parallel()
	h, err := dipolar.DipolarFermiHubbardConserved(dipolar.Params{L: 4, T: 1, TP: 1, U: 1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	lat := h.Lattice()
	psi, err := mps.NewProductState(lat.MPSSites(), []int{1, 2, 1, 2})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := Measure(psi, lat, NewOptions().Anchor(-1)); !errors.Is(err, dipolar.ErrConfiguration) {
		t.Fatalf("%+v", err)
	}
	if _, err := Measure(psi, lat, NewOptions().Densities("Nx")); !errors.Is(err, dipolar.ErrLookup) {
		t.Fatalf("%+v", err)
	}

	short, err := mps.NewProductState(lat.MPSSites()[:3], []int{1, 2, 1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := Measure(short, lat, NewOptions()); err == nil {
		t.Fatalf("expected error")
	}
}

// exactExpectation returns <v|O|v> / <v|v> for the product O of ops, built by exact diagonalization.
func exactExpectation(t *testing.T, lat *dipolar.Lattice, v []float64, ops ...dipolar.TermOp) float64 {
	m := dipolar.NewModel(lat)
	m.AddMultiCoupling(1, ops...)
	h, err := m.Finalize()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	var num, norm2 float64
	dipolar.ExactHamiltonian(h).Each(func(i, j int, x float64) { num += v[i] * x * v[j] })
	for _, x := range v {
		norm2 += x * x
	}
	return num / norm2
}

// denseVector returns the amplitudes of psi, the first site being the most significant digit.
func denseVector(psi *mps.MPS) []float64 {
	v := []float64{1}
	rows, bond := 1, 1
	for i := range psi.L() {
		a := psi.Tensor(i)
		d, dr := a.Shape[1], a.Shape[2]
		next := make([]float64, rows*d*dr)
		for p := range rows {
			for l := range bond {
				c := v[p*bond+l]
				if c == 0 {
					continue
				}
				for s := range d {
					for r := range dr {
						next[(p*d+s)*dr+r] += c * a.At(l, s, r)
					}
				}
			}
		}
		v, rows, bond = next, rows*d, dr
	}
	return v
}
