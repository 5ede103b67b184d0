package mps_test

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"github.com/fumin/dipolar"
	"github.com/fumin/dipolar/mps"
)

func Example() {
	// Create a dipole conserving Hubbard chain of length 4.
	h, err := dipolar.DipolarFermiHubbardConserved(dipolar.Params{L: 4, T: 1, TP: 1, U: 2})
	if err != nil {
		log.Fatalf("%+v", err)
	}
	w, err := mps.NewMPO(h)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	// Start from a scrambled half filled state with zero spin.
	psi, err := mps.NewProductState(h.Lattice().MPSSites(), []int{1, 2, 1, 2})
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if err := psi.RandomUnitaryEvolution(2, 16, rand.New(rand.NewPCG(1, 1))); err != nil {
		log.Fatalf("%+v", err)
	}

	// Search for the ground state.
	engine, err := mps.NewEngine(psi, w, 1)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	for sweep := range 10 {
		p := mps.SweepParams{ChiMax: 64, SVDMin: 1e-12, LanczosMin: 2, LanczosMax: 30}
		if sweep < 5 {
			p.MixerAmplitude = 1e-3
		}
		if _, err := engine.Sweep(p); err != nil {
			log.Fatalf("%+v", err)
		}
	}

	// Compare with exact diagonalization in the same charge sector.
	exact, _, err := dipolar.SectorGroundState(h, psi.Charge())
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("charge %v\n", engine.State().Charge())
	fmt.Printf("matches exact diagonalization: %t\n", math.Abs(engine.Energy()-exact.Val) < 1e-8)

	// Output:
	// charge N=4 2Sz=0 D=6
	// matches exact diagonalization: true
}
