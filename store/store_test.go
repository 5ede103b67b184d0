package store

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/fumin/dipolar"
	"github.com/fumin/dipolar/measure"
	"github.com/fumin/dipolar/mps"
)

func randomState(t *testing.T, p dipolar.Params) (*mps.MPS, *dipolar.Lattice) {
	h, err := dipolar.DipolarFermiHubbardConserved(p)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	state := make([]int, 0, p.L)
	for i := range p.L {
		state = append(state, 1+i%2)
	}
	psi, err := mps.NewProductState(h.Lattice().MPSSites(), state)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := psi.RandomUnitaryEvolution(3, 16, rand.New(rand.NewPCG(7, 8))); err != nil {
		t.Fatalf("%+v", err)
	}
	return psi, h.Lattice()
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := dipolar.Params{L: 6, T: 1, TP: 0.5, U: 20}
	psi, lat := randomState(t, p)
	run := Run{ID: uuid.New(), Params: p, Energy: -1.25, Converged: true, Sweeps: 12}

	path := StatePath(dir, p)
	if filepath.Base(path) != "psi_L_6_t_1.00_tp_0.50_U_20.00.db" {
		t.Fatalf("%s", path)
	}
	ctx := context.Background()
	if err := SaveState(ctx, path, psi, run); err != nil {
		t.Fatalf("%+v", err)
	}
	// Saving again replaces the database.
	if err := SaveState(ctx, path, psi, run); err != nil {
		t.Fatalf("%+v", err)
	}
	loaded, loadedRun, err := LoadState(ctx, path)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := cmp.Diff(run, loadedRun); diff != "" {
		t.Fatalf("%s", diff)
	}
	if loaded.Center() != psi.Center() || loaded.Charge() != psi.Charge() {
		t.Fatalf("%s %s", loaded, psi)
	}
	for i := range psi.L() {
		if diff := cmp.Diff(psi.Tensor(i), loaded.Tensor(i)); diff != "" {
			t.Fatalf("site %d %s", i, diff)
		}
		if diff := cmp.Diff(psi.PhysicalCharges(i), loaded.PhysicalCharges(i)); diff != "" {
			t.Fatalf("site %d %s", i, diff)
		}
	}
	for i := range psi.L() + 1 {
		if diff := cmp.Diff(psi.BondCharges(i), loaded.BondCharges(i)); diff != "" {
			t.Fatalf("bond %d %s", i, diff)
		}
	}

	expected, err := measure.Measure(psi, lat, measure.NewOptions())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	got, err := measure.Measure(loaded, lat, measure.NewOptions())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("%s", diff)
	}

	if _, _, err := LoadState(ctx, filepath.Join(dir, "missing.db")); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("%+v", err)
	}
}

func TestSave(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := dipolar.Params{L: 6, T: 1, TP: 1, U: 20}
	psi, lat := randomState(t, p)
	res, err := measure.Measure(psi, lat, measure.NewOptions())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	run := Run{ID: uuid.New(), Params: p, Energy: -3.5, Sweeps: 100}

	ctx := context.Background()
	for range 2 {
		if err := Save(ctx, dir, psi, res, run); err != nil {
			t.Fatalf("%+v", err)
		}
	}

	paths := LogPaths(dir)
	expected := map[string][]float64{
		"EE":      res.Entropy,
		"Nu":      res.Density["Nu"],
		"Nd":      res.Density["Nd"],
		"summary": {run.Energy, res.MaxEntropy()},
	}
	for _, ch := range measure.Channels {
		expected[ch] = res.Correlations[ch]
	}
	for name, values := range expected {
		rows, err := ReadLog(paths[name])
		if err != nil {
			t.Fatalf("%+v", err)
		}
		row := append([]float64{p.T, p.TP, p.U}, values...)
		if diff := cmp.Diff([][]float64{row, row}, rows); diff != "" {
			t.Fatalf("%s %s", name, diff)
		}
	}
	if _, err := os.Stat(StatePath(dir, p)); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestReadLogPartialLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		content string
		rows    [][]float64
	}{
		{content: "1 0.5 20 -3\n1 0.5 20 -4", rows: [][]float64{{1, 0.5, 20, -3}}},
		{content: "1 0.5 20 -3\n", rows: [][]float64{{1, 0.5, 20, -3}}},
		{content: "1 0.5", rows: [][]float64{}},
		{content: "", rows: [][]float64{}},
	}
	for i, test := range tests {
		path := filepath.Join(t.TempDir(), "log.txt")
		if err := os.WriteFile(path, []byte(test.content), 0644); err != nil {
			t.Fatalf("%+v", err)
		}
		rows, err := ReadLog(path)
		if err != nil {
			t.Fatalf("%d %+v", i, err)
		}
		if diff := cmp.Diff(test.rows, rows); diff != "" {
			t.Fatalf("%d %s", i, diff)
		}
	}
}
