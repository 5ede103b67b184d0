package experiment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fumin/dipolar"
	"github.com/fumin/dipolar/dmrg"
	"github.com/fumin/dipolar/figure"
	"github.com/fumin/dipolar/measure"
	"github.com/fumin/dipolar/mps"
	"github.com/fumin/dipolar/store"
)

const figureDir = "figures"

// Report is the outcome of Run.
type Report struct {
	Run         store.Run
	Result      dmrg.Result
	Measurement measure.Result
	StatePath   string
	// Figures lists the plotted images, if any.
	Figures []string
}

// Model builds the Hamiltonian of a configuration.
func Model(cfg Config) (*dipolar.Hamiltonian, error) {
	if cfg.Conserved {
		h, err := dipolar.DipolarFermiHubbardConserved(cfg.Params())
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		return h, nil
	}
	bc, err := dipolar.ParseBoundary(cfg.Boundary)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	h, err := dipolar.DipolarFermiHubbard(cfg.Params(), bc, dipolar.ChargeN, dipolar.ChargeSz)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}

// InitialState returns the product state of the configured recipe.
func InitialState(cfg Config, lat *dipolar.Lattice) (*mps.MPS, error) {
	names, err := initialState(cfg.InitState, lat.N())
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	state := make([]int, lat.N())
	for i, name := range names {
		s, err := lat.Site(i).StateIndex(name)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		state[lat.MPSIndex(i)] = s
	}
	psi, err := mps.NewProductState(lat.MPSSites(), state)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return psi, nil
}

// Run searches for the ground state, measures it, and saves the observables and the state under cfg.Path.
// Metrics are registered with reg unless it is nil.
func Run(ctx context.Context, cfg Config, logger *zap.Logger, reg prometheus.Registerer) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return Report{}, errors.Wrap(err, "")
	}
	logger = logger.With(zap.Int("L", cfg.L), zap.Float64("t", cfg.T), zap.Float64("tp", cfg.TP), zap.Float64("U", cfg.U))

	h, err := Model(cfg)
	if err != nil {
		return Report{}, errors.Wrap(err, "")
	}
	w, err := mps.NewMPO(h)
	if err != nil {
		return Report{}, errors.Wrap(err, "")
	}
	logger.Info("model", zap.Bool("conserved", cfg.Conserved), zap.Int("terms", len(h.Terms())), zap.Ints("mpo", w.BondDims()))

	psi, err := InitialState(cfg, h.Lattice())
	if err != nil {
		return Report{}, errors.Wrap(err, "")
	}
	if cfg.Random {
		rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
		if err := psi.RandomUnitaryEvolution(cfg.RandomSteps, cfg.RandomChi, rng); err != nil {
			return Report{}, errors.Wrap(err, "")
		}
	}
	logger.Info("initial state", zap.String("recipe", cfg.InitState), zap.Stringer("charge", psi.Charge()), zap.Ints("bonds", psi.BondDims()))

	engine, err := mps.NewEngine(psi, w, cfg.Seed)
	if err != nil {
		return Report{}, errors.Wrap(err, "")
	}
	driver := dmrg.NewDriver(engine, cfg.options(), logger, dmrg.NewMetrics(reg))
	res, err := driver.Run(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "")
	}

	m, err := measure.Measure(res.Psi, h.Lattice(), measure.NewOptions())
	if err != nil {
		return Report{}, errors.Wrap(err, "")
	}

	run := store.Run{ID: uuid.New(), Params: cfg.Params(), Energy: res.Energy, Converged: res.Converged, Sweeps: res.Sweeps}
	if err := store.Save(ctx, cfg.Path, res.Psi, m, run); err != nil {
		return Report{}, errors.Wrap(err, "")
	}
	report := Report{Run: run, Result: res, Measurement: m, StatePath: store.StatePath(cfg.Path, run.Params)}
	logger.Info("saved", zap.Stringer("id", run.ID), zap.String("state", report.StatePath), zap.Float64("energy", res.Energy), zap.Stringer("outcome", res.State))

	if cfg.Plot {
		figs, err := plot(cfg, m)
		if err != nil {
			return Report{}, errors.Wrap(err, "")
		}
		report.Figures = figs
	}
	return report, nil
}

// Exact returns the exact ground state energy in the charge sector of the configured initial state,
// together with the sector dimension.
func Exact(cfg Config) (float64, int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, 0, errors.Wrap(err, "")
	}
	h, err := Model(cfg)
	if err != nil {
		return 0, 0, errors.Wrap(err, "")
	}
	psi, err := InitialState(cfg, h.Lattice())
	if err != nil {
		return 0, 0, errors.Wrap(err, "")
	}
	vv, sector, err := dipolar.SectorGroundState(h, psi.Charge())
	if err != nil {
		return 0, 0, errors.Wrap(err, "")
	}
	return vv.Val, len(sector), nil
}

// WriteHamiltonian writes the many-body Hamiltonian of a configuration to dir in coordinate format.
func WriteHamiltonian(cfg Config, dir string) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "")
	}
	h, err := Model(cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := dipolar.ExactHamiltonian(h).WriteCOO(dir); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func plot(cfg Config, m measure.Result) ([]string, error) {
	name := fmt.Sprintf("L_%d_t_%.2f_tp_%.2f_U_%.2f", cfg.L, cfg.T, cfg.TP, cfg.U)
	title := fmt.Sprintf("L=%d t=%g t'=%g U=%g", cfg.L, cfg.T, cfg.TP, cfg.U)
	profiles := filepath.Join(cfg.Path, figureDir, "profiles_"+name+".png")
	if err := figure.Profiles(profiles, title, m); err != nil {
		return nil, errors.Wrap(err, "")
	}
	correlations := filepath.Join(cfg.Path, figureDir, "correlations_"+name+".png")
	if err := figure.Correlations(correlations, title, m); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return []string{profiles, correlations}, nil
}
