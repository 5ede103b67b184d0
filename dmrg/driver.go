package dmrg

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fumin/dipolar"
	"github.com/fumin/dipolar/mps"
	"github.com/fumin/dipolar/util"
)

// ErrSolver marks failures of the solver, which abort a run.
var ErrSolver = errors.New("solver failure")

// Solver performs sweeps on a state it owns.
// *mps.Engine is a Solver.
type Solver interface {
	Sweep(p mps.SweepParams) (mps.SweepStats, error)
	Entropy() ([]float64, error)
	State() *mps.MPS
}

// State is the state of a run.
type State int

const (
	StateInitializing State = iota
	StateSweeping
	StateConverged
	StateSweepBudgetExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateSweeping:
		return "Sweeping"
	case StateConverged:
		return "Converged"
	case StateSweepBudgetExhausted:
		return "SweepBudgetExhausted"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options are options of a run.
type Options struct {
	maxSweeps  int
	minSweeps  int
	maxEErr    float64
	maxSErr    float64
	svdMin     float64
	lanczosMin int
	lanczosMax int
	schedule   Schedule
	mixer      Mixer
	progress   time.Duration
}

// NewOptions returns the default options.
// The schedule is fixed at chi 64 and the mixer is off.
func NewOptions() Options {
	opt := Options{}
	opt.maxSweeps = 100
	opt.minSweeps = 1
	opt.maxEErr = 1e-9
	opt.maxSErr = 1e-9
	opt.svdMin = 1e-9
	opt.lanczosMin = 3
	opt.lanczosMax = 3
	opt.schedule = Schedule{sweeps: []int{0}, ceilings: []int{64}}
	opt.progress = 10 * time.Second
	return opt
}

// MaxSweeps sets the sweep budget.
func (opt Options) MaxSweeps(n int) Options {
	opt.maxSweeps = n
	return opt
}

// MinSweeps sets the number of sweeps before convergence is tested.
func (opt Options) MinSweeps(n int) Options {
	opt.minSweeps = n
	return opt
}

// MaxEErr sets the energy convergence threshold.
func (opt Options) MaxEErr(e float64) Options {
	opt.maxEErr = e
	return opt
}

// MaxSErr sets the entropy convergence threshold.
func (opt Options) MaxSErr(e float64) Options {
	opt.maxSErr = e
	return opt
}

// SVDMin sets the relative cutoff of Schmidt values.
func (opt Options) SVDMin(v float64) Options {
	opt.svdMin = v
	return opt
}

// Lanczos sets the bounds on the number of Krylov vectors of each update.
func (opt Options) Lanczos(minIter, maxIter int) Options {
	opt.lanczosMin = minIter
	opt.lanczosMax = maxIter
	return opt
}

// Schedule sets the bond dimension schedule.
func (opt Options) Schedule(s Schedule) Options {
	opt.schedule = s
	return opt
}

// Mixer sets the mixer.
func (opt Options) Mixer(m Mixer) Options {
	opt.mixer = m
	return opt
}

// Progress sets the minimum interval between info level progress logs.
func (opt Options) Progress(d time.Duration) Options {
	opt.progress = d
	return opt
}

// Validate checks the options.
func (opt Options) Validate() error {
	if opt.maxSweeps < 1 {
		return errors.Wrapf(dipolar.ErrConfiguration, "max sweeps %d", opt.maxSweeps)
	}
	if opt.minSweeps < 0 || opt.minSweeps > opt.maxSweeps {
		return errors.Wrapf(dipolar.ErrConfiguration, "min sweeps %d max sweeps %d", opt.minSweeps, opt.maxSweeps)
	}
	if !(opt.maxEErr > 0) || !(opt.maxSErr > 0) {
		return errors.Wrapf(dipolar.ErrConfiguration, "thresholds %g %g", opt.maxEErr, opt.maxSErr)
	}
	if opt.svdMin < 0 {
		return errors.Wrapf(dipolar.ErrConfiguration, "svd min %g", opt.svdMin)
	}
	if opt.lanczosMin < 1 || opt.lanczosMax < opt.lanczosMin {
		return errors.Wrapf(dipolar.ErrConfiguration, "lanczos %d %d", opt.lanczosMin, opt.lanczosMax)
	}
	if len(opt.schedule.ceilings) == 0 {
		return errors.Wrapf(dipolar.ErrConfiguration, "no schedule")
	}
	if err := opt.mixer.Validate(); err != nil && opt.mixer != (Mixer{}) {
		return errors.Wrap(err, "")
	}
	return nil
}

// Result is the outcome of a run.
type Result struct {
	// Energy is the final energy when converged, and the lowest energy observed otherwise.
	Energy    float64
	Converged bool
	State     State
	Sweeps    int
	// EnergyHistory and EntropyHistory hold the energy and the bond entropies after each sweep.
	EnergyHistory  []float64
	EntropyHistory [][]float64
	Psi            *mps.MPS
}

// MaxEntropy returns the largest final bond entropy.
func (r Result) MaxEntropy() float64 {
	if len(r.EntropyHistory) == 0 {
		return 0
	}
	return maxOf(r.EntropyHistory[len(r.EntropyHistory)-1])
}

// Driver repeats sweeps until the energy and the entanglement entropy converge.
type Driver struct {
	solver   Solver
	opt      Options
	logger   *zap.Logger
	metrics  *Metrics
	throttle *util.SkipThrottler
	state    State
}

// NewDriver returns a driver of solver.
// A nil logger discards logs and nil metrics are not recorded.
func NewDriver(solver Solver, opt Options, logger *zap.Logger, metrics *Metrics) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		solver:   solver,
		opt:      opt,
		logger:   logger,
		metrics:  metrics,
		throttle: util.NewSkipThrottler(opt.progress),
		state:    StateInitializing,
	}
}

// State returns the state of the run.
func (d *Driver) State() State { return d.state }

// Run sweeps until convergence or until the sweep budget is exhausted.
// Exhausting the budget is not an error, but leaves Result.Converged false.
// The context is checked between sweeps.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	d.state = StateInitializing
	if err := d.opt.Validate(); err != nil {
		d.finish(StateFailed)
		return Result{State: d.state}, errors.Wrap(err, "")
	}

	d.state = StateSweeping
	res := Result{Energy: math.Inf(1)}
	for sweep := range d.opt.maxSweeps {
		if err := ctx.Err(); err != nil {
			d.finish(StateFailed)
			res.State = d.state
			return res, errors.Wrapf(err, "sweep %d", sweep)
		}

		p := mps.SweepParams{
			ChiMax:         d.opt.schedule.CeilingFor(sweep),
			MixerAmplitude: d.opt.mixer.AmplitudeFor(sweep),
			SVDMin:         d.opt.svdMin,
			LanczosMin:     d.opt.lanczosMin,
			LanczosMax:     d.opt.lanczosMax,
		}
		start := time.Now()
		stats, err := d.solver.Sweep(p)
		if err != nil {
			d.finish(StateFailed)
			res.State = d.state
			return res, errors.Wrapf(ErrSolver, "sweep %d: %v", sweep, err)
		}
		entropy, err := d.solver.Entropy()
		if err != nil {
			d.finish(StateFailed)
			res.State = d.state
			return res, errors.Wrapf(ErrSolver, "entropy after sweep %d: %v", sweep, err)
		}
		if math.IsNaN(stats.Energy) {
			d.finish(StateFailed)
			res.State = d.state
			return res, errors.Wrapf(ErrSolver, "sweep %d energy %f", sweep, stats.Energy)
		}
		elapsed := time.Since(start)

		res.Sweeps = sweep + 1
		res.EnergyHistory = append(res.EnergyHistory, stats.Energy)
		res.EntropyHistory = append(res.EntropyHistory, slices.Clone(entropy))
		res.Energy = min(res.Energy, stats.Energy)
		maxS := maxOf(entropy)
		d.record(sweep, p, stats, maxS, elapsed)

		if d.converged(res) {
			res.Energy = stats.Energy
			res.Converged = true
			d.finish(StateConverged)
			break
		}
	}
	if !res.Converged {
		d.finish(StateSweepBudgetExhausted)
		d.logger.Warn("sweep budget exhausted", zap.Int("sweeps", res.Sweeps), zap.Float64("energy", res.Energy))
	}
	res.State = d.state
	res.Psi = d.solver.State()
	return res, nil
}

// converged tests the last two sweeps against the thresholds.
func (d *Driver) converged(res Result) bool {
	n := len(res.EnergyHistory)
	if n < 2 || n < d.opt.minSweeps {
		return false
	}
	dE := math.Abs(res.EnergyHistory[n-1] - res.EnergyHistory[n-2])
	dS := math.Abs(maxOf(res.EntropyHistory[n-1]) - maxOf(res.EntropyHistory[n-2]))
	return dE < d.opt.maxEErr && dS < d.opt.maxSErr
}

func (d *Driver) record(sweep int, p mps.SweepParams, stats mps.SweepStats, maxS float64, elapsed time.Duration) {
	fields := []zap.Field{
		zap.Int("sweep", sweep),
		zap.Float64("energy", stats.Energy),
		zap.Float64("max_entropy", maxS),
		zap.Int("chi", p.ChiMax),
		zap.Int("max_bond", stats.MaxBond),
		zap.Float64("mixer", p.MixerAmplitude),
		zap.Float64("truncation_error", stats.TruncationError),
		zap.Duration("elapsed", elapsed),
	}
	if d.throttle.Ok() {
		d.logger.Info("sweep", fields...)
	} else {
		d.logger.Debug("sweep", fields...)
	}

	if d.metrics == nil {
		return
	}
	d.metrics.energy.Set(stats.Energy)
	d.metrics.maxEntropy.Set(maxS)
	d.metrics.ceiling.Set(float64(p.ChiMax))
	d.metrics.mixer.Set(p.MixerAmplitude)
	d.metrics.truncation.Set(stats.TruncationError)
	d.metrics.maxBond.Set(float64(stats.MaxBond))
	d.metrics.sweeps.Inc()
	d.metrics.duration.Observe(elapsed.Seconds())
}

func (d *Driver) finish(s State) {
	d.state = s
	if d.metrics != nil {
		d.metrics.runs.WithLabelValues(s.String()).Inc()
	}
}

func maxOf(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		m = max(m, x)
	}
	return m
}
