// Package experiment runs a ground state search of the dipolar Fermi-Hubbard chain end to end.
package experiment

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/dipolar"
	"github.com/fumin/dipolar/dmrg"
)

// Initial state recipes.
const (
	InitHalfFilledSpinZero = "half-filled-spin-zero"
	InitDoublonEmpty       = "doublon-empty"
)

// Config is the configuration of a run.
type Config struct {
	L  int     `yaml:"l"`
	T  float64 `yaml:"t"`
	TP float64 `yaml:"tp"`
	U  float64 `yaml:"u"`
	// H, Mu and Boundary only apply when Conserved is false.
	H         float64 `yaml:"h"`
	Mu        float64 `yaml:"mu"`
	Boundary  string  `yaml:"boundary"`
	Conserved bool    `yaml:"conserved"`

	InitState   string `yaml:"init_state"`
	Random      bool   `yaml:"random"`
	RandomSteps int    `yaml:"random_steps"`
	RandomChi   int    `yaml:"random_chi"`
	Seed        uint64 `yaml:"seed"`

	Chi         int        `yaml:"chi"`
	ChiFloor    int        `yaml:"chi_floor"`
	RampSteps   int        `yaml:"ramp_steps"`
	RampSpacing int        `yaml:"ramp_spacing"`
	Mixer       dmrg.Mixer `yaml:"mixer"`
	MaxSweeps   int        `yaml:"max_sweeps"`
	MinSweeps   int        `yaml:"min_sweeps"`
	MaxEErr     float64    `yaml:"max_e_err"`
	MaxSErr     float64    `yaml:"max_s_err"`
	SVDMin      float64    `yaml:"svd_min"`
	LanczosMin  int        `yaml:"lanczos_min"`
	LanczosMax  int        `yaml:"lanczos_max"`

	Path string `yaml:"path"`
	Plot bool   `yaml:"plot"`
}

// DefaultConfig returns the configuration of a chain of length 10 at strong coupling.
func DefaultConfig() Config {
	return Config{
		L:         10,
		T:         1,
		TP:        1,
		U:         20,
		Boundary:  "open",
		Conserved: true,

		InitState:   InitHalfFilledSpinZero,
		RandomSteps: 10,
		RandomChi:   50,
		Seed:        1,

		Chi:         64,
		ChiFloor:    50,
		RampSteps:   10,
		RampSpacing: 5,
		Mixer:       dmrg.Mixer{Amplitude: 1e-2, Decay: 1 / 1.5, DisableAfter: 20},
		MaxSweeps:   100,
		MinSweeps:   50,
		MaxEErr:     1e-9,
		MaxSErr:     1e-9,
		SVDMin:      1e-9,
		LanczosMin:  3,
		LanczosMax:  3,

		Path: ".",
	}
}

// LoadConfig reads a YAML configuration.
// Fields absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrapf(dipolar.ErrConfiguration, "%s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	return cfg, nil
}

// Params returns the model parameters.
func (cfg Config) Params() dipolar.Params {
	return dipolar.Params{L: cfg.L, T: cfg.T, TP: cfg.TP, H: cfg.H, U: cfg.U, Mu: cfg.Mu}
}

// Validate checks the configuration.
func (cfg Config) Validate() error {
	if cfg.L < 2 {
		return errors.Wrapf(dipolar.ErrConfiguration, "length %d", cfg.L)
	}
	if _, err := dipolar.ParseBoundary(cfg.Boundary); err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := initialState(cfg.InitState, cfg.L); err != nil {
		return errors.Wrap(err, "")
	}
	if cfg.Random && (cfg.RandomSteps < 0 || cfg.RandomChi < 1) {
		return errors.Wrapf(dipolar.ErrConfiguration, "random evolution %d %d", cfg.RandomSteps, cfg.RandomChi)
	}
	if _, err := cfg.schedule(); err != nil {
		return errors.Wrap(err, "")
	}
	if err := cfg.options().Validate(); err != nil {
		return errors.Wrap(err, "")
	}
	if cfg.Path == "" {
		return errors.Wrapf(dipolar.ErrConfiguration, "empty path")
	}
	return nil
}

func (cfg Config) schedule() (dmrg.Schedule, error) {
	return dmrg.RampSchedule(cfg.Chi, cfg.ChiFloor, cfg.RampSteps, cfg.RampSpacing)
}

func (cfg Config) options() dmrg.Options {
	opt := dmrg.NewOptions().
		MaxSweeps(cfg.MaxSweeps).
		MinSweeps(cfg.MinSweeps).
		MaxEErr(cfg.MaxEErr).
		MaxSErr(cfg.MaxSErr).
		SVDMin(cfg.SVDMin).
		Lanczos(cfg.LanczosMin, cfg.LanczosMax).
		Mixer(cfg.Mixer)
	if s, err := cfg.schedule(); err == nil {
		opt = opt.Schedule(s)
	}
	return opt
}

// initialState returns the state names of a recipe, site by site.
func initialState(recipe string, l int) ([]string, error) {
	var pair [2]string
	switch recipe {
	case InitHalfFilledSpinZero:
		pair = [2]string{"up", "down"}
	case InitDoublonEmpty:
		pair = [2]string{"full", "empty"}
	default:
		return nil, errors.Wrapf(dipolar.ErrConfiguration, "initial state %q", recipe)
	}
	if l%2 != 0 {
		return nil, errors.Wrapf(dipolar.ErrConfiguration, "initial state %q needs an even length, got %d", recipe, l)
	}
	names := make([]string, 0, l)
	for range l / 2 {
		names = append(names, pair[0], pair[1])
	}
	return names, nil
}
