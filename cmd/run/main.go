package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fumin/dipolar/experiment"
)

var (
	logger *zap.Logger

	configPath  string
	verbose     bool
	metricsPath string
	dumpDir     string
	flagCfg     = experiment.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "run",
	Short: "Ground states of the dipole conserving Fermi-Hubbard chain",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return errors.Wrap(err, "")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var dmrgCmd = &cobra.Command{
	Use:   "dmrg",
	Short: "Search for the ground state and append its observables under --path",
	Long: `Runs two-site DMRG from a product state, optionally scrambled by random two-site unitaries.
Observables are appended to the logs under --path and the state is saved to --path/mps.

Example:
  run dmrg --L 12 --U 20 --chi 128 --RM`,
	RunE: runDMRG,
}

var exactCmd = &cobra.Command{
	Use:   "exact",
	Short: "Diagonalize the Hamiltonian in the charge sector of the initial state",
	RunE:  runExact,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&configPath, "config", "", "YAML configuration, overridden by explicitly set flags")
	pf.IntVar(&flagCfg.L, "L", flagCfg.L, "number of sites")
	pf.Float64Var(&flagCfg.T, "t", flagCfg.T, "3-site dipolar hopping")
	pf.Float64Var(&flagCfg.TP, "tp", flagCfg.TP, "4-site dipolar hopping")
	pf.Float64Var(&flagCfg.U, "U", flagCfg.U, "onsite interaction")
	pf.Float64Var(&flagCfg.H, "h", flagCfg.H, "nearest neighbor hopping, without --conserved")
	pf.Float64Var(&flagCfg.Mu, "mu", flagCfg.Mu, "chemical potential, without --conserved")
	pf.BoolVar(&flagCfg.Conserved, "conserved", flagCfg.Conserved, "conserve the dipole moment")
	pf.StringVar(&flagCfg.InitState, "init_state", flagCfg.InitState, "initial state: half-filled-spin-zero or doublon-empty")

	f := dmrgCmd.Flags()
	f.IntVar(&flagCfg.Chi, "chi", flagCfg.Chi, "final bond dimension ceiling")
	f.IntVar(&flagCfg.MaxSweeps, "max_sweep", flagCfg.MaxSweeps, "maximum number of sweeps")
	f.BoolVar(&flagCfg.Random, "RM", flagCfg.Random, "scramble the initial state with random unitaries")
	f.Uint64Var(&flagCfg.Seed, "seed", flagCfg.Seed, "random seed")
	f.StringVar(&flagCfg.Path, "path", flagCfg.Path, "output directory")
	f.BoolVar(&flagCfg.Plot, "plot", flagCfg.Plot, "plot the observables under --path/figures")
	f.StringVar(&metricsPath, "metrics", "", "write prometheus metrics to this file when done")

	exactCmd.Flags().StringVar(&dumpDir, "dump", "", "also write the Hamiltonian in coordinate format to this directory")

	rootCmd.AddCommand(dmrgCmd, exactCmd)
}

// config returns the configuration file, if any, with the flags set on the command line applied on top.
func config(cmd *cobra.Command) (experiment.Config, error) {
	if configPath == "" {
		return flagCfg, nil
	}
	changed := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = f.Value.String() })

	cfg, err := experiment.LoadConfig(configPath)
	if err != nil {
		return experiment.Config{}, errors.Wrap(err, "")
	}
	flagCfg = cfg
	for name, v := range changed {
		if err := cmd.Flags().Set(name, v); err != nil {
			return experiment.Config{}, errors.Wrap(err, name)
		}
	}
	return flagCfg, nil
}

func runDMRG(cmd *cobra.Command, args []string) error {
	cfg, err := config(cmd)
	if err != nil {
		return errors.Wrap(err, "")
	}
	// A short sweep budget tests convergence from its last sweep.
	if cfg.MinSweeps > cfg.MaxSweeps {
		cfg.MinSweeps = cfg.MaxSweeps
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	report, err := experiment.Run(ctx, cfg, logger, reg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if metricsPath != "" {
		if err := prometheus.WriteToTextfile(metricsPath, reg); err != nil {
			return errors.Wrap(err, "")
		}
	}

	fmt.Printf("energy %.12f converged %t sweeps %d max entropy %.6f\n",
		report.Run.Energy, report.Run.Converged, report.Run.Sweeps, report.Measurement.MaxEntropy())
	fmt.Printf("state %s\n", report.StatePath)
	return nil
}

func runExact(cmd *cobra.Command, args []string) error {
	cfg, err := config(cmd)
	if err != nil {
		return errors.Wrap(err, "")
	}
	energy, dim, err := experiment.Exact(cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	logger.Info("exact", zap.Int("L", cfg.L), zap.Int("sector", dim))
	if dumpDir != "" {
		if err := experiment.WriteHamiltonian(cfg, dumpDir); err != nil {
			return errors.Wrap(err, "")
		}
	}
	fmt.Printf("energy %.12f sector %d\n", energy, dim)
	return nil
}

func main() {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
