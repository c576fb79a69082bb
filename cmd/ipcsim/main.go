package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/san-kum/ipcsim/internal/experiment"
	"github.com/san-kum/ipcsim/internal/storage"
	"github.com/san-kum/ipcsim/internal/telemetry"
	"github.com/san-kum/ipcsim/internal/viz"
	"github.com/san-kum/ipcsim/internal/world"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var (
	dataDir      string
	workspace    string
	backend      string
	logLevel     string
	frames       int
	dt           float64
	configFile   string
	configPreset string
	overrides    []string
	retries      int
	dumpEvery    int
	logger       *slog.Logger
)

// main registers the commands and exits with status 1 when the command
// fails.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "ipcsim")
	if err != nil {
		fmt.Fprintln(os.Stderr, "telemetry:", err)
	}
	defer shutdown(context.Background())

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		shutdown(context.Background())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ipcsim",
		Short:         "incremental potential contact simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := telemetry.NewLogger(os.Stderr, logLevel)
			if err != nil {
				return err
			}
			logger = l
			slog.SetDefault(l)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPicker(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", ".ipcsim", "directory of saved runs")
	pf.StringVar(&workspace, "workspace", "", "directory for checkpoints and surface dumps (default: a temp dir)")
	pf.StringVar(&backend, "backend", "auto", "compute backend: auto, cpu or cuda")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a preset and save its frame reports",
		Args:  cobra.ExactArgs(1),
		RunE:  runPreset,
	}
	addSceneFlags(runCmd)
	runCmd.Flags().String("id", "", "run id (default: a new uuid)")
	runCmd.Flags().String("obj", "", "write the final surfaces to this OBJ file")
	runCmd.Flags().Bool("no-save", false, "do not save the run")
	runCmd.Flags().String("svg", "", "write a wireframe of the final frame to this SVG file")

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "step a preset with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSceneFlags(liveCmd)
	liveCmd.Flags().String("theme", "cyberpunk", "color theme: "+strings.Join(viz.ThemeNames(), ", "))

	checkCmd := &cobra.Command{
		Use:   "check [preset]",
		Short: "build a preset and run the sanity checker",
		Args:  cobra.ExactArgs(1),
		RunE:  checkPreset,
	}
	addSceneFlags(checkCmd)

	benchCmd := &cobra.Command{
		Use:   "bench [preset]",
		Short: "time a preset at several step sizes",
		Args:  cobra.ExactArgs(1),
		RunE:  benchPreset,
	}
	addSceneFlags(benchCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the resolved scene configuration",
		Args:  cobra.NoArgs,
		RunE:  printConfig,
	}
	addSceneFlags(configCmd)
	configCmd.Flags().String("format", "yaml", "output format: yaml or toml")
	configCmd.Flags().Bool("keys", false, "list the settable keys instead")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list scene presets and config presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the frame reports of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	plotCmd.Flags().String("svg", "", "also write one SVG per series into this directory")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "summary statistics and dominant frequencies of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	tuneCmd := &cobra.Command{
		Use:   "tune [preset]",
		Short: "grid search config keys for the lowest value of a metric",
		Args:  cobra.ExactArgs(1),
		RunE:  tunePreset,
	}
	tuneCmd.Flags().IntVar(&frames, "frames", 0, "frames per run (default: the preset's)")
	tuneCmd.Flags().StringArray("grid", nil, "key=v1,v2,... values to search (repeatable)")
	tuneCmd.Flags().String("metric", "newton_iterations", "metric to minimise")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")

	deleteCmd := &cobra.Command{
		Use:   "delete [run_id]",
		Short: "delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteRun,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file.yaml]",
		Short: "run the steps of a YAML scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "run a preset across values of one config key",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().IntVar(&frames, "frames", 0, "frames per run (default: the preset's)")
	sweepCmd.Flags().String("key", "contact.d_hat", "config key to vary")
	sweepCmd.Flags().Float64("min", 0.005, "first value")
	sweepCmd.Flags().Float64("max", 0.02, "last value")
	sweepCmd.Flags().Int("steps", 4, "number of values")
	sweepCmd.Flags().Int("parallel", 0, "concurrent runs (default: GOMAXPROCS)")

	rootCmd.AddCommand(runCmd, liveCmd, checkCmd, benchCmd, configCmd, presetsCmd,
		listCmd, plotCmd, analyzeCmd, exportCmd, deleteCmd, scenarioCmd, sweepCmd, tuneCmd)
	return rootCmd
}

func addSceneFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&frames, "frames", 0, "frames to simulate (default: the preset's)")
	f.Float64Var(&dt, "dt", 0, "time step (default: from the config)")
	f.StringVar(&configFile, "config", "", "scene config file (yaml or toml)")
	f.StringVar(&configPreset, "config-preset", "", "named scene config preset")
	f.StringArrayVar(&overrides, "set", nil, "override a config key, key=value (repeatable)")
	f.IntVar(&retries, "retries", 3, "retries of a diverged frame at half the step")
	f.IntVar(&dumpEvery, "dump-every", 0, "checkpoint every n frames")
}

// experimentConfig collects the scene flags of the current command.
func experimentConfig(preset string) (experiment.Config, error) {
	cfg := experiment.Config{
		Preset:       preset,
		Frames:       frames,
		Dt:           dt,
		ConfigPath:   configFile,
		ConfigPreset: configPreset,
		UseEnv:       true,
		MaxRetries:   retries,
		DumpEvery:    dumpEvery,
	}
	if len(overrides) > 0 {
		cfg.Overrides = make(map[string]string, len(overrides))
		for _, kv := range overrides {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return cfg, fmt.Errorf("--set %q: want key=value", kv)
			}
			cfg.Overrides[k] = v
		}
	}
	return cfg, nil
}

func newEngine(log *slog.Logger) (*world.Engine, error) {
	return world.NewEngine(backend, workspace,
		world.WithLogger(log),
		world.WithTracer(otel.Tracer("github.com/san-kum/ipcsim")),
	)
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

// setup builds and initialises the named preset.
func setup(preset string, log *slog.Logger) (*experiment.Experiment, *world.Engine, error) {
	cfg, err := experimentConfig(preset)
	if err != nil {
		return nil, nil, err
	}
	engine, err := newEngine(log)
	if err != nil {
		return nil, nil, err
	}
	exp := experiment.New(cfg, experiment.NewRegistry())
	if err := exp.Setup(engine); err != nil {
		return nil, nil, err
	}
	return exp, engine, nil
}

// fileLogger sends logs to a file in the workspace while a full screen
// view owns the terminal.
func fileLogger(engineDir string) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(filepath.Join(engineDir, "ipcsim.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	l, err := telemetry.NewLogger(f, logLevel)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return l, f, nil
}
