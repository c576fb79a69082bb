package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/pelletier/go-toml/v2"
	"github.com/san-kum/ipcsim/internal/analysis"
	"github.com/san-kum/ipcsim/internal/automation"
	"github.com/san-kum/ipcsim/internal/config"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/experiment"
	"github.com/san-kum/ipcsim/internal/export"
	"github.com/san-kum/ipcsim/internal/optim"
	"github.com/san-kum/ipcsim/internal/sim"
	"github.com/san-kum/ipcsim/internal/storage"
	"github.com/san-kum/ipcsim/internal/viz"
	"github.com/san-kum/ipcsim/internal/world"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func runPreset(cmd *cobra.Command, args []string) error {
	exp, engine, err := setup(args[0], logger)
	if err != nil {
		return err
	}
	defer exp.Close()

	logger.Info("running", "preset", args[0], "frames", exp.Frames(), "dt", exp.World().Dt(), "backend", engine.Backend().Name())
	result, runErr := exp.Run(cmd.Context())
	if result == nil {
		return runErr
	}
	printSummary(result)

	if obj, _ := cmd.Flags().GetString("obj"); obj != "" {
		if err := exp.World().WriteSurface(obj); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", obj)
	}

	if path, _ := cmd.Flags().GetString("svg"); path != "" {
		if err := writeWireframeSVG(path, exp); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}

	if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave && result.FramesTaken > 0 {
		st, err := openStore()
		if err != nil {
			return err
		}
		id, _ := cmd.Flags().GetString("id")
		runID, err := st.Save(storage.RunMetadata{
			ID:           id,
			Preset:       args[0],
			Dt:           exp.World().Dt(),
			Backend:      engine.Backend().Name(),
			ConfigPreset: configPreset,
			Config:       exp.Scene().Config().Flatten(),
		}, result)
		if err != nil {
			return err
		}
		fmt.Printf("saved run %s\n", runID)
	}
	return runErr
}

func writeWireframeSVG(path string, exp *experiment.Experiment) error {
	if err := exp.World().Retrieve(); err != nil {
		return err
	}
	wire := viz.SceneWireframe(exp.Scene())
	cam := viz.NewCamera()
	if lo, hi, ok := wire.Bounds(); ok {
		cam.Fit(lo, hi)
	}
	canvas := viz.NewCanvas(100, 50)
	viz.Render3D(canvas, wire, cam)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.CanvasSVG(f, canvas, 3); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(r *sim.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "frames\t%d\n", r.FramesTaken)
	fmt.Fprintf(w, "retries\t%d\n", r.Retries)
	fmt.Fprintf(w, "elapsed\t%s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "converged\t%t\n", r.Converged())
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%.6g\n", name, r.Metrics[name])
	}
	w.Flush()
}

// liveDir is the workspace a full screen command logs and writes into.
func liveDir() (string, error) {
	dir := workspace
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "ipcsim")
	}
	return dir, os.MkdirAll(dir, 0o755)
}

func runLive(cmd *cobra.Command, args []string) error {
	dir, err := liveDir()
	if err != nil {
		return err
	}
	workspace = dir
	log, closer, err := fileLogger(dir)
	if err != nil {
		return err
	}
	defer closer.Close()

	theme, _ := cmd.Flags().GetString("theme")
	opts := viz.Options{Frames: frames, OutDir: dir, Theme: theme}

	if len(args) == 0 {
		cfg, err := experimentConfig("")
		if err != nil {
			return err
		}
		engine, err := newEngine(log)
		if err != nil {
			return err
		}
		return viz.RunApp(viz.NewApp(cmd.Context(), experiment.NewRegistry(), engine, cfg, opts))
	}

	exp, _, err := setup(args[0], log)
	if err != nil {
		return err
	}
	defer exp.Close()
	opts.Title = args[0]
	if opts.Frames == 0 {
		opts.Frames = exp.Frames()
	}
	return viz.Run(viz.NewModel(cmd.Context(), exp.World(), exp.Scene(), opts))
}

func runPicker(cmd *cobra.Command) error {
	return runLive(cmd, nil)
}

func checkPreset(cmd *cobra.Command, args []string) error {
	exp, _, err := setup(args[0], logger)
	if err != nil {
		if errors.Is(err, dynamo.ErrSanityCheckFailed) {
			fmt.Printf("%s: %s\n", args[0], world.Error)
		}
		return err
	}
	defer exp.Close()

	checker := exp.World().SanityChecker()
	res := checker.Check()
	fmt.Printf("%s: %s\n", args[0], res)
	for _, msg := range checker.Messages() {
		fmt.Printf("  %s\n", msg)
	}
	return checker.Err()
}

var benchScales = []float64{1, 0.5, 0.25}

func benchPreset(cmd *cobra.Command, args []string) error {
	initial, _, err := setup(args[0], logger)
	if err != nil {
		return err
	}
	base := initial.World().Dt()
	initial.Close()

	fmt.Printf("benchmarking %s\n\n", args[0])
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DT\tFRAMES\tTIME\tFRAMES/SEC\tNEWTON\tPCG\tRETRIES")

	for _, scale := range benchScales {
		dt = base * scale
		exp, _, err := setup(args[0], logger)
		if err != nil {
			return err
		}
		res, err := exp.Run(cmd.Context())
		exp.Close()
		if err != nil {
			return err
		}
		newton, pcg := 0, 0
		for _, r := range res.Reports {
			newton += r.Iterations
			pcg += r.PCGIters
		}
		taken := max(res.FramesTaken, 1)
		fmt.Fprintf(w, "%g\t%d\t%s\t%.1f\t%.2f\t%.1f\t%d\n",
			dt, res.FramesTaken, res.Elapsed.Round(time.Millisecond),
			float64(res.FramesTaken)/math.Max(res.Elapsed.Seconds(), 1e-9),
			float64(newton)/float64(taken), float64(pcg)/float64(taken), res.Retries)
	}
	return w.Flush()
}

func printConfig(cmd *cobra.Command, args []string) error {
	if keys, _ := cmd.Flags().GetBool("keys"); keys {
		for _, k := range config.Keys() {
			fmt.Println(k)
		}
		return nil
	}

	cfg, err := experimentConfig("")
	if err != nil {
		return err
	}
	sc, err := cfg.SceneConfig(experiment.Preset{})
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	var out []byte
	switch format {
	case "yaml", "yml":
		out, err = yaml.Marshal(sc)
	case "toml":
		out, err = toml.Marshal(sc)
	default:
		return fmt.Errorf("format %q: %w", format, dynamo.ErrInvalidConfig)
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func listPresets(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tFRAMES\tDESCRIPTION")
	for _, name := range registry.List() {
		p, err := registry.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, p.Frames, p.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\nconfig presets:")
	for _, name := range config.ListPresets() {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRESET\tTIME\tFRAMES\tDT\tRETRIES\tELAPSED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g\t%d\t%.0fms\n",
			run.ID,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Frames,
			run.Dt,
			run.Retries,
			run.ElapsedMs,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	reports, err := st.LoadFrames(args[0])
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return fmt.Errorf("run %s has no frames", args[0])
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("preset: %s\n", meta.Preset)
	fmt.Printf("frames: %d\n\n", len(reports))

	plots := []struct {
		caption string
		value   func(world.FrameReport) float64
	}{
		{"energy", func(r world.FrameReport) float64 { return r.Energy }},
		{"newton iterations", func(r world.FrameReport) float64 { return float64(r.Iterations) }},
		{"contacts", func(r world.FrameReport) float64 { return float64(r.Contacts) }},
		{"max velocity", func(r world.FrameReport) float64 { return r.MaxVelocity }},
	}
	svgDir, _ := cmd.Flags().GetString("svg")
	if svgDir != "" {
		if err := os.MkdirAll(svgDir, 0o755); err != nil {
			return err
		}
	}
	times := make([]float64, len(reports))
	for i, r := range reports {
		times[i] = r.Time
	}
	for _, p := range plots {
		data := make([]float64, len(reports))
		for i, r := range reports {
			data[i] = p.value(r)
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(p.caption),
		))
		fmt.Println()
		if svgDir != "" && len(data) > 1 {
			if err := writeSeriesSVG(filepath.Join(svgDir, strings.ReplaceAll(p.caption, " ", "_")+".svg"), times, data, p.caption); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSeriesSVG(path string, xs, ys []float64, caption string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.SeriesSVG(f, xs, ys, 800, 300, caption, "#00ccff"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	reports, err := st.LoadFrames(args[0])
	if err != nil {
		return err
	}

	series := map[string][]float64{}
	names := []string{"energy", "max_velocity", "iterations", "contacts", "residual"}
	for _, r := range reports {
		series["energy"] = append(series["energy"], r.Energy)
		series["max_velocity"] = append(series["max_velocity"], r.MaxVelocity)
		series["iterations"] = append(series["iterations"], float64(r.Iterations))
		series["contacts"] = append(series["contacts"], float64(r.Contacts))
		series["residual"] = append(series["residual"], r.Residual)
	}

	fmt.Printf("run: %s (%s, %d frames)\n\n", meta.ID, meta.Preset, len(reports))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERIES\tMEAN\tSTDDEV\tMIN\tMAX\tPEAK FREQ")
	for _, name := range names {
		s := analysis.Summarize(series[name])
		freq := "-"
		if f, err := analysis.DominantFrequency(series[name], meta.Dt); err == nil {
			freq = fmt.Sprintf("%.3g Hz", f)
		}
		fmt.Fprintf(w, "%s\t%.4g\t%.4g\t%.4g\t%.4g\t%s\n", name, s.Mean, s.StdDev, s.Min, s.Max, freq)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nenergy drift: %.3g%%\n", 100*analysis.EnergyDrift(series["energy"]))
	return nil
}

func tunePreset(cmd *cobra.Command, args []string) error {
	axes, _ := cmd.Flags().GetStringArray("grid")
	metric, _ := cmd.Flags().GetString("metric")
	grid := make(map[string][]float64, len(axes))
	for _, axis := range axes {
		key, list, ok := strings.Cut(axis, "=")
		if !ok {
			return fmt.Errorf("--grid %q: want key=v1,v2,...", axis)
		}
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return fmt.Errorf("--grid %s: %w", key, err)
			}
			grid[key] = append(grid[key], v)
		}
	}
	search, err := optim.NewGridSearch(grid)
	if err != nil {
		return err
	}
	engine, err := newEngine(logger)
	if err != nil {
		return err
	}

	logger.Info("grid search", "preset", args[0], "points", search.Size(), "metric", metric)
	best, trials, err := search.Search(cmd.Context(), optim.PresetRunner(experiment.NewRegistry(), engine, args[0], frames), metric)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PARAMS\t%s\n", strings.ToUpper(metric))
	for _, tr := range trials {
		value := fmt.Sprintf("%.4g", tr.Value)
		if tr.Err != nil {
			value = "error: " + tr.Err.Error()
		}
		fmt.Fprintf(w, "%v\t%s\n", tr.Params, value)
	}
	w.Flush()
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: %v (%s = %.4g)\n", best.Params, metric, best.Value)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		if err := st.ExportJSON(out, args[0]); err != nil {
			return err
		}
		fmt.Printf("exported %s to %s\n", args[0], out)
		return nil
	}
	return st.Export(os.Stdout, args[0])
}

func deleteRun(cmd *cobra.Command, args []string) error {
	if err := storage.New(dataDir).Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	engine, err := newEngine(logger)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}

	results, runErr := automation.NewRunner(experiment.NewRegistry(), engine, st).RunScenario(cmd.Context(), scenario)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tPRESET\tFRAMES\tRETRIES\tELAPSED")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", i+1, scenario.Steps[i].Preset, r.FramesTaken, r.Retries, r.Elapsed.Round(time.Millisecond))
	}
	w.Flush()
	return runErr
}

func runSweep(cmd *cobra.Command, args []string) error {
	engine, err := newEngine(logger)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	sweep := &automation.ParameterSweep{Preset: args[0], Frames: frames}
	sweep.Key, _ = f.GetString("key")
	sweep.Min, _ = f.GetFloat64("min")
	sweep.Max, _ = f.GetFloat64("max")
	sweep.NumSteps, _ = f.GetInt("steps")
	sweep.Parallel, _ = f.GetInt("parallel")

	results, err := automation.NewRunner(experiment.NewRegistry(), engine, nil).RunSweep(cmd.Context(), sweep)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tFRAMES\tRETRIES\tCONVERGED\tNEWTON\n", sweep.Key)
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%d\t%d\t%t\t%.2f\n", r.Value, r.Frames, r.Retries, r.Converged, r.Metrics["newton_iterations"])
	}
	return w.Flush()
}
