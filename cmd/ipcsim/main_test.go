package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/ipcsim/internal/storage"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	frames, dt, configFile, configPreset, overrides, retries, dumpEvery = 0, 0, "", "", nil, 3, 0
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestExperimentConfigOverrides(t *testing.T) {
	overrides = []string{"contact.d_hat=0.02", "gravity=0,-1,0"}
	defer func() { overrides = nil }()

	cfg, err := experimentConfig("falling_cube")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Overrides["contact.d_hat"] != "0.02" || cfg.Overrides["gravity"] != "0,-1,0" {
		t.Errorf("unexpected overrides %v", cfg.Overrides)
	}

	overrides = []string{"no-equals"}
	if _, err := experimentConfig("falling_cube"); err == nil {
		t.Error("expected an error for a malformed --set")
	}
}

func TestRunSavesAndLists(t *testing.T) {
	data, ws := t.TempDir(), t.TempDir()
	obj := filepath.Join(ws, "final.obj")

	err := execute(t, "run", "falling_cube", "--frames", "2", "--backend", "cpu",
		"--data", data, "--workspace", ws, "--id", "smoke", "--obj", obj,
		"--svg", filepath.Join(ws, "final.svg"), "--log-level", "error")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(obj); err != nil {
		t.Errorf("expected an OBJ file: %v", err)
	}

	meta, err := storage.New(data).Load("smoke")
	if err != nil {
		t.Fatalf("run not saved: %v", err)
	}
	if meta.Frames != 2 || meta.Preset != "falling_cube" {
		t.Errorf("unexpected metadata %+v", meta)
	}

	for _, args := range [][]string{
		{"list", "--data", data},
		{"plot", "smoke", "--data", data, "--svg", filepath.Join(ws, "plots")},
		{"analyze", "smoke", "--data", data},
		{"export", "smoke", "--data", data, "-o", filepath.Join(ws, "smoke.json")},
		{"delete", "smoke", "--data", data},
	} {
		if err := execute(t, args...); err != nil {
			t.Errorf("%v: %v", args, err)
		}
	}
	if _, err := storage.New(data).Load("smoke"); err == nil {
		t.Error("expected the run to be deleted")
	}
	if _, err := os.Stat(filepath.Join(ws, "plots", "energy.svg")); err != nil {
		t.Errorf("expected an energy plot: %v", err)
	}
}

func TestInfoCommands(t *testing.T) {
	for _, args := range [][]string{
		{"presets"},
		{"config", "--keys"},
		{"config", "--format", "toml", "--config-preset", "precise"},
		{"check", "cube_stack", "--backend", "cpu", "--workspace", t.TempDir()},
		{"tune", "falling_cube", "--frames", "1", "--grid", "dt=0.01,0.005", "--workspace", t.TempDir()},
	} {
		if err := execute(t, append(args, "--log-level", "error")...); err != nil {
			t.Errorf("%v: %v", args, err)
		}
	}

	if err := execute(t, "tune", "falling_cube", "--grid", "dt=fast"); err == nil {
		t.Error("expected an error for a non-numeric grid value")
	}
	if err := execute(t, "config", "--format", "ini"); err == nil {
		t.Error("expected an error for an unknown format")
	}
	if err := execute(t, "run", "no_such_preset", "--workspace", t.TempDir()); err == nil {
		t.Error("expected an error for an unknown preset")
	}
}
