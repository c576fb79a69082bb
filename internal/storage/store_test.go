package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/sim"
	"github.com/san-kum/ipcsim/internal/world"
)

func testResult() *sim.Result {
	return &sim.Result{
		Reports: []world.FrameReport{
			{Frame: 1, Time: 0.01, Dt: 0.01, Iterations: 3, Contacts: 0, Converged: true, Duration: 2 * time.Millisecond},
			{Frame: 2, Time: 0.02, Dt: 0.01, Iterations: 5, Contacts: 4, MinGap: 0.003, Converged: true},
		},
		Metrics:     map[string]float64{"newton_iterations": 4},
		FramesTaken: 2,
		Retries:     1,
		Elapsed:     1500 * time.Microsecond,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{Preset: "falling_cube", Dt: 0.01, Backend: "cpu"}, testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Preset != "falling_cube" {
		t.Errorf("expected preset 'falling_cube', got '%s'", meta.Preset)
	}
	if meta.Frames != 2 || meta.Retries != 1 {
		t.Errorf("expected 2 frames and 1 retry, got %d and %d", meta.Frames, meta.Retries)
	}
	if meta.ElapsedMs != 1.5 {
		t.Errorf("expected 1.5ms elapsed, got %f", meta.ElapsedMs)
	}
	if meta.Metrics["newton_iterations"] != 4 {
		t.Errorf("expected newton_iterations 4, got %f", meta.Metrics["newton_iterations"])
	}

	frames, err := st.LoadFrames(runID)
	if err != nil {
		t.Fatalf("load frames failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Duration != 2*time.Millisecond || frames[0].Iterations != 3 {
		t.Errorf("unexpected first frame %+v", frames[0])
	}
	if frames[1].Contacts != 4 || frames[1].MinGap != 0.003 || !frames[1].Converged {
		t.Errorf("unexpected second frame %+v", frames[1])
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := st.Save(RunMetadata{ID: "old", Preset: "a", Timestamp: old}, testResult()); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save(RunMetadata{ID: "new", Preset: "b", Timestamp: old.Add(time.Hour)}, testResult()); err != nil {
		t.Fatal(err)
	}
	// stray directories without metadata are skipped
	if err := os.Mkdir(filepath.Join(st.Dir(), "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "new" || runs[1].ID != "old" {
		t.Errorf("expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestStoreListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "absent")).List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestStoreNotFound(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("missing"); !errors.Is(err, dynamo.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := st.LoadFrames("missing"); !errors.Is(err, dynamo.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := st.Delete("missing"); !errors.Is(err, dynamo.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestStoreExportAndDelete(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{Preset: "cloth"}, testResult())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.Export(&buf, runID); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("export is not json: %v", err)
	}
	if data.Run.ID != runID || len(data.Frames) != 2 {
		t.Errorf("unexpected export %+v", data.Run)
	}

	path := filepath.Join(t.TempDir(), "run.json")
	if err := st.ExportJSON(path, runID); err != nil {
		t.Fatalf("export file failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("export file missing: %v", err)
	}

	if err := st.Delete(runID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := st.Load(runID); !errors.Is(err, dynamo.ErrNotFound) {
		t.Errorf("expected run gone, got %v", err)
	}
}
