// Package storage keeps finished runs on disk: one directory per run with
// a metadata.json and a frames.csv of per-frame solver reports.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/sim"
	"github.com/san-kum/ipcsim/internal/world"
)

const (
	metadataFile = "metadata.json"
	framesFile   = "frames.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID           string             `json:"id"`
	Preset       string             `json:"preset"`
	Timestamp    time.Time          `json:"timestamp"`
	Frames       int                `json:"frames"`
	Dt           float64            `json:"dt"`
	Backend      string             `json:"backend"`
	ConfigPreset string             `json:"config_preset,omitempty"`
	Retries      int                `json:"retries"`
	ElapsedMs    float64            `json:"elapsed_ms"`
	Metrics      map[string]float64 `json:"metrics"`
	Config       map[string]any     `json:"config,omitempty"`
}

var frameHeader = []string{
	"frame", "time", "dt", "iterations", "line_search", "pcg_iters",
	"contacts", "energy", "residual", "min_gap", "max_velocity", "converged", "duration_ms",
}

// Save writes a run and returns its id. Empty ID and Timestamp fields of
// meta are filled in.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Frames = result.FramesTaken
	meta.Retries = result.Retries
	meta.ElapsedMs = float64(result.Elapsed) / float64(time.Millisecond)
	meta.Metrics = result.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, framesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(frameHeader); err != nil {
		return "", err
	}
	for _, r := range result.Reports {
		if err := w.Write(frameRow(r)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func frameRow(r world.FrameReport) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', 10, 64) }
	return []string{
		strconv.Itoa(r.Frame),
		f(r.Time),
		f(r.Dt),
		strconv.Itoa(r.Iterations),
		strconv.Itoa(r.LineSearch),
		strconv.Itoa(r.PCGIters),
		strconv.Itoa(r.Contacts),
		f(r.Energy),
		f(r.Residual),
		f(r.MinGap),
		f(r.MaxVelocity),
		strconv.FormatBool(r.Converged),
		f(float64(r.Duration) / float64(time.Millisecond)),
	}
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("run %s: %w", runID, dynamo.ErrNotFound)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadFrames reads back the per-frame reports of a run.
func (s *Store) LoadFrames(runID string) ([]world.FrameReport, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, framesFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("run %s: %w", runID, dynamo.ErrNotFound)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(frameHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	if len(records) < 2 {
		return []world.FrameReport{}, nil
	}

	reports := make([]world.FrameReport, 0, len(records)-1)
	for i, rec := range records[1:] {
		rep, err := parseFrameRow(rec)
		if err != nil {
			return nil, fmt.Errorf("run %s row %d: %w", runID, i+1, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func parseFrameRow(rec []string) (world.FrameReport, error) {
	var rep world.FrameReport
	var firstErr error
	atoi := func(s string) int {
		v, err := strconv.Atoi(s)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}
	atof := func(s string) float64 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}

	rep.Frame = atoi(rec[0])
	rep.Time = atof(rec[1])
	rep.Dt = atof(rec[2])
	rep.Iterations = atoi(rec[3])
	rep.LineSearch = atoi(rec[4])
	rep.PCGIters = atoi(rec[5])
	rep.Contacts = atoi(rec[6])
	rep.Energy = atof(rec[7])
	rep.Residual = atof(rec[8])
	rep.MinGap = atof(rec[9])
	rep.MaxVelocity = atof(rec[10])
	converged, err := strconv.ParseBool(rec[11])
	if err != nil && firstErr == nil {
		firstErr = err
	}
	rep.Converged = converged
	rep.Duration = time.Duration(atof(rec[12]) * float64(time.Millisecond))
	return rep, firstErr
}

// Delete removes a run directory.
func (s *Store) Delete(runID string) error {
	dir := filepath.Join(s.baseDir, runID)
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err != nil {
		return fmt.Errorf("run %s: %w", runID, dynamo.ErrNotFound)
	}
	return os.RemoveAll(dir)
}
