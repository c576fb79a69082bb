// Package checkpoint persists numbered world snapshots for dump/recover.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/san-kum/ipcsim/internal/dynamo"
	_ "modernc.org/sqlite"
)

// Snapshot is the solver state of one committed frame: generalized
// coordinates and velocities in layout order.
type Snapshot struct {
	Frame int       `cbor:"1,keyasint"`
	Time  float64   `cbor:"2,keyasint"`
	Dt    float64   `cbor:"3,keyasint"`
	Q     []float64 `cbor:"4,keyasint"`
	V     []float64 `cbor:"5,keyasint"`
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Q = append([]float64(nil), s.Q...)
	out.V = append([]float64(nil), s.V...)
	return out
}

// Store keeps snapshots by frame index.
type Store interface {
	Put(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, frame int) (Snapshot, error)
	Frames(ctx context.Context) ([]int, error)
	Close() error
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	snaps map[int]Snapshot
}

func NewMemory() *Memory {
	return &Memory{snaps: make(map[int]Snapshot)}
}

func (m *Memory) Put(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.Frame] = s.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, frame int) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[frame]
	if !ok {
		return Snapshot{}, fmt.Errorf("checkpoint frame %d: %w", frame, dynamo.ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *Memory) Frames(_ context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, 0, len(m.snaps))
	for f := range m.snaps {
		out = append(out, f)
	}
	sort.Ints(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

const schema = `
CREATE TABLE IF NOT EXISTS run_snapshots (
	run_id     TEXT NOT NULL,
	frame      INTEGER NOT NULL,
	sim_time   REAL NOT NULL,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, frame)
)`

// SQLite stores CBOR encoded snapshots of one run. Several runs may share
// a database file; each handle only sees the rows of its own run.
type SQLite struct {
	db  *sql.DB
	run string
}

// OpenSQLite opens (creating if needed) the database at path for the
// snapshots of run.
func OpenSQLite(path, run string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	if strings.TrimSpace(run) == "" {
		return nil, fmt.Errorf("checkpoint run id is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}
	return &SQLite{db: db, run: run}, nil
}

func (s *SQLite) Run() string { return s.run }

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put replaces any snapshot already stored for the same frame.
func (s *SQLite) Put(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %d: %w", snap.Frame, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO run_snapshots (run_id, frame, sim_time, payload, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(run_id, frame) DO UPDATE SET sim_time = excluded.sim_time, payload = excluded.payload, created_at = excluded.created_at
`,
		s.run,
		snap.Frame,
		snap.Time,
		payload,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put snapshot %d: %w", snap.Frame, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, frame int) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM run_snapshots WHERE run_id = ? AND frame = ?`, s.run, frame).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("checkpoint frame %d: %w", frame, dynamo.ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot %d: %w", frame, err)
	}
	var snap Snapshot
	if err := cbor.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %d: %w", frame, err)
	}
	return snap, nil
}

func (s *SQLite) Frames(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT frame FROM run_snapshots WHERE run_id = ? ORDER BY frame`, s.run)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var f int
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Tiered writes through to every store and reads from the first that has
// the frame.
type Tiered []Store

func (t Tiered) Put(ctx context.Context, s Snapshot) error {
	for _, st := range t {
		if err := st.Put(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (t Tiered) Get(ctx context.Context, frame int) (Snapshot, error) {
	err := fmt.Errorf("checkpoint frame %d: %w", frame, dynamo.ErrNotFound)
	for _, st := range t {
		s, e := st.Get(ctx, frame)
		if e == nil {
			return s, nil
		}
		if !errors.Is(e, dynamo.ErrNotFound) {
			return Snapshot{}, e
		}
	}
	return Snapshot{}, err
}

func (t Tiered) Frames(ctx context.Context) ([]int, error) {
	seen := map[int]bool{}
	var out []int
	for _, st := range t {
		fs, err := st.Frames(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range fs {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Ints(out)
	return out, nil
}

func (t Tiered) Close() error {
	var errs []error
	for _, st := range t {
		errs = append(errs, st.Close())
	}
	return errors.Join(errs...)
}
