package world

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/san-kum/ipcsim/internal/checkpoint"
	"github.com/san-kum/ipcsim/internal/dynamo"
)

// checkpoints opens the workspace database on first use. Without it,
// snapshots stay in memory.
func (w *World) checkpoints() checkpoint.Store {
	if w.store != nil {
		return w.store
	}
	path := filepath.Join(w.engine.workspace, "checkpoints.db")
	db, err := checkpoint.OpenSQLite(path, w.runID)
	if err != nil {
		w.logger.Warn("checkpoint database unavailable, keeping snapshots in memory", "path", path, "err", err)
		w.store = checkpoint.Tiered{w.memory}
		return w.store
	}
	w.store = checkpoint.Tiered{w.memory, db}
	return w.store
}

// Dump stores the state of the current frame.
func (w *World) Dump(ctx context.Context) error {
	if w.lay == nil {
		return dynamo.ErrNotInitialized
	}
	snap := checkpoint.Snapshot{
		Frame: w.frame,
		Time:  w.time,
		Dt:    w.dt,
		Q:     w.lay.q.Clone(),
		V:     w.lay.v.Clone(),
	}
	if err := w.checkpoints().Put(ctx, snap); err != nil {
		return fmt.Errorf("dump frame %d: %w", w.frame, err)
	}
	w.logger.Debug("dumped", "frame", w.frame)
	return nil
}

// Recover restores the state stored for frame and writes it back to the
// scene geometries.
func (w *World) Recover(ctx context.Context, frame int) error {
	if w.lay == nil {
		return dynamo.ErrNotInitialized
	}
	snap, err := w.checkpoints().Get(ctx, frame)
	if err != nil {
		return err
	}
	if len(snap.Q) != len(w.lay.q) || len(snap.V) != len(w.lay.v) {
		return fmt.Errorf("snapshot of frame %d has %d dofs, world has %d: %w", frame, len(snap.Q), len(w.lay.q), dynamo.ErrShapeMismatch)
	}
	copy(w.lay.q, snap.Q)
	copy(w.lay.v, snap.V)
	w.frame, w.time = snap.Frame, snap.Time
	w.setPhase(Idle)
	w.writeBack()
	w.logger.Info("recovered", "frame", frame)
	return nil
}

// DumpedFrames lists the frames this world dumped and can recover.
func (w *World) DumpedFrames(ctx context.Context) ([]int, error) {
	return w.checkpoints().Frames(ctx)
}
