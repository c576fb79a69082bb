package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(frame int) Snapshot {
	return Snapshot{
		Frame: frame,
		Time:  0.01 * float64(frame),
		Dt:    0.01,
		Q:     []float64{1, 2, 3, float64(frame)},
		V:     []float64{0, -0.098, 0, 0},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "checkpoints.db"), "run-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": db,
		"tiered": Tiered{NewMemory(), NewMemory()},
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Put(ctx, sample(3)))
			require.NoError(t, st.Put(ctx, sample(0)))

			got, err := st.Get(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, sample(3), got)

			frames, err := st.Frames(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int{0, 3}, frames)
		})
	}
}

func TestGetUnknownFrame(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get(ctx, 42)
			assert.ErrorIs(t, err, dynamo.ErrNotFound)
		})
	}
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Put(ctx, sample(1)))
			s := sample(1)
			s.Q[0] = 99
			require.NoError(t, st.Put(ctx, s))

			got, err := st.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 99.0, got.Q[0])
		})
	}
}

func TestMemoryIsolatesCallerSlices(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s := sample(2)
	require.NoError(t, m.Put(ctx, s))
	s.Q[0] = -1

	got, err := m.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Q[0])

	got.V[1] = 7
	again, err := m.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, -0.098, again.V[1])
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	db, err := OpenSQLite(path, "run-a")
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, sample(5)))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path, "run-a")
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, sample(5), got)
}

func TestTieredFallsThrough(t *testing.T) {
	ctx := context.Background()
	first, second := NewMemory(), NewMemory()
	require.NoError(t, second.Put(ctx, sample(4)))

	got, err := Tiered{first, second}.Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Frame)
}

func TestSQLiteRunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	a, err := OpenSQLite(path, "run-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenSQLite(path, "run-b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Put(ctx, sample(3)))
	other := sample(3)
	other.Q[0] = -5
	require.NoError(t, b.Put(ctx, other))
	require.NoError(t, b.Put(ctx, sample(7)))

	got, err := a.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, sample(3), got)

	_, err = a.Get(ctx, 7)
	assert.ErrorIs(t, err, dynamo.ErrNotFound)

	frames, err := a.Frames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, frames)

	frames, err = b.Frames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, frames)
}

func TestOpenSQLiteRequiresPathAndRun(t *testing.T) {
	_, err := OpenSQLite("  ", "run-a")
	assert.Error(t, err)
	_, err = OpenSQLite(filepath.Join(t.TempDir(), "checkpoints.db"), "")
	assert.Error(t, err)
}
