package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dt != 0.01 {
		t.Errorf("expected dt 0.01, got %f", cfg.Dt)
	}
	if cfg.GravityVec() != (mgl64.Vec3{0, -9.8, 0}) {
		t.Errorf("expected gravity (0,-9.8,0), got %v", cfg.Gravity)
	}
	if !cfg.Contact.Enable || !cfg.Contact.Friction.Enable {
		t.Error("contact and friction should be enabled by default")
	}
	if cfg.Newton.MaxIter != 1024 {
		t.Errorf("expected newton/max_iter 1024, got %d", cfg.Newton.MaxIter)
	}
	if cfg.CollisionDetection.Method != LinearBVH {
		t.Errorf("expected linear_bvh, got %s", cfg.CollisionDetection.Method)
	}
	require.NoError(t, cfg.Validate())
}

func TestSetGet(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		want  any
	}{
		{"float", "dt", 0.02, 0.02},
		{"int as float", "contact/d_hat", 1, 1.0},
		{"dotted key", "contact.d_hat", 0.05, 0.05},
		{"int", "newton/max_iter", 8, 8},
		{"integral float as int", "line_search/max_iter", 4.0, 4},
		{"bool", "contact/friction/enable", false, false},
		{"string", "collision_detection/method", BruteForce, BruteForce},
		{"vec3", "gravity", mgl64.Vec3{0, 0, -1}, []float64{0, 0, -1}},
		{"any slice", "gravity", []any{0.0, 1, 0.0}, []float64{0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Set(tt.key, tt.value))
			got, err := cfg.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetRejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"unknown key", "newton/unknown", 1},
		{"bool for float", "dt", true},
		{"fractional int", "newton/max_iter", 2.5},
		{"short vector", "gravity", []float64{1, 2}},
		{"number for string", "collision_detection/method", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DefaultConfig().Set(tt.key, tt.value)
			assert.True(t, errors.Is(err, dynamo.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestLock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lock()
	err := cfg.Set("dt", 0.5)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
	assert.Equal(t, 0.01, cfg.Dt)

	clone := cfg.Clone()
	assert.False(t, clone.IsLocked())
	require.NoError(t, clone.Set("dt", 0.5))
	assert.Equal(t, 0.01, cfg.Dt)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"dt", "dt", 0.0},
		{"d_hat", "contact/d_hat", -1.0},
		{"min_iter above max", "newton/min_iter", 2048},
		{"ccd_tol", "newton/ccd_tol", 1.5},
		{"method", "collision_detection/method", "octree"},
		{"solver", "linear_system/solver", "cholesky"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Set(tt.key, tt.val))
			assert.ErrorIs(t, cfg.Validate(), dynamo.ErrInvalidConfig)
		})
	}
}

func TestSetString(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.SetString("dt", "0.005"))
	require.NoError(t, cfg.SetString("newton/max_iter", "32"))
	require.NoError(t, cfg.SetString("contact/enable", "false"))
	require.NoError(t, cfg.SetString("gravity", "0, 0, -9.8"))
	assert.Equal(t, 0.005, cfg.Dt)
	assert.Equal(t, 32, cfg.Newton.MaxIter)
	assert.False(t, cfg.Contact.Enable)
	assert.Equal(t, []float64{0, 0, -9.8}, cfg.Gravity)
	assert.ErrorIs(t, cfg.SetString("dt", "fast"), dynamo.ErrInvalidConfig)
}

func TestMerge(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Merge(map[string]any{
		"newton":  map[string]any{"max_iter": 8, "velocity_tol": 0.2},
		"contact": map[string]any{"friction": map[string]any{"enable": false}},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Newton.MaxIter)
	assert.Equal(t, 0.2, cfg.Newton.VelocityTol)
	assert.False(t, cfg.Contact.Friction.Enable)

	err = cfg.Merge(map[string]any{"newton": map[string]any{"bogus": 1}})
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestKeysCoverFlatten(t *testing.T) {
	cfg := DefaultConfig()
	flat := cfg.Flatten()
	for _, k := range Keys() {
		if _, ok := flat[k]; !ok {
			t.Errorf("key %s missing from Flatten", k)
		}
	}
	assert.Len(t, flat, len(Keys()))
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	data := "dt: 0.02\ncontact:\n  d_hat: 0.005\n  friction:\n    enable: false\nnewton:\n  max_iter: 16\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.02, cfg.Dt)
	assert.Equal(t, 0.005, cfg.Contact.DHat)
	assert.False(t, cfg.Contact.Friction.Enable)
	assert.True(t, cfg.Contact.Enable)
	assert.Equal(t, 16, cfg.Newton.MaxIter)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.toml")
	data := "dt = 0.005\n\n[collision_detection]\nmethod = \"brute_force\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.005, cfg.Dt)
	assert.Equal(t, BruteForce, cfg.CollisionDetection.Method)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte("newton:\n  iterations: 3\n"), 0644))
	_, err := Load(path)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, ext := range []string{".yaml", ".toml"} {
		t.Run(ext, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Set("dt", 0.003))
			require.NoError(t, cfg.Set("collision_detection/method", StacklessBVH))
			path := filepath.Join(t.TempDir(), "cfg"+ext)
			require.NoError(t, Save(path, cfg))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Flatten(), loaded.Flatten())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("IPC_DT", "0.004")
	t.Setenv("IPC_CONTACT_D_HAT", "0.02")
	t.Setenv("IPC_NEWTON_MAX_ITER", "12")
	t.Setenv("IPC_CONTACT_FRICTION_ENABLE", "false")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 0.004, cfg.Dt)
	assert.Equal(t, 0.02, cfg.Contact.DHat)
	assert.Equal(t, 12, cfg.Newton.MaxIter)
	assert.False(t, cfg.Contact.Friction.Enable)
	assert.Equal(t, []float64{0, -9.8, 0}, cfg.Gravity)
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("no_contact")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Contact.Enable {
		t.Error("expected contact disabled")
	}
	for _, name := range ListPresets() {
		cfg := GetPreset(name)
		require.NotNil(t, cfg, name)
		assert.NoError(t, cfg.Validate(), name)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}
