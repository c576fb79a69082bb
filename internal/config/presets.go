package config

import "sort"

// Presets are named overrides applied on top of DefaultConfig.
var Presets = map[string]map[string]any{
	"default": {},
	"interactive": {
		"newton/velocity_tol":  0.1,
		"newton/transrate_tol": 10.0,
		"newton/max_iter":      64,
		"line_search/max_iter": 4,
	},
	"precise": {
		"newton/velocity_tol":    0.01,
		"newton/transrate_tol":   0.01,
		"linear_system/tol_rate": 1e-5,
		"line_search/max_iter":   16,
	},
	"no_contact": {
		"contact/enable":          false,
		"contact/friction/enable": false,
	},
	"frictionless": {
		"contact/friction/enable": false,
	},
	"brute_force": {
		"collision_detection/method": BruteForce,
	},
	"stackless": {
		"collision_detection/method": StacklessBVH,
	},
	"small_step": {
		"dt": 0.001,
	},
	"zero_gravity": {
		"gravity": []float64{0, 0, 0},
	},
}

func GetPreset(name string) *Config {
	overrides, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	for k, v := range overrides {
		if err := cfg.Set(k, v); err != nil {
			return nil
		}
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
