package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/dynamo"
)

type field struct {
	get func(c *Config) any
	set func(c *Config, v any) error
}

var fields = map[string]field{
	"dt":                         floatField(func(c *Config) *float64 { return &c.Dt }),
	"gravity":                    vec3Field(func(c *Config) *[]float64 { return &c.Gravity }),
	"contact/enable":             boolField(func(c *Config) *bool { return &c.Contact.Enable }),
	"contact/friction/enable":    boolField(func(c *Config) *bool { return &c.Contact.Friction.Enable }),
	"contact/constitution":       stringField(func(c *Config) *string { return &c.Contact.Constitution }),
	"contact/d_hat":              floatField(func(c *Config) *float64 { return &c.Contact.DHat }),
	"contact/eps_velocity":       floatField(func(c *Config) *float64 { return &c.Contact.EpsVelocity }),
	"newton/max_iter":            intField(func(c *Config) *int { return &c.Newton.MaxIter }),
	"newton/min_iter":            intField(func(c *Config) *int { return &c.Newton.MinIter }),
	"newton/velocity_tol":        floatField(func(c *Config) *float64 { return &c.Newton.VelocityTol }),
	"newton/transrate_tol":       floatField(func(c *Config) *float64 { return &c.Newton.TransrateTol }),
	"newton/ccd_tol":             floatField(func(c *Config) *float64 { return &c.Newton.CCDTol }),
	"linear_system/tol_rate":     floatField(func(c *Config) *float64 { return &c.LinearSystem.TolRate }),
	"linear_system/solver":       stringField(func(c *Config) *string { return &c.LinearSystem.Solver }),
	"line_search/max_iter":       intField(func(c *Config) *int { return &c.LineSearch.MaxIter }),
	"line_search/report_energy":  boolField(func(c *Config) *bool { return &c.LineSearch.ReportEnergy }),
	"collision_detection/method": stringField(func(c *Config) *string { return &c.CollisionDetection.Method }),
	"sanity_check/enable":        boolField(func(c *Config) *bool { return &c.SanityCheck.Enable }),
	"extras/debug/dump_surface":  boolField(func(c *Config) *bool { return &c.Extras.Debug.DumpSurface }),
	"extras/strict_mode/enable":  boolField(func(c *Config) *bool { return &c.Extras.StrictMode.Enable }),
}

// normalizeKey accepts both "contact/d_hat" and "contact.d_hat".
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), ".", "/")
}

// Keys returns every recognised key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) Get(key string) (any, error) {
	f, ok := fields[normalizeKey(key)]
	if !ok {
		return nil, invalid("unknown key %q", key)
	}
	return f.get(c), nil
}

// Set assigns one value. Unknown keys, wrong types and writes after Lock
// fail with ErrInvalidConfig.
func (c *Config) Set(key string, value any) error {
	if c.locked {
		return invalid("config is locked, cannot set %q", key)
	}
	k := normalizeKey(key)
	f, ok := fields[k]
	if !ok {
		return invalid("unknown key %q", key)
	}
	if err := f.set(c, value); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	return nil
}

// SetString parses a textual value, as given on the command line.
func (c *Config) SetString(key, value string) error {
	k := normalizeKey(key)
	f, ok := fields[k]
	if !ok {
		return invalid("unknown key %q", key)
	}
	switch f.get(c).(type) {
	case float64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return invalid("%s: %v", k, err)
		}
		return c.Set(k, v)
	case int:
		v, err := strconv.Atoi(value)
		if err != nil {
			return invalid("%s: %v", k, err)
		}
		return c.Set(k, v)
	case bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return invalid("%s: %v", k, err)
		}
		return c.Set(k, v)
	case []float64:
		parts := strings.Split(value, ",")
		vs := make([]float64, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return invalid("%s: %v", k, err)
			}
			vs = append(vs, v)
		}
		return c.Set(k, vs)
	default:
		return c.Set(k, value)
	}
}

// Flatten returns every key with its current value.
func (c *Config) Flatten() map[string]any {
	out := make(map[string]any, len(fields))
	for k, f := range fields {
		out[k] = f.get(c)
	}
	return out
}

// Merge applies a nested map such as {"newton": {"max_iter": 8}}.
func (c *Config) Merge(m map[string]any) error {
	return c.merge("", m)
}

func (c *Config) merge(prefix string, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		full := k
		if prefix != "" {
			full = prefix + "/" + k
		}
		if sub, ok := m[k].(map[string]any); ok {
			if err := c.merge(full, sub); err != nil {
				return err
			}
			continue
		}
		if err := c.Set(full, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func typeError(want string, v any) error {
	return fmt.Errorf("expected %s, got %T: %w", want, v, dynamo.ErrInvalidConfig)
}

func floatField(p func(*Config) *float64) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, v any) error {
			switch x := v.(type) {
			case float64:
				*p(c) = x
			case float32:
				*p(c) = float64(x)
			case int:
				*p(c) = float64(x)
			case int64:
				*p(c) = float64(x)
			default:
				return typeError("number", v)
			}
			return nil
		},
	}
}

func intField(p func(*Config) *int) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, v any) error {
			switch x := v.(type) {
			case int:
				*p(c) = x
			case int64:
				*p(c) = int(x)
			case float64:
				if x != math.Trunc(x) {
					return typeError("integer", v)
				}
				*p(c) = int(x)
			default:
				return typeError("integer", v)
			}
			return nil
		},
	}
}

func boolField(p func(*Config) *bool) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, v any) error {
			x, ok := v.(bool)
			if !ok {
				return typeError("bool", v)
			}
			*p(c) = x
			return nil
		},
	}
}

func stringField(p func(*Config) *string) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, v any) error {
			x, ok := v.(string)
			if !ok {
				return typeError("string", v)
			}
			*p(c) = x
			return nil
		},
	}
}

func vec3Field(p func(*Config) *[]float64) field {
	return field{
		get: func(c *Config) any { return append([]float64(nil), *p(c)...) },
		set: func(c *Config, v any) error {
			var out []float64
			switch x := v.(type) {
			case mgl64.Vec3:
				out = x[:]
			case [3]float64:
				out = x[:]
			case []float64:
				out = x
			case []any:
				for _, e := range x {
					switch n := e.(type) {
					case float64:
						out = append(out, n)
					case int:
						out = append(out, float64(n))
					default:
						return typeError("vec3", v)
					}
				}
			default:
				return typeError("vec3", v)
			}
			if len(out) != 3 {
				return typeError("vec3", v)
			}
			*p(c) = append([]float64(nil), out...)
			return nil
		},
	}
}

// GravityVec returns gravity as a vector.
func (c *Config) GravityVec() mgl64.Vec3 {
	if len(c.Gravity) != 3 {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{c.Gravity[0], c.Gravity[1], c.Gravity[2]}
}
