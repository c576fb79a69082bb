package world

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/san-kum/ipcsim/internal/compute"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/san-kum/ipcsim/internal/world"

// Engine bundles the compute backend with a workspace directory that
// receives surface dumps and checkpoints.
type Engine struct {
	backend   compute.Backend
	workspace string
	logger    *slog.Logger
	tracer    trace.Tracer
}

type EngineOption func(*Engine)

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine accepts "cpu", "cuda", "auto" or "" (auto) as backend.
func NewEngine(backend, workspace string, opts ...EngineOption) (*Engine, error) {
	switch backend {
	case "", "auto", "cpu", "cuda":
	default:
		return nil, fmt.Errorf("backend %q: %w", backend, dynamo.ErrInvalidConfig)
	}
	if workspace == "" {
		workspace = filepath.Join(os.TempDir(), "ipcsim")
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	e := &Engine{
		backend:   compute.ByName(backend),
		workspace: workspace,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Backend() compute.Backend { return e.backend }
func (e *Engine) Workspace() string        { return e.workspace }
func (e *Engine) Logger() *slog.Logger     { return e.logger }
