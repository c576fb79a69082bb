package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	t.Setenv(EnvEndpoint, "")
	shutdown, err := Setup(context.Background(), "ipcsim-test")
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestSetupDisabled(t *testing.T) {
	t.Setenv(EnvEndpoint, "http://localhost:4318")
	t.Setenv(EnvEnabled, "false")
	shutdown, err := Setup(context.Background(), "ipcsim-test")
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, "warn")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown", "frame", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "frame=3") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := NewLogger(&buf, "loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
