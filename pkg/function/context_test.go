package function

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestAmbientLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	LoggerFrom(ctx).Info("from ambient")

	if !strings.Contains(buf.String(), "from ambient") {
		t.Errorf("ambient logger not used: %q", buf.String())
	}
}

func TestAmbientLoggerFallback(t *testing.T) {
	if LoggerFrom(context.Background()) == nil {
		t.Fatal("expected the default logger as fallback")
	}
}

func TestInvocationID(t *testing.T) {
	ctx := WithInvocationID(context.Background(), "run-42")
	if got := InvocationIDFrom(ctx); got != "run-42" {
		t.Errorf("id = %q", got)
	}
	if got := InvocationIDFrom(context.Background()); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestAmbientValuesReachTheFunction(t *testing.T) {
	var seen string
	inspect := func(ctx context.Context) (reply, error) {
		seen = InvocationIDFrom(ctx)
		return reply{Message: "ok"}, nil
	}
	f, err := NewQueryable("ambient_inspect", inspect)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := WithInvocationID(context.Background(), "req-7")
	if _, err := f.Invoke(ctx, nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if seen != "req-7" {
		t.Errorf("function saw id %q", seen)
	}
}
