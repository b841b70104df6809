package natssrv

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/PSU3D0/quickscript/pkg/collect"
	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/function"
	"github.com/PSU3D0/quickscript/pkg/plugins"
)

type echoArgs struct {
	Text string `json:"text" validate:"required"`
}

type echoReply struct {
	Text string `json:"text"`
}

func testServer(t *testing.T) (*Server, *function.Function) {
	t.Helper()

	echoFn := func(ctx context.Context, in echoArgs) (echoReply, error) {
		return echoReply{Text: in.Text}, nil
	}
	f, err := function.NewQueryable("echo", echoFn)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := plugins.SupportsNATS(f, plugins.NATSMeta{}); err != nil {
		t.Fatalf("nats metadata: %v", err)
	}

	col := collect.New("nats-test")
	col.Add(f)

	// A nil connection is fine for handler-level dispatch tests.
	return New(nil, col), f
}

func TestDispatchRoundTrip(t *testing.T) {
	s, f := testServer(t)

	env := s.dispatch(context.Background(), f, []byte(`{"text": "hi"}`))
	if env.Error != nil {
		t.Fatalf("unexpected error: %v", env.Error)
	}

	reply, ok := env.Result.(echoReply)
	if !ok {
		t.Fatalf("result type %T", env.Result)
	}
	if reply.Text != "hi" {
		t.Errorf("text = %q", reply.Text)
	}
}

func TestDispatchValidationError(t *testing.T) {
	s, f := testServer(t)

	env := s.dispatch(context.Background(), f, []byte(`{}`))
	if env.Error == nil {
		t.Fatal("expected a validation error")
	}
	if env.Error.Code != qserrors.CodeValidation {
		t.Errorf("code = %s", env.Error.Code)
	}
}

func TestDispatchBadJSON(t *testing.T) {
	s, f := testServer(t)

	env := s.dispatch(context.Background(), f, []byte(`not json`))
	if env.Error == nil || env.Error.Code != qserrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", env.Error)
	}
}

func TestEnvelopeSerialization(t *testing.T) {
	s, f := testServer(t)

	env := s.dispatch(context.Background(), f, []byte(`{"text": "hello"}`))
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded struct {
		Result echoReply `json:"result"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if decoded.Result.Text != "hello" {
		t.Errorf("round trip text = %q", decoded.Result.Text)
	}
}
