package plugins

import (
	"context"
	"testing"
	"time"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/function"
)

type echoArgs struct {
	Text string `json:"text" validate:"required"`
}

type echoReply struct {
	Text string `json:"text"`
}

func register(t *testing.T, name string, category function.Category) *function.Function {
	t.Helper()
	f, err := function.New(name, category, func(_ context.Context, args *echoArgs) (*echoReply, error) {
		return &echoReply{Text: args.Text}, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return f
}

func TestSupportsREST(t *testing.T) {
	f := register(t, "rest-echo", function.CategoryQueryable)
	if err := SupportsREST(f, RESTMeta{Prefix: "/api", Method: "POST"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	meta, ok := RESTMetaOf(f)
	if !ok || meta.Prefix != "/api" {
		t.Fatalf("unexpected metadata: %+v ok=%v", meta, ok)
	}
	if err := SupportsREST(f, RESTMeta{}); !qserrors.IsContract(err) {
		t.Fatalf("double attach must fail, got %v", err)
	}
}

func TestSupportsGraphQLSubscriptionGate(t *testing.T) {
	m := register(t, "gql-mutate", function.CategoryMutatable)
	err := SupportsGraphQL(m, GraphQLMeta{Subscription: true})
	if !qserrors.IsContract(err) {
		t.Fatalf("subscription on a mutatable must fail, got %v", err)
	}
	q := register(t, "gql-query", function.CategoryQueryable)
	if err := SupportsGraphQL(q, GraphQLMeta{Name: "latestReading", Subscription: true}); err != nil {
		t.Fatalf("attach: %v", err)
	}
}

func TestSupportsGRPCDefaults(t *testing.T) {
	f := register(t, "grpc-echo", function.CategoryQueryable)
	if err := SupportsGRPC(f, GRPCMeta{}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	meta, _ := GRPCMetaOf(f)
	if meta.ServiceName != "quickscript.v1.Functions" || meta.Method != "Invoke" {
		t.Errorf("defaults not applied: %+v", meta)
	}
}

func TestSupportsNATSModes(t *testing.T) {
	f := register(t, "nats-echo", function.CategoryQueryable)
	if err := SupportsNATS(f, NATSMeta{}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	meta, _ := NATSMetaOf(f)
	if meta.Mode != ModeReply {
		t.Errorf("default mode should be reply, got %s", meta.Mode)
	}
	g := register(t, "nats-bad", function.CategoryQueryable)
	if err := SupportsNATS(g, NATSMeta{Mode: "ROUTER"}); !qserrors.IsContract(err) {
		t.Fatalf("unknown mode must fail, got %v", err)
	}
}

func TestServerMeta(t *testing.T) {
	f := register(t, "meta-echo", function.CategoryQueryable)
	if err := WithServerMeta(f, ServerMeta{CacheTTL: 30 * time.Second, Tags: []string{"demo"}}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	meta, ok := ServerMetaOf(f)
	if !ok || meta.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}
