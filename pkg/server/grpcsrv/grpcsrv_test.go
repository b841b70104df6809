package grpcsrv

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/PSU3D0/quickscript/pkg/collect"
	"github.com/PSU3D0/quickscript/pkg/function"
	"github.com/PSU3D0/quickscript/pkg/plugins"
)

type sumArgs struct {
	A int `json:"a" validate:"required"`
	B int `json:"b"`
}

type sumResult struct {
	Total int `json:"total"`
}

func startTestServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	add := func(ctx context.Context, in sumArgs) (sumResult, error) {
		return sumResult{Total: in.A + in.B}, nil
	}
	f, err := function.NewQueryable("add", add)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := plugins.SupportsGRPC(f, plugins.GRPCMeta{}); err != nil {
		t.Fatalf("grpc metadata: %v", err)
	}

	hidden := func(ctx context.Context, in sumArgs) (sumResult, error) {
		return sumResult{}, nil
	}
	hf, err := function.NewQueryable("hidden", hidden)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	col := collect.New("grpc-test")
	col.Add(f)
	col.Add(hf)

	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	Register(gs, New(col))

	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, req *structpb.Struct) (*structpb.Struct, error) {
	t.Helper()
	resp := new(structpb.Struct)
	err := conn.Invoke(context.Background(), InvokeMethod, req, resp)
	return resp, err
}

func request(t *testing.T, name string, args map[string]any) *structpb.Struct {
	t.Helper()
	body := map[string]any{"function": name}
	if args != nil {
		body["args"] = args
	}
	req, err := structpb.NewStruct(body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestInvokeRoundTrip(t *testing.T) {
	conn := startTestServer(t)

	resp, err := invoke(t, conn, request(t, "add", map[string]any{"a": 2, "b": 3}))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}

	result := resp.GetFields()["result"].GetStructValue()
	if result == nil {
		t.Fatalf("missing result in %v", resp)
	}
	if got := result.GetFields()["total"].GetNumberValue(); got != 5 {
		t.Errorf("total = %v, want 5", got)
	}
}

func TestInvokeUnknownFunction(t *testing.T) {
	conn := startTestServer(t)

	_, err := invoke(t, conn, request(t, "nope", nil))
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestInvokeUnexposedFunction(t *testing.T) {
	conn := startTestServer(t)

	// Registered but without grpc metadata.
	_, err := invoke(t, conn, request(t, "hidden", map[string]any{"a": 1}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound for unexposed function, got %v", err)
	}
}

func TestInvokeValidationError(t *testing.T) {
	conn := startTestServer(t)

	// Missing the required "a" field.
	_, err := invoke(t, conn, request(t, "add", map[string]any{"b": 3}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestInvokeMissingName(t *testing.T) {
	conn := startTestServer(t)

	_, err := invoke(t, conn, request(t, "", nil))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for missing name, got %v", err)
	}
}
