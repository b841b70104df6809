// Package grpcsrv exposes registered functions over gRPC.
//
// A single generic Invoke method carries every call: the request is a
// Struct with a "function" name and an "args" object, the response a
// Struct with "result" and optional "meta". Keeping the surface to one
// untyped method means no per-function code generation.
package grpcsrv

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/PSU3D0/quickscript/pkg/collect"
	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/frame"
	"github.com/PSU3D0/quickscript/pkg/function"
	"github.com/PSU3D0/quickscript/pkg/plugins"
	"github.com/PSU3D0/quickscript/pkg/telemetry"
)

// ServiceName is the fully qualified gRPC service.
const ServiceName = "quickscript.v1.Functions"

// InvokeMethod is the full method path of the generic dispatcher.
const InvokeMethod = "/" + ServiceName + "/Invoke"

// Server dispatches Invoke calls against a collection.
type Server struct {
	collection *collect.Collection
	logger     *slog.Logger
	metrics    *telemetry.InvocationMetrics
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches invocation metrics.
func WithMetrics(m *telemetry.InvocationMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a dispatcher over the collection. Only functions carrying
// gRPC metadata are callable.
func New(collection *collect.Collection, opts ...Option) *Server {
	s := &Server{
		collection: collection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invoke handles one generic call.
func (s *Server) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := req.GetFields()["function"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "request is missing the function name")
	}

	f, ok := s.collection.Find(name)
	if !ok || !f.HasNamespace(plugins.GRPCNamespace) {
		return nil, status.Errorf(codes.NotFound, "function %q is not exposed over grpc", name)
	}

	var payload any
	if args := req.GetFields()["args"].GetStructValue(); args != nil && len(args.GetFields()) > 0 {
		payload = args.AsMap()
	}

	ctx = function.WithLogger(ctx, s.logger)
	ctx = function.WithInvocationID(ctx, uuid.NewString())

	start := time.Now()
	result, err := f.Invoke(ctx, payload)
	s.metrics.RecordInvocation(ctx, f.Name(), string(f.Category()), time.Since(start), err)
	if err != nil {
		s.logger.Warn("grpc invocation failed", "function", name, "error", err)
		return nil, toStatus(err)
	}

	body := map[string]any{}
	if result.Value != nil {
		encoded, err := jsonValue(result.Value)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "result for %q is not serializable: %v", name, err)
		}
		body["result"] = encoded
	}
	if len(result.Meta) > 0 {
		meta, err := jsonValue(result.Meta)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "metadata for %q is not serializable: %v", name, err)
		}
		body["meta"] = meta
	}

	resp, err := structpb.NewStruct(body)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "response for %q is not serializable: %v", name, err)
	}
	return resp, nil
}

// toStatus maps the error taxonomy onto gRPC status codes.
func toStatus(err error) error {
	qe := qserrors.As(err)
	if qe == nil {
		return status.Error(codes.Unknown, err.Error())
	}
	switch qe.Code {
	case qserrors.CodeValidation:
		return status.Error(codes.InvalidArgument, qe.Error())
	case qserrors.CodeDependency, qserrors.CodeEnvironment:
		return status.Error(codes.FailedPrecondition, qe.Error())
	case qserrors.CodeNotFound:
		return status.Error(codes.NotFound, qe.Error())
	default:
		return status.Error(codes.Internal, qe.Error())
	}
}

// jsonValue normalizes an arbitrary result into structpb-compatible
// values. Frames become a columns/records document.
func jsonValue(value any) (any, error) {
	switch v := value.(type) {
	case *frame.Schema:
		return jsonValue(map[string]any{
			"columns": v.Frame().Columns(),
			"records": v.Frame().Records(),
		})
	case frame.Frame:
		return jsonValue(map[string]any{
			"columns": v.Columns(),
			"records": v.Records(),
		})
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// functionsServer is the handler contract behind the service desc.
type functionsServer interface {
	Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(functionsServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: InvokeMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(functionsServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*functionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    invokeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quickscript/v1/functions.proto",
}

// Register attaches the dispatcher to a gRPC server.
func Register(gs *grpc.Server, s *Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Serve listens on addr and blocks until the context is canceled or the
// server fails.
func Serve(ctx context.Context, addr string, s *Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	gs := grpc.NewServer()
	Register(gs, s)

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	s.logger.Info("starting grpc server", "addr", addr)
	return gs.Serve(lis)
}
