// Package mcpsrv exposes registered functions as MCP tools so agent
// runtimes can discover and call them over the Model Context Protocol.
package mcpsrv

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/PSU3D0/quickscript/pkg/collect"
	"github.com/PSU3D0/quickscript/pkg/frame"
	"github.com/PSU3D0/quickscript/pkg/function"
	"github.com/PSU3D0/quickscript/pkg/schema"
	"github.com/PSU3D0/quickscript/pkg/telemetry"
)

// Server wraps the mcp-go server around a collection.
type Server struct {
	mcpServer *server.MCPServer
	logger    *slog.Logger
	metrics   *telemetry.InvocationMetrics
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

// New creates an MCP server exposing every function in the collection
// as a tool. Scripts are included; agent runtimes treat them like any
// other side-effecting tool.
func New(name, version string, collection *collect.Collection, opts ...Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, f := range collection.All() {
		s.registerTool(f)
	}
	return s
}

func (s *Server) registerTool(f *function.Function) {
	tool := s.toolFor(f)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		var payload any
		if len(args) > 0 {
			payload = args
		}

		ctx = function.WithLogger(ctx, s.logger)
		ctx = function.WithInvocationID(ctx, uuid.NewString())

		start := time.Now()
		result, err := f.Invoke(ctx, payload)
		s.metrics.RecordInvocation(ctx, f.Name(), string(f.Category()), time.Since(start), err)
		if err != nil {
			s.logger.Warn("mcp invocation failed", "function", f.Name(), "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}

		text, err := resultText(result)
		if err != nil {
			return mcp.NewToolResultError("result is not serializable: " + err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})
}

// toolFor derives the MCP tool definition, embedding the argument JSON
// schema when the function declares a record input.
func (s *Server) toolFor(f *function.Function) mcp.Tool {
	description := f.Doc()
	if description == "" {
		description = string(f.Category()) + " " + f.Name()
	}

	if arg := f.Contract().ArgType; arg != nil {
		if raw, err := json.Marshal(schema.JSONSchema(arg)); err == nil {
			return mcp.NewToolWithRawSchema(f.Name(), description, raw)
		}
	}
	return mcp.NewTool(f.Name(), mcp.WithDescription(description))
}

// resultText serializes the invocation outcome for the tool reply.
// Frames become a columns/records document; side-channel metadata is
// folded into the reply under a meta key.
func resultText(result function.Result) (string, error) {
	value := result.Value
	switch v := value.(type) {
	case *frame.Schema:
		value = map[string]any{"columns": v.Frame().Columns(), "records": v.Frame().Records()}
	case frame.Frame:
		value = map[string]any{"columns": v.Columns(), "records": v.Records()}
	}

	body := map[string]any{}
	if value != nil {
		body["result"] = value
	}
	if len(result.Meta) > 0 {
		body["meta"] = result.Meta
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ServeStdio starts the server on Stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
