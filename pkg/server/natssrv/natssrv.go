// Package natssrv exposes registered functions over NATS subjects.
//
// Each function carrying NATS metadata gets a subscription on
// quickscript.fn.<name>. Reply-mode functions answer the request
// message; publish-mode functions additionally broadcast their result
// on quickscript.events.<name> for passive listeners.
package natssrv

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/PSU3D0/quickscript/pkg/collect"
	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/frame"
	"github.com/PSU3D0/quickscript/pkg/function"
	"github.com/PSU3D0/quickscript/pkg/plugins"
	"github.com/PSU3D0/quickscript/pkg/telemetry"
)

const (
	// SubjectPrefix is the request subject root.
	SubjectPrefix = "quickscript.fn."
	// EventPrefix is the broadcast subject root for publish mode.
	EventPrefix = "quickscript.events."
)

// Envelope is the JSON reply for every request.
type Envelope struct {
	Result any             `json:"result,omitempty"`
	Meta   map[string]any  `json:"meta,omitempty"`
	Error  *qserrors.Error `json:"error,omitempty"`
}

// Server bridges a collection onto a NATS connection.
type Server struct {
	nc         *nats.Conn
	collection *collect.Collection
	logger     *slog.Logger
	metrics    *telemetry.InvocationMetrics
	subs       []*nats.Subscription
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

// Connect dials the NATS server with reconnection enabled.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
}

// New creates a server over an established connection.
func New(nc *nats.Conn, collection *collect.Collection, opts ...Option) *Server {
	s := &Server{
		nc:         nc,
		collection: collection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes every function carrying NATS metadata.
func (s *Server) Start(ctx context.Context) error {
	for _, f := range s.collection.FilterByNamespace(plugins.NATSNamespace) {
		meta, _ := plugins.NATSMetaOf(f)
		subject := SubjectPrefix + f.Name()

		sub, err := s.nc.Subscribe(subject, s.handlerFor(ctx, f, meta))
		if err != nil {
			s.drain()
			return err
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("subscribed", "subject", subject, "function", f.Name())
	}
	return nil
}

// Stop unsubscribes everything and flushes the connection.
func (s *Server) Stop() {
	s.drain()
	_ = s.nc.Flush()
}

func (s *Server) drain() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Server) handlerFor(ctx context.Context, f *function.Function, meta plugins.NATSMeta) nats.MsgHandler {
	return func(msg *nats.Msg) {
		env := s.dispatch(ctx, f, msg.Data)

		raw, err := json.Marshal(env)
		if err != nil {
			s.logger.Error("reply serialization failed", "function", f.Name(), "error", err)
			return
		}

		if msg.Reply != "" {
			if err := msg.Respond(raw); err != nil {
				s.logger.Warn("reply failed", "function", f.Name(), "error", err)
			}
		}
		if meta.Mode == plugins.ModePublish && env.Error == nil {
			if err := s.nc.Publish(EventPrefix+f.Name(), raw); err != nil {
				s.logger.Warn("event publish failed", "function", f.Name(), "error", err)
			}
		}
	}
}

// dispatch decodes the message payload, invokes the function, and
// shapes the reply envelope.
func (s *Server) dispatch(ctx context.Context, f *function.Function, data []byte) Envelope {
	var payload any
	if len(data) > 0 {
		var args map[string]any
		if err := json.Unmarshal(data, &args); err != nil {
			return Envelope{Error: qserrors.New(qserrors.CodeValidation,
				"message payload is not a JSON object", err)}
		}
		if len(args) > 0 {
			payload = args
		}
	}

	ctx = function.WithLogger(ctx, s.logger)
	ctx = function.WithInvocationID(ctx, uuid.NewString())

	start := time.Now()
	result, err := f.Invoke(ctx, payload)
	s.metrics.RecordInvocation(ctx, f.Name(), string(f.Category()), time.Since(start), err)
	if err != nil {
		s.logger.Warn("nats invocation failed", "function", f.Name(), "error", err)
		if qe := qserrors.As(err); qe != nil {
			return Envelope{Error: qe}
		}
		return Envelope{Error: qserrors.New(qserrors.CodeInternal, err.Error(), nil)}
	}

	return Envelope{Result: encodeValue(result.Value), Meta: result.Meta}
}

// encodeValue shapes frames into a columns/records document for JSON
// transport.
func encodeValue(value any) any {
	switch v := value.(type) {
	case *frame.Schema:
		return map[string]any{
			"columns": v.Frame().Columns(),
			"records": v.Frame().Records(),
		}
	case frame.Frame:
		return map[string]any{
			"columns": v.Columns(),
			"records": v.Records(),
		}
	default:
		return value
	}
}
