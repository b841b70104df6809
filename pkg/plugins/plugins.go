// Package plugins attaches transport-specific metadata to registered
// functions. Each plugin owns one namespace; attachments go through the
// namespace-guarded metadata store, so applying the same plugin twice
// to one function fails loudly.
package plugins

import (
	"time"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/function"
)

// Namespace constants for the built-in plugins.
const (
	RESTNamespace    = "rest"
	GraphQLNamespace = "graphql"
	GRPCNamespace    = "grpc"
	NATSNamespace    = "nats"
	ServerNamespace  = "server_meta"
)

// RESTMeta configures how a function is exposed as a REST endpoint.
type RESTMeta struct {
	// Prefix is prepended to the derived path.
	Prefix string `json:"prefix,omitempty"`
	// Method overrides the category-derived HTTP method.
	Method string `json:"method,omitempty"`
	// Path overrides the full route path.
	Path       string `json:"path,omitempty"`
	Deprecated bool   `json:"deprecated,omitempty"`
}

// SupportsREST marks a function as a REST endpoint.
func SupportsREST(f *function.Function, meta RESTMeta) error {
	return f.AttachMetadata(RESTNamespace, meta)
}

// GraphQLMeta configures how a function is exposed as a GraphQL
// operation.
type GraphQLMeta struct {
	// Name overrides the operation name.
	Name string `json:"name,omitempty"`
	// Description overrides the function doc.
	Description string `json:"description,omitempty"`
	Deprecated  bool   `json:"deprecated,omitempty"`
	// Subscription marks the operation as a subscription; only
	// queryables qualify.
	Subscription bool `json:"subscription,omitempty"`
}

// SupportsGraphQL marks a function as a GraphQL operation. Subscription
// operations must be queryables.
func SupportsGraphQL(f *function.Function, meta GraphQLMeta) error {
	if meta.Subscription && f.Category() != function.CategoryQueryable {
		return qserrors.Newf(qserrors.CodeContract,
			"graphql subscription %q must be a queryable, got %s", f.Name(), f.Category())
	}
	return f.AttachMetadata(GraphQLNamespace, meta)
}

// GRPCMeta configures gRPC exposure. The generic dispatch service is
// shared; these fields are advisory routing hints for clients.
type GRPCMeta struct {
	ServiceName string `json:"service_name,omitempty"`
	Method      string `json:"method,omitempty"`
}

// SupportsGRPC marks a function for gRPC exposure.
func SupportsGRPC(f *function.Function, meta GRPCMeta) error {
	if meta.ServiceName == "" {
		meta.ServiceName = "quickscript.v1.Functions"
	}
	if meta.Method == "" {
		meta.Method = "Invoke"
	}
	return f.AttachMetadata(GRPCNamespace, meta)
}

// SocketMode selects the messaging pattern for a NATS-exposed
// function.
type SocketMode string

const (
	// ModeReply serves request-reply on the function's subject.
	ModeReply SocketMode = "reply"
	// ModePublish additionally fans results out on the events subject.
	ModePublish SocketMode = "publish"
)

// NATSMeta configures message-socket exposure.
type NATSMeta struct {
	Mode SocketMode `json:"socket_mode,omitempty"`
}

// SupportsNATS marks a function for message-socket exposure.
func SupportsNATS(f *function.Function, meta NATSMeta) error {
	switch meta.Mode {
	case "":
		meta.Mode = ModeReply
	case ModeReply, ModePublish:
	default:
		return qserrors.Newf(qserrors.CodeContract, "unknown socket mode %q on %q", meta.Mode, f.Name())
	}
	return f.AttachMetadata(NATSNamespace, meta)
}

// ServerMeta is common serving metadata consumed by several transport
// adapters. Timeout is advisory only; the core does not enforce it.
type ServerMeta struct {
	Timeout     time.Duration `json:"timeout,omitempty"`
	CacheTTL    time.Duration `json:"cache_ttl,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Description string        `json:"description,omitempty"`
	Version     string        `json:"version,omitempty"`
}

// WithServerMeta attaches common serving metadata to a function.
func WithServerMeta(f *function.Function, meta ServerMeta) error {
	return f.AttachMetadata(ServerNamespace, meta)
}

// RESTMetaOf returns the REST metadata for a function, if attached.
func RESTMetaOf(f *function.Function) (RESTMeta, bool) {
	raw, ok := f.Metadata(RESTNamespace)
	if !ok {
		return RESTMeta{}, false
	}
	meta, ok := raw.(RESTMeta)
	return meta, ok
}

// GraphQLMetaOf returns the GraphQL metadata for a function, if
// attached.
func GraphQLMetaOf(f *function.Function) (GraphQLMeta, bool) {
	raw, ok := f.Metadata(GraphQLNamespace)
	if !ok {
		return GraphQLMeta{}, false
	}
	meta, ok := raw.(GraphQLMeta)
	return meta, ok
}

// GRPCMetaOf returns the gRPC metadata for a function, if attached.
func GRPCMetaOf(f *function.Function) (GRPCMeta, bool) {
	raw, ok := f.Metadata(GRPCNamespace)
	if !ok {
		return GRPCMeta{}, false
	}
	meta, ok := raw.(GRPCMeta)
	return meta, ok
}

// NATSMetaOf returns the socket metadata for a function, if attached.
func NATSMetaOf(f *function.Function) (NATSMeta, bool) {
	raw, ok := f.Metadata(NATSNamespace)
	if !ok {
		return NATSMeta{}, false
	}
	meta, ok := raw.(NATSMeta)
	return meta, ok
}

// ServerMetaOf returns the common serving metadata for a function, if
// attached.
func ServerMetaOf(f *function.Function) (ServerMeta, bool) {
	raw, ok := f.Metadata(ServerNamespace)
	if !ok {
		return ServerMeta{}, false
	}
	meta, ok := raw.(ServerMeta)
	return meta, ok
}
