// Package graphqlsrv exposes registered functions as a GraphQL API.
//
// Queryables carrying GraphQL metadata become Query fields, mutatables
// become Mutation fields, and subscription-marked queryables become
// Subscription fields. Only single-record and record-list output
// shapes translate to a GraphQL type system; functions returning frames
// are rejected at schema build time.
package graphqlsrv

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/PSU3D0/quickscript/pkg/collect"
	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/function"
	"github.com/PSU3D0/quickscript/pkg/plugins"
	"github.com/PSU3D0/quickscript/pkg/schema"
	"github.com/PSU3D0/quickscript/pkg/telemetry"
)

// Server serves a GraphQL schema derived from a collection.
type Server struct {
	echo    *echo.Echo
	schema  graphql.Schema
	logger  *slog.Logger
	metrics *telemetry.InvocationMetrics
	addr    string
}

// Option configures the server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches invocation metrics.
func WithMetrics(m *telemetry.InvocationMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the schema and server. It fails when any exposed function
// has an output shape GraphQL cannot express.
func New(collection *collect.Collection, opts ...Option) (*Server, error) {
	s := &Server{
		logger: slog.Default(),
		addr:   ":8081",
	}
	for _, opt := range opts {
		opt(s)
	}

	built, err := s.buildSchema(collection)
	if err != nil {
		return nil, err
	}
	s.schema = built

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.POST("/graphql", s.handleGraphQL)
	s.echo = e

	return s, nil
}

// Schema exposes the built schema for direct execution.
func (s *Server) Schema() graphql.Schema {
	return s.schema
}

func (s *Server) buildSchema(collection *collect.Collection) (graphql.Schema, error) {
	b := &typeBuilder{types: make(map[reflect.Type]graphql.Output)}

	queries := graphql.Fields{}
	mutations := graphql.Fields{}
	subscriptions := graphql.Fields{}

	for _, f := range collection.FilterByNamespace(plugins.GraphQLNamespace) {
		meta, _ := plugins.GraphQLMetaOf(f)

		field, err := s.fieldFor(b, f, meta)
		if err != nil {
			return graphql.Schema{}, err
		}

		name := meta.Name
		if name == "" {
			name = operationName(f.Name())
		}

		switch {
		case meta.Subscription:
			// The source stream invokes the function; the field resolver
			// just passes each emitted value through.
			field.Subscribe = s.subscribeFor(f)
			field.Resolve = func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source, nil
			}
			subscriptions[name] = field
		case f.Category() == function.CategoryQueryable:
			queries[name] = field
		case f.Category() == function.CategoryMutatable:
			mutations[name] = field
		}
	}

	// GraphQL schemas require at least one query field.
	if len(queries) == 0 {
		queries["_health"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "ok", nil
			},
		}
	}

	cfg := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queries}),
	}
	if len(mutations) > 0 {
		cfg.Mutation = graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutations})
	}
	if len(subscriptions) > 0 {
		cfg.Subscription = graphql.NewObject(graphql.ObjectConfig{Name: "Subscription", Fields: subscriptions})
	}
	return graphql.NewSchema(cfg)
}

func (s *Server) fieldFor(b *typeBuilder, f *function.Function, meta plugins.GraphQLMeta) (*graphql.Field, error) {
	contract := f.Contract()

	var outType graphql.Output
	switch contract.Shape {
	case function.ShapeRecord:
		t, err := b.objectType(contract.OutType)
		if err != nil {
			return nil, err
		}
		outType = t
	case function.ShapeRecordList:
		elem, err := b.objectType(contract.ElemType)
		if err != nil {
			return nil, err
		}
		outType = graphql.NewList(elem)
	default:
		return nil, qserrors.Newf(qserrors.CodeContract,
			"function %q returns %s, which has no GraphQL representation",
			f.Name(), contract.Shape)
	}

	args := graphql.FieldConfigArgument{}
	if contract.ArgType != nil {
		for _, fld := range schema.Fields(contract.ArgType) {
			in, err := inputType(fld)
			if err != nil {
				return nil, qserrors.Newf(qserrors.CodeContract,
					"function %q argument %q: %v", f.Name(), fld.Name, err)
			}
			args[fld.Name] = &graphql.ArgumentConfig{
				Type:        in,
				Description: fld.Doc,
			}
		}
	}

	description := meta.Description
	if description == "" {
		description = f.Doc()
	}

	field := &graphql.Field{
		Type:        outType,
		Description: description,
		Args:        args,
		Resolve:     s.resolverFor(f),
	}
	if meta.Deprecated {
		field.DeprecationReason = "deprecated"
	}
	return field, nil
}

func (s *Server) resolverFor(f *function.Function) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		var payload any
		if len(p.Args) > 0 {
			payload = p.Args
		}

		ctx := function.WithLogger(p.Context, s.logger)

		start := time.Now()
		result, err := f.Invoke(ctx, payload)
		s.metrics.RecordInvocation(ctx, f.Name(), string(f.Category()), time.Since(start), err)
		if err != nil {
			s.logger.Warn("graphql invocation failed", "function", f.Name(), "error", err)
			return nil, err
		}
		return result.Value, nil
	}
}

// subscribeFor adapts a queryable into a subscription source stream.
// Each invocation emits one value and completes; failures end the
// stream after surfacing the error through the resolver chain.
func (s *Server) subscribeFor(f *function.Function) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		var payload any
		if len(p.Args) > 0 {
			payload = p.Args
		}

		ctx := function.WithLogger(p.Context, s.logger)

		out := make(chan interface{}, 1)
		go func() {
			defer close(out)
			start := time.Now()
			result, err := f.Invoke(ctx, payload)
			s.metrics.RecordInvocation(ctx, f.Name(), string(f.Category()), time.Since(start), err)
			if err != nil {
				s.logger.Warn("graphql subscription failed", "function", f.Name(), "error", err)
				return
			}
			select {
			case out <- result.Value:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}
}

// typeBuilder memoizes GraphQL object types per record type so shared
// records map to one schema type.
type typeBuilder struct {
	types map[reflect.Type]graphql.Output
}

func (b *typeBuilder) objectType(t reflect.Type) (graphql.Output, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if existing, ok := b.types[t]; ok {
		return existing, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, qserrors.Newf(qserrors.CodeContract,
			"type %s is not a structured record", t)
	}

	fields := graphql.Fields{}
	for _, fld := range schema.Fields(t) {
		gt, err := b.outputType(fld.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fld.Name, err)
		}
		fields[fld.Name] = &graphql.Field{
			Type:        gt,
			Description: fld.Doc,
		}
	}

	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:   typeName(t),
		Fields: fields,
	})
	b.types[t] = obj
	return obj, nil
}

func (b *typeBuilder) outputType(t reflect.Type) (graphql.Output, error) {
	if t == reflect.TypeOf(time.Time{}) {
		return graphql.DateTime, nil
	}
	switch t.Kind() {
	case reflect.String:
		return graphql.String, nil
	case reflect.Bool:
		return graphql.Boolean, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return graphql.Int, nil
	case reflect.Float32, reflect.Float64:
		return graphql.Float, nil
	case reflect.Slice:
		elem, err := b.outputType(t.Elem())
		if err != nil {
			return nil, err
		}
		return graphql.NewList(elem), nil
	case reflect.Pointer:
		return b.outputType(t.Elem())
	case reflect.Struct:
		return b.objectType(t)
	default:
		return nil, fmt.Errorf("kind %s has no GraphQL representation", t.Kind())
	}
}

func inputType(fld schema.Field) (graphql.Input, error) {
	var in graphql.Input
	t := fld.Type
	if t == reflect.TypeOf(time.Time{}) {
		in = graphql.DateTime
	} else {
		switch t.Kind() {
		case reflect.String:
			in = graphql.String
		case reflect.Bool:
			in = graphql.Boolean
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			in = graphql.Int
		case reflect.Float32, reflect.Float64:
			in = graphql.Float
		default:
			return nil, fmt.Errorf("kind %s is not a scalar input", t.Kind())
		}
	}
	if fld.Required {
		in = graphql.NewNonNull(in)
	}
	return in, nil
}

// operationName converts a snake_case function name to lowerCamelCase.
func operationName(name string) string {
	parts := strings.Split(name, "_")
	out := parts[0]
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		out += strings.ToUpper(p[:1]) + p[1:]
	}
	return out
}

func typeName(t reflect.Type) string {
	name := t.Name()
	if name == "" {
		return "Anonymous"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (s *Server) handleGraphQL(c echo.Context) error {
	var req graphqlRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        c.Request().Context(),
	})
	return c.JSON(http.StatusOK, result)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting graphql server", "addr", s.addr)
	return s.echo.Start(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
