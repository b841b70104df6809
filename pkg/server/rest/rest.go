// Package rest exposes registered functions over HTTP.
//
// Queryables and scripts are served as GET routes reading query
// parameters, mutatables as POST routes reading a JSON body. Only
// functions carrying REST metadata are routed; everything else stays
// invisible to HTTP clients.
package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/PSU3D0/quickscript/pkg/collect"
	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/frame"
	"github.com/PSU3D0/quickscript/pkg/function"
	"github.com/PSU3D0/quickscript/pkg/plugins"
	"github.com/PSU3D0/quickscript/pkg/schema"
	"github.com/PSU3D0/quickscript/pkg/telemetry"
)

// MetaHeader carries the invocation side channel to HTTP clients.
const MetaHeader = "X-Quickscript-Meta"

// Server serves a collection over HTTP.
type Server struct {
	echo       *echo.Echo
	collection *collect.Collection
	logger     *slog.Logger
	metrics    *telemetry.InvocationMetrics
	cache      *gocache.Cache
	addr       string
}

// Option configures the server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches invocation metrics.
func WithMetrics(m *telemetry.InvocationMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates an HTTP server for the collection. Routes are derived
// from each function's REST metadata at construction time.
func New(collection *collect.Collection, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:       e,
		collection: collection,
		logger:     slog.Default(),
		cache:      gocache.New(gocache.NoExpiration, 5*time.Minute),
		addr:       ":8080",
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(s.requestLogger)
	s.registerRoutes()
	return s
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		s.logger.Info("http request",
			"method", c.Request().Method,
			"uri", c.Request().RequestURI,
			"status", c.Response().Status,
			"duration", time.Since(start),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/health", s.handleHealth)

	for _, f := range s.collection.FilterByNamespace(plugins.RESTNamespace) {
		meta, _ := plugins.RESTMetaOf(f)
		method, path := routeFor(f, meta)
		s.echo.Add(method, path, s.handlerFor(f))
	}
}

// routeFor derives the HTTP method and path for a function. Metadata
// overrides win over category defaults.
func routeFor(f *function.Function, meta plugins.RESTMeta) (string, string) {
	method := http.MethodGet
	if f.Category() == function.CategoryMutatable {
		method = http.MethodPost
	}
	if meta.Method != "" {
		method = strings.ToUpper(meta.Method)
	}

	path := meta.Path
	if path == "" {
		path = "/" + f.Name()
		if meta.Prefix != "" {
			path = "/" + strings.Trim(meta.Prefix, "/") + path
		}
	}
	return method, path
}

// routeInfo is one entry of the index document.
type routeInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Doc         string `json:"doc,omitempty"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Deprecated  bool   `json:"deprecated,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`
}

// handleIndex lists every routed function with its input schema.
func (s *Server) handleIndex(c echo.Context) error {
	routes := make([]routeInfo, 0)
	for _, f := range s.collection.FilterByNamespace(plugins.RESTNamespace) {
		meta, _ := plugins.RESTMetaOf(f)
		method, path := routeFor(f, meta)

		info := routeInfo{
			Name:       f.Name(),
			Category:   string(f.Category()),
			Doc:        f.Doc(),
			Method:     method,
			Path:       path,
			Deprecated: meta.Deprecated,
		}
		if arg := f.Contract().ArgType; arg != nil {
			info.InputSchema = schema.JSONSchema(arg)
		}
		routes = append(routes, info)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"collection": s.collection.Name,
		"functions":  routes,
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// cacheEntry is a served response held for queryables with a cache TTL.
type cacheEntry struct {
	body any
	meta string
}

func (s *Server) handlerFor(f *function.Function) echo.HandlerFunc {
	serverMeta, _ := plugins.ServerMetaOf(f)

	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if serverMeta.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, serverMeta.Timeout)
			defer cancel()
		}

		cacheKey := ""
		if serverMeta.CacheTTL > 0 && f.Category() == function.CategoryQueryable {
			cacheKey = c.Request().URL.RequestURI()
			if hit, ok := s.cache.Get(cacheKey); ok {
				entry := hit.(cacheEntry)
				if entry.meta != "" {
					c.Response().Header().Set(MetaHeader, entry.meta)
				}
				return c.JSON(http.StatusOK, entry.body)
			}
		}

		payload, err := requestPayload(c)
		if err != nil {
			return s.writeError(c, f, err)
		}

		ctx = function.WithLogger(ctx, s.logger)
		if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
			ctx = function.WithInvocationID(ctx, reqID)
		}

		tracer := otel.Tracer("quickscript/rest")
		ctx, span := tracer.Start(ctx, "invoke "+f.Name())
		span.SetAttributes(
			attribute.String("function", f.Name()),
			attribute.String("category", string(f.Category())),
		)

		start := time.Now()
		result, err := f.Invoke(ctx, payload)
		elapsed := time.Since(start)

		s.metrics.RecordInvocation(ctx, f.Name(), string(f.Category()), elapsed, err)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return s.writeError(c, f, err)
		}
		span.End()

		body := encodeValue(result.Value)
		metaJSON := ""
		if len(result.Meta) > 0 {
			if raw, err := json.Marshal(result.Meta); err == nil {
				metaJSON = string(raw)
				c.Response().Header().Set(MetaHeader, metaJSON)
			}
		}

		if cacheKey != "" {
			s.cache.Set(cacheKey, cacheEntry{body: body, meta: metaJSON}, serverMeta.CacheTTL)
		}
		return c.JSON(http.StatusOK, body)
	}
}

// requestPayload extracts the invocation payload from the request.
// GET requests read query parameters, everything else reads the JSON
// body. An absent payload stays nil so no-arg functions work.
func requestPayload(c echo.Context) (any, error) {
	if c.Request().Method == http.MethodGet {
		params := c.QueryParams()
		if len(params) == 0 {
			return nil, nil
		}
		payload := make(map[string]string, len(params))
		for key := range params {
			payload[key] = params.Get(key)
		}
		return payload, nil
	}

	if c.Request().Body == nil || c.Request().ContentLength == 0 {
		return nil, nil
	}
	var payload map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		return nil, qserrors.New(qserrors.CodeValidation, "request body is not valid JSON", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

// encodeValue shapes the invocation result for JSON transport. Frames
// become a columns/records document; everything else passes through.
func encodeValue(value any) any {
	switch v := value.(type) {
	case *frame.Schema:
		return map[string]any{
			"columns": v.Frame().Columns(),
			"records": v.Frame().Records(),
			"schema":  schema.JSONSchema(v.RowType()),
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

func (s *Server) writeError(c echo.Context, f *function.Function, err error) error {
	status := http.StatusInternalServerError
	var body any = map[string]string{"error": err.Error()}

	if qe := qserrors.As(err); qe != nil {
		status = qe.StatusCode
		body = qe
	}

	s.logger.Warn("invocation failed",
		"function", f.Name(),
		"status", status,
		"error", err,
	)
	return c.JSON(status, body)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.addr)
	return s.echo.Start(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
