// SPDX-License-Identifier: Apache-2.0
// Package function is the contract/dispatch core of quickscript. Plain
// Go functions are registered under a role (queryable, mutatable,
// script); registration infers the typed input/output contract once,
// records it on an immutable Function record, and every invocation runs
// through a validation gate before and after the underlying call.
//
// The package keeps a process-wide side table from function identity to
// its record, so collections and transport adapters can recover the
// record for a bare function value. Identity is the function's code
// pointer: registering two instances of the same closure literal maps
// them to a single record.
package function

import (
	"os"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
)

// Category names the semantic role a function was registered under.
// It is set once at registration time and never changes.
type Category string

const (
	// CategoryQueryable marks side-effect-free data retrieval.
	CategoryQueryable Category = "queryable"
	// CategoryMutatable marks functions causing external side effects.
	CategoryMutatable Category = "mutatable"
	// CategoryScript marks CLI entry points, minimally constrained.
	CategoryScript Category = "script"
)

// OutputShape classifies what a function's primary result must look
// like. Inferred once at registration, enforced on every checked call.
type OutputShape string

const (
	ShapeRecord      OutputShape = "single-record"
	ShapeRecordList  OutputShape = "record-list"
	ShapeFrame       OutputShape = "tabular-frame"
	ShapeFrameSchema OutputShape = "tabular-frame-with-schema"
	ShapeAny         OutputShape = "any"
)

// EnvKind is the coercion type declared for a required environment
// variable.
type EnvKind string

const (
	EnvString   EnvKind = "string"
	EnvInt      EnvKind = "int"
	EnvFloat    EnvKind = "float"
	EnvBool     EnvKind = "bool"
	EnvDuration EnvKind = "duration"
)

// Namespace is the reserved core metadata namespace. Every registered
// function carries one record under it; transport plugins add their own
// namespaces on top.
const Namespace = "quickscript"

// CoreMetadata is the record attached under the core namespace,
// consumed by every transport adapter.
type CoreMetadata struct {
	Dependencies        []string           `json:"dependencies"`
	EnvVars             map[string]EnvKind `json:"env_vars"`
	RuntimeTypechecking bool               `json:"runtime_typechecking"`
}

// Contract is the inferred input/output contract, cached on the record.
type Contract struct {
	// ArgType is the declared positional record type (struct or pointer
	// to struct), nil when the function takes no structured input.
	ArgType reflect.Type
	// OutType is the declared primary result type, nil for error-only
	// scripts.
	OutType reflect.Type
	// ElemType is the record element type for record-list shapes.
	ElemType reflect.Type
	Shape    OutputShape
	// SideChannel reports whether the function returns a trailing
	// map[string]any that passes through unvalidated.
	SideChannel bool
}

// Function is the immutable record built at registration time. Only
// metadata grows after construction, and each namespace is written
// exactly once.
type Function struct {
	name     string
	doc      string
	category Category
	fn       reflect.Value
	contract Contract

	deps      []string
	envVars   map[string]EnvKind
	typecheck bool

	mu       sync.Mutex
	metadata map[string]any
}

// Option configures registration.
type Option func(*Function)

// WithDoc attaches a human-readable description, surfaced by listings
// and transport indexes.
func WithDoc(doc string) Option {
	return func(f *Function) { f.doc = doc }
}

// WithDependencies declares external binaries that must be resolvable
// on PATH before the function may execute.
func WithDependencies(deps ...string) Option {
	return func(f *Function) { f.deps = append(f.deps, deps...) }
}

// WithEnvVars declares environment variables that must be present and
// coercible to the given kinds before the function may execute.
func WithEnvVars(vars map[string]EnvKind) Option {
	return func(f *Function) {
		if f.envVars == nil {
			f.envVars = make(map[string]EnvKind, len(vars))
		}
		for k, v := range vars {
			f.envVars[k] = v
		}
	}
}

// WithTypechecking fixes the per-function typecheck override. The
// process-wide flag still gates checking at every call.
func WithTypechecking(enabled bool) Option {
	return func(f *Function) { f.typecheck = enabled }
}

// New registers fn under the given role. The signature must be
//
//	func(ctx context.Context[, args A]) ([out[, meta map[string]any],] error)
//
// where A is a structured record (struct or pointer to struct). The
// output contract is inferred from the declared result type per role;
// violations return a CONTRACT_ERROR and the function is never wrapped.
func New(name string, category Category, fn any, opts ...Option) (*Function, error) {
	if strings.TrimSpace(name) == "" {
		return nil, qserrors.Newf(qserrors.CodeContract, "function name is required")
	}
	switch category {
	case CategoryQueryable, CategoryMutatable, CategoryScript:
	default:
		return nil, qserrors.Newf(qserrors.CodeContract, "unknown category %q", category)
	}
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func {
		return nil, qserrors.Newf(qserrors.CodeContract, "%s %q must be a function, got %T", category, name, fn)
	}
	contract, err := inferContract(name, category, fv.Type())
	if err != nil {
		return nil, err
	}

	f := &Function{
		name:      name,
		category:  category,
		fn:        fv,
		contract:  contract,
		typecheck: true,
		metadata:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(f)
	}

	core := CoreMetadata{
		Dependencies:        append([]string(nil), f.deps...),
		EnvVars:             f.envVars,
		RuntimeTypechecking: f.typecheck,
	}
	if err := f.AttachMetadata(Namespace, core); err != nil {
		return nil, err
	}

	records.Store(fv.Pointer(), f)
	return f, nil
}

// NewQueryable registers a side-effect-free retrieval function.
func NewQueryable(name string, fn any, opts ...Option) (*Function, error) {
	return New(name, CategoryQueryable, fn, opts...)
}

// NewMutatable registers a side-effecting function returning a single
// record.
func NewMutatable(name string, fn any, opts ...Option) (*Function, error) {
	return New(name, CategoryMutatable, fn, opts...)
}

// NewScript registers a CLI entry point.
func NewScript(name string, fn any, opts ...Option) (*Function, error) {
	return New(name, CategoryScript, fn, opts...)
}

// Name returns the registered name.
func (f *Function) Name() string { return f.name }

// Doc returns the registered description.
func (f *Function) Doc() string { return f.doc }

// Category returns the role set at registration.
func (f *Function) Category() Category { return f.category }

// Contract returns the inferred contract.
func (f *Function) Contract() Contract { return f.contract }

// Dependencies returns the declared external dependencies.
func (f *Function) Dependencies() []string {
	return append([]string(nil), f.deps...)
}

// EnvVars returns the declared environment requirements.
func (f *Function) EnvVars() map[string]EnvKind {
	out := make(map[string]EnvKind, len(f.envVars))
	for k, v := range f.envVars {
		out[k] = v
	}
	return out
}

// TypecheckEnabled reports whether the validation gate runs for this
// call. The process-wide flag is re-read every time; the per-function
// override is fixed at registration.
func (f *Function) TypecheckEnabled() bool {
	return f.typecheck && RuntimeTypechecking()
}

// AttachMetadata records a metadata entry under a namespace. A
// namespace is written exactly once per function; a second write is a
// contract violation, not a silent overwrite.
func (f *Function) AttachMetadata(namespace string, data any) error {
	if namespace == "" {
		return qserrors.Newf(qserrors.CodeContract, "metadata namespace is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.metadata[namespace]; exists {
		return qserrors.Newf(qserrors.CodeContract,
			"metadata for namespace %q already exists on %q", namespace, f.name)
	}
	f.metadata[namespace] = data
	return nil
}

// Metadata returns the entry attached under a namespace.
func (f *Function) Metadata(namespace string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.metadata[namespace]
	return v, ok
}

// HasNamespace reports whether metadata exists under a namespace.
func (f *Function) HasNamespace(namespace string) bool {
	_, ok := f.Metadata(namespace)
	return ok
}

// Namespaces returns all namespaces with attached metadata.
func (f *Function) Namespaces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.metadata))
	for ns := range f.metadata {
		out = append(out, ns)
	}
	return out
}

// records is the process-wide side table from function identity to its
// record, populated exclusively through New.
var records sync.Map // uintptr -> *Function

// Lookup recovers the record for a bare function value, if it was
// registered.
func Lookup(fn any) (*Function, bool) {
	if f, ok := fn.(*Function); ok {
		return f, true
	}
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func {
		return nil, false
	}
	v, ok := records.Load(fv.Pointer())
	if !ok {
		return nil, false
	}
	return v.(*Function), true
}

var runtimeTypechecking atomic.Bool

func init() {
	runtimeTypechecking.Store(!envDisabled(os.Getenv("QUICKSCRIPT_DISABLE_RUNTIME_TYPECHECKING")))
}

func envDisabled(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// RuntimeTypechecking reports the process-wide typecheck flag.
func RuntimeTypechecking() bool { return runtimeTypechecking.Load() }

// SetRuntimeTypechecking sets the process-wide typecheck flag. Intended
// for tests and debugging; mutate it before functions are invoked
// concurrently.
func SetRuntimeTypechecking(enabled bool) { runtimeTypechecking.Store(enabled) }
