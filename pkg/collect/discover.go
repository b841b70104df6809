package collect

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/PSU3D0/quickscript/pkg/function"
)

// ManifestSuffix marks unit manifest files picked up by directory
// discovery.
const ManifestSuffix = ".qs.yaml"

// Loader populates a call-scoped registrar with a unit's functions.
// Returning an error (or panicking) marks the whole unit as failed.
type Loader func(*Registrar) error

// Registrar collects a single unit's registrations. It is drained by
// the discovery engine after the loader returns.
type Registrar struct {
	fns []*function.Function
}

// Queryable registers a side-effect-free retrieval function into the
// unit.
func (r *Registrar) Queryable(name string, fn any, opts ...function.Option) (*function.Function, error) {
	return r.register(function.CategoryQueryable, name, fn, opts...)
}

// Mutatable registers a side-effecting function into the unit.
func (r *Registrar) Mutatable(name string, fn any, opts ...function.Option) (*function.Function, error) {
	return r.register(function.CategoryMutatable, name, fn, opts...)
}

// Script registers a CLI entry point into the unit.
func (r *Registrar) Script(name string, fn any, opts ...function.Option) (*function.Function, error) {
	return r.register(function.CategoryScript, name, fn, opts...)
}

// Add appends an already-registered function to the unit.
func (r *Registrar) Add(f *function.Function) {
	if f != nil {
		r.fns = append(r.fns, f)
	}
}

func (r *Registrar) register(category function.Category, name string, fn any, opts ...function.Option) (*function.Function, error) {
	f, err := function.New(name, category, fn, opts...)
	if err != nil {
		return nil, err
	}
	r.fns = append(r.fns, f)
	return f, nil
}

var units struct {
	sync.RWMutex
	m map[string]Loader
}

// RegisterUnit registers a named source unit's loader, typically from a
// package init function. Registering the same name again replaces the
// previous loader.
func RegisterUnit(name string, loader Loader) {
	units.Lock()
	defer units.Unlock()
	if units.m == nil {
		units.m = make(map[string]Loader)
	}
	units.m[name] = loader
}

func lookupUnit(name string) (Loader, bool) {
	units.RLock()
	defer units.RUnlock()
	loader, ok := units.m[name]
	return loader, ok
}

// FromUnit loads a single registered unit in isolation: the loader runs
// against a fresh registrar, so name collisions across units cannot
// interfere. A missing unit, a loader error, or a loader panic yields
// an empty collection; discovery never propagates unit failures.
func FromUnit(name string) *Collection {
	c := New(name)
	loader, ok := lookupUnit(name)
	if !ok {
		return c
	}
	reg := &Registrar{}
	if err := runLoader(loader, reg); err != nil {
		return New(name)
	}
	for _, f := range reg.fns {
		c.Add(f)
	}
	return c
}

func runLoader(loader Loader, reg *Registrar) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return loader(reg)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "unit loader panicked" }

type manifest struct {
	Unit string `yaml:"unit"`
	Name string `yaml:"name"`
}

// FromFile discovers the unit named by a single manifest file. Any
// failure (unreadable file, invalid YAML, missing unit field) yields an
// empty collection named after the file.
func FromFile(path string) *Collection {
	name := manifestStem(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return New(name)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return New(name)
	}
	if m.Unit == "" {
		return New(name)
	}
	c := FromUnit(m.Unit)
	if m.Name != "" {
		c.Name = m.Name
	} else {
		c.Name = name
	}
	return c
}

// FromDir recursively discovers every unit manifest under root and
// unions the per-file collections in traversal order. Traversal order
// follows filepath.WalkDir and is not guaranteed stable across
// platforms.
func FromDir(root string) *Collection {
	c := New(root)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ManifestSuffix) {
			return nil
		}
		c.AddCollection(FromFile(path))
		return nil
	})
	return c
}

func manifestStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ManifestSuffix)
}
