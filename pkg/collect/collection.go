// Package collect implements discovery and aggregation of registered
// quickscript functions. Source units declare themselves through an
// explicit registration protocol (RegisterUnit); the filesystem carries
// unit manifests that name them. Discovery is best-effort: a unit that
// fails to load yields an empty collection rather than an error.
package collect

import (
	"strings"

	"github.com/PSU3D0/quickscript/pkg/function"
)

// Collection is the aggregate registry of discovered functions for a
// source scope. Functions live in exactly one of the three category
// sequences; growth is monotonic (there is no remove).
type Collection struct {
	Name       string
	Queryables []*function.Function
	Mutatables []*function.Function
	Scripts    []*function.Function
}

// New creates an empty named collection.
func New(name string) *Collection {
	return &Collection{Name: name}
}

// Add classifies and appends a function. The argument may be a
// *function.Function or a bare function value; bare values that were
// never registered are silently ignored, which lets callers sweep
// arbitrary function sets without requiring every one to be
// framework-aware.
func (c *Collection) Add(fn any) {
	f, ok := function.Lookup(fn)
	if !ok {
		return
	}
	switch f.Category() {
	case function.CategoryQueryable:
		c.Queryables = append(c.Queryables, f)
	case function.CategoryMutatable:
		c.Mutatables = append(c.Mutatables, f)
	case function.CategoryScript:
		c.Scripts = append(c.Scripts, f)
	}
}

// AddCollection appends the contents of another collection.
func (c *Collection) AddCollection(other *Collection) {
	if other == nil {
		return
	}
	c.Queryables = append(c.Queryables, other.Queryables...)
	c.Mutatables = append(c.Mutatables, other.Mutatables...)
	c.Scripts = append(c.Scripts, other.Scripts...)
}

// Union returns a new collection concatenating this one with the given
// collections, preserving input order. Duplicates across inputs are
// allowed; there is no dedup by identity or name.
func (c *Collection) Union(others ...*Collection) *Collection {
	names := make([]string, 0, len(others))
	for _, o := range others {
		names = append(names, o.Name)
	}
	name := c.Name
	if len(names) > 0 {
		name = c.Name + " + " + strings.Join(names, ", ")
	}
	out := New(name)
	out.AddCollection(c)
	for _, o := range others {
		out.AddCollection(o)
	}
	return out
}

// All returns every function across the three sequences, in category
// order (queryables, mutatables, scripts).
func (c *Collection) All() []*function.Function {
	out := make([]*function.Function, 0, c.Len())
	out = append(out, c.Queryables...)
	out = append(out, c.Mutatables...)
	out = append(out, c.Scripts...)
	return out
}

// Len returns the total number of functions.
func (c *Collection) Len() int {
	return len(c.Queryables) + len(c.Mutatables) + len(c.Scripts)
}

// Find returns the first function with the given name, optionally
// narrowed to one category.
func (c *Collection) Find(name string, category ...function.Category) (*function.Function, bool) {
	for _, f := range c.categoryScope(category...) {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// FilterByNamespace returns all functions carrying metadata under the
// given namespace, optionally narrowed to one category. Ordering
// follows the collection's own order.
func (c *Collection) FilterByNamespace(namespace string, category ...function.Category) []*function.Function {
	var out []*function.Function
	for _, f := range c.categoryScope(category...) {
		if f.HasNamespace(namespace) {
			out = append(out, f)
		}
	}
	return out
}

func (c *Collection) categoryScope(category ...function.Category) []*function.Function {
	if len(category) == 0 {
		return c.All()
	}
	switch category[0] {
	case function.CategoryQueryable:
		return c.Queryables
	case function.CategoryMutatable:
		return c.Mutatables
	case function.CategoryScript:
		return c.Scripts
	}
	return nil
}
