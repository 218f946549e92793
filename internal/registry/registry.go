// Package registry maps category names to store collections.
//
// The category set is fixed when the registry is built and never changes
// for the life of the process.
package registry

import (
	"errors"
	"fmt"

	"github.com/fidde/log_dashboard/internal/normalize"
	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
)

// Definition describes one category to register.
type Definition struct {
	Name       string
	Collection string
	Normalize  normalize.Strategy
}

// Category is a resolved category: its store handle and the normalization
// its records need.
type Category struct {
	Name       string
	Collection storage.Collection
	Normalize  normalize.Strategy
}

// Registry is an immutable, ordered category table.
type Registry struct {
	backend    storage.Backend
	order      []string
	categories map[string]*Category
}

// New builds a registry over backend. Names must be unique and non-empty;
// an empty Collection defaults to the category name.
func New(backend storage.Backend, defs []Definition) (*Registry, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}

	r := &Registry{
		backend:    backend,
		order:      make([]string, 0, len(defs)),
		categories: make(map[string]*Category, len(defs)),
	}
	for _, def := range defs {
		if def.Name == "" {
			return nil, errors.New("category name cannot be empty")
		}
		if _, dup := r.categories[def.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", def.Name)
		}
		collectionName := def.Collection
		if collectionName == "" {
			collectionName = def.Name
		}
		r.categories[def.Name] = &Category{
			Name:       def.Name,
			Collection: backend.Collection(collectionName),
			Normalize:  def.Normalize,
		}
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Resolve returns the named category, or an error wrapping
// models.ErrCategoryNotFound.
func (r *Registry) Resolve(name string) (*Category, error) {
	c, ok := r.categories[name]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", name, models.ErrCategoryNotFound)
	}
	return c, nil
}

// Names returns category names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every category in registration order.
func (r *Registry) All() []*Category {
	out := make([]*Category, len(r.order))
	for i, name := range r.order {
		out[i] = r.categories[name]
	}
	return out
}

// Backend returns the store the categories live in.
func (r *Registry) Backend() storage.Backend {
	return r.backend
}
