// Package toolregistry implements the tool registry (C3): the mapping
// from tool name to descriptor, plus the prompt-facing projections the
// agent loop needs to build its tool list.
package toolregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kestrel-run/agentcore/pkg/models"
)

// Registry holds registered tool descriptors keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*models.ToolDescriptor
	warn  func(format string, args ...any)
}

// New returns an empty Registry. warn receives a message whenever a
// registration overwrites an existing tool; pass nil to discard it.
func New(warn func(format string, args ...any)) *Registry {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &Registry{tools: make(map[string]*models.ToolDescriptor), warn: warn}
}

// Register validates and stores d. Re-registering an existing name
// overwrites it and emits a warning rather than failing.
func (r *Registry) Register(d *models.ToolDescriptor) error {
	if err := validateDescriptor(d); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		r.warn("tool %q re-registered, overwriting previous descriptor", d.Name)
	}
	r.tools[d.Name] = d
	return nil
}

// Unregister removes a tool by name. Unregistering an unknown name is a
// no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func validateDescriptor(d *models.ToolDescriptor) error {
	if d == nil {
		return fmt.Errorf("toolregistry: nil descriptor")
	}
	if d.Name == "" {
		return fmt.Errorf("toolregistry: tool descriptor missing name")
	}
	if d.Description == "" {
		return fmt.Errorf("toolregistry: tool %q missing description", d.Name)
	}
	if d.Version == "" {
		return fmt.Errorf("toolregistry: tool %q missing version", d.Name)
	}
	if d.Category == "" {
		return fmt.Errorf("toolregistry: tool %q missing category", d.Name)
	}
	if d.Risk == "" {
		return fmt.Errorf("toolregistry: tool %q missing risk level", d.Name)
	}
	if err := validateSchemaShape(d.ParamSchema); err != nil {
		return fmt.Errorf("toolregistry: tool %q: %w", d.Name, err)
	}
	if d.Handler == nil {
		return fmt.Errorf("toolregistry: tool %q missing handler", d.Name)
	}
	if d.Async && d.AsyncOps == nil {
		return fmt.Errorf("toolregistry: tool %q marked async without async ops", d.Name)
	}
	return nil
}

// Get returns the descriptor for name, and whether it exists.
func (r *Registry) Get(name string) (*models.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns every registered tool's hint for "tool not found" errors.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ListByCategory returns descriptors for a given category.
func (r *Registry) ListByCategory(category string) []*models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.ToolDescriptor
	for _, d := range r.tools {
		if d.Category == category {
			out = append(out, d)
		}
	}
	sortByName(out)
	return out
}

// ListRequiringConfirmation returns descriptors flagged RequiresConfirmation.
func (r *Registry) ListRequiringConfirmation() []*models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.ToolDescriptor
	for _, d := range r.tools {
		if d.RequiresConfirmation {
			out = append(out, d)
		}
	}
	sortByName(out)
	return out
}

// ListAsync returns descriptors flagged Async.
func (r *Registry) ListAsync() []*models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.ToolDescriptor
	for _, d := range r.tools {
		if d.Async {
			out = append(out, d)
		}
	}
	sortByName(out)
	return out
}

// AsSchemaProjections returns the prompt-facing view of every registered
// tool: name, description, and the object schema's properties/required,
// with handlers and other non-serializable fields stripped.
func (r *Registry) AsSchemaProjections() []models.SchemaProjection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SchemaProjection, 0, len(r.tools))
	for _, d := range r.tools {
		props, required, _ := schemaPropertiesAndRequired(d.ParamSchema)
		out = append(out, models.SchemaProjection{
			Name:        d.Name,
			Description: d.Description,
			Properties:  props,
			Required:    required,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortByName(ds []*models.ToolDescriptor) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
}
