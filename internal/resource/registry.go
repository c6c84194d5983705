// Package resource implements the external collaborators spec.md §1
// carves out of the core engine: the resource registry
// (internal/coap.ResourceRegistry) and the CoRE link-format renderer
// (internal/coap.LinkFormatRenderer) for .well-known/core.
package resource

import (
	"sync"

	"github.com/malbeclabs/coapd/internal/coap"
)

// Attrs carries the CoRE link-format attributes advertised for a
// resource under .well-known/core: resource type, interface
// description, and a human title.
type Attrs struct {
	ResourceType string
	Interface    string
	Title        string
}

type entry struct {
	resource *coap.Resource
	attrs    Attrs
}

// Registry is a map-backed coap.ResourceRegistry, guarded by a
// RWMutex so handlers registered between event-loop iterations (spec.md
// §5: "mutated only between event-loop iterations") don't race a
// concurrent Lookup from a Serve loop running on another goroutine in
// hosts that choose to register resources from a background task.
type Registry struct {
	mu      sync.RWMutex
	byKey   map[coap.ResourceKey]*entry
	order   []coap.ResourceKey
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[coap.ResourceKey]*entry)}
}

// Register adds a resource at path with the given method handler table
// and link-format attributes, returning the coap.Resource the caller
// can also hand directly to tests. Re-registering the same path
// replaces the previous entry's handlers and attributes but keeps its
// position in link-format rendering order.
func (r *Registry) Register(path string, attrs Attrs, handlers [5]coap.MethodHandler) *coap.Resource {
	key := coap.HashURIPath(coap.SplitURIPath(path))
	res := &coap.Resource{Key: key, Path: path, Handler: handlers}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[key]; !exists {
		r.order = append(r.order, key)
	}
	r.byKey[key] = &entry{resource: res, attrs: attrs}
	return res
}

// Lookup implements coap.ResourceRegistry.
func (r *Registry) Lookup(key coap.ResourceKey) (*coap.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	return e.resource, true
}

// entries returns a stable-ordered snapshot for link-format rendering.
func (r *Registry) entries() []struct {
	path  string
	attrs Attrs
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]struct {
		path  string
		attrs Attrs
	}, 0, len(r.order))
	for _, k := range r.order {
		e := r.byKey[k]
		out = append(out, struct {
			path  string
			attrs Attrs
		}{path: e.resource.Path, attrs: e.attrs})
	}
	return out
}
