// Package trust resolves capability names to their trust declarations.
package trust

import (
	"sort"
	"strings"

	"github.com/crypdick/pynchy-gate/internal/model"
)

// Registry is an immutable lookup table of trust declarations.
// A Registry is never mutated after construction; reloads build a new one.
type Registry struct {
	decls map[string]model.TrustDeclaration
}

// NewRegistry copies and normalizes the given declarations.
// Names are matched case-insensitively.
func NewRegistry(decls map[string]model.TrustDeclaration) *Registry {
	m := make(map[string]model.TrustDeclaration, len(decls))
	for name, d := range decls {
		m[normalizeName(name)] = d.Normalized()
	}
	return &Registry{decls: m}
}

// Resolve returns the declaration for a capability. Unknown names, and a
// nil Registry, yield the cautious default.
func (r *Registry) Resolve(name string) model.TrustDeclaration {
	d, _ := r.Lookup(name)
	return d
}

// Lookup is Resolve plus whether the name was explicitly declared.
func (r *Registry) Lookup(name string) (model.TrustDeclaration, bool) {
	if r == nil {
		return model.CautiousDeclaration(), false
	}
	d, ok := r.decls[normalizeName(name)]
	if !ok {
		return model.CautiousDeclaration(), false
	}
	return d, true
}

// Names returns the declared capability names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.decls))
	for n := range r.decls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of declared capabilities.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.decls)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
