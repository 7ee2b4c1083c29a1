package providers

import "fmt"

// Registry holds configured Provider instances by name, as used by the agent
// loop to resolve a session's configured provider and by CLI/onboarding code
// to probe connectivity before committing a config.
type Registry struct {
	providers map[string]Provider
	order     []string // registration order, so List() is deterministic
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under its own Name(). A later registration with the same
// name replaces the earlier one without changing its position in List().
func (r *Registry) Register(p Provider) {
	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	return p, nil
}

// List returns the names of all registered providers in registration order.
func (r *Registry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
