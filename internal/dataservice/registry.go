package dataservice

import (
	"fmt"
	"sort"
)

// Registry holds registered domain services keyed by name. Domains are
// independent types selected at orchestration time, not subclasses.
type Registry struct {
	services map[string]Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds a service. A name may be registered once.
func (r *Registry) Register(s Service) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("service must have a name")
	}
	if _, ok := r.services[name]; ok {
		return fmt.Errorf("domain %s already registered", name)
	}
	r.services[name] = s
	return nil
}

// Get returns the named service, nil when absent.
func (r *Registry) Get(name string) Service {
	return r.services[name]
}

// All returns every registered service, sorted by name for deterministic
// iteration.
func (r *Registry) All() []Service {
	names := make([]string, 0, len(r.services))
	for n := range r.services {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]Service, 0, len(names))
	for _, n := range names {
		out = append(out, r.services[n])
	}
	return out
}

// Select returns the named services in name order. An empty selection
// returns all services; an unknown name is an error.
func (r *Registry) Select(names []string) ([]Service, error) {
	if len(names) == 0 {
		return r.All(), nil
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	out := make([]Service, 0, len(sorted))
	for _, n := range sorted {
		s, ok := r.services[n]
		if !ok {
			return nil, fmt.Errorf("unknown domain %s", n)
		}
		out = append(out, s)
	}
	return out, nil
}
