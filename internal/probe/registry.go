package probe

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Registry indexes runners by controller ID and by operation name.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Runner
	byName map[string]*Runner
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Runner),
		byName: make(map[string]*Runner),
	}
}

// Add registers r. Operation names must be unique.
func (g *Registry) Add(r *Runner) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byName[r.Name()]; ok {
		return eris.Errorf("probe: operation %q already registered", r.Name())
	}
	g.byID[r.Controller().ID()] = r
	g.byName[r.Name()] = r
	return nil
}

// Get looks a runner up by controller ID, falling back to operation name.
func (g *Registry) Get(key string) (*Runner, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if r, ok := g.byID[key]; ok {
		return r, true
	}
	r, ok := g.byName[key]
	return r, ok
}

// List returns every runner sorted by operation name.
func (g *Registry) List() []*Runner {
	g.mu.RLock()
	out := make([]*Runner, 0, len(g.byName))
	for _, r := range g.byName {
		out = append(out, r)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered runners.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byName)
}
