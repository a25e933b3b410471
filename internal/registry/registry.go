// Package registry implements the process-wide game descriptor collection
// (spec.md §4.7): a registration map populated at startup from hand-written
// "native" descriptors (internal/model.Game with CatalogCode == "") and a
// parsed catalog file ("catalog-family" descriptors, CatalogCode set),
// grounded on original_source/src/gsm/games/registry.py's register/get/
// list_all contract.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gsmc-io/gsmc/internal/model"
)

// Registry is the in-memory game catalog. Safe for concurrent reads;
// Register is expected to run only during startup.
type Registry struct {
	mu    sync.RWMutex
	games map[string]model.Game
}

func New() *Registry {
	return &Registry{games: map[string]model.Game{}}
}

// Register adds game, overwriting any existing descriptor of the same
// name — duplicate names across native and catalog sources are resolved
// last-registration-wins, matching the original's plain dict assignment.
func (r *Registry) Register(game model.Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[game.Name] = game
}

func (r *Registry) Get(name string) (model.Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[name]
	return g, ok
}

// MustGet is for call sites that already validated name exists (e.g. after
// a Get check elsewhere); it panics otherwise, matching a programming
// error rather than a user-facing one.
func (r *Registry) MustGet(name string) model.Game {
	g, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("registry: game %q not registered", name))
	}
	return g
}

// ListAll returns every registered game, sorted by name for stable CLI and
// HTTP API output.
func (r *Registry) ListAll() []model.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Game, 0, len(r.games))
	for _, g := range r.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
