// Package registry maps game type identifiers to session factories and loads
// the game catalog from YAML.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// Definition describes one playable game type.
type Definition struct {
	// Type is the identifier clients use in create-session requests.
	Type string `yaml:"type"`
	// Name is the human-readable game name.
	Name string `yaml:"name"`
	// Description is a one-line summary.
	Description string `yaml:"description"`
	// Engine selects how the game is built: "builtin" or "lua".
	Engine string `yaml:"engine"`
	// Builtin names the compiled-in game for the builtin engine.
	Builtin string `yaml:"builtin"`
	// Script is the Lua script path for the lua engine, relative to the script root.
	Script string `yaml:"script"`
	// InstructionLimit bounds Lua opcodes per hook call; 0 uses the default.
	InstructionLimit int `yaml:"instruction_limit"`
	// Settings are passed to the game unchanged.
	Settings map[string]any `yaml:"settings"`
}

type entry struct {
	def     Definition
	factory session.Factory
}

// Registry is a lookup from game type to factory. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a game type.
//
// Precondition: def.Type must be non-empty; factory must be non-nil.
// Postcondition: Returns an error when the type is already registered.
func (r *Registry) Register(def Definition, factory session.Factory) error {
	if def.Type == "" {
		return fmt.Errorf("registry: game type must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("registry: factory for %q must not be nil", def.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Type]; exists {
		return fmt.Errorf("registry: duplicate game type %q", def.Type)
	}
	r.entries[def.Type] = entry{def: def, factory: factory}
	return nil
}

// Resolve returns the factory for gameType.
//
// Postcondition: Returns (factory, true) if registered, or (nil, false).
func (r *Registry) Resolve(gameType string) (session.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[gameType]
	if !ok {
		return nil, false
	}
	return e.factory, true
}

// Definitions returns all registered definitions sorted by type.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}

// Len returns the number of registered game types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
