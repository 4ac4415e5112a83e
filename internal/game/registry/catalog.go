package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// Engine names accepted in Definition.Engine.
const (
	EngineBuiltin = "builtin"
	EngineLua     = "lua"
)

// Builder turns a catalog definition into a factory for one engine.
type Builder func(def Definition) (session.Factory, error)

type catalogFile struct {
	Games []Definition `yaml:"games"`
}

// LoadCatalog reads game definitions from a YAML file.
//
// Precondition: path must name a readable YAML file with a top-level "games" list.
// Postcondition: Returns definitions in file order, or an error describing every invalid entry.
func LoadCatalog(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) ([]Definition, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	var errs []string
	for i, def := range f.Games {
		if def.Type == "" {
			errs = append(errs, fmt.Sprintf("games[%d]: type must not be empty", i))
		}
		switch def.Engine {
		case EngineBuiltin:
			if def.Builtin == "" {
				errs = append(errs, fmt.Sprintf("games[%d] %q: builtin must not be empty", i, def.Type))
			}
		case EngineLua:
			if def.Script == "" {
				errs = append(errs, fmt.Sprintf("games[%d] %q: script must not be empty", i, def.Type))
			}
		default:
			errs = append(errs, fmt.Sprintf("games[%d] %q: engine must be one of [builtin, lua], got %q", i, def.Type, def.Engine))
		}
	}
	dupes := lo.FindDuplicates(lo.Map(f.Games, func(d Definition, _ int) string { return d.Type }))
	for _, d := range dupes {
		errs = append(errs, fmt.Sprintf("duplicate game type %q", d))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog validation failed: %s", strings.Join(errs, "; "))
	}
	return f.Games, nil
}

// Build registers every definition using the builder for its engine.
//
// Precondition: builders must contain an entry for every engine used by defs.
// Postcondition: Returns a populated Registry or the first build error.
func Build(defs []Definition, builders map[string]Builder) (*Registry, error) {
	r := New()
	for _, def := range defs {
		build, ok := builders[def.Engine]
		if !ok {
			return nil, fmt.Errorf("registry: no builder for engine %q (game %q)", def.Engine, def.Type)
		}
		factory, err := build(def)
		if err != nil {
			return nil, fmt.Errorf("registry: building game %q: %w", def.Type, err)
		}
		if err := r.Register(def, factory); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Builtins returns the Builder for the builtin engine, dispatching on
// Definition.Builtin to the named compiled-in game.
func Builtins(byName map[string]Builder) Builder {
	return func(def Definition) (session.Factory, error) {
		build, ok := byName[def.Builtin]
		if !ok {
			return nil, fmt.Errorf("unknown builtin game %q", def.Builtin)
		}
		return build(def)
	}
}
