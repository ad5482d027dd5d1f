package mapgen

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"whiteshoe/server/internal/world"
)

const (
	// DefaultWidth matches a classic 80 column terminal.
	DefaultWidth = 80
	// DefaultHeight matches a classic 24 row terminal.
	DefaultHeight = 24
)

// ErrUnknownGenerator reports a generator name missing from the registry.
var ErrUnknownGenerator = errors.New("unknown map generator")

// Params sizes the generated world. Zero values fall back to the defaults.
type Params struct {
	Width  int
	Height int
}

func (p Params) normalised() Params {
	if p.Width <= 0 {
		p.Width = DefaultWidth
	}
	if p.Height <= 0 {
		p.Height = DefaultHeight
	}
	return p
}

// Generator builds the initial world for a game.
type Generator func(seed uint64, p Params) *world.World

// Registry maps generator names to implementations.
type Registry struct {
	generators map[string]Generator
}

// NewRegistry returns the registry of every built-in generator.
func NewRegistry() *Registry {
	base := map[string]Generator{
		"purerandom":  PureRandom,
		"empty":       Empty,
		"ca_maze":     CAMaze,
		"ca_caves":    CACaves,
		"depth_first": DepthFirst,
		"dungeon":     Dungeon,
	}
	r := &Registry{generators: make(map[string]Generator, 2*len(base))}
	for name, gen := range base {
		r.generators[name] = gen
		r.generators["pretty_"+name] = Pretty(gen)
	}
	return r
}

// Register adds or replaces a generator.
func (r *Registry) Register(name string, gen Generator) {
	if r == nil || gen == nil {
		return
	}
	r.generators[strings.TrimSpace(name)] = gen
}

// Lookup resolves a generator by name.
func (r *Registry) Lookup(name string) (Generator, error) {
	if r != nil {
		if gen, ok := r.generators[strings.TrimSpace(name)]; ok {
			return gen, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
}

// Names lists the registered generators alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
