package vision

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/world"
)

// SquareRadius is the Chebyshev radius of the square vision function.
const SquareRadius = 3

// ErrUnknownVision reports a vision function missing from the registry.
var ErrUnknownVision = errors.New("unknown vision function")

// Func returns the coordinates visible from origin when facing the heading.
// Implementations must not mutate the world and must return a subset of its
// coordinates.
type Func func(w *world.World, origin geom.Coordinate, facing world.Direction) geom.Set

// Registry maps vision names to implementations.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns the registry of every built-in vision function.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{
		"square": Square,
		"cone":   Cone,
		"all":    All,
		"rays":   Rays,
		"blind":  Blind,
	}}
}

// Lookup resolves a vision function by name.
func (r *Registry) Lookup(name string) (Func, error) {
	if r != nil {
		if fn, ok := r.funcs[strings.TrimSpace(name)]; ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVision, name)
}

// Names lists the registered functions alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Square sees a fixed radius around the origin regardless of facing.
func Square(w *world.World, origin geom.Coordinate, _ world.Direction) geom.Set {
	visible := make(geom.Set)
	for _, c := range geom.Neighbourhood(origin, SquareRadius) {
		if w.Contains(c) {
			visible.Add(c)
		}
	}
	return visible
}

// Cone sees the origin, the cell behind it and every cell along the five
// forward headings up to and including the first opaque cell.
func Cone(w *world.World, origin geom.Coordinate, facing world.Direction) geom.Set {
	visible := geom.NewSet(origin)
	behind := origin.Add(facing.Delta().Reverse())
	if w.Contains(behind) {
		visible.Add(behind)
	}
	for _, heading := range facing.Adjacent() {
		step := heading.Delta()
		for c := origin.Add(step); w.Contains(c); c = c.Add(step) {
			visible.Add(c)
			if w.HasTrait(c, world.Opaque) {
				break
			}
		}
	}
	return visible
}

// All sees the whole world.
func All(w *world.World, _ geom.Coordinate, _ world.Direction) geom.Set {
	return geom.NewSet(w.Coordinates()...)
}

// Blind sees nothing.
func Blind(*world.World, geom.Coordinate, world.Direction) geom.Set {
	return make(geom.Set)
}

// AlwaysVisible returns every cell holding an entity that ignores fog of war.
func AlwaysVisible(w *world.World) geom.Set {
	return w.TraitLocations(world.AlwaysVisible)
}
