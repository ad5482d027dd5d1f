package world

import "whiteshoe/server/internal/geom"

// World is the authoritative grid. Coordinates are fixed at construction and
// every cell holds at least one entity once a generator has filled it.
type World struct {
	Width  int
	Height int
	cells  map[geom.Coordinate][]*Entity
	order  []geom.Coordinate
}

// NewWorld allocates a width by height grid of empty cell lists.
func NewWorld(width, height int) *World {
	w := &World{
		Width:  width,
		Height: height,
		cells:  make(map[geom.Coordinate][]*Entity, width*height),
		order:  make([]geom.Coordinate, 0, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := geom.Coordinate{X: x, Y: y}
			w.cells[c] = nil
			w.order = append(w.order, c)
		}
	}
	return w
}

// Fill replaces every cell with a single fresh entity of the given kind.
func (w *World) Fill(kind Kind) {
	for _, c := range w.order {
		w.cells[c] = []*Entity{New(kind)}
	}
}

// Contains reports whether c is part of the world.
func (w *World) Contains(c geom.Coordinate) bool {
	if w == nil {
		return false
	}
	_, ok := w.cells[c]
	return ok
}

// Coordinates returns every coordinate in row-major order. Callers must not
// mutate the returned slice.
func (w *World) Coordinates() []geom.Coordinate {
	return w.order
}

// Len returns the number of cells.
func (w *World) Len() int { return len(w.order) }

// At returns the live entity list of a cell.
func (w *World) At(c geom.Coordinate) []*Entity {
	return w.cells[c]
}

// Set replaces the entity list of an existing cell.
func (w *World) Set(c geom.Coordinate, entities []*Entity) {
	if !w.Contains(c) {
		return
	}
	w.cells[c] = entities
}

// Append pushes an entity on top of a cell.
func (w *World) Append(c geom.Coordinate, e *Entity) {
	if !w.Contains(c) {
		return
	}
	w.cells[c] = append(w.cells[c], e)
}

// Insert places an entity at the bottom of a cell.
func (w *World) Insert(c geom.Coordinate, e *Entity) {
	if !w.Contains(c) {
		return
	}
	w.cells[c] = append([]*Entity{e}, w.cells[c]...)
}

// Remove deletes the entity from the cell, reporting whether it was present.
func (w *World) Remove(c geom.Coordinate, e *Entity) bool {
	list := w.cells[c]
	for i, candidate := range list {
		if candidate == e {
			w.cells[c] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Holds reports whether the exact entity is present in the cell.
func (w *World) Holds(c geom.Coordinate, e *Entity) bool {
	for _, candidate := range w.cells[c] {
		if candidate == e {
			return true
		}
	}
	return false
}

// HasTrait reports whether any entity in the cell carries the trait.
func (w *World) HasTrait(c geom.Coordinate, t Trait) bool {
	for _, e := range w.cells[c] {
		if e.Kind.Is(t) {
			return true
		}
	}
	return false
}

// Located pairs an entity with its cell.
type Located struct {
	Coord  geom.Coordinate
	Entity *Entity
}

// FindObjs lists every entity of the given kinds in row-major order.
func (w *World) FindObjs(kinds ...Kind) []Located {
	var out []Located
	for _, c := range w.order {
		for _, e := range w.cells[c] {
			for _, k := range kinds {
				if e.Kind == k {
					out = append(out, Located{Coord: c, Entity: e})
					break
				}
			}
		}
	}
	return out
}

// FindTrait lists every entity carrying the trait in row-major order.
func (w *World) FindTrait(t Trait) []Located {
	var out []Located
	for _, c := range w.order {
		for _, e := range w.cells[c] {
			if e.Kind.Is(t) {
				out = append(out, Located{Coord: c, Entity: e})
			}
		}
	}
	return out
}

// Locations returns the set of cells holding any of the kinds.
func (w *World) Locations(kinds ...Kind) geom.Set {
	out := make(geom.Set)
	for _, l := range w.FindObjs(kinds...) {
		out.Add(l.Coord)
	}
	return out
}

// TraitLocations returns the set of cells holding a kind with the trait.
func (w *World) TraitLocations(t Trait) geom.Set {
	out := make(geom.Set)
	for _, l := range w.FindTrait(t) {
		out.Add(l.Coord)
	}
	return out
}

// FindPlayer locates the live entity of a player.
func (w *World) FindPlayer(playerID int) (geom.Coordinate, *Entity, bool) {
	for _, l := range w.FindObjs(KindPlayer) {
		if l.Entity.Attr.Has(FieldPlayerID) && l.Entity.Attr.PlayerID == playerID {
			return l.Coord, l.Entity, true
		}
	}
	return geom.Coordinate{}, nil, false
}

// Snapshot returns every cell as a plain map, used by persistence.
func (w *World) Snapshot() map[geom.Coordinate][]*Entity {
	out := make(map[geom.Coordinate][]*Entity, len(w.cells))
	for c, list := range w.cells {
		out[c] = list
	}
	return out
}
