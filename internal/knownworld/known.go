// Package knownworld keeps each player's private, possibly stale copy of the
// world and reconciles it against the authoritative state every flush.
package knownworld

import (
	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/world"
)

// Known is the world as last observed by one player.
type Known struct {
	cells    map[geom.Coordinate][]*world.Entity
	clearAll bool
}

// New returns an empty known world.
func New() *Known {
	return &Known{cells: make(map[geom.Coordinate][]*world.Entity)}
}

// At returns the remembered contents of a cell.
func (k *Known) At(c geom.Coordinate) ([]*world.Entity, bool) {
	list, ok := k.cells[c]
	return list, ok
}

// Len returns the number of remembered cells.
func (k *Known) Len() int { return len(k.cells) }

// Coordinates lists remembered cells in row-major order.
func (k *Known) Coordinates() []geom.Coordinate {
	out := make([]geom.Coordinate, 0, len(k.cells))
	for c := range k.cells {
		out = append(out, c)
	}
	geom.SortRowMajor(out)
	return out
}

// Reset forgets everything and arms the clear-all flag for the next update.
func (k *Known) Reset() {
	k.cells = make(map[geom.Coordinate][]*world.Entity)
	k.clearAll = true
}

// ClearPending reports whether the next outbound update must wipe the client.
func (k *Known) ClearPending() bool { return k.clearAll }

// TakeClear returns and disarms the clear-all flag.
func (k *Known) TakeClear() bool {
	v := k.clearAll
	k.clearAll = false
	return v
}

// Update reconciles the known world with w for the given visible and dirty
// coordinates and returns the cells whose remembered content changed.
func (k *Known) Update(w *world.World, visible, dirty geom.Set) geom.Set {
	changed := make(geom.Set)

	//1.- Cells out of sight decay: terrain turns historical, the rest is forgotten.
	for c, list := range k.cells {
		if visible.Has(c) {
			continue
		}
		kept := list[:0:0]
		for _, e := range list {
			switch {
			case e.Kind.Is(world.Historical):
				if !e.Attr.Has(world.FieldHistorical) || !e.Attr.Historical {
					e.Attr.SetHistorical(true)
					changed.Add(c)
				}
				kept = append(kept, e)
			case e.Kind.Is(world.AlwaysVisible) && holdsSame(w.At(c), e):
				kept = append(kept, e)
			default:
				changed.Add(c)
			}
		}
		k.cells[c] = kept
	}

	//2.- Dirty cells in direct sight are replaced by a fresh copy.
	for c := range dirty {
		if !visible.Has(c) || !w.Contains(c) {
			continue
		}
		current := w.At(c)
		if prior, ok := k.cells[c]; ok && world.SameContents(prior, current) {
			continue
		}
		fresh := make([]*world.Entity, 0, len(current))
		for _, e := range current {
			fresh = append(fresh, e.Copy())
		}
		k.cells[c] = fresh
		changed.Add(c)
	}

	//3.- Always visible entities are known wherever they are.
	refresh := w.TraitLocations(world.AlwaysVisible)
	refresh.Union(dirty)
	for c := range refresh {
		if !w.Contains(c) {
			continue
		}
		for _, e := range w.At(c) {
			if !e.Kind.Is(world.AlwaysVisible) || holdsSame(k.cells[c], e) {
				continue
			}
			k.cells[c] = append(k.cells[c], e.Copy())
			changed.Add(c)
		}
	}
	return changed
}

func holdsSame(list []*world.Entity, e *world.Entity) bool {
	for _, o := range list {
		if o.SameAs(e) {
			return true
		}
	}
	return false
}
