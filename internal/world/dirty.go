package world

import "whiteshoe/server/internal/geom"

// Dirty accumulates the cells and players changed since the last flush.
type Dirty struct {
	Coords  geom.Set
	Players map[int]struct{}
}

// NewDirty returns an empty tracker.
func NewDirty() *Dirty {
	return &Dirty{Coords: make(geom.Set), Players: make(map[int]struct{})}
}

// MarkCell records a changed cell.
func (d *Dirty) MarkCell(c geom.Coordinate) { d.Coords.Add(c) }

// MarkPlayer records a player whose whole view must be resent.
func (d *Dirty) MarkPlayer(id int) { d.Players[id] = struct{}{} }

// PlayerDirty reports whether the player was marked.
func (d *Dirty) PlayerDirty(id int) bool {
	_, ok := d.Players[id]
	return ok
}

// Clean reports whether nothing was marked.
func (d *Dirty) Clean() bool { return len(d.Coords) == 0 && len(d.Players) == 0 }

// Reset drops every mark.
func (d *Dirty) Reset() {
	d.Coords = make(geom.Set)
	d.Players = make(map[int]struct{})
}
