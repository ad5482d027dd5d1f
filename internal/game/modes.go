package game

import (
	"errors"
	"fmt"
	"sort"

	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/world"
)

// ErrUnknownMode reports a mode name with no implementation.
var ErrUnknownMode = errors.New("unknown game mode")

// Mode names.
const (
	ModeBase = "base"
	ModeFFA  = "ffa"
	ModeTeam = "team"
)

// Mode customises spawning and vision on top of the base rules.
type Mode interface {
	Name() string
	// SpawnBlocked reports whether a cell holding kind is unsuitable for a
	// spawn or a scattered pickup.
	SpawnBlocked(kind world.Kind) bool
	// AfterSpawn runs once a player has been placed.
	AfterSpawn(g *Game, playerID int, at geom.Coordinate)
	// Visible widens or narrows what a player's own vision function returned.
	Visible(g *Game, playerID int, own geom.Set) geom.Set
}

var modes = map[string]func() Mode{
	ModeBase: func() Mode { return baseMode{} },
	ModeFFA:  func() Mode { return ffaMode{} },
	ModeTeam: func() Mode { return teamMode{} },
}

// LookupMode resolves a mode by name.
func LookupMode(name string) (Mode, error) {
	ctor, ok := modes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
	return ctor(), nil
}

// ModeNames lists the registered modes alphabetically.
func ModeNames() []string {
	out := make([]string, 0, len(modes))
	for name := range modes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type baseMode struct{}

func (baseMode) Name() string { return ModeBase }

func (baseMode) SpawnBlocked(kind world.Kind) bool { return kind.Is(world.Solid) }

func (baseMode) AfterSpawn(*Game, int, geom.Coordinate) {}

func (baseMode) Visible(_ *Game, _ int, own geom.Set) geom.Set { return own }

// ffaMode scatters a small and a big mine on every spawn and hands out ammo to
// everybody.
type ffaMode struct{ baseMode }

func (ffaMode) Name() string { return ModeFFA }

func (ffaMode) SpawnBlocked(kind world.Kind) bool {
	return kind.Is(world.Solid) || kind == world.KindMine
}

func (m ffaMode) AfterSpawn(g *Game, _ int, at geom.Coordinate) {
	//1.- Scatter one mine of each size on free cells.
	suitable := g.suitableCells(m)
	suitable = removeCoordinate(suitable, at)
	for size := 1; size <= 2 && len(suitable) > 0; size++ {
		i := g.rng.IntN(len(suitable))
		c := suitable[i]
		suitable = append(suitable[:i:i], suitable[i+1:]...)
		mine := world.New(world.KindMine)
		mine.Attr.SetSize(size)
		g.world.Append(c, mine)
		g.markCell(c)
	}
	//2.- Everyone, the newcomer included, gets more ammo.
	for _, l := range g.world.FindObjs(world.KindPlayer) {
		ammo := 0
		if l.Entity.Attr.Has(world.FieldAmmo) {
			ammo = l.Entity.Attr.Ammo
		}
		l.Entity.Attr.SetAmmo(ammo + g.tuning.FFAAmmoBonus)
		g.markCell(l.Coord)
	}
}

// teamMode shares vision between players of the same team.
type teamMode struct{ baseMode }

func (teamMode) Name() string { return ModeTeam }

func (teamMode) Visible(g *Game, playerID int, own geom.Set) geom.Set {
	m, ok := g.members[playerID]
	if !ok {
		return own
	}
	out := own.Clone()
	for _, other := range g.order {
		if other == playerID || g.members[other].team != m.team {
			continue
		}
		if seen, ok := g.visibleFrom(other); ok {
			out.Union(seen)
		}
	}
	return out
}

func removeCoordinate(list []geom.Coordinate, c geom.Coordinate) []geom.Coordinate {
	for i, candidate := range list {
		if candidate == c {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
