package mapgen

import (
	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/world"
)

const (
	dungeonMaxRooms = 9
	dungeonMinSize  = 4
	dungeonMaxSize  = 10
)

// Rect is a room footprint.
type Rect struct {
	X, Y, W, H int
}

// Center returns the middle tile of the room.
func (r Rect) Center() geom.Coordinate {
	return geom.Coordinate{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Intersects reports overlap, treating touching rooms as overlapping.
func (r Rect) Intersects(o Rect) bool {
	return r.X <= o.X+o.W && r.X+r.W >= o.X &&
		r.Y <= o.Y+o.H && r.Y+r.H >= o.Y
}

// Dungeon carves non-overlapping rooms into solid rock and links each room to
// the previous one with an L shaped corridor.
func Dungeon(seed uint64, p Params) *world.World {
	p = p.normalised()
	rng := newRand(seed)
	w := world.NewWorld(p.Width, p.Height)
	w.Fill(world.KindWall)

	randRange := func(lo, hi int) int {
		if hi <= lo {
			return lo
		}
		return lo + rng.IntN(hi-lo+1)
	}
	carve := func(c geom.Coordinate) {
		if w.Contains(c) {
			w.Set(c, []*world.Entity{world.New(world.KindEmpty)})
		}
	}

	var rooms []Rect
	for i := 0; i < dungeonMaxRooms; i++ {
		width := randRange(dungeonMinSize, dungeonMaxSize)
		height := randRange(dungeonMinSize, dungeonMaxSize)
		if width+2 > p.Width || height+2 > p.Height {
			continue
		}
		room := Rect{
			X: randRange(1, p.Width-width-1),
			Y: randRange(1, p.Height-height-1),
			W: width,
			H: height,
		}
		overlaps := false
		for _, other := range rooms {
			if room.Intersects(other) {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		//1.- Hollow out the room interior.
		for x := room.X; x < room.X+room.W; x++ {
			for y := room.Y; y < room.Y+room.H; y++ {
				carve(geom.Coordinate{X: x, Y: y})
			}
		}
		//2.- Join the room to its predecessor.
		if len(rooms) > 0 {
			prev := rooms[len(rooms)-1].Center()
			curr := room.Center()
			if rng.IntN(2) == 0 {
				carveHorizontal(carve, prev.X, curr.X, prev.Y)
				carveVertical(carve, prev.Y, curr.Y, curr.X)
			} else {
				carveVertical(carve, prev.Y, curr.Y, prev.X)
				carveHorizontal(carve, prev.X, curr.X, curr.Y)
			}
		}
		rooms = append(rooms, room)
	}
	return w
}

func carveHorizontal(carve func(geom.Coordinate), x1, x2, y int) {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	for x := x1; x <= x2; x++ {
		carve(geom.Coordinate{X: x, Y: y})
	}
}

func carveVertical(carve func(geom.Coordinate), y1, y2, x int) {
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	for y := y1; y <= y2; y++ {
		carve(geom.Coordinate{X: x, Y: y})
	}
}
