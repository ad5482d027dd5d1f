package geom

import "sort"

// Coordinate addresses a single tile of the world grid.
type Coordinate struct {
	X int
	Y int
}

// Delta is a unit step applied to a coordinate.
type Delta struct {
	DX int
	DY int
}

// Add returns the coordinate shifted by the supplied delta.
func (c Coordinate) Add(d Delta) Coordinate {
	return Coordinate{X: c.X + d.DX, Y: c.Y + d.DY}
}

// Sub returns the delta leading from o to c.
func (c Coordinate) Sub(o Coordinate) Delta {
	return Delta{DX: c.X - o.X, DY: c.Y - o.Y}
}

// Reverse flips the delta.
func (d Delta) Reverse() Delta {
	return Delta{DX: -d.DX, DY: -d.DY}
}

// Set is an unordered collection of coordinates.
type Set map[Coordinate]struct{}

// NewSet builds a set from the supplied coordinates.
func NewSet(coords ...Coordinate) Set {
	s := make(Set, len(coords))
	for _, c := range coords {
		s[c] = struct{}{}
	}
	return s
}

// Add inserts c into the set.
func (s Set) Add(c Coordinate) { s[c] = struct{}{} }

// Has reports membership.
func (s Set) Has(c Coordinate) bool {
	_, ok := s[c]
	return ok
}

// Union inserts every coordinate of o into s.
func (s Set) Union(o Set) {
	for c := range o {
		s[c] = struct{}{}
	}
}

// Clone copies the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Sorted returns the members in row-major order (y, then x).
func (s Set) Sorted() []Coordinate {
	out := make([]Coordinate, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	SortRowMajor(out)
	return out
}

// SortRowMajor orders coordinates by row and then column.
func SortRowMajor(coords []Coordinate) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Y != coords[j].Y {
			return coords[i].Y < coords[j].Y
		}
		return coords[i].X < coords[j].X
	})
}

// Neighbourhood returns the square of radius n centred on c, centre included.
func Neighbourhood(c Coordinate, n int) []Coordinate {
	if n < 0 {
		return nil
	}
	out := make([]Coordinate, 0, (2*n+1)*(2*n+1))
	for x := c.X - n; x <= c.X+n; x++ {
		for y := c.Y - n; y <= c.Y+n; y++ {
			out = append(out, Coordinate{X: x, Y: y})
		}
	}
	return out
}

// CardinalNeighbourhood returns the four orthogonal neighbours of c.
func CardinalNeighbourhood(c Coordinate) []Coordinate {
	return []Coordinate{
		{X: c.X, Y: c.Y + 1},
		{X: c.X, Y: c.Y - 1},
		{X: c.X + 1, Y: c.Y},
		{X: c.X - 1, Y: c.Y},
	}
}

// Border returns the cells touching the supplied region but outside it.
func Border(coords []Coordinate) Set {
	region := NewSet(coords...)
	out := make(Set)
	for _, c := range coords {
		for _, n := range Neighbourhood(c, 1) {
			if !region.Has(n) {
				out.Add(n)
			}
		}
	}
	return out
}

// Line walks the Bresenham line from a to b, both endpoints included.
func Line(a, b Coordinate) []Coordinate {
	x0, y0 := a.X, a.Y
	dx := abs(b.X - x0)
	dy := abs(b.Y - y0)
	sx, sy := -1, -1
	if x0 < b.X {
		sx = 1
	}
	if y0 < b.Y {
		sy = 1
	}
	errTerm := dx - dy
	out := []Coordinate{a}
	for x0 != b.X || y0 != b.Y {
		e2 := 2 * errTerm
		if e2 > -dy {
			errTerm -= dy
			x0 += sx
		}
		if e2 < dx {
			errTerm += dx
			y0 += sy
		}
		out = append(out, Coordinate{X: x0, Y: y0})
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
