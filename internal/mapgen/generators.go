package mapgen

import (
	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/world"
)

var (
	mazeRule  = geom.MustParseRule("3/12345")
	cavesRule = geom.MustParseRule("678/345678")
)

// PureRandom scatters walls over roughly a third of the grid.
func PureRandom(seed uint64, p Params) *world.World {
	p = p.normalised()
	rng := newRand(seed)
	w := world.NewWorld(p.Width, p.Height)
	for _, c := range w.Coordinates() {
		kind := world.KindEmpty
		if rng.Float64() < 0.35 {
			kind = world.KindWall
		}
		w.Set(c, []*world.Entity{world.New(kind)})
	}
	return w
}

// Empty produces an open floor.
func Empty(_ uint64, p Params) *world.World {
	p = p.normalised()
	w := world.NewWorld(p.Width, p.Height)
	w.Fill(world.KindEmpty)
	return w
}

// CAMaze grows a maze with the B3/S12345 automaton.
func CAMaze(seed uint64, p Params) *world.World {
	p = p.normalised()
	grid := geom.NewAutomaton(p.Width, p.Height)
	grid.Seed(0.35, newRand(seed))
	grid.Converge(mazeRule, 300, false)
	return fromAutomaton(grid)
}

// CACaves grows open caverns with the B678/S345678 automaton.
func CACaves(seed uint64, p Params) *world.World {
	p = p.normalised()
	grid := geom.NewAutomaton(p.Width, p.Height)
	grid.Seed(0.5, newRand(seed))
	grid.Converge(cavesRule, 300, true)
	return fromAutomaton(grid)
}

func fromAutomaton(grid *geom.Automaton) *world.World {
	w := world.NewWorld(grid.Width, grid.Height)
	for _, c := range w.Coordinates() {
		kind := world.KindEmpty
		if grid.Alive(c) {
			kind = world.KindWall
		}
		w.Set(c, []*world.Entity{world.New(kind)})
	}
	return w
}

// DepthFirst carves a perfect maze with a recursive backtracker running on a
// half resolution grid; even coordinates are rooms and odd ones are walls.
func DepthFirst(seed uint64, p Params) *world.World {
	p = p.normalised()
	rng := newRand(seed)

	cols, rows := p.Width/2, p.Height/2
	cells := make([]geom.Coordinate, 0, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			cells = append(cells, geom.Coordinate{X: x, Y: y})
		}
	}
	w := world.NewWorld(p.Width, p.Height)
	w.Fill(world.KindWall)
	if len(cells) == 0 {
		return w
	}
	inMaze := func(c geom.Coordinate) bool { return c.X >= 0 && c.X < cols && c.Y >= 0 && c.Y < rows }
	open := func(c geom.Coordinate) { w.Set(c, []*world.Entity{world.New(world.KindEmpty)}) }

	visited := geom.NewSet()
	current := cells[rng.IntN(len(cells))]
	visited.Add(current)
	open(geom.Coordinate{X: current.X * 2, Y: current.Y * 2})
	var stack []geom.Coordinate

	for len(visited) < len(cells) {
		var candidates []geom.Coordinate
		for _, n := range geom.CardinalNeighbourhood(current) {
			if inMaze(n) && !visited.Has(n) {
				candidates = append(candidates, n)
			}
		}
		switch {
		case len(candidates) > 0:
			next := candidates[rng.IntN(len(candidates))]
			stack = append(stack, current)
			//1.- Knock down the wall shared by the two rooms.
			open(geom.Coordinate{X: current.X + next.X, Y: current.Y + next.Y})
			open(geom.Coordinate{X: next.X * 2, Y: next.Y * 2})
			current = next
			visited.Add(current)
		case len(stack) > 0:
			current = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		default:
			for _, c := range cells {
				if !visited.Has(c) {
					current = c
					break
				}
			}
			visited.Add(current)
			open(geom.Coordinate{X: current.X * 2, Y: current.Y * 2})
		}
	}
	return w
}

// Pretty wraps a generator so isolated wall runs become horizontal, vertical
// or corner pieces.
func Pretty(gen Generator) Generator {
	return func(seed uint64, p Params) *world.World {
		w := gen(seed, p)
		PrettyWalls(w)
		return w
	}
}

// PrettyWalls rewrites plain walls based on their wall neighbours.
func PrettyWalls(w *world.World) {
	isWall := func(c geom.Coordinate) bool {
		list := w.At(c)
		return len(list) > 0 && list[0].Kind != world.KindEmpty
	}
	replacements := make(map[geom.Coordinate]world.Kind)
	for _, c := range w.Coordinates() {
		list := w.At(c)
		if len(list) == 0 || list[0].Kind != world.KindWall {
			continue
		}
		vertical := (w.Contains(geom.Coordinate{X: c.X, Y: c.Y - 1}) && isWall(geom.Coordinate{X: c.X, Y: c.Y - 1})) ||
			(w.Contains(geom.Coordinate{X: c.X, Y: c.Y + 1}) && isWall(geom.Coordinate{X: c.X, Y: c.Y + 1}))
		horizontal := (w.Contains(geom.Coordinate{X: c.X - 1, Y: c.Y}) && isWall(geom.Coordinate{X: c.X - 1, Y: c.Y})) ||
			(w.Contains(geom.Coordinate{X: c.X + 1, Y: c.Y}) && isWall(geom.Coordinate{X: c.X + 1, Y: c.Y}))
		switch {
		case vertical && horizontal:
			replacements[c] = world.KindCornerWall
		case vertical:
			replacements[c] = world.KindVerticalWall
		case horizontal:
			replacements[c] = world.KindHorizontalWall
		}
	}
	for c, kind := range replacements {
		w.Set(c, []*world.Entity{world.New(kind)})
	}
}
