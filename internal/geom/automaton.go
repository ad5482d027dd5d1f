package geom

import (
	"fmt"
	"strconv"
	"strings"
)

// Float64Source is the slice of a random generator the automaton needs.
type Float64Source interface {
	Float64() float64
}

// Rule is a birth/survive neighbour-count rule such as "3/12345".
type Rule struct {
	Birth   [9]bool
	Survive [9]bool
}

// ParseRule decodes the "birth/survive" digit notation.
func ParseRule(raw string) (Rule, error) {
	var rule Rule
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 {
		return rule, fmt.Errorf("automaton rule %q must look like B/S", raw)
	}
	for i, part := range parts {
		for _, r := range part {
			n, err := strconv.Atoi(string(r))
			if err != nil || n > 8 {
				return rule, fmt.Errorf("automaton rule %q has invalid count %q", raw, r)
			}
			if i == 0 {
				rule.Birth[n] = true
			} else {
				rule.Survive[n] = true
			}
		}
	}
	return rule, nil
}

// MustParseRule panics when the rule is malformed; used for package-level tables.
func MustParseRule(raw string) Rule {
	rule, err := ParseRule(raw)
	if err != nil {
		panic(err)
	}
	return rule
}

// Automaton is a fixed-size boolean grid evolved by a Rule.
type Automaton struct {
	Width  int
	Height int
	grid   []bool
}

// NewAutomaton allocates a dead grid.
func NewAutomaton(width, height int) *Automaton {
	return &Automaton{Width: width, Height: height, grid: make([]bool, width*height)}
}

// InBounds reports whether c lies on the grid.
func (a *Automaton) InBounds(c Coordinate) bool {
	return c.X >= 0 && c.X < a.Width && c.Y >= 0 && c.Y < a.Height
}

// Alive reports the state of an on-grid cell.
func (a *Automaton) Alive(c Coordinate) bool {
	return a.grid[a.Width*c.Y+c.X]
}

// Set changes the state of an on-grid cell.
func (a *Automaton) Set(c Coordinate, alive bool) {
	a.grid[a.Width*c.Y+c.X] = alive
}

// Cells lists every coordinate in row-major order.
func (a *Automaton) Cells() []Coordinate {
	out := make([]Coordinate, 0, len(a.grid))
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			out = append(out, Coordinate{X: x, Y: y})
		}
	}
	return out
}

// Seed fills the grid so each cell is alive with the given probability.
func (a *Automaton) Seed(density float64, rng Float64Source) {
	for _, c := range a.Cells() {
		a.Set(c, rng.Float64() < density)
	}
}

// Apply runs one generation and reports whether any cell changed.
// Off-grid neighbours count as alive when boundary is true.
func (a *Automaton) Apply(rule Rule, boundary bool) bool {
	var births, deaths []Coordinate
	for _, c := range a.Cells() {
		count := 0
		for _, n := range Neighbourhood(c, 1) {
			if n == c {
				continue
			}
			if a.InBounds(n) {
				if a.Alive(n) {
					count++
				}
			} else if boundary {
				count++
			}
		}
		alive := a.Alive(c)
		switch {
		case !alive && rule.Birth[count]:
			births = append(births, c)
		case alive && !rule.Survive[count]:
			deaths = append(deaths, c)
		}
	}
	for _, c := range births {
		a.Set(c, true)
	}
	for _, c := range deaths {
		a.Set(c, false)
	}
	return len(births) > 0 || len(deaths) > 0
}

// Converge applies the rule until the grid is stable or maxTicks is reached.
func (a *Automaton) Converge(rule Rule, maxTicks int, boundary bool) int {
	ticks := 0
	for ticks < maxTicks {
		ticks++
		if !a.Apply(rule, boundary) {
			break
		}
	}
	return ticks
}
