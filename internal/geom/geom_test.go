package geom

import "testing"

func TestNeighbourhoodIncludesCentre(t *testing.T) {
	cells := Neighbourhood(Coordinate{X: 5, Y: 5}, 1)
	if len(cells) != 9 {
		t.Fatalf("expected 9 cells, got %d", len(cells))
	}
	if !NewSet(cells...).Has(Coordinate{X: 5, Y: 5}) {
		t.Fatalf("centre missing from neighbourhood")
	}
	if got := Neighbourhood(Coordinate{}, 0); len(got) != 1 {
		t.Fatalf("radius zero should only contain the centre, got %v", got)
	}
}

func TestCardinalNeighbourhood(t *testing.T) {
	set := NewSet(CardinalNeighbourhood(Coordinate{X: 1, Y: 1})...)
	for _, want := range []Coordinate{{1, 2}, {1, 0}, {2, 1}, {0, 1}} {
		if !set.Has(want) {
			t.Fatalf("expected %v in cardinal neighbourhood", want)
		}
	}
	if set.Has(Coordinate{X: 2, Y: 2}) {
		t.Fatalf("diagonal must not be cardinal")
	}
}

func TestBorderExcludesRegion(t *testing.T) {
	region := []Coordinate{{0, 0}, {1, 0}}
	border := Border(region)
	if border.Has(Coordinate{0, 0}) || border.Has(Coordinate{1, 0}) {
		t.Fatalf("border contains region cells: %v", border.Sorted())
	}
	if len(border) != 10 {
		t.Fatalf("expected 10 border cells, got %d", len(border))
	}
}

func TestLineEndpointsAndContinuity(t *testing.T) {
	cases := []struct {
		a, b Coordinate
		len  int
	}{
		{Coordinate{0, 0}, Coordinate{4, 0}, 5},
		{Coordinate{0, 0}, Coordinate{3, 3}, 4},
		{Coordinate{2, 1}, Coordinate{-3, 4}, 6},
		{Coordinate{1, 1}, Coordinate{1, 1}, 1},
	}
	for _, tc := range cases {
		line := Line(tc.a, tc.b)
		if len(line) != tc.len {
			t.Fatalf("line %v->%v: expected %d points, got %v", tc.a, tc.b, tc.len, line)
		}
		if line[0] != tc.a || line[len(line)-1] != tc.b {
			t.Fatalf("line %v->%v has wrong endpoints %v", tc.a, tc.b, line)
		}
		for i := 1; i < len(line); i++ {
			d := line[i].Sub(line[i-1])
			if abs(d.DX) > 1 || abs(d.DY) > 1 {
				t.Fatalf("line %v->%v jumps between %v and %v", tc.a, tc.b, line[i-1], line[i])
			}
		}
	}
}

func TestSortedIsRowMajor(t *testing.T) {
	got := NewSet(Coordinate{2, 1}, Coordinate{0, 2}, Coordinate{1, 1}).Sorted()
	want := []Coordinate{{1, 1}, {2, 1}, {0, 2}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
}

type fixedSource struct{ value float64 }

func (f fixedSource) Float64() float64 { return f.value }

func TestAutomatonBlinker(t *testing.T) {
	a := NewAutomaton(5, 5)
	for x := 1; x <= 3; x++ {
		a.Set(Coordinate{X: x, Y: 2}, true)
	}
	life := MustParseRule("3/23")
	if !a.Apply(life, false) {
		t.Fatalf("blinker should change")
	}
	for y := 1; y <= 3; y++ {
		if !a.Alive(Coordinate{X: 2, Y: y}) {
			t.Fatalf("expected vertical blinker at (2,%d)", y)
		}
	}
	if a.Alive(Coordinate{X: 1, Y: 2}) {
		t.Fatalf("blinker arm should have died")
	}
}

func TestAutomatonSeedAndConverge(t *testing.T) {
	a := NewAutomaton(4, 3)
	a.Seed(0.5, fixedSource{value: 0.9})
	for _, c := range a.Cells() {
		if a.Alive(c) {
			t.Fatalf("density 0.5 with draw 0.9 should leave %v dead", c)
		}
	}
	if ticks := a.Converge(MustParseRule("3/12345"), 10, false); ticks != 1 {
		t.Fatalf("dead grid should converge after one tick, took %d", ticks)
	}
}

func TestParseRuleRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "3", "3/9", "a/1"} {
		if _, err := ParseRule(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
