package world

import (
	"testing"

	"whiteshoe/server/internal/geom"
)

func TestKindTablesRoundTrip(t *testing.T) {
	for k := Kind(0); k < kindCount; k++ {
		got, ok := KindFromName(k.String())
		if !ok || got != k {
			t.Fatalf("kind %d did not round trip through %q", k, k.String())
		}
	}
	if KindWall != 0 || KindLava != 11 {
		t.Fatalf("wire codes moved: wall=%d lava=%d", KindWall, KindLava)
	}
	if Kind(99).Valid() {
		t.Fatalf("out of range kind reported valid")
	}
}

func TestTraitClassification(t *testing.T) {
	cases := []struct {
		kind  Kind
		trait Trait
		want  bool
	}{
		{KindWall, Solid, true},
		{KindCornerWall, Opaque, true},
		{KindPlayer, Solid, true},
		{KindPlayer, Opaque, false},
		{KindEmpty, Historical, true},
		{KindBullet, Historical, false},
		{KindExplosion, AlwaysVisible, true},
		{KindPlayer, CanStab, true},
		{KindMine, BlowableUp, true},
		{KindSlime, Temporary, true},
	}
	for _, tc := range cases {
		if got := tc.kind.Is(tc.trait); got != tc.want {
			t.Fatalf("%s.Is(%d) = %v, want %v", tc.kind, tc.trait, got, tc.want)
		}
	}
}

func TestDirectionDeltas(t *testing.T) {
	for _, d := range []Direction{Up, Down, Left, Right, NorthEast, NorthWest, SouthEast, SouthWest} {
		back, ok := DirectionFromDelta(d.Delta())
		if !ok || back != d {
			t.Fatalf("direction %s did not round trip", d)
		}
	}
	if len(Up.Adjacent()) != 5 {
		t.Fatalf("expected five adjacent headings")
	}
	if NorthEast.Cardinal() {
		t.Fatalf("diagonals are not cardinal")
	}
}

func TestAttributesEqualIgnoresUnsetFields(t *testing.T) {
	var a, b Attributes
	a.SetHP(3)
	b.SetHP(3)
	b.Ammo = 7
	if !a.Equal(b) {
		t.Fatalf("unset fields must not affect equality")
	}
	b.SetAmmo(7)
	if a.Equal(b) {
		t.Fatalf("presence mismatch must be unequal")
	}
	if !(Attributes{}).Empty() {
		t.Fatalf("zero attributes should be empty")
	}
}

func TestWorldRemoveAndFindPlayer(t *testing.T) {
	w := NewWorld(3, 2)
	w.Fill(KindEmpty)
	if w.Len() != 6 {
		t.Fatalf("expected 6 cells, got %d", w.Len())
	}
	player := New(KindPlayer)
	player.Attr.SetPlayerID(4)
	at := geom.Coordinate{X: 2, Y: 1}
	w.Append(at, player)

	coord, found, ok := w.FindPlayer(4)
	if !ok || coord != at || found != player {
		t.Fatalf("FindPlayer returned %v %v %v", coord, found, ok)
	}
	if _, _, ok := w.FindPlayer(5); ok {
		t.Fatalf("unexpected player 5")
	}
	if !w.Remove(at, player) {
		t.Fatalf("remove failed")
	}
	if w.Remove(at, player) {
		t.Fatalf("second remove should report absence")
	}
	if len(w.At(at)) != 1 || w.At(at)[0].Kind != KindEmpty {
		t.Fatalf("cell contents corrupted: %v", w.At(at))
	}
}

func TestRemoveDoesNotAliasOtherEntities(t *testing.T) {
	w := NewWorld(1, 1)
	c := geom.Coordinate{}
	a, b, d := New(KindEmpty), New(KindBullet), New(KindBullet)
	w.Set(c, []*Entity{a, b, d})
	snapshot := w.At(c)
	w.Remove(c, b)
	if snapshot[1] != b {
		t.Fatalf("remove rewrote a previously returned slice")
	}
	if got := w.At(c); len(got) != 2 || got[1] != d {
		t.Fatalf("unexpected contents %v", got)
	}
}

func TestInsertPlacesAtBottom(t *testing.T) {
	w := NewWorld(1, 1)
	c := geom.Coordinate{}
	top := New(KindExplosion)
	w.Append(c, top)
	w.Insert(c, New(KindEmpty))
	if w.At(c)[0].Kind != KindEmpty || w.At(c)[1] != top {
		t.Fatalf("insert order wrong: %v", w.At(c))
	}
	if w.Contains(geom.Coordinate{X: 1}) {
		t.Fatalf("coordinate outside the grid reported present")
	}
}

func TestDirtyReset(t *testing.T) {
	d := NewDirty()
	if !d.Clean() {
		t.Fatalf("fresh tracker should be clean")
	}
	d.MarkCell(geom.Coordinate{X: 1})
	d.MarkPlayer(3)
	if d.Clean() || !d.PlayerDirty(3) {
		t.Fatalf("marks not recorded")
	}
	d.Reset()
	if !d.Clean() {
		t.Fatalf("reset did not clear marks")
	}
}
