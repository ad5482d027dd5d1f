package world

import "whiteshoe/server/internal/geom"

// Kind tags an entity. Codes are transmitted on the wire, so new kinds may
// only be appended.
type Kind int32

const (
	KindWall Kind = iota
	KindHorizontalWall
	KindVerticalWall
	KindCornerWall
	KindPlayer
	KindEmpty
	KindBullet
	KindExplosion
	KindMine
	KindSlime
	KindSlimeBullet
	KindLava
	kindCount
)

var kindNames = [kindCount]string{
	KindWall:           "wall",
	KindHorizontalWall: "h-wall",
	KindVerticalWall:   "v-wall",
	KindCornerWall:     "c-wall",
	KindPlayer:         "player",
	KindEmpty:          "empty",
	KindBullet:         "bullet",
	KindExplosion:      "boom",
	KindMine:           "mine",
	KindSlime:          "slime",
	KindSlimeBullet:    "slime-bullet",
	KindLava:           "lava",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, kindCount)
	for k, name := range kindNames {
		out[name] = Kind(k)
	}
	return out
}()

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return "unknown"
}

// Valid reports whether the code maps onto a declared kind.
func (k Kind) Valid() bool { return k >= 0 && k < kindCount }

// KindFromName resolves a kind by its stable name.
func KindFromName(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// Trait is a classification shared by several kinds.
type Trait uint16

const (
	// Historical kinds are remembered once they leave vision.
	Historical Trait = 1 << iota
	// Solid kinds block movement and projectiles.
	Solid
	// Opaque kinds block vision.
	Opaque
	// AlwaysVisible kinds ignore fog of war.
	AlwaysVisible
	// BlowableUp kinds take explosion damage.
	BlowableUp
	// CanStab kinds take melee damage when bumped.
	CanStab
	// Slimeable kinds take slime damage.
	Slimeable
	// Airtight kinds stop slime from spreading.
	Airtight
	// Temporary kinds never count as the content of a cell.
	Temporary
)

const wallTraits = Historical | Solid | Opaque | BlowableUp | Airtight

var kindTraits = [kindCount]Trait{
	KindWall:           wallTraits,
	KindHorizontalWall: wallTraits,
	KindVerticalWall:   wallTraits,
	KindCornerWall:     wallTraits,
	KindPlayer:         Solid | BlowableUp | CanStab | Slimeable,
	KindEmpty:          Historical,
	KindBullet:         Temporary,
	KindExplosion:      AlwaysVisible | Temporary,
	KindMine:           BlowableUp,
	KindSlime:          AlwaysVisible | Temporary,
	KindSlimeBullet:    Temporary,
	KindLava:           Historical,
}

// Is reports whether the kind carries the trait.
func (k Kind) Is(t Trait) bool {
	if !k.Valid() {
		return false
	}
	return kindTraits[k]&t != 0
}

// KindsWith lists every kind carrying the trait in code order.
func KindsWith(t Trait) []Kind {
	var out []Kind
	for k := Kind(0); k < kindCount; k++ {
		if k.Is(t) {
			out = append(out, k)
		}
	}
	return out
}

// Direction is a compass heading. Codes are wire-visible.
type Direction int32

const (
	Up Direction = iota
	Down
	Left
	Right
	NorthEast
	NorthWest
	SouthEast
	SouthWest
	directionCount
)

var directionNames = [directionCount]string{
	Up:        "up",
	Down:      "down",
	Left:      "left",
	Right:     "right",
	NorthEast: "ne",
	NorthWest: "nw",
	SouthEast: "se",
	SouthWest: "sw",
}

var directionDeltas = [directionCount]geom.Delta{
	Up:        {DX: 0, DY: -1},
	Down:      {DX: 0, DY: 1},
	Left:      {DX: -1, DY: 0},
	Right:     {DX: 1, DY: 0},
	NorthEast: {DX: 1, DY: -1},
	NorthWest: {DX: -1, DY: -1},
	SouthEast: {DX: 1, DY: 1},
	SouthWest: {DX: -1, DY: 1},
}

// Cardinals are the headings a player may face.
var Cardinals = []Direction{Up, Down, Left, Right}

var adjacent = map[Direction][]Direction{
	Up:    {Left, Up, Right, NorthEast, NorthWest},
	Down:  {Left, Down, Right, SouthEast, SouthWest},
	Left:  {Up, Left, Down, NorthWest, SouthWest},
	Right: {Up, Right, Down, NorthEast, SouthEast},
}

func (d Direction) String() string {
	if d.Valid() {
		return directionNames[d]
	}
	return "unknown"
}

// Valid reports whether the code maps onto a declared heading.
func (d Direction) Valid() bool { return d >= 0 && d < directionCount }

// Cardinal reports whether the heading is one a player may face.
func (d Direction) Cardinal() bool { return d >= Up && d <= Right }

// Delta returns the unit step for the heading.
func (d Direction) Delta() geom.Delta {
	if !d.Valid() {
		return geom.Delta{}
	}
	return directionDeltas[d]
}

// Adjacent returns the five headings in front of and beside a cardinal heading.
func (d Direction) Adjacent() []Direction {
	return adjacent[d]
}

// DirectionFromDelta maps a unit step back to its heading.
func DirectionFromDelta(delta geom.Delta) (Direction, bool) {
	for d, candidate := range directionDeltas {
		if candidate == delta {
			return Direction(d), true
		}
	}
	return 0, false
}

// DirectionFromName resolves a heading by its stable name.
func DirectionFromName(name string) (Direction, bool) {
	for d, candidate := range directionNames {
		if candidate == name {
			return Direction(d), true
		}
	}
	return 0, false
}

// Action is a player command verb. Codes are wire-visible.
type Action int32

const (
	ActionMove Action = iota
	ActionLook
	ActionFire
	actionCount
)

var actionNames = [actionCount]string{
	ActionMove: "move",
	ActionLook: "look",
	ActionFire: "fire",
}

func (a Action) String() string {
	if a.Valid() {
		return actionNames[a]
	}
	return "unknown"
}

// Valid reports whether the code maps onto a declared action.
func (a Action) Valid() bool { return a >= 0 && a < actionCount }

// ActionFromName resolves an action by its stable name.
func ActionFromName(name string) (Action, bool) {
	for a, candidate := range actionNames {
		if candidate == name {
			return Action(a), true
		}
	}
	return 0, false
}
