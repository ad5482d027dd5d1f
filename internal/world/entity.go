package world

import "whiteshoe/server/internal/geom"

// Field identifies one optional attribute slot.
type Field uint16

const (
	FieldPlayerID Field = 1 << iota
	FieldDirection
	FieldTeam
	FieldHPMax
	FieldHP
	FieldMaxAmmo
	FieldAmmo
	FieldOwner
	FieldSize
	FieldHistorical
	FieldName
)

// Attributes is the sparse, client-visible state of an entity. Only fields
// recorded in Present are meaningful and serialized.
type Attributes struct {
	Present    Field     `msgpack:"present"`
	PlayerID   int       `msgpack:"player_id"`
	Direction  Direction `msgpack:"direction"`
	Team       int       `msgpack:"team"`
	HPMax      int       `msgpack:"hp_max"`
	HP         int       `msgpack:"hp"`
	MaxAmmo    int       `msgpack:"max_ammo"`
	Ammo       int       `msgpack:"ammo"`
	Owner      int       `msgpack:"owner"`
	Size       int       `msgpack:"size"`
	Historical bool      `msgpack:"historical"`
	Name       string    `msgpack:"name"`
}

// Has reports whether the field is populated.
func (a Attributes) Has(f Field) bool { return a.Present&f != 0 }

// Empty reports whether no field is populated.
func (a Attributes) Empty() bool { return a.Present == 0 }

func (a *Attributes) SetPlayerID(v int) { a.PlayerID = v; a.Present |= FieldPlayerID }

func (a *Attributes) SetDirection(v Direction) { a.Direction = v; a.Present |= FieldDirection }

func (a *Attributes) SetTeam(v int) { a.Team = v; a.Present |= FieldTeam }

func (a *Attributes) SetHPMax(v int) { a.HPMax = v; a.Present |= FieldHPMax }

func (a *Attributes) SetHP(v int) { a.HP = v; a.Present |= FieldHP }

func (a *Attributes) SetMaxAmmo(v int) { a.MaxAmmo = v; a.Present |= FieldMaxAmmo }

func (a *Attributes) SetAmmo(v int) { a.Ammo = v; a.Present |= FieldAmmo }

func (a *Attributes) SetOwner(v int) { a.Owner = v; a.Present |= FieldOwner }

func (a *Attributes) SetSize(v int) { a.Size = v; a.Present |= FieldSize }

func (a *Attributes) SetHistorical(v bool) { a.Historical = v; a.Present |= FieldHistorical }

func (a *Attributes) SetName(v string) { a.Name = v; a.Present |= FieldName }

// Equal compares only populated fields.
func (a Attributes) Equal(b Attributes) bool {
	if a.Present != b.Present {
		return false
	}
	return a.Canonical() == b.Canonical()
}

// Canonical zeroes every unpopulated field so the value can be compared or
// used as a map key.
func (a Attributes) Canonical() Attributes {
	out := Attributes{Present: a.Present}
	if a.Has(FieldPlayerID) {
		out.PlayerID = a.PlayerID
	}
	if a.Has(FieldDirection) {
		out.Direction = a.Direction
	}
	if a.Has(FieldTeam) {
		out.Team = a.Team
	}
	if a.Has(FieldHPMax) {
		out.HPMax = a.HPMax
	}
	if a.Has(FieldHP) {
		out.HP = a.HP
	}
	if a.Has(FieldMaxAmmo) {
		out.MaxAmmo = a.MaxAmmo
	}
	if a.Has(FieldAmmo) {
		out.Ammo = a.Ammo
	}
	if a.Has(FieldOwner) {
		out.Owner = a.Owner
	}
	if a.Has(FieldSize) {
		out.Size = a.Size
	}
	if a.Has(FieldHistorical) {
		out.Historical = a.Historical
	}
	if a.Has(FieldName) {
		out.Name = a.Name
	}
	return out
}

// Transient holds simulation bookkeeping that never leaves the server.
type Transient struct {
	Armed       bool
	Timer       float64
	SpreadTimer float64
	DeathTimer  float64
	Dying       bool
	Damage      int
	Responsible int
	// Spread and Damaged are shared by every slime grown from one impact.
	Spread  geom.Set
	Damaged map[*Entity]struct{}
}

// Entity is one occupant of a cell. Pointer identity distinguishes entities
// that are otherwise structurally equal.
type Entity struct {
	Kind Kind       `msgpack:"kind"`
	Attr Attributes `msgpack:"attr"`
	Sim  Transient  `msgpack:"-"`
}

// New builds an entity without attributes.
func New(kind Kind) *Entity {
	return &Entity{Kind: kind}
}

// Copy returns a detached copy of the visible state, dropping transient data.
func (e *Entity) Copy() *Entity {
	if e == nil {
		return nil
	}
	return &Entity{Kind: e.Kind, Attr: e.Attr}
}

// SameAs compares the visible state of two entities.
func (e *Entity) SameAs(o *Entity) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.Kind == o.Kind && e.Attr.Equal(o.Attr)
}

// SameContents compares two cell lists by visible state and order.
func SameContents(a, b []*Entity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameAs(b[i]) {
			return false
		}
	}
	return true
}
