// Package game runs one authoritative world: roster, commands, timed effects
// and the per-player vision flush.
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"whiteshoe/server/internal/gameplay"
	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/ids"
	"whiteshoe/server/internal/knownworld"
	"whiteshoe/server/internal/mapgen"
	"whiteshoe/server/internal/networking"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/simulation"
	"whiteshoe/server/internal/vision"
	"whiteshoe/server/internal/world"
)

var (
	// ErrGameFull rejects a join beyond the player cap.
	ErrGameFull = errors.New("game is full")
	// ErrAlreadyJoined rejects a second join by the same player.
	ErrAlreadyJoined = errors.New("player already in game")
)

// Option names understood by every mode.
const (
	OptionAlwaysDirtyPlayers = "AlwaysDirtyPlayers"
)

// Defaults applied by New.
const (
	DefaultName       = "Untitled"
	DefaultMaxPlayers = 20
	DefaultPlayerName = "Unnamed"
)

// Outbound addresses a packet to one player.
type Outbound struct {
	PlayerID int
	Packet   *protocol.Packet
}

// Event is a roster or combat occurrence worth reporting.
type Event struct {
	GameID      int64
	PlayerID    int
	Status      protocol.Status
	Responsible int
	DamageType  protocol.DamageType
	Name        string
	At          time.Time
}

// Observer receives every event a game records.
type Observer interface {
	GameEvent(Event)
}

// Observers fans one event out to several observers.
type Observers []Observer

func (o Observers) GameEvent(e Event) {
	for _, observer := range o {
		if observer != nil {
			observer.GameEvent(e)
		}
	}
}

// Config describes a game to construct.
type Config struct {
	ID          int64
	Name        string
	Mode        string
	Vision      string
	Generator   string
	MaxPlayers  int
	Seed        uint64
	Map         mapgen.Params
	Options     map[string]string
	Tuning      *gameplay.Tuning
	PacketLimit int
	IDs         *ids.Allocator
	Clock       func() time.Time
	Observer    Observer
	// World bypasses the generator when set.
	World *world.World
}

type member struct {
	name string
	team int
}

// Game owns a world and everything derived from it. It is not safe for
// concurrent use; the server loop is its only caller.
type Game struct {
	id         int64
	name       string
	mode       Mode
	visionName string
	generator  string
	maxPlayers int
	options    map[string]string
	tuning     gameplay.Tuning

	world   *world.World
	see     vision.Func
	known   map[int]*knownworld.Known
	members map[int]*member
	order   []int
	scores  map[int]int

	pcg *rand.PCG
	rng *rand.Rand

	dirty       *world.Dirty
	events      []Event
	scoresDirty bool

	packer    *networking.Packer
	ids       *ids.Allocator
	stopwatch *simulation.Stopwatch
	clock     func() time.Time
	observer  Observer
}

// New validates the configuration and generates the world.
func New(cfg Config) (*Game, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeBase
	}
	if cfg.Vision == "" {
		cfg.Vision = "cone"
	}
	if cfg.Generator == "" {
		cfg.Generator = "purerandom"
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = DefaultMaxPlayers
	}
	if cfg.PacketLimit <= 0 {
		cfg.PacketLimit = networking.DefaultPacketLimit
	}
	if cfg.IDs == nil {
		cfg.IDs = ids.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	//1.- Resolve the named collaborators before anything is allocated.
	mode, err := LookupMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	see, err := vision.NewRegistry().Lookup(cfg.Vision)
	if err != nil {
		return nil, err
	}
	tuning := gameplay.Defaults()
	if cfg.Tuning != nil {
		tuning = *cfg.Tuning
	}

	//2.- Build the world from the generator unless one was supplied.
	w := cfg.World
	if w == nil {
		gen, err := mapgen.NewRegistry().Lookup(cfg.Generator)
		if err != nil {
			return nil, err
		}
		w = gen(cfg.Seed, cfg.Map)
	}

	pcg := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	options := make(map[string]string, len(cfg.Options))
	for k, v := range cfg.Options {
		options[k] = v
	}
	allocator := cfg.IDs
	return &Game{
		id:         cfg.ID,
		name:       cfg.Name,
		mode:       mode,
		visionName: cfg.Vision,
		generator:  cfg.Generator,
		maxPlayers: cfg.MaxPlayers,
		options:    options,
		tuning:     tuning,
		world:      w,
		see:        see,
		known:      make(map[int]*knownworld.Known),
		members:    make(map[int]*member),
		scores:     make(map[int]int),
		pcg:        pcg,
		rng:        rand.New(pcg),
		dirty:      world.NewDirty(),
		packer:     networking.NewPacker(cfg.PacketLimit, func() uint64 { return allocator.Next(ids.FamilyPacket) }),
		ids:        allocator,
		stopwatch:  simulation.NewStopwatch(cfg.Clock),
		clock:      cfg.Clock,
		observer:   cfg.Observer,
	}, nil
}

// ID returns the game id.
func (g *Game) ID() int64 { return g.id }

// Name returns the display name.
func (g *Game) Name() string { return g.name }

// ModeName returns the mode the game runs.
func (g *Game) ModeName() string { return g.mode.Name() }

// VisionName returns the configured vision function.
func (g *Game) VisionName() string { return g.visionName }

// World exposes the authoritative world.
func (g *Game) World() *world.World { return g.world }

// Dirty exposes the pending dirty marks.
func (g *Game) Dirty() *world.Dirty { return g.dirty }

// Tuning returns the gameplay constants in force.
func (g *Game) Tuning() gameplay.Tuning { return g.tuning }

// Option reports whether a free-form option was set.
func (g *Game) Option(key string) (string, bool) {
	v, ok := g.options[key]
	return v, ok
}

// Known returns a player's known world.
func (g *Game) Known(playerID int) (*knownworld.Known, bool) {
	k, ok := g.known[playerID]
	return k, ok
}

// HasPlayer reports roster membership.
func (g *Game) HasPlayer(playerID int) bool {
	_, ok := g.members[playerID]
	return ok
}

// Players lists members in join order.
func (g *Game) Players() []int {
	return append([]int(nil), g.order...)
}

// NumPlayers returns the roster size.
func (g *Game) NumPlayers() int { return len(g.order) }

// Full reports whether another player may join.
func (g *Game) Full() bool { return len(g.order) >= g.maxPlayers }

// Scores returns a copy of the score table.
func (g *Game) Scores() map[int]int {
	out := make(map[int]int, len(g.scores))
	for id, score := range g.scores {
		out[id] = score
	}
	return out
}

// Info describes the game for a games list.
func (g *Game) Info() protocol.GameInfo {
	return protocol.GameInfo{
		GameID:         g.id,
		Name:           g.name,
		Mode:           g.mode.Name(),
		MaxPlayers:     int32(g.maxPlayers),
		CurrentPlayers: int32(len(g.order)),
		Vision:         g.visionName,
	}
}

func (g *Game) newPacket(payload protocol.PayloadType) *protocol.Packet {
	p := &protocol.Packet{PacketID: g.ids.Next(ids.FamilyPacket), PayloadType: payload}
	p.SetGameID(g.id)
	return p
}

func (g *Game) statusPacket(status protocol.Status) *protocol.Packet {
	p := g.newPacket(protocol.PayloadGameStatus)
	p.Status = status
	return p
}

func (g *Game) record(e Event) {
	e.GameID = g.id
	if e.At.IsZero() {
		e.At = g.clock()
	}
	if g.observer != nil {
		g.observer.GameEvent(e)
	}
}

// queue records an event that is also reported to the affected player.
func (g *Game) queue(e Event) {
	g.record(e)
	g.events = append(g.events, e)
}

// Join adds a player, spawns them and returns the handshake plus the first
// vision update.
func (g *Game) Join(playerID int, name string, team int) ([]Outbound, error) {
	if g.HasPlayer(playerID) {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyJoined, playerID)
	}
	if g.Full() {
		return nil, fmt.Errorf("%w: %s", ErrGameFull, g.name)
	}
	if name == "" {
		name = DefaultPlayerName
	}

	//1.- Register the player and drop them into the world.
	g.members[playerID] = &member{name: name, team: team}
	g.order = append(g.order, playerID)
	known := knownworld.New()
	known.Reset()
	g.known[playerID] = known
	g.SpawnPlayer(playerID)
	g.record(Event{PlayerID: playerID, Status: protocol.StatusJoined, Name: name})

	//2.- Describe the game to the newcomer.
	info := g.statusPacket(protocol.StatusGameInfo)
	info.YourPlayerID = int32(playerID)
	info.GameName = g.name
	info.GameMode = g.mode.Name()
	info.MaxPlayers = int32(g.maxPlayers)
	info.NumPlayers = int32(len(g.order))
	info.GameVision = g.visionName
	out := []Outbound{{PlayerID: playerID, Packet: info}}

	//3.- Announce the newcomer to everyone and replay existing members to them.
	for _, other := range g.order {
		joined := g.statusPacket(protocol.StatusJoined)
		joined.PlayerID = int32(playerID)
		joined.JoinedPlayerName = name
		out = append(out, Outbound{PlayerID: other, Packet: joined})
		if other == playerID {
			continue
		}
		past := g.statusPacket(protocol.StatusJoined)
		past.PlayerID = int32(other)
		past.JoinedPlayerName = g.members[other].name
		past.Historical = true
		out = append(out, Outbound{PlayerID: playerID, Packet: past})
	}
	g.scoresDirty = true
	return append(out, g.Flush()...), nil
}

// Leave removes a player from the roster and the world. It reports false when
// the player was not a member.
func (g *Game) Leave(playerID int) ([]Outbound, bool) {
	m, ok := g.members[playerID]
	if !ok {
		return nil, false
	}
	g.RemovePlayer(playerID)
	delete(g.known, playerID)
	delete(g.members, playerID)
	for i, id := range g.order {
		if id == playerID {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			break
		}
	}
	g.record(Event{PlayerID: playerID, Status: protocol.StatusLeft, Name: m.name})

	var out []Outbound
	for _, other := range g.order {
		left := g.statusPacket(protocol.StatusLeft)
		left.PlayerID = int32(playerID)
		out = append(out, Outbound{PlayerID: other, Packet: left})
	}
	return append(out, g.Flush()...), true
}

// Handle routes a game payload from a player.
func (g *Game) Handle(playerID int, p *protocol.Packet) []Outbound {
	if !g.HasPlayer(playerID) {
		return []Outbound{{PlayerID: playerID, Packet: g.errorPacket(protocol.ErrorNotInGame, "not in game")}}
	}
	switch p.PayloadType {
	case protocol.PayloadGameAction:
		return g.Action(playerID, p.Action, int(p.Argument))
	case protocol.PayloadGameMessage:
		return g.relayMessage(playerID, p.Message)
	case protocol.PayloadKeyValue:
		return nil
	}
	return []Outbound{{PlayerID: playerID, Packet: g.errorPacket(protocol.ErrorUnknownPayload, "unsupported game payload "+p.PayloadType.String())}}
}

func (g *Game) errorPacket(code protocol.ErrorCode, msg string) *protocol.Packet {
	p := g.newPacket(protocol.PayloadError)
	p.ErrorCode = code
	p.ErrorMessage = msg
	return p
}

func (g *Game) relayMessage(from int, text string) []Outbound {
	if text == "" {
		return nil
	}
	out := make([]Outbound, 0, len(g.order))
	for _, id := range g.order {
		p := g.newPacket(protocol.PayloadGameMessage)
		p.PlayerID = int32(from)
		p.Message = text
		out = append(out, Outbound{PlayerID: id, Packet: p})
	}
	return out
}

// Resync forgets what a player knows so the next flush resends their whole
// view with the clear-all flag.
func (g *Game) Resync(playerID int) {
	k, ok := g.known[playerID]
	if !ok {
		return
	}
	k.Reset()
	g.dirty.MarkPlayer(playerID)
}

// Advance ticks with the time since the previous call. The first call only
// arms the clock.
func (g *Game) Advance() []Outbound {
	elapsed, ok := g.stopwatch.Lap()
	if !ok {
		return nil
	}
	return g.Tick(elapsed.Seconds())
}

// Flush turns queued events, score changes and dirty marks into packets.
func (g *Game) Flush() []Outbound {
	out := g.eventPackets()
	out = append(out, g.scorePackets()...)
	out = append(out, g.visionPackets()...)
	return out
}

func (g *Game) eventPackets() []Outbound {
	var out []Outbound
	for _, e := range g.events {
		if !g.HasPlayer(e.PlayerID) {
			continue
		}
		p := g.statusPacket(e.Status)
		p.PlayerID = int32(e.PlayerID)
		p.ResponsibleID = int32(e.Responsible)
		p.DamageType = e.DamageType
		out = append(out, Outbound{PlayerID: e.PlayerID, Packet: p})
	}
	g.events = g.events[:0]
	return out
}

func (g *Game) scorePackets() []Outbound {
	if !g.scoresDirty {
		return nil
	}
	g.scoresDirty = false
	scored := make([]int, 0, len(g.scores))
	for id := range g.scores {
		scored = append(scored, id)
	}
	slices.Sort(scored)
	var out []Outbound
	for _, to := range g.order {
		p := g.newPacket(protocol.PayloadKeyValue)
		for _, id := range scored {
			p.KeyValues = append(p.KeyValues, protocol.KeyValue{
				Key:   "score:" + strconv.Itoa(id),
				Value: strconv.Itoa(g.scores[id]),
			})
		}
		out = append(out, Outbound{PlayerID: to, Packet: p})
	}
	return out
}

func (g *Game) visionPackets() []Outbound {
	pendingClear := false
	for _, k := range g.known {
		if k.ClearPending() {
			pendingClear = true
			break
		}
	}
	if g.dirty.Clean() && !pendingClear {
		return nil
	}
	_, alwaysDirty := g.options[OptionAlwaysDirtyPlayers]
	always := vision.AlwaysVisible(g.world)

	var out []Outbound
	for _, id := range g.order {
		//1.- Players between death and respawn see nothing.
		at, entity, ok := g.world.FindPlayer(id)
		if !ok {
			continue
		}
		known := g.known[id]
		visible := g.mode.Visible(g, id, g.see(g.world, at, entity.Attr.Direction)).Clone()
		visible.Union(always)

		//2.- A dirty player gets their whole view refreshed.
		dirty := g.dirty.Coords
		if alwaysDirty || g.dirty.PlayerDirty(id) || known.ClearPending() {
			dirty = visible
		}
		changed := known.Update(g.world, visible, dirty)
		clear := known.TakeClear()
		if len(changed) == 0 && !clear {
			continue
		}
		for _, p := range g.packer.Pack(g.id, known, changed, clear) {
			out = append(out, Outbound{PlayerID: id, Packet: p})
		}
	}
	g.dirty.Reset()
	return out
}

// visibleFrom runs the game's vision function for a spawned player.
func (g *Game) visibleFrom(playerID int) (geom.Set, bool) {
	at, entity, ok := g.world.FindPlayer(playerID)
	if !ok {
		return nil, false
	}
	return g.see(g.world, at, entity.Attr.Direction), true
}

func (g *Game) markCell(c geom.Coordinate) { g.dirty.MarkCell(c) }
