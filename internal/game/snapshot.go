package game

import (
	"fmt"

	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/knownworld"
	"whiteshoe/server/internal/world"
)

// SavedCell is one non-empty grid cell in a snapshot.
type SavedCell struct {
	X        int             `msgpack:"x"`
	Y        int             `msgpack:"y"`
	Entities []*world.Entity `msgpack:"entities"`
}

// SavedMember is one roster entry in a snapshot.
type SavedMember struct {
	PlayerID int    `msgpack:"player_id"`
	Name     string `msgpack:"name"`
	Team     int    `msgpack:"team"`
}

// Snapshot is the persisted state of a game: enough to rebuild the world,
// the roster and the random stream. Transient timers are not kept, so
// projectiles and explosions restart their clocks after a load.
type Snapshot struct {
	ID         int64             `msgpack:"id"`
	Name       string            `msgpack:"name"`
	Mode       string            `msgpack:"mode"`
	Vision     string            `msgpack:"vision"`
	Generator  string            `msgpack:"generator"`
	MaxPlayers int               `msgpack:"max_players"`
	Options    map[string]string `msgpack:"options"`
	Width      int               `msgpack:"width"`
	Height     int               `msgpack:"height"`
	Cells      []SavedCell       `msgpack:"cells"`
	RNG        []byte            `msgpack:"rng"`
	Members    []SavedMember     `msgpack:"members"`
	Scores     map[int]int       `msgpack:"scores"`
}

// Snapshot captures the game's persistent state.
func (g *Game) Snapshot() (Snapshot, error) {
	rng, err := g.pcg.MarshalBinary()
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal rng: %w", err)
	}
	s := Snapshot{
		ID:         g.id,
		Name:       g.name,
		Mode:       g.mode.Name(),
		Vision:     g.visionName,
		Generator:  g.generator,
		MaxPlayers: g.maxPlayers,
		Options:    make(map[string]string, len(g.options)),
		Width:      g.world.Width,
		Height:     g.world.Height,
		RNG:        rng,
		Scores:     g.Scores(),
	}
	for k, v := range g.options {
		s.Options[k] = v
	}
	for _, c := range g.world.Coordinates() {
		list := g.world.At(c)
		if len(list) == 0 {
			continue
		}
		saved := make([]*world.Entity, len(list))
		for i, e := range list {
			saved[i] = e.Copy()
		}
		s.Cells = append(s.Cells, SavedCell{X: c.X, Y: c.Y, Entities: saved})
	}
	for _, id := range g.order {
		m := g.members[id]
		s.Members = append(s.Members, SavedMember{PlayerID: id, Name: m.name, Team: m.team})
	}
	return s, nil
}

// Restore rebuilds a game from a snapshot. cfg supplies the collaborators a
// snapshot does not carry (clock, ids, observer, tuning). Every restored
// member starts with an empty known world and receives a full resend.
func Restore(s Snapshot, cfg Config) (*Game, error) {
	//1.- Rebuild the grid cell by cell.
	w := world.NewWorld(s.Width, s.Height)
	for _, cell := range s.Cells {
		c := geom.Coordinate{X: cell.X, Y: cell.Y}
		if !w.Contains(c) {
			return nil, fmt.Errorf("snapshot cell %v outside %dx%d world", c, s.Width, s.Height)
		}
		w.Set(c, cell.Entities)
	}

	cfg.ID = s.ID
	cfg.Name = s.Name
	cfg.Mode = s.Mode
	cfg.Vision = s.Vision
	cfg.Generator = s.Generator
	cfg.MaxPlayers = s.MaxPlayers
	cfg.Options = s.Options
	cfg.World = w
	g, err := New(cfg)
	if err != nil {
		return nil, err
	}

	//2.- Resume the random stream where it stopped.
	if len(s.RNG) > 0 {
		if err := g.pcg.UnmarshalBinary(s.RNG); err != nil {
			return nil, fmt.Errorf("unmarshal rng: %w", err)
		}
	}

	//3.- Reinstate the roster and force a clear-all resend for everyone.
	for _, m := range s.Members {
		g.members[m.PlayerID] = &member{name: m.Name, team: m.Team}
		g.order = append(g.order, m.PlayerID)
		g.known[m.PlayerID] = knownworld.New()
		g.Resync(m.PlayerID)
	}
	for id, score := range s.Scores {
		g.scores[id] = score
	}
	g.scoresDirty = len(s.Members) > 0
	return g, nil
}
