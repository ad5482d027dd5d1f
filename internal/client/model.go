// Package client keeps the client side picture of a game: the cells the
// server has revealed, who we are, and the session replies we have seen.
package client

import (
	"errors"
	"fmt"
	"sort"

	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/world"
)

// ErrBadUpdate reports a vision update that cannot be applied.
var ErrBadUpdate = errors.New("bad vision update")

// ServerError is the last error payload received.
type ServerError struct {
	Code    protocol.ErrorCode
	Message string
}

// Model mirrors what one player knows. It is not safe for concurrent use.
type Model struct {
	GameID   int64
	InGame   bool
	PlayerID int
	Vision   string
	GameName string
	Mode     string

	Disconnected     bool
	DisconnectReason protocol.DisconnectReason

	known     map[geom.Coordinate][]world.Entity
	roster    map[int]string
	values    map[string]string
	games     []protocol.GameInfo
	lastError *ServerError
	packetID  uint64
}

// NewModel returns an empty model outside any game.
func NewModel() *Model {
	return &Model{
		known:  make(map[geom.Coordinate][]world.Entity),
		roster: make(map[int]string),
		values: make(map[string]string),
	}
}

// Apply folds one server packet into the model.
func (m *Model) Apply(p *protocol.Packet) error {
	if p == nil {
		return nil
	}
	switch p.PayloadType {
	case protocol.PayloadVisionUpdate:
		if !m.forCurrentGame(p) {
			return nil
		}
		return m.applyVision(p)
	case protocol.PayloadGameStatus:
		m.applyStatus(p)
	case protocol.PayloadKeyValue:
		if !m.forCurrentGame(p) {
			return nil
		}
		for _, kv := range p.KeyValues {
			m.values[kv.Key] = kv.Value
		}
	case protocol.PayloadGamesRunning:
		m.games = append(m.games[:0], p.Games...)
	case protocol.PayloadError:
		m.lastError = &ServerError{Code: p.ErrorCode, Message: p.ErrorMessage}
	case protocol.PayloadDisconnect:
		m.Disconnected = true
		m.DisconnectReason = p.DisconnectReason
		m.leaveGame()
	}
	return nil
}

func (m *Model) forCurrentGame(p *protocol.Packet) bool {
	return m.InGame && (!p.HasGameID || p.GameID == m.GameID)
}

// applyVision validates every tuple before touching the known cells so a bad
// packet leaves the model unchanged.
func (m *Model) applyVision(p *protocol.Packet) error {
	if len(p.Objects)%4 != 0 {
		return fmt.Errorf("%w: %d values do not form tuples", ErrBadUpdate, len(p.Objects))
	}
	for i := 0; i < p.ObjectCount(); i++ {
		_, _, kind, attr := p.Object(i)
		if kind == -1 {
			continue
		}
		if !world.Kind(kind).Valid() {
			return fmt.Errorf("%w: unknown kind %d", ErrBadUpdate, kind)
		}
		if attr < -1 || int(attr) >= len(p.Attributes) {
			return fmt.Errorf("%w: attribute index %d of %d", ErrBadUpdate, attr, len(p.Attributes))
		}
	}

	if p.ClearAll {
		m.known = make(map[geom.Coordinate][]world.Entity)
	}
	//1.- The first tuple for a cell replaces whatever we knew about it.
	cleared := make(map[geom.Coordinate]struct{})
	for i := 0; i < p.ObjectCount(); i++ {
		x, y, kind, attr := p.Object(i)
		c := geom.Coordinate{X: int(x), Y: int(y)}
		if _, ok := cleared[c]; !ok {
			m.known[c] = m.known[c][:0:0]
			cleared[c] = struct{}{}
		}
		if kind == -1 {
			continue
		}
		e := world.Entity{Kind: world.Kind(kind)}
		if attr >= 0 {
			e.Attr = p.Attributes[attr]
		}
		m.known[c] = append(m.known[c], e)
	}
	return nil
}

func (m *Model) applyStatus(p *protocol.Packet) {
	switch p.Status {
	case protocol.StatusGameInfo:
		m.GameID = p.GameID
		m.InGame = true
		m.PlayerID = int(p.YourPlayerID)
		m.Vision = p.GameVision
		m.GameName = p.GameName
		m.Mode = p.GameMode
		m.known = make(map[geom.Coordinate][]world.Entity)
		m.roster = make(map[int]string)
		m.values = make(map[string]string)
	case protocol.StatusJoined:
		if m.forCurrentGame(p) {
			m.roster[int(p.PlayerID)] = p.JoinedPlayerName
		}
	case protocol.StatusLeft:
		if !m.forCurrentGame(p) {
			return
		}
		if int(p.PlayerID) == m.PlayerID {
			m.leaveGame()
			return
		}
		delete(m.roster, int(p.PlayerID))
	}
}

func (m *Model) leaveGame() {
	m.InGame = false
	m.known = make(map[geom.Coordinate][]world.Entity)
	m.roster = make(map[int]string)
}

// FindMe locates our own player among the known cells.
func (m *Model) FindMe() (geom.Coordinate, world.Entity, bool) {
	if !m.InGame {
		return geom.Coordinate{}, world.Entity{}, false
	}
	for _, c := range m.Coordinates() {
		for _, e := range m.known[c] {
			if e.Kind == world.KindPlayer && e.Attr.Has(world.FieldPlayerID) && e.Attr.PlayerID == m.PlayerID {
				return c, e, true
			}
		}
	}
	return geom.Coordinate{}, world.Entity{}, false
}

// Cell returns a copy of what we know about c.
func (m *Model) Cell(c geom.Coordinate) ([]world.Entity, bool) {
	cell, ok := m.known[c]
	if !ok {
		return nil, false
	}
	return append([]world.Entity(nil), cell...), true
}

// Coordinates lists known cells in row-major order.
func (m *Model) Coordinates() []geom.Coordinate {
	coords := make([]geom.Coordinate, 0, len(m.known))
	for c := range m.known {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Y != coords[j].Y {
			return coords[i].Y < coords[j].Y
		}
		return coords[i].X < coords[j].X
	})
	return coords
}

// Roster returns the names of the other known players by id.
func (m *Model) Roster() map[int]string {
	out := make(map[int]string, len(m.roster))
	for id, name := range m.roster {
		out[id] = name
	}
	return out
}

// Value returns an entry of the key-value store, such as "score:3".
func (m *Model) Value(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Games returns the last games list received.
func (m *Model) Games() []protocol.GameInfo {
	return append([]protocol.GameInfo(nil), m.games...)
}

// LastError returns the most recent error payload, if any.
func (m *Model) LastError() (ServerError, bool) {
	if m.lastError == nil {
		return ServerError{}, false
	}
	return *m.lastError, true
}

func (m *Model) nextPacket(payload protocol.PayloadType) *protocol.Packet {
	m.packetID++
	return &protocol.Packet{PacketID: m.packetID, PayloadType: payload}
}

// JoinRequest asks to join gameID, or any open game when autojoin is set.
func (m *Model) JoinRequest(gameID int64, autojoin bool) *protocol.Packet {
	p := m.nextPacket(protocol.PayloadJoinGame)
	p.Autojoin = autojoin
	if !autojoin {
		p.SetGameID(gameID)
	}
	return p
}

// Command builds a game action for the current game.
func (m *Model) Command(action world.Action, argument int) (*protocol.Packet, bool) {
	if !m.InGame {
		return nil, false
	}
	p := m.nextPacket(protocol.PayloadGameAction)
	p.SetGameID(m.GameID)
	p.Action = action
	p.Argument = int32(argument)
	return p, true
}

// KeepAlive builds a keepalive packet.
func (m *Model) KeepAlive() *protocol.Packet {
	return m.nextPacket(protocol.PayloadKeepAlive)
}
