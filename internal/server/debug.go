package server

import (
	"errors"
	"fmt"
	"strconv"

	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/ids"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/protocol"
)

// Debug command names carried by a debug payload.
const (
	DebugSave = "save"
	DebugLoad = "load"
)

// ErrNoDebugStore is returned when saving without a configured store.
var ErrNoDebugStore = errors.New("debug store not configured")

// handleDebug serves the save and load commands. Outside debug mode the
// payload is refused like any other unsupported one.
func (s *Server) handleDebug(sess *Session, p *protocol.Packet) {
	if !s.cfg.Debug {
		s.sendError(sess, protocol.ErrorUnknownPayload, "debug commands are disabled")
		return
	}
	var (
		result string
		err    error
	)
	switch p.DebugCommand {
	case DebugSave:
		var n int
		n, err = s.saveLocked()
		result = strconv.Itoa(n) + " games saved"
	case DebugLoad:
		var n int
		n, err = s.loadLocked()
		result = strconv.Itoa(n) + " games loaded"
	default:
		err = fmt.Errorf("unknown debug command %q", p.DebugCommand)
	}
	if err != nil {
		sess.logger.Warn("debug command failed", logging.String("command", p.DebugCommand), logging.Error(err))
		s.sendError(sess, protocol.ErrorMalformed, err.Error())
		return
	}
	reply := s.packet(protocol.PayloadDebug)
	reply.DebugCommand = p.DebugCommand
	reply.DebugArgument = result
	s.send(sess, reply)
}

// SaveDebug writes every game to the debug store.
func (s *Server) SaveDebug() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// LoadDebug replaces every game with the debug store contents.
func (s *Server) LoadDebug() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.loadLocked()
	s.reap()
	return n, err
}

func (s *Server) saveLocked() (int, error) {
	if s.store == nil {
		return 0, ErrNoDebugStore
	}
	snaps := make([]game.Snapshot, 0, len(s.order))
	for _, id := range s.order {
		snap, err := s.games[id].Snapshot()
		if err != nil {
			return 0, fmt.Errorf("snapshot game %d: %w", id, err)
		}
		snaps = append(snaps, snap)
	}
	if err := s.store.Save(snaps); err != nil {
		return 0, err
	}
	s.logger.Info("debug save written", logging.Int("games", len(snaps)))
	return len(snaps), nil
}

// loadLocked restores saved games. Saved members without a live session are
// removed again; live members get a full resend.
func (s *Server) loadLocked() (int, error) {
	if s.store == nil {
		return 0, ErrNoDebugStore
	}
	snaps, err := s.store.Load()
	if err != nil {
		return 0, err
	}
	//1.- Restore everything before touching the running games.
	restored := make([]*game.Game, 0, len(snaps))
	for _, snap := range snaps {
		g, err := game.Restore(snap, s.gameDefaults(game.Config{}))
		if err != nil {
			return 0, fmt.Errorf("restore game %d: %w", snap.ID, err)
		}
		restored = append(restored, g)
	}

	//2.- Swap the registry and drop orphaned members.
	s.games = make(map[int64]*game.Game, len(restored))
	s.order = s.order[:0]
	for _, g := range restored {
		s.ids.Reserve(ids.FamilyGame, uint64(g.ID()))
		s.games[g.ID()] = g
		s.order = append(s.order, g.ID())
		for _, playerID := range g.Players() {
			if _, live := s.players[playerID]; !live {
				out, _ := g.Leave(playerID)
				s.deliver(out)
			}
		}
		s.deliver(g.Flush())
	}
	s.logger.Info("debug save loaded", logging.Int("games", len(restored)))
	return len(restored), nil
}
