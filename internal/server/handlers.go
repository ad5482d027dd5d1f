package server

import (
	"errors"

	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/protocol"
)

func (s *Server) handleGamesList(sess *Session, _ *protocol.Packet) {
	reply := s.packet(protocol.PayloadGamesRunning)
	reply.Games = s.infos()
	s.send(sess, reply)
}

// handleMakeGame creates a game from the request, joining it when asked.
// Everything the request leaves unset falls back to the server defaults.
func (s *Server) handleMakeGame(sess *Session, p *protocol.Packet) {
	g, err := s.createGame(game.Config{
		Name:       p.GameName,
		Mode:       p.GameMode,
		Vision:     p.GameVision,
		Generator:  p.Generator,
		MaxPlayers: int(p.MaxPlayers),
	})
	if err != nil {
		sess.logger.Info("game creation refused", logging.Error(err))
		s.sendError(sess, protocol.ErrorMalformed, err.Error())
		return
	}
	if p.JoinNewGame {
		s.join(sess, g, p)
		return
	}
	reply := s.packet(protocol.PayloadGamesRunning)
	reply.Games = []protocol.GameInfo{g.Info()}
	s.send(sess, reply)
}

func (s *Server) handleJoin(sess *Session, p *protocol.Packet) {
	if p.Autojoin {
		//1.- Autojoin picks uniformly among games with a free slot.
		var open []*game.Game
		for _, id := range s.order {
			if g := s.games[id]; !g.Full() && !g.HasPlayer(sess.PlayerID) {
				open = append(open, g)
			}
		}
		if len(open) == 0 {
			s.sendError(sess, protocol.ErrorNoSuchGame, "no game with a free slot")
			return
		}
		s.join(sess, open[s.rng.IntN(len(open))], p)
		return
	}
	g, ok := s.games[p.GameID]
	if !ok {
		s.sendError(sess, protocol.ErrorNoSuchGame, "no such game")
		return
	}
	s.join(sess, g, p)
}

func (s *Server) join(sess *Session, g *game.Game, p *protocol.Packet) {
	out, err := g.Join(sess.PlayerID, p.PlayerName, int(p.Team))
	switch {
	case errors.Is(err, game.ErrGameFull):
		s.sendError(sess, protocol.ErrorGameFull, err.Error())
		return
	case errors.Is(err, game.ErrAlreadyJoined):
		s.sendError(sess, protocol.ErrorAlreadyInGame, err.Error())
		return
	case err != nil:
		s.sendError(sess, protocol.ErrorMalformed, err.Error())
		return
	}
	sess.logger.Info("joined game", logging.Int64("game_id", g.ID()), logging.String("name", p.PlayerName))
	s.deliver(out)
}

// handleLeave leaves the named game, or every game when none is named.
func (s *Server) handleLeave(sess *Session, p *protocol.Packet) {
	targets := s.gamesWith(sess.PlayerID)
	if p.HasGameID {
		targets = targets[:0]
		if g, ok := s.games[p.GameID]; ok && g.HasPlayer(sess.PlayerID) {
			targets = append(targets, g)
		}
	}
	if len(targets) == 0 {
		s.sendError(sess, protocol.ErrorNotInGame, "not in game")
		return
	}
	for _, g := range targets {
		out, _ := g.Leave(sess.PlayerID)
		sess.logger.Info("left game", logging.Int64("game_id", g.ID()))
		s.deliver(out)
	}
}

func (s *Server) handleKeepAlive(*Session, *protocol.Packet) {}

func (s *Server) handleError(sess *Session, p *protocol.Packet) {
	sess.logger.Debug("peer reported error", logging.Int("code", int(p.ErrorCode)), logging.String("message", p.ErrorMessage))
}

func (s *Server) handleDisconnect(sess *Session, _ *protocol.Packet) {
	s.disconnect(sess, protocol.DisconnectClientQuit, false)
}

// handleGame routes a game payload to the game it names. A packet without a
// game id goes to the first game the player is in.
func (s *Server) handleGame(sess *Session, p *protocol.Packet) {
	var g *game.Game
	if p.HasGameID {
		found, ok := s.games[p.GameID]
		if !ok {
			s.sendError(sess, protocol.ErrorNoSuchGame, "no such game")
			return
		}
		g = found
	} else if in := s.gamesWith(sess.PlayerID); len(in) > 0 {
		g = in[0]
	}
	if g == nil {
		s.sendError(sess, protocol.ErrorNotInGame, "not in game")
		return
	}
	s.deliver(g.Handle(sess.PlayerID, p))
}
