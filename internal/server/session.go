package server

import (
	"time"

	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/transport"
)

// Session binds one transport peer to the player id the games know it by.
type Session struct {
	PlayerID  int
	Conn      transport.Conn
	Trace     string
	Opened    time.Time
	LastHeard time.Time
	LastSent  time.Time

	logger *logging.Logger
}

// SessionInfo is the read-only view of a session exposed to admin surfaces.
type SessionInfo struct {
	Key       string    `json:"key"`
	Transport string    `json:"transport"`
	Remote    string    `json:"remote"`
	PlayerID  int       `json:"player_id"`
	Trace     string    `json:"trace_id"`
	LastHeard time.Time `json:"last_heard"`
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		Key:       s.Conn.Key(),
		Transport: string(s.Conn.Kind()),
		Remote:    s.Conn.RemoteAddr(),
		PlayerID:  s.PlayerID,
		Trace:     s.Trace,
		LastHeard: s.LastHeard,
	}
}

// reliable reports whether a failed write means the peer is gone.
func (s *Session) reliable() bool { return s.Conn.Kind() != transport.KindUDP }
