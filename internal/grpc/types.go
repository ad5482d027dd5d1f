package grpc

import (
	"fmt"

	"whiteshoe/server/internal/protocol"
)

const (
	// ServerService is the health name covering the whole session loop.
	ServerService = "whiteshoe.Server"
	// gameServicePrefix is joined with a game id to name one game.
	gameServicePrefix = "whiteshoe.Game/"
)

// GameSource exposes what the health service mirrors.
type GameSource interface {
	Ready() bool
	Games() []protocol.GameInfo
}

// GameService returns the health service name of a game.
func GameService(gameID int64) string {
	return fmt.Sprintf("%s%d", gameServicePrefix, gameID)
}
