package protocol

import "whiteshoe/server/internal/world"

// PayloadType discriminates packets. Negative values are session payloads,
// positive values belong to a game.
type PayloadType int32

const (
	PayloadGetGamesList PayloadType = -1
	PayloadGamesRunning PayloadType = -2
	PayloadMakeNewGame  PayloadType = -3
	PayloadJoinGame     PayloadType = -4
	PayloadLeaveGame    PayloadType = -5
	PayloadKeepAlive    PayloadType = -6
	PayloadError        PayloadType = -7
	PayloadDisconnect   PayloadType = -8
	PayloadDebug        PayloadType = -9

	PayloadGameAction   PayloadType = 1
	PayloadVisionUpdate PayloadType = 2
	PayloadGameStatus   PayloadType = 3
	PayloadKeyValue     PayloadType = 4
	PayloadGameMessage  PayloadType = 5
)

var payloadNames = map[PayloadType]string{
	PayloadGetGamesList: "get_games_list",
	PayloadGamesRunning: "games_running",
	PayloadMakeNewGame:  "make_new_game",
	PayloadJoinGame:     "join_game",
	PayloadLeaveGame:    "leave_game",
	PayloadKeepAlive:    "keep_alive",
	PayloadError:        "error",
	PayloadDisconnect:   "disconnect",
	PayloadDebug:        "debug",
	PayloadGameAction:   "game_action",
	PayloadVisionUpdate: "vision_update",
	PayloadGameStatus:   "game_status",
	PayloadKeyValue:     "key_value",
	PayloadGameMessage:  "game_message",
}

func (p PayloadType) String() string {
	if name, ok := payloadNames[p]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether the payload type is declared.
func (p PayloadType) Known() bool {
	_, ok := payloadNames[p]
	return ok
}

// Meta reports whether the payload is handled by the session layer.
func (p PayloadType) Meta() bool { return p < 0 }

// Status is the sub-discriminant of a game status payload.
type Status int32

const (
	StatusJoined        Status = 1
	StatusLeft          Status = 2
	StatusSpawned       Status = 3
	StatusDamaged       Status = 4
	StatusDeath         Status = 5
	StatusKilled        Status = 6
	StatusPause         Status = 7
	StatusResume        Status = 8
	StatusGlobalMessage Status = 9
	StatusGameInfo      Status = 10
)

var statusNames = map[Status]string{
	StatusJoined:        "joined",
	StatusLeft:          "left",
	StatusSpawned:       "spawned",
	StatusDamaged:       "damaged",
	StatusDeath:         "death",
	StatusKilled:        "killed",
	StatusPause:         "pause",
	StatusResume:        "resume",
	StatusGlobalMessage: "global_message",
	StatusGameInfo:      "game_info",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ErrorCode explains an error payload.
type ErrorCode int32

const (
	ErrorNotInGame      ErrorCode = 1
	ErrorNoSuchGame     ErrorCode = 2
	ErrorGameFull       ErrorCode = 3
	ErrorMalformed      ErrorCode = 4
	ErrorUnknownPayload ErrorCode = 5
	ErrorAlreadyInGame  ErrorCode = 6
)

// DamageType explains what hurt a player.
type DamageType int32

const (
	DamageUnknown   DamageType = 0
	DamageStab      DamageType = 1
	DamageExplosion DamageType = 2
	DamageSlime     DamageType = 3
	DamageLava      DamageType = 4
)

func (d DamageType) String() string {
	switch d {
	case DamageStab:
		return "stab"
	case DamageExplosion:
		return "explosion"
	case DamageSlime:
		return "slime"
	case DamageLava:
		return "lava"
	}
	return "unknown"
}

// Responsible ids that do not name a player.
const (
	OriginEnvironment = -1
	OriginUnknown     = -2
)

// DisconnectReason explains why the server closed a session.
type DisconnectReason int32

const (
	DisconnectClientQuit DisconnectReason = 0
	DisconnectTimeout    DisconnectReason = 1
	DisconnectKicked     DisconnectReason = 2
	DisconnectShutdown   DisconnectReason = 3
	DisconnectProtocol   DisconnectReason = 4
)

// GameInfo describes one running game in a games list.
type GameInfo struct {
	GameID         int64
	Name           string
	Mode           string
	MaxPlayers     int32
	CurrentPlayers int32
	Vision         string
}

// KeyValue is one entry of a key-value store update.
type KeyValue struct {
	Key   string
	Value string
}

// Packet is the single message exchanged between client and server.
type Packet struct {
	PacketID    uint64
	PayloadType PayloadType
	GameID      int64
	HasGameID   bool

	// Game action.
	Action   world.Action
	Argument int32

	// Vision update: (x, y, kind, attribute index) tuples.
	Objects    []int32
	Attributes []world.Attributes
	ClearAll   bool

	// Game status.
	Status           Status
	PlayerID         int32
	ResponsibleID    int32
	DamageType       DamageType
	YourPlayerID     int32
	GameName         string
	GameMode         string
	MaxPlayers       int32
	NumPlayers       int32
	GameVision       string
	JoinedPlayerName string
	Historical       bool
	UnpauseCountdown int32
	Message          string

	// Errors and disconnects.
	ErrorCode        ErrorCode
	ErrorMessage     string
	DisconnectReason DisconnectReason

	// Session requests and replies.
	Games       []GameInfo
	Autojoin    bool
	JoinNewGame bool
	Generator   string
	PlayerName  string
	Team        int32

	KeyValues []KeyValue

	DebugCommand  string
	DebugArgument string
}

// SetGameID binds the packet to a game.
func (p *Packet) SetGameID(id int64) {
	p.GameID = id
	p.HasGameID = true
}

// AppendObject adds one vision tuple.
func (p *Packet) AppendObject(x, y, kind, attr int32) {
	p.Objects = append(p.Objects, x, y, kind, attr)
}

// ObjectCount returns the number of vision tuples.
func (p *Packet) ObjectCount() int { return len(p.Objects) / 4 }

// Object returns the i-th vision tuple.
func (p *Packet) Object(i int) (x, y, kind, attr int32) {
	o := p.Objects[4*i : 4*i+4]
	return o[0], o[1], o[2], o[3]
}
