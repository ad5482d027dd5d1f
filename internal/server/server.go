// Package server runs the session loop: it maps transport peers to player
// ids, routes their packets into games, advances every game and keeps idle
// sessions alive or times them out.
package server

import (
	"context"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"whiteshoe/server/internal/config"
	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/gameplay"
	"whiteshoe/server/internal/ids"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/networking"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/simulation"
	"whiteshoe/server/internal/transport"
)

// Receiver yields inbound transport events. *transport.Hub satisfies it.
type Receiver interface {
	Receive(ctx context.Context, wait time.Duration) []transport.Inbound
}

// Recorder is told about every packet the server managed to send.
type Recorder interface {
	RecordPacket(at time.Time, playerID int, p *protocol.Packet)
}

// DebugStore persists whole-game snapshots for the debug save command.
type DebugStore interface {
	Save(games []game.Snapshot) error
	Load() ([]game.Snapshot, error)
}

const statsPeriod = time.Minute

type handlerFunc func(sess *Session, p *protocol.Packet)

// Server owns every session and game. The loop goroutine is the only writer;
// admin readers take the same mutex.
type Server struct {
	mu  sync.Mutex
	cfg *config.Config
	hub Receiver

	ids      *ids.Allocator
	sessions map[string]*Session
	players  map[int]*Session
	games    map[int64]*game.Game
	order    []int64
	handlers map[protocol.PayloadType]handlerFunc
	broken   map[string]error

	tuning   *gameplay.Tuning
	observer game.Observer
	recorder Recorder
	store    DebugStore
	metrics  *networking.TrafficMetrics
	monitor  *simulation.TickMonitor
	logger   *logging.Logger
	clock    func() time.Time
	seed     uint64
	rng      *rand.Rand
	stats    *simulation.Interval

	ready    atomic.Bool
	shutdown bool
}

// Option customises a Server.
type Option func(*Server)

// WithTuning overrides the gameplay constants of every game.
func WithTuning(t gameplay.Tuning) Option {
	return func(s *Server) { s.tuning = &t }
}

// WithObserver receives the events of every game.
func WithObserver(o game.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithRecorder receives every packet sent.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithDebugStore enables the debug save and load commands.
func WithDebugStore(store DebugStore) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics lets the server forget per-session traffic on disconnect.
func WithMetrics(m *networking.TrafficMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMonitor times every loop step.
func WithMonitor(m *simulation.TickMonitor) Option {
	return func(s *Server) { s.monitor = m }
}

// WithLogger sets the server logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSeed fixes the seed games and autojoin draw from.
func WithSeed(seed uint64) Option {
	return func(s *Server) { s.seed = seed }
}

// New builds a server and its default game. The configuration has already
// been validated by config.Load, so a failure here means a broken tuning file
// or world generator.
func New(cfg *config.Config, hub Receiver, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		hub:      hub,
		ids:      ids.New(),
		sessions: make(map[string]*Session),
		players:  make(map[int]*Session),
		games:    make(map[int64]*game.Game),
		broken:   make(map[string]error),
		logger:   logging.L(),
		clock:    time.Now,
		seed:     uint64(time.Now().UnixNano()),
		stats:    simulation.NewInterval(statsPeriod),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed>>1|1))
	s.handlers = map[protocol.PayloadType]handlerFunc{
		protocol.PayloadGetGamesList: s.handleGamesList,
		protocol.PayloadMakeNewGame:  s.handleMakeGame,
		protocol.PayloadJoinGame:     s.handleJoin,
		protocol.PayloadLeaveGame:    s.handleLeave,
		protocol.PayloadKeepAlive:    s.handleKeepAlive,
		protocol.PayloadError:        s.handleError,
		protocol.PayloadDisconnect:   s.handleDisconnect,
		protocol.PayloadDebug:        s.handleDebug,
		protocol.PayloadGameAction:   s.handleGame,
		protocol.PayloadGameMessage:  s.handleGame,
		protocol.PayloadKeyValue:     s.handleGame,
	}

	if _, err := s.createGame(game.Config{Name: "Default"}); err != nil {
		return nil, err
	}
	return s, nil
}

// Run drives the loop until ctx is cancelled and then disconnects everyone.
func (s *Server) Run(ctx context.Context) {
	loop := simulation.NewLoop(s.cfg.PollInterval, s.Step, s.Poll, s.monitor)
	s.ready.Store(true)
	s.logger.Info("session loop started", logging.Int("games", len(s.Games())), logging.Duration("poll", loop.PollInterval()))
	loop.Run(ctx)
	s.ready.Store(false)
	s.Shutdown()
}

// Ready reports whether the loop is running.
func (s *Server) Ready() bool { return s.ready.Load() }

// Step advances every game, then times out or keeps alive idle sessions.
func (s *Server) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	//1.- Tick every game and flush what it produced.
	for _, id := range s.order {
		s.deliver(s.games[id].Advance())
	}
	//2.- Sweep sessions over a copy so disconnects cannot disturb the walk.
	now := s.clock()
	for _, sess := range s.sortedSessions() {
		switch {
		case now.Sub(sess.LastHeard) > s.cfg.Timeout:
			sess.logger.Info("session timed out", logging.Duration("silent", now.Sub(sess.LastHeard)))
			s.disconnect(sess, protocol.DisconnectTimeout, true)
		case now.Sub(sess.LastSent) >= s.cfg.KeepAlive:
			s.send(sess, s.packet(protocol.PayloadKeepAlive))
		}
	}
	s.reap()
	if s.stats.Due(now) {
		s.logStats()
	}
}

func (s *Server) logStats() {
	tick := s.monitor.Snapshot()
	players := 0
	for _, id := range s.order {
		players += s.games[id].NumPlayers()
	}
	s.logger.Info("server stats",
		logging.Int("sessions", len(s.sessions)),
		logging.Int("games", len(s.order)),
		logging.Int("players", players),
		logging.Duration("step_avg", tick.Average),
		logging.Int("overruns", tick.Overruns),
	)
}

// Poll waits up to wait for inbound traffic and dispatches all of it.
func (s *Server) Poll(ctx context.Context, wait time.Duration) {
	for _, in := range s.hub.Receive(ctx, wait) {
		s.Dispatch(in)
	}
}

// Dispatch handles one inbound event.
func (s *Server) Dispatch(in transport.Inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reap()
	sess, known := s.sessions[in.Conn.Key()]

	switch {
	case in.Closed:
		//1.- The peer is gone; there is nobody left to notify.
		if !known {
			return
		}
		if in.Err != nil {
			sess.logger.Warn("connection lost", logging.Error(in.Err))
		}
		s.disconnect(sess, protocol.DisconnectClientQuit, false)
	case in.Err != nil:
		//2.- Malformed input ends the session while debugging and is dropped otherwise.
		if !s.cfg.Debug {
			s.logger.Warn("dropping malformed packet", logging.String("session", in.Conn.Key()), logging.Error(in.Err))
			return
		}
		s.logger.Error("malformed packet", logging.String("session", in.Conn.Key()), logging.Error(in.Err))
		if known {
			s.disconnect(sess, protocol.DisconnectProtocol, true)
			return
		}
		_ = in.Conn.Close()
	case in.Packet != nil:
		if !known {
			//3.- The packet may outlive the connection it arrived on.
			conn, live := transport.Revive(in.Conn)
			if !live {
				s.logger.Debug("dropping packet from closed connection", logging.String("session", in.Conn.Key()))
				return
			}
			sess = s.open(conn)
		}
		sess.LastHeard = s.clock()
		s.route(sess, in.Packet)
	}
}

func (s *Server) open(conn transport.Conn) *Session {
	now := s.clock()
	sess := &Session{
		PlayerID:  int(s.ids.Next(ids.FamilyPlayer)),
		Conn:      conn,
		Trace:     uuid.NewString(),
		Opened:    now,
		LastHeard: now,
		LastSent:  now,
	}
	sess.logger = s.logger.With(
		logging.String("session", conn.Key()),
		logging.Int("player_id", sess.PlayerID),
		logging.String("trace_id", sess.Trace),
	)
	s.sessions[conn.Key()] = sess
	s.players[sess.PlayerID] = sess
	sess.logger.Info("session opened", logging.String("transport", string(conn.Kind())), logging.String("remote", conn.RemoteAddr()))
	return sess
}

func (s *Server) route(sess *Session, p *protocol.Packet) {
	handler, ok := s.handlers[p.PayloadType]
	if !ok {
		sess.logger.Debug("unknown payload", logging.Int("payload", int(p.PayloadType)))
		s.sendError(sess, protocol.ErrorUnknownPayload, "unsupported payload "+p.PayloadType.String())
		return
	}
	handler(sess, p)
}

// Disconnect ends a session by player id, notifying the peer.
func (s *Server) Disconnect(playerID int, reason protocol.DisconnectReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.players[playerID]
	if !ok {
		return false
	}
	s.disconnect(sess, reason, true)
	s.reap()
	return true
}

// disconnect tears a session down: best-effort notice, leave every game,
// release the player id and close the transport.
func (s *Server) disconnect(sess *Session, reason protocol.DisconnectReason, notify bool) {
	key := sess.Conn.Key()
	if s.sessions[key] != sess {
		return
	}
	if _, failed := s.broken[key]; failed {
		notify = false
	}
	if notify {
		p := s.packet(protocol.PayloadDisconnect)
		p.DisconnectReason = reason
		if err := sess.Conn.Send(p); err != nil {
			sess.logger.Debug("disconnect notice not delivered", logging.Error(err))
		}
	}
	for _, id := range slices.Clone(s.order) {
		g := s.games[id]
		if out, ok := g.Leave(sess.PlayerID); ok {
			s.deliver(out)
		}
	}
	delete(s.sessions, key)
	delete(s.players, sess.PlayerID)
	delete(s.broken, key)
	if err := s.ids.Release(ids.FamilyPlayer, uint64(sess.PlayerID)); err != nil {
		sess.logger.Warn("player id release failed", logging.Error(err))
	}
	_ = sess.Conn.Close()
	s.metrics.ForgetSession(key)
	sess.logger.Info("session closed", logging.Int("reason", int(reason)), logging.Duration("lifetime", s.clock().Sub(sess.Opened)))
}

// reap disconnects sessions whose reliable transport failed a write.
func (s *Server) reap() {
	for len(s.broken) > 0 {
		keys := make([]string, 0, len(s.broken))
		for key := range s.broken {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			err := s.broken[key]
			sess, ok := s.sessions[key]
			if !ok {
				delete(s.broken, key)
				continue
			}
			sess.logger.Warn("write failed, dropping session", logging.Error(err))
			s.disconnect(sess, protocol.DisconnectClientQuit, false)
		}
	}
}

// Shutdown disconnects every session with the shutdown reason.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}
	s.shutdown = true
	for _, sess := range s.sortedSessions() {
		s.disconnect(sess, protocol.DisconnectShutdown, true)
	}
	s.reap()
}

func (s *Server) sortedSessions() []*Session {
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Conn.Key() < out[j].Conn.Key() })
	return out
}

// deliver sends game output to the sessions of the addressed players.
func (s *Server) deliver(out []game.Outbound) {
	for _, o := range out {
		if sess, ok := s.players[o.PlayerID]; ok {
			s.send(sess, o.Packet)
		}
	}
}

func (s *Server) send(sess *Session, p *protocol.Packet) {
	key := sess.Conn.Key()
	if _, failed := s.broken[key]; failed {
		return
	}
	if err := sess.Conn.Send(p); err != nil {
		if sess.reliable() {
			s.broken[key] = err
			return
		}
		sess.logger.Debug("datagram send failed", logging.Error(err))
		return
	}
	now := s.clock()
	sess.LastSent = now
	if s.recorder != nil {
		s.recorder.RecordPacket(now, sess.PlayerID, p)
	}
}

func (s *Server) packet(payload protocol.PayloadType) *protocol.Packet {
	return &protocol.Packet{PacketID: s.ids.Next(ids.FamilyPacket), PayloadType: payload}
}

func (s *Server) sendError(sess *Session, code protocol.ErrorCode, msg string) {
	p := s.packet(protocol.PayloadError)
	p.ErrorCode = code
	p.ErrorMessage = msg
	s.send(sess, p)
}

// createGame fills the server-wide defaults into cfg and registers the game.
func (s *Server) createGame(cfg game.Config) (*game.Game, error) {
	cfg = s.gameDefaults(cfg)
	cfg.ID = int64(s.ids.Next(ids.FamilyGame))
	cfg.Seed = s.seed + uint64(cfg.ID)
	g, err := game.New(cfg)
	if err != nil {
		_ = s.ids.Release(ids.FamilyGame, uint64(cfg.ID))
		return nil, err
	}
	s.games[g.ID()] = g
	s.order = append(s.order, g.ID())
	s.logger.Info("game created",
		logging.Int64("game_id", g.ID()),
		logging.String("name", g.Name()),
		logging.String("mode", g.ModeName()),
		logging.String("vision", g.VisionName()),
	)
	return g, nil
}

func (s *Server) gameDefaults(cfg game.Config) game.Config {
	if cfg.Mode == "" {
		cfg.Mode = s.cfg.Mode
	}
	if cfg.Vision == "" {
		cfg.Vision = s.cfg.Vision
	}
	if cfg.Generator == "" {
		cfg.Generator = s.cfg.Generator
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = s.cfg.MaxPlayers
	}
	if cfg.Options == nil {
		cfg.Options = s.cfg.Options
	}
	cfg.Tuning = s.tuning
	cfg.PacketLimit = s.cfg.PacketLimit
	cfg.IDs = s.ids
	cfg.Clock = s.clock
	cfg.Observer = s.observer
	return cfg
}

func (s *Server) gamesWith(playerID int) []*game.Game {
	var out []*game.Game
	for _, id := range s.order {
		if g := s.games[id]; g.HasPlayer(playerID) {
			out = append(out, g)
		}
	}
	return out
}

// Games lists every running game in creation order.
func (s *Server) Games() []protocol.GameInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infos()
}

func (s *Server) infos() []protocol.GameInfo {
	out := make([]protocol.GameInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.games[id].Info())
	}
	return out
}

// Scores returns each game's score table keyed by game id.
func (s *Server) Scores() map[int64]map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]map[int]int, len(s.games))
	for id, g := range s.games {
		out[id] = g.Scores()
	}
	return out
}

// Sessions lists connected sessions ordered by key.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.sortedSessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.info())
	}
	return out
}

// TickStats reports loop step timings.
func (s *Server) TickStats() simulation.TickMetricsSnapshot {
	return s.monitor.Snapshot()
}
