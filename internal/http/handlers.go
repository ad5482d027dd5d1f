package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"whiteshoe/server/internal/indexdb"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/networking"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/replay"
	"whiteshoe/server/internal/server"
	"whiteshoe/server/internal/simulation"
)

// State exposes the running server to the admin endpoints.
type State interface {
	Ready() bool
	Games() []protocol.GameInfo
	Scores() map[int64]map[int]int
	Sessions() []server.SessionInfo
	TickStats() simulation.TickMetricsSnapshot
}

// DebugSaver writes the debug save and reports how many games it holds.
type DebugSaver interface {
	SaveDebug() (int, error)
}

// DebugSaverFunc adapts a function into a DebugSaver.
type DebugSaverFunc func() (int, error)

// SaveDebug implements DebugSaver.
func (f DebugSaverFunc) SaveDebug() (int, error) { return f() }

// Leaderboard answers score queries from the sqlite index.
type Leaderboard interface {
	Leaderboard(ctx context.Context, limit int) ([]indexdb.ScoreRow, error)
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	State       State
	Traffic     *networking.TrafficMetrics
	Saver       DebugSaver
	Leaderboard Leaderboard
	Storage     func() replay.StorageStats
	EventCounts func() (events, frames int64)
	AdminToken  string
	RateLimiter RateLimiter
	StartedAt   time.Time
	TimeSource  func() time.Time
}

// HandlerSet bundles the admin handlers.
type HandlerSet struct {
	logger      *logging.Logger
	state       State
	traffic     *networking.TrafficMetrics
	saver       DebugSaver
	leaderboard Leaderboard
	storage     func() replay.StorageStats
	eventCounts func() (events, frames int64)
	adminToken  string
	rateLimiter RateLimiter
	started     time.Time
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	started := opts.StartedAt
	if started.IsZero() {
		started = now()
	}
	return &HandlerSet{
		logger:      logger,
		state:       opts.State,
		traffic:     opts.Traffic,
		saver:       opts.Saver,
		leaderboard: opts.Leaderboard,
		storage:     opts.Storage,
		eventCounts: opts.EventCounts,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		started:     started,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/games", h.GamesHandler())
	mux.HandleFunc("/sessions", h.SessionsHandler())
	mux.HandleFunc("/leaderboard", h.LeaderboardHandler())
	mux.HandleFunc("/debug/save", h.DebugSaveHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether the session loop is running.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Sessions      int     `json:"sessions"`
		Games         int     `json:"games"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: "ok", UptimeSeconds: h.uptime()}
		if h.state == nil || !h.state.Ready() {
			resp.Status = "starting"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Sessions = len(h.state.Sessions())
		resp.Games = len(h.state.Games())
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP whiteshoe_uptime_seconds Server uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE whiteshoe_uptime_seconds gauge\n")
		fmt.Fprintf(w, "whiteshoe_uptime_seconds %.0f\n", h.uptime())

		if h.state != nil {
			sessions := h.state.Sessions()
			byTransport := make(map[string]int)
			for _, s := range sessions {
				byTransport[s.Transport]++
			}
			fmt.Fprintf(w, "# HELP whiteshoe_sessions Connected sessions per transport.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_sessions gauge\n")
			for _, kind := range sortedKeys(byTransport) {
				fmt.Fprintf(w, "whiteshoe_sessions{transport=%q} %d\n", kind, byTransport[kind])
			}

			games := h.state.Games()
			fmt.Fprintf(w, "# HELP whiteshoe_game_players Players per running game.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_game_players gauge\n")
			for _, g := range games {
				fmt.Fprintf(w, "whiteshoe_game_players{game=\"%d\",mode=%q} %d\n", g.GameID, g.Mode, g.CurrentPlayers)
			}

			ticks := h.state.TickStats()
			fmt.Fprintf(w, "# HELP whiteshoe_step_seconds Duration of loop steps.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_step_seconds gauge\n")
			fmt.Fprintf(w, "whiteshoe_step_seconds{stat=\"average\"} %.6f\n", ticks.Average.Seconds())
			fmt.Fprintf(w, "whiteshoe_step_seconds{stat=\"max\"} %.6f\n", ticks.Max.Seconds())
			fmt.Fprintf(w, "whiteshoe_step_seconds{stat=\"last\"} %.6f\n", ticks.Last.Seconds())
			fmt.Fprintf(w, "# HELP whiteshoe_step_overruns_total Steps exceeding the poll budget.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_step_overruns_total counter\n")
			fmt.Fprintf(w, "whiteshoe_step_overruns_total %d\n", ticks.Overruns)
		}

		if h.traffic != nil {
			totals := h.traffic.Totals()
			fmt.Fprintf(w, "# HELP whiteshoe_packets_total Packets exchanged with clients.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_packets_total counter\n")
			fmt.Fprintf(w, "whiteshoe_packets_total{direction=\"sent\"} %d\n", totals.PacketsSent)
			fmt.Fprintf(w, "whiteshoe_packets_total{direction=\"received\"} %d\n", totals.PacketsReceived)
			fmt.Fprintf(w, "# HELP whiteshoe_bytes_total Encoded bytes exchanged with clients.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_bytes_total counter\n")
			fmt.Fprintf(w, "whiteshoe_bytes_total{direction=\"sent\"} %d\n", totals.BytesSent)
			fmt.Fprintf(w, "whiteshoe_bytes_total{direction=\"received\"} %d\n", totals.BytesReceived)
			fmt.Fprintf(w, "# HELP whiteshoe_decode_errors_total Inbound packets that failed to decode.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_decode_errors_total counter\n")
			fmt.Fprintf(w, "whiteshoe_decode_errors_total %d\n", totals.DecodeErrors)

			byPayload := h.traffic.PacketsByPayload()
			payloads := make([]protocol.PayloadType, 0, len(byPayload))
			for p := range byPayload {
				payloads = append(payloads, p)
			}
			sort.Slice(payloads, func(i, j int) bool { return payloads[i] < payloads[j] })
			fmt.Fprintf(w, "# HELP whiteshoe_sent_payloads_total Outbound packets per payload type.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_sent_payloads_total counter\n")
			for _, p := range payloads {
				fmt.Fprintf(w, "whiteshoe_sent_payloads_total{payload=%q} %d\n", p.String(), byPayload[p])
			}
		}

		if h.eventCounts != nil {
			events, frames := h.eventCounts()
			fmt.Fprintf(w, "# HELP whiteshoe_event_log_records_total Records written to the event log.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_event_log_records_total counter\n")
			fmt.Fprintf(w, "whiteshoe_event_log_records_total{stream=\"events\"} %d\n", events)
			fmt.Fprintf(w, "whiteshoe_event_log_records_total{stream=\"frames\"} %d\n", frames)
		}
		if h.storage != nil {
			stats := h.storage()
			fmt.Fprintf(w, "# HELP whiteshoe_event_log_runs Retained event log runs.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_event_log_runs gauge\n")
			fmt.Fprintf(w, "whiteshoe_event_log_runs %d\n", stats.Runs)
			fmt.Fprintf(w, "# HELP whiteshoe_event_log_bytes Disk usage of retained runs.\n")
			fmt.Fprintf(w, "# TYPE whiteshoe_event_log_bytes gauge\n")
			fmt.Fprintf(w, "whiteshoe_event_log_bytes %d\n", stats.Bytes)
		}
	}
}

// GamesHandler lists running games with their score tables.
func (h *HandlerSet) GamesHandler() http.HandlerFunc {
	type game struct {
		protocol.GameInfo
		Scores map[string]int `json:"scores"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.state == nil {
			http.Error(w, "server unavailable", http.StatusServiceUnavailable)
			return
		}
		scores := h.state.Scores()
		infos := h.state.Games()
		out := make([]game, 0, len(infos))
		for _, info := range infos {
			table := make(map[string]int, len(scores[info.GameID]))
			for pid, score := range scores[info.GameID] {
				table[strconv.Itoa(pid)] = score
			}
			out = append(out, game{GameInfo: info, Scores: table})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// SessionsHandler lists connected sessions.
func (h *HandlerSet) SessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.state == nil {
			http.Error(w, "server unavailable", http.StatusServiceUnavailable)
			return
		}
		sessions := h.state.Sessions()
		if sessions == nil {
			sessions = []server.SessionInfo{}
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

// LeaderboardHandler reads the best scores from the sqlite index.
func (h *HandlerSet) LeaderboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.leaderboard == nil {
			http.Error(w, "score index is not configured", http.StatusNotFound)
			return
		}
		limit := 10
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}
		rows, err := h.leaderboard.Leaderboard(r.Context(), limit)
		if err != nil {
			logging.LoggerFromContext(r.Context()).Error("leaderboard query failed", logging.Error(err))
			http.Error(w, "leaderboard query failed", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []indexdb.ScoreRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// DebugSaveHandler authorises and triggers a debug save.
func (h *HandlerSet) DebugSaveHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
		Games  int    `json:"games"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "debug_save"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("debug save denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("debug save denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("debug save denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.saver == nil {
			reqLogger.Warn("debug save denied: no store configured")
			http.Error(w, "debug saves are unavailable", http.StatusServiceUnavailable)
			return
		}
		n, err := h.saver.SaveDebug()
		if err != nil {
			reqLogger.Error("debug save failed", logging.Error(err))
			http.Error(w, "debug save failed", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("debug save written", logging.Int("games", n))
		writeJSON(w, http.StatusOK, response{Status: "saved", Games: n})
	}
}

func (h *HandlerSet) uptime() float64 {
	return h.now().Sub(h.started).Seconds()
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
