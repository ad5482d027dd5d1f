package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/mapgen"
	"whiteshoe/server/internal/networking"
	"whiteshoe/server/internal/vision"
)

const (
	// DefaultUDPAddr is where datagram clients reach the server.
	DefaultUDPAddr = ":25008"
	// DefaultTCPAddr shares the UDP port number for stream clients.
	DefaultTCPAddr = ":25008"
	// DefaultWSAddr serves the WebSocket transport.
	DefaultWSAddr = ":25009"
	// DefaultAdminAddr serves health, metrics and debug endpoints.
	DefaultAdminAddr = "127.0.0.1:25010"

	// DefaultTimeout disconnects sessions that stay silent this long.
	DefaultTimeout = 30 * time.Second
	// DefaultKeepAlive is how long a session may go without hearing from us.
	DefaultKeepAlive = 5 * time.Second
	// DefaultPollInterval bounds how long one loop iteration waits for input.
	DefaultPollInterval = 5 * time.Millisecond

	// DefaultVision, DefaultGenerator and DefaultMode describe the default game.
	DefaultVision    = "cone"
	DefaultGenerator = "purerandom"
	DefaultMode      = game.ModeBase

	// DefaultLogLevel controls verbosity for server logs.
	DefaultLogLevel = "info"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// ErrHelp is returned when the command line asked for usage.
var ErrHelp = flag.ErrHelp

// Config captures all runtime tunables for the server.
type Config struct {
	UDPAddr    string
	TCPAddr    string
	WSAddr     string
	AdminAddr  string
	AdminToken string
	GRPCAddr   string

	Vision     string
	Generator  string
	Mode       string
	MaxPlayers int
	Options    Options

	Timeout      time.Duration
	KeepAlive    time.Duration
	PollInterval time.Duration
	PacketLimit  int

	TuningPath string
	EventsDir  string
	IndexPath  string
	SavePath   string

	Debug   bool
	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Quiet      bool
}

// Options collects free-form game options from repeated -o flags. A bare key
// maps to the empty string.
type Options map[string]string

// String renders the options as a stable comma separated list.
func (o Options) String() string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := o[k]; v != "" {
			parts = append(parts, k+"="+v)
		} else {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, ",")
}

// Set parses one key[=value] occurrence.
func (o Options) Set(raw string) error {
	key, value, _ := strings.Cut(strings.TrimSpace(raw), "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("option key must not be empty")
	}
	o[key] = strings.TrimSpace(value)
	return nil
}

// Load reads the configuration from WHITESHOE_* environment variables and
// then the command line, which wins. Problems are reported together.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		UDPAddr:      getString("WHITESHOE_UDP_ADDR", DefaultUDPAddr),
		TCPAddr:      getString("WHITESHOE_TCP_ADDR", DefaultTCPAddr),
		WSAddr:       getString("WHITESHOE_WS_ADDR", DefaultWSAddr),
		AdminAddr:    getString("WHITESHOE_ADMIN_ADDR", DefaultAdminAddr),
		AdminToken:   strings.TrimSpace(os.Getenv("WHITESHOE_ADMIN_TOKEN")),
		GRPCAddr:     strings.TrimSpace(os.Getenv("WHITESHOE_GRPC_ADDR")),
		Vision:       getString("WHITESHOE_VISION", DefaultVision),
		Generator:    getString("WHITESHOE_GENERATOR", DefaultGenerator),
		Mode:         getString("WHITESHOE_MODE", DefaultMode),
		MaxPlayers:   game.DefaultMaxPlayers,
		Options:      make(Options),
		Timeout:      DefaultTimeout,
		KeepAlive:    DefaultKeepAlive,
		PollInterval: DefaultPollInterval,
		PacketLimit:  networking.DefaultPacketLimit,
		TuningPath:   strings.TrimSpace(os.Getenv("WHITESHOE_TUNING")),
		EventsDir:    strings.TrimSpace(os.Getenv("WHITESHOE_EVENTS_DIR")),
		IndexPath:    strings.TrimSpace(os.Getenv("WHITESHOE_INDEX")),
		SavePath:     getString("WHITESHOE_SAVE", "whiteshoe.save"),
		Logging: LoggingConfig{
			Level:      getString("WHITESHOE_LOG_LEVEL", DefaultLogLevel),
			Path:       strings.TrimSpace(os.Getenv("WHITESHOE_LOG_PATH")),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	//1.- Environment overrides for the typed settings.
	envDuration(&problems, "WHITESHOE_TIMEOUT", &cfg.Timeout)
	envDuration(&problems, "WHITESHOE_KEEPALIVE", &cfg.KeepAlive)
	envDuration(&problems, "WHITESHOE_POLL", &cfg.PollInterval)
	envInt(&problems, "WHITESHOE_MAX_PLAYERS", &cfg.MaxPlayers, 1)
	envInt(&problems, "WHITESHOE_PACKET_LIMIT", &cfg.PacketLimit, 1)
	envInt(&problems, "WHITESHOE_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB, 1)
	envInt(&problems, "WHITESHOE_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups, 0)
	envInt(&problems, "WHITESHOE_LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays, 0)
	envBool(&problems, "WHITESHOE_LOG_COMPRESS", &cfg.Logging.Compress)
	envBool(&problems, "WHITESHOE_DEBUG", &cfg.Debug)
	envBool(&problems, "WHITESHOE_QUIET", &cfg.Logging.Quiet)
	for _, item := range parseList(os.Getenv("WHITESHOE_OPTIONS")) {
		if err := cfg.Options.Set(item); err != nil {
			problems = append(problems, fmt.Sprintf("WHITESHOE_OPTIONS: %v", err))
		}
	}

	//2.- Command line flags win over the environment.
	fs := flag.NewFlagSet("whiteshoe", flag.ContinueOnError)
	fs.StringVar(&cfg.UDPAddr, "udp", cfg.UDPAddr, "UDP listen address, empty disables")
	fs.StringVar(&cfg.TCPAddr, "tcp", cfg.TCPAddr, "TCP listen address, empty disables")
	fs.StringVar(&cfg.WSAddr, "ws", cfg.WSAddr, "WebSocket listen address, empty disables")
	fs.StringVar(&cfg.AdminAddr, "admin", cfg.AdminAddr, "admin HTTP listen address, empty disables")
	fs.StringVar(&cfg.AdminToken, "admin-token", cfg.AdminToken, "bearer token guarding admin write endpoints")
	fs.StringVar(&cfg.GRPCAddr, "grpc", cfg.GRPCAddr, "gRPC health listen address, empty disables")
	fs.StringVar(&cfg.Vision, "vision", cfg.Vision, "vision function of the default game")
	fs.StringVar(&cfg.Generator, "generator", cfg.Generator, "map generator of the default game")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "mode of the default game")
	fs.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "player cap of the default game")
	fs.Var(cfg.Options, "o", "game option key[=value], repeatable")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "disconnect sessions silent for this long")
	fs.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "send a keepalive after this much outbound silence")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "longest wait for input per loop iteration")
	fs.IntVar(&cfg.PacketLimit, "packet-limit", cfg.PacketLimit, "encoded size limit of one vision update")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "YAML file overriding gameplay constants")
	fs.StringVar(&cfg.EventsDir, "events", cfg.EventsDir, "directory for the event and frame logs")
	fs.StringVar(&cfg.IndexPath, "index", cfg.IndexPath, "sqlite file indexing deaths and scores")
	fs.StringVar(&cfg.SavePath, "save", cfg.SavePath, "debug save file")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug, info, warn, error or fatal")
	fs.StringVar(&cfg.Logging.Path, "log-path", cfg.Logging.Path, "rotating log file, empty logs to stdout only")
	fs.BoolVar(&cfg.Logging.Quiet, "q", cfg.Logging.Quiet, "do not mirror logs to stdout")
	fs.BoolVar(&cfg.Debug, "d", cfg.Debug, "debug mode: verbose logs, fail loudly on bad input")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.Logging.Level = "debug"
	}

	//3.- Validate the combined result.
	if _, err := vision.NewRegistry().Lookup(cfg.Vision); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := mapgen.NewRegistry().Lookup(cfg.Generator); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := game.LookupMode(cfg.Mode); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.MaxPlayers <= 0 {
		problems = append(problems, fmt.Sprintf("max players must be positive, got %d", cfg.MaxPlayers))
	}
	if cfg.Timeout <= cfg.KeepAlive {
		problems = append(problems, fmt.Sprintf("timeout %v must exceed keepalive %v", cfg.Timeout, cfg.KeepAlive))
	}
	if cfg.UDPAddr == "" && cfg.TCPAddr == "" && cfg.WSAddr == "" {
		problems = append(problems, "at least one of -udp, -tcp or -ws must be enabled")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

func envDuration(problems *[]string, key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = duration
}

func envInt(problems *[]string, key string, dst *int, minimum int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < minimum {
		*problems = append(*problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, minimum, raw))
		return
	}
	*dst = value
}

func envBool(problems *[]string, key string, dst *bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return
	}
	*dst = value
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
