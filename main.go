package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"whiteshoe/server/internal/config"
	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/gameplay"
	healthsvc "whiteshoe/server/internal/grpc"
	httpapi "whiteshoe/server/internal/http"
	"whiteshoe/server/internal/indexdb"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/networking"
	"whiteshoe/server/internal/replay"
	"whiteshoe/server/internal/server"
	"whiteshoe/server/internal/simulation"
	"whiteshoe/server/internal/transport"
)

const (
	exitOK     = 0
	exitBind   = 1
	exitConfig = 2
)

var eventRetention = replay.RetentionPolicy{MaxRuns: 50, MaxAge: 14 * 24 * time.Hour}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run wires every component from the command line and blocks until ctx is
// cancelled. The returned value is the process exit code.
func run(ctx context.Context, args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, config.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "whiteshoe: %v\n", err)
		return exitConfig
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "whiteshoe: logging: %v\n", err)
		return exitConfig
	}
	defer logger.Sync()

	//1.- Gameplay constants, then the optional persistence sinks.
	var serverOpts []server.Option
	if cfg.TuningPath != "" {
		tuning, err := gameplay.Load(cfg.TuningPath)
		if err != nil {
			logger.Error("tuning file rejected", logging.Error(err), logging.String("path", cfg.TuningPath))
			return exitConfig
		}
		serverOpts = append(serverOpts, server.WithTuning(tuning))
	}

	seed := uint64(time.Now().UnixNano())
	var observers game.Observers
	var writer *replay.Writer
	var cleaner *replay.Cleaner
	if cfg.EventsDir != "" {
		writer, _, err = replay.NewWriter(cfg.EventsDir, uuid.NewString(), nil, logger)
		if err != nil {
			logger.Error("event log unavailable", logging.Error(err), logging.String("directory", cfg.EventsDir))
			return exitConfig
		}
		writer.SetHeader(strconv.FormatUint(seed, 10), cfg.Vision, cfg.Generator, cfg.Mode, cfg.Options)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn("event log close failed", logging.Error(err))
			}
		}()
		observers = append(observers, writer)
		serverOpts = append(serverOpts, server.WithRecorder(writer))

		cleaner = replay.NewCleaner(cfg.EventsDir, eventRetention, logger)
		cleaner.Protect(writer.Directory())
		go cleaner.Run(ctx, time.Hour)
		logger.Info("event log recording", logging.String("directory", writer.Directory()))
	}
	var index *indexdb.SQLiteIndex
	if cfg.IndexPath != "" {
		index, err = indexdb.OpenSQLite(cfg.IndexPath, logger)
		if err != nil {
			logger.Error("score index unavailable", logging.Error(err), logging.String("path", cfg.IndexPath))
			return exitConfig
		}
		defer index.Close()
		observers = append(observers, index)
	}
	if len(observers) > 0 {
		serverOpts = append(serverOpts, server.WithObserver(observers))
	}

	//2.- Transports share one hub feeding the session loop.
	metrics := networking.NewTrafficMetrics()
	hub := transport.NewHub(
		transport.WithLogger(logger),
		transport.WithMetrics(metrics),
		transport.WithInboundBudget(networking.NewInboundBudget(0, nil)),
	)
	defer hub.Close()
	listeners := []struct {
		scheme string
		addr   string
		listen func(string) (net.Addr, error)
	}{
		{"udp", cfg.UDPAddr, hub.ListenUDP},
		{"tcp", cfg.TCPAddr, hub.ListenTCP},
		{"ws", cfg.WSAddr, hub.ListenWebSocket},
	}
	for _, l := range listeners {
		if l.addr == "" {
			continue
		}
		bound, err := l.listen(l.addr)
		if err != nil {
			logger.Error("bind failed", logging.Error(err), logging.String("transport", l.scheme), logging.String("address", l.addr))
			return exitBind
		}
		logger.Info("transport listening", logging.String("url", endpointURL(l.scheme, bound.String())))
	}

	monitor := simulation.NewTickMonitor()
	monitor.SetBudget(cfg.PollInterval)
	serverOpts = append(serverOpts,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithMonitor(monitor),
		server.WithSeed(seed),
		server.WithDebugStore(replay.NewSaveStore(cfg.SavePath, nil)),
	)
	srv, err := server.New(cfg, hub, serverOpts...)
	if err != nil {
		logger.Error("default game rejected", logging.Error(err))
		return exitConfig
	}

	//3.- Admin surfaces observe the server from their own goroutines.
	if cfg.AdminAddr != "" {
		opts := httpapi.Options{
			Logger:      logger,
			State:       srv,
			Traffic:     metrics,
			Saver:       srv,
			AdminToken:  cfg.AdminToken,
			RateLimiter: httpapi.NewSlidingWindowLimiter(time.Minute, 6, nil),
		}
		if writer != nil {
			opts.EventCounts = writer.Counts
			opts.Storage = cleaner.Stats
		}
		if index != nil {
			opts.Leaderboard = index
		}
		stopAdmin, err := serveAdmin(cfg.AdminAddr, httpapi.NewHandlerSet(opts), logger)
		if err != nil {
			logger.Error("bind failed", logging.Error(err), logging.String("transport", "http"), logging.String("address", cfg.AdminAddr))
			return exitBind
		}
		defer stopAdmin()
	}
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Error("bind failed", logging.Error(err), logging.String("transport", "grpc"), logging.String("address", cfg.GRPCAddr))
			return exitBind
		}
		health := healthsvc.NewService(srv, healthsvc.WithLogger(logger))
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := health.Serve(ctx, lis); err != nil {
				logger.Error("grpc health stopped", logging.Error(err))
			}
		}()
		defer func() { <-done }()
	}

	srv.Run(ctx)
	logger.Info("server stopped")
	return exitOK
}

func serveAdmin(addr string, handlers *httpapi.HandlerSet, logger *logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	handlers.Register(mux)
	admin := &http.Server{
		Handler:           logging.HTTPTraceMiddleware(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin listener stopped", logging.Error(err))
		}
	}()
	logger.Info("admin listening", logging.String("url", endpointURL("http", ln.Addr().String())))
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
	}, nil
}
