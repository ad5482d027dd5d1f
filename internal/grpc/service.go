// Package grpc serves the standard gRPC health protocol for the server and
// each running game, plus reflection for grpcurl style tooling.
package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"whiteshoe/server/internal/logging"
)

const defaultSyncInterval = time.Second

// Option customises the health service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithSyncInterval overrides how often game status is mirrored.
func WithSyncInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// Service mirrors server and game state into a health server.
type Service struct {
	source   GameSource
	health   *health.Server
	log      *logging.Logger
	interval time.Duration

	mu    sync.Mutex
	known map[int64]struct{}
}

// NewService wires the health server to the game source.
func NewService(source GameSource, opts ...Option) *Service {
	s := &Service{
		source:   source,
		health:   health.NewServer(),
		log:      logging.L(),
		interval: defaultSyncInterval,
		known:    make(map[int64]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.health.SetServingStatus(ServerService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Health exposes the underlying health server.
func (s *Service) Health() *health.Server { return s.health }

// Sync copies the current state into the health server. Games that ended
// since the last sync are reported as NOT_SERVING.
func (s *Service) Sync() {
	if s == nil || s.source == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.source.Ready() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServerService, status)

	//1.- Mark every live game, then retire the ones that disappeared.
	live := make(map[int64]struct{})
	for _, info := range s.source.Games() {
		live[info.GameID] = struct{}{}
		s.health.SetServingStatus(GameService(info.GameID), status)
		if _, ok := s.known[info.GameID]; !ok {
			s.log.Debug("health tracking game", logging.Int64("game_id", info.GameID))
		}
	}
	for id := range s.known {
		if _, ok := live[id]; !ok {
			s.health.SetServingStatus(GameService(id), healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
	s.known = live
}

// Serve answers health checks on lis until ctx is done.
func (s *Service) Serve(ctx context.Context, lis net.Listener) error {
	s.Sync()
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, s.health)
	reflection.Register(server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()
	s.log.Info("grpc health listening", logging.String("address", lis.Addr().String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			//1.- Tell watchers we are going away before draining.
			s.health.Shutdown()
			server.GracefulStop()
			err := <-errCh
			if errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return err
		case <-ticker.C:
			s.Sync()
		case err := <-errCh:
			return err
		}
	}
}
