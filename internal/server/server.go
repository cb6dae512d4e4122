package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/termchat/internal/broker"
	"github.com/Tyrowin/termchat/internal/events"
)

// Server bundles everything a running broker needs: the shared state, the
// event bus, the connection hub, the TCP listener and the optional HTTP
// server.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	bus        *events.WatermillBus
	broker     *broker.State
	hub        *Hub
	stats      *Stats
	listener   *Listener
	handlers   *Handlers
	httpServer *http.Server
}

// New validates cfg, binds the TCP listener and prepares the HTTP server.
// Nothing is served until Run is called.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bus := events.NewWatermillBus(logger)
	state := broker.New(broker.Options{
		MaxUsers: cfg.MaxUsers,
		Events:   bus,
		Logger:   logger,
	})
	hub := NewHub(logger)
	stats := NewStats(logger)

	listener, err := Listen(cfg, hub, state, logger)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		broker:   state,
		hub:      hub,
		stats:    stats,
		listener: listener,
		handlers: NewHandlers(cfg, state, hub, stats, logger),
	}
	if cfg.HTTPAddr != "" {
		s.httpServer = CreateServer(cfg.HTTPAddr, SetupRoutes(s.handlers))
	}
	return s, nil
}

// Addr is the bound TCP address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Broker exposes the shared state.
func (s *Server) Broker() *broker.State {
	return s.broker
}

// Hub exposes the connection tracker.
func (s *Server) Hub() *Hub {
	return s.hub
}

// HTTPHandler returns the HTTP routes, whether or not an HTTP address is
// configured.
func (s *Server) HTTPHandler() http.Handler {
	return SetupRoutes(s.handlers)
}

// Run serves until ctx is cancelled or a listener fails, then shuts
// everything down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.stats.Subscribe(ctx, s.bus); err != nil {
		return fmt.Errorf("subscribe stats: %w", err)
	}

	go s.hub.Run()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.listener.Serve(gctx)
	})
	if s.httpServer != nil {
		g.Go(func() error {
			return StartServer(s.httpServer, s.logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	var errs []error

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("close listener: %w", err))
	}
	if s.httpServer != nil {
		if err := ShutdownServer(s.httpServer, s.cfg.ShutdownTimeout, s.logger); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if err := s.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event bus: %w", err))
	}

	return errors.Join(errs...)
}
