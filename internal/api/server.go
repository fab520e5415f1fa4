// Package api provides the HTTP REST API and WebSocket server for autopair.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/autopair-core/internal/device"
	"github.com/nerrad567/autopair-core/internal/display"
	"github.com/nerrad567/autopair-core/internal/history"
	"github.com/nerrad567/autopair-core/internal/infrastructure/config"
	"github.com/nerrad567/autopair-core/internal/infrastructure/logging"
	"github.com/nerrad567/autopair-core/internal/pairing"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Workflows runs pairing workflows on request. Implemented by
// pairing.Orchestrator.
type Workflows interface {
	RunWorkflow(ctx context.Context, id string, wf pairing.Workflow) (pairing.Outcome, error)
	PairAllSaved(ctx context.Context) []pairing.Outcome
	UnpairAllSaved(ctx context.Context) []pairing.Outcome
}

// DisplayState reports the last known display topology. Implemented by
// display.Watcher.
type DisplayState interface {
	State() (external, known bool)
}

// DisplaySetter accepts display topology reported over the API.
// Implemented by display.ManualSource.
type DisplaySetter interface {
	Set(external bool)
}

// HistoryLister queries recorded pairing results.
type HistoryLister interface {
	List(ctx context.Context, filter history.Filter) (*history.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *device.Registry

	// Workflows is optional; without it workflow routes answer 503.
	Workflows Workflows

	Display DisplayState

	// DisplaySetter is set only when the display source is "api".
	DisplaySetter DisplaySetter

	// History is optional; without it /history answers 503.
	History HistoryLister

	Version string
}

// Server is the HTTP API server for autopair.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	registry   *device.Registry
	workflows  Workflows
	display    DisplayState
	displaySet DisplaySetter
	history    HistoryLister
	version    string
	started    time.Time

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	cancel  context.CancelFunc // cancels hub, ticket cleanup and event relay

	// bgCtx bounds workflows started by requests. It outlives the request
	// and is cancelled by Close.
	bgCtx    context.Context //nolint:containedctx // Lifetime of background workflows
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        deps.Config,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		registry:   deps.Registry,
		workflows:  deps.Workflows,
		display:    deps.Display,
		displaySet: deps.DisplaySetter,
		history:    deps.History,
		version:    deps.Version,
		started:    time.Now(),
		hub:        NewHub(deps.WS, deps.Logger),
		tickets:    newTicketStore(),
		bgCtx:      bgCtx,
		bgCancel:   bgCancel,
	}
	s.hub.snapshot = s.snapshotState
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays registry events to it, and launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	events, unsubscribe := s.registry.Subscribe(wsSendBufferSize)
	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)
	go func() {
		defer unsubscribe()
		s.relayRegistryEvents(srvCtx, events)
	}()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Background workflows are cancelled and waited for, then in-flight
// requests get up to 10 seconds to complete.
func (s *Server) Close() error {
	s.bgCancel()
	s.bgWG.Wait()

	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// NotifyDisplayChange broadcasts a display topology change to WebSocket
// clients subscribed to "display.changed".
func (s *Server) NotifyDisplayChange(ev display.Event) {
	s.hub.Broadcast(ChannelDisplayChanged, map[string]any{
		"external": ev.External,
		"at":       ev.At.UTC().Format(time.RFC3339),
	})
}

// relayRegistryEvents forwards registry events to the WebSocket hub until
// ctx is done or events is closed.
func (s *Server) relayRegistryEvents(ctx context.Context, events <-chan device.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(deviceChannel(ev.Type), ev)
		}
	}
}

// runBackground runs fn on the server's background context.
func (s *Server) runBackground(fn func(ctx context.Context)) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		fn(s.bgCtx)
	}()
}
