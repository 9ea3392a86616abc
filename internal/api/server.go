package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/nerrad567/davinci-bridge/internal/auth"
	"github.com/nerrad567/davinci-bridge/internal/device"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/config"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// WebSocket keepalive defaults in seconds.
const (
	defaultPingInterval = 30
	defaultPongTimeout  = 10
)

// Fireplace is the coordinator surface the API drives.
type Fireplace interface {
	device.Commander
	Subscribe(fn func()) fireplace.ObserverID
	Unsubscribe(id fireplace.ObserverID)
	Diagnostics() fireplace.Diagnostics
	DeviceInfo() fireplace.DeviceInfo
	ScanInterval() time.Duration
	SetScanInterval(d time.Duration)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Fireplace Fireplace

	// History and CommandLog are optional; their endpoints answer 503
	// without them.
	History    device.StateHistoryRepository
	CommandLog device.CommandLogRepository

	// MQTT and DB are optional and only feed /api/v1/system.
	MQTT ConnectionChecker
	DB   DBStatter

	// Metrics, when set, is mounted at MetricsPath.
	Metrics     http.Handler
	MetricsPath string

	Version string
}

// Server is the HTTP API server for the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	fp         Fireplace
	caps       *device.Capabilities
	keys       *auth.KeyRing
	history    device.StateHistoryRepository
	cmdLog     device.CommandLogRepository
	metrics    http.Handler
	metricPath string
	mqtt       ConnectionChecker
	db         DBStatter
	version    string
	startTime  time.Time

	hub     *Hub
	tickets *ticketStore

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Fireplace == nil {
		return nil, fmt.Errorf("fireplace is required")
	}

	ws := deps.WS
	if ws.PingInterval <= 0 {
		ws.PingInterval = defaultPingInterval
	}
	if ws.PongTimeout <= 0 {
		ws.PongTimeout = defaultPongTimeout
	}

	metricPath := deps.MetricsPath
	if metricPath == "" {
		metricPath = "/metrics"
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      ws,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		fp:         deps.Fireplace,
		caps:       device.NewCapabilities(deps.Fireplace),
		keys:       auth.NewKeyRing(deps.Security),
		history:    deps.History,
		cmdLog:     deps.CommandLog,
		metrics:    deps.Metrics,
		metricPath: metricPath,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        NewHub(ws, deps.Logger),
		tickets:    newTicketStore(),
	}, nil
}

// Start binds the listener and serves in the background.
//
// The listener is capped at Config.MaxConnections concurrent connections
// when that is positive. Bind errors are returned directly.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2) //nolint:mnd // hub and state relay
	go func() {
		defer s.wg.Done()
		s.hub.Run(srvCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.relayState(srvCtx)
	}()
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", ln.Addr().String(), "auth", s.authEnabled())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

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

func (s *Server) authEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}
