package fireplace

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default protocol timings.
const (
	DefaultPort               = 10001
	DefaultScanInterval       = 300 * time.Second
	DefaultConnectTimeout     = 10 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultCommandDelay       = 1 * time.Second
	DefaultSettleDelay        = 10 * time.Second
	DefaultCorrelationTimeout = 2 * time.Second
	DefaultCorrelationPoll    = 100 * time.Millisecond
	DefaultBackoffBase        = 10 * time.Second
	DefaultBackoffMax         = 3600 * time.Second
	DefaultQueueSize          = 100
)

// Device identity reported to registries.
const (
	DeviceName         = "DaVinci Fireplace"
	DeviceManufacturer = "Travis Industries"
	DeviceModel        = "DaVinci Custom Fireplace"
)

// Config holds coordinator settings. Zero durations and sizes take the
// defaults above.
type Config struct {
	Host     string
	Port     int
	DeviceID string

	ScanInterval       time.Duration
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	CommandDelay       time.Duration
	SettleDelay        time.Duration
	CorrelationTimeout time.Duration
	CorrelationPoll    time.Duration
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	QueueSize          int
}

func (cfg *Config) applyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "fireplace"
	}
	setDuration(&cfg.ScanInterval, DefaultScanInterval)
	setDuration(&cfg.ConnectTimeout, DefaultConnectTimeout)
	setDuration(&cfg.ReadTimeout, DefaultReadTimeout)
	setDuration(&cfg.CommandDelay, DefaultCommandDelay)
	setDuration(&cfg.SettleDelay, DefaultSettleDelay)
	setDuration(&cfg.CorrelationTimeout, DefaultCorrelationTimeout)
	setDuration(&cfg.CorrelationPoll, DefaultCorrelationPoll)
	setDuration(&cfg.BackoffBase, DefaultBackoffBase)
	setDuration(&cfg.BackoffMax, DefaultBackoffMax)
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// DeviceInfo is the fixed identity of the fireplace.
type DeviceInfo struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// Diagnostics holds connection counters.
type Diagnostics struct {
	Address           string        `json:"address"`
	Connected         bool          `json:"connected"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	LastError         string        `json:"last_error,omitempty"`
	QueueSize         int           `json:"queue_size"`
	QueueCapacity     int           `json:"queue_capacity"`
	ScanInterval      time.Duration `json:"scan_interval"`
	LastCommand       string        `json:"last_command,omitempty"`
	PendingQuery      string        `json:"pending_query,omitempty"`
	Connects          uint64        `json:"connects"`
	CommandsSent      uint64        `json:"commands_sent"`
	CommandsDropped   uint64        `json:"commands_dropped"`
	CommandsFailed    uint64        `json:"commands_failed"`
	LinesReceived     uint64        `json:"lines_received"`
	ParseErrors       uint64        `json:"parse_errors"`
	Observers         int           `json:"observers"`
}

// Coordinator owns the fireplace session, the command queue and the state
// store.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Observers are invoked from the session goroutine; they must not block.
type Coordinator struct {
	cfg    Config
	logger Logger

	store      *Store
	marker     *queryMarker
	link       *link
	dispatcher *dispatcher

	scanInterval    atomic.Int64
	intervalChanged chan struct{}

	attempts    atomic.Int32
	connects    atomic.Uint64
	linesRx     atomic.Uint64
	parseErrors atomic.Uint64

	errMu     sync.RWMutex
	lastError string

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a coordinator. It does not connect until Start.
func New(cfg Config, logger Logger) (*Coordinator, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	cfg.applyDefaults()

	if logger == nil {
		logger = nopLogger{}
	}

	c := &Coordinator{
		cfg:             cfg,
		logger:          logger,
		store:           NewStore(logger),
		marker:          &queryMarker{},
		link:            &link{},
		intervalChanged: make(chan struct{}, 1),
	}
	c.dispatcher = newDispatcher(cfg, c.marker, c.link, logger)
	c.scanInterval.Store(int64(cfg.ScanInterval))

	logger.Debug("coordinator initialised",
		"address", c.address(),
		"scan_interval", cfg.ScanInterval.String(),
	)
	return c, nil
}

// Start launches the session, dispatcher and scheduler goroutines.
func (c *Coordinator) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.runSession(gctx) })
	g.Go(func() error { return c.dispatcher.run(gctx) })
	g.Go(func() error { return c.runScheduler(gctx) })

	c.cancel = cancel
	c.group = g

	c.logger.Info("fireplace coordinator started", "address", c.address())
	return nil
}

// Stop cancels every loop, closes the socket, waits for the goroutines to
// exit and drops all observers. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel == nil {
		return
	}

	c.cancel()
	c.link.closeConn()
	if err := c.group.Wait(); err != nil {
		c.logger.Error("fireplace loop exited with error", "error", err)
	}
	c.cancel = nil
	c.group = nil

	c.store.clearObservers()
	c.store.markDisconnected()

	c.logger.Info("fireplace coordinator stopped")
}

// SendCommand queues a raw protocol command (without terminator). It
// returns false when the queue is full and the command was dropped.
func (c *Coordinator) SendCommand(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return false
	}
	return c.dispatcher.Enqueue(cmd)
}

// Subscribe registers fn to be called after every state change.
func (c *Coordinator) Subscribe(fn func()) ObserverID {
	return c.store.Subscribe(fn)
}

// Unsubscribe removes an observer. Unknown IDs are ignored.
func (c *Coordinator) Unsubscribe(id ObserverID) {
	c.store.Unsubscribe(id)
}

// State returns the current state snapshot.
func (c *Coordinator) State() State {
	return c.store.Snapshot()
}

// QueueSize returns the number of queued commands.
func (c *Coordinator) QueueSize() int {
	return c.dispatcher.Len()
}

// ReconnectAttempts returns consecutive failed connection attempts.
func (c *Coordinator) ReconnectAttempts() int {
	return int(c.attempts.Load())
}

// LastError returns the error that ended the last session, if any.
func (c *Coordinator) LastError() string {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.lastError
}

func (c *Coordinator) setLastError(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if err == nil {
		c.lastError = ""
		return
	}
	c.lastError = err.Error()
}

// Diagnostics returns connection counters.
func (c *Coordinator) Diagnostics() Diagnostics {
	pending, _ := c.marker.Pending()
	return Diagnostics{
		Address:           c.address(),
		Connected:         c.store.Snapshot().Connected,
		ReconnectAttempts: c.ReconnectAttempts(),
		LastError:         c.LastError(),
		QueueSize:         c.dispatcher.Len(),
		QueueCapacity:     c.dispatcher.Cap(),
		ScanInterval:      c.ScanInterval(),
		LastCommand:       c.dispatcher.LastSent(),
		PendingQuery:      string(pending),
		Connects:          c.connects.Load(),
		CommandsSent:      c.dispatcher.sent.Load(),
		CommandsDropped:   c.dispatcher.dropped.Load(),
		CommandsFailed:    c.dispatcher.failed.Load(),
		LinesReceived:     c.linesRx.Load(),
		ParseErrors:       c.parseErrors.Load(),
		Observers:         c.store.ObserverCount(),
	}
}

// DeviceInfo returns the fixed device identity.
func (c *Coordinator) DeviceInfo() DeviceInfo {
	return DeviceInfo{
		Identifier:   c.cfg.DeviceID,
		Name:         DeviceName,
		Manufacturer: DeviceManufacturer,
		Model:        DeviceModel,
	}
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	cfg := c.cfg
	cfg.ScanInterval = c.ScanInterval()
	return cfg
}
