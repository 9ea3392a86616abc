package fireplace

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// defaultWriteTimeout bounds a single command write.
const defaultWriteTimeout = 5 * time.Second

// queryMarker records the property of the last transmitted GET.
type queryMarker struct {
	mu   sync.Mutex
	prop Property
	set  bool
}

func (m *queryMarker) Set(p Property) {
	m.mu.Lock()
	m.prop, m.set = p, true
	m.mu.Unlock()
}

// Take returns and clears the outstanding property.
func (m *queryMarker) Take() (Property, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prop, m.set
	m.prop, m.set = "", false
	return p, ok
}

func (m *queryMarker) Clear() {
	m.mu.Lock()
	m.prop, m.set = "", false
	m.mu.Unlock()
}

// Pending returns the outstanding property, if any.
func (m *queryMarker) Pending() (Property, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prop, m.set
}

// link holds the current session connection for the write path.
type link struct {
	mu   sync.RWMutex
	conn net.Conn
}

func (l *link) attach(conn net.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
}

func (l *link) detach() {
	l.mu.Lock()
	l.conn = nil
	l.mu.Unlock()
}

// closeConn closes the current connection, if any, to unblock its reader.
func (l *link) closeConn() {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn != nil {
		conn.Close()
	}
}

func (l *link) write(p []byte) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// dispatcher owns the outbound command queue. Commands leave strictly in
// arrival order, one per CommandDelay, with at most one GET in flight.
type dispatcher struct {
	queue  chan string
	marker *queryMarker
	link   *link
	logger Logger

	delay       time.Duration
	corrTimeout time.Duration
	corrPoll    time.Duration

	lastMu   sync.RWMutex
	lastSent string

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newDispatcher(cfg Config, marker *queryMarker, l *link, logger Logger) *dispatcher {
	if logger == nil {
		logger = nopLogger{}
	}
	return &dispatcher{
		queue:       make(chan string, cfg.QueueSize),
		marker:      marker,
		link:        l,
		logger:      logger,
		delay:       cfg.CommandDelay,
		corrTimeout: cfg.CorrelationTimeout,
		corrPoll:    cfg.CorrelationPoll,
	}
}

// Enqueue appends cmd to the queue. A full queue drops cmd and returns
// false; it never blocks.
func (d *dispatcher) Enqueue(cmd string) bool {
	select {
	case d.queue <- cmd:
		if n := len(d.queue); n > cap(d.queue)/2 {
			d.logger.Debug("command queue growing", "size", n, "capacity", cap(d.queue))
		}
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("command queue full, dropping command",
			"command", cmd,
			"capacity", cap(d.queue),
		)
		return false
	}
}

// Len returns the number of queued commands.
func (d *dispatcher) Len() int {
	return len(d.queue)
}

// Cap returns the queue capacity.
func (d *dispatcher) Cap() int {
	return cap(d.queue)
}

// LastSent returns the last transmitted command.
func (d *dispatcher) LastSent() string {
	d.lastMu.RLock()
	defer d.lastMu.RUnlock()
	return d.lastSent
}

// run drains the queue until ctx is cancelled.
func (d *dispatcher) run(ctx context.Context) error {
	for {
		var cmd string
		select {
		case <-ctx.Done():
			return nil
		case cmd = <-d.queue:
		}

		if !d.dispatch(ctx, cmd) {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		if !sleepCtx(ctx, d.delay) {
			return nil
		}
	}
}

// dispatch transmits one command. It reports whether the command was
// written to the socket.
func (d *dispatcher) dispatch(ctx context.Context, cmd string) bool {
	prop, isQuery := queryProperty(cmd)
	if isQuery {
		if err := d.awaitMarker(ctx); err != nil {
			return false
		}
	}

	d.lastMu.Lock()
	d.lastSent = cmd
	d.lastMu.Unlock()

	if isQuery {
		d.marker.Set(prop)
	}

	if err := d.link.write(FrameCommand(cmd)); err != nil {
		if isQuery {
			d.marker.Clear()
		}
		d.failed.Add(1)
		d.logger.Warn("cannot send command", "command", cmd, "error", err)
		return false
	}

	d.sent.Add(1)
	d.logger.Debug("sent command", "command", cmd)
	return true
}

// awaitMarker blocks until no GET is outstanding or the correlation
// ceiling passes. Only cancellation returns an error.
func (d *dispatcher) awaitMarker(ctx context.Context) error {
	deadline := time.Now().Add(d.corrTimeout)
	for {
		prop, pending := d.marker.Pending()
		if !pending {
			return nil
		}
		if !time.Now().Before(deadline) {
			d.logger.Debug("timeout waiting for reply, proceeding anyway", "property", string(prop))
			return nil
		}
		if !sleepCtx(ctx, d.corrPoll) {
			return ctx.Err()
		}
	}
}

// sleepCtx sleeps for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
