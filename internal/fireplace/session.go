package fireplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// runSession keeps a session open until ctx is cancelled, reconnecting
// with exponential backoff after every failure or remote close.
func (c *Coordinator) runSession(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := c.serveOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		attempt := int(c.attempts.Load())
		delay := Backoff(attempt, c.cfg.BackoffBase, c.cfg.BackoffMax)
		c.attempts.Add(1)
		c.setLastError(err)
		c.store.SetConnected(false)

		c.logger.Warn("fireplace connection lost",
			"address", c.address(),
			"attempt", attempt+1,
			"retry_in", delay.String(),
			"error", err,
		)

		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

// serveOnce dials the fireplace and reads until the session ends. The
// returned error describes why it ended.
func (c *Coordinator) serveOnce(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.link.attach(conn)
	c.attempts.Store(0)
	c.setLastError(nil)
	c.store.SetConnected(true)
	c.connects.Add(1)
	c.logger.Info("connected to fireplace", "address", c.address())

	settle := time.AfterFunc(c.cfg.SettleDelay, func() {
		if ctx.Err() == nil {
			c.logger.Debug("running post-connect refresh")
			c.Refresh()
		}
	})

	// Closing the socket is the only way to unblock a pending read.
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })

	defer func() {
		stopClose()
		settle.Stop()
		c.marker.Clear()
		c.link.detach()
		conn.Close()
	}()

	return c.readLoop(ctx, conn)
}

func (c *Coordinator) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", c.address())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, c.address(), err)
	}
	return conn, nil
}

// readLoop decodes lines until the peer closes, a read fails, or ctx is
// cancelled. Deadline expiry is a liveness wake-up, not an error.
func (c *Coordinator) readLoop(ctx context.Context, conn net.Conn) error {
	lr := newLineReader(conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		raw, err := lr.ReadLine()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return ErrConnectionClosed
			}
			return fmt.Errorf("read: %w", err)
		}

		c.handleLine(ClassifyLine(raw))
	}
}

// handleLine routes one classified line.
func (c *Coordinator) handleLine(line Line) {
	c.linesRx.Add(1)

	switch line.Kind {
	case LineIgnored:
		return

	case LineError:
		c.logger.Warn("fireplace returned ERROR", "last_command", c.lastCommandOrUnknown())

	case LineMalformedPush:
		c.logger.Debug("malformed push message", "line", line.Raw)

	case LinePush:
		c.logger.Debug("received push update", "property", string(line.Property), "value", line.Value)
		c.apply(line.Property, line.Value)

	case LineReply:
		prop, ok := c.marker.Take()
		if !ok {
			c.logger.Debug("ignoring unsolicited message", "line", line.Raw)
			return
		}
		c.logger.Debug("received reply", "property", string(prop), "value", line.Value)
		c.apply(prop, line.Value)
	}
}

func (c *Coordinator) apply(prop Property, value string) {
	applied, err := c.store.Apply(prop, value)
	if err != nil {
		c.parseErrors.Add(1)
		c.logger.Debug("parse error, keeping previous state",
			"property", string(prop),
			"value", value,
			"error", err,
		)
		return
	}
	if !applied {
		c.logger.Debug("no state change for property", "property", string(prop), "value", value)
	}
}

func (c *Coordinator) lastCommandOrUnknown() string {
	if cmd := c.dispatcher.LastSent(); cmd != "" {
		return cmd
	}
	return "unknown"
}

func (c *Coordinator) address() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}
