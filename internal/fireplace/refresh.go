package fireplace

import (
	"context"
	"time"
)

// runScheduler polls the full property list every scan interval while
// connected. SetScanInterval restarts the current wait.
func (c *Coordinator) runScheduler(ctx context.Context) error {
	for {
		interval := c.ScanInterval()
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-c.intervalChanged:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if !c.store.Snapshot().Connected {
			continue
		}
		c.logger.Debug("starting periodic refresh", "interval", interval.String())
		c.Refresh()
	}
}

// Refresh enqueues a GET for every property in poll order.
func (c *Coordinator) Refresh() {
	for _, p := range refreshOrder {
		c.dispatcher.Enqueue(GetCommand(p))
	}
}

// RefreshProperties enqueues GETs for the given properties. They are
// emitted in poll order regardless of argument order; unknown names are
// skipped.
func (c *Coordinator) RefreshProperties(props ...Property) {
	want := make(map[Property]bool, len(props))
	for _, p := range props {
		if !p.Valid() {
			c.logger.Warn("skipping refresh of unknown property", "property", string(p))
			continue
		}
		want[p] = true
	}

	for _, p := range refreshOrder {
		if want[p] {
			c.dispatcher.Enqueue(GetCommand(p))
		}
	}
}

// ScanInterval returns the periodic refresh interval.
func (c *Coordinator) ScanInterval() time.Duration {
	return time.Duration(c.scanInterval.Load())
}

// SetScanInterval changes the periodic refresh interval. The new value
// takes effect immediately.
func (c *Coordinator) SetScanInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.scanInterval.Store(int64(d))
	c.logger.Info("scan interval updated", "interval", d.String())

	select {
	case c.intervalChanged <- struct{}{}:
	default:
	}
}
