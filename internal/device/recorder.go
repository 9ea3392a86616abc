package device

import (
	"context"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/fireplace"
)

const (
	defaultPruneInterval = 24 * time.Hour
	recordTimeout        = 2 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// StateSource is the observable part of the coordinator.
type StateSource interface {
	State() fireplace.State
	Subscribe(fn func()) fireplace.ObserverID
	Unsubscribe(id fireplace.ObserverID)
}

// StateWriter receives flattened snapshots, e.g. the InfluxDB client.
type StateWriter interface {
	WriteDeviceState(deviceID string, fields map[string]any)
}

// RecorderOptions configures a StateRecorder. History and Writer are each
// optional.
type RecorderOptions struct {
	DeviceID string
	Source   StateSource
	History  StateHistoryRepository
	Writer   StateWriter

	// Retention prunes history older than this; zero keeps everything.
	Retention     time.Duration
	PruneInterval time.Duration

	Logger Logger
}

// StateRecorder persists every distinct fireplace snapshot.
//
// Observer callbacks only signal; writes happen on the Run goroutine so the
// fireplace session never waits on storage.
type StateRecorder struct {
	opts   RecorderOptions
	signal chan struct{}

	last    fireplace.State
	hasLast bool
}

// NewStateRecorder creates a recorder. Call Run to start it.
func NewStateRecorder(opts RecorderOptions) (*StateRecorder, error) {
	if opts.DeviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = defaultPruneInterval
	}
	return &StateRecorder{
		opts:   opts,
		signal: make(chan struct{}, 1),
	}, nil
}

// Run records snapshots until ctx is cancelled.
func (r *StateRecorder) Run(ctx context.Context) error {
	id := r.opts.Source.Subscribe(r.notify)
	defer r.opts.Source.Unsubscribe(id)

	var prune <-chan time.Time
	if r.opts.History != nil && r.opts.Retention > 0 {
		r.prune(ctx)
		ticker := time.NewTicker(r.opts.PruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}

	r.record(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.signal:
			r.record(ctx)
		case <-prune:
			r.prune(ctx)
		}
	}
}

func (r *StateRecorder) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *StateRecorder) record(ctx context.Context) {
	state := r.opts.Source.State()
	if r.hasLast && state == r.last {
		return
	}
	r.last, r.hasLast = state, true

	if r.opts.Writer != nil {
		r.opts.Writer.WriteDeviceState(r.opts.DeviceID, state.Fields())
	}
	if r.opts.History == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := r.opts.History.RecordStateChange(writeCtx, r.opts.DeviceID, state, SourceFireplace); err != nil {
		r.logDebug("state history write failed", "device_id", r.opts.DeviceID, "error", err)
	}
}

func (r *StateRecorder) prune(ctx context.Context) {
	n, err := r.opts.History.PruneHistory(ctx, r.opts.Retention)
	if err != nil {
		if r.opts.Logger != nil {
			r.opts.Logger.Warn("state history prune failed", "error", err)
		}
		return
	}
	if n > 0 {
		r.logDebug("pruned state history", "removed", n)
	}
}

func (r *StateRecorder) logDebug(msg string, keysAndValues ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Debug(msg, keysAndValues...)
	}
}
