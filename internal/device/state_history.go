package device

import (
	"context"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/fireplace"
)

// State history source values.
const (
	SourceFireplace = "fireplace"
	SourceCommand   = "command"
	SourceRefresh   = "refresh"
)

// StateHistoryEntry is one recorded fireplace snapshot.
type StateHistoryEntry struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	State     fireplace.State `json:"state"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}

// StateHistoryRepository stores and retrieves fireplace snapshots.
//
// Implementations must be safe for concurrent use and store UTC times.
type StateHistoryRepository interface {
	// RecordStateChange stores a snapshot. An empty source means
	// SourceFireplace.
	RecordStateChange(ctx context.Context, deviceID string, state fireplace.State, source string) error

	// GetHistory returns up to limit entries, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than olderThan and returns the
	// number removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
