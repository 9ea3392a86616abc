package device

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Command origins.
const (
	OriginMQTT    = "mqtt"
	OriginAPI     = "api"
	OriginConsole = "console"
)

// CommandLogEntry records one command request and whether it was queued.
type CommandLogEntry struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Origin    string    `json:"origin"`
	Accepted  bool      `json:"accepted"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CommandLogFilter selects command log entries. Zero fields match all.
type CommandLogFilter struct {
	DeviceID string
	Origin   string
	Limit    int
}

// CommandLogRepository stores the command audit trail.
type CommandLogRepository interface {
	Record(ctx context.Context, entry *CommandLogEntry) error
	List(ctx context.Context, filter CommandLogFilter) ([]CommandLogEntry, error)
}

// SQLiteCommandLogRepository implements CommandLogRepository on command_log.
type SQLiteCommandLogRepository struct {
	db *sql.DB
}

// NewSQLiteCommandLogRepository creates the repository over db.
func NewSQLiteCommandLogRepository(db *sql.DB) *SQLiteCommandLogRepository {
	return &SQLiteCommandLogRepository{db: db}
}

// Record inserts entry, filling in ID and CreatedAt when empty.
func (r *SQLiteCommandLogRepository) Record(ctx context.Context, entry *CommandLogEntry) error {
	if entry.DeviceID == "" {
		return ErrDeviceIDRequired
	}
	if entry.ID == "" {
		entry.ID = "cmd-" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, device_id, command, origin, accepted, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DeviceID, entry.Command, entry.Origin,
		entry.Accepted, nullableString(entry.Error),
		entry.CreatedAt.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (r *SQLiteCommandLogRepository) List(ctx context.Context, filter CommandLogFilter) ([]CommandLogEntry, error) {
	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Origin != "" {
		conditions = append(conditions, "origin = ?")
		args = append(args, filter.Origin)
	}

	query := "SELECT id, device_id, command, origin, accepted, error, created_at FROM command_log"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	var entries []CommandLogEntry
	for rows.Next() {
		var e CommandLogEntry
		var errText sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Command, &e.Origin, &e.Accepted, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		e.Error = errText.String
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return entries, nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
