package davinci

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/device"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/mqtt"
)

// CommandMessage asks the bridge to run one command.
// Topic: graylogic/command/davinci/{device}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID defaults to the topic's device segment when empty.
	DeviceID string `json:"device_id"`

	// Command is one of the device command names (lamp_on, fan_set, raw...).
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"brightness": 128} for lamp_set
	//   {"rgbw": [255, 0, 0, 0], "brightness": 200} for led_set
	//   {"line": "GET FLAME"} for raw
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// UnmarshalJSON accepts a missing or empty timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted means every protocol line of the command was queued.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected or dropped.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/davinci/{device}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeQueueFull         = "QUEUE_FULL"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// ErrorCode maps a command error onto its ack error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand), errors.Is(err, device.ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, device.ErrInvalidParameter),
		errors.Is(err, device.ErrInvalidBrightness),
		errors.Is(err, device.ErrInvalidPercentage),
		errors.Is(err, device.ErrInvalidColor):
		return ErrCodeInvalidParameters
	case errors.Is(err, device.ErrQueueFull):
		return ErrCodeQueueFull
	case errors.Is(err, ErrUnknownDevice):
		return ErrCodeNotConfigured
	default:
		return ErrCodeBridgeError
	}
}

// NewAckMessage builds the acknowledgement for cmd. A nil err is accepted.
func NewAckMessage(cmd CommandMessage, err error) AckMessage {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
		Protocol:  mqtt.Protocol,
	}
	if err != nil {
		ack.Status = AckFailed
		ack.Error = &AckError{Code: ErrorCode(err), Message: err.Error()}
	}
	return ack
}

// StateMessage carries the full fireplace snapshot.
// Topic: graylogic/state/davinci/{device}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string          `json:"device_id"`
	Timestamp time.Time       `json:"timestamp"`
	State     fireplace.State `json:"state"`
	Protocol  string          `json:"protocol"`
	Address   string          `json:"address"`
}

// NewStateMessage creates a state message for a device.
func NewStateMessage(deviceID, address string, state fireplace.State) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  mqtt.Protocol,
		Address:   address,
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthOffline is only ever published by the broker (LWT).
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/davinci
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Connection    *ConnectionStatus `json:"connection,omitempty"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the fireplace connection.
type ConnectionStatus struct {
	Status            string `json:"status"`
	Address           string `json:"address"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	LastError         string `json:"last_error,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsSent    uint64 `json:"commands_sent"`
	CommandsDropped uint64 `json:"commands_dropped"`
	CommandsFailed  uint64 `json:"commands_failed"`
	LinesReceived   uint64 `json:"lines_received"`
	ParseErrors     uint64 `json:"parse_errors"`
	Connects        uint64 `json:"connects"`
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
}

// NewHealthMessage builds a health message from coordinator diagnostics.
func NewHealthMessage(bridgeID, version string, status HealthStatus, diag fireplace.Diagnostics, startTime time.Time) HealthMessage {
	conn := &ConnectionStatus{
		Status:            "disconnected",
		Address:           diag.Address,
		ReconnectAttempts: diag.ReconnectAttempts,
		LastError:         diag.LastError,
	}
	if diag.Connected {
		conn.Status = "connected"
	}

	return HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Connection:    conn,
		Statistics: &BridgeStatistics{
			CommandsSent:    diag.CommandsSent,
			CommandsDropped: diag.CommandsDropped,
			CommandsFailed:  diag.CommandsFailed,
			LinesReceived:   diag.LinesReceived,
			ParseErrors:     diag.ParseErrors,
			Connects:        diag.Connects,
			QueueDepth:      diag.QueueSize,
			QueueCapacity:   diag.QueueCapacity,
		},
	}
}
