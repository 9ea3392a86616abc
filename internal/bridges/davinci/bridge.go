package davinci

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/device"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/mqtt"
)

const (
	// DefaultBridgeID identifies this bridge in health messages.
	DefaultBridgeID = "davinci"

	commandQoS = 1
	stateQoS   = 1

	// commandLogTimeout bounds one command log insert.
	commandLogTimeout = 2 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the part of the MQTT client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Fireplace is the part of the coordinator the bridge drives.
type Fireplace interface {
	device.Commander
	DiagnosticsSource
	Subscribe(fn func()) fireplace.ObserverID
	Unsubscribe(id fireplace.ObserverID)
}

// BridgeOptions holds the dependencies for NewBridge.
type BridgeOptions struct {
	// DeviceID is the device segment of every topic. Required.
	DeviceID string

	// BridgeID defaults to DefaultBridgeID.
	BridgeID string
	Version  string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	MQTTClient MQTTClient
	Fireplace  Fireplace

	// CommandLog is optional.
	CommandLog device.CommandLogRepository

	Logger Logger
}

// Bridge connects the fireplace coordinator to MQTT.
type Bridge struct {
	deviceID string
	address  string
	mqtt     MQTTClient
	fp       Fireplace
	caps     *device.Capabilities
	cmdLog   device.CommandLogRepository
	health   *HealthReporter

	observer    fireplace.ObserverID
	stateSignal chan struct{}

	stateMu       sync.Mutex
	lastPublished fireplace.State
	hasPublished  bool

	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to subscribe and begin
// publishing.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, ErrMQTTClientRequired
	}
	if opts.Fireplace == nil {
		return nil, ErrFireplaceRequired
	}
	if opts.DeviceID == "" {
		return nil, device.ErrDeviceIDRequired
	}
	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = DefaultBridgeID
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		deviceID:    opts.DeviceID,
		address:     opts.Fireplace.Diagnostics().Address,
		mqtt:        opts.MQTTClient,
		fp:          opts.Fireplace,
		caps:        device.NewCapabilities(opts.Fireplace),
		cmdLog:      opts.CommandLog,
		stateSignal: make(chan struct{}, 1),
		ctx:         ctx,
		ctxCancel:   cancel,
		done:        make(chan struct{}),
		logger:      opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  bridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Source:    opts.Fireplace,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to the command topic, registers the state observer and
// starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		err = b.start(ctx)
	})
	return err
}

func (b *Bridge) start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	topic := mqtt.Topics{}.AllCommands()
	if err := b.mqtt.Subscribe(topic, commandQoS, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)

	b.observer = b.fp.Subscribe(b.signalState)

	b.wg.Add(1)
	go b.stateLoop()
	b.signalState()

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started", "device_id", b.deviceID, "address", b.address)
	return nil
}

// Stop unsubscribes, stops health reporting and waits for the publisher.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.fp.Unsubscribe(b.observer)
		if err := b.mqtt.Unsubscribe(mqtt.Topics{}.AllCommands()); err != nil {
			b.logDebug("unsubscribe commands failed", "error", err)
		}

		close(b.done)
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// Resync republishes state and health. Call it after the MQTT client
// reconnects; retained messages may have been lost with a clean session.
func (b *Bridge) Resync() {
	b.stateMu.Lock()
	b.hasPublished = false
	b.stateMu.Unlock()
	b.signalState()

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}
}

// HealthStatus reports the current bridge health.
func (b *Bridge) HealthStatus() (HealthStatus, string) {
	return b.health.Status()
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

// signalState runs on the coordinator's session goroutine and must not
// block.
func (b *Bridge) signalState() {
	select {
	case b.stateSignal <- struct{}{}:
	default:
	}
}

func (b *Bridge) stateLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.stateSignal:
			b.publishState()
		}
	}
}

// publishState publishes the snapshot when it differs from the last one
// the broker accepted.
func (b *Bridge) publishState() {
	state := b.fp.State()

	b.stateMu.Lock()
	unchanged := b.hasPublished && state == b.lastPublished
	b.stateMu.Unlock()
	if unchanged {
		return
	}

	payload, err := json.Marshal(NewStateMessage(b.deviceID, b.address, state))
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.State(b.deviceID), payload, stateQoS, true); err != nil {
		b.logError("failed to publish state", err)
		return
	}

	b.stateMu.Lock()
	b.lastPublished = state
	b.hasPublished = true
	b.stateMu.Unlock()

	b.logDebug("published state", "device_id", b.deviceID, "connected", state.Connected)
}

// handleCommand processes one command message. Malformed payloads are
// returned as errors; everything else is acknowledged.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	topicDevice := mqtt.DeviceFromTopic(topic)
	if cmd.DeviceID == "" {
		cmd.DeviceID = topicDevice
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	var err error
	if topicDevice != b.deviceID || cmd.DeviceID != b.deviceID {
		err = fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.DeviceID)
	} else {
		err = b.caps.Execute(cmd.Command, cmd.Parameters)
	}

	b.recordCommand(cmd, err)
	b.publishAck(topicDevice, NewAckMessage(cmd, err))

	if err != nil {
		b.logWarn("command failed",
			"command_id", cmd.ID,
			"command", cmd.Command,
			"error", err)
	}
	return nil
}

func (b *Bridge) publishAck(deviceID string, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.Ack(deviceID), payload, commandQoS, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) recordCommand(cmd CommandMessage, cmdErr error) {
	if b.cmdLog == nil {
		return
	}

	entry := &device.CommandLogEntry{
		DeviceID: cmd.DeviceID,
		Command:  cmd.Command,
		Origin:   device.OriginMQTT,
		Accepted: cmdErr == nil,
	}
	if cmdErr != nil {
		entry.Error = cmdErr.Error()
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandLogTimeout)
	defer cancel()
	if err := b.cmdLog.Record(ctx, entry); err != nil {
		b.logError("failed to record command", err)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
