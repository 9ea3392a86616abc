package davinci

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/device"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/mqtt"
)

const testDeviceID = "fireplace"

// mockMQTTClient implements MQTTClient for testing.
type mockMQTTClient struct {
	mu           sync.Mutex
	published    []mockPublish
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	connected    bool
	subscribeErr error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *mockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *mockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// deliver simulates a message on a concrete command topic.
func (m *mockMQTTClient) deliver(topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[mqtt.Topics{}.AllCommands()]
	m.mu.Unlock()
	if !ok {
		return errors.New("no command subscription")
	}
	return handler(topic, payload)
}

func (m *mockMQTTClient) publishedOn(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// fakeFireplace implements Fireplace for testing.
type fakeFireplace struct {
	mu        sync.Mutex
	state     fireplace.State
	diag      fireplace.Diagnostics
	commands  []string
	refreshes [][]fireplace.Property
	observers map[fireplace.ObserverID]func()
	nextID    fireplace.ObserverID
}

func newFakeFireplace() *fakeFireplace {
	return &fakeFireplace{
		diag:      fireplace.Diagnostics{Address: "192.0.2.10:10001", Connected: true},
		observers: make(map[fireplace.ObserverID]func()),
	}
}

func (f *fakeFireplace) SendCommand(cmd string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return true
}

func (f *fakeFireplace) RefreshProperties(props ...fireplace.Property) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, props)
}

func (f *fakeFireplace) State() fireplace.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeFireplace) Diagnostics() fireplace.Diagnostics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diag
}

func (f *fakeFireplace) Subscribe(fn func()) fireplace.ObserverID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.observers[f.nextID] = fn
	return f.nextID
}

func (f *fakeFireplace) Unsubscribe(id fireplace.ObserverID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.observers, id)
}

func (f *fakeFireplace) observerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

// setState replaces the state and notifies observers like the store does.
func (f *fakeFireplace) setState(s fireplace.State) {
	f.mu.Lock()
	f.state = s
	fns := make([]func(), 0, len(f.observers))
	for _, fn := range f.observers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeFireplace) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// fakeCommandLog implements device.CommandLogRepository.
type fakeCommandLog struct {
	mu      sync.Mutex
	entries []device.CommandLogEntry
}

func (l *fakeCommandLog) Record(_ context.Context, entry *device.CommandLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *fakeCommandLog) List(_ context.Context, _ device.CommandLogFilter) ([]device.CommandLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]device.CommandLogEntry(nil), l.entries...), nil
}

func newTestBridge(t *testing.T) (*Bridge, *mockMQTTClient, *fakeFireplace, *fakeCommandLog) {
	t.Helper()
	client := newMockMQTTClient()
	fp := newFakeFireplace()
	log := &fakeCommandLog{}

	b, err := NewBridge(BridgeOptions{
		DeviceID:       testDeviceID,
		Version:        "test",
		HealthInterval: time.Hour,
		MQTTClient:     client,
		Fireplace:      fp,
		CommandLog:     log,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	return b, client, fp, log
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decodeAck(t *testing.T, p mockPublish) AckMessage {
	t.Helper()
	var ack AckMessage
	if err := json.Unmarshal(p.Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func TestNewBridgeValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    BridgeOptions
		wantErr error
	}{
		{"missing mqtt", BridgeOptions{DeviceID: "x", Fireplace: newFakeFireplace()}, ErrMQTTClientRequired},
		{"missing fireplace", BridgeOptions{DeviceID: "x", MQTTClient: newMockMQTTClient()}, ErrFireplaceRequired},
		{"missing device", BridgeOptions{MQTTClient: newMockMQTTClient(), Fireplace: newFakeFireplace()}, device.ErrDeviceIDRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewBridge() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBridgeStartPublishesHealthAndState(t *testing.T) {
	b, client, fp, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	health := client.publishedOn(mqtt.Topics{}.Health())
	if len(health) < 2 {
		t.Fatalf("health messages = %d, want at least 2", len(health))
	}
	var first HealthMessage
	if err := json.Unmarshal(health[0].Payload, &first); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if first.Status != HealthStarting {
		t.Errorf("first health status = %q, want %q", first.Status, HealthStarting)
	}
	if !health[0].Retained {
		t.Error("health should be retained")
	}

	if fp.observerCount() != 1 {
		t.Errorf("observers = %d, want 1", fp.observerCount())
	}

	stateTopic := mqtt.Topics{}.State(testDeviceID)
	waitFor(t, "initial state", func() bool { return len(client.publishedOn(stateTopic)) == 1 })
}

func TestBridgeStartSubscribeError(t *testing.T) {
	b, client, _, _ := newTestBridge(t)
	client.subscribeErr = errors.New("broker gone")
	if err := b.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when subscribe fails")
	}
	b.Stop()
}

func TestBridgeCommandAccepted(t *testing.T) {
	b, client, fp, log := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	payload := []byte(`{"id":"cmd-1","command":"lamp_set","parameters":{"brightness":255}}`)
	if err := client.deliver(mqtt.Topics{}.Command(testDeviceID), payload); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	want := []string{"SET LAMPLEVEL 10", "SET LAMP ON"}
	if got := fp.sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}

	acks := client.publishedOn(mqtt.Topics{}.Ack(testDeviceID))
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.CommandID != "cmd-1" || ack.Status != AckAccepted || ack.Error != nil {
		t.Errorf("ack = %+v, want accepted cmd-1", ack)
	}
	if ack.DeviceID != testDeviceID {
		t.Errorf("ack device = %q, want %q", ack.DeviceID, testDeviceID)
	}
	if acks[0].Retained {
		t.Error("acks must not be retained")
	}

	if len(log.entries) != 1 || !log.entries[0].Accepted || log.entries[0].Origin != device.OriginMQTT {
		t.Errorf("command log = %+v", log.entries)
	}
}

func TestBridgeCommandFailures(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		payload  string
		ackTopic string
		wantCode string
	}{
		{
			name:     "unknown command",
			topic:    mqtt.Topics{}.Command(testDeviceID),
			payload:  `{"id":"c","command":"explode"}`,
			ackTopic: mqtt.Topics{}.Ack(testDeviceID),
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "bad parameter",
			topic:    mqtt.Topics{}.Command(testDeviceID),
			payload:  `{"id":"c","command":"fan_set","parameters":{"percentage":150}}`,
			ackTopic: mqtt.Topics{}.Ack(testDeviceID),
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "other device",
			topic:    mqtt.Topics{}.Command("stove"),
			payload:  `{"id":"c","command":"flame_on"}`,
			ackTopic: mqtt.Topics{}.Ack("stove"),
			wantCode: ErrCodeNotConfigured,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, client, fp, log := newTestBridge(t)
			if err := b.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			defer b.Stop()

			if err := client.deliver(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("deliver() error = %v", err)
			}
			acks := client.publishedOn(tt.ackTopic)
			if len(acks) != 1 {
				t.Fatalf("acks on %s = %d, want 1", tt.ackTopic, len(acks))
			}
			ack := decodeAck(t, acks[0])
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want failed %s", ack, tt.wantCode)
			}
			if len(fp.sent()) != 0 {
				t.Errorf("commands sent on failure: %v", fp.sent())
			}
			if len(log.entries) != 1 || log.entries[0].Accepted {
				t.Errorf("command log = %+v, want one rejected entry", log.entries)
			}
		})
	}
}

func TestBridgeMalformedCommand(t *testing.T) {
	b, client, _, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	err := client.deliver(mqtt.Topics{}.Command(testDeviceID), []byte(`{not json`))
	if !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("deliver() error = %v, want ErrInvalidCommand", err)
	}
	if acks := client.publishedOn(mqtt.Topics{}.Ack(testDeviceID)); len(acks) != 0 {
		t.Errorf("acks = %d, want 0", len(acks))
	}
}

func TestBridgePublishesStateOnChangeOnly(t *testing.T) {
	b, client, fp, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	stateTopic := mqtt.Topics{}.State(testDeviceID)
	waitFor(t, "initial state", func() bool { return len(client.publishedOn(stateTopic)) == 1 })

	next := fireplace.State{FlameOn: true, Connected: true}
	fp.setState(next)
	waitFor(t, "changed state", func() bool { return len(client.publishedOn(stateTopic)) == 2 })

	// Same snapshot again: nothing new.
	fp.setState(next)
	time.Sleep(50 * time.Millisecond)
	msgs := client.publishedOn(stateTopic)
	if len(msgs) != 2 {
		t.Fatalf("state messages = %d, want 2", len(msgs))
	}

	var msg StateMessage
	if err := json.Unmarshal(msgs[1].Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.State != next {
		t.Errorf("state = %+v, want %+v", msg.State, next)
	}
	if msg.Address != "192.0.2.10:10001" || msg.Protocol != mqtt.Protocol {
		t.Errorf("state envelope = %+v", msg)
	}
	if !msgs[1].Retained {
		t.Error("state should be retained")
	}
}

func TestBridgeResyncRepublishes(t *testing.T) {
	b, client, _, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	stateTopic := mqtt.Topics{}.State(testDeviceID)
	waitFor(t, "initial state", func() bool { return len(client.publishedOn(stateTopic)) == 1 })

	b.Resync()
	waitFor(t, "republished state", func() bool { return len(client.publishedOn(stateTopic)) == 2 })
}

func TestBridgeStop(t *testing.T) {
	b, client, fp, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	b.Stop()
	b.Stop()

	if fp.observerCount() != 0 {
		t.Errorf("observers after Stop = %d, want 0", fp.observerCount())
	}
	if len(client.unsubscribed) != 1 || client.unsubscribed[0] != (mqtt.Topics{}).AllCommands() {
		t.Errorf("unsubscribed = %v", client.unsubscribed)
	}

	health := client.publishedOn(mqtt.Topics{}.Health())
	var last HealthMessage
	if err := json.Unmarshal(health[len(health)-1].Payload, &last); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("last health = %q, want %q", last.Status, HealthStopping)
	}
}
