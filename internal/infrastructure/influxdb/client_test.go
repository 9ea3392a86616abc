package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/infrastructure/config"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/influxdb"
)

// fakeInflux answers pings and records line-protocol writes.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/write") {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func startFakeInflux(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "fireplace",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func waitForBody(f *fakeInflux, substr string) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(f.body(), substr) {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1", Bucket: "b"}

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthCheck(t *testing.T) {
	_, cfg := startFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteDeviceState(t *testing.T) {
	fake, cfg := startFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteDeviceState("fireplace", map[string]any{
		"lamp_on":    true,
		"lamp_level": 50,
	})
	client.Flush()

	if !waitForBody(fake, "fireplace_state,device_id=fireplace") {
		t.Fatalf("write body = %q, want fireplace_state point", fake.body())
	}
	body := fake.body()
	if !strings.Contains(body, "lamp_level=50i") {
		t.Errorf("body = %q, want lamp_level=50i", body)
	}
	if !strings.Contains(body, "lamp_on=true") {
		t.Errorf("body = %q, want lamp_on=true", body)
	}
}

func TestWriteEvent(t *testing.T) {
	fake, cfg := startFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteEvent("fireplace", "connected")
	client.Flush()

	if !waitForBody(fake, "fireplace_events,device_id=fireplace,event=connected") {
		t.Errorf("write body = %q, want fireplace_events point", fake.body())
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	_, cfg := startFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Must not panic on a closed write API.
	client.WriteDeviceState("fireplace", map[string]any{"flame_on": true})
	client.Flush()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c influxdb.Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}

func TestStatePoint(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := influxdb.StatePoint("fireplace", map[string]any{"fan_speed": 40}, ts)

	if p.Name() != influxdb.StateMeasurement {
		t.Errorf("Name() = %q, want %q", p.Name(), influxdb.StateMeasurement)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}
	tags := p.TagList()
	if len(tags) != 1 || tags[0].Key != "device_id" || tags[0].Value != "fireplace" {
		t.Errorf("TagList() = %+v, want device_id=fireplace", tags)
	}
}
