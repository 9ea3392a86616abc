package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/davinci-bridge/internal/auth"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/config"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/logging"
)

const (
	testSecret      = "test-secret-key-at-least-32-characters-long"
	testOperatorKey = "operator-key"
	testViewerKey   = "viewer-key"
)

// fakeFireplace records what the handlers queue.
type fakeFireplace struct {
	mu        sync.Mutex
	state     fireplace.State
	sent      []string
	refreshed []fireplace.Property
	interval  time.Duration
	full      bool
	observers map[fireplace.ObserverID]func()
	nextID    fireplace.ObserverID
}

func newFakeFireplace() *fakeFireplace {
	return &fakeFireplace{
		interval:  fireplace.DefaultScanInterval,
		observers: make(map[fireplace.ObserverID]func()),
	}
}

func (f *fakeFireplace) SendCommand(cmd string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.sent = append(f.sent, cmd)
	return true
}

func (f *fakeFireplace) RefreshProperties(props ...fireplace.Property) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, props...)
}

func (f *fakeFireplace) State() fireplace.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
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

func (f *fakeFireplace) Diagnostics() fireplace.Diagnostics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fireplace.Diagnostics{
		Address:      "192.0.2.10:10001",
		Connected:    f.state.Connected,
		ScanInterval: f.interval,
		CommandsSent: uint64(len(f.sent)),
		Observers:    len(f.observers),
	}
}

func (f *fakeFireplace) DeviceInfo() fireplace.DeviceInfo {
	return fireplace.DeviceInfo{
		Identifier:   "fireplace",
		Name:         fireplace.DeviceName,
		Manufacturer: fireplace.DeviceManufacturer,
		Model:        fireplace.DeviceModel,
	}
}

func (f *fakeFireplace) ScanInterval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interval
}

func (f *fakeFireplace) SetScanInterval(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interval = d
}

func (f *fakeFireplace) set(state fireplace.State) {
	f.mu.Lock()
	f.state = state
	fns := make([]func(), 0, len(f.observers))
	for _, fn := range f.observers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeFireplace) observerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *fakeFireplace) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server around a fake fireplace. Options adjust the
// dependencies before New.
func testServer(t *testing.T, opts ...func(*Deps)) (*Server, *fakeFireplace) {
	t.Helper()

	fp := newFakeFireplace()
	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:    testLogger(),
		Fireplace: fp,
		Version:   "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, fp
}

func withAuth(d *Deps) {
	d.Security = config.SecurityConfig{
		JWT:          config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		APIKey:       testOperatorKey,
		ViewerAPIKey: testViewerKey,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Fireplace: newFakeFireplace()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without fireplace should fail")
	}
}

func TestHealth(t *testing.T) {
	srv, fp := testServer(t)
	fp.set(fireplace.State{Connected: true})
	router := srv.buildRouter()

	for _, path := range []string{"/health", "/api/v1/health"} {
		w := do(t, router, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", path, w.Code, http.StatusOK)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}

		var resp map[string]any
		decode(t, w, &resp)
		if resp["status"] != "ok" || resp["version"] != "test" || resp["connected"] != true {
			t.Errorf("%s body = %v", path, resp)
		}
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "", "X-Request-ID", "client-123")

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodOptions, "/api/v1/health", "", "Origin", "http://localhost:3000")

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "", "Origin", "http://evil.example")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMetricsMounted(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("davinci_connected 1\n")) //nolint:errcheck // test handler
		})
	})
	w := do(t, srv.buildRouter(), http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "davinci_connected") {
		t.Errorf("metrics = %d %q", w.Code, w.Body.String())
	}
}

// ─── Fireplace Tests ───────────────────────────────────────────────

func TestGetFireplace(t *testing.T) {
	srv, fp := testServer(t)
	fp.set(fireplace.State{
		Connected: true,
		LampOn:    true,
		LampLevel: 50,
		LEDOn:     true,
		LEDColor:  fireplace.RGBW{Red: 200, Green: 10, Blue: 0, White: 0},
		FanOn:     true,
		FanSpeed:  30,
	})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/fireplace", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp FireplaceResponse
	decode(t, w, &resp)

	if resp.Device.Identifier != "fireplace" || resp.Device.Manufacturer != fireplace.DeviceManufacturer {
		t.Errorf("device = %+v", resp.Device)
	}
	if !resp.State.LampOn || resp.State.LampLevel != 50 {
		t.Errorf("state = %+v", resp.State)
	}
	if resp.Entities.Lamp.Brightness == nil || *resp.Entities.Lamp.Brightness != 127 {
		t.Errorf("lamp brightness = %v, want 127", resp.Entities.Lamp.Brightness)
	}
	if resp.Entities.AccentLight.Color == nil || resp.Entities.AccentLight.Color.Red != 200 {
		t.Errorf("led color = %v", resp.Entities.AccentLight.Color)
	}
	if !resp.Entities.HeatFan.On || resp.Entities.HeatFan.Percentage != 30 {
		t.Errorf("heat fan = %+v", resp.Entities.HeatFan)
	}
	if resp.Entities.Flame.On {
		t.Error("flame should be off")
	}
	if resp.ScanInterval != 300 {
		t.Errorf("scan_interval = %d, want 300", resp.ScanInterval)
	}
}

func TestGetFireplace_OffEntitiesHaveNoLevel(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/fireplace", "")

	var resp FireplaceResponse
	decode(t, w, &resp)
	if resp.Entities.Lamp.Brightness != nil || resp.Entities.AccentLight.Color != nil {
		t.Errorf("entities = %+v", resp.Entities)
	}
}

func TestDiagnostics(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/fireplace/diagnostics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Diagnostics fireplace.Diagnostics `json:"diagnostics"`
		Commands    []string              `json:"commands"`
	}
	decode(t, w, &resp)
	if resp.Diagnostics.Address != "192.0.2.10:10001" {
		t.Errorf("address = %q", resp.Diagnostics.Address)
	}
	if len(resp.Commands) != 13 {
		t.Errorf("commands = %v", resp.Commands)
	}
}

func TestExecuteCommand(t *testing.T) {
	srv, fp := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/fireplace/commands", `{"command":"flame_on"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := fp.sentCommands(); len(got) != 1 || got[0] != "SET FLAME ON" {
		t.Errorf("sent = %v, want [SET FLAME ON]", got)
	}
}

func TestExecuteCommand_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		full   bool
		status int
		code   string
	}{
		{"malformed json", `{"command":`, false, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing command", `{}`, false, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown command", `{"command":"self_destruct"}`, false, http.StatusNotFound, ErrCodeNotFound},
		{"brightness out of range", `{"command":"lamp_set","parameters":{"brightness":300}}`, false, http.StatusBadRequest, ErrCodeValidation},
		{"wrong parameter type", `{"command":"fan_set","parameters":{"percentage":"fast"}}`, false, http.StatusBadRequest, ErrCodeValidation},
		{"queue full", `{"command":"flame_off"}`, true, http.StatusServiceUnavailable, ErrCodeQueueFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, fp := testServer(t)
			fp.full = tt.full

			w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/fireplace/commands", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.status, w.Body.String())
			}
			var resp Error
			decode(t, w, &resp)
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	srv, fp := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/fireplace/refresh", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(fp.refreshed) != len(fireplace.RefreshOrder()) {
		t.Errorf("refreshed = %v, want full poll list", fp.refreshed)
	}

	fp.refreshed = nil
	w = do(t, router, http.MethodPost, "/api/v1/fireplace/refresh", `{"properties":["flame"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(fp.refreshed) != 1 || fp.refreshed[0] != fireplace.PropFlame {
		t.Errorf("refreshed = %v, want [FLAME]", fp.refreshed)
	}

	w = do(t, router, http.MethodPost, "/api/v1/fireplace/refresh", `{"properties":["CHIMNEY"]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown property status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSetScanInterval(t *testing.T) {
	srv, fp := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPut, "/api/v1/fireplace/scan-interval", `{"seconds":900}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if fp.ScanInterval() != 900*time.Second {
		t.Errorf("interval = %v, want 15m", fp.ScanInterval())
	}

	w = do(t, router, http.MethodPut, "/api/v1/fireplace/scan-interval", `{"seconds":42}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid interval status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if fp.ScanInterval() != 900*time.Second {
		t.Errorf("interval changed to %v by rejected request", fp.ScanInterval())
	}
}

func TestSystemMetrics(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/system", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp SystemMetrics
	decode(t, w, &resp)
	if resp.Version != "test" || resp.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", resp)
	}
	if resp.MQTT != nil || resp.Database != nil {
		t.Error("optional sections should be omitted without their dependencies")
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func issueToken(t *testing.T, h http.Handler, key string) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/auth/token", `{"api_key":"`+key+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("token status = %d, body %s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	decode(t, w, &resp)
	return resp.AccessToken
}

func TestToken_Success(t *testing.T) {
	srv, _ := testServer(t, withAuth)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/auth/token", `{"api_key":"`+testOperatorKey+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp tokenResponse
	decode(t, w, &resp)
	if resp.AccessToken == "" || resp.TokenType != "Bearer" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Role != auth.RoleOperator {
		t.Errorf("role = %q, want operator", resp.Role)
	}
	if resp.ExpiresIn != 900 {
		t.Errorf("expires_in = %d, want 900", resp.ExpiresIn)
	}

	claims, err := auth.ParseToken(resp.AccessToken, testSecret)
	if err != nil || claims.Role != auth.RoleOperator {
		t.Errorf("ParseToken() = %+v, %v", claims, err)
	}
}

func TestToken_InvalidKey(t *testing.T) {
	srv, _ := testServer(t, withAuth)
	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/auth/token", `{"api_key":"wrong"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestToken_AuthDisabled(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/auth/token", `{"api_key":"x"}`)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := testServer(t, withAuth)
	router := srv.buildRouter()

	operator := issueToken(t, router, testOperatorKey)
	viewer := issueToken(t, router, testViewerKey)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		status int
	}{
		{"no token", http.MethodGet, "/api/v1/fireplace", "", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/fireplace", "", "nope", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/api/v1/fireplace", "", viewer, http.StatusOK},
		{"viewer cannot command", http.MethodPost, "/api/v1/fireplace/commands", `{"command":"flame_on"}`, viewer, http.StatusForbidden},
		{"viewer cannot configure", http.MethodPut, "/api/v1/fireplace/scan-interval", `{"seconds":60}`, viewer, http.StatusForbidden},
		{"operator commands", http.MethodPost, "/api/v1/fireplace/commands", `{"command":"flame_on"}`, operator, http.StatusAccepted},
		{"operator configures", http.MethodPut, "/api/v1/fireplace/scan-interval", `{"seconds":60}`, operator, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header []string
			if tt.token != "" {
				header = []string{"Authorization", "Bearer " + tt.token}
			}
			w := do(t, router, tt.method, tt.path, tt.body, header...)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv, _ := testServer(t, withAuth)
	router := srv.buildRouter()
	viewer := issueToken(t, router, testViewerKey)

	w := do(t, router, http.MethodPost, "/api/v1/auth/ws-ticket", "", "Authorization", "Bearer "+viewer)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	decode(t, w, &resp)
	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, ok := srv.validateTicket(ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.role != auth.RoleViewer {
		t.Errorf("ticket role = %q, want viewer", entry.role)
	}
	if _, ok := srv.validateTicket(ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	srv, _ := testServer(t)
	ticket := generateTicket()
	srv.tickets.mu.Lock()
	srv.tickets.tickets[ticket] = ticketEntry{
		role:      auth.RoleOperator,
		expiresAt: time.Now().Add(-1 * time.Second),
	}
	srv.tickets.mu.Unlock()

	srv.tickets.cleanExpired()
	if _, ok := srv.validateTicket(ticket); ok {
		t.Error("expired ticket should not be valid")
	}
}

func TestWebSocket_RequiresTicket(t *testing.T) {
	srv, _ := testServer(t, withAuth)
	w := do(t, srv.buildRouter(), http.MethodGet, "/ws", "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelState: {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelState, fireplace.State{FlameOn: true})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent || wsMsg.EventType != ChannelState {
			t.Errorf("message = %+v", wsMsg)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"something.else": {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelState, fireplace.State{})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestRelayState_BroadcastsDistinctSnapshots(t *testing.T) {
	srv, fp := testServer(t)

	client := &WSClient{
		hub:           srv.hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelState: {}},
	}
	srv.hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.relayState(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for fp.observerCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	fp.set(fireplace.State{Connected: true, FlameOn: true})
	select {
	case msg := <-client.send:
		var wsMsg struct {
			EventType string          `json:"event_type"`
			Payload   fireplace.State `json:"payload"`
		}
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !wsMsg.Payload.FlameOn {
			t.Errorf("payload = %+v", wsMsg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state event")
	}

	// Same snapshot again is not rebroadcast.
	fp.set(fireplace.State{Connected: true, FlameOn: true})
	select {
	case <-client.send:
		t.Error("duplicate snapshot should not be broadcast")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	<-done
	if fp.observerCount() != 0 {
		t.Errorf("observers after relay stopped = %d, want 0", fp.observerCount())
	}
}

func TestWebSocket_SubscribeAndCommand(t *testing.T) {
	srv, fp := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() WSMessage {
		t.Helper()
		//nolint:errcheck // test deadline
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{ChannelState}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Errorf("subscribe reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeCommand, ID: "2", Payload: CommandRequest{Command: "flame_on"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Type != WSTypeResponse || msg.ID != "2" {
		t.Errorf("command reply = %+v", msg)
	}
	if got := fp.sentCommands(); len(got) != 1 || got[0] != "SET FLAME ON" {
		t.Errorf("sent = %v", got)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeCommand, ID: "3", Payload: CommandRequest{Command: "nope"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Type != WSTypeError || msg.ID != "3" {
		t.Errorf("unknown command reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "4"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Type != WSTypePong {
		t.Errorf("ping reply = %+v", msg)
	}
}

func TestWSClient_ViewerCannotCommand(t *testing.T) {
	hub := newTestHub(t)
	called := false
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		role:          auth.RoleViewer,
		exec: func(string, map[string]any) error {
			called = true
			return nil
		},
	}

	client.handleMessage([]byte(`{"type":"command","id":"x","payload":{"command":"flame_on"}}`))

	if called {
		t.Error("viewer command should not execute")
	}
	var msg WSMessage
	if err := json.Unmarshal(<-client.send, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != WSTypeError {
		t.Errorf("reply type = %q, want error", msg.Type)
	}
}
