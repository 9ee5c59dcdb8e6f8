package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/logger"
)

// --- test doubles ---

type testBus struct {
	mu       sync.Mutex
	handlers []domain.EventHandler
}

func (b *testBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	hs := make([]domain.EventHandler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *testBus) Subscribe(_ domain.EventType, _ domain.EventHandler) func() { return func() {} }

func (b *testBus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.handlers = nil
		b.mu.Unlock()
	}
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Enabled: true,
		Addr:    "127.0.0.1:0",
		Tokens:  []config.GatewayToken{{Token: "test-token", Name: "tester"}},
		Rate:    config.RateLimitConfig{RequestsPerMin: 6000, Burst: 100},
	}
}

func startTestServer(t *testing.T, bus domain.EventBus, cfg config.GatewayConfig) *Server {
	t.Helper()
	srv := NewServer(bus, NewStaticTokenAuth(cfg.Tokens), cfg, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	started := make(chan struct{})
	go func() {
		go func() {
			for srv.BoundAddr() == "" {
				time.Sleep(5 * time.Millisecond)
			}
			close(started)
		}()
		_ = srv.Start(ctx)
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not start in time")
	}

	t.Cleanup(func() { srv.Stop(context.Background()) })
	return srv
}

func dialWS(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

// --- tests ---

func TestServerAuthReject(t *testing.T) {
	srv := startTestServer(t, &testBus{}, testGatewayConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=bad-token", nil)
	if err == nil {
		t.Fatal("expected auth rejection")
	}
}

func TestServerRPCRoundtrip(t *testing.T) {
	srv := startTestServer(t, &testBus{}, testGatewayConfig())

	srv.RegisterHandler("echo", func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		return payload, nil
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	ctx := context.Background()

	req := Frame{
		Type:    FrameTypeRequest,
		ID:      1,
		Method:  "echo",
		Payload: json.RawMessage(`{"msg":"hello"}`),
	}
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Frame
	if err := wsjson.Read(ctx, ws, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}

	if resp.Type != FrameTypeResponse || resp.ID != 1 {
		t.Errorf("frame = %+v", resp)
	}
	if resp.Error != "" {
		t.Errorf("error = %q", resp.Error)
	}
	if string(resp.Payload) != `{"msg":"hello"}` {
		t.Errorf("payload = %s", resp.Payload)
	}
}

func TestServerUnknownMethod(t *testing.T) {
	srv := startTestServer(t, &testBus{}, testGatewayConfig())

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	ctx := context.Background()

	req := Frame{Type: FrameTypeRequest, ID: 2, Method: "nonexistent"}
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Frame
	if err := wsjson.Read(ctx, ws, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected error for unknown method")
	}
}

func TestServerRateLimit(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.Rate = config.RateLimitConfig{RequestsPerMin: 60, Burst: 2}
	srv := startTestServer(t, &testBus{}, cfg)

	srv.RegisterHandler("echo", func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		return payload, nil
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	ctx := context.Background()

	limited := false
	for i := uint64(1); i <= 3; i++ {
		req := Frame{Type: FrameTypeRequest, ID: i, Method: "echo", Payload: json.RawMessage(`{}`)}
		if err := wsjson.Write(ctx, ws, req); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		var resp Frame
		if err := wsjson.Read(ctx, ws, &resp); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if resp.Error != "" && strings.Contains(resp.Error, "rate limit") {
			limited = true
		}
	}
	if !limited {
		t.Error("third request within burst window was not rate limited")
	}
}

func TestServerEventForwarding(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus, testGatewayConfig())

	ws := dialWS(t, srv.BoundAddr(), "test-token")

	// Give the connection time to register.
	time.Sleep(100 * time.Millisecond)

	bus.Publish(context.Background(), domain.Event{
		Type:            domain.EventAgentRouted,
		Timestamp:       time.Now(),
		ConversationKey: "C1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != FrameTypeEvent {
		t.Errorf("type = %q", frame.Type)
	}

	var event domain.Event
	if err := json.Unmarshal(frame.Payload, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != domain.EventAgentRouted || event.ConversationKey != "C1" {
		t.Errorf("event = %+v", event)
	}
}
