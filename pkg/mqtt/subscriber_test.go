package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/eden/pkg/bus"
)

func newTestSubscriber(t *testing.T) (*Subscriber, *bus.IngestBus) {
	t.Helper()
	ingest := bus.NewIngestBus(16)
	sub := NewSubscriber(Config{BrokerURL: "tcp://localhost:1883", QoS: 2}, ingest, zerolog.Nop())
	return sub, ingest
}

func TestHandlePayload_PublishesPerMessage(t *testing.T) {
	sub, ingest := newTestSubscriber(t)

	payload := `[
		{"meta":{"name":"greenhouse","role":"sensor"},"timestamp":1,
		 "data":[{"sensor":"humidity","value":0.61,"unit":"ratio"}]},
		{"meta":{"name":"rooftop"},"timestamp":2,
		 "data":[{"sensor":"wind","value":[3.2,1.1],"unit":"m/s"}]}
	]`
	sub.handlePayload(context.Background(), []byte(payload))

	if ingest.Pending() != 2 {
		t.Fatalf("pending: got %d, want 2", ingest.Pending())
	}

	first, _ := ingest.Consume(context.Background())
	if first.Agent.Name != "greenhouse" || first.Agent.Role != "sensor" {
		t.Errorf("first agent: got %+v", first.Agent)
	}

	second, _ := ingest.Consume(context.Background())
	if second.Agent.Name != "rooftop" {
		t.Errorf("second agent: got %+v", second.Agent)
	}
	// A message without a declared role gets the sentinel.
	if second.Agent.Role != RoleNone {
		t.Errorf("second role: got %q, want %q", second.Agent.Role, RoleNone)
	}
}

func TestHandlePayload_DiscardsUnparseable(t *testing.T) {
	sub, ingest := newTestSubscriber(t)

	sub.handlePayload(context.Background(), []byte(`{"not":"an array"}`))
	sub.handlePayload(context.Background(), []byte(`garbage`))
	sub.handlePayload(context.Background(), []byte(``))

	if ingest.Pending() != 0 {
		t.Errorf("pending: got %d, want 0 after bad payloads", ingest.Pending())
	}
}

func TestHandlePayload_ClosedBus(t *testing.T) {
	sub, ingest := newTestSubscriber(t)
	ingest.Close()

	// Must not panic or block; messages are dropped.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.handlePayload(context.Background(),
			[]byte(`[{"meta":{"name":"d"},"timestamp":1,"data":[]}]`))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handlePayload blocked on closed bus")
	}
}

func TestNewSubscriber_Defaults(t *testing.T) {
	sub, _ := newTestSubscriber(t)

	if sub.cfg.KeepAlive != 5*time.Second {
		t.Errorf("keep alive: got %v", sub.cfg.KeepAlive)
	}
	if sub.cfg.ConnectTimeout != 15*time.Second {
		t.Errorf("connect timeout: got %v", sub.cfg.ConnectTimeout)
	}
	if sub.IsRunning() {
		t.Error("expected not running before Start")
	}
}
