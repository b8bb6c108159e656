//go:build e2e

package events

import (
	"context"
	"testing"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

// startRedis starts a Redis testcontainer and returns its URL.
func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return "redis://" + endpoint
}

func TestBusAgainstRedis(t *testing.T) {
	ctx := context.Background()
	bus, err := NewBus(ctx, startRedis(t), "jarvis:e2e", zap.NewNop())
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	defer bus.Close()

	for i, cat := range []string{"skills", "demos"} {
		if _, err := bus.Publish(ctx, &Event{SessionID: "e2e", Category: cat, Confidence: float64(i)}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	events, err := bus.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 || events[0].Category != "demos" {
		t.Fatalf("unexpected events %+v", events)
	}
	if err := bus.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}
