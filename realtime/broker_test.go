package realtime

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Redis tests run only when ROOMIE_TEST_REDIS names a reachable server, e.g.
//
//	ROOMIE_TEST_REDIS=localhost:6379 go test ./realtime/
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("ROOMIE_TEST_REDIS")
	if addr == "" {
		t.Skip("ROOMIE_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	client := testRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := NewHub()
	b := NewRedisBroker(client, h)
	b.prefix = fmt.Sprintf("roomie-test-%d:", time.Now().UnixNano())

	sub := h.Subscribe(16, UserTopic("u1"))
	defer sub.Close()
	other := h.Subscribe(16, UserTopic("u9"))
	defer other.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- b.Run(runCtx) }()

	// Keep publishing until the pattern subscription is live.
	var got Event
	require.Eventually(t, func() bool {
		if err := b.Publish(ctx, UserTopic("u1"), Event{Type: "message", From: "u2", Data: "hi"}); err != nil {
			return false
		}
		select {
		case got = <-sub.Events():
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "message", got.Type)
	assert.Equal(t, "u2", got.From)
	assert.Equal(t, UserTopic("u1"), got.Topic)
	assert.Equal(t, "hi", got.Data)

	select {
	case evt := <-other.Events():
		t.Fatalf("event leaked to another topic: %+v", evt)
	default:
	}

	stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRedisBrokerPublishFailsWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	b := NewRedisBroker(client, NewHub())
	err := b.Publish(context.Background(), UserTopic("u1"), Event{Type: "message"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish user:u1")
}
