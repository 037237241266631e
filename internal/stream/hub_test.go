package stream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg := <-c.Send:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for message on %s", c.Topic)
	}
	return ""
}

func TestHubPublishLocal(t *testing.T) {
	hub := NewHub(context.Background(), nil)
	client := hub.Register(Topic(1))
	defer hub.Unregister(client)
	other := hub.Register(Topic(2))
	defer hub.Unregister(other)

	if err := hub.Publish(Topic(1), map[string]string{"state": "running"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if msg := receive(t, client); msg != `{"state":"running"}` {
		t.Fatalf("unexpected message %s", msg)
	}
	select {
	case <-other.Send:
		t.Fatalf("other topic must not receive the message")
	default:
	}
}

func TestHubPublishEncodeError(t *testing.T) {
	hub := NewHub(context.Background(), nil)
	if err := hub.Publish(Topic(1), make(chan int)); err == nil {
		t.Fatalf("expected encode error")
	}
}

func TestTopicHelpers(t *testing.T) {
	if Topic(42) != "session:42:state" {
		t.Fatalf("unexpected topic %s", Topic(42))
	}
	if id, ok := AccountFromTopic(Topic(42)); !ok || id != 42 {
		t.Fatalf("unexpected account %d", id)
	}
	for _, bad := range []string{"bad", "session:x:state", "tracking:1:state"} {
		if _, ok := AccountFromTopic(bad); ok {
			t.Fatalf("%q: expected no account", bad)
		}
	}
}

func TestUnregisterClosesOnce(t *testing.T) {
	hub := NewHub(context.Background(), nil)
	client := hub.Register(Topic(2))
	hub.Unregister(client)
	hub.Unregister(client)
	if _, ok := <-client.Send; ok {
		t.Fatalf("expected channel closed")
	}
	if hub.Subscribers(Topic(2)) != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestHubRedisRelay(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(ctx, rdb)
	ws := hub.Register(Topic(7))
	defer hub.Unregister(ws)

	hub.Broadcast(Topic(7), []byte("ping"))
	if msg := receive(t, ws); msg != "ping" {
		t.Fatalf("unexpected message %s", msg)
	}

	// a snapshot published by another instance
	if err := rdb.Publish(context.Background(), Topic(7), "pong").Err(); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	if msg := receive(t, ws); msg != "pong" {
		t.Fatalf("unexpected relayed message %s", msg)
	}
}

func TestHubRedisDownFallsBackToLocal(t *testing.T) {
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(ctx, rdb)
	server.Close()

	client := hub.Register(Topic(3))
	defer hub.Unregister(client)

	hub.Broadcast(Topic(3), []byte("local"))
	if msg := receive(t, client); msg != "local" {
		t.Fatalf("unexpected message %s", msg)
	}
}

// hangingRedis accepts connections and never answers.
func hangingRedis(t *testing.T) *redis.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				_ = c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	rdb := redis.NewClient(&redis.Options{Addr: ln.Addr().String(), MaxRetries: -1, ContextTimeoutEnabled: true})
	t.Cleanup(func() {
		_ = rdb.Close()
		_ = ln.Close()
	})
	return rdb
}

func TestBroadcastDoesNotWaitForStalledRedis(t *testing.T) {
	prev := publishTimeout
	publishTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(ctx, nil)
	hub.redis = hangingRedis(t)
	hub.outbox = make(chan message, 4)
	stopped := make(chan struct{})
	go func() {
		hub.publisher(ctx)
		close(stopped)
	}()
	defer func() {
		cancel()
		<-stopped
		publishTimeout = prev
	}()

	client := hub.Register(Topic(5))
	defer hub.Unregister(client)

	start := time.Now()
	hub.Broadcast(Topic(5), []byte("stalled"))
	if took := time.Since(start); took >= publishTimeout {
		t.Fatalf("broadcast blocked for %s", took)
	}
	if msg := receive(t, client); msg != "stalled" {
		t.Fatalf("unexpected message %s", msg)
	}
}

func TestBroadcastDeliversLocallyWhenPublisherBacksUp(t *testing.T) {
	hub := NewHub(context.Background(), nil)
	hub.redis = hangingRedis(t)
	hub.outbox = make(chan message, 1)
	hub.outbox <- message{topic: Topic(6), payload: []byte("queued")}

	client := hub.Register(Topic(6))
	defer hub.Unregister(client)

	hub.Broadcast(Topic(6), []byte("overflow"))
	if msg := receive(t, client); msg != "overflow" {
		t.Fatalf("unexpected message %s", msg)
	}
}
