package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const topicPattern = "session:*:state"

// publishTimeout bounds one Redis publish; publishBuffer is how many messages
// may wait for the publisher before Broadcast delivers locally instead.
var (
	publishTimeout = 500 * time.Millisecond
	publishBuffer  = 256
)

// Topic is the channel carrying state snapshots of one account's session.
func Topic(accountID int64) string {
	return fmt.Sprintf("session:%d:state", accountID)
}

// AccountFromTopic is the inverse of Topic.
func AccountFromTopic(topic string) (int64, bool) {
	const prefix, suffix = "session:", ":state"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return 0, false
	}
	id, err := strconv.ParseInt(topic[len(prefix):len(topic)-len(suffix)], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Hub fans messages out to websocket clients by topic. With Redis configured
// every message goes through Redis pub/sub, so clients connected to any
// instance receive it.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	outbox  chan message
}

type message struct {
	topic   string
	payload []byte
}

type Client struct {
	Topic string
	Send  chan []byte
}

func NewHub(ctx context.Context, redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		pubsub := redisClient.PSubscribe(ctx, topicPattern)
		if _, err := pubsub.Receive(ctx); err != nil {
			log.Printf("redis psubscribe error: %v", err)
		}
		go h.relay(ctx, pubsub)

		h.outbox = make(chan message, publishBuffer)
		go h.publisher(ctx)
	}
	return h
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[client]; !ok {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

// Publish encodes v as JSON and sends it to the topic's subscribers.
func (h *Hub) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	h.Broadcast(topic, payload)
	return nil
}

// Broadcast delivers payload locally when Redis is absent, otherwise hands it
// to the publisher. It never blocks on Redis: with the publisher backed up the
// message is delivered locally.
func (h *Hub) Broadcast(topic string, payload []byte) {
	if h.outbox != nil {
		select {
		case h.outbox <- message{topic: topic, payload: payload}:
			return
		default:
			log.Printf("redis publish queue full, delivering %s locally", topic)
		}
	}
	h.deliver(topic, payload)
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// publisher sends queued messages to Redis, one bounded publish at a time.
// A failed publish falls back to local delivery.
func (h *Hub) publisher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := h.redis.Publish(pubCtx, msg.topic, msg.payload).Err()
			cancel()
			if err != nil {
				log.Printf("redis publish error: %v", err)
				h.deliver(msg.topic, msg.payload)
			}
		}
	}
}

func (h *Hub) relay(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}
