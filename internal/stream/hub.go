// Package stream fans live activity snapshots out to spectators. With Redis
// configured every instance publishes to and receives from a shared channel,
// so a spectator may be connected to a different instance than the athlete.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPattern = "tracking:*:broadcast"

type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	done    chan struct{}
}

type Client struct {
	ActivityID string
	Send       chan []byte
}

// NewHub starts the Redis subscription when redisClient is set. If the
// subscription cannot be confirmed the hub delivers locally only.
func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}
	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx := context.Background()
	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		slog.Warn("stream: redis subscribe failed, delivering locally", "error", err)
		_ = pubsub.Close()
		close(h.done)
		return h
	}
	h.redis = redisClient
	h.pubsub = pubsub
	go h.forward()
	return h
}

func (h *Hub) Register(activityID string) *Client {
	client := &Client{
		ActivityID: activityID,
		Send:       make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[activityID] == nil {
		h.clients[activityID] = map[*Client]struct{}{}
	}
	h.clients[activityID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if activityClients, ok := h.clients[client.ActivityID]; ok {
		if _, ok := activityClients[client]; !ok {
			return
		}
		delete(activityClients, client)
		if len(activityClients) == 0 {
			delete(h.clients, client.ActivityID)
		}
		close(client.Send)
	}
}

// Subscribers returns how many local spectators follow activityID.
func (h *Hub) Subscribers(activityID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[activityID])
}

// Broadcast sends payload to every spectator of activityID. Slow spectators
// drop messages rather than block the sender.
func (h *Hub) Broadcast(activityID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(activityID), payload).Err()
		if err == nil {
			return
		}
		slog.Warn("stream: redis publish failed, delivering locally", "activity_id", activityID, "error", err)
	}
	h.deliver(activityID, payload)
}

func (h *Hub) deliver(activityID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[activityID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) forward() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		activityID := activityIDFromChannel(msg.Channel)
		if activityID == "" {
			continue
		}
		h.deliver(activityID, []byte(msg.Payload))
	}
}

// Close stops the Redis subscription.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	err := h.pubsub.Close()
	<-h.done
	return err
}

func redisChannel(activityID string) string {
	return "tracking:" + activityID + ":broadcast"
}

func activityIDFromChannel(ch string) string {
	// tracking:{activity}:broadcast
	const prefix = "tracking:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
