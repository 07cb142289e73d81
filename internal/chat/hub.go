package chat

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const eventsChannel = "chat-events"

// envelope is the wire form published to Redis so every instance can route
// a stored message to its own sockets.
type envelope struct {
	RoomID  int64           `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks live websocket clients per room and bridges instances over
// Redis pub/sub. All state is confined to the Run goroutine; other
// goroutines talk to it through channels.
type Hub struct {
	clients    map[int64]map[*Client]bool // roomID -> clients
	broadcast  chan envelope              // from Redis -> clients
	Register   chan *Client
	Unregister chan *Client
	redis      *redis.Client
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		broadcast:  make(chan envelope),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		redis:      redisClient,
	}
}

// BroadcastMessage publishes a stored message to every instance's hub.
// Best-effort: a publish failure is logged, not surfaced, because the
// message is already persisted.
func (h *Hub) BroadcastMessage(msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("failed to marshal chat event")
		return
	}
	data, _ := json.Marshal(envelope{RoomID: msg.RoomID, Payload: payload})
	if err := h.redis.Publish(context.Background(), eventsChannel, data).Err(); err != nil {
		log.WithError(err).Warn("failed to publish chat event")
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			room := h.clients[client.roomID]
			if room == nil {
				room = make(map[*Client]bool)
				h.clients[client.roomID] = room
			}
			room[client] = true

		case client := <-h.Unregister:
			if room, ok := h.clients[client.roomID]; ok {
				if _, ok := room[client]; ok {
					delete(room, client)
					close(client.send)
					if len(room) == 0 {
						delete(h.clients, client.roomID)
					}
				}
			}

		case ev := <-h.broadcast:
			for client := range h.clients[ev.RoomID] {
				select {
				case client.send <- ev.Payload:
				default:
					// Slow consumer: drop it rather than stall the room.
					close(client.send)
					delete(h.clients[ev.RoomID], client)
				}
			}
		}
	}
}

// SubscribeToRedis feeds events published by any instance into this hub.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var ev envelope
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.WithError(err).Warn("discarding malformed chat event")
			continue
		}
		h.broadcast <- ev
	}
}
