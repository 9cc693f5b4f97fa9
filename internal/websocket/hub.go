package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/isurunuwanthilaka/isuma.ai/internal/middleware"
	"github.com/isurunuwanthilaka/isuma.ai/internal/services"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriber delivers raw live-feed payloads for one session until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID) <-chan []byte
}

type tokenParser interface {
	ParseToken(tokenStr string) (*middleware.Claims, error)
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans live proctoring updates for a session out to every reviewer watching it.
type Hub struct {
	mu          sync.RWMutex
	clients     map[uuid.UUID][]*client
	cancelFuncs map[uuid.UUID]context.CancelFunc
	subscriber  Subscriber
	auth        tokenParser
	roles       []string
}

func NewHub(subscriber Subscriber, auth tokenParser, roles ...string) *Hub {
	return &Hub{
		clients:     make(map[uuid.UUID][]*client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		subscriber:  subscriber,
		auth:        auth,
		roles:       roles,
	}
}

func (h *Hub) roleAllowed(role string) bool {
	if len(h.roles) == 0 {
		return true
	}
	for _, r := range h.roles {
		if r == role {
			return true
		}
	}
	return false
}

// HandleWebSocket serves GET /review/ws?token=...&session=...
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	claims, err := h.auth.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.roleAllowed(claims.Role) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	sessionID, err := uuid.Parse(r.URL.Query().Get("session"))
	if err != nil {
		http.Error(w, "Invalid session", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.register(sessionID, c)
	log.Info().Str("session_id", sessionID.String()).Str("reviewer_id", claims.UserID.String()).Msg("reviewer connected")

	go func() {
		defer h.unregister(sessionID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) register(sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[sessionID] = append(h.clients[sessionID], c)

	// First watcher of this session starts the subscription
	if len(h.clients[sessionID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.forward(ctx, sessionID)
	}
}

func (h *Hub) unregister(sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	clients := h.clients[sessionID]
	for i, existing := range clients {
		if existing == c {
			h.clients[sessionID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}

	if len(h.clients[sessionID]) == 0 {
		delete(h.clients, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}
}

func (h *Hub) forward(ctx context.Context, sessionID uuid.UUID) {
	ch := h.subscriber.Subscribe(ctx, sessionID)
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, data)
		}
	}
}

func (h *Hub) broadcast(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := append([]*client(nil), h.clients[sessionID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("websocket write failed")
		}
	}
}

// SendToSession sends a message directly to the session's watchers, bypassing pub/sub.
func (h *Hub) SendToSession(sessionID uuid.UUID, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(sessionID, data)
}

// Watchers reports how many reviewers are connected to a session.
func (h *Hub) Watchers(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// RedisSubscriber reads a session's live channel from redis pub/sub.
type RedisSubscriber struct {
	redis *redis.Client
}

func NewRedisSubscriber(redisClient *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{redis: redisClient}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, sessionID uuid.UUID) <-chan []byte {
	out := make(chan []byte)
	pubsub := s.redis.Subscribe(ctx, services.SessionChannel(sessionID))

	go func() {
		defer close(out)
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
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
