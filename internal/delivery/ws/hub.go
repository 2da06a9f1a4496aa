package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/ports"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// client serializes writes, a gorilla connection allows one writer.
type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// Hub groups websocket connections into rooms keyed by job id. mu guards
// the room maps only, network writes happen outside it.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*websocket.Conn]*client
	log   *logger.ZapLogger
}

func NewHub(log *logger.ZapLogger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*websocket.Conn]*client),
		log:   log,
	}
}

func (h *Hub) Register(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[roomID][conn] = &client{conn: conn}

	h.debug("[HUB][REGISTER]", roomID, len(h.rooms[roomID]))
}

func (h *Hub) Unregister(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[roomID]
	if !ok {
		return
	}

	if _, ok := conns[conn]; ok {
		delete(conns, conn)
		conn.Close()
	}
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	}

	h.debug("[HUB][UNREGISTER]", roomID, len(conns))
}

// Rooms reports how many connections each room holds.
func (h *Hub) Rooms() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int, len(h.rooms))
	for id, conns := range h.rooms {
		out[id] = len(conns)
	}
	return out
}

func (h *Hub) SendToRoom(roomID string, msg []byte) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.write(roomID, c, msg)
	}
}

// SendTo writes to a single registered connection.
func (h *Hub) SendTo(roomID string, conn *websocket.Conn, msg []byte) {
	h.mu.Lock()
	c, ok := h.rooms[roomID][conn]
	h.mu.Unlock()

	if ok {
		h.write(roomID, c, msg)
	}
}

// Forward relays job events to the room of their job until ctx ends or
// events is closed.
func (h *Hub) Forward(ctx context.Context, events <-chan ports.JobEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.Log(logger.LogEntry{
					Level:   "error",
					Message: "[HUB][SEND][ERR] json marshal failed",
					Error:   err,
				})
				continue
			}
			h.SendToRoom(ev.JobID, payload)
		}
	}
}

func (h *Hub) write(roomID string, c *client, msg []byte) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.log.Log(logger.LogEntry{
			Level:   "error",
			Message: "[HUB][SEND][ERR]",
			Fields:  map[string]any{"room": roomID},
			Error:   err,
		})
	}
}

func (h *Hub) debug(msg, roomID string, conns int) {
	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: msg,
		Fields:  map[string]any{"room": roomID, "conns": conns},
	})
}

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
