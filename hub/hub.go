// Package hub fans game events out to websocket clients, one room per
// session.
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Seednode/whosaidit/games/things"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 16
)

// Message is the frame written to clients.
type Message struct {
	Type    string       `json:"type"`
	Payload things.Event `json:"payload"`
}

type client struct {
	conn    *websocket.Conn
	send    chan Message
	session string
}

// Hub tracks the websocket clients of every session. Rooms are created on
// first subscription and dropped when their last client leaves.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*client]bool
	log   zerolog.Logger

	upgrader websocket.Upgrader
}

// New returns an empty Hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]bool),
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Publish queues events for every client in the session's room. It never
// blocks: a client whose buffer is full is disconnected and is expected to
// resync when it reconnects.
func (h *Hub) Publish(sessionID string, events ...things.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[sessionID]
	if len(room) == 0 {
		return
	}

	for _, ev := range events {
		msg := Message{Type: ev.Name(), Payload: ev}
		for c := range room {
			select {
			case c.send <- msg:
			default:
				h.log.Debug().Str("session", sessionID).Msg("dropping slow websocket client")
				h.removeLocked(c)
			}
		}
	}
}

// ServeWS upgrades the request and subscribes the connection to sessionID
// until either side closes it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		conn:    conn,
		send:    make(chan Message, sendBuffer),
		session: sessionID,
	}
	h.register(c)

	go c.writePump()
	c.readPump(h)

	return nil
}

// Clients returns the number of clients subscribed to sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms[sessionID])
}

// Rooms returns the number of sessions with at least one client.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range h.rooms {
		for c := range room {
			h.removeLocked(c)
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.session]
	if !ok {
		room = make(map[*client]bool)
		h.rooms[c.session] = room
	}
	room[c] = true

	h.log.Debug().Str("session", c.session).Int("clients", len(room)).Msg("websocket client joined")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c)
}

// removeLocked assumes h.mu is already held.
func (h *Hub) removeLocked(c *client) {
	room, ok := h.rooms[c.session]
	if !ok || !room[c] {
		return
	}

	delete(room, c)
	close(c.send)

	if len(room) == 0 {
		delete(h.rooms, c.session)
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients have nothing to say; reading only services control frames
	// and notices the disconnect.
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ things.Broadcaster = (*Hub)(nil)
