package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"chat-hub/internal/models"
)

// ErrConnectionGone signals a push to a handle with no live socket.
// Fanout reacts by pruning the directory row for that handle.
var ErrConnectionGone = errors.New("connection gone")

// Pusher delivers one serialized event to one connection handle.
type Pusher interface {
	Push(handle string, event models.PushEvent) error
}

// Gateway tracks the live sockets of this process, keyed by connection
// handle. It is the in-process side of the connection directory: the
// directory row is durable, the socket lives here.
type Gateway struct {
	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewGateway creates an empty gateway.
func NewGateway() *Gateway {
	return &Gateway{clients: make(map[string]*client)}
}

// Add registers a socket under its handle.
func (g *Gateway) Add(handle string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[handle] = &client{conn: conn}
}

// Remove forgets a handle. The socket is not closed here; the read
// loop owns the close.
func (g *Gateway) Remove(handle string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, handle)
}

// Len reports the number of live sockets.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Push writes one event to one handle. An unknown handle or a failed
// write reports ErrConnectionGone so the caller can prune the
// directory; the broken socket is closed and dropped.
func (g *Gateway) Push(handle string, event models.PushEvent) error {
	g.mu.RLock()
	c, ok := g.clients[handle]
	g.mu.RUnlock()
	if !ok {
		return ErrConnectionGone
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.mu.Unlock()
	if err != nil {
		c.conn.Close()
		g.Remove(handle)
		return errors.Join(ErrConnectionGone, err)
	}
	return nil
}
