package handlers

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"fotacos/internal/models"
	"fotacos/internal/utils"
)

const (
	writeTimeout = 10 * time.Second
	// clientBuffer is how many events may wait for a slow client before
	// it is disconnected.
	clientBuffer = 16
)

// Conn is the part of a websocket connection the hub uses.
type Conn interface {
	utils.JSONWriter
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client owns one connection. Only its writer goroutine writes to conn.
type client struct {
	id      string
	conn    Conn
	send    chan interface{}
	done    chan struct{}
	dropped bool
}

// EventHub fans photo events out to every connected websocket client.
// Publishing never waits on the network.
type EventHub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
}

func NewEventHub(log *zap.Logger) *EventHub {
	return &EventHub{
		log:     log,
		clients: make(map[string]*client),
	}
}

// Register starts the writer for c. The connection must be unregistered
// before it is released.
func (h *EventHub) Register(connID string, c Conn) {
	cl := &client{
		id:   connID,
		conn: c,
		send: make(chan interface{}, clientBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	prev := h.clients[connID]
	h.clients[connID] = cl
	h.mu.Unlock()

	if prev != nil {
		h.stop(prev)
	}
	go h.writeLoop(cl)
}

// Unregister removes the connection and waits until its writer has exited.
func (h *EventHub) Unregister(connID string) {
	h.mu.Lock()
	cl, ok := h.clients[connID]
	delete(h.clients, connID)
	h.mu.Unlock()

	if ok {
		h.stop(cl)
	}
}

// Send queues payload for a single connection.
func (h *EventHub) Send(connID string, payload interface{}) {
	h.mu.Lock()
	cl, ok := h.clients[connID]
	var slow []*client
	if ok && !h.enqueue(cl, payload) {
		slow = append(slow, cl)
	}
	h.mu.Unlock()

	h.disconnect(slow)
}

// Broadcast queues payload for every connection. Clients whose queue is
// full are disconnected; their read loop then unregisters them.
func (h *EventHub) Broadcast(payload interface{}) {
	h.mu.Lock()
	var slow []*client
	for _, cl := range h.clients {
		if !h.enqueue(cl, payload) {
			slow = append(slow, cl)
		}
	}
	h.mu.Unlock()

	h.disconnect(slow)
}

// Publish is the photo service observer.
func (h *EventHub) Publish(event models.PhotoEvent) {
	h.Broadcast(event)
}

// enqueue reports false when cl could not keep up and was dropped.
// h.mu must be held.
func (h *EventHub) enqueue(cl *client, payload interface{}) bool {
	if cl.dropped {
		return true
	}
	select {
	case cl.send <- payload:
		return true
	default:
		cl.dropped = true
		close(cl.send)
		return false
	}
}

// disconnect closes the connections of dropped clients, which unblocks a
// writer stuck on the network and ends the read loop.
func (h *EventHub) disconnect(slow []*client) {
	for _, cl := range slow {
		h.log.Warn("dropping slow websocket client", zap.String("conn", cl.id))
		_ = cl.conn.Close()
	}
}

func (h *EventHub) stop(cl *client) {
	h.mu.Lock()
	if !cl.dropped {
		cl.dropped = true
		close(cl.send)
	}
	h.mu.Unlock()
	<-cl.done
}

func (h *EventHub) writeLoop(cl *client) {
	defer close(cl.done)
	for payload := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := utils.SendJSON(cl.conn, payload); err != nil {
			h.log.Debug("websocket write failed", zap.String("conn", cl.id), zap.Error(err))
		}
	}
}
