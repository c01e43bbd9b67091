// Package ws streams published SLAM state to websocket clients as JSON.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/pkg/errors"
)

// writeWait is the time allowed to write a message to a client
const writeWait = time.Second

// Message types
const (
	TypePose      = "pose"
	TypeLandmarks = "landmarks"
	TypeTransform = "transform"
)

// Message is a single streamed record.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Transform is the streamed form of a stamped transform.
type Transform struct {
	Header       slam.Header `json:"header"`
	ChildFrameID string      `json:"child_frame_id"`
	Translation  [3]float64  `json:"translation"`
	Rotation     [4]float64  `json:"rotation"`
}

// Hub is a slam.Sink which broadcasts every record to connected clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   golog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	seq     uint64
}

// NewHub creates new Hub and returns it.
func NewHub(logger golog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	h.logger.Debugw("client connected", "remote", r.RemoteAddr)

	// clients never send anything; reading detects disconnects
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}

	return nil
}

// SendTransform broadcasts tf.
func (h *Hub) SendTransform(tf geom.StampedTransform) error {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	q := tf.Rotation
	return h.broadcast(Message{Type: TypeTransform, Data: Transform{
		Header:       slam.Header{Seq: seq, Stamp: tf.Stamp, FrameID: tf.FrameID},
		ChildFrameID: tf.ChildFrameID,
		Translation:  [3]float64{tf.Origin.X, tf.Origin.Y, tf.Origin.Z},
		Rotation:     [4]float64{q.X, q.Y, q.Z, q.W},
	}})
}

// PublishPose broadcasts p.
func (h *Hub) PublishPose(p slam.PoseRecord) error {
	return h.broadcast(Message{Type: TypePose, Data: p})
}

// PublishLandmarks broadcasts l.
func (h *Hub) PublishLandmarks(l slam.LandmarkArray) error {
	return h.broadcast(Message{Type: TypeLandmarks, Data: l})
}

func (h *Hub) broadcast(m Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var failed int
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			h.logger.Debugw("dropping client", "remote", conn.RemoteAddr(), "error", err.Error())
			conn.Close()
			delete(h.clients, conn)
			failed++
		}
	}

	if failed > 0 {
		return errors.Errorf("failed to send %s to %d clients", m.Type, failed)
	}

	return nil
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[conn] {
		conn.Close()
		delete(h.clients, conn)
	}
}
