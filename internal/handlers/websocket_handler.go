package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/goldengai/venuesync/internal/services"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024

	// streamBuffer is how many states a slow client may lag behind
	streamBuffer = 16
)

// WSTypeSyncState tags a SyncState message on the event stream
const WSTypeSyncState = "sync_state"

// WSMessage is the envelope written to stream clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API binds to loopback by default
		return true
	},
}

// WebSocketHandler streams SyncState changes to connected clients
type WebSocketHandler struct {
	sync *services.SyncService
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(sync *services.SyncService) *WebSocketHandler {
	return &WebSocketHandler{sync: sync}
}

// HandleConnection upgrades to a websocket and pushes every published state.
// The current state is sent first.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	states, cancel := h.sync.Subscribe(streamBuffer)
	client := &streamClient{
		id:     uuid.New().String(),
		conn:   conn,
		states: states,
		cancel: cancel,
	}

	observability.WithField("client_id", client.id).Debugf("Sync stream connected")

	go client.WritePump(h.sync.State())
	client.ReadPump()
}

// streamClient is one websocket subscriber of the sync event feed
type streamClient struct {
	id         string
	conn       *websocket.Conn
	states     <-chan models.SyncState
	cancel     func()
	mu         sync.Mutex
	closedOnce sync.Once
}

// Close unsubscribes and closes the connection once
func (c *streamClient) Close() {
	c.closedOnce.Do(func() {
		c.cancel()
		c.conn.Close()
		observability.WithField("client_id", c.id).Debugf("Sync stream closed")
	})
}

func (c *streamClient) write(state models.SyncState) error {
	data, err := json.Marshal(WSMessage{Type: WSTypeSyncState, Payload: stateResponse(state)})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WritePump sends initial and then every published state, pinging in between
func (c *streamClient) WritePump(initial models.SyncState) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	if err := c.write(initial); err != nil {
		return
	}

	for {
		select {
		case state, ok := <-c.states:
			if !ok {
				c.mu.Lock()
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			if err := c.write(state); err != nil {
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ReadPump drains client frames so pongs and close frames are processed
func (c *streamClient) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.WithField("client_id", c.id).WithError(err).Warn("WebSocket error")
			}
			return
		}
	}
}
