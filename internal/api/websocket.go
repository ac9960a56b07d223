package api

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/thereceipt/label-dispatch/internal/printer"
)

// WebSocket message types
const (
	EventDispatch       = "dispatch"
	EventCommand        = "command"
	EventDispatchResult = "dispatch_result"
	EventUsbAttached    = "usb_attached"
	EventUsbDetached    = "usb_detached"
	EventResponse       = "response"
	EventError          = "error"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// Hub tracks connected clients for broadcasts
type Hub struct {
	mu      sync.RWMutex
	clients map[*WSClient]bool
	closed  bool
	log     logrus.FieldLogger
}

// NewHub creates an empty hub
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients: make(map[*WSClient]bool),
		log:     log,
	}
}

func (h *Hub) add(client *WSClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = true
	return true
}

func (h *Hub) remove(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. Clients with a full send buffer miss
// the message.
func (h *Hub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.log.Debug("websocket client send buffer full, skipping")
		}
	}
}

// Close disconnects every client and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	s.log.WithField("remote", conn.RemoteAddr().String()).Info("websocket client connected")

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			c.server.log.WithError(err).Debug("websocket write failed")
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.hub.remove(c)
		c.conn.Close()
		c.server.log.Info("websocket client disconnected")
	}()

	for {
		var msg WSMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.WithError(err).Warn("websocket read failed")
			}
			break
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *WSMessage) {
	switch msg.Event {
	case EventDispatch:
		c.handleDispatchEvent(msg.Data)
	case EventCommand:
		c.handleCommandEvent(msg.Data)
	default:
		c.sendError(fmt.Sprintf("unknown event: %s", msg.Event))
	}
}

func (c *WSClient) handleDispatchEvent(data map[string]interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.sendError(fmt.Sprintf("invalid dispatch request: %v", err))
		return
	}
	var req dispatchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError(fmt.Sprintf("invalid dispatch request: %v", err))
		return
	}

	_, body := c.server.dispatch(&req)
	c.sendResponse(body)
}

func (c *WSClient) handleCommandEvent(data map[string]interface{}) {
	cmd, ok := data["command"].(string)
	if !ok || cmd == "" {
		c.sendError("command is required")
		return
	}

	result := c.server.executor.Execute(cmd)
	response := map[string]interface{}{
		"success": result.Success,
	}
	if result.Message != "" {
		response["message"] = result.Message
	}
	if result.Error != "" {
		response["error"] = result.Error
	}
	for k, v := range result.Data {
		response[k] = v
	}
	c.sendResponse(response)
}

func (c *WSClient) sendResponse(data map[string]interface{}) {
	c.trySend(WSMessage{
		Event: EventResponse,
		Data:  data,
	})
}

func (c *WSClient) sendError(message string) {
	c.trySend(WSMessage{
		Event: EventError,
		Data: map[string]interface{}{
			"error": message,
		},
	})
}

// trySend drops msg once the hub has closed the client's send channel
func (c *WSClient) trySend(msg WSMessage) {
	c.server.hub.mu.RLock()
	defer c.server.hub.mu.RUnlock()
	if !c.server.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// BroadcastDispatch broadcasts a completed dispatch to all connected clients
func (s *Server) BroadcastDispatch(ev printer.Event) {
	s.hub.Broadcast(WSMessage{
		Event: EventDispatchResult,
		Data: map[string]interface{}{
			"transport":      ev.Transport.String(),
			"target":         ev.Target,
			"copies":         ev.Copies,
			"success":        ev.Result.Success,
			"message":        ev.Result.Message,
			"bytes_sent":     ev.Result.BytesSent,
			"bytes_received": ev.Result.BytesReceived,
			"duration_ms":    ev.Duration.Milliseconds(),
		},
	})
}

// BroadcastDevice broadcasts a USB attach or detach to all connected clients
func (s *Server) BroadcastDevice(ev printer.DeviceEvent) {
	event := EventUsbDetached
	if ev.Attached {
		event = EventUsbAttached
	}
	s.hub.Broadcast(WSMessage{
		Event: event,
		Data: map[string]interface{}{
			"vendor_id":     ev.Device.VendorID,
			"product_id":    ev.Device.ProductID,
			"serial_number": ev.Device.SerialNumber,
			"path":          ev.Device.Path,
		},
	})
}
