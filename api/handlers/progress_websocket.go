package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/coursedl-go/internal/domain"
	"go.uber.org/zap"
)

// progressMessage is the wire envelope for progress frames
type progressMessage struct {
	Type string      `json:"type"` // "task" or "item"
	Data interface{} `json:"data"`
}

// progressClient is one connected subscriber. An empty taskID subscribes
// to all tasks.
type progressClient struct {
	conn   *websocket.Conn
	taskID string
	mu     sync.Mutex
}

func (c *progressClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ProgressWebSocketHandler streams task and item progress snapshots to
// WebSocket subscribers. It implements domain.ProgressSink so the job
// runner can publish into it directly.
type ProgressWebSocketHandler struct {
	logger  *zap.Logger
	clients map[*progressClient]bool
	mu      sync.RWMutex
}

// NewProgressWebSocketHandler creates a new progress streaming handler
func NewProgressWebSocketHandler(log *zap.Logger) *ProgressWebSocketHandler {
	return &ProgressWebSocketHandler{
		logger:  log,
		clients: make(map[*progressClient]bool),
	}
}

// HandleWebSocket upgrades the connection and keeps it registered until
// the client disconnects. An optional task_id query narrows the stream
// to a single task.
func (h *ProgressWebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &progressClient{
		conn:   conn,
		taskID: c.Query("task_id"),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
	}()

	h.logger.Info("Progress WebSocket client connected",
		zap.String("task_id", client.taskID),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Read loop keeps the connection alive and detects disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			client.mu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			client.mu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// PublishTask broadcasts a task-level snapshot to matching subscribers
func (h *ProgressWebSocketHandler) PublishTask(snapshot domain.TaskSnapshot) {
	h.broadcast(snapshot.TaskID, progressMessage{Type: "task", Data: snapshot})
}

// PublishItem broadcasts an item-level snapshot to matching subscribers
func (h *ProgressWebSocketHandler) PublishItem(snapshot domain.ItemSnapshot) {
	h.broadcast(snapshot.TaskID, progressMessage{Type: "item", Data: snapshot})
}

func (h *ProgressWebSocketHandler) broadcast(taskID string, msg progressMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal progress snapshot", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.taskID != "" && client.taskID != taskID {
			continue
		}
		if err := client.send(data); err != nil {
			// Connection will be cleaned up by the handler goroutine
			h.logger.Debug("Failed to send progress snapshot", zap.Error(err))
		}
	}
}
