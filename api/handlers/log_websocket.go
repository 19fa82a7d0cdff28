package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// backlog sent to a freshly connected client before live tailing starts
const logBacklogSize = 50

// LogWebSocketHandler streams a category log file to WebSocket clients
// in real time.
type LogWebSocketHandler struct {
	logReader *logger.LogReader
	logger    *zap.Logger
}

// NewLogWebSocketHandler creates a new WebSocket handler
func NewLogWebSocketHandler(logsDir string, log *zap.Logger) *LogWebSocketHandler {
	return &LogWebSocketHandler{
		logReader: logger.NewLogReader(logsDir),
		logger:    log,
	}
}

// HandleWebSocket handles GET /ws/logs?category=... Each connection
// gets its own tail goroutine, stopped when the client disconnects.
func (h *LogWebSocketHandler) HandleWebSocket(c *gin.Context) {
	category := logger.LogCategory(c.DefaultQuery("category", string(logger.CategoryTask)))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("Log stream client connected",
		zap.String("category", string(category)),
		zap.String("remote_addr", c.Request.RemoteAddr))

	if err := h.sendBacklog(conn, category); err != nil {
		return
	}

	entryChan := make(chan logger.LogEntry, 100)
	stopChan := make(chan struct{})
	defer close(stopChan)

	go func() {
		if err := h.logReader.TailLogs(category, entryChan, stopChan); err != nil {
			h.logger.Error("Log tailing error", zap.Error(err))
		}
	}()

	// Drain client frames so close messages are noticed
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
		case entry := <-entryChan:
			if err := writeEntry(conn, entry); err != nil {
				h.logger.Error("Failed to send log entry", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// sendBacklog pushes the most recent entries from today's log so the
// client has context before the live tail begins.
func (h *LogWebSocketHandler) sendBacklog(conn *websocket.Conn, category logger.LogCategory) error {
	entries, err := h.logReader.ReadTodayLogs(category, logBacklogSize)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if err := writeEntry(conn, entry); err != nil {
			h.logger.Error("Failed to send initial logs", zap.Error(err))
			return err
		}
	}
	return nil
}

func writeEntry(conn *websocket.Conn, entry logger.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
