package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/coursedl-go/pkg/logger"
)

var logCategories = []logger.LogCategory{
	logger.CategoryQueue,
	logger.CategoryTask,
	logger.CategoryAPI,
	logger.CategoryError,
}

// LogHandler serves the per-category log files over the REST API.
type LogHandler struct {
	logReader *logger.LogReader
}

// NewLogHandler creates a new log handler
func NewLogHandler(logsDir string) *LogHandler {
	return &LogHandler{logReader: logger.NewLogReader(logsDir)}
}

func parseCategory(c *gin.Context) (logger.LogCategory, bool) {
	category := logger.LogCategory(c.Param("category"))
	for _, known := range logCategories {
		if category == known {
			return category, true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
	return "", false
}

func parseLimit(c *gin.Context, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		limit = 100
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

// parseDate reads an optional YYYY-MM-DD query param, defaulting to
// today. Writes a 400 response itself when the format is wrong.
func parseDate(c *gin.Context) (time.Time, bool) {
	dateStr := c.Query("date")
	if dateStr == "" {
		return time.Now(), true
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, use YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

// GetLogs handles GET /api/v1/logs/:category
func (h *LogHandler) GetLogs(c *gin.Context) {
	category, ok := parseCategory(c)
	if !ok {
		return
	}
	date, ok := parseDate(c)
	if !ok {
		return
	}
	limit := parseLimit(c, 1000)

	entries, err := h.logReader.ReadLogs(category, date, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"date":     date.Format("2006-01-02"),
		"count":    len(entries),
		"entries":  entries,
	})
}

// SearchLogs handles GET /api/v1/logs/:category/search
func (h *LogHandler) SearchLogs(c *gin.Context) {
	category, ok := parseCategory(c)
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	date, ok := parseDate(c)
	if !ok {
		return
	}
	limit := parseLimit(c, 0)

	entries, err := h.logReader.SearchLogs(category, date, query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"query":    query,
		"count":    len(entries),
		"entries":  entries,
	})
}

// GetCategories handles GET /api/v1/logs/categories
func (h *LogHandler) GetCategories(c *gin.Context) {
	names := make([]string, 0, len(logCategories))
	for _, category := range logCategories {
		names = append(names, string(category))
	}
	c.JSON(http.StatusOK, gin.H{"categories": names})
}

// ExportLogs handles GET /api/v1/logs/:category/export by streaming
// the raw log file as a download.
func (h *LogHandler) ExportLogs(c *gin.Context) {
	category, ok := parseCategory(c)
	if !ok {
		return
	}
	date, ok := parseDate(c)
	if !ok {
		return
	}

	filename := string(category) + "-" + date.Format("20060102") + ".log"
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/octet-stream")
	c.File(h.logReader.GetLogPath(category, date))
}
