package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/coursedl-go/internal/app"
	"github.com/yourusername/coursedl-go/internal/domain"
	"go.uber.org/zap"
)

// TaskHandler handles course download task HTTP requests
type TaskHandler struct {
	queueMgr    *app.QueueManager
	items       domain.ItemRepository
	defaultRoot string
	logger      *zap.Logger
}

// NewTaskHandler creates a new task handler. defaultRoot is used when a
// request does not name a target directory.
func NewTaskHandler(queueMgr *app.QueueManager, items domain.ItemRepository, defaultRoot string, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		queueMgr:    queueMgr,
		items:       items,
		defaultRoot: defaultRoot,
		logger:      logger,
	}
}

// AddTaskRequest represents a request to queue a course download
type AddTaskRequest struct {
	CourseID       int64  `json:"course_id" binding:"required"`
	CourseTitle    string `json:"course_title,omitempty"`
	TargetRoot     string `json:"target_root,omitempty"`
	Type           *int   `json:"type,omitempty"`
	Quality        string `json:"quality,omitempty"`
	SubtitleLangs  string `json:"subtitle_langs,omitempty"`
	SkipSubtitles  bool   `json:"skip_subtitles,omitempty"`
	AllowEncrypted bool   `json:"allow_encrypted,omitempty"`
	RangeStart     int    `json:"range_start,omitempty"`
	RangeEnd       int    `json:"range_end,omitempty"`
	SeqZeroLeft    bool   `json:"seq_zero_left,omitempty"`
}

// AddTask handles POST /api/tasks
func (h *TaskHandler) AddTask(c *gin.Context) {
	var req AddTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	root := req.TargetRoot
	if root == "" {
		root = h.defaultRoot
	}

	task := domain.NewDownloadTask(req.CourseID, root)
	task.CourseTitle = req.CourseTitle
	if req.Type != nil {
		task.Type = domain.DownloadType(*req.Type)
	}
	if req.Quality != "" {
		task.Quality = req.Quality
	}
	task.SubtitleLangs = req.SubtitleLangs
	task.SkipSubtitles = req.SkipSubtitles
	task.AllowEncrypted = req.AllowEncrypted
	task.SeqZeroLeft = req.SeqZeroLeft
	if req.RangeStart > 0 || req.RangeEnd > 0 {
		task.RangeEnabled = true
		task.RangeStart = req.RangeStart
		if task.RangeStart == 0 {
			task.RangeStart = 1
		}
		task.RangeEnd = req.RangeEnd
	}

	if err := h.queueMgr.Enqueue(task); err != nil {
		h.logger.Error("Failed to enqueue task", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, task)
}

// GetTask handles GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id := c.Param("id")

	task, err := h.queueMgr.GetTask(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// ListTasks handles GET /api/tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	filters := make(map[string]interface{})

	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if courseID := c.Query("course_id"); courseID != "" {
		filters["course_id"] = courseID
	}

	tasks, err := h.queueMgr.ListTasks(filters)
	if err != nil {
		h.logger.Error("Failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// ListTaskItems handles GET /api/tasks/:id/items
func (h *TaskHandler) ListTaskItems(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.queueMgr.GetTask(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	items, err := h.items.FindByTask(id)
	if err != nil {
		h.logger.Error("Failed to list task items", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, items)
}

// GetStats handles GET /api/tasks/stats
func (h *TaskHandler) GetStats(c *gin.Context) {
	stats, err := h.queueMgr.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelTask handles POST /api/tasks/:id/cancel
func (h *TaskHandler) CancelTask(c *gin.Context) {
	id := c.Param("id")

	if err := h.queueMgr.CancelTask(id); err != nil {
		h.logger.Error("Failed to cancel task", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task cancelled"})
}

// RetryTask handles POST /api/tasks/:id/retry
func (h *TaskHandler) RetryTask(c *gin.Context) {
	id := c.Param("id")

	if err := h.queueMgr.RetryTask(id); err != nil {
		h.logger.Error("Failed to retry task", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task queued for retry"})
}
