package domain

// TaskRepository defines the interface for task persistence
type TaskRepository interface {
	// Create creates a new task
	Create(task *DownloadTask) error

	// Update updates an existing task
	Update(task *DownloadTask) error

	// Delete deletes a task by ID
	Delete(id string) error

	// FindByID finds a task by ID
	FindByID(id string) (*DownloadTask, error)

	// FindByStatus finds tasks by status
	FindByStatus(status TaskStatus) ([]*DownloadTask, error)

	// FindPending finds all pending tasks ordered by creation time
	FindPending() ([]*DownloadTask, error)

	// FindAll finds all tasks with optional filters
	FindAll(filters map[string]interface{}) ([]*DownloadTask, error)

	// GetStats returns task statistics
	GetStats() (*TaskStats, error)
}

// ItemRepository defines the interface for work item persistence
type ItemRepository interface {
	// CreateBatch persists a planned batch of items
	CreateBatch(items []*WorkItem) error

	// Update updates a single item
	Update(item *WorkItem) error

	// FindByTask returns all items of a task in planner order
	FindByTask(taskID string) ([]*WorkItem, error)

	// DeleteByTask removes all items of a task
	DeleteByTask(taskID string) error
}

// TaskStats represents task statistics
type TaskStats struct {
	Total       int64 `json:"total"`
	Pending     int64 `json:"pending"`
	Downloading int64 `json:"downloading"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Cancelled   int64 `json:"cancelled"`
}
