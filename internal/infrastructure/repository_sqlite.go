package infrastructure

import (
	"fmt"

	"github.com/yourusername/coursedl-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteTaskRepository implements TaskRepository using SQLite
type SQLiteTaskRepository struct {
	db *gorm.DB
}

// NewSQLiteTaskRepository creates a new SQLite repository
func NewSQLiteTaskRepository(dbPath string) (*SQLiteTaskRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate the schema for DownloadTask and WorkItem
	if err := db.AutoMigrate(&domain.DownloadTask{}, &domain.WorkItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteTaskRepository{db: db}, nil
}

// Create creates a new task
func (r *SQLiteTaskRepository) Create(task *domain.DownloadTask) error {
	return r.db.Create(task).Error
}

// Update updates an existing task
func (r *SQLiteTaskRepository) Update(task *domain.DownloadTask) error {
	return r.db.Save(task).Error
}

// Delete deletes a task and its items by ID
func (r *SQLiteTaskRepository) Delete(id string) error {
	if err := r.db.Delete(&domain.WorkItem{}, "task_id = ?", id).Error; err != nil {
		return err
	}
	return r.db.Delete(&domain.DownloadTask{}, "id = ?", id).Error
}

// FindByID finds a task by ID
func (r *SQLiteTaskRepository) FindByID(id string) (*domain.DownloadTask, error) {
	var task domain.DownloadTask
	err := r.db.First(&task, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByStatus finds tasks by status
func (r *SQLiteTaskRepository) FindByStatus(status domain.TaskStatus) ([]*domain.DownloadTask, error) {
	var tasks []*domain.DownloadTask
	err := r.db.Where("status = ?", status).Find(&tasks).Error
	return tasks, err
}

// FindPending finds all pending tasks ordered by creation time
func (r *SQLiteTaskRepository) FindPending() ([]*domain.DownloadTask, error) {
	var tasks []*domain.DownloadTask
	err := r.db.Where("status = ?", domain.TaskPending).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// FindAll finds all tasks with optional filters
func (r *SQLiteTaskRepository) FindAll(filters map[string]interface{}) ([]*domain.DownloadTask, error) {
	var tasks []*domain.DownloadTask
	query := r.db

	for key, value := range filters {
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// GetStats returns task statistics
func (r *SQLiteTaskRepository) GetStats() (*domain.TaskStats, error) {
	stats := &domain.TaskStats{}

	// Get total count
	if err := r.db.Model(&domain.DownloadTask{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	// Get counts by status
	statusCounts := []struct {
		Status domain.TaskStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.DownloadTask{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.TaskPending:
			stats.Pending = sc.Count
		case domain.TaskPreparing, domain.TaskDownloading:
			stats.Downloading += sc.Count
		case domain.TaskCompleted:
			stats.Completed = sc.Count
		case domain.TaskFailed:
			stats.Failed = sc.Count
		case domain.TaskCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteTaskRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// ItemRepository implementation
// ============================================================================

// SQLiteItemRepository implements ItemRepository over the same database
type SQLiteItemRepository struct {
	db *gorm.DB
}

// Items returns the work-item repository backed by the same connection
func (r *SQLiteTaskRepository) Items() *SQLiteItemRepository {
	return &SQLiteItemRepository{db: r.db}
}

// CreateBatch persists a planned batch of items, assigning positions so
// FindByTask can return them in planner order.
func (r *SQLiteItemRepository) CreateBatch(items []*domain.WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	for i, item := range items {
		item.Position = i
	}
	return r.db.Create(&items).Error
}

// Update updates a single item
func (r *SQLiteItemRepository) Update(item *domain.WorkItem) error {
	return r.db.Save(item).Error
}

// FindByTask returns all items of a task in planner order
func (r *SQLiteItemRepository) FindByTask(taskID string) ([]*domain.WorkItem, error) {
	var items []*domain.WorkItem
	err := r.db.Where("task_id = ?", taskID).
		Order("position ASC").
		Find(&items).Error
	return items, err
}

// DeleteByTask removes all items of a task
func (r *SQLiteItemRepository) DeleteByTask(taskID string) error {
	return r.db.Delete(&domain.WorkItem{}, "task_id = ?", taskID).Error
}
