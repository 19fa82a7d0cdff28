package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current status of a course download task
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskPreparing   TaskStatus = "preparing"
	TaskDownloading TaskStatus = "downloading"
	TaskPaused      TaskStatus = "paused"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskCancelled   TaskStatus = "cancelled"
)

// ItemStatus represents the status of a single work item
type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemDownloading ItemStatus = "downloading"
	ItemCompleted   ItemStatus = "completed"
	ItemFailed      ItemStatus = "failed"
	ItemSkipped     ItemStatus = "skipped"
)

// ItemKind classifies what a work item downloads
type ItemKind string

const (
	KindVideo      ItemKind = "video"
	KindArticle    ItemKind = "article"
	KindAttachment ItemKind = "attachment"
	KindSubtitle   ItemKind = "subtitle"
	KindRedirect   ItemKind = "redirect"
)

// DownloadType filters which item kinds a task downloads
type DownloadType int

const (
	DownloadBoth DownloadType = iota
	DownloadVideosOnly
	DownloadAttachmentsOnly
)

// QualityAuto and friends are the non-numeric quality preferences.
// Anything else is interpreted as a numeric target (e.g. "720").
const (
	QualityAuto    = "Auto"
	QualityHighest = "Highest"
	QualityLowest  = "Lowest"
)

// DownloadTask is one course-download request: immutable configuration
// plus mutable run state owned by the job runner for its lifetime.
type DownloadTask struct {
	ID          string `json:"id" gorm:"primaryKey"`
	CourseID    int64  `json:"course_id" gorm:"not null;index"`
	CourseTitle string `json:"course_title"`

	// Configuration
	TargetRoot     string       `json:"target_root" gorm:"not null"`
	Type           DownloadType `json:"type" gorm:"default:0"`
	Quality        string       `json:"quality" gorm:"default:Auto"`
	SubtitleLangs  string       `json:"subtitle_langs,omitempty"` // pipe-separated, empty = any
	SkipSubtitles  bool         `json:"skip_subtitles"`
	AllowEncrypted bool         `json:"allow_encrypted"`
	RangeEnabled   bool         `json:"range_enabled"`
	RangeStart     int          `json:"range_start"` // 1-based inclusive
	RangeEnd       int          `json:"range_end"`   // 0 = open-ended
	SeqZeroLeft    bool         `json:"seq_zero_left"`

	// Run state
	Status          TaskStatus `json:"status" gorm:"not null;index"`
	TotalItems      int        `json:"total_items"`
	CompletedItems  int        `json:"completed_items"`
	FailedItems     int        `json:"failed_items"`
	TotalBytes      int64      `json:"total_bytes"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	SpeedBps        float64    `json:"speed_bps"`
	ETASeconds      float64    `json:"eta_seconds"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	RetryCount      int        `json:"retry_count" gorm:"default:0"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewDownloadTask creates a pending task for a course
func NewDownloadTask(courseID int64, targetRoot string) *DownloadTask {
	return &DownloadTask{
		ID:         uuid.New().String(),
		CourseID:   courseID,
		TargetRoot: targetRoot,
		Quality:    QualityAuto,
		Status:     TaskPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// MarkPreparing transitions the task into curriculum-fetch/planning
func (t *DownloadTask) MarkPreparing() {
	t.Status = TaskPreparing
	now := time.Now()
	t.StartedAt = &now
	t.UpdatedAt = now
}

// MarkDownloading transitions the task into item execution
func (t *DownloadTask) MarkDownloading(totalItems int) {
	t.Status = TaskDownloading
	t.TotalItems = totalItems
	t.UpdatedAt = time.Now()
}

// MarkCompleted finishes the task. A task completes even with failed
// items; FailedItems carries the signal.
func (t *DownloadTask) MarkCompleted() {
	t.Status = TaskCompleted
	now := time.Now()
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// MarkFailed records a task-level failure
func (t *DownloadTask) MarkFailed(err error) {
	t.Status = TaskFailed
	if err != nil {
		t.ErrorMessage = err.Error()
	}
	t.UpdatedAt = time.Now()
}

// MarkCancelled records an external cancellation
func (t *DownloadTask) MarkCancelled() {
	t.Status = TaskCancelled
	t.UpdatedAt = time.Now()
}

// IsTerminal checks if the task is in a terminal state
func (t *DownloadTask) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskCancelled || t.Status == TaskFailed
}

// CanRetry checks whether a failed task may be re-queued
func (t *DownloadTask) CanRetry(maxRetries int) bool {
	return t.Status == TaskFailed && t.RetryCount < maxRetries
}

// ValidateType checks if a download type is valid
func ValidateType(t DownloadType) bool {
	return t == DownloadBoth || t == DownloadVideosOnly || t == DownloadAttachmentsOnly
}

// WorkItem is one concrete unit of download work derived from a
// curriculum node. Items are created in bulk by the planner and mutated
// only by the component executing them.
type WorkItem struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	TaskID       string     `json:"task_id" gorm:"not null;index"`
	Position     int        `json:"position" gorm:"not null;default:0"`
	Kind         ItemKind   `json:"kind" gorm:"not null"`
	Title        string     `json:"title"`
	SourceURL    string     `json:"source_url,omitempty"` // URL, or inline HTML for article/redirect
	TargetPath   string     `json:"target_path" gorm:"not null"`
	Quality      string     `json:"quality,omitempty"`
	Format       string     `json:"format,omitempty"`
	IsEncrypted  bool       `json:"is_encrypted"`
	Status       ItemStatus `json:"status" gorm:"not null;index"`
	TotalBytes   int64      `json:"total_bytes"`
	Downloaded   int64      `json:"downloaded_bytes"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewWorkItem creates a pending work item bound to a task
func NewWorkItem(taskID string, kind ItemKind, title, sourceURL, targetPath string) *WorkItem {
	return &WorkItem{
		ID:         uuid.New().String(),
		TaskID:     taskID,
		Kind:       kind,
		Title:      title,
		SourceURL:  sourceURL,
		TargetPath: targetPath,
		Status:     ItemPending,
		CreatedAt:  time.Now(),
	}
}

// MarkDownloading marks the item as in flight
func (i *WorkItem) MarkDownloading() {
	i.Status = ItemDownloading
	now := time.Now()
	i.StartedAt = &now
}

// MarkCompleted marks the item as done
func (i *WorkItem) MarkCompleted() {
	i.Status = ItemCompleted
	now := time.Now()
	i.CompletedAt = &now
}

// MarkFailed records an item-level failure; it never aborts the task
func (i *WorkItem) MarkFailed(err error) {
	i.Status = ItemFailed
	if err != nil {
		i.ErrorMessage = err.Error()
	}
}

// TaskSnapshot is the task-level progress shape consumed by the
// notification layer.
type TaskSnapshot struct {
	TaskID          string     `json:"task_id"`
	Status          TaskStatus `json:"status"`
	TotalItems      int        `json:"total_items"`
	CompletedItems  int        `json:"completed_items"`
	FailedItems     int        `json:"failed_items"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	TotalBytes      int64      `json:"total_bytes"`
	Percentage      float64    `json:"percentage"`
	SpeedBps        float64    `json:"speed_bps"`
	ETASeconds      float64    `json:"eta_seconds"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// ItemSnapshot is the per-item progress shape consumed by the
// notification layer.
type ItemSnapshot struct {
	ItemID          string     `json:"item_id"`
	TaskID          string     `json:"task_id"`
	Status          ItemStatus `json:"status"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	TotalBytes      int64      `json:"total_bytes"`
	Percentage      float64    `json:"percentage"`
	SpeedBps        float64    `json:"speed_bps"`
	ETASeconds      float64    `json:"eta_seconds"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}
