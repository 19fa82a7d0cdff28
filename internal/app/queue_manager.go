package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/internal/infrastructure"
	"github.com/yourusername/coursedl-go/pkg/logger"
)

// QueueManager polls for pending download tasks and hands them to the
// job runner. Task-level parallelism is bounded by a semaphore of
// ConcurrentTasks; everything inside one task stays with the runner.
type QueueManager struct {
	tasks       domain.TaskRepository
	runner      *JobRunner
	notifier    *infrastructure.NotificationService
	config      *domain.QueueConfig
	multiLogger *logger.MultiLogger
	mu          sync.RWMutex
	running     bool
	inFlight    map[string]struct{}
	sem         chan struct{}
	stopChan    chan struct{}
	workerWg    sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	tasks domain.TaskRepository,
	runner *JobRunner,
	notifier *infrastructure.NotificationService,
	config *domain.QueueConfig,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	concurrent := config.ConcurrentTasks
	if concurrent < 1 {
		concurrent = 1
	}
	return &QueueManager{
		tasks:       tasks,
		runner:      runner,
		notifier:    notifier,
		config:      config,
		multiLogger: multiLogger,
		inFlight:    make(map[string]struct{}),
		sem:         make(chan struct{}, concurrent),
		stopChan:    make(chan struct{}),
	}
}

// Start starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	qm.mu.Unlock()

	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("queue_started")
	}

	qm.workerWg.Add(1)
	go qm.processQueue(ctx)

	return nil
}

// Stop stops the queue processor and waits for in-flight tasks
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	qm.mu.Unlock()

	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("queue_stopped")
	}
	close(qm.stopChan)
	qm.workerWg.Wait()

	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// Enqueue validates and persists a new download task
func (qm *QueueManager) Enqueue(task *domain.DownloadTask) error {
	if task.CourseID <= 0 {
		return fmt.Errorf("invalid course id: %d", task.CourseID)
	}
	if task.TargetRoot == "" {
		return fmt.Errorf("target root must be set")
	}
	if !domain.ValidateType(task.Type) {
		return fmt.Errorf("invalid download type: %d", task.Type)
	}
	if task.RangeEnabled && task.RangeStart < 1 {
		return fmt.Errorf("range start must be 1-based, got %d", task.RangeStart)
	}

	if err := qm.tasks.Create(task); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("task_added",
			zap.String("id", task.ID),
			zap.Int64("course_id", task.CourseID),
			zap.String("quality", task.Quality))
	}
	if qm.notifier != nil {
		qm.notifier.NotifyTaskQueued(task)
	}

	return nil
}

// GetTask retrieves a task by ID
func (qm *QueueManager) GetTask(id string) (*domain.DownloadTask, error) {
	return qm.tasks.FindByID(id)
}

// ListTasks lists tasks with optional filters
func (qm *QueueManager) ListTasks(filters map[string]interface{}) ([]*domain.DownloadTask, error) {
	return qm.tasks.FindAll(filters)
}

// CancelTask flips a non-terminal task to cancelled. The runner polls
// the persisted status between items and stops cooperatively.
func (qm *QueueManager) CancelTask(id string) error {
	task, err := qm.tasks.FindByID(id)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return fmt.Errorf("task %s already %s", id, task.Status)
	}

	task.MarkCancelled()
	if err := qm.tasks.Update(task); err != nil {
		return err
	}
	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("task_cancelled", zap.String("id", id))
	}
	return nil
}

// RetryTask re-queues a failed task for another attempt
func (qm *QueueManager) RetryTask(id string) error {
	task, err := qm.tasks.FindByID(id)
	if err != nil {
		return err
	}
	if !task.CanRetry(qm.config.TaskMaxRetries) {
		return fmt.Errorf("task %s cannot be retried (status %s, attempt %d)", id, task.Status, task.RetryCount)
	}

	task.Status = domain.TaskPending
	task.RetryCount++
	task.ErrorMessage = ""
	task.CompletedItems = 0
	task.FailedItems = 0
	task.DownloadedBytes = 0
	task.TotalBytes = 0
	if err := qm.tasks.Update(task); err != nil {
		return err
	}

	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("task_retried",
			zap.String("id", id),
			zap.Int("attempt", task.RetryCount))
	}
	return nil
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.TaskStats, error) {
	return qm.tasks.GetStats()
}

// processQueue polls for pending tasks and dispatches them
func (qm *QueueManager) processQueue(ctx context.Context) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if qm.multiLogger != nil {
				qm.multiLogger.LogQueueEvent("queue_processor_stopped",
					zap.String("reason", "context_cancelled"))
			}
			return
		case <-qm.stopChan:
			if qm.multiLogger != nil {
				qm.multiLogger.LogQueueEvent("queue_processor_stopped",
					zap.String("reason", "stop_signal"))
			}
			return
		case <-ticker.C:
			pending, err := qm.tasks.FindPending()
			if err != nil {
				if qm.multiLogger != nil {
					qm.multiLogger.LogAppError("Failed to fetch pending tasks", zap.Error(err))
				}
				continue
			}

			for _, task := range pending {
				qm.dispatch(ctx, task)
			}
		}
	}
}

// dispatch runs one task in its own goroutine, bounded by the task
// semaphore. Tasks already in flight are skipped so a slow poll cycle
// never starts a duplicate run.
func (qm *QueueManager) dispatch(ctx context.Context, task *domain.DownloadTask) {
	qm.mu.Lock()
	if _, busy := qm.inFlight[task.ID]; busy {
		qm.mu.Unlock()
		return
	}
	qm.inFlight[task.ID] = struct{}{}
	qm.mu.Unlock()

	qm.workerWg.Add(1)
	go func(task *domain.DownloadTask) {
		defer qm.workerWg.Done()
		defer func() {
			qm.mu.Lock()
			delete(qm.inFlight, task.ID)
			qm.mu.Unlock()
		}()

		select {
		case qm.sem <- struct{}{}:
			defer func() { <-qm.sem }()
		case <-ctx.Done():
			return
		case <-qm.stopChan:
			return
		}

		if qm.multiLogger != nil {
			qm.multiLogger.LogTaskEvent("task_started",
				zap.String("id", task.ID),
				zap.Int64("course_id", task.CourseID))
		}
		if qm.notifier != nil {
			qm.notifier.NotifyTaskStarted(task)
		}

		if err := qm.runner.Run(ctx, task); err != nil {
			if qm.multiLogger != nil {
				qm.multiLogger.LogTaskEvent("task_failed",
					zap.String("id", task.ID),
					zap.Error(err))
				qm.multiLogger.LogAppError("Failed to process task",
					zap.String("id", task.ID),
					zap.Error(err))
			}
			if qm.notifier != nil {
				qm.notifier.NotifyTaskFailed(task)
			}
			return
		}

		if qm.multiLogger != nil {
			qm.multiLogger.LogTaskEvent("task_finished",
				zap.String("id", task.ID),
				zap.String("status", string(task.Status)),
				zap.Int("completed", task.CompletedItems),
				zap.Int("failed", task.FailedItems))
		}
		if qm.notifier != nil && task.Status == domain.TaskCompleted {
			qm.notifier.NotifyTaskCompleted(task)
		}
	}(task)
}
