package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/internal/infrastructure"
)

// JobRunner drives one download task end to end: fetch the curriculum,
// plan the work items, then execute them in planner order through the
// engine, the HLS assembler and the subtitle transcoder. Item failures
// never abort the task; the failed counter carries the signal and the
// task still completes.
type JobRunner struct {
	catalog   domain.CurriculumFetcher
	planner   *Planner
	engine    *infrastructure.Engine
	assembler *infrastructure.HLSAssembler
	resolver  *infrastructure.StreamResolver
	tasks     domain.TaskRepository
	items     domain.ItemRepository
	progress  domain.ProgressSink
	logger    *zap.Logger
}

// NewJobRunner creates a job runner
func NewJobRunner(
	catalog domain.CurriculumFetcher,
	planner *Planner,
	engine *infrastructure.Engine,
	assembler *infrastructure.HLSAssembler,
	resolver *infrastructure.StreamResolver,
	tasks domain.TaskRepository,
	items domain.ItemRepository,
	progress domain.ProgressSink,
	logger *zap.Logger,
) *JobRunner {
	if progress == nil {
		progress = domain.NopProgressSink{}
	}
	return &JobRunner{
		catalog:   catalog,
		planner:   planner,
		engine:    engine,
		assembler: assembler,
		resolver:  resolver,
		tasks:     tasks,
		items:     items,
		progress:  progress,
		logger:    logger,
	}
}

// Run executes the task until completion, cancellation or a task-level
// failure. The error return reports task-level failures only.
func (r *JobRunner) Run(ctx context.Context, task *domain.DownloadTask) error {
	r.logger.Info("Starting download task",
		zap.String("task_id", task.ID),
		zap.Int64("course_id", task.CourseID))

	task.MarkPreparing()
	r.saveTask(task)

	nodes, err := r.catalog.FetchCurriculum(ctx, task.CourseID)
	if err != nil {
		return r.failTask(task, fmt.Errorf("curriculum fetch failed: %w", err))
	}

	plan, err := r.planner.Plan(task, task.CourseTitle, nodes)
	if err != nil {
		return r.failTask(task, err)
	}

	if err := r.items.CreateBatch(plan); err != nil {
		return r.failTask(task, fmt.Errorf("persisting plan failed: %w", err))
	}

	task.MarkDownloading(len(plan))
	r.saveTask(task)

	start := time.Now()
	for _, item := range plan {
		if r.cancelled(ctx, task) {
			task.MarkCancelled()
			r.saveTask(task)
			r.logger.Info("Task cancelled", zap.String("task_id", task.ID))
			return nil
		}

		r.executeItem(ctx, task, item)

		if item.Status == domain.ItemCompleted {
			task.CompletedItems++
		} else {
			task.FailedItems++
		}
		task.DownloadedBytes += item.Downloaded
		task.TotalBytes += item.TotalBytes

		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			task.SpeedBps = float64(task.DownloadedBytes) / elapsed
		}
		if task.SpeedBps > 0 && task.TotalBytes > task.DownloadedBytes {
			task.ETASeconds = float64(task.TotalBytes-task.DownloadedBytes) / task.SpeedBps
		} else {
			task.ETASeconds = 0
		}
		r.saveTask(task)
	}

	task.MarkCompleted()
	r.saveTask(task)

	if task.FailedItems > 0 {
		r.logger.Warn("Task completed with failed items",
			zap.String("task_id", task.ID),
			zap.Int("failed", task.FailedItems),
			zap.Int("completed", task.CompletedItems))
	} else {
		r.logger.Info("Task completed",
			zap.String("task_id", task.ID),
			zap.Int("items", task.CompletedItems))
	}
	return nil
}

func (r *JobRunner) failTask(task *domain.DownloadTask, err error) error {
	task.MarkFailed(err)
	r.saveTask(task)
	r.logger.Error("Task failed",
		zap.String("task_id", task.ID),
		zap.Error(err))
	return err
}

// cancelled reports whether the surrounding context is done or an
// external actor flipped the persisted task to cancelled.
func (r *JobRunner) cancelled(ctx context.Context, task *domain.DownloadTask) bool {
	if ctx.Err() != nil {
		return true
	}
	fresh, err := r.tasks.FindByID(task.ID)
	return err == nil && fresh != nil && fresh.Status == domain.TaskCancelled
}

func (r *JobRunner) executeItem(ctx context.Context, task *domain.DownloadTask, item *domain.WorkItem) {
	item.MarkDownloading()
	r.saveItem(task, item)

	var err error
	switch item.Kind {
	case domain.KindArticle, domain.KindRedirect:
		err = r.writeInline(item)
	case domain.KindSubtitle:
		err = r.downloadSubtitle(ctx, task, item)
	case domain.KindVideo:
		err = r.downloadVideo(ctx, task, item)
	case domain.KindAttachment:
		err = r.downloadFile(ctx, task, item)
	default:
		err = fmt.Errorf("unknown item kind %q", item.Kind)
	}

	if err != nil {
		item.MarkFailed(err)
		r.logger.Warn("Item failed",
			zap.String("task_id", task.ID),
			zap.String("item_id", item.ID),
			zap.String("title", item.Title),
			zap.Error(err))
	} else {
		item.MarkCompleted()
	}
	r.saveItem(task, item)
}

// writeInline materializes article bodies and redirect stubs; their
// content travels in SourceURL, no network fetch involved.
func (r *JobRunner) writeInline(item *domain.WorkItem) error {
	if err := os.MkdirAll(filepath.Dir(item.TargetPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(item.TargetPath, []byte(item.SourceURL), 0o644); err != nil {
		return err
	}
	item.TotalBytes = int64(len(item.SourceURL))
	item.Downloaded = item.TotalBytes
	return nil
}

func (r *JobRunner) downloadSubtitle(ctx context.Context, task *domain.DownloadTask, item *domain.WorkItem) error {
	if _, err := os.Stat(item.TargetPath); err == nil {
		return nil
	}

	vtt, err := r.resolver.FetchText(ctx, item.SourceURL)
	if err != nil {
		return err
	}
	srt := infrastructure.VTTToSRT(vtt)

	if err := os.MkdirAll(filepath.Dir(item.TargetPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(item.TargetPath, []byte(srt), 0o644); err != nil {
		return err
	}
	item.TotalBytes = int64(len(srt))
	item.Downloaded = item.TotalBytes
	return nil
}

func (r *JobRunner) downloadVideo(ctx context.Context, task *domain.DownloadTask, item *domain.WorkItem) error {
	if _, err := os.Stat(item.TargetPath); err == nil {
		return nil
	}

	if isAdaptive(item) {
		return r.assembler.Assemble(ctx, item.SourceURL, item.TargetPath, r.itemProgress(task, item))
	}
	return r.transfer(ctx, task, item)
}

func (r *JobRunner) downloadFile(ctx context.Context, task *domain.DownloadTask, item *domain.WorkItem) error {
	if _, err := os.Stat(item.TargetPath); err == nil {
		return nil
	}
	return r.transfer(ctx, task, item)
}

func (r *JobRunner) transfer(ctx context.Context, task *domain.DownloadTask, item *domain.WorkItem) error {
	tr := r.engine.Download(item.SourceURL, item.TargetPath, r.itemProgress(task, item))
	defer r.engine.Release(tr)
	return tr.Start(ctx)
}

// isAdaptive reports whether a video item points at an HLS playlist
// rather than a direct file.
func isAdaptive(item *domain.WorkItem) bool {
	return strings.Contains(strings.ToLower(item.Format), "mpegurl") ||
		strings.HasSuffix(item.SourceURL, ".m3u8")
}

func (r *JobRunner) itemProgress(task *domain.DownloadTask, item *domain.WorkItem) infrastructure.ProgressFunc {
	return func(p infrastructure.TransferProgress) {
		item.Downloaded = p.DownloadedBytes
		item.TotalBytes = p.TotalBytes
		r.progress.PublishItem(domain.ItemSnapshot{
			ItemID:          item.ID,
			TaskID:          task.ID,
			Status:          item.Status,
			DownloadedBytes: p.DownloadedBytes,
			TotalBytes:      p.TotalBytes,
			Percentage:      p.Percentage,
			SpeedBps:        p.SpeedBps,
			ETASeconds:      p.ETASeconds,
			ErrorMessage:    p.ErrorMessage,
		})
	}
}

func (r *JobRunner) saveTask(task *domain.DownloadTask) {
	if err := r.tasks.Update(task); err != nil {
		r.logger.Error("Failed to persist task state",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
	r.progress.PublishTask(taskSnapshot(task))
}

func (r *JobRunner) saveItem(task *domain.DownloadTask, item *domain.WorkItem) {
	if err := r.items.Update(item); err != nil {
		r.logger.Error("Failed to persist item state",
			zap.String("item_id", item.ID),
			zap.Error(err))
	}
	r.progress.PublishItem(domain.ItemSnapshot{
		ItemID:          item.ID,
		TaskID:          task.ID,
		Status:          item.Status,
		DownloadedBytes: item.Downloaded,
		TotalBytes:      item.TotalBytes,
		Percentage:      itemPercentage(item),
		ErrorMessage:    item.ErrorMessage,
	})
}

func itemPercentage(item *domain.WorkItem) float64 {
	if item.Status == domain.ItemCompleted {
		return 100
	}
	if item.TotalBytes > 0 {
		return float64(item.Downloaded) / float64(item.TotalBytes) * 100
	}
	return 0
}

func taskSnapshot(task *domain.DownloadTask) domain.TaskSnapshot {
	s := domain.TaskSnapshot{
		TaskID:          task.ID,
		Status:          task.Status,
		TotalItems:      task.TotalItems,
		CompletedItems:  task.CompletedItems,
		FailedItems:     task.FailedItems,
		DownloadedBytes: task.DownloadedBytes,
		TotalBytes:      task.TotalBytes,
		SpeedBps:        task.SpeedBps,
		ETASeconds:      task.ETASeconds,
		ErrorMessage:    task.ErrorMessage,
	}
	if task.TotalItems > 0 {
		s.Percentage = float64(task.CompletedItems+task.FailedItems) / float64(task.TotalItems) * 100
	}
	return s
}
