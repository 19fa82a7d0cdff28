package infrastructure

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/coursedl-go/internal/domain"
)

func setupTestRepo(t *testing.T) (*SQLiteTaskRepository, func()) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "repo-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewSQLiteTaskRepository(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func TestTaskRepository_CreateAndFindByID(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	task := domain.NewDownloadTask(1630482, "/downloads")
	task.CourseTitle = "Advanced Go"
	task.Quality = "720"
	require.NoError(t, repo.Create(task))

	found, err := repo.FindByID(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, found.ID)
	assert.Equal(t, int64(1630482), found.CourseID)
	assert.Equal(t, "Advanced Go", found.CourseTitle)
	assert.Equal(t, "720", found.Quality)
	assert.Equal(t, domain.TaskPending, found.Status)
}

func TestTaskRepository_FindByIDNotFound(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	_, err := repo.FindByID("no-such-id")
	assert.Error(t, err)
}

func TestTaskRepository_UpdatePersistsRunState(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	task := domain.NewDownloadTask(42, "/downloads")
	require.NoError(t, repo.Create(task))

	task.MarkDownloading(12)
	task.CompletedItems = 5
	task.FailedItems = 1
	task.DownloadedBytes = 1 << 20
	require.NoError(t, repo.Update(task))

	found, err := repo.FindByID(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDownloading, found.Status)
	assert.Equal(t, 12, found.TotalItems)
	assert.Equal(t, 5, found.CompletedItems)
	assert.Equal(t, 1, found.FailedItems)
	assert.Equal(t, int64(1<<20), found.DownloadedBytes)
}

func TestTaskRepository_FindPendingOrdersByCreation(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	older := domain.NewDownloadTask(1, "/downloads")
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(older))

	newer := domain.NewDownloadTask(2, "/downloads")
	require.NoError(t, repo.Create(newer))

	running := domain.NewDownloadTask(3, "/downloads")
	running.MarkDownloading(1)
	require.NoError(t, repo.Create(running))

	pending, err := repo.FindPending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)
}

func TestTaskRepository_FindAllWithFilters(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	a := domain.NewDownloadTask(1, "/downloads")
	require.NoError(t, repo.Create(a))

	b := domain.NewDownloadTask(2, "/downloads")
	b.MarkFailed(assert.AnError)
	require.NoError(t, repo.Create(b))

	all, err := repo.FindAll(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := repo.FindAll(map[string]interface{}{"status": domain.TaskFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.ID, failed[0].ID)
}

func TestTaskRepository_GetStats(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	pending := domain.NewDownloadTask(1, "/downloads")
	require.NoError(t, repo.Create(pending))

	preparing := domain.NewDownloadTask(2, "/downloads")
	preparing.MarkPreparing()
	require.NoError(t, repo.Create(preparing))

	done := domain.NewDownloadTask(3, "/downloads")
	done.MarkCompleted()
	require.NoError(t, repo.Create(done))

	failed := domain.NewDownloadTask(4, "/downloads")
	failed.MarkFailed(assert.AnError)
	require.NoError(t, repo.Create(failed))

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Downloading, "preparing counts as downloading")
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Cancelled)
}

func TestItemRepository_BatchRoundTripKeepsOrder(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	task := domain.NewDownloadTask(42, "/downloads")
	require.NoError(t, repo.Create(task))

	items := []*domain.WorkItem{
		domain.NewWorkItem(task.ID, domain.KindArticle, "Intro", "<p>hi</p>", "/downloads/1. Intro.html"),
		domain.NewWorkItem(task.ID, domain.KindVideo, "First Video", "https://cdn.example.com/720.mp4", "/downloads/2. First Video.mp4"),
		domain.NewWorkItem(task.ID, domain.KindSubtitle, "First Video", "https://cdn.example.com/en.vtt", "/downloads/2. First Video.en_US.srt"),
	}
	require.NoError(t, repo.Items().CreateBatch(items))

	found, err := repo.Items().FindByTask(task.ID)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "Intro", found[0].Title)
	assert.Equal(t, domain.KindVideo, found[1].Kind)
	assert.Equal(t, domain.KindSubtitle, found[2].Kind)
	for i, item := range found {
		assert.Equal(t, i, item.Position)
	}
}

func TestItemRepository_UpdateItem(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	item := domain.NewWorkItem("task-1", domain.KindVideo, "Lesson", "https://cdn.example.com/v.mp4", "/downloads/1. Lesson.mp4")
	require.NoError(t, repo.Items().CreateBatch([]*domain.WorkItem{item}))

	item.MarkCompleted()
	item.Downloaded = 2048
	item.TotalBytes = 2048
	require.NoError(t, repo.Items().Update(item))

	found, err := repo.Items().FindByTask("task-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domain.ItemCompleted, found[0].Status)
	assert.Equal(t, int64(2048), found[0].Downloaded)
}

func TestItemRepository_DeleteByTask(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	keep := domain.NewWorkItem("task-keep", domain.KindArticle, "A", "<p>a</p>", "/d/a.html")
	drop := domain.NewWorkItem("task-drop", domain.KindArticle, "B", "<p>b</p>", "/d/b.html")
	require.NoError(t, repo.Items().CreateBatch([]*domain.WorkItem{keep}))
	require.NoError(t, repo.Items().CreateBatch([]*domain.WorkItem{drop}))

	require.NoError(t, repo.Items().DeleteByTask("task-drop"))

	gone, err := repo.Items().FindByTask("task-drop")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := repo.Items().FindByTask("task-keep")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestTaskRepository_DeleteRemovesItems(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	task := domain.NewDownloadTask(7, "/downloads")
	require.NoError(t, repo.Create(task))
	item := domain.NewWorkItem(task.ID, domain.KindArticle, "A", "<p>a</p>", "/d/a.html")
	require.NoError(t, repo.Items().CreateBatch([]*domain.WorkItem{item}))

	require.NoError(t, repo.Delete(task.ID))

	_, err := repo.FindByID(task.ID)
	assert.Error(t, err)
	orphans, err := repo.Items().FindByTask(task.ID)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}
