package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/internal/infrastructure"
	"github.com/yourusername/coursedl-go/pkg/logger"
)

type fakeFetcher struct {
	nodes []domain.CurriculumNode
	err   error
}

func (f *fakeFetcher) FetchCurriculum(ctx context.Context, courseID int64) ([]domain.CurriculumNode, error) {
	return f.nodes, f.err
}

func (f *fakeFetcher) ResolveLectureAsset(ctx context.Context, courseID, lectureID int64) (*domain.Asset, error) {
	return nil, errors.New("not implemented")
}

type memTaskRepo struct {
	mu        sync.Mutex
	tasks     map[string]*domain.DownloadTask
	cancelled map[string]bool
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{
		tasks:     make(map[string]*domain.DownloadTask),
		cancelled: make(map[string]bool),
	}
}

func (r *memTaskRepo) Create(task *domain.DownloadTask) error {
	return r.Update(task)
}

func (r *memTaskRepo) Update(task *domain.DownloadTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *task
	r.tasks[task.ID] = &copy
	return nil
}

func (r *memTaskRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *memTaskRepo) FindByID(id string) (*domain.DownloadTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copy := *t
	if r.cancelled[id] {
		copy.Status = domain.TaskCancelled
	}
	return &copy, nil
}

func (r *memTaskRepo) FindByStatus(status domain.TaskStatus) ([]*domain.DownloadTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.DownloadTask
	for _, t := range r.tasks {
		if t.Status == status {
			copy := *t
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (r *memTaskRepo) FindPending() ([]*domain.DownloadTask, error) {
	return r.FindByStatus(domain.TaskPending)
}

func (r *memTaskRepo) FindAll(map[string]interface{}) ([]*domain.DownloadTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.DownloadTask
	for _, t := range r.tasks {
		copy := *t
		out = append(out, &copy)
	}
	return out, nil
}

func (r *memTaskRepo) GetStats() (*domain.TaskStats, error) {
	return &domain.TaskStats{}, nil
}

// markCancelled makes every later FindByID report the task as
// cancelled, regardless of what the runner persists in between.
func (r *memTaskRepo) markCancelled(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[id] = true
}

type memItemRepo struct {
	mu    sync.Mutex
	items []*domain.WorkItem
}

func (r *memItemRepo) CreateBatch(items []*domain.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		copy := *item
		r.items = append(r.items, &copy)
	}
	return nil
}

func (r *memItemRepo) Update(item *domain.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.items {
		if existing.ID == item.ID {
			copy := *item
			r.items[i] = &copy
			return nil
		}
	}
	return nil
}

func (r *memItemRepo) FindByTask(taskID string) ([]*domain.WorkItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WorkItem
	for _, item := range r.items {
		if item.TaskID == taskID {
			copy := *item
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (r *memItemRepo) DeleteByTask(taskID string) error {
	return nil
}

type recordingSink struct {
	mu    sync.Mutex
	tasks []domain.TaskSnapshot
	items []domain.ItemSnapshot
}

func (s *recordingSink) PublishItem(snap domain.ItemSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snap)
}

func (s *recordingSink) PublishTask(snap domain.TaskSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, snap)
}

func newTestRunner(fetcher domain.CurriculumFetcher, tasks domain.TaskRepository, items domain.ItemRepository, sink domain.ProgressSink) *JobRunner {
	log := logger.NewDefault()
	cfg := domain.TransferConfig{
		MaxRetries:    1,
		RetryInterval: 10 * time.Millisecond,
		ChunkSize:     1024,
		Timeout:       5 * time.Second,
		HLSWorkers:    2,
	}
	resolver := infrastructure.NewStreamResolver(nil, 1, 10*time.Millisecond, log)
	engine := infrastructure.NewEngine(cfg, nil, log)
	assembler := infrastructure.NewHLSAssembler(resolver, nil, cfg, log)
	return NewJobRunner(fetcher, NewPlanner(log), engine, assembler, resolver, tasks, items, sink, log)
}

func TestRun_EndToEnd(t *testing.T) {
	videoPayload := []byte("fake mp4 payload bytes")
	vttPayload := "WEBVTT\n\n00:00:01.000 --> 00:00:02.500\nHello"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/720.mp4":
			w.Write(videoPayload)
		case "/en.vtt":
			fmt.Fprint(w, vttPayload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := &fakeFetcher{nodes: []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Getting Started"},
		{
			Class: domain.NodeLecture, Title: "Welcome",
			Asset: &domain.Asset{Kind: domain.AssetArticle, Body: "<p>welcome</p>"},
		},
		{
			Class: domain.NodeLecture, Title: "First Video",
			Asset: &domain.Asset{
				Kind: domain.AssetVideo,
				Streams: &domain.StreamSources{
					MinQuality: "720", MaxQuality: "720",
					Sources: map[string]domain.StreamSource{
						"720": {URL: srv.URL + "/720.mp4", MimeType: "video/mp4"},
					},
				},
				Captions: []domain.Caption{{Locale: "en_US", Label: "English", URL: srv.URL + "/en.vtt"}},
			},
		},
	}}

	taskRepo := newMemTaskRepo()
	itemRepo := &memItemRepo{}
	sink := &recordingSink{}

	task := domain.NewDownloadTask(42, t.TempDir())
	task.CourseTitle = "Go Course"
	require.NoError(t, taskRepo.Create(task))

	runner := newTestRunner(fetcher, taskRepo, itemRepo, sink)
	require.NoError(t, runner.Run(context.Background(), task))

	assert.Equal(t, domain.TaskCompleted, task.Status)
	assert.Equal(t, 3, task.TotalItems)
	assert.Equal(t, 3, task.CompletedItems)
	assert.Equal(t, 0, task.FailedItems)

	courseDir := filepath.Join(task.TargetRoot, "Go Course", "1. Getting Started")

	article, err := os.ReadFile(filepath.Join(courseDir, "1. Welcome.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>welcome</p>", string(article))

	video, err := os.ReadFile(filepath.Join(courseDir, "2. First Video.mp4"))
	require.NoError(t, err)
	assert.Equal(t, videoPayload, video)

	srt, err := os.ReadFile(filepath.Join(courseDir, "2. First Video.en_US.srt"))
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,500\nHello\n", string(srt))

	// Final snapshot reaches the sink
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.tasks)
	last := sink.tasks[len(sink.tasks)-1]
	assert.Equal(t, domain.TaskCompleted, last.Status)
	assert.Equal(t, float64(100), last.Percentage)
}

func TestRun_CompletesDespiteFailedItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fetcher := &fakeFetcher{nodes: []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
		{
			Class: domain.NodeLecture, Title: "Broken Video",
			Asset: &domain.Asset{
				Kind: domain.AssetVideo,
				Streams: &domain.StreamSources{
					MinQuality: "720", MaxQuality: "720",
					Sources: map[string]domain.StreamSource{
						"720": {URL: srv.URL + "/broken.mp4", MimeType: "video/mp4"},
					},
				},
			},
		},
		{
			Class: domain.NodeLecture, Title: "Works",
			Asset: &domain.Asset{Kind: domain.AssetArticle, Body: "<p>fine</p>"},
		},
	}}

	taskRepo := newMemTaskRepo()
	task := domain.NewDownloadTask(42, t.TempDir())
	task.CourseTitle = "Course"
	require.NoError(t, taskRepo.Create(task))

	runner := newTestRunner(fetcher, taskRepo, &memItemRepo{}, &recordingSink{})
	require.NoError(t, runner.Run(context.Background(), task))

	assert.Equal(t, domain.TaskCompleted, task.Status)
	assert.Equal(t, 1, task.CompletedItems)
	assert.Equal(t, 1, task.FailedItems)
}

func TestRun_CurriculumFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("catalog down")}

	taskRepo := newMemTaskRepo()
	task := domain.NewDownloadTask(42, t.TempDir())
	require.NoError(t, taskRepo.Create(task))

	runner := newTestRunner(fetcher, taskRepo, &memItemRepo{}, &recordingSink{})
	err := runner.Run(context.Background(), task)

	require.Error(t, err)
	assert.Equal(t, domain.TaskFailed, task.Status)
	assert.Contains(t, task.ErrorMessage, "catalog down")
}

func TestRun_EmptyPlanFailsTask(t *testing.T) {
	fetcher := &fakeFetcher{nodes: []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Only Chapters"},
	}}

	taskRepo := newMemTaskRepo()
	task := domain.NewDownloadTask(42, t.TempDir())
	require.NoError(t, taskRepo.Create(task))

	runner := newTestRunner(fetcher, taskRepo, &memItemRepo{}, &recordingSink{})
	err := runner.Run(context.Background(), task)

	var planErr *domain.PlanningError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, domain.TaskFailed, task.Status)
}

func TestRun_ExternalCancelStopsBetweenItems(t *testing.T) {
	var nodes []domain.CurriculumNode
	nodes = append(nodes, domain.CurriculumNode{Class: domain.NodeChapter, Title: "Ch"})
	for i := 1; i <= 5; i++ {
		nodes = append(nodes, domain.CurriculumNode{
			Class: domain.NodeLecture, Title: fmt.Sprintf("Lesson %d", i),
			Asset: &domain.Asset{Kind: domain.AssetArticle, Body: "<p>x</p>"},
		})
	}
	fetcher := &fakeFetcher{nodes: nodes}

	taskRepo := newMemTaskRepo()
	task := domain.NewDownloadTask(42, t.TempDir())
	require.NoError(t, taskRepo.Create(task))

	taskRepo.markCancelled(task.ID)

	runner := newTestRunner(fetcher, taskRepo, &memItemRepo{}, &recordingSink{})
	require.NoError(t, runner.Run(context.Background(), task))

	assert.Equal(t, domain.TaskCancelled, task.Status)
	assert.Equal(t, 0, task.CompletedItems)
}

func TestRun_ContextCancelStopsBetweenItems(t *testing.T) {
	fetcher := &fakeFetcher{nodes: []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
		{
			Class: domain.NodeLecture, Title: "Lesson",
			Asset: &domain.Asset{Kind: domain.AssetArticle, Body: "<p>x</p>"},
		},
	}}

	taskRepo := newMemTaskRepo()
	task := domain.NewDownloadTask(42, t.TempDir())
	require.NoError(t, taskRepo.Create(task))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newTestRunner(fetcher, taskRepo, &memItemRepo{}, &recordingSink{})
	require.NoError(t, runner.Run(ctx, task))
	assert.Equal(t, domain.TaskCancelled, task.Status)
}

func TestIsAdaptive(t *testing.T) {
	assert.True(t, isAdaptive(&domain.WorkItem{Format: "application/x-mpegURL"}))
	assert.True(t, isAdaptive(&domain.WorkItem{SourceURL: "https://cdn.example.com/master.m3u8"}))
	assert.False(t, isAdaptive(&domain.WorkItem{Format: "video/mp4", SourceURL: "https://cdn.example.com/v.mp4"}))
}
