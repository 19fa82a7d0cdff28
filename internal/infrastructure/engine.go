package infrastructure

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/internal/domain"
)

// TransferStatus mirrors the work item execution state machine
type TransferStatus string

const (
	TransferPending     TransferStatus = "pending"
	TransferPreparing   TransferStatus = "preparing"
	TransferDownloading TransferStatus = "downloading"
	TransferPaused      TransferStatus = "paused"
	TransferCompleted   TransferStatus = "completed"
	TransferFailed      TransferStatus = "failed"
	TransferCancelled   TransferStatus = "cancelled"
)

// progressInterval is the minimum time between progress callbacks
const progressInterval = 500 * time.Millisecond

// TransferProgress is a point-in-time view of a transfer
type TransferProgress struct {
	Status          TransferStatus
	TotalBytes      int64
	DownloadedBytes int64
	Percentage      float64
	SpeedBps        float64
	ETASeconds      float64
	ErrorMessage    string
}

// ProgressFunc receives transfer progress snapshots
type ProgressFunc func(TransferProgress)

// sidecar is the JSON resume metadata written next to the temp file
// before the first byte; an external process can detect an interrupted
// run from it.
type sidecar struct {
	URL            string        `json:"url"`
	FilePath       string        `json:"filePath"`
	StartTime      int64         `json:"startTime"`
	TotalSize      int64         `json:"totalSize"`
	DownloadedSize int64         `json:"downloadedSize"`
	Config         sidecarConfig `json:"config"`
}

type sidecarConfig struct {
	MaxRetries    int     `json:"maxRetries"`
	RetryInterval float64 `json:"retryInterval"`
	ThreadsCount  int     `json:"threadsCount"`
	Timeout       float64 `json:"timeout"`
}

// Engine owns concrete byte transfer. It keeps a registry keyed by a
// hash of (url, path) so two concurrent downloads of the same target
// share one transfer: at most one transfer per path.
type Engine struct {
	cfg    domain.TransferConfig
	client *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	transfers map[string]*Transfer
}

// NewEngine creates a transfer engine
func NewEngine(cfg domain.TransferConfig, client *http.Client, logger *zap.Logger) *Engine {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	return &Engine{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		transfers: make(map[string]*Transfer),
	}
}

// Download returns the transfer for (url, targetPath), creating it if
// absent. Calling again with the same pair returns the existing
// transfer without starting a duplicate.
func (e *Engine) Download(url, targetPath string, callback ProgressFunc) *Transfer {
	key := transferKey(url, targetPath)

	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.transfers[key]; ok {
		return t
	}

	t := &Transfer{
		id:       key,
		url:      url,
		path:     targetPath,
		cfg:      e.cfg,
		client:   e.client,
		logger:   e.logger,
		callback: callback,
		status:   TransferPending,
	}
	e.transfers[key] = t
	return t
}

// Release drops a finished transfer from the registry so the same
// (url, path) can be downloaded again later.
func (e *Engine) Release(t *Transfer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.transfers, t.id)
}

// CancelAll cancels every registered transfer
func (e *Engine) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.transfers {
		t.Cancel()
	}
}

func transferKey(url, path string) string {
	sum := sha1.Sum([]byte(url + ":" + path))
	return hex.EncodeToString(sum[:])
}

// Transfer moves the bytes of one work item. State machine:
// pending -> preparing -> downloading <-> paused -> completed/failed/cancelled.
type Transfer struct {
	id       string
	url      string
	path     string
	cfg      domain.TransferConfig
	client   *http.Client
	logger   *zap.Logger
	callback ProgressFunc

	mu         sync.Mutex
	status     TransferStatus
	total      int64
	downloaded int64
	speed      float64
	eta        float64
	errMsg     string
	paused     bool
	cancelled  bool
	startTime  time.Time
}

// Status returns the current transfer status
func (t *Transfer) Status() TransferStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Progress returns a snapshot of the transfer
func (t *Transfer) Progress() TransferProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Transfer) snapshotLocked() TransferProgress {
	p := TransferProgress{
		Status:          t.status,
		TotalBytes:      t.total,
		DownloadedBytes: t.downloaded,
		SpeedBps:        t.speed,
		ETASeconds:      t.eta,
		ErrorMessage:    t.errMsg,
	}
	if t.total > 0 {
		p.Percentage = float64(t.downloaded) / float64(t.total) * 100
	}
	return p
}

func (t *Transfer) notify() {
	if t.callback == nil {
		return
	}
	t.mu.Lock()
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.callback(snap)
}

func (t *Transfer) setStatus(s TransferStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
	t.notify()
}

// Pause suspends the chunk-copy loop. The transfer keeps its connection
// budget; the loop blocks at the next chunk boundary.
func (t *Transfer) Pause() {
	t.mu.Lock()
	if t.status == TransferDownloading {
		t.paused = true
		t.status = TransferPaused
	}
	t.mu.Unlock()
	t.notify()
}

// Resume releases a paused copy loop
func (t *Transfer) Resume() {
	t.mu.Lock()
	if t.status == TransferPaused {
		t.paused = false
		t.status = TransferDownloading
	}
	t.mu.Unlock()
	t.notify()
}

// Cancel aborts the transfer cooperatively at the next chunk boundary.
// The partial temp file is retained for a later resume.
func (t *Transfer) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.paused = false
	t.status = TransferCancelled
	t.mu.Unlock()
	t.notify()
}

func (t *Transfer) interrupted() (paused, cancelled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused, t.cancelled
}

// Start runs the transfer to completion, resuming off any partial temp
// file and retrying whole attempts up to the configured bound. On
// success the temp file is renamed to the final path and the sidecar
// removed.
func (t *Transfer) Start(ctx context.Context) error {
	t.mu.Lock()
	t.startTime = time.Now()
	t.mu.Unlock()
	t.setStatus(TransferPreparing)

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		t.fail(err)
		return err
	}

	// Already fully downloaded on a previous run.
	if t.isComplete(ctx) {
		t.mu.Lock()
		t.downloaded = t.total
		t.mu.Unlock()
		t.setStatus(TransferCompleted)
		return nil
	}

	t.setStatus(TransferDownloading)

	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			t.logger.Warn("Retrying transfer",
				zap.String("url", t.url),
				zap.String("path", t.path),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-time.After(t.cfg.RetryInterval):
			case <-ctx.Done():
				t.fail(ctx.Err())
				return ctx.Err()
			}
		}

		done, err := t.attempt(ctx)
		if err == nil {
			if !done {
				// Cancelled mid-copy; status already set.
				return nil
			}
			if err := t.finalize(); err != nil {
				t.fail(err)
				return err
			}
			t.setStatus(TransferCompleted)
			return nil
		}
		lastErr = err
	}

	terr := &domain.TransferError{
		URL:      t.url,
		Path:     t.path,
		Attempts: t.cfg.MaxRetries + 1,
		Err:      lastErr,
	}
	t.fail(terr)
	return terr
}

func (t *Transfer) fail(err error) {
	t.mu.Lock()
	t.status = TransferFailed
	t.errMsg = err.Error()
	t.mu.Unlock()
	t.notify()
}

// isComplete short-circuits when the final file exists and matches the
// HEAD-reported remote size.
func (t *Transfer) isComplete(ctx context.Context) bool {
	info, err := os.Stat(t.path)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.url, nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	remote := resp.ContentLength
	if remote <= 0 {
		return false
	}
	if info.Size() == remote {
		t.mu.Lock()
		t.total = remote
		t.mu.Unlock()
		return true
	}
	return false
}

// attempt performs one whole GET attempt, re-resolving the resume
// offset from disk. Returns done=false with nil error when cancelled.
func (t *Transfer) attempt(ctx context.Context) (done bool, err error) {
	tempPath := t.path + ".tmp"
	metaPath := t.path + ".mtd"

	var resumeOffset int64
	if info, err := os.Stat(tempPath); err == nil {
		resumeOffset = info.Size()
	}
	t.mu.Lock()
	t.downloaded = resumeOffset
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return false, err
	}
	if resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
	}

	// Sidecar must exist before the first byte is written.
	if err := t.writeSidecar(metaPath, resumeOffset); err != nil {
		t.logger.Warn("Failed to write sidecar metadata",
			zap.String("path", metaPath), zap.Error(err))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range: discard partial data, restart.
		if resumeOffset > 0 {
			resumeOffset = 0
			t.mu.Lock()
			t.downloaded = 0
			t.mu.Unlock()
			if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
				return false, err
			}
		}
		t.mu.Lock()
		t.total = resp.ContentLength
		t.mu.Unlock()
	case http.StatusPartialContent:
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			t.mu.Lock()
			t.total = total
			t.mu.Unlock()
		}
	default:
		return false, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, t.url)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumeOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(tempPath, flags, 0644)
	if err != nil {
		return false, err
	}
	defer out.Close()

	if err := t.copyChunks(ctx, resp.Body, out); err != nil {
		return false, err
	}

	if _, cancelled := t.interrupted(); cancelled {
		return false, nil
	}
	return true, nil
}

// copyChunks reads the body in fixed-size chunks, checking the pause
// and cancel flags between chunks and emitting progress every 500ms.
func (t *Transfer) copyChunks(ctx context.Context, body io.Reader, out *os.File) error {
	buf := make([]byte, t.cfg.ChunkSize)
	lastNotify := time.Now()

	for {
		paused, cancelled := t.interrupted()
		if cancelled {
			return nil
		}
		for paused && !cancelled {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			paused, cancelled = t.interrupted()
		}
		if cancelled {
			return nil
		}

		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			t.mu.Lock()
			t.downloaded += int64(n)
			t.mu.Unlock()
		}

		if now := time.Now(); now.Sub(lastNotify) >= progressInterval {
			t.updateStats()
			t.notify()
			lastNotify = now
		}

		if err == io.EOF {
			t.updateStats()
			t.notify()
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (t *Transfer) updateStats() {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	if elapsed > 0 {
		t.speed = float64(t.downloaded) / elapsed
	}
	if t.total > 0 && t.speed > 0 {
		t.eta = float64(t.total-t.downloaded) / t.speed
	}
}

func (t *Transfer) writeSidecar(metaPath string, resumeOffset int64) error {
	t.mu.Lock()
	meta := sidecar{
		URL:            t.url,
		FilePath:       t.path,
		StartTime:      t.startTime.Unix(),
		TotalSize:      t.total,
		DownloadedSize: resumeOffset,
		Config: sidecarConfig{
			MaxRetries:    t.cfg.MaxRetries,
			RetryInterval: t.cfg.RetryInterval.Seconds(),
			ThreadsCount:  t.cfg.ThreadsCount,
			Timeout:       t.cfg.Timeout.Seconds(),
		},
	}
	t.mu.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, data, 0644)
}

// finalize renames the temp file onto the final path and removes the
// sidecar. Rename-over is atomic on POSIX filesystems.
func (t *Transfer) finalize() error {
	tempPath := t.path + ".tmp"
	if err := os.Rename(tempPath, t.path); err != nil {
		return err
	}
	if err := os.Remove(t.path + ".mtd"); err != nil && !os.IsNotExist(err) {
		t.logger.Warn("Failed to remove sidecar", zap.String("path", t.path+".mtd"), zap.Error(err))
	}
	return nil
}

// parseContentRangeTotal extracts the total from "bytes start-end/total"
func parseContentRangeTotal(header string) (int64, bool) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return 0, false
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil || total <= 0 {
		return 0, false
	}
	return total, true
}
