package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/internal/domain"
)

// HLSAssembler downloads every segment of a media playlist with a
// bounded worker fan-out and concatenates them in playlist order into
// one output file. Assembly is all-or-nothing: a single segment failing
// past its retry budget fails the whole output and no partial file is
// retained.
type HLSAssembler struct {
	resolver   *StreamResolver
	client     *http.Client
	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewHLSAssembler creates an assembler. The worker budget is
// independent of the engine's transfer concurrency.
func NewHLSAssembler(resolver *StreamResolver, client *http.Client, cfg domain.TransferConfig, logger *zap.Logger) *HLSAssembler {
	workers := cfg.HLSWorkers
	if workers < 1 {
		workers = 8
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HLSAssembler{
		resolver:   resolver,
		client:     client,
		workers:    workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryInterval,
		logger:     logger,
	}
}

// segmentResult carries one downloaded segment back to the writer
type segmentResult struct {
	index int
	data  []byte
}

// Assemble fetches the playlist at playlistURL and writes the
// concatenated segments to outputPath. Progress (bytes written so far)
// is reported through cb after each segment lands, if cb is non-nil.
func (a *HLSAssembler) Assemble(ctx context.Context, playlistURL, outputPath string, cb ProgressFunc) error {
	segments, err := a.resolver.SegmentURLs(ctx, playlistURL)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return &domain.ProtocolError{What: "no segments found in playlist"}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan segmentResult, a.workers)
	errCh := make(chan error, a.workers)

	var wg sync.WaitGroup
	for w := 0; w < a.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				data, err := a.fetchSegment(ctx, segments[idx])
				if err != nil {
					select {
					case errCh <- fmt.Errorf("segment %d: %w", idx, err):
					default:
					}
					cancel()
					return
				}
				select {
				case results <- segmentResult{index: idx, data: data}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range segments {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	tempPath := outputPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		cancel()
		return err
	}

	writeErr := a.writeInOrder(out, results, len(segments), cb)
	closeErr := out.Close()

	select {
	case err := <-errCh:
		os.Remove(tempPath)
		return err
	default:
	}
	if writeErr != nil {
		os.Remove(tempPath)
		return writeErr
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, outputPath)
}

// writeInOrder buffers out-of-order results and flushes them to the
// output strictly by playlist index.
func (a *HLSAssembler) writeInOrder(out io.Writer, results <-chan segmentResult, total int, cb ProgressFunc) error {
	pending := make(map[int][]byte)
	next := 0
	var written int64

	flush := func(data []byte) error {
		if _, err := out.Write(data); err != nil {
			return err
		}
		written += int64(len(data))
		next++
		if cb != nil {
			cb(TransferProgress{
				Status:          TransferDownloading,
				DownloadedBytes: written,
				Percentage:      float64(next) / float64(total) * 100,
			})
		}
		return nil
	}

	for res := range results {
		if res.index == next {
			if err := flush(res.data); err != nil {
				return err
			}
			for {
				data, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				if err := flush(data); err != nil {
					return err
				}
			}
		} else {
			pending[res.index] = res.data
		}
	}

	if next != total {
		return fmt.Errorf("assembled %d of %d segments", next, total)
	}
	return nil
}

// fetchSegment downloads one segment with its own retry budget
func (a *HLSAssembler) fetchSegment(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		data, err := a.fetchSegmentOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		a.logger.Warn("Segment fetch failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}

func (a *HLSAssembler) fetchSegmentOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching segment", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
