package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/internal/domain"
)

const hlsHeader = "#EXTM3U"

var resolutionAttr = regexp.MustCompile(`RESOLUTION=(\d+)x(\d+)`)

// StreamVariant is one quality entry of a master playlist
type StreamVariant struct {
	Quality int    // vertical resolution
	URL     string // absolute variant playlist URL
}

// StreamResolver fetches and parses HLS master playlists into quality
// variants and selects among them.
type StreamResolver struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewStreamResolver creates a stream resolver
func NewStreamResolver(client *http.Client, maxRetries int, retryDelay time.Duration, logger *zap.Logger) *StreamResolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &StreamResolver{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// FetchText fetches a URL as text, retrying with a fixed delay between
// attempts. Exhausting the retry budget returns ErrFetchExhausted.
func (r *StreamResolver) FetchText(ctx context.Context, rawURL string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		body, err := r.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		r.logger.Warn("Playlist fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.maxRetries),
			zap.Error(err))
	}
	return "", fmt.Errorf("%w: %v", domain.ErrFetchExhausted, lastErr)
}

func (r *StreamResolver) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, rawURL)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Load fetches a master playlist and returns its quality variants in
// playlist order. Content that does not start with the HLS header fails
// with ErrInvalidPlaylist.
func (r *StreamResolver) Load(ctx context.Context, playlistURL string) ([]StreamVariant, error) {
	content, err := r.FetchText(ctx, playlistURL)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(strings.TrimSpace(content), hlsHeader) {
		return nil, domain.ErrInvalidPlaylist
	}

	return parseMasterPlaylist(content, playlistURL)
}

// parseMasterPlaylist pairs each STREAM-INF resolution with the next
// URL line. Relative variant URLs are joined against the playlist URL.
func parseMasterPlaylist(content, baseURL string) ([]StreamVariant, error) {
	var variants []StreamVariant
	pendingQuality := 0

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-STREAM-INF") {
			m := resolutionAttr.FindStringSubmatch(line)
			if m == nil {
				pendingQuality = 0
				continue
			}
			h, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, &domain.ProtocolError{What: "unparseable RESOLUTION attribute", Err: err}
			}
			pendingQuality = h
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		if pendingQuality > 0 {
			abs, err := resolveURL(baseURL, line)
			if err != nil {
				return nil, &domain.ProtocolError{What: "invalid variant URL in playlist", Err: err}
			}
			variants = append(variants, StreamVariant{Quality: pendingQuality, URL: abs})
			pendingQuality = 0
		}
	}

	return variants, nil
}

// SegmentURLs fetches a media playlist and returns its segment URLs in
// order, with relative entries joined against the playlist URL.
func (r *StreamResolver) SegmentURLs(ctx context.Context, playlistURL string) ([]string, error) {
	content, err := r.FetchText(ctx, playlistURL)
	if err != nil {
		return nil, err
	}

	var segments []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		abs, err := resolveURL(playlistURL, line)
		if err != nil {
			return nil, &domain.ProtocolError{What: "invalid segment URL in playlist", Err: err}
		}
		segments = append(segments, abs)
	}
	return segments, nil
}

func resolveURL(base, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u, err := b.Parse(ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Highest returns the variant with the greatest quality
func Highest(variants []StreamVariant) (StreamVariant, bool) {
	if len(variants) == 0 {
		return StreamVariant{}, false
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Quality > best.Quality {
			best = v
		}
	}
	return best, true
}

// Lowest returns the variant with the smallest quality
func Lowest(variants []StreamVariant) (StreamVariant, bool) {
	if len(variants) == 0 {
		return StreamVariant{}, false
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Quality < best.Quality {
			best = v
		}
	}
	return best, true
}

// Nearest returns the exact-quality variant when present, otherwise the
// one at minimum absolute distance. Ties resolve to the first variant
// in playlist order.
func Nearest(variants []StreamVariant, target int) (StreamVariant, bool) {
	if len(variants) == 0 {
		return StreamVariant{}, false
	}
	for _, v := range variants {
		if v.Quality == target {
			return v, true
		}
	}

	best := variants[0]
	bestDist := abs(best.Quality - target)
	for _, v := range variants[1:] {
		if d := abs(v.Quality - target); d < bestDist {
			best = v
			bestDist = d
		}
	}
	return best, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
