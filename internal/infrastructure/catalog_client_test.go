package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/pkg/logger"
)

func newTestCatalog(baseURL string) *CatalogClient {
	cfg := domain.CatalogConfig{
		BaseURL:     baseURL,
		AccessToken: "test-token",
		Timeout:     5 * time.Second,
		PageSize:    200,
	}
	return NewCatalogClient(cfg, newTestResolver(2), logger.NewDefault())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestFetchCurriculum_FollowsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/page2":
			writeJSON(t, w, map[string]any{
				"count": 3,
				"results": []map[string]any{
					{"id": 12, "_class": "lecture", "title": "Second Lecture"},
				},
			})
		default:
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			writeJSON(t, w, map[string]any{
				"count": 3,
				"next":  srv.URL + "/page2",
				"results": []map[string]any{
					{"id": 10, "_class": "chapter", "title": "Intro"},
					{"id": 11, "_class": "lecture", "title": "First Lecture"},
				},
			})
		}
	}))
	defer srv.Close()

	nodes, err := newTestCatalog(srv.URL).FetchCurriculum(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, domain.NodeChapter, nodes[0].Class)
	assert.Equal(t, "Intro", nodes[0].Title)
	assert.Equal(t, domain.NodeLecture, nodes[1].Class)
	assert.Equal(t, "Second Lecture", nodes[2].Title)
}

func TestFetchCurriculum_FallbackOn503(t *testing.T) {
	var fallbackCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_size") == "10000" {
			atomic.AddInt32(&fallbackCalls, 1)
			writeJSON(t, w, map[string]any{
				"count": 2,
				"results": []map[string]any{
					{"id": 1, "_class": "chapter", "title": "Basics"},
					{"id": 2, "_class": "lecture", "title": "Hello"},
				},
			})
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	nodes, err := newTestCatalog(srv.URL).FetchCurriculum(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "Basics", nodes[0].Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fallbackCalls))
}

func TestFetchCurriculum_HardFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestCatalog(srv.URL).FetchCurriculum(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchCurriculum_UnknownClassRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"count": 1,
			"results": []map[string]any{
				{"id": 1, "_class": "hologram", "title": "???"},
			},
		})
	}))
	defer srv.Close()

	_, err := newTestCatalog(srv.URL).FetchCurriculum(context.Background(), 42)
	var protoErr *domain.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestFetchCurriculum_InsertsLeadingChapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"count": 1,
			"results": []map[string]any{
				{"id": 5, "_class": "lecture", "title": "Orphan Lecture"},
			},
		})
	}))
	defer srv.Close()

	nodes, err := newTestCatalog(srv.URL).FetchCurriculum(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, domain.NodeChapter, nodes[0].Class)
	assert.Equal(t, "Chapter 1", nodes[0].Title)
	assert.Equal(t, "Orphan Lecture", nodes[1].Title)
}

func TestFetchCurriculum_NormalizesVideoStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"count": 2,
			"results": []map[string]any{
				{"id": 1, "_class": "chapter", "title": "Ch"},
				{
					"id": 2, "_class": "lecture", "title": "Vid",
					"asset": map[string]any{
						"asset_type": "video",
						"media_sources": []map[string]any{
							{"type": "application/dash+xml", "label": "auto", "src": "https://cdn.example.com/dash.mpd"},
							{"type": "video/mp4", "label": "720", "src": "https://cdn.example.com/720.mp4"},
							{"type": "video/mp4", "label": "360", "src": "https://cdn.example.com/360.mp4"},
						},
						"captions": []map[string]any{
							{"locale_id": "en_US", "video_label": "English", "url": "https://cdn.example.com/en.vtt"},
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	nodes, err := newTestCatalog(srv.URL).FetchCurriculum(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	asset := nodes[1].Asset
	require.NotNil(t, asset)
	require.NotNil(t, asset.Streams)

	streams := asset.Streams
	assert.False(t, streams.IsEncrypted)
	assert.Equal(t, "360", streams.MinQuality)
	assert.Equal(t, "720", streams.MaxQuality)

	// DASH manifest dropped
	require.Len(t, streams.Sources, 2)
	assert.Equal(t, "https://cdn.example.com/720.mp4", streams.Sources["720"].URL)

	require.Len(t, asset.Captions, 1)
	assert.Equal(t, "English", asset.Captions[0].Label)
}

func TestNormalizeStreams_AllEncryptedPaths(t *testing.T) {
	c := newTestCatalog("https://example.test")

	streams := c.normalizeStreams(context.Background(), []mediaSource{
		{Type: "video/mp4", Label: "720", Src: "https://cdn.example.com/encrypted-files/720.mp4"},
		{Type: "video/mp4", Label: "360", Src: "https://cdn.example.com/encrypted-files/360.mp4"},
	}, false, "locked video")

	require.NotNil(t, streams)
	assert.True(t, streams.IsEncrypted)
	// Original sources retained so an allow-encrypted task can still plan them
	assert.Len(t, streams.Sources, 2)
}

func TestNormalizeStreams_ExpandsAutoPlaylist(t *testing.T) {
	playlist := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, masterPlaylist)
	}))
	defer playlist.Close()

	c := newTestCatalog("https://example.test")
	streams := c.normalizeStreams(context.Background(), []mediaSource{
		{Type: "application/x-mpegURL", Label: "auto", Src: playlist.URL + "/master.m3u8"},
	}, false, "adaptive video")

	require.NotNil(t, streams)
	assert.False(t, streams.IsEncrypted)
	assert.Equal(t, "144", streams.MinQuality)
	assert.Equal(t, "1080", streams.MaxQuality)

	// auto entry plus one entry per resolved variant
	assert.Len(t, streams.Sources, 5)
	assert.Equal(t, "https://cdn.example.com/v/1080.m3u8", streams.Sources["1080"].URL)
	assert.Contains(t, streams.Sources, "auto")
}

func TestNormalizeStreams_AutoOnlyQualityRange(t *testing.T) {
	c := newTestCatalog("https://example.test")

	// Encrypted content never dereferences the playlist
	streams := c.normalizeStreams(context.Background(), []mediaSource{
		{Type: "application/x-mpegURL", Label: "auto", Src: "https://cdn.example.com/master.m3u8"},
	}, true, "drm video")

	require.NotNil(t, streams)
	assert.True(t, streams.IsEncrypted)
	assert.Equal(t, "auto", streams.MinQuality)
	assert.Equal(t, "auto", streams.MaxQuality)
	assert.Len(t, streams.Sources, 1)
}

func TestResolveLectureAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/users/me/subscribed-courses/42/lectures/7")
		writeJSON(t, w, map[string]any{
			"id": 7, "_class": "lecture", "title": "Reading",
			"asset": map[string]any{
				"asset_type": "article",
				"title":      "Reading",
				"body":       "<p>inline content</p>",
			},
		})
	}))
	defer srv.Close()

	asset, err := newTestCatalog(srv.URL).ResolveLectureAsset(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetArticle, asset.Kind)
	assert.Equal(t, "<p>inline content</p>", asset.Body)
}

func TestResolveLectureAsset_MissingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": 7, "_class": "lecture", "title": "Empty"})
	}))
	defer srv.Close()

	_, err := newTestCatalog(srv.URL).ResolveLectureAsset(context.Background(), 42, 7)
	var protoErr *domain.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}
