package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/pkg/fileutil"
)

const (
	curriculumPath = "/api-2.0/courses/%d/cached-subscriber-curriculum-items"
	lecturePath    = "/api-2.0/users/me/subscribed-courses/%d/lectures/%d"

	assetFields = "fields[asset]=asset_type,title,filename,body,captions,media_sources,stream_urls,download_urls,external_url,media_license_token"

	dashMimeType = "application/dash+xml"

	fallbackPageSize = 10000
)

// CatalogClient talks to the remote course catalog API. It paginates
// curriculum fetches transparently and normalizes the irregular
// upstream asset payloads into domain.CurriculumNode values, invoking
// the stream resolver to expand adaptive "auto" video sources.
//
// Catalog reads are not retried here; transfer retries belong to the
// download engine.
type CatalogClient struct {
	cfg      domain.CatalogConfig
	baseURL  string
	client   *http.Client
	resolver *StreamResolver
	logger   *zap.Logger
}

// NewCatalogClient creates a catalog client. cfg.BaseURL overrides the
// subdomain-derived endpoint when set.
func NewCatalogClient(cfg domain.CatalogConfig, resolver *StreamResolver, logger *zap.Logger) *CatalogClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		subdomain := strings.ToLower(strings.TrimSpace(cfg.Subdomain))
		if subdomain == "" {
			subdomain = "www"
		}
		baseURL = fmt.Sprintf("https://%s.udemy.com", subdomain)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 40 * time.Second
	}

	return &CatalogClient{
		cfg:      cfg,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		resolver: resolver,
		logger:   logger,
	}
}

// Upstream wire shapes. The catalog returns loosely-typed objects; the
// normalization step below converts them to the closed domain types and
// rejects classes it does not know.

type curriculumPage struct {
	Count   int              `json:"count"`
	Next    string           `json:"next"`
	Results []curriculumItem `json:"results"`
}

type curriculumItem struct {
	ID            int64          `json:"id"`
	Class         string         `json:"_class"`
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	Asset         *assetPayload  `json:"asset"`
	Supplementary []assetPayload `json:"supplementary_assets"`
}

type assetPayload struct {
	AssetType         string                  `json:"asset_type"`
	Title             string                  `json:"title"`
	Filename          string                  `json:"filename"`
	Body              string                  `json:"body"`
	ExternalURL       string                  `json:"external_url"`
	MediaLicenseToken string                  `json:"media_license_token"`
	Captions          []captionPayload        `json:"captions"`
	StreamURLs        *streamURLsPayload      `json:"stream_urls"`
	MediaSources      []mediaSource           `json:"media_sources"`
	DownloadURLs      map[string][]fileSource `json:"download_urls"`
}

type streamURLsPayload struct {
	Video []mediaSource `json:"Video"`
}

type mediaSource struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	File  string `json:"file"`
	Src   string `json:"src"`
}

func (m mediaSource) bestURL() string {
	if m.File != "" {
		return m.File
	}
	return m.Src
}

type captionPayload struct {
	LocaleID   string `json:"locale_id"`
	VideoLabel string `json:"video_label"`
	URL        string `json:"url"`
}

type fileSource struct {
	Label string `json:"label"`
	File  string `json:"file"`
}

// FetchCurriculum returns the ordered curriculum of a course, following
// the opaque pagination cursor until exhausted. An upstream 503 triggers
// exactly one fallback call to the reduced-field endpoint; any other
// failure is returned to the caller.
func (c *CatalogClient) FetchCurriculum(ctx context.Context, courseID int64) ([]domain.CurriculumNode, error) {
	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	firstPage := fmt.Sprintf("%s"+curriculumPath+"?page_size=%d&fields[lecture]=id,title,asset,supplementary_assets&%s",
		c.baseURL, courseID, pageSize, assetFields)

	items, err := c.fetchAllPages(ctx, firstPage)
	if errors.Is(err, domain.ErrServiceUnavailable) {
		c.logger.Warn("Curriculum endpoint unavailable, using reduced-field fallback",
			zap.Int64("course_id", courseID))
		items, err = c.fetchFallback(ctx, courseID)
	}
	if err != nil {
		return nil, err
	}

	return c.normalize(ctx, items)
}

// ResolveLectureAsset fetches and normalizes the full asset payload of
// a single lecture.
func (c *CatalogClient) ResolveLectureAsset(ctx context.Context, courseID, lectureID int64) (*domain.Asset, error) {
	u := fmt.Sprintf("%s"+lecturePath+"?fields[lecture]=id,title,asset,supplementary_assets&%s",
		c.baseURL, courseID, lectureID, assetFields)

	var item curriculumItem
	if err := c.fetchJSON(ctx, u, &item); err != nil {
		return nil, err
	}
	if item.Asset == nil {
		return nil, &domain.ProtocolError{What: fmt.Sprintf("lecture %d has no asset", lectureID)}
	}
	return c.normalizeAsset(ctx, item.Asset)
}

func (c *CatalogClient) fetchAllPages(ctx context.Context, firstPage string) ([]curriculumItem, error) {
	// The cursor in "next" comes back percent-encoded; the upstream
	// rejects re-encoded brackets, so decode them before following.
	decoder := strings.NewReplacer("%5B", "[", "%5D", "]", "%2C", ",")

	var items []curriculumItem
	next := firstPage
	for next != "" {
		var page curriculumPage
		if err := c.fetchJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Results...)
		next = decoder.Replace(page.Next)
	}
	return items, nil
}

func (c *CatalogClient) fetchFallback(ctx context.Context, courseID int64) ([]curriculumItem, error) {
	u := fmt.Sprintf("%s"+curriculumPath+"?page_size=%d&fields[lecture]=id,title,asset",
		c.baseURL, courseID, fallbackPageSize)

	var page curriculumPage
	if err := c.fetchJSON(ctx, u, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *CatalogClient) fetchJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
		req.Header.Set("X-Udemy-Authorization", "Bearer "+c.cfg.AccessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %s", domain.ErrServiceUnavailable, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, rawURL)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// normalize converts raw curriculum items to domain nodes. Curricula
// that do not open with a chapter get a synthetic leading chapter so the
// planner always has a directory to place items under.
func (c *CatalogClient) normalize(ctx context.Context, items []curriculumItem) ([]domain.CurriculumNode, error) {
	nodes := make([]domain.CurriculumNode, 0, len(items)+1)

	for _, item := range items {
		class := strings.ToLower(item.Class)
		node := domain.CurriculumNode{
			ID:    item.ID,
			Title: item.Title,
			URL:   c.itemWebURL(item),
		}

		switch class {
		case "chapter":
			node.Class = domain.NodeChapter
		case "quiz":
			node.Class = domain.NodeQuiz
		case "practice":
			node.Class = domain.NodePractice
		case "lecture":
			node.Class = domain.NodeLecture
			if item.Asset != nil {
				asset, err := c.normalizeAsset(ctx, item.Asset)
				if err != nil {
					c.logger.Warn("Skipping asset with unrecognized shape",
						zap.Int64("lecture_id", item.ID),
						zap.String("title", item.Title),
						zap.Error(err))
				} else {
					node.Asset = asset
				}
			}
			node.Supplementary = c.normalizeAttachments(item.Supplementary)
		default:
			return nil, &domain.ProtocolError{What: fmt.Sprintf("unknown curriculum class %q", item.Class)}
		}

		nodes = append(nodes, node)
	}

	if len(nodes) > 0 && nodes[0].Class != domain.NodeChapter {
		nodes = append([]domain.CurriculumNode{{Class: domain.NodeChapter, Title: "Chapter 1"}}, nodes...)
	}

	return nodes, nil
}

func (c *CatalogClient) itemWebURL(item curriculumItem) string {
	if item.URL != "" {
		if strings.HasPrefix(item.URL, "http") {
			return item.URL
		}
		return c.baseURL + item.URL
	}
	return fmt.Sprintf("%s/%s/%d", c.baseURL, strings.ToLower(item.Class), item.ID)
}

func (c *CatalogClient) normalizeAsset(ctx context.Context, raw *assetPayload) (*domain.Asset, error) {
	kind := domain.AssetKind(strings.ToLower(raw.AssetType))
	switch kind {
	case domain.AssetVideo, domain.AssetVideoMashup, domain.AssetArticle,
		domain.AssetFile, domain.AssetEBook, domain.AssetPresentation:
	default:
		return nil, &domain.ProtocolError{What: fmt.Sprintf("unknown asset type %q", raw.AssetType)}
	}

	asset := &domain.Asset{
		Kind:  kind,
		Title: raw.Title,
		Body:  raw.Body,
		Files: flattenDownloadURLs(raw.DownloadURLs),
	}

	for _, cpt := range raw.Captions {
		asset.Captions = append(asset.Captions, domain.Caption{
			Locale: cpt.LocaleID,
			Label:  cpt.VideoLabel,
			URL:    cpt.URL,
		})
	}

	if kind == domain.AssetVideo || kind == domain.AssetVideoMashup {
		sources := raw.MediaSources
		if raw.StreamURLs != nil && len(raw.StreamURLs.Video) > 0 {
			sources = raw.StreamURLs.Video
		}
		asset.Streams = c.normalizeStreams(ctx, sources, raw.MediaLicenseToken != "", raw.Title)
	}

	return asset, nil
}

func (c *CatalogClient) normalizeAttachments(raw []assetPayload) []domain.Attachment {
	var out []domain.Attachment
	for _, a := range raw {
		files := flattenDownloadURLs(a.DownloadURLs)
		att := domain.Attachment{
			Title:       a.Title,
			Filename:    a.Filename,
			ExternalURL: a.ExternalURL,
		}
		if len(files) > 0 {
			att.URL = files[0].URL
		}
		if att.URL == "" && att.ExternalURL == "" {
			continue
		}
		out = append(out, att)
	}
	return out
}

func flattenDownloadURLs(urls map[string][]fileSource) []domain.Attachment {
	var out []domain.Attachment
	for _, sources := range urls {
		for _, s := range sources {
			if s.File == "" {
				continue
			}
			out = append(out, domain.Attachment{Title: s.Label, URL: s.File})
		}
	}
	return out
}

// normalizeStreams converts the upstream source list to the single
// {minQuality, maxQuality, isEncrypted, sources} shape. DASH manifests
// are dropped, license-gated paths count toward the encrypted verdict,
// and a non-encrypted "auto" playlist is dereferenced into one source
// entry per resolved quality. A resolver failure on the auto entry only
// loses the expanded variants, never the asset.
func (c *CatalogClient) normalizeStreams(ctx context.Context, raw []mediaSource, encrypted bool, title string) *domain.StreamSources {
	if len(raw) == 0 {
		return nil
	}

	if !encrypted {
		var open []mediaSource
		for _, s := range raw {
			if !fileutil.IsEncryptedURL(s.bestURL()) {
				open = append(open, s)
			}
		}
		if len(open) == 0 {
			encrypted = true
		} else {
			raw = open
		}
	}

	out := &domain.StreamSources{
		IsEncrypted: encrypted,
		Sources:     make(map[string]domain.StreamSource),
	}
	minQ, maxQ := -1, -1
	track := func(q int) {
		if minQ == -1 || q < minQ {
			minQ = q
		}
		if q > maxQ {
			maxQ = q
		}
	}

	for _, s := range raw {
		if s.Type == dashMimeType {
			continue
		}
		label := strings.ToLower(s.Label)
		u := s.bestURL()
		if u == "" {
			continue
		}

		out.Sources[label] = domain.StreamSource{URL: u, MimeType: s.Type}

		if n, err := strconv.Atoi(label); err == nil {
			track(n)
			continue
		}
		if label == "auto" && !encrypted {
			variants, err := c.resolver.Load(ctx, u)
			if err != nil {
				c.logger.Warn("Failed to expand adaptive playlist",
					zap.String("title", title),
					zap.Error(err))
				continue
			}
			for _, v := range variants {
				track(v.Quality)
				key := strconv.Itoa(v.Quality)
				if _, exists := out.Sources[key]; !exists {
					out.Sources[key] = domain.StreamSource{URL: v.URL, MimeType: s.Type}
				}
			}
		}
	}

	if minQ >= 0 {
		out.MinQuality = strconv.Itoa(minQ)
		out.MaxQuality = strconv.Itoa(maxQ)
	} else if _, hasAuto := out.Sources["auto"]; hasAuto {
		out.MinQuality = "auto"
		out.MaxQuality = "auto"
	}

	return out
}
