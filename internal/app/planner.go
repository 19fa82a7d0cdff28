package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/pkg/fileutil"
)

const (
	lectureSeparator = ". "
	redirectTemplate = `<script type="text/javascript">window.location = "%s";</script>`
)

// Planner walks a resolved curriculum and a task's configuration and
// emits the ordered list of work items to download. Planning is pure
// apart from directory creation and the rename reconciliation inside
// fileutil.SequenceName.
type Planner struct {
	logger *zap.Logger
}

// NewPlanner creates a download planner
func NewPlanner(logger *zap.Logger) *Planner {
	return &Planner{logger: logger}
}

// Plan derives work items from a curriculum snapshot. The course
// directory and chapter subdirectories are created as nodes are
// visited. An empty plan returns PlanningError.
func (p *Planner) Plan(task *domain.DownloadTask, courseTitle string, nodes []domain.CurriculumNode) ([]*domain.WorkItem, error) {
	if len(nodes) == 0 {
		return nil, &domain.PlanningError{Reason: "curriculum is empty"}
	}

	courseDir := filepath.Join(task.TargetRoot, fileutil.SanitizeFilename(courseTitle))
	if err := os.MkdirAll(courseDir, 0o755); err != nil {
		return nil, &domain.PlanningError{Reason: fmt.Sprintf("cannot create course directory: %v", err)}
	}

	// Sequence numbers in filenames reflect the lecture's position in
	// the full curriculum, so the total count must be known before any
	// name is built.
	totalLectures := countSequencedNodes(nodes)

	var (
		items        []*domain.WorkItem
		chapterDir   string
		chapterIndex int
		sequence     int
	)

	for _, node := range nodes {
		switch node.Class {
		case domain.NodeChapter:
			chapterIndex++
			name := fmt.Sprintf("%d%s%s", chapterIndex, lectureSeparator, fileutil.SanitizeFilename(node.Title))
			chapterDir = filepath.Join(courseDir, name)

		case domain.NodeLecture, domain.NodeQuiz, domain.NodePractice:
			if chapterDir == "" {
				continue
			}
			sequence++

			if task.RangeEnabled {
				if sequence < task.RangeStart {
					continue
				}
				if task.RangeEnd > 0 && sequence > task.RangeEnd {
					return p.finish(task, items)
				}
			}

			if err := os.MkdirAll(chapterDir, 0o755); err != nil {
				return nil, &domain.PlanningError{Reason: fmt.Sprintf("cannot create chapter directory: %v", err)}
			}

			items = append(items, p.planNode(task, node, chapterDir, sequence, totalLectures)...)
		}
	}

	return p.finish(task, items)
}

func (p *Planner) finish(task *domain.DownloadTask, items []*domain.WorkItem) ([]*domain.WorkItem, error) {
	if len(items) == 0 {
		return nil, &domain.PlanningError{Reason: "no downloadable items in curriculum"}
	}
	p.logger.Info("Download plan ready",
		zap.String("task_id", task.ID),
		zap.Int("items", len(items)))
	return items, nil
}

// planNode emits the work items of one in-range curriculum node
func (p *Planner) planNode(task *domain.DownloadTask, node domain.CurriculumNode, chapterDir string, sequence, total int) []*domain.WorkItem {
	var items []*domain.WorkItem

	switch {
	case node.Class == domain.NodeQuiz || node.Class == domain.NodePractice:
		items = append(items, p.redirectItem(task, node, chapterDir, sequence, total))

	case node.Asset == nil:
		// Lecture with no resolvable asset; nothing to download.

	case node.Asset.Kind == domain.AssetArticle:
		items = append(items, p.articleItem(task, node, chapterDir, sequence, total))

	case node.Asset.Kind == domain.AssetVideo || node.Asset.Kind == domain.AssetVideoMashup:
		if task.Type == domain.DownloadBoth || task.Type == domain.DownloadVideosOnly {
			if item := p.videoItem(task, node, chapterDir, sequence, total); item != nil {
				items = append(items, item)
			}
		}
		if !task.SkipSubtitles {
			items = append(items, p.subtitleItems(task, node, chapterDir, sequence, total)...)
		}

	case node.Asset.Kind == domain.AssetFile || node.Asset.Kind == domain.AssetEBook || node.Asset.Kind == domain.AssetPresentation:
		if task.Type == domain.DownloadBoth || task.Type == domain.DownloadAttachmentsOnly {
			if item := p.fileItem(task, node, chapterDir, sequence, total); item != nil {
				items = append(items, item)
			}
		}
	}

	if task.Type == domain.DownloadBoth || task.Type == domain.DownloadAttachmentsOnly {
		items = append(items, p.attachmentItems(task, node, chapterDir, sequence, total)...)
	}

	return items
}

// videoItem picks a quality source per the task's preference. A nil
// return means the lecture is skipped: no streams, an encrypted source
// under a restrictive config, or no usable URL.
func (p *Planner) videoItem(task *domain.DownloadTask, node domain.CurriculumNode, chapterDir string, sequence, total int) *domain.WorkItem {
	streams := node.Asset.Streams
	if streams == nil || len(streams.Sources) == 0 {
		return nil
	}
	if streams.IsEncrypted && !task.AllowEncrypted {
		p.logger.Info("Skipping encrypted video",
			zap.String("task_id", task.ID),
			zap.String("title", node.Title))
		return nil
	}

	label := selectQuality(task.Quality, streams)
	source, ok := streams.Sources[label]
	if !ok {
		label = "auto"
		source, ok = streams.Sources[label]
	}
	if !ok || source.URL == "" {
		return nil
	}

	_, path := fileutil.SequenceName(sequence, total,
		fileutil.SanitizeFilename(node.Title)+".mp4",
		lectureSeparator, chapterDir, task.SeqZeroLeft)

	item := domain.NewWorkItem(task.ID, domain.KindVideo, node.Title, source.URL, path)
	item.Quality = label
	item.Format = source.MimeType
	item.IsEncrypted = streams.IsEncrypted
	return item
}

// selectQuality applies the quality-selection policy over the
// normalized source map.
func selectQuality(preference string, streams *domain.StreamSources) string {
	switch preference {
	case domain.QualityAuto, domain.QualityHighest, "":
		if streams.MaxQuality != "" {
			return streams.MaxQuality
		}
		return "auto"
	case domain.QualityLowest:
		if streams.MinQuality != "" {
			return streams.MinQuality
		}
		return "auto"
	}

	if _, ok := streams.Sources[preference]; ok {
		return preference
	}

	target := 720
	if n, err := strconv.Atoi(preference); err == nil {
		target = n
	}
	return fileutil.ClosestKey(sortedSourceKeys(streams), target)
}

// sortedSourceKeys returns source labels in deterministic order:
// numeric qualities ascending, then the remaining labels. Map iteration
// order must not leak into tie-breaking.
func sortedSourceKeys(streams *domain.StreamSources) []string {
	var numeric []int
	var rest []string
	for k := range streams.Sources {
		if n, err := strconv.Atoi(k); err == nil {
			numeric = append(numeric, n)
		} else {
			rest = append(rest, k)
		}
	}
	sort.Ints(numeric)
	sort.Strings(rest)

	keys := make([]string, 0, len(numeric)+len(rest))
	for _, n := range numeric {
		keys = append(keys, strconv.Itoa(n))
	}
	return append(keys, rest...)
}

func (p *Planner) articleItem(task *domain.DownloadTask, node domain.CurriculumNode, chapterDir string, sequence, total int) *domain.WorkItem {
	_, path := fileutil.SequenceName(sequence, total,
		fileutil.SanitizeFilename(node.Title)+".html",
		lectureSeparator, chapterDir, task.SeqZeroLeft)

	item := domain.NewWorkItem(task.ID, domain.KindArticle, node.Title, node.Asset.Body, path)
	item.Format = "html"
	return item
}

func (p *Planner) fileItem(task *domain.DownloadTask, node domain.CurriculumNode, chapterDir string, sequence, total int) *domain.WorkItem {
	if len(node.Asset.Files) == 0 {
		return nil
	}
	sourceURL := node.Asset.Files[0].URL
	if sourceURL == "" {
		return nil
	}

	ext := fileutil.FileExtension(sourceURL)
	if ext == "" {
		ext = "pdf"
	}

	_, path := fileutil.SequenceName(sequence, total,
		fileutil.SanitizeFilename(node.Title)+"."+ext,
		lectureSeparator, chapterDir, task.SeqZeroLeft)

	item := domain.NewWorkItem(task.ID, domain.KindAttachment, node.Title, sourceURL, path)
	item.Format = ext
	return item
}

// subtitleItems emits one item per caption passing the language filter.
// An empty filter accepts every caption.
func (p *Planner) subtitleItems(task *domain.DownloadTask, node domain.CurriculumNode, chapterDir string, sequence, total int) []*domain.WorkItem {
	captions := node.Asset.Captions
	if len(captions) == 0 {
		return nil
	}

	var selected []string
	if task.SubtitleLangs != "" {
		selected = strings.Split(task.SubtitleLangs, "|")
	}

	var items []*domain.WorkItem
	for _, c := range captions {
		if c.URL == "" {
			continue
		}
		if len(selected) > 0 && !captionMatches(c, selected) {
			continue
		}

		name := fileutil.SanitizeFilename(node.Title)
		if c.Locale != "" {
			name += "." + c.Locale
		}
		_, path := fileutil.SequenceName(sequence, total, name+".srt",
			lectureSeparator, chapterDir, task.SeqZeroLeft)

		item := domain.NewWorkItem(task.ID, domain.KindSubtitle, node.Title, c.URL, path)
		item.Format = "srt"
		items = append(items, item)
	}
	return items
}

func captionMatches(c domain.Caption, selected []string) bool {
	for _, lang := range selected {
		if lang == c.Label || lang == c.Locale {
			return true
		}
	}
	return false
}

// attachmentItems emits the supplementary downloads of a node. External
// URLs become redirect stubs so the local mirror stays navigable.
func (p *Planner) attachmentItems(task *domain.DownloadTask, node domain.CurriculumNode, chapterDir string, sequence, total int) []*domain.WorkItem {
	var items []*domain.WorkItem
	for idx, att := range node.Supplementary {
		separator := fmt.Sprintf(".%d ", idx+1)
		title := att.Title
		if title == "" {
			title = fmt.Sprintf("Attachment %d", idx+1)
		}

		switch {
		case att.URL != "":
			ext := fileutil.FileExtension(att.URL)
			if ext == "" && att.Filename != "" {
				ext = fileutil.FileExtension(att.Filename)
			}
			name := fileutil.SanitizeFilename(title)
			if ext != "" {
				name += "." + ext
			}
			_, path := fileutil.SequenceName(sequence, total, name, separator, chapterDir, task.SeqZeroLeft)

			item := domain.NewWorkItem(task.ID, domain.KindAttachment, title, att.URL, path)
			item.Format = ext
			items = append(items, item)

		case att.ExternalURL != "":
			_, path := fileutil.SequenceName(sequence, total,
				fileutil.SanitizeFilename(title)+".html", separator, chapterDir, task.SeqZeroLeft)

			item := domain.NewWorkItem(task.ID, domain.KindRedirect, title,
				fmt.Sprintf(redirectTemplate, att.ExternalURL), path)
			item.Format = "html"
			items = append(items, item)
		}
	}
	return items
}

func (p *Planner) redirectItem(task *domain.DownloadTask, node domain.CurriculumNode, chapterDir string, sequence, total int) *domain.WorkItem {
	_, path := fileutil.SequenceName(sequence, total,
		fileutil.SanitizeFilename(node.Title)+".html",
		lectureSeparator, chapterDir, task.SeqZeroLeft)

	item := domain.NewWorkItem(task.ID, domain.KindRedirect, node.Title,
		fmt.Sprintf(redirectTemplate, node.URL), path)
	item.Format = "html"
	return item
}

func countSequencedNodes(nodes []domain.CurriculumNode) int {
	count := 0
	seenChapter := false
	for _, n := range nodes {
		switch n.Class {
		case domain.NodeChapter:
			seenChapter = true
		case domain.NodeLecture, domain.NodeQuiz, domain.NodePractice:
			if seenChapter {
				count++
			}
		}
	}
	return count
}
