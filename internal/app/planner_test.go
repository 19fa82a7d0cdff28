package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/pkg/logger"
)

func testTask(t *testing.T) *domain.DownloadTask {
	t.Helper()
	task := domain.NewDownloadTask(42, t.TempDir())
	return task
}

func articleNode(id int64, title string) domain.CurriculumNode {
	return domain.CurriculumNode{
		ID:    id,
		Class: domain.NodeLecture,
		Title: title,
		Asset: &domain.Asset{Kind: domain.AssetArticle, Body: "<p>" + title + "</p>"},
	}
}

func videoNode(title string, streams *domain.StreamSources, captions ...domain.Caption) domain.CurriculumNode {
	return domain.CurriculumNode{
		Class: domain.NodeLecture,
		Title: title,
		Asset: &domain.Asset{Kind: domain.AssetVideo, Streams: streams, Captions: captions},
	}
}

func numericStreams(qualities ...int) *domain.StreamSources {
	s := &domain.StreamSources{Sources: map[string]domain.StreamSource{}}
	for _, q := range qualities {
		key := fmt.Sprintf("%d", q)
		s.Sources[key] = domain.StreamSource{URL: "https://cdn.example.com/" + key + ".mp4", MimeType: "video/mp4"}
	}
	min, max := qualities[0], qualities[0]
	for _, q := range qualities {
		if q < min {
			min = q
		}
		if q > max {
			max = q
		}
	}
	s.MinQuality = fmt.Sprintf("%d", min)
	s.MaxQuality = fmt.Sprintf("%d", max)
	return s
}

func newTestPlanner() *Planner {
	return NewPlanner(logger.NewDefault())
}

func TestPlan_RangeFilterKeepsOriginalNumbering(t *testing.T) {
	nodes := []domain.CurriculumNode{{Class: domain.NodeChapter, Title: "Chapter One"}}
	for i := 1; i <= 10; i++ {
		nodes = append(nodes, articleNode(int64(i), fmt.Sprintf("Lesson %d", i)))
	}

	task := testTask(t)
	task.RangeEnabled = true
	task.RangeStart = 3
	task.RangeEnd = 5

	items, err := newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)
	require.Len(t, items, 3)

	for i, item := range items {
		seq := i + 3
		assert.Equal(t, fmt.Sprintf("%d. Lesson %d.html", seq, seq), filepath.Base(item.TargetPath))
	}
}

func TestPlan_QualitySelection(t *testing.T) {
	cases := []struct {
		preference string
		want       string
	}{
		{domain.QualityAuto, "1080"},
		{domain.QualityHighest, "1080"},
		{domain.QualityLowest, "360"},
		{"720", "720"},
		{"500", "360"}, // distance 140 beats 220
	}

	for _, tc := range cases {
		t.Run(tc.preference, func(t *testing.T) {
			task := testTask(t)
			task.Quality = tc.preference

			nodes := []domain.CurriculumNode{
				{Class: domain.NodeChapter, Title: "Ch"},
				videoNode("Vid", numericStreams(360, 720, 1080)),
			}

			items, err := newTestPlanner().Plan(task, "Course", nodes)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, tc.want, items[0].Quality)
		})
	}
}

func TestPlan_EncryptedVideoPolicy(t *testing.T) {
	streams := numericStreams(720)
	streams.IsEncrypted = true

	nodes := []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
		videoNode("Locked", streams),
		articleNode(2, "Open"),
	}

	task := testTask(t)
	items, err := newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.KindArticle, items[0].Kind)

	task = testTask(t)
	task.AllowEncrypted = true
	items, err = newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.KindVideo, items[0].Kind)
	assert.True(t, items[0].IsEncrypted)
}

func TestPlan_IdempotentPaths(t *testing.T) {
	nodes := []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
		videoNode("Vid", numericStreams(360, 720)),
		articleNode(2, "Read"),
	}

	task := testTask(t)
	planner := newTestPlanner()

	first, err := planner.Plan(task, "Course", nodes)
	require.NoError(t, err)
	second, err := planner.Plan(task, "Course", nodes)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].TargetPath, second[i].TargetPath)
	}
}

func TestPlan_SubtitleLanguageFilter(t *testing.T) {
	captions := []domain.Caption{
		{Locale: "en_US", Label: "English", URL: "https://cdn.example.com/en.vtt"},
		{Locale: "fr_FR", Label: "French", URL: "https://cdn.example.com/fr.vtt"},
		{Locale: "es_ES", Label: "Spanish", URL: "https://cdn.example.com/es.vtt"},
	}
	nodes := []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
		videoNode("Vid", numericStreams(720), captions...),
	}

	task := testTask(t)
	task.SubtitleLangs = "English|Spanish"

	items, err := newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)

	var srt []string
	for _, item := range items {
		if item.Kind == domain.KindSubtitle {
			srt = append(srt, filepath.Base(item.TargetPath))
		}
	}
	require.Len(t, srt, 2)
	assert.Contains(t, srt[0], "en_US")
	assert.Contains(t, srt[1], "es_ES")

	// No filter selects every caption
	task = testTask(t)
	items, err = newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)
	count := 0
	for _, item := range items {
		if item.Kind == domain.KindSubtitle {
			count++
		}
	}
	assert.Equal(t, 3, count)

	// Skip flag drops all captions
	task = testTask(t)
	task.SkipSubtitles = true
	items, err = newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)
	for _, item := range items {
		assert.NotEqual(t, domain.KindSubtitle, item.Kind)
	}
}

func TestPlan_ZeroPaddedSequence(t *testing.T) {
	nodes := []domain.CurriculumNode{{Class: domain.NodeChapter, Title: "Ch"}}
	for i := 1; i <= 12; i++ {
		nodes = append(nodes, articleNode(int64(i), fmt.Sprintf("Lesson %d", i)))
	}

	task := testTask(t)
	task.SeqZeroLeft = true

	items, err := newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)
	require.Len(t, items, 12)
	assert.Equal(t, "01. Lesson 1.html", filepath.Base(items[0].TargetPath))
	assert.Equal(t, "12. Lesson 12.html", filepath.Base(items[11].TargetPath))
}

func TestPlan_QuizBecomesRedirect(t *testing.T) {
	nodes := []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
		{Class: domain.NodeQuiz, Title: "Checkpoint", URL: "https://www.example.com/quiz/9"},
	}

	items, err := newTestPlanner().Plan(testTask(t), "Course", nodes)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, domain.KindRedirect, items[0].Kind)
	assert.Contains(t, items[0].SourceURL, `window.location = "https://www.example.com/quiz/9"`)
	assert.True(t, strings.HasSuffix(items[0].TargetPath, "1. Checkpoint.html"))
}

func TestPlan_SupplementaryAttachments(t *testing.T) {
	nodes := []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
		{
			Class: domain.NodeLecture,
			Title: "With Extras",
			Asset: &domain.Asset{Kind: domain.AssetArticle, Body: "<p>x</p>"},
			Supplementary: []domain.Attachment{
				{Title: "Slides", URL: "https://cdn.example.com/slides.pdf"},
				{Title: "Repo", ExternalURL: "https://github.com/example/repo"},
			},
		},
	}

	items, err := newTestPlanner().Plan(testTask(t), "Course", nodes)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, domain.KindAttachment, items[1].Kind)
	assert.Equal(t, "1.1 Slides.pdf", filepath.Base(items[1].TargetPath))

	assert.Equal(t, domain.KindRedirect, items[2].Kind)
	assert.Equal(t, "1.2 Repo.html", filepath.Base(items[2].TargetPath))
	assert.Contains(t, items[2].SourceURL, "window.location")
}

func TestPlan_TypeFilter(t *testing.T) {
	nodes := []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
		videoNode("Vid", numericStreams(720)),
		{
			Class: domain.NodeLecture,
			Title: "Handout",
			Asset: &domain.Asset{
				Kind:  domain.AssetFile,
				Files: []domain.Attachment{{URL: "https://cdn.example.com/h.pdf"}},
			},
		},
	}

	task := testTask(t)
	task.Type = domain.DownloadVideosOnly
	items, err := newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.KindVideo, items[0].Kind)

	task = testTask(t)
	task.Type = domain.DownloadAttachmentsOnly
	items, err = newTestPlanner().Plan(task, "Course", nodes)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.KindAttachment, items[0].Kind)
}

func TestPlan_EmptyCurriculum(t *testing.T) {
	var planErr *domain.PlanningError

	_, err := newTestPlanner().Plan(testTask(t), "Course", nil)
	require.ErrorAs(t, err, &planErr)

	// Chapters alone produce nothing downloadable
	_, err = newTestPlanner().Plan(testTask(t), "Course", []domain.CurriculumNode{
		{Class: domain.NodeChapter, Title: "Ch"},
	})
	require.ErrorAs(t, err, &planErr)
}
