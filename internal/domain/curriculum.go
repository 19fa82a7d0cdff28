package domain

// NodeClass is the curriculum node discriminator
type NodeClass string

const (
	NodeChapter  NodeClass = "chapter"
	NodeLecture  NodeClass = "lecture"
	NodeQuiz     NodeClass = "quiz"
	NodePractice NodeClass = "practice"
)

// AssetKind is the closed set of lecture asset types
type AssetKind string

const (
	AssetVideo        AssetKind = "video"
	AssetVideoMashup  AssetKind = "videomashup"
	AssetArticle      AssetKind = "article"
	AssetFile         AssetKind = "file"
	AssetEBook        AssetKind = "e-book"
	AssetPresentation AssetKind = "presentation"
)

// CurriculumNode is one entry of the ordered curriculum tree. The
// catalog client validates the upstream shape and produces these; the
// payload per class is:
//
//	chapter           -> Title only
//	lecture           -> Asset (and Supplementary attachments)
//	quiz / practice   -> Title + web URL for a redirect stub
type CurriculumNode struct {
	ID            int64
	Class         NodeClass
	Title         string
	URL           string // lecture/quiz/practice web URL for redirect items
	Asset         *Asset
	Supplementary []Attachment
}

// Asset carries the downloadable payload of a lecture
type Asset struct {
	Kind     AssetKind
	Title    string
	Body     string // inline HTML for articles
	Streams  *StreamSources
	Captions []Caption
	Files    []Attachment // resolved download_urls for file/e-book/presentation
}

// Caption is one subtitle track of a video asset
type Caption struct {
	Locale string // e.g. "en_US"
	Label  string // e.g. "English"
	URL    string // WebVTT payload URL
}

// Attachment is one resolvable supplementary download
type Attachment struct {
	Title       string
	Filename    string
	URL         string
	ExternalURL string
}

// StreamSource is one quality/format variant of a video
type StreamSource struct {
	URL      string `json:"url"`
	MimeType string `json:"type"`
}

// StreamSources is the normalized shape produced by the catalog client
// for video assets. Keys of Sources are quality labels: numeric strings
// plus the optional "auto" adaptive-playlist entry.
type StreamSources struct {
	MinQuality  string                  `json:"minQuality"`
	MaxQuality  string                  `json:"maxQuality"`
	IsEncrypted bool                    `json:"isEncrypted"`
	Sources     map[string]StreamSource `json:"sources"`
}

// HasNumericSources reports whether any non-"auto" source exists
func (s *StreamSources) HasNumericSources() bool {
	for label := range s.Sources {
		if label != "auto" {
			return true
		}
	}
	return false
}
