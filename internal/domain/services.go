package domain

import "context"

// CurriculumFetcher fetches and normalizes course curricula from the
// remote catalog
type CurriculumFetcher interface {
	// FetchCurriculum returns the ordered curriculum of a course,
	// following pagination transparently.
	FetchCurriculum(ctx context.Context, courseID int64) ([]CurriculumNode, error)

	// ResolveLectureAsset fetches the full asset payload of a single
	// lecture; used to enrich article/presentation items lazily.
	ResolveLectureAsset(ctx context.Context, courseID, lectureID int64) (*Asset, error)
}

// ProgressSink receives periodic progress snapshots. Implemented by the
// notification layer; the pipeline only produces snapshots.
type ProgressSink interface {
	PublishItem(snapshot ItemSnapshot)
	PublishTask(snapshot TaskSnapshot)
}

// NopProgressSink discards all snapshots
type NopProgressSink struct{}

func (NopProgressSink) PublishItem(ItemSnapshot) {}
func (NopProgressSink) PublishTask(TaskSnapshot) {}
