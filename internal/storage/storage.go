package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/editalindex/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict is returned when a conditional update finds the row in an
	// unexpected state
	ErrConflict = errors.New("state conflict")
)

// Storage defines the persistence contract shared by the bulk indexer and
// the notice pipeline. All implementations must be safe for concurrent use.
type Storage interface {
	// Discipline operations
	UpsertDiscipline(ctx context.Context, d *types.Discipline) error
	GetDisciplineBySlug(ctx context.Context, slug string) (*types.Discipline, error)
	ListDisciplines(ctx context.Context) ([]types.Discipline, error)

	// Content operations
	ContentExists(ctx context.Context, sourceKey string) (bool, error)
	InsertContent(ctx context.Context, c *types.IndexedContent) (bool, error)
	GetContentBySourceKey(ctx context.Context, sourceKey string) (*types.IndexedContent, error)
	ListContents(ctx context.Context, afterID string, limit int) ([]*types.IndexedContent, error)
	UpdateContentBody(ctx context.Context, id, body string) error
	CountContents(ctx context.Context) (int, error)
	CountByDiscipline(ctx context.Context) ([]DisciplineCount, error)
	SearchContents(ctx context.Context, vector []float32, limit int) ([]ContentResult, error)
	SearchContentsText(ctx context.Context, query string, limit int) ([]ContentResult, error)

	// Notice operations
	CreateNotice(ctx context.Context, n *types.ExamNotice) error
	GetNotice(ctx context.Context, id string) (*types.ExamNotice, error)
	FindActiveNoticeByHash(ctx context.Context, ownerID, hash string) (*types.ExamNotice, error)
	ListNotices(ctx context.Context, ownerID string) ([]*types.ExamNotice, error)
	UpdateNotice(ctx context.Context, n *types.ExamNotice) error
	TransitionNotice(ctx context.Context, id string, from, to types.NoticeStatus) error
	FailNotice(ctx context.Context, id, message string) error
	ArchiveNotice(ctx context.Context, id string) error

	// Exam discipline operations
	ReplaceExamDisciplines(ctx context.Context, noticeID string, ds []types.ExamDiscipline) error
	ListExamDisciplines(ctx context.Context, noticeID string) ([]types.ExamDiscipline, error)

	// Job operations
	CreateJob(ctx context.Context, j *types.ProcessingJob) error
	GetJob(ctx context.Context, id string) (*types.ProcessingJob, error)
	UpdateJobProgress(ctx context.Context, id string, update JobUpdate) error
	FailJob(ctx context.Context, id, message, trace string) error
	LatestJob(ctx context.Context, noticeID string) (*types.ProcessingJob, error)

	// Plan operations
	CreatePlan(ctx context.Context, p *types.StudyPlan) error
	GetPlanByNotice(ctx context.Context, noticeID string) (*types.StudyPlan, error)

	// Database operations
	Backend() string
	Close() error
}

// JobUpdate is a forward progress report for a job. Progress never moves
// backwards: the stored value becomes max(stored, Progress).
type JobUpdate struct {
	Stage    string
	Progress int
	Status   types.JobStatus
}

// DisciplineCount is the number of contents linked to one discipline
type DisciplineCount struct {
	Slug  string
	Name  string
	Count int
}

// ContentResult is a content row ranked by cosine similarity to a query
type ContentResult struct {
	Content    *types.IndexedContent
	Similarity float64
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// now is truncated to millisecond precision so stored and in-memory values
// compare equal
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
