package types

import "time"

// JobStatus is the coarse state of a processing job
type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobProcessing JobStatus = "PROCESSING"
	JobDone       JobStatus = "DONE"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further updates are expected
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// ProcessingJob tracks one run of the notice pipeline.
// Progress is monotonically non-decreasing within a run.
type ProcessingJob struct {
	ID           string
	NoticeID     string
	Stage        string
	Progress     int // 0..100
	Status       JobStatus
	ErrorMessage string
	ErrorTrace   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// ValidateProgress checks a progress value
func ValidateProgress(p int) error {
	if p < 0 || p > 100 {
		return ErrInvalidProgress
	}
	return nil
}
