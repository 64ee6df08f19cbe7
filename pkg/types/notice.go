package types

import (
	"fmt"
	"time"
)

// NoticeStatus is a state of the notice processing state machine
type NoticeStatus string

const (
	NoticeQueued   NoticeStatus = "QUEUED"
	NoticeParsing  NoticeStatus = "PARSING"
	NoticeMapping  NoticeStatus = "MAPPING"
	NoticePlanning NoticeStatus = "PLANNING"
	NoticeActive   NoticeStatus = "ACTIVE"
	NoticeError    NoticeStatus = "ERROR"
	NoticeArchived NoticeStatus = "ARCHIVED"
)

// forward lists the single legal successor of each pipeline state
var forward = map[NoticeStatus]NoticeStatus{
	NoticeQueued:   NoticeParsing,
	NoticeParsing:  NoticeMapping,
	NoticeMapping:  NoticePlanning,
	NoticePlanning: NoticeActive,
}

// CanTransition reports whether moving from s to next is legal.
// ERROR is reachable from every non-terminal state; ARCHIVED only from ACTIVE or ERROR.
func (s NoticeStatus) CanTransition(next NoticeStatus) bool {
	switch next {
	case NoticeError:
		return s != NoticeArchived
	case NoticeArchived:
		return s == NoticeActive || s == NoticeError
	}
	return forward[s] == next
}

// ValidateTransition returns ErrInvalidTransition for an illegal move
func (s NoticeStatus) ValidateTransition(next NoticeStatus) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// ExamNotice is an uploaded official exam announcement
type ExamNotice struct {
	ID          string
	OwnerID     string
	FileName    string
	StorageKey  string
	SizeBytes   int64
	ContentHash string // md5 hex of the uploaded bytes, used for dedup
	RawText     string

	// Extracted metadata
	IssuingBody    string // banca
	Agency         string // orgao
	Role           string // cargo
	NoticeNumber   string
	PublishedAt    *time.Time
	ExamDate       *time.Time
	Salary         *float64
	Vacancies      *int
	TotalQuestions *int
	MetadataJSON   string // Verbatim structured extraction result

	Status       NoticeStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExamDiscipline links a notice to one of its tested disciplines
type ExamDiscipline struct {
	ID            string
	NoticeID      string
	Name          string
	Weight        float64 // Fraction of the exam, 0..1
	QuestionCount *int
	Topics        []string
	DisciplineID  *string // nil when no known discipline matched
}

// ValidateWeight checks that the weight is a fraction
func (d *ExamDiscipline) ValidateWeight() error {
	if d.Weight < 0 || d.Weight > 1 {
		return ErrInvalidWeight
	}
	return nil
}
