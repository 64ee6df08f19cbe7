package notice

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/editalindex/internal/storage"
	"github.com/dshills/editalindex/pkg/types"
)

// Upload limits
const (
	MaxUploadBytes  = 50 << 20
	MaxFileNameLen  = 255
	storageKeyRoot  = "notices"
	defaultFileName = "notice.pdf"
)

var (
	// ErrDuplicateNotice is returned when the owner already has an ACTIVE
	// notice with the same content
	ErrDuplicateNotice = errors.New("notice was already imported")
	// ErrEmptyUpload is returned for an upload without content
	ErrEmptyUpload = errors.New("upload is empty")
	// ErrUploadTooLarge is returned for uploads over MaxUploadBytes
	ErrUploadTooLarge = errors.New("upload exceeds size limit")
	// ErrNoticeLimit is returned when the owner has reached the configured
	// number of non-archived notices
	ErrNoticeLimit = errors.New("notice limit reached")
	// ErrMissingOwner is returned when an upload has no owner
	ErrMissingOwner = errors.New("owner is required")
)

// Enqueuer accepts tasks for asynchronous processing
type Enqueuer interface {
	Enqueue(t Task) error
}

// ServiceConfig configures a Service
type ServiceConfig struct {
	Store      storage.Storage
	Queue      Enqueuer
	MaxNotices int // Non-archived notices per owner (0 = unlimited)
	Logger     *slog.Logger
	Now        func() time.Time
}

// Upload is a notice document submitted by an owner
type Upload struct {
	OwnerID  string
	FileName string
	Content  []byte
}

// Handle identifies a submitted notice and its job
type Handle struct {
	NoticeID string
	JobID    string
	Status   types.NoticeStatus
}

// StatusView is the read model polled by callers while a notice is processed.
// Notice, Disciplines and Plan are only set once the notice is ACTIVE.
type StatusView struct {
	NoticeID     string
	Status       types.NoticeStatus
	ErrorMessage string
	Progress     int
	Stage        string
	JobStatus    types.JobStatus

	Notice      *types.ExamNotice
	Disciplines []types.ExamDiscipline
	Plan        *types.StudyPlan
}

// Terminal reports whether processing has finished one way or the other
func (v *StatusView) Terminal() bool {
	switch v.Status {
	case types.NoticeActive, types.NoticeError, types.NoticeArchived:
		return true
	}
	return false
}

// Service is the entry point for submitting and inspecting notices
type Service struct {
	cfg    ServiceConfig
	logger *slog.Logger
}

// NewService creates a notice service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{cfg: cfg, logger: logger}
}

// Submit records a new notice and its job, then hands the work to the queue.
// It returns as soon as the task is queued.
func (s *Service) Submit(ctx context.Context, up Upload) (*Handle, error) {
	if strings.TrimSpace(up.OwnerID) == "" {
		return nil, ErrMissingOwner
	}
	if len(up.Content) == 0 {
		return nil, ErrEmptyUpload
	}
	if len(up.Content) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, len(up.Content))
	}

	sum := md5.Sum(up.Content)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.cfg.Store.FindActiveNoticeByHash(ctx, up.OwnerID, hash)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNotice, existing.ID)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if s.cfg.MaxNotices > 0 {
		open, err := s.openNotices(ctx, up.OwnerID)
		if err != nil {
			return nil, err
		}
		if open >= s.cfg.MaxNotices {
			return nil, fmt.Errorf("%w: %d of %d", ErrNoticeLimit, open, s.cfg.MaxNotices)
		}
	}

	name := sanitizeFileName(up.FileName)
	n := &types.ExamNotice{
		OwnerID:     up.OwnerID,
		FileName:    name,
		StorageKey:  fmt.Sprintf("%s/%s/%d-%s", storageKeyRoot, up.OwnerID, s.cfg.Now().UnixMilli(), name),
		SizeBytes:   int64(len(up.Content)),
		ContentHash: hash,
		Status:      types.NoticeQueued,
	}
	if err := s.cfg.Store.CreateNotice(ctx, n); err != nil {
		return nil, err
	}
	job := &types.ProcessingJob{NoticeID: n.ID, Status: types.JobQueued}
	if err := s.cfg.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	log := s.logger.With("notice_id", n.ID, "job_id", job.ID)
	if err := s.cfg.Queue.Enqueue(Task{NoticeID: n.ID, JobID: job.ID, OwnerID: up.OwnerID, Content: up.Content}); err != nil {
		log.Error("failed to queue notice", "error", err)
		msg := "queue: " + err.Error()
		ctx := context.WithoutCancel(ctx)
		if ferr := s.cfg.Store.FailNotice(ctx, n.ID, msg); ferr != nil {
			log.Error("failed to record notice error", "error", ferr)
		}
		if ferr := s.cfg.Store.FailJob(ctx, job.ID, msg, errorTrace("queue", err)); ferr != nil {
			log.Error("failed to record job error", "error", ferr)
		}
		return nil, fmt.Errorf("queue notice: %w", err)
	}

	log.Info("notice submitted", "file", name, "bytes", n.SizeBytes)
	return &Handle{NoticeID: n.ID, JobID: job.ID, Status: n.Status}, nil
}

// Status returns the processing status of an owner's notice
func (s *Service) Status(ctx context.Context, noticeID, ownerID string) (*StatusView, error) {
	n, err := s.owned(ctx, noticeID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, n)
}

// List returns the owner's notices, newest first
func (s *Service) List(ctx context.Context, ownerID string) ([]*types.ExamNotice, error) {
	return s.cfg.Store.ListNotices(ctx, ownerID)
}

// Active returns the most recently updated ACTIVE notice of the owner, or
// storage.ErrNotFound
func (s *Service) Active(ctx context.Context, ownerID string) (*StatusView, error) {
	notices, err := s.cfg.Store.ListNotices(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var latest *types.ExamNotice
	for _, n := range notices {
		if n.Status == types.NoticeActive && (latest == nil || n.UpdatedAt.After(latest.UpdatedAt)) {
			latest = n
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no active notice: %w", storage.ErrNotFound)
	}
	return s.view(ctx, latest)
}

// Archive retires an owner's ACTIVE or ERROR notice
func (s *Service) Archive(ctx context.Context, ownerID, noticeID string) error {
	if _, err := s.owned(ctx, noticeID, ownerID); err != nil {
		return err
	}
	return s.cfg.Store.ArchiveNotice(ctx, noticeID)
}

// owned loads a notice and hides notices of other owners
func (s *Service) owned(ctx context.Context, noticeID, ownerID string) (*types.ExamNotice, error) {
	n, err := s.cfg.Store.GetNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if n.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	return n, nil
}

func (s *Service) view(ctx context.Context, n *types.ExamNotice) (*StatusView, error) {
	v := &StatusView{NoticeID: n.ID, Status: n.Status, ErrorMessage: n.ErrorMessage}

	job, err := s.cfg.Store.LatestJob(ctx, n.ID)
	switch {
	case err == nil:
		v.Progress, v.Stage, v.JobStatus = job.Progress, job.Stage, job.Status
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if n.Status != types.NoticeActive {
		return v, nil
	}
	v.Notice = n
	if v.Disciplines, err = s.cfg.Store.ListExamDisciplines(ctx, n.ID); err != nil {
		return nil, err
	}
	plan, err := s.cfg.Store.GetPlanByNotice(ctx, n.ID)
	switch {
	case err == nil:
		v.Plan = plan
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	return v, nil
}

func (s *Service) openNotices(ctx context.Context, ownerID string) (int, error) {
	notices, err := s.cfg.Store.ListNotices(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	open := 0
	for _, n := range notices {
		if n.Status != types.NoticeArchived {
			open++
		}
	}
	return open, nil
}

// sanitizeFileName keeps the base name and bounds its length
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(filepath.Base(filepath.Clean("/" + name)))
	if name == "" || name == "/" || name == "." {
		return defaultFileName
	}
	if r := []rune(name); len(r) > MaxFileNameLen {
		name = string(r[:MaxFileNameLen])
	}
	return name
}
