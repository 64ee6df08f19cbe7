package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/editalindex/pkg/types"
)

// Notice operations

func (s *SQLiteStorage) CreateNotice(ctx context.Context, n *types.ExamNotice) error {
	if n.ID == "" {
		n.ID = types.NewID()
	}
	if n.Status == "" {
		n.Status = types.NoticeQueued
	}
	ts := now()
	n.CreatedAt, n.UpdatedAt = ts, ts

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notices (id, owner_id, file_name, storage_key, size_bytes, content_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.OwnerID, n.FileName, n.StorageKey, n.SizeBytes, n.ContentHash, string(n.Status), toMillis(ts), toMillis(ts))
	if err != nil {
		return fmt.Errorf("failed to create notice: %w", err)
	}
	return nil
}

const noticeColumns = `id, owner_id, file_name, storage_key, size_bytes, content_hash, raw_text,
	issuing_body, agency, role, notice_number, published_at, exam_date, salary, vacancies,
	total_questions, metadata_json, status, error_message, created_at, updated_at`

func scanNotice(row rowScanner) (*types.ExamNotice, error) {
	var n types.ExamNotice
	var published, examDate sql.NullInt64
	var salary sql.NullFloat64
	var vacancies, totalQuestions sql.NullInt64
	var status string
	var created, updated int64

	err := row.Scan(&n.ID, &n.OwnerID, &n.FileName, &n.StorageKey, &n.SizeBytes, &n.ContentHash, &n.RawText,
		&n.IssuingBody, &n.Agency, &n.Role, &n.NoticeNumber, &published, &examDate, &salary, &vacancies,
		&totalQuestions, &n.MetadataJSON, &status, &n.ErrorMessage, &created, &updated)
	if err != nil {
		return nil, err
	}

	n.PublishedAt = timeFromNull(published)
	n.ExamDate = timeFromNull(examDate)
	if salary.Valid {
		n.Salary = &salary.Float64
	}
	n.Vacancies = intFromNull(vacancies)
	n.TotalQuestions = intFromNull(totalQuestions)
	n.Status = types.NoticeStatus(status)
	n.CreatedAt = fromMillis(created)
	n.UpdatedAt = fromMillis(updated)
	return &n, nil
}

func (s *SQLiteStorage) GetNotice(ctx context.Context, id string) (*types.ExamNotice, error) {
	n, err := scanNotice(s.db.QueryRowContext(ctx, `SELECT `+noticeColumns+` FROM notices WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notice: %w", err)
	}
	return n, nil
}

// FindActiveNoticeByHash returns the owner's ACTIVE notice with the given
// content hash, ErrNotFound if none
func (s *SQLiteStorage) FindActiveNoticeByHash(ctx context.Context, ownerID, hash string) (*types.ExamNotice, error) {
	n, err := scanNotice(s.db.QueryRowContext(ctx, `
		SELECT `+noticeColumns+` FROM notices
		WHERE owner_id = ? AND content_hash = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1
	`, ownerID, hash, string(types.NoticeActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notice: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) ListNotices(ctx context.Context, ownerID string) ([]*types.ExamNotice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noticeColumns+` FROM notices WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.ExamNotice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateNotice writes the extracted text and metadata fields. Status is
// only changed through TransitionNotice, FailNotice and ArchiveNotice.
func (s *SQLiteStorage) UpdateNotice(ctx context.Context, n *types.ExamNotice) error {
	n.UpdatedAt = now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE notices SET raw_text = ?, issuing_body = ?, agency = ?, role = ?, notice_number = ?,
			published_at = ?, exam_date = ?, salary = ?, vacancies = ?, total_questions = ?,
			metadata_json = ?, updated_at = ?
		WHERE id = ?
	`, n.RawText, n.IssuingBody, n.Agency, n.Role, n.NoticeNumber,
		nullFromTime(n.PublishedAt), nullFromTime(n.ExamDate), n.Salary, n.Vacancies, n.TotalQuestions,
		n.MetadataJSON, toMillis(n.UpdatedAt), n.ID)
	if err != nil {
		return fmt.Errorf("failed to update notice: %w", err)
	}
	return expectRow(result)
}

// TransitionNotice moves a notice from one status to the next only if it is
// still in the expected status. A lost race yields ErrConflict.
func (s *SQLiteStorage) TransitionNotice(ctx context.Context, id string, from, to types.NoticeStatus) error {
	if err := from.ValidateTransition(to); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE notices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), toMillis(now()), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition notice: %w", err)
	}
	return s.conditionalResult(ctx, result, `SELECT COUNT(*) FROM notices WHERE id = ?`, id)
}

// FailNotice puts a notice in ERROR with a message. Archived notices are
// left untouched.
func (s *SQLiteStorage) FailNotice(ctx context.Context, id, message string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notices SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		string(types.NoticeError), message, toMillis(now()), id, string(types.NoticeArchived))
	if err != nil {
		return fmt.Errorf("failed to fail notice: %w", err)
	}
	return s.conditionalResult(ctx, result, `SELECT COUNT(*) FROM notices WHERE id = ?`, id)
}

// ArchiveNotice archives an ACTIVE or ERROR notice
func (s *SQLiteStorage) ArchiveNotice(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notices SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(types.NoticeArchived), toMillis(now()), id, string(types.NoticeActive), string(types.NoticeError))
	if err != nil {
		return fmt.Errorf("failed to archive notice: %w", err)
	}
	return s.conditionalResult(ctx, result, `SELECT COUNT(*) FROM notices WHERE id = ?`, id)
}

// conditionalResult distinguishes a missing row from a row in the wrong
// state after a guarded update touched nothing
func (s *SQLiteStorage) conditionalResult(ctx context.Context, result sql.Result, existsQuery string, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := s.db.QueryRowContext(ctx, existsQuery, id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// Exam discipline operations

// ReplaceExamDisciplines atomically replaces the discipline list of a notice
func (s *SQLiteStorage) ReplaceExamDisciplines(ctx context.Context, noticeID string, ds []types.ExamDiscipline) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceExamDisciplines(ctx, tx, noticeID, ds); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceExamDisciplines(ctx context.Context, q querier, noticeID string, ds []types.ExamDiscipline) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM exam_disciplines WHERE notice_id = ?`, noticeID); err != nil {
		return fmt.Errorf("failed to clear exam disciplines: %w", err)
	}

	for i := range ds {
		d := &ds[i]
		if err := d.ValidateWeight(); err != nil {
			return fmt.Errorf("discipline %q: %w", d.Name, err)
		}
		if d.ID == "" {
			d.ID = types.NewID()
		}
		d.NoticeID = noticeID

		topics, err := json.Marshal(nonNilStrings(d.Topics))
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO exam_disciplines (id, notice_id, position, name, weight, question_count, topics, discipline_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, noticeID, i, d.Name, d.Weight, d.QuestionCount, string(topics), d.DisciplineID)
		if err != nil {
			return fmt.Errorf("failed to insert exam discipline: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) ListExamDisciplines(ctx context.Context, noticeID string) ([]types.ExamDiscipline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notice_id, name, weight, question_count, topics, discipline_id
		FROM exam_disciplines WHERE notice_id = ? ORDER BY position
	`, noticeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exam disciplines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ExamDiscipline
	for rows.Next() {
		var d types.ExamDiscipline
		var count sql.NullInt64
		var topics string
		var disciplineID sql.NullString
		if err := rows.Scan(&d.ID, &d.NoticeID, &d.Name, &d.Weight, &count, &topics, &disciplineID); err != nil {
			return nil, err
		}
		d.QuestionCount = intFromNull(count)
		if err := json.Unmarshal([]byte(topics), &d.Topics); err != nil {
			return nil, fmt.Errorf("corrupt topics for %s: %w", d.ID, err)
		}
		if disciplineID.Valid {
			d.DisciplineID = &disciplineID.String
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Job operations

func (s *SQLiteStorage) CreateJob(ctx context.Context, j *types.ProcessingJob) error {
	if j.ID == "" {
		j.ID = types.NewJobID()
	}
	if j.Status == "" {
		j.Status = types.JobQueued
	}
	if err := types.ValidateProgress(j.Progress); err != nil {
		return err
	}
	ts := now()
	j.CreatedAt, j.UpdatedAt = ts, ts

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, notice_id, stage, progress, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.NoticeID, j.Stage, j.Progress, string(j.Status), toMillis(ts), toMillis(ts))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

const jobColumns = `id, notice_id, stage, progress, status, error_message, error_trace, created_at, updated_at, completed_at`

func scanJob(row rowScanner) (*types.ProcessingJob, error) {
	var j types.ProcessingJob
	var status string
	var created, updated int64
	var completed sql.NullInt64
	err := row.Scan(&j.ID, &j.NoticeID, &j.Stage, &j.Progress, &status, &j.ErrorMessage, &j.ErrorTrace,
		&created, &updated, &completed)
	if err != nil {
		return nil, err
	}
	j.Status = types.JobStatus(status)
	j.CreatedAt = fromMillis(created)
	j.UpdatedAt = fromMillis(updated)
	j.CompletedAt = timeFromNull(completed)
	return &j, nil
}

func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*types.ProcessingJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// UpdateJobProgress records forward progress on a running job. The stored
// progress never decreases; terminal jobs are not updated (ErrConflict).
func (s *SQLiteStorage) UpdateJobProgress(ctx context.Context, id string, u JobUpdate) error {
	if err := types.ValidateProgress(u.Progress); err != nil {
		return err
	}
	if u.Status == "" {
		u.Status = types.JobProcessing
	}
	ts := toMillis(now())
	var completed interface{}
	if u.Status.Terminal() {
		completed = ts
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET stage = ?, progress = MAX(progress, ?), status = ?, updated_at = ?,
			completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status NOT IN (?, ?)
	`, u.Stage, u.Progress, string(u.Status), ts, completed, id, string(types.JobDone), string(types.JobFailed))
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return s.conditionalResult(ctx, result, `SELECT COUNT(*) FROM jobs WHERE id = ?`, id)
}

// FailJob marks a job FAILED with its message, trace and completion time
func (s *SQLiteStorage) FailJob(ctx context.Context, id, message, trace string) error {
	ts := toMillis(now())
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, error_trace = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, string(types.JobFailed), message, trace, ts, ts, id)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return expectRow(result)
}

// LatestJob returns the most recently created job of a notice
func (s *SQLiteStorage) LatestJob(ctx context.Context, noticeID string) (*types.ProcessingJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE notice_id = ? ORDER BY id DESC LIMIT 1`, noticeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return j, nil
}

// Plan operations

func (s *SQLiteStorage) CreatePlan(ctx context.Context, p *types.StudyPlan) error {
	if p.ID == "" {
		p.ID = types.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	weekdays, allocations, err := encodePlan(p)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO study_plans (id, owner_id, notice_id, start_date, end_date, hours_per_day, weekdays,
			allocations, success_probability, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(notice_id) DO NOTHING
	`, p.ID, p.OwnerID, p.NoticeID, toMillis(p.StartDate), toMillis(p.EndDate), p.HoursPerDay,
		weekdays, allocations, p.SuccessProbability, toMillis(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("plan for notice %s: %w", p.NoticeID, ErrAlreadyExists)
	}
	return nil
}

func (s *SQLiteStorage) GetPlanByNotice(ctx context.Context, noticeID string) (*types.StudyPlan, error) {
	var p types.StudyPlan
	var start, end, created int64
	var weekdays, allocations string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, notice_id, start_date, end_date, hours_per_day, weekdays, allocations,
			success_probability, created_at
		FROM study_plans WHERE notice_id = ?
	`, noticeID).Scan(&p.ID, &p.OwnerID, &p.NoticeID, &start, &end, &p.HoursPerDay, &weekdays, &allocations,
		&p.SuccessProbability, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	p.StartDate = fromMillis(start)
	p.EndDate = fromMillis(end)
	p.CreatedAt = fromMillis(created)
	if err := decodePlan(&p, []byte(weekdays), []byte(allocations)); err != nil {
		return nil, err
	}
	return &p, nil
}

// encodePlan serialises the list columns of a plan as JSON
func encodePlan(p *types.StudyPlan) (weekdays, allocations string, err error) {
	days := make([]int, len(p.Weekdays))
	for i, d := range p.Weekdays {
		days[i] = int(d)
	}
	wb, err := json.Marshal(days)
	if err != nil {
		return "", "", err
	}
	allocs := p.Allocations
	if allocs == nil {
		allocs = []types.Allocation{}
	}
	ab, err := json.Marshal(allocs)
	if err != nil {
		return "", "", err
	}
	return string(wb), string(ab), nil
}

func decodePlan(p *types.StudyPlan, weekdays, allocations []byte) error {
	var days []int
	if err := json.Unmarshal(weekdays, &days); err != nil {
		return fmt.Errorf("corrupt plan weekdays: %w", err)
	}
	p.Weekdays = make([]time.Weekday, len(days))
	for i, d := range days {
		p.Weekdays[i] = time.Weekday(d)
	}
	if err := json.Unmarshal(allocations, &p.Allocations); err != nil {
		return fmt.Errorf("corrupt plan allocations: %w", err)
	}
	return nil
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullFromTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
