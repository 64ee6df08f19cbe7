package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dshills/editalindex/internal/embedder"
	"github.com/dshills/editalindex/pkg/types"
)

// PostgresStorage implements Storage on PostgreSQL with pgvector.
// Vector search uses an HNSW index with cosine distance.
type PostgresStorage struct {
	pool      *pgxpool.Pool
	dimension int
	ownsPool  bool
}

var _ Storage = (*PostgresStorage)(nil)

// NewPostgresStorage connects to url, creates the schema and returns a store
// that owns its pool. dimension fixes the vector column size; 0 leaves the
// column untyped and skips the HNSW index.
func NewPostgresStorage(ctx context.Context, url string, dimension int) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	s := &PostgresStorage{pool: pool, dimension: dimension, ownsPool: true}
	if err := s.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStorageWithPool wraps an externally-owned pool. The caller must
// call Init and is responsible for closing the pool.
func NewPostgresStorageWithPool(pool *pgxpool.Pool, dimension int) *PostgresStorage {
	return &PostgresStorage{pool: pool, dimension: dimension}
}

func (s *PostgresStorage) vectorType() string {
	if s.dimension > 0 {
		return fmt.Sprintf("vector(%d)", s.dimension)
	}
	return "vector"
}

// Init creates the pgvector extension, tables and indexes. Safe to call
// multiple times.
func (s *PostgresStorage) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS disciplines (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			area TEXT NOT NULL DEFAULT 'geral',
			color TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS contents (
			id TEXT PRIMARY KEY,
			discipline_id TEXT REFERENCES disciplines(id),
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			source_key TEXT NOT NULL UNIQUE,
			embedding %s,
			created_at BIGINT NOT NULL
		)`, s.vectorType()),
		`CREATE INDEX IF NOT EXISTS contents_discipline_idx ON contents(discipline_id)`,

		`CREATE TABLE IF NOT EXISTS notices (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			content_hash TEXT NOT NULL,
			raw_text TEXT NOT NULL DEFAULT '',
			issuing_body TEXT NOT NULL DEFAULT '',
			agency TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			notice_number TEXT NOT NULL DEFAULT '',
			published_at BIGINT,
			exam_date BIGINT,
			salary DOUBLE PRECISION,
			vacancies INTEGER,
			total_questions INTEGER,
			metadata_json TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS notices_owner_hash_idx ON notices(owner_id, content_hash)`,
		`CREATE INDEX IF NOT EXISTS notices_owner_created_idx ON notices(owner_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS exam_disciplines (
			id TEXT PRIMARY KEY,
			notice_id TEXT NOT NULL REFERENCES notices(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL,
			question_count INTEGER,
			topics TEXT[] NOT NULL DEFAULT '{}',
			discipline_id TEXT REFERENCES disciplines(id)
		)`,
		`CREATE INDEX IF NOT EXISTS exam_disciplines_notice_idx ON exam_disciplines(notice_id, position)`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			notice_id TEXT NOT NULL REFERENCES notices(id) ON DELETE CASCADE,
			stage TEXT NOT NULL DEFAULT '',
			progress INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			error_trace TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			completed_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_notice_idx ON jobs(notice_id, id)`,

		`CREATE TABLE IF NOT EXISTS study_plans (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			notice_id TEXT NOT NULL UNIQUE REFERENCES notices(id) ON DELETE CASCADE,
			start_date BIGINT NOT NULL,
			end_date BIGINT NOT NULL,
			hours_per_day INTEGER NOT NULL,
			weekdays JSONB NOT NULL,
			allocations JSONB NOT NULL,
			success_probability DOUBLE PRECISION NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	}
	if s.dimension > 0 {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS contents_embedding_idx ON contents USING hnsw (embedding vector_cosine_ops)`)
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
	}
	return nil
}

// Close closes the pool when the store owns it
func (s *PostgresStorage) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStorage) Backend() string {
	return "postgres"
}

// Discipline operations

func (s *PostgresStorage) UpsertDiscipline(ctx context.Context, d *types.Discipline) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = types.NewID()
	}
	if d.Area == "" {
		d.Area = types.AreaGeral
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO disciplines (id, slug, name, area, color, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO NOTHING
	`, d.ID, d.Slug, d.Name, string(d.Area), d.Color, toMillis(now()))
	if err != nil {
		return fmt.Errorf("failed to upsert discipline: %w", err)
	}

	stored, err := s.GetDisciplineBySlug(ctx, d.Slug)
	if err != nil {
		return err
	}
	*d = *stored
	return nil
}

func (s *PostgresStorage) GetDisciplineBySlug(ctx context.Context, slug string) (*types.Discipline, error) {
	d, err := scanDiscipline(s.pool.QueryRow(ctx,
		`SELECT `+disciplineColumns+` FROM disciplines WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discipline: %w", err)
	}
	return d, nil
}

func (s *PostgresStorage) ListDisciplines(ctx context.Context) ([]types.Discipline, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+disciplineColumns+` FROM disciplines ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list disciplines: %w", err)
	}
	defer rows.Close()

	var out []types.Discipline
	for rows.Next() {
		d, err := scanDiscipline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Content operations

func (s *PostgresStorage) ContentExists(ctx context.Context, sourceKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM contents WHERE source_key = $1)`, sourceKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check content: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) InsertContent(ctx context.Context, c *types.IndexedContent) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	if c.ID == "" {
		c.ID = types.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}

	var literal *string
	if c.HasEmbedding() {
		v := embedder.FormatVector(c.Embedding)
		literal = &v
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO contents (id, discipline_id, kind, title, body, source_key, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
		ON CONFLICT (source_key) DO NOTHING
	`, c.ID, c.DisciplineID, string(c.Kind), c.Title, c.Body, c.SourceKey, literal, toMillis(c.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert content: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const pgContentColumns = `id, discipline_id, kind, title, body, source_key, embedding::text, created_at`

func scanPGContent(row pgx.Row) (*types.IndexedContent, error) {
	var c types.IndexedContent
	var kind string
	var literal *string
	var created int64
	if err := row.Scan(&c.ID, &c.DisciplineID, &kind, &c.Title, &c.Body, &c.SourceKey, &literal, &created); err != nil {
		return nil, err
	}
	c.Kind = types.ContentKind(kind)
	c.CreatedAt = fromMillis(created)
	if literal != nil {
		v, err := embedder.ParseVector(*literal)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding for %s: %w", c.ID, err)
		}
		c.Embedding = v
	}
	return &c, nil
}

func (s *PostgresStorage) GetContentBySourceKey(ctx context.Context, sourceKey string) (*types.IndexedContent, error) {
	c, err := scanPGContent(s.pool.QueryRow(ctx,
		`SELECT `+pgContentColumns+` FROM contents WHERE source_key = $1`, sourceKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return c, nil
}

func (s *PostgresStorage) ListContents(ctx context.Context, afterID string, limit int) ([]*types.IndexedContent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgContentColumns+` FROM contents WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list contents: %w", err)
	}
	defer rows.Close()

	var out []*types.IndexedContent
	for rows.Next() {
		c, err := scanPGContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) UpdateContentBody(ctx context.Context, id, body string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE contents SET body = $1 WHERE id = $2`, body, id)
	if err != nil {
		return fmt.Errorf("failed to update content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CountContents(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count contents: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) CountByDiscipline(ctx context.Context) ([]DisciplineCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.slug, d.name, COUNT(c.id) AS n
		FROM disciplines d
		LEFT JOIN contents c ON c.discipline_id = d.id
		GROUP BY d.id
		ORDER BY n DESC, d.slug
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by discipline: %w", err)
	}
	defer rows.Close()

	var out []DisciplineCount
	for rows.Next() {
		var dc DisciplineCount
		if err := rows.Scan(&dc.Slug, &dc.Name, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// SearchContents ranks embedded contents by cosine distance to vector
func (s *PostgresStorage) SearchContents(ctx context.Context, vector []float32, limit int) ([]ContentResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		return []ContentResult{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, discipline_id, kind, title, body, source_key, created_at,
		       1 - (embedding <=> $1::vector) AS score
		FROM contents
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, embedder.FormatVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer rows.Close()

	var out []ContentResult
	for rows.Next() {
		var c types.IndexedContent
		var kind string
		var created int64
		var score float64
		if err := rows.Scan(&c.ID, &c.DisciplineID, &kind, &c.Title, &c.Body, &c.SourceKey, &created, &score); err != nil {
			return nil, err
		}
		c.Kind = types.ContentKind(kind)
		c.CreatedAt = fromMillis(created)
		out = append(out, ContentResult{Content: &c, Similarity: score})
	}
	return out, rows.Err()
}

// Notice operations

func (s *PostgresStorage) CreateNotice(ctx context.Context, n *types.ExamNotice) error {
	if n.ID == "" {
		n.ID = types.NewID()
	}
	if n.Status == "" {
		n.Status = types.NoticeQueued
	}
	ts := now()
	n.CreatedAt, n.UpdatedAt = ts, ts

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notices (id, owner_id, file_name, storage_key, size_bytes, content_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.OwnerID, n.FileName, n.StorageKey, n.SizeBytes, n.ContentHash, string(n.Status), toMillis(ts), toMillis(ts))
	if err != nil {
		return fmt.Errorf("failed to create notice: %w", err)
	}
	return nil
}

func scanPGNotice(row pgx.Row) (*types.ExamNotice, error) {
	var n types.ExamNotice
	var published, examDate *int64
	var vacancies, totalQuestions *int32
	var status string
	var created, updated int64

	err := row.Scan(&n.ID, &n.OwnerID, &n.FileName, &n.StorageKey, &n.SizeBytes, &n.ContentHash, &n.RawText,
		&n.IssuingBody, &n.Agency, &n.Role, &n.NoticeNumber, &published, &examDate, &n.Salary, &vacancies,
		&totalQuestions, &n.MetadataJSON, &status, &n.ErrorMessage, &created, &updated)
	if err != nil {
		return nil, err
	}

	n.PublishedAt = timeFromPtr(published)
	n.ExamDate = timeFromPtr(examDate)
	n.Vacancies = intFromPtr(vacancies)
	n.TotalQuestions = intFromPtr(totalQuestions)
	n.Status = types.NoticeStatus(status)
	n.CreatedAt = fromMillis(created)
	n.UpdatedAt = fromMillis(updated)
	return &n, nil
}

func (s *PostgresStorage) GetNotice(ctx context.Context, id string) (*types.ExamNotice, error) {
	n, err := scanPGNotice(s.pool.QueryRow(ctx, `SELECT `+noticeColumns+` FROM notices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notice: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) FindActiveNoticeByHash(ctx context.Context, ownerID, hash string) (*types.ExamNotice, error) {
	n, err := scanPGNotice(s.pool.QueryRow(ctx, `
		SELECT `+noticeColumns+` FROM notices
		WHERE owner_id = $1 AND content_hash = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1
	`, ownerID, hash, string(types.NoticeActive)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notice: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) ListNotices(ctx context.Context, ownerID string) ([]*types.ExamNotice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+noticeColumns+` FROM notices WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}
	defer rows.Close()

	var out []*types.ExamNotice
	for rows.Next() {
		n, err := scanPGNotice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) UpdateNotice(ctx context.Context, n *types.ExamNotice) error {
	n.UpdatedAt = now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE notices SET raw_text = $1, issuing_body = $2, agency = $3, role = $4, notice_number = $5,
			published_at = $6, exam_date = $7, salary = $8, vacancies = $9, total_questions = $10,
			metadata_json = $11, updated_at = $12
		WHERE id = $13
	`, n.RawText, n.IssuingBody, n.Agency, n.Role, n.NoticeNumber,
		ptrFromTime(n.PublishedAt), ptrFromTime(n.ExamDate), n.Salary, n.Vacancies, n.TotalQuestions,
		n.MetadataJSON, toMillis(n.UpdatedAt), n.ID)
	if err != nil {
		return fmt.Errorf("failed to update notice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) TransitionNotice(ctx context.Context, id string, from, to types.NoticeStatus) error {
	if err := from.ValidateTransition(to); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE notices SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), toMillis(now()), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition notice: %w", err)
	}
	return s.conditionalResult(ctx, tag, "notices", id)
}

func (s *PostgresStorage) FailNotice(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notices SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4 AND status <> $5`,
		string(types.NoticeError), message, toMillis(now()), id, string(types.NoticeArchived))
	if err != nil {
		return fmt.Errorf("failed to fail notice: %w", err)
	}
	return s.conditionalResult(ctx, tag, "notices", id)
}

func (s *PostgresStorage) ArchiveNotice(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notices SET status = $1, updated_at = $2 WHERE id = $3 AND status IN ($4, $5)`,
		string(types.NoticeArchived), toMillis(now()), id, string(types.NoticeActive), string(types.NoticeError))
	if err != nil {
		return fmt.Errorf("failed to archive notice: %w", err)
	}
	return s.conditionalResult(ctx, tag, "notices", id)
}

// conditionalResult mirrors the SQLite helper: ErrNotFound for a missing
// row, ErrConflict for a row in the wrong state. table is a constant.
func (s *PostgresStorage) conditionalResult(ctx context.Context, tag pgconn.CommandTag, table, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// Exam discipline operations

func (s *PostgresStorage) ReplaceExamDisciplines(ctx context.Context, noticeID string, ds []types.ExamDiscipline) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM exam_disciplines WHERE notice_id = $1`, noticeID); err != nil {
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

		_, err := tx.Exec(ctx, `
			INSERT INTO exam_disciplines (id, notice_id, position, name, weight, question_count, topics, discipline_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, d.ID, noticeID, i, d.Name, d.Weight, d.QuestionCount, nonNilStrings(d.Topics), d.DisciplineID)
		if err != nil {
			return fmt.Errorf("failed to insert exam discipline: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStorage) ListExamDisciplines(ctx context.Context, noticeID string) ([]types.ExamDiscipline, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, notice_id, name, weight, question_count, topics, discipline_id
		FROM exam_disciplines WHERE notice_id = $1 ORDER BY position
	`, noticeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exam disciplines: %w", err)
	}
	defer rows.Close()

	var out []types.ExamDiscipline
	for rows.Next() {
		var d types.ExamDiscipline
		var count *int32
		if err := rows.Scan(&d.ID, &d.NoticeID, &d.Name, &d.Weight, &count, &d.Topics, &d.DisciplineID); err != nil {
			return nil, err
		}
		d.QuestionCount = intFromPtr(count)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Job operations

func (s *PostgresStorage) CreateJob(ctx context.Context, j *types.ProcessingJob) error {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, notice_id, stage, progress, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, j.ID, j.NoticeID, j.Stage, j.Progress, string(j.Status), toMillis(ts), toMillis(ts))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func scanPGJob(row pgx.Row) (*types.ProcessingJob, error) {
	var j types.ProcessingJob
	var status string
	var created, updated int64
	var completed *int64
	err := row.Scan(&j.ID, &j.NoticeID, &j.Stage, &j.Progress, &status, &j.ErrorMessage, &j.ErrorTrace,
		&created, &updated, &completed)
	if err != nil {
		return nil, err
	}
	j.Status = types.JobStatus(status)
	j.CreatedAt = fromMillis(created)
	j.UpdatedAt = fromMillis(updated)
	j.CompletedAt = timeFromPtr(completed)
	return &j, nil
}

func (s *PostgresStorage) GetJob(ctx context.Context, id string) (*types.ProcessingJob, error) {
	j, err := scanPGJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStorage) UpdateJobProgress(ctx context.Context, id string, u JobUpdate) error {
	if err := types.ValidateProgress(u.Progress); err != nil {
		return err
	}
	if u.Status == "" {
		u.Status = types.JobProcessing
	}
	ts := toMillis(now())
	var completed *int64
	if u.Status.Terminal() {
		completed = &ts
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET stage = $1, progress = GREATEST(progress, $2), status = $3, updated_at = $4,
			completed_at = COALESCE($5, completed_at)
		WHERE id = $6 AND status NOT IN ($7, $8)
	`, u.Stage, u.Progress, string(u.Status), ts, completed, id, string(types.JobDone), string(types.JobFailed))
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return s.conditionalResult(ctx, tag, "jobs", id)
}

func (s *PostgresStorage) FailJob(ctx context.Context, id, message, trace string) error {
	ts := toMillis(now())
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, error_message = $2, error_trace = $3, updated_at = $4, completed_at = $4
		WHERE id = $5
	`, string(types.JobFailed), message, trace, ts, id)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) LatestJob(ctx context.Context, noticeID string) (*types.ProcessingJob, error) {
	j, err := scanPGJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE notice_id = $1 ORDER BY id DESC LIMIT 1`, noticeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return j, nil
}

// Plan operations

func (s *PostgresStorage) CreatePlan(ctx context.Context, p *types.StudyPlan) error {
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

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO study_plans (id, owner_id, notice_id, start_date, end_date, hours_per_day, weekdays,
			allocations, success_probability, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10)
		ON CONFLICT (notice_id) DO NOTHING
	`, p.ID, p.OwnerID, p.NoticeID, toMillis(p.StartDate), toMillis(p.EndDate), p.HoursPerDay,
		weekdays, allocations, p.SuccessProbability, toMillis(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plan for notice %s: %w", p.NoticeID, ErrAlreadyExists)
	}
	return nil
}

func (s *PostgresStorage) GetPlanByNotice(ctx context.Context, noticeID string) (*types.StudyPlan, error) {
	var p types.StudyPlan
	var start, end, created int64
	var weekdays, allocations string
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, notice_id, start_date, end_date, hours_per_day, weekdays::text, allocations::text,
			success_probability, created_at
		FROM study_plans WHERE notice_id = $1
	`, noticeID).Scan(&p.ID, &p.OwnerID, &p.NoticeID, &start, &end, &p.HoursPerDay, &weekdays, &allocations,
		&p.SuccessProbability, &created)
	if errors.Is(err, pgx.ErrNoRows) {
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

func timeFromPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

func ptrFromTime(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := toMillis(*t)
	return &ms
}

func intFromPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
