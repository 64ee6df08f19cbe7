package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dshills/editalindex/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; this also keeps :memory:
	// databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Backend names the storage engine and driver build
func (s *SQLiteStorage) Backend() string {
	return "sqlite/" + BuildMode
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Discipline operations

func (s *SQLiteStorage) UpsertDiscipline(ctx context.Context, d *types.Discipline) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = types.NewID()
	}
	if d.Area == "" {
		d.Area = types.AreaGeral
	}
	created := now()

	// Create-if-absent: an existing row keeps its name, area and color
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disciplines (id, slug, name, area, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO NOTHING
	`, d.ID, d.Slug, d.Name, string(d.Area), d.Color, toMillis(created))
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

const disciplineColumns = `id, slug, name, area, color, created_at`

func scanDiscipline(row rowScanner) (*types.Discipline, error) {
	var d types.Discipline
	var area string
	var created int64
	if err := row.Scan(&d.ID, &d.Slug, &d.Name, &area, &d.Color, &created); err != nil {
		return nil, err
	}
	d.Area = types.Area(area)
	d.CreatedAt = fromMillis(created)
	return &d, nil
}

func (s *SQLiteStorage) GetDisciplineBySlug(ctx context.Context, slug string) (*types.Discipline, error) {
	d, err := scanDiscipline(s.db.QueryRowContext(ctx,
		`SELECT `+disciplineColumns+` FROM disciplines WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discipline: %w", err)
	}
	return d, nil
}

func (s *SQLiteStorage) ListDisciplines(ctx context.Context) ([]types.Discipline, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+disciplineColumns+` FROM disciplines ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list disciplines: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (s *SQLiteStorage) ContentExists(ctx context.Context, sourceKey string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contents WHERE source_key = ?`, sourceKey).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check content: %w", err)
	}
	return n > 0, nil
}

// InsertContent inserts c unless a row with the same source key exists.
// It reports whether a row was created; a concurrent writer that got there
// first makes this call a no-op.
func (s *SQLiteStorage) InsertContent(ctx context.Context, c *types.IndexedContent) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	if c.ID == "" {
		c.ID = types.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}

	var blob interface{}
	if c.HasEmbedding() {
		blob = serializeVector(c.Embedding)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO contents (id, discipline_id, kind, title, body, source_key, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_key) DO NOTHING
	`, c.ID, c.DisciplineID, string(c.Kind), c.Title, c.Body, c.SourceKey, blob, toMillis(c.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert content: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const contentColumns = `id, discipline_id, kind, title, body, source_key, embedding, created_at`

func scanContent(row rowScanner) (*types.IndexedContent, error) {
	var c types.IndexedContent
	var disciplineID sql.NullString
	var kind string
	var blob []byte
	var created int64
	if err := row.Scan(&c.ID, &disciplineID, &kind, &c.Title, &c.Body, &c.SourceKey, &blob, &created); err != nil {
		return nil, err
	}
	if disciplineID.Valid {
		c.DisciplineID = &disciplineID.String
	}
	c.Kind = types.ContentKind(kind)
	if len(blob) > 0 {
		c.Embedding = deserializeVector(blob)
	}
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

func (s *SQLiteStorage) GetContentBySourceKey(ctx context.Context, sourceKey string) (*types.IndexedContent, error) {
	c, err := scanContent(s.db.QueryRowContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE source_key = ?`, sourceKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return c, nil
}

// ListContents pages through contents in ID order, starting after afterID
func (s *SQLiteStorage) ListContents(ctx context.Context, afterID string, limit int) ([]*types.IndexedContent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list contents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.IndexedContent
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) UpdateContentBody(ctx context.Context, id, body string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE contents SET body = ? WHERE id = ?`, body, id)
	if err != nil {
		return fmt.Errorf("failed to update content: %w", err)
	}
	return expectRow(result)
}

func (s *SQLiteStorage) CountContents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count contents: %w", err)
	}
	return n, nil
}

// CountByDiscipline returns content counts per discipline, largest first.
// Disciplines without content are included with a zero count.
func (s *SQLiteStorage) CountByDiscipline(ctx context.Context) ([]DisciplineCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.slug, d.name, COUNT(c.id) AS n
		FROM disciplines d
		LEFT JOIN contents c ON c.discipline_id = d.id
		GROUP BY d.id
		ORDER BY n DESC, d.slug
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by discipline: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (s *SQLiteStorage) SearchContents(ctx context.Context, vector []float32, limit int) ([]ContentResult, error) {
	hits, err := searchVector(ctx, s.db, vector, limit)
	if err != nil {
		return nil, err
	}

	results := make([]ContentResult, 0, len(hits))
	for _, hit := range hits {
		c, err := scanContent(s.db.QueryRowContext(ctx,
			`SELECT `+contentColumns+` FROM contents WHERE id = ?`, hit.ContentID))
		if err != nil {
			return nil, fmt.Errorf("failed to load search hit: %w", err)
		}
		c.Embedding = nil
		results = append(results, ContentResult{Content: c, Similarity: hit.SimilarityScore})
	}
	return results, nil
}

// expectRow maps a zero-row update to ErrNotFound
func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
