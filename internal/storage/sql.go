package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/niczy/designtree/internal/models"
	_ "modernc.org/sqlite"
)

// Dialect selects the driver and placeholder style of a SQLStorage.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS projects (
  id          TEXT PRIMARY KEY,
  name        TEXT NOT NULL,
  structure   TEXT NOT NULL,
  created_at  BIGINT NOT NULL,
  updated_at  BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS designs (
  id          TEXT PRIMARY KEY,
  project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  name        TEXT NOT NULL,
  hash        TEXT NOT NULL,
  snapshot    TEXT NOT NULL,
  structure   TEXT NOT NULL,
  created_at  BIGINT NOT NULL,
  UNIQUE(project_id, hash)
);
CREATE INDEX IF NOT EXISTS idx_designs_project ON designs(project_id, created_at);
`

// SQLStorage implements Storage on sqlite (modernc) or PostgreSQL (lib/pq).
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens the database and ensures the schema exists.
// For sqlite, dsn is a file path.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStorage, error) {
	switch dialect {
	case DialectSQLite:
		dsn = "file:" + dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("%w: unknown sql dialect %q", ErrInvalidInput, dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	// Ensure schema exists for convenience.
	for _, stmt := range strings.Split(sqlSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return &SQLStorage{db: db, dialect: dialect}, nil
}

func (s *SQLStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStorage) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

func toJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// CreateProject stores a new project.
func (s *SQLStorage) CreateProject(ctx context.Context, project *models.Project) error {
	if err := validProject(project); err != nil {
		return err
	}
	structure, err := toJSON(project.Structure)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.exec(ctx, `INSERT INTO projects(id, name, structure, created_at, updated_at) VALUES(?,?,?,?,?)`,
		project.ID, project.Name, structure, now.UnixNano(), now.UnixNano())
	if isUniqueViolation(err) {
		return ErrProjectExists
	}
	if err != nil {
		return err
	}
	project.CreatedAt = time.Unix(0, now.UnixNano())
	project.UpdatedAt = project.CreatedAt
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var (
		p                models.Project
		structure        string
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.Name, &structure, &created, &updated); err != nil {
		return nil, err
	}
	p.Structure = &models.Structure{}
	if err := json.Unmarshal([]byte(structure), p.Structure); err != nil {
		return nil, fmt.Errorf("decode structure of %s: %w", p.ID, err)
	}
	p.Structure.Normalize()
	p.CreatedAt = time.Unix(0, created)
	p.UpdatedAt = time.Unix(0, updated)
	return &p, nil
}

// GetProject retrieves a project by ID.
func (s *SQLStorage) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	p, err := scanProject(s.queryRow(ctx, `SELECT id, name, structure, created_at, updated_at FROM projects WHERE id = ?`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	return p, err
}

// ListProjects returns projects ordered by ID.
func (s *SQLStorage) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	query := `SELECT id, name, structure, created_at, updated_at FROM projects ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		if s.dialect == DialectPostgres {
			query = strings.Replace(query, "LIMIT -1 ", "", 1)
		}
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// UpdateStructure replaces the structure of a project.
func (s *SQLStorage) UpdateStructure(ctx context.Context, projectID string, structure *models.Structure) (*models.Project, error) {
	if structure == nil {
		return nil, ErrInvalidInput
	}
	raw, err := toJSON(structure)
	if err != nil {
		return nil, err
	}
	res, err := s.exec(ctx, `UPDATE projects SET structure = ?, updated_at = ? WHERE id = ?`, raw, time.Now().UnixNano(), projectID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrProjectNotFound
	}
	return s.GetProject(ctx, projectID)
}

// DeleteProject removes a project and its designs.
func (s *SQLStorage) DeleteProject(ctx context.Context, projectID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM designs WHERE project_id = ?`), projectID); err != nil {
		return err
	}
	var res sql.Result
	res, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM projects WHERE id = ?`), projectID)
	if err != nil {
		return err
	}
	var n int64
	if n, err = res.RowsAffected(); err != nil {
		return err
	}
	if n == 0 {
		err = ErrProjectNotFound
		return err
	}
	err = tx.Commit()
	return err
}

// CreateDesign stores an exported design. The (project, hash) pair is unique.
func (s *SQLStorage) CreateDesign(ctx context.Context, design *models.Design) error {
	if err := validDesign(design); err != nil {
		return err
	}
	if _, err := s.GetProject(ctx, design.ProjectID); err != nil {
		return err
	}
	snapshot, err := toJSON(design.Snapshot)
	if err != nil {
		return err
	}
	structure, err := toJSON(design.Structure)
	if err != nil {
		return err
	}

	now := time.Now().UnixNano()
	_, err = s.exec(ctx, `INSERT INTO designs(id, project_id, name, hash, snapshot, structure, created_at) VALUES(?,?,?,?,?,?,?)`,
		design.ID, design.ProjectID, design.Name, design.Hash, snapshot, structure, now)
	if isUniqueViolation(err) {
		return ErrDesignExists
	}
	if err != nil {
		return err
	}
	design.CreatedAt = time.Unix(0, now)
	return nil
}

const designColumns = `id, project_id, name, hash, snapshot, structure, created_at`

func scanDesign(row rowScanner) (*models.Design, error) {
	var (
		d                   models.Design
		snapshot, structure string
		created             int64
	)
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Name, &d.Hash, &snapshot, &structure, &created); err != nil {
		return nil, err
	}
	if snapshot != "null" {
		d.Snapshot = &models.DesignSnapshot{}
		if err := json.Unmarshal([]byte(snapshot), d.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot of %s: %w", d.ID, err)
		}
	}
	if structure != "null" {
		d.Structure = &models.Structure{}
		if err := json.Unmarshal([]byte(structure), d.Structure); err != nil {
			return nil, fmt.Errorf("decode structure of %s: %w", d.ID, err)
		}
		d.Structure.Normalize()
	}
	d.CreatedAt = time.Unix(0, created)
	return &d, nil
}

// GetDesign retrieves a design by ID.
func (s *SQLStorage) GetDesign(ctx context.Context, designID string) (*models.Design, error) {
	d, err := scanDesign(s.queryRow(ctx, `SELECT `+designColumns+` FROM designs WHERE id = ?`, designID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDesignNotFound
	}
	return d, err
}

// FindDesignByHash looks up a design of a project by structural hash.
func (s *SQLStorage) FindDesignByHash(ctx context.Context, projectID, hash string) (*models.Design, error) {
	d, err := scanDesign(s.queryRow(ctx, `SELECT `+designColumns+` FROM designs WHERE project_id = ? AND hash = ?`, projectID, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDesignNotFound
	}
	return d, err
}

// ListDesigns returns the designs of a project in creation order.
func (s *SQLStorage) ListDesigns(ctx context.Context, projectID string) ([]*models.Design, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+designColumns+` FROM designs WHERE project_id = ? ORDER BY created_at, id`), projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*models.Design{}
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// DeleteDesign removes a design.
func (s *SQLStorage) DeleteDesign(ctx context.Context, designID string) error {
	res, err := s.exec(ctx, `DELETE FROM designs WHERE id = ?`, designID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDesignNotFound
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
