package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a load record does not exist.
var ErrNotFound = errors.New("load not found")

// DefaultListLimit caps ListLoads when the filter sets no limit.
const DefaultListLimit = 50

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	cfg      Config
	validate *validator.Validate
}

// Config holds SQLite store configuration
type Config struct {
	Path            string        `validate:"required"`
	MaxOpenConns    int           `validate:"gte=0"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a separate database.
	if inMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg, validate: v}, nil
}

func inMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// dsn builds the modernc connection string. WAL only applies to files.
func (s *SQLiteStore) dsn() string {
	pragmas := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)", "_txlock=immediate", "_time_format=sqlite"}
	if !inMemory(s.cfg.Path) {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	sep := "?"
	if strings.Contains(s.cfg.Path, "?") {
		sep = "&"
	}
	return s.cfg.Path + sep + strings.Join(pragmas, "&")
}

// Init opens the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordLoad stores rec and its findings in one transaction. An empty ID is
// replaced by a fresh UUID and a zero LoadedAt by the current time.
func (s *SQLiteStore) RecordLoad(ctx context.Context, rec *LoadRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = LoadStatusSucceeded
	}
	templates := rec.Templates
	if templates == nil {
		templates = []string{}
	}
	tmplJSON, err := json.Marshal(templates)
	if err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO loads (id, file, strict, status, error_kind, error, declarations, duration_ms, templates, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		rec.ID,
		rec.File,
		rec.Strict,
		rec.Status,
		rec.ErrorKind,
		rec.Error,
		rec.Declarations,
		rec.DurationMS,
		string(tmplJSON),
		rec.LoadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record load: %w", err)
	}

	for _, f := range rec.Findings {
		f.LoadID = rec.ID
		result, err := tx.ExecContext(ctx, `
			INSERT INTO load_findings (load_id, policy, severity, path, message, line)
			VALUES (?, ?, ?, ?, ?, ?)
		`, f.LoadID, f.Policy, f.Severity, f.Path, f.Message, f.Line)
		if err != nil {
			return fmt.Errorf("failed to record finding: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get finding ID: %w", err)
		}
		f.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}
	return nil
}

// GetLoad retrieves a load and its findings by ID.
func (s *SQLiteStore) GetLoad(ctx context.Context, id string) (*LoadRecord, error) {
	query := `
		SELECT id, file, strict, status, error_kind, error, declarations, duration_ms, templates, loaded_at
		FROM loads
		WHERE id = ?
	`

	rec, err := scanLoad(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get load: %w", err)
	}

	findings, err := s.listFindings(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Findings = findings
	return rec, nil
}

// ListLoads lists loads, newest first, without their findings.
func (s *SQLiteStore) ListLoads(ctx context.Context, filter LoadFilter) ([]*LoadRecord, error) {
	if err := s.validate.Struct(filter); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	limit := filter.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, file, strict, status, error_kind, error, declarations, duration_ms, templates, loaded_at
		FROM loads
		WHERE (? IS NULL OR file = ?)
		  AND (? IS NULL OR status = ?)
		ORDER BY loaded_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.File, filter.File, filter.Status, filter.Status, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list loads: %w", err)
	}
	defer rows.Close()

	loads := []*LoadRecord{}
	for rows.Next() {
		rec, err := scanLoad(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan load: %w", err)
		}
		loads = append(loads, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loads: %w", err)
	}

	return loads, nil
}

// DeleteLoadsBefore removes loads older than before, with their findings.
func (s *SQLiteStore) DeleteLoadsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM loads WHERE loaded_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete loads: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) listFindings(ctx context.Context, loadID string) ([]*Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, load_id, policy, severity, path, message, line
		FROM load_findings
		WHERE load_id = ?
		ORDER BY id
	`, loadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	findings := []*Finding{}
	for rows.Next() {
		f := &Finding{}
		if err := rows.Scan(&f.ID, &f.LoadID, &f.Policy, &f.Severity, &f.Path, &f.Message, &f.Line); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}
	return findings, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoad(row rowScanner) (*LoadRecord, error) {
	rec := &LoadRecord{}
	var templates string
	err := row.Scan(
		&rec.ID,
		&rec.File,
		&rec.Strict,
		&rec.Status,
		&rec.ErrorKind,
		&rec.Error,
		&rec.Declarations,
		&rec.DurationMS,
		&templates,
		&rec.LoadedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(templates), &rec.Templates); err != nil {
		return nil, fmt.Errorf("failed to decode templates of load %s: %w", rec.ID, err)
	}
	return rec, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
