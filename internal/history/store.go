// Package history persists compliance runs to a local SQLite database so
// score changes between runs are visible.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/mcp-compliance-tester/internal/compliance"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// RunRecord is one persisted run, without the full report payload.
type RunRecord struct {
	ID            string    `json:"id"`
	ServerName    string    `json:"serverName"`
	ServerVersion string    `json:"serverVersion"`
	Transport     string    `json:"transport"`
	Score         int       `json:"score"`
	Status        string    `json:"status"`
	Passed        int       `json:"passed"`
	Failed        int       `json:"failed"`
	Warnings      int       `json:"warnings"`
	Skipped       int       `json:"skipped"`
	Total         int       `json:"total"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store is the run-history repository.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewStore opens (or creates) the SQLite database at path and applies
// pending migrations.
func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}
	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	logger.WithField("path", path).Debug("History store opened")
	return &Store{db: db, log: logger}, nil
}

// NewStoreWithDB wraps an existing database handle. Used by tests that
// substitute a mock; migrations are not run.
func NewStoreWithDB(db *sql.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{db: db, log: logger}
}

func runMigrations(db *sql.DB, logger *logrus.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("History migrations applied")
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one report. The full report is stored as JSON alongside the
// queryable summary columns.
func (s *Store) Save(ctx context.Context, r *compliance.HealthReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, server_name, server_version, transport, score, status,
			passed, failed, warnings, skipped, total, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Server.Name, r.Server.Version, r.Server.Transport,
		r.Summary.OverallScore, string(r.Summary.Status),
		r.Summary.TestResults.Passed, r.Summary.TestResults.Failed,
		r.Summary.TestResults.Warnings, r.Summary.TestResults.Skipped,
		r.Summary.TestResults.Total, string(payload), r.Metadata.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"runId":  r.RunID,
		"server": r.Server.Name,
		"score":  r.Summary.OverallScore,
	}).Info("Run saved to history")
	return nil
}

const recordColumns = `id, server_name, server_version, transport, score, status,
	passed, failed, warnings, skipped, total, created_at`

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns the full report for one run.
func (s *Store) Get(ctx context.Context, runID string) (*compliance.HealthReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM runs WHERE id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	var report compliance.HealthReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	return &report, nil
}

// PreviousScore returns the score of the most recent run for the named
// server, or ErrNotFound if none exists.
func (s *Store) PreviousScore(ctx context.Context, serverName string) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx, `
		SELECT score FROM runs WHERE server_name = ?
		ORDER BY created_at DESC LIMIT 1`, serverName).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("loading previous score for %s: %w", serverName, err)
	}
	return score, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	err := row.Scan(&rec.ID, &rec.ServerName, &rec.ServerVersion, &rec.Transport,
		&rec.Score, &rec.Status, &rec.Passed, &rec.Failed, &rec.Warnings,
		&rec.Skipped, &rec.Total, &rec.CreatedAt)
	if err != nil {
		return RunRecord{}, fmt.Errorf("scanning run row: %w", err)
	}
	return rec, nil
}
