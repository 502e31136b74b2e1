package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashlookup/internal/database/models"
	"github.com/y0ug/hashlookup/internal/hashlookup"
)

// SQLiteDB represents the SQLite implementation of the Database interface.
type SQLiteDB struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteDB initializes a new SQLiteDB instance.
func NewSQLiteDB(dataSourceName string, logger *logrus.Logger) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}

	// SQLite3 doesn't support multiple writers well.
	db.SetMaxOpenConns(1)

	sqliteDB := &SQLiteDB{
		db:     db,
		logger: logger,
	}

	if err := sqliteDB.Initialize(context.TODO()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sqliteDB, nil
}

func (s *SQLiteDB) Close(context.Context) error {
	return s.db.Close()
}

// Initialize creates the necessary tables and indexes.
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS findings (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        job_id TEXT NOT NULL,
        filename TEXT NOT NULL,
        path TEXT NOT NULL,
        md5 TEXT NOT NULL,
        type TEXT NOT NULL,
        score TEXT NOT NULL,
        set_name TEXT NOT NULL,
        comment TEXT NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_findings_job_id ON findings(job_id);
    CREATE INDEX IF NOT EXISTS idx_findings_md5 ON findings(md5);
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// PostFinding inserts a finding.
func (s *SQLiteDB) PostFinding(ctx context.Context, finding models.Finding) error {
	query := `
        INSERT INTO findings (job_id, filename, path, md5, type, score, set_name, comment, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	_, err := s.db.ExecContext(ctx, query,
		finding.JobID,
		finding.FileName,
		finding.Path,
		normalizeMD5(finding.MD5),
		finding.Type,
		finding.Score.String(),
		finding.SetName,
		finding.Comment,
		formatTime(finding.CreatedAt),
	)
	if err != nil {
		s.logger.WithError(err).Errorf("PostFinding: failed to insert finding for %s", finding.Path)
		return err
	}
	return nil
}

const findingColumns = `id, job_id, filename, path, md5, type, score, set_name, comment, created_at`

// GetFindingsByJob retrieves a page of findings and the job's total count.
func (s *SQLiteDB) GetFindingsByJob(ctx context.Context, jobID string, page, perPage int) ([]models.Finding, int, error) {
	_, perPage, offset := normalizePage(page, perPage)

	query := `SELECT ` + findingColumns + `
        FROM findings
        WHERE job_id = ?
        ORDER BY id ASC
        LIMIT ? OFFSET ?;`

	findings, err := s.queryFindings(ctx, "GetFindingsByJob", query, jobID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings WHERE job_id = ?;`, jobID).Scan(&total)
	if err != nil {
		s.logger.WithError(err).Error("GetFindingsByJob: failed to get total count")
		return findings, 0, err
	}
	return findings, total, nil
}

// GetFindingsByMD5 retrieves all findings of a digest.
func (s *SQLiteDB) GetFindingsByMD5(ctx context.Context, md5 string) ([]models.Finding, error) {
	query := `SELECT ` + findingColumns + `
        FROM findings
        WHERE md5 = ?
        ORDER BY id ASC;`

	findings, err := s.queryFindings(ctx, "GetFindingsByMD5", query, normalizeMD5(md5))
	if err != nil {
		return nil, err
	}
	if len(findings) == 0 {
		return nil, ErrFindingNotFound
	}
	return findings, nil
}

// GetStats aggregates the findings table.
func (s *SQLiteDB) GetStats(ctx context.Context) (models.StatsResponse, error) {
	stats := models.StatsResponse{FindingsByScore: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT score, COUNT(*) FROM findings GROUP BY score;`)
	if err != nil {
		s.logger.WithError(err).Error("GetStats: failed to execute query")
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var score string
		var count int
		if err := rows.Scan(&score, &count); err != nil {
			s.logger.WithError(err).Warn("GetStats: failed to scan row")
			continue
		}
		stats.FindingsByScore[score] = count
		stats.TotalFindings += count
	}
	if err := rows.Err(); err != nil {
		s.logger.WithError(err).Error("GetStats: row iteration error")
		return stats, err
	}

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM findings;`).Scan(&latest); err != nil {
		s.logger.WithError(err).Error("GetStats: failed to get last finding time")
		return stats, err
	}
	if latest.Valid && latest.String != "" {
		t, err := parseTime(latest.String)
		if err != nil {
			s.logger.WithError(err).Warnf("GetStats: invalid time format: %s", latest.String)
		} else {
			stats.LastFindingAt = t
		}
	}
	return stats, nil
}

func (s *SQLiteDB) queryFindings(ctx context.Context, op, query string, args ...interface{}) ([]models.Finding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.WithError(err).Errorf("%s: failed to execute query", op)
		return nil, err
	}
	defer rows.Close()

	findings := []models.Finding{}
	for rows.Next() {
		var f models.Finding
		var score, createdAt string
		err := rows.Scan(&f.ID, &f.JobID, &f.FileName, &f.Path, &f.MD5, &f.Type, &score, &f.SetName, &f.Comment, &createdAt)
		if err != nil {
			s.logger.WithError(err).Warnf("%s: failed to scan row", op)
			continue
		}
		if f.Score, err = hashlookup.ParseScoreLevel(score); err != nil {
			s.logger.WithError(err).Warnf("%s: invalid score for finding %d", op, f.ID)
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			s.logger.WithError(err).Warnf("%s: invalid time format for finding %d", op, f.ID)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		s.logger.WithError(err).Errorf("%s: row iteration error", op)
		return nil, err
	}
	return findings, nil
}
