package database

import (
	"context"
	"errors"

	"github.com/y0ug/hashlookup/internal/database/models"
)

// Database defines the methods required for finding storage and retrieval.
type Database interface {
	// Initialize sets up the necessary tables or buckets.
	Initialize(ctx context.Context) error

	Close(ctx context.Context) error

	// PostFinding records a classified file.
	PostFinding(ctx context.Context, finding models.Finding) error

	// GetFindingsByJob retrieves a page of the findings of one job, oldest
	// first, and the total number of findings of that job.
	GetFindingsByJob(ctx context.Context, jobID string, page, perPage int) ([]models.Finding, int, error)

	// GetFindingsByMD5 retrieves every finding recorded for a digest.
	// It returns ErrFindingNotFound when there is none.
	GetFindingsByMD5(ctx context.Context, md5 string) ([]models.Finding, error)

	// GetStats returns totals over all findings. Classified is left to the caller.
	GetStats(ctx context.Context) (models.StatsResponse, error)
}

var ErrFindingNotFound = errors.New("finding not found")
