package models

import (
	"time"

	"github.com/y0ug/hashlookup/internal/hashlookup"
)

// FindingTypeHashSetHit is the finding type written for every classified file.
const FindingTypeHashSetHit = "hash-set hit"

// Finding is a classified file recorded for an ingest job.
type Finding struct {
	ID        int64                 `json:"id,omitempty"`
	JobID     string                `json:"job_id"`
	FileName  string                `json:"filename"`
	Path      string                `json:"path"`
	MD5       string                `json:"md5"`
	Type      string                `json:"type"`
	Score     hashlookup.ScoreLevel `json:"score"`
	SetName   string                `json:"set_name"`
	Comment   string                `json:"comment"`
	CreatedAt time.Time             `json:"created_at"`
}

// FindingsResponse includes pagination metadata.
type FindingsResponse struct {
	Findings   []Finding `json:"findings"`
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
}

// LookupResponse is the body of a live digest lookup.
type LookupResponse struct {
	Digest         string                     `json:"digest"`
	Classification *hashlookup.Classification `json:"classification,omitempty"`
	Hashes         *hashlookup.Hashes         `json:"hashes,omitempty"`
}

// StatsResponse represents the structure of the /stats API response.
type StatsResponse struct {
	TotalFindings   int            `json:"total_findings"`
	FindingsByScore map[string]int `json:"findings_by_score"`
	LastFindingAt   time.Time      `json:"last_finding_at"`
	Classified      int64          `json:"classified"`
}
