package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/y0ug/hashlookup/internal/database/models"
	"github.com/y0ug/hashlookup/internal/hashlookup"
)

func openBackends(t *testing.T) map[string]Database {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	sqlite, err := NewSQLiteDB(filepath.Join(t.TempDir(), "findings.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	bolt, err := NewBoltDB(filepath.Join(t.TempDir(), "findings.bolt"), logger)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	mr := miniredis.RunT(t)
	rdb, err := NewRedisDB(ctx, &DatabaseConfig{Type: "redis", RedisAddr: mr.Addr()}, logger)
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}

	backends := map[string]Database{"sqlite": sqlite, "bolt": bolt, "redis": rdb}
	t.Cleanup(func() {
		for _, db := range backends {
			db.Close(ctx)
		}
	})
	return backends
}

func finding(job, md5 string, score hashlookup.ScoreLevel, at time.Time) models.Finding {
	return models.Finding{
		JobID:     job,
		FileName:  "empty.txt",
		Path:      "/evidence/empty.txt",
		MD5:       md5,
		Type:      models.FindingTypeHashSetHit,
		Score:     score,
		SetName:   "Hashlookup:Trusted",
		Comment:   "Hashlookup Trust score: 95",
		CreatedAt: at,
	}
}

const (
	md5A = "d41d8cd98f00b204e9800998ecf8427e"
	md5B = "5eb63bbbe01eeed093cb22bb8f5acdc3"
)

func TestDatabaseFindings(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				f := finding("job-1", md5A, hashlookup.ScoreNone, base.Add(time.Duration(i)*time.Minute))
				f.Path = filepath.Join("/evidence", string(rune('a'+i)))
				if err := db.PostFinding(ctx, f); err != nil {
					t.Fatalf("post: %v", err)
				}
			}
			last := base.Add(time.Hour)
			if err := db.PostFinding(ctx, finding("job-2", "5EB63BBBE01EEED093CB22BB8F5ACDC3", hashlookup.ScoreNotable, last)); err != nil {
				t.Fatalf("post: %v", err)
			}

			page, total, err := db.GetFindingsByJob(ctx, "job-1", 2, 2)
			if err != nil {
				t.Fatalf("by job: %v", err)
			}
			if total != 5 || len(page) != 2 {
				t.Fatalf("expected 2 of 5, got %d of %d", len(page), total)
			}
			if page[0].Path != "/evidence/c" || page[1].Path != "/evidence/d" {
				t.Errorf("unexpected page order: %s, %s", page[0].Path, page[1].Path)
			}
			if page[0].Score != hashlookup.ScoreNone || !page[0].CreatedAt.Equal(base.Add(2*time.Minute)) {
				t.Errorf("unexpected finding: %+v", page[0])
			}

			tail, _, err := db.GetFindingsByJob(ctx, "job-1", 3, 2)
			if err != nil || len(tail) != 1 {
				t.Errorf("expected 1 finding on the last page, got %d (%v)", len(tail), err)
			}
			beyond, total, err := db.GetFindingsByJob(ctx, "job-1", 9, 2)
			if err != nil || len(beyond) != 0 || total != 5 {
				t.Errorf("expected empty page past the end, got %d of %d (%v)", len(beyond), total, err)
			}
			none, total, err := db.GetFindingsByJob(ctx, "missing", 1, 10)
			if err != nil || len(none) != 0 || total != 0 {
				t.Errorf("expected no findings for unknown job, got %d (%v)", len(none), err)
			}

			byMD5, err := db.GetFindingsByMD5(ctx, md5B)
			if err != nil {
				t.Fatalf("by md5: %v", err)
			}
			if len(byMD5) != 1 || byMD5[0].JobID != "job-2" || byMD5[0].MD5 != md5B {
				t.Errorf("unexpected md5 findings: %+v", byMD5)
			}
			if _, err := db.GetFindingsByMD5(ctx, "00000000000000000000000000000000"); !errors.Is(err, ErrFindingNotFound) {
				t.Errorf("expected ErrFindingNotFound, got %v", err)
			}

			stats, err := db.GetStats(ctx)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if stats.TotalFindings != 6 {
				t.Errorf("expected 6 findings, got %d", stats.TotalFindings)
			}
			if stats.FindingsByScore["none"] != 5 || stats.FindingsByScore["notable"] != 1 {
				t.Errorf("unexpected score counts: %v", stats.FindingsByScore)
			}
			if !stats.LastFindingAt.Equal(last) {
				t.Errorf("expected last finding at %s, got %s", last, stats.LastFindingAt)
			}
		})
	}
}

func TestDatabaseEmptyJobID(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := db.PostFinding(ctx, finding("", md5A, hashlookup.ScoreNone, at)); err != nil {
				t.Fatalf("post: %v", err)
			}
			if err := db.PostFinding(ctx, finding("job-1", md5B, hashlookup.ScoreNone, at)); err != nil {
				t.Fatalf("post: %v", err)
			}

			page, total, err := db.GetFindingsByJob(ctx, "", 1, 10)
			if err != nil {
				t.Fatalf("by job: %v", err)
			}
			if total != 1 || len(page) != 1 || page[0].MD5 != md5A {
				t.Errorf("expected the unnamed job's finding, got %d of %d", len(page), total)
			}
			byMD5, err := db.GetFindingsByMD5(ctx, md5A)
			if err != nil || len(byMD5) != 1 || byMD5[0].JobID != "" {
				t.Errorf("unexpected md5 findings: %+v (%v)", byMD5, err)
			}
		})
	}
}

func TestDatabaseEmptyStats(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			stats, err := db.GetStats(context.Background())
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if stats.TotalFindings != 0 || !stats.LastFindingAt.IsZero() {
				t.Errorf("unexpected stats: %+v", stats)
			}
		})
	}
}

func TestLoadDatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "")
	t.Setenv("DATABASE_PATH", "")
	cfg, err := LoadDatabaseConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Type != "sqlite" || cfg.Path != defaultSQLitePath {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	t.Setenv("DATABASE_TYPE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	cfg, err = LoadDatabaseConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 3 {
		t.Errorf("unexpected redis config: %+v", cfg)
	}

	t.Setenv("REDIS_DB", "three")
	if _, err := LoadDatabaseConfig(); err == nil {
		t.Errorf("expected error for invalid REDIS_DB")
	}

	t.Setenv("DATABASE_TYPE", "bolt")
	if _, err := LoadDatabaseConfig(); err == nil {
		t.Errorf("expected error for bolt without a path")
	}

	t.Setenv("DATABASE_TYPE", "mongo")
	if _, err := LoadDatabaseConfig(); err == nil {
		t.Errorf("expected error for unsupported type")
	}
}
