package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestJobRunWalksTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello world")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "other content")
	writeFile(t, filepath.Join(root, "sub", "empty"), "")

	env := newTestEnv("5eb63bbbe01eeed093cb22bb8f5acdc3")
	job := NewJob(env.ingester, 2, env.ingester.logger)

	stats, err := job.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Walked != 3 || stats.Skipped != 1 || stats.Processed != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if env.sink.count() != 1 {
		t.Fatalf("expected 1 finding, got %d", env.sink.count())
	}
	if got := env.sink.findings[0].Path; got != filepath.Join(root, "a.txt") {
		t.Errorf("unexpected finding path: %s", got)
	}
	if n := env.prober.calls.Load(); n != 2 {
		t.Errorf("expected 2 probes, got %d", n)
	}
}

func TestJobRunCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello world")

	env := newTestEnv()
	job := NewJob(env.ingester, 1, env.ingester.logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := job.Run(ctx, root); err == nil {
		t.Errorf("expected an error for a cancelled context")
	}
	if env.prober.calls.Load() != 0 {
		t.Errorf("expected no lookups after cancellation")
	}
}

func TestJobRunMissingPathIsNotFatal(t *testing.T) {
	env := newTestEnv()
	job := NewJob(env.ingester, 1, env.ingester.logger)

	stats, err := job.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Walked != 0 {
		t.Errorf("expected nothing walked, got %+v", stats)
	}
}
