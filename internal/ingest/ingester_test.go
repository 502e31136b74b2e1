package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/y0ug/hashlookup/internal/database/models"
	"github.com/y0ug/hashlookup/internal/hashlookup"
)

const emptyFileMD5 = "d41d8cd98f00b204e9800998ecf8427e"

type stubProber struct {
	known map[hashlookup.Digest]bool
	calls atomic.Int32
}

func (p *stubProber) Probe(ctx context.Context, digest hashlookup.Digest) hashlookup.ProbeResult {
	p.calls.Add(1)
	if p.known[digest] {
		return hashlookup.ProbePresent
	}
	return hashlookup.ProbeAbsent
}

type stubFetcher struct {
	trust int
	calls atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, digest hashlookup.Digest) (*hashlookup.Record, error) {
	f.calls.Add(1)
	trust := f.trust
	name := "empty.txt"
	return &hashlookup.Record{Trust: &trust, FileName: &name}, nil
}

type memorySink struct {
	mu       sync.Mutex
	findings []models.Finding
	err      error
}

func (s *memorySink) PostFinding(ctx context.Context, finding models.Finding) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, finding)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.findings)
}

type recordingMessenger struct {
	titles   []string
	messages []string
}

func (m *recordingMessenger) Send(title, message string) {
	m.titles = append(m.titles, title)
	m.messages = append(m.messages, message)
}

type testEnv struct {
	prober    *stubProber
	fetcher   *stubFetcher
	sink      *memorySink
	messenger *recordingMessenger
	hook      *test.Hook
	ingester  *FileIngester
}

func newTestEnv(known ...string) *testEnv {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	env := &testEnv{
		prober:    &stubProber{known: map[hashlookup.Digest]bool{}},
		fetcher:   &stubFetcher{trust: 95},
		sink:      &memorySink{},
		messenger: &recordingMessenger{},
		hook:      hook,
	}
	for _, k := range known {
		env.prober.known[hashlookup.Digest(k)] = true
	}
	lookup := hashlookup.NewLookup(env.prober, env.fetcher, nil, logger)
	env.ingester = NewFileIngester("job-1", lookup, env.sink, env.messenger, logger)
	return env
}

func memFile(name, content string) File {
	return File{
		Name:    name,
		Path:    "/evidence/" + name,
		Size:    int64(len(content)),
		Regular: true,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func TestProcessKnownDigestPostsFinding(t *testing.T) {
	env := newTestEnv(emptyFileMD5)
	f := memFile("empty.txt", "x")
	f.MD5 = strings.ToUpper(emptyFileMD5)

	if res := env.ingester.Process(context.Background(), f); res != ProcessOK {
		t.Errorf("expected ProcessOK, got %v", res)
	}
	if env.sink.count() != 1 {
		t.Fatalf("expected 1 finding, got %d", env.sink.count())
	}

	finding := env.sink.findings[0]
	if finding.JobID != "job-1" || finding.MD5 != emptyFileMD5 || finding.Path != "/evidence/empty.txt" {
		t.Errorf("unexpected finding identity: %+v", finding)
	}
	if finding.Type != models.FindingTypeHashSetHit {
		t.Errorf("unexpected finding type: %s", finding.Type)
	}
	if finding.Score != hashlookup.ScoreNone || finding.SetName != "Hashlookup:Trusted" {
		t.Errorf("unexpected classification: %s %s", finding.Score, finding.SetName)
	}
	if finding.Comment != "Hashlookup Trust score: 95, FileName: empty.txt" {
		t.Errorf("unexpected comment: %q", finding.Comment)
	}
}

func TestProcessComputesMissingDigest(t *testing.T) {
	// md5("hello world")
	const helloMD5 = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	env := newTestEnv(helloMD5)

	env.ingester.Process(context.Background(), memFile("hello.txt", "hello world"))
	if env.sink.count() != 1 {
		t.Fatalf("expected 1 finding, got %d", env.sink.count())
	}
	if env.sink.findings[0].MD5 != helloMD5 {
		t.Errorf("expected computed md5, got %s", env.sink.findings[0].MD5)
	}
}

func TestProcessUnknownDigestRecordsNothing(t *testing.T) {
	env := newTestEnv()
	f := memFile("empty.txt", "x")
	f.MD5 = emptyFileMD5

	env.ingester.Process(context.Background(), f)
	if env.sink.count() != 0 {
		t.Errorf("expected no findings, got %d", env.sink.count())
	}
	if env.fetcher.calls.Load() != 0 {
		t.Errorf("fetcher should not be called for an absent digest")
	}
	if n := env.ingester.classifier.Counters().Load(); n != 0 {
		t.Errorf("expected counter 0, got %d", n)
	}
}

func TestProcessSkipsWithoutLookup(t *testing.T) {
	env := newTestEnv(emptyFileMD5)

	dir := memFile("dir", "x")
	dir.Regular = false
	empty := memFile("zero", "")
	unalloc := memFile("$Unalloc_1", "x")
	unalloc.Unallocated = true

	for _, f := range []File{dir, empty, unalloc} {
		f.MD5 = emptyFileMD5
		if res := env.ingester.Process(context.Background(), f); res != ProcessOK {
			t.Errorf("%s: expected ProcessOK", f.Name)
		}
	}
	if env.prober.calls.Load() != 0 {
		t.Errorf("expected no probe for skipped files, got %d", env.prober.calls.Load())
	}
}

func TestProcessUnreadableFileWarns(t *testing.T) {
	env := newTestEnv(emptyFileMD5)
	f := memFile("locked.bin", "x")
	f.Open = func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}

	if res := env.ingester.Process(context.Background(), f); res != ProcessOK {
		t.Errorf("expected ProcessOK, got %v", res)
	}
	if env.prober.calls.Load() != 0 {
		t.Errorf("expected no lookup without a digest")
	}

	var warned bool
	for _, entry := range env.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "File has no MD5 hash") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a missing MD5 warning")
	}
}

func TestProcessSinkFailureIsLogged(t *testing.T) {
	env := newTestEnv(emptyFileMD5)
	env.sink.err = errors.New("index unavailable")
	f := memFile("empty.txt", "x")
	f.MD5 = emptyFileMD5

	if res := env.ingester.Process(context.Background(), f); res != ProcessOK {
		t.Errorf("expected ProcessOK, got %v", res)
	}
	entry := env.hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Errorf("expected an error log entry, got %+v", entry)
	}
}

func TestShutdownSendsSummary(t *testing.T) {
	env := newTestEnv(emptyFileMD5)
	f := memFile("empty.txt", "x")
	f.MD5 = emptyFileMD5
	env.ingester.Process(context.Background(), f)
	env.ingester.Process(context.Background(), f)

	env.ingester.Shutdown(context.Background())

	if len(env.messenger.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(env.messenger.messages))
	}
	if env.messenger.titles[0] != ModuleName || env.messenger.messages[0] != "2 files found" {
		t.Errorf("unexpected summary: %s / %s", env.messenger.titles[0], env.messenger.messages[0])
	}
}

func TestComputeMD5(t *testing.T) {
	sum, err := ComputeMD5(strings.NewReader(""))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if sum != emptyFileMD5 {
		t.Errorf("md5 mismatch: %s", sum)
	}
}
