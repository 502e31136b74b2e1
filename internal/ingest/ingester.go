package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashlookup/internal/database/models"
	"github.com/y0ug/hashlookup/internal/hashlookup"
)

// ModuleName identifies this module in findings and summary messages.
const ModuleName = "Hashlookup file ingest Module"

// ProcessResult is returned to the file enumeration for every file.
type ProcessResult int

const (
	ProcessOK ProcessResult = iota
)

// DigestClassifier is the lookup the ingester delegates to.
type DigestClassifier interface {
	ClassifyDigest(ctx context.Context, digest string) (hashlookup.Classification, bool)
	Counters() *hashlookup.RunCounters
}

// FindingSink persists findings.
type FindingSink interface {
	PostFinding(ctx context.Context, finding models.Finding) error
}

// Messenger delivers the end-of-job summary.
type Messenger interface {
	Send(title, message string)
}

// FileIngester runs the hashlookup classification for each file of one job.
type FileIngester struct {
	jobID      string
	classifier DigestClassifier
	sink       FindingSink
	messenger  Messenger
	logger     *logrus.Logger
}

// NewFileIngester initializes a FileIngester. messenger may be nil.
func NewFileIngester(jobID string, classifier DigestClassifier, sink FindingSink, messenger Messenger, logger *logrus.Logger) *FileIngester {
	return &FileIngester{
		jobID:      jobID,
		classifier: classifier,
		sink:       sink,
		messenger:  messenger,
		logger:     logger,
	}
}

// JobID returns the job the ingester records findings for.
func (fi *FileIngester) JobID() string {
	return fi.jobID
}

// Process looks up one file and records a finding when the hash is known.
// It always returns ProcessOK: lookup and storage failures are logged only.
func (fi *FileIngester) Process(ctx context.Context, f File) ProcessResult {
	if ShouldSkip(f) {
		return ProcessOK
	}

	logger := fi.logger.WithFields(logrus.Fields{
		"job":  fi.jobID,
		"file": f.Path,
	})

	md5 := f.MD5
	if md5 == "" {
		computed, err := computeFileMD5(f)
		if err != nil {
			logger.WithError(err).Error("Error calculating MD5 hash")
		} else {
			logger.WithField("md5", computed).Debug("Calculated MD5")
			md5 = computed
		}
	}
	if md5 == "" {
		logger.Warn("File has no MD5 hash: " + f.Name)
		return ProcessOK
	}

	c, ok := fi.classifier.ClassifyDigest(ctx, md5)
	if !ok {
		return ProcessOK
	}

	finding := models.Finding{
		JobID:     fi.jobID,
		FileName:  f.Name,
		Path:      f.Path,
		MD5:       strings.ToLower(md5),
		Type:      models.FindingTypeHashSetHit,
		Score:     c.Score,
		SetName:   c.SetName(),
		Comment:   c.Comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := fi.sink.PostFinding(ctx, finding); err != nil {
		logger.WithError(err).Error("Error indexing finding " + finding.SetName)
	}
	return ProcessOK
}

// Shutdown posts the number of files found during the job.
func (fi *FileIngester) Shutdown(ctx context.Context) {
	message := fmt.Sprintf("%d files found", fi.classifier.Counters().Load())
	fi.logger.WithField("job", fi.jobID).Info(message)
	if fi.messenger != nil {
		fi.messenger.Send(ModuleName, message)
	}
}
