package database

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/y0ug/hashlookup/internal/database/models"
)

var (
	findingsBucket = []byte("Findings")
	jobIndexBucket = []byte("JobIndex")
	md5IndexBucket = []byte("MD5Index")
)

// BoltDB implements the Database interface using bbolt.
type BoltDB struct {
	db     *bbolt.DB
	path   string
	logger *logrus.Logger
}

// NewBoltDB initializes a new BoltDB instance.
func NewBoltDB(path string, logger *logrus.Logger) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	boltDB := &BoltDB{
		db:     db,
		path:   path,
		logger: logger,
	}

	if err := boltDB.Initialize(context.TODO()); err != nil {
		db.Close()
		return nil, err
	}

	return boltDB, nil
}

// Initialize sets up the necessary buckets.
func (b *BoltDB) Initialize(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{findingsBucket, jobIndexBucket, md5IndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create %s bucket: %v", name, err)
			}
		}
		return nil
	})
}

// Close closes the BoltDB database.
func (b *BoltDB) Close(ctx context.Context) error {
	return b.db.Close()
}

// itob returns an 8-byte big endian key so ids iterate in insertion order.
func itob(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// indexKey names an index bucket. bbolt rejects empty bucket names, so an
// empty job or digest is kept under a single zero byte.
func indexKey(s string) []byte {
	if s == "" {
		return []byte{0}
	}
	return []byte(s)
}

// PostFinding stores the finding and indexes it by job and digest.
func (b *BoltDB) PostFinding(ctx context.Context, finding models.Finding) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(findingsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		finding.ID = int64(seq)
		finding.MD5 = normalizeMD5(finding.MD5)
		finding.CreatedAt = finding.CreatedAt.UTC()

		data, err := json.Marshal(finding)
		if err != nil {
			return fmt.Errorf("failed to marshal Finding: %w", err)
		}
		key := itob(seq)
		if err := bucket.Put(key, data); err != nil {
			return err
		}

		jobs, err := tx.Bucket(jobIndexBucket).CreateBucketIfNotExists(indexKey(finding.JobID))
		if err != nil {
			return err
		}
		if err := jobs.Put(key, nil); err != nil {
			return err
		}

		digests, err := tx.Bucket(md5IndexBucket).CreateBucketIfNotExists(indexKey(finding.MD5))
		if err != nil {
			return err
		}
		return digests.Put(key, nil)
	})
	if err != nil {
		b.logger.WithError(err).Errorf("PostFinding: failed to store finding for %s", finding.Path)
	}
	return err
}

// GetFindingsByJob retrieves a page of the job's findings and its total.
func (b *BoltDB) GetFindingsByJob(ctx context.Context, jobID string, page, perPage int) ([]models.Finding, int, error) {
	_, perPage, offset := normalizePage(page, perPage)
	findings := []models.Finding{}
	var total int

	err := b.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(jobIndexBucket).Bucket(indexKey(jobID))
		if index == nil {
			return nil
		}
		total = index.Stats().KeyN
		start, end := pageBounds(offset, perPage, total)

		data := tx.Bucket(findingsBucket)
		c := index.Cursor()
		i := 0
		for k, _ := c.First(); k != nil && i < end; k, _ = c.Next() {
			if i >= start {
				if f, ok := b.decode(data.Get(k)); ok {
					findings = append(findings, f)
				}
			}
			i++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return findings, total, nil
}

// GetFindingsByMD5 retrieves all findings of a digest.
func (b *BoltDB) GetFindingsByMD5(ctx context.Context, md5 string) ([]models.Finding, error) {
	var findings []models.Finding

	err := b.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(md5IndexBucket).Bucket(indexKey(normalizeMD5(md5)))
		if index == nil {
			return nil
		}
		data := tx.Bucket(findingsBucket)
		return index.ForEach(func(k, _ []byte) error {
			if f, ok := b.decode(data.Get(k)); ok {
				findings = append(findings, f)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(findings) == 0 {
		return nil, ErrFindingNotFound
	}
	return findings, nil
}

// GetStats scans every finding.
func (b *BoltDB) GetStats(ctx context.Context) (models.StatsResponse, error) {
	stats := models.StatsResponse{FindingsByScore: map[string]int{}}

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(findingsBucket).ForEach(func(_, v []byte) error {
			f, ok := b.decode(v)
			if !ok {
				return nil
			}
			stats.TotalFindings++
			stats.FindingsByScore[f.Score.String()]++
			if f.CreatedAt.After(stats.LastFindingAt) {
				stats.LastFindingAt = f.CreatedAt
			}
			return nil
		})
	})
	return stats, err
}

func (b *BoltDB) decode(data []byte) (models.Finding, bool) {
	var f models.Finding
	if data == nil {
		return f, false
	}
	if err := json.Unmarshal(data, &f); err != nil {
		b.logger.WithError(err).Warn("BoltDB: invalid finding record")
		return f, false
	}
	return f, true
}
