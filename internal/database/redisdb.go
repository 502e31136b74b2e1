package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashlookup/internal/database/models"
)

const (
	redisSeqKey     = "findings:seq"
	redisTimeKey    = "findings:created"
	redisByScoreKey = "findings:by_score"
)

func redisFindingKey(id int64) string { return fmt.Sprintf("finding:%d", id) }
func redisJobKey(jobID string) string { return fmt.Sprintf("job:%s:findings", jobID) }
func redisMD5Key(md5 string) string   { return fmt.Sprintf("md5:%s:findings", md5) }

// RedisDB implements the Database interface using Redis.
type RedisDB struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisDB initializes a new RedisDB instance.
func NewRedisDB(ctx context.Context, cfg *DatabaseConfig, logger *logrus.Logger) (*RedisDB, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisDB{
		client: rdb,
		logger: logger,
	}, nil
}

// Initialize is a no-op: Redis is schema-less.
func (r *RedisDB) Initialize(ctx context.Context) error {
	return nil
}

// Close closes the Redis client connection.
func (r *RedisDB) Close(ctx context.Context) error {
	return r.client.Close()
}

// PostFinding stores the finding and updates the job, digest and time indexes
// in one transaction.
func (r *RedisDB) PostFinding(ctx context.Context, finding models.Finding) error {
	id, err := r.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return err
	}
	finding.ID = id
	finding.MD5 = normalizeMD5(finding.MD5)
	finding.CreatedAt = finding.CreatedAt.UTC()

	data, err := json.Marshal(finding)
	if err != nil {
		return fmt.Errorf("failed to marshal Finding: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisFindingKey(id), data, 0)
		pipe.RPush(ctx, redisJobKey(finding.JobID), id)
		pipe.RPush(ctx, redisMD5Key(finding.MD5), id)
		pipe.HIncrBy(ctx, redisByScoreKey, finding.Score.String(), 1)
		pipe.ZAdd(ctx, redisTimeKey, &redis.Z{
			Score:  float64(finding.CreatedAt.UnixMicro()),
			Member: id,
		})
		return nil
	})
	if err != nil {
		r.logger.WithError(err).Errorf("PostFinding: failed to store finding for %s", finding.Path)
	}
	return err
}

// GetFindingsByJob retrieves a page of the job's findings and its total.
func (r *RedisDB) GetFindingsByJob(ctx context.Context, jobID string, page, perPage int) ([]models.Finding, int, error) {
	_, perPage, offset := normalizePage(page, perPage)
	key := redisJobKey(jobID)

	total, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return nil, 0, err
	}
	start, end := pageBounds(offset, perPage, int(total))
	if start == end {
		return []models.Finding{}, int(total), nil
	}

	ids, err := r.client.LRange(ctx, key, int64(start), int64(end-1)).Result()
	if err != nil {
		return nil, 0, err
	}
	findings, err := r.loadFindings(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	return findings, int(total), nil
}

// GetFindingsByMD5 retrieves all findings of a digest.
func (r *RedisDB) GetFindingsByMD5(ctx context.Context, md5 string) ([]models.Finding, error) {
	ids, err := r.client.LRange(ctx, redisMD5Key(normalizeMD5(md5)), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrFindingNotFound
	}
	return r.loadFindings(ctx, ids)
}

// GetStats reads the score counters and the most recent finding time.
func (r *RedisDB) GetStats(ctx context.Context) (models.StatsResponse, error) {
	stats := models.StatsResponse{FindingsByScore: map[string]int{}}

	byScore, err := r.client.HGetAll(ctx, redisByScoreKey).Result()
	if err != nil {
		return stats, err
	}
	for score, val := range byScore {
		n, err := strconv.Atoi(val)
		if err != nil {
			r.logger.WithError(err).Warnf("GetStats: invalid counter for %s", score)
			continue
		}
		stats.FindingsByScore[score] = n
		stats.TotalFindings += n
	}

	latest, err := r.client.ZRevRangeWithScores(ctx, redisTimeKey, 0, 0).Result()
	if err != nil {
		return stats, err
	}
	if len(latest) == 1 {
		stats.LastFindingAt = time.UnixMicro(int64(latest[0].Score)).UTC()
	}
	return stats, nil
}

func (r *RedisDB) loadFindings(ctx context.Context, ids []string) ([]models.Finding, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, "finding:"+id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0, len(vals))
	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			r.logger.Warnf("loadFindings: missing finding %s", keys[i])
			continue
		}
		var f models.Finding
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			r.logger.WithError(err).Warnf("loadFindings: invalid finding %s", keys[i])
			continue
		}
		findings = append(findings, f)
	}
	return findings, nil
}
