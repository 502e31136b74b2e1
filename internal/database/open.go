package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Open returns the backend selected by cfg.
func Open(ctx context.Context, cfg *DatabaseConfig, logger *logrus.Logger) (Database, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteDB(cfg.Path, logger)
	case "bolt":
		return NewBoltDB(cfg.Path, logger)
	case "redis":
		return NewRedisDB(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
