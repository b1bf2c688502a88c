package credstore

import (
	"context"
	"fmt"

	"fintrack/internal/config"
	"fintrack/internal/log"
)

// Open builds the store selected by cfg.CredentialStore.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (Store, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentCredStore)

	switch cfg.CredentialStore {
	case config.StoreMemory:
		logger.Debug("Using in-memory credential store")
		return NewMemory(), nil
	case config.StoreFile:
		s, err := NewFile(cfg.CredentialFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file credential store: %w", err)
		}
		logger.Debug("Using file credential store", "path", cfg.CredentialFile)
		return s, nil
	case config.StoreSQLite:
		s, err := NewSQLite(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite credential store: %w", err)
		}
		logger.Debug("Using SQLite credential store", "db_path", cfg.SQLiteDBPath)
		return s, nil
	case config.StoreRedis:
		s, err := NewRedis(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis credential store: %w", err)
		}
		logger.Debug("Using Redis credential store", "prefix", cfg.RedisKeyPrefix)
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported credential store: %s", cfg.CredentialStore)
	}
}
