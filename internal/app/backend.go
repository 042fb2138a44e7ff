package app

import (
	"fmt"

	"github.com/raine/console-session/config"
	"github.com/raine/console-session/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// OpenBackend opens the storage backend selected in cfg. The returned close
// function releases it.
func OpenBackend(cfg *config.Config) (storage.Backend, func() error, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryBackend(), func() error { return nil }, nil

	case config.StorageSQLite:
		key, err := storage.DeriveKey(cfg.TokenKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		if err := config.EnsureConfigDir(); err != nil {
			return nil, nil, fmt.Errorf("failed to create config dir: %w", err)
		}
		b, err := storage.NewSQLiteBackend(cfg.DBPath, cfg.Scope, key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize session store: %w", err)
		}
		log.Debug().Str("dbPath", cfg.DBPath).Str("scope", cfg.Scope).Msg("sqlite session store opened")
		return b, b.Close, nil

	case config.StorageRedis:
		var key []byte
		if cfg.TokenKey != "" {
			var err error
			key, err = storage.DeriveKey(cfg.TokenKey)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
			}
		}
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Debug().Str("addr", cfg.RedisAddr).Str("scope", cfg.Scope).Msg("redis session store opened")
		return storage.NewRedisBackend(rdb, cfg.RedisPrefix, cfg.Scope, key), rdb.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}
