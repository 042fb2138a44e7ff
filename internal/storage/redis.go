package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTimeout bounds every Redis round trip made by RedisBackend.
const DefaultRedisTimeout = 3 * time.Second

// RedisBackend implements Backend on Redis. Keys are namespaced as
// "<prefix>:<scope>:<key>". Values are encrypted when an encryption key is set.
type RedisBackend struct {
	rdb           redis.UniversalClient
	prefix        string
	encryptionKey []byte
	timeout       time.Duration
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a backend over an existing client. A nil
// encryptionKey stores values as plain text.
func NewRedisBackend(rdb redis.UniversalClient, prefix, scope string, encryptionKey []byte) *RedisBackend {
	return &RedisBackend{
		rdb:           rdb,
		prefix:        fmt.Sprintf("%s:%s:", prefix, scope),
		encryptionKey: encryptionKey,
		timeout:       DefaultRedisTimeout,
	}
}

func (b *RedisBackend) key(k string) string {
	return b.prefix + k
}

func (b *RedisBackend) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	raw, err := b.rdb.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if b.encryptionKey == nil {
		return raw, true, nil
	}
	plaintext, err := Decrypt(raw, b.encryptionKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt %s: %w", key, err)
	}
	return string(plaintext), true, nil
}

func (b *RedisBackend) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	stored := value
	if b.encryptionKey != nil {
		encrypted, err := Encrypt([]byte(value), b.encryptionKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", key, err)
		}
		stored = encrypted
	}

	if err := b.rdb.Set(ctx, b.key(key), stored, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := b.rdb.Del(ctx, b.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
