package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tcollier/threatgate/internal/cache"
	"github.com/tcollier/threatgate/internal/model"
)

// ResultStore caches verification snapshots per item key. Get returns
// (nil, nil) on a miss; entries expire at their TTL.
type ResultStore interface {
	Get(ctx context.Context, key string) (*model.VerificationResult, error)
	Put(ctx context.Context, key string, result *model.VerificationResult) error
}

// MemoryResultStore holds results in-process.
type MemoryResultStore struct {
	cache *cache.TTLCache[string, *model.VerificationResult]
}

// NewMemoryResultStore builds an in-process store. The default TTL is a
// backstop; Put always uses the result's own TTL.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		cache: cache.New[string, *model.VerificationResult](24 * time.Hour),
	}
}

func (s *MemoryResultStore) Get(_ context.Context, key string) (*model.VerificationResult, error) {
	res, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return res, nil
}

func (s *MemoryResultStore) Put(_ context.Context, key string, result *model.VerificationResult) error {
	s.cache.SetTTL(key, result, result.TTL)
	return nil
}

// RedisResultStore persists results in Redis so verification survives
// restarts and is shared between replicas.
type RedisResultStore struct {
	client *redis.Client
	prefix string
}

// NewRedisResultStore builds a store on an existing client.
func NewRedisResultStore(client *redis.Client) *RedisResultStore {
	return &RedisResultStore{client: client, prefix: "verify:"}
}

func (s *RedisResultStore) Get(ctx context.Context, key string) (*model.VerificationResult, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching verification result: %w", err)
	}
	var res model.VerificationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding verification result: %w", err)
	}
	return &res, nil
}

func (s *RedisResultStore) Put(ctx context.Context, key string, result *model.VerificationResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding verification result: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, result.TTL).Err(); err != nil {
		return fmt.Errorf("storing verification result: %w", err)
	}
	return nil
}
