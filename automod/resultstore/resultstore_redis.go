package resultstore

import (
	"context"
	"time"

	"github.com/stride-social/modpipe/automod/engine"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

type RedisResultStore struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ ResultStore = (*RedisResultStore)(nil)

func NewRedisResultStore(redisURL string, ttl time.Duration) (*RedisResultStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(1_000, ttl),
	})
	return &RedisResultStore{
		Data: data,
		TTL:  ttl,
	}, nil
}

func redisResultKey(runID string) string {
	return "modpipe/run/" + runID
}

func (s RedisResultStore) Get(ctx context.Context, runID string) (*engine.Response, error) {
	var val string
	err := s.Data.Get(ctx, redisResultKey(runID), &val)
	if err == cache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeResponse(val)
}

func (s RedisResultStore) Put(ctx context.Context, resp *engine.Response) error {
	val, err := encodeResponse(resp)
	if err != nil {
		return err
	}
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisResultKey(resp.RunID),
		Value: val,
		TTL:   s.TTL,
	})
}

func (s RedisResultStore) Purge(ctx context.Context, runID string) error {
	err := s.Data.Delete(ctx, redisResultKey(runID))
	if err == cache.ErrCacheMiss {
		return nil
	}
	return err
}
