package rating

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "glitch:ratings"

// RedisStore keeps every rating in one sorted set, so the leaderboard is a
// single range read.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if strings.TrimSpace(key) == "" {
		key = defaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) Get(ctx context.Context, playerID string) (int, bool, error) {
	score, err := s.rdb.ZScore(ctx, s.key, strings.TrimSpace(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int(score), true, nil
}

func (s *RedisStore) Set(ctx context.Context, playerID string, rating int) error {
	return s.rdb.ZAdd(ctx, s.key, redis.Z{Score: float64(rating), Member: strings.TrimSpace(playerID)}).Err()
}

func (s *RedisStore) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultBoardLength
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Entry{PlayerID: id, Rating: int(z.Score)})
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
