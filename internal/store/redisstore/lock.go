package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/coursegen/internal/common"
)

// release deletes the lock only while it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func LockKey(key string) string { return keyPrefix + "job-lock:" + key }

// Locker hands out per-job locks that expire after ttl, so a crashed worker
// never blocks a job for longer than that.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

func (s *Store) Locker(ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{rdb: s.rdb, ttl: ttl}
}

func (l *Locker) TryLock(ctx context.Context, key string) (func(context.Context), bool, error) {
	k := LockKey(key)
	token := common.NewUUID()
	ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	unlock := func(ctx context.Context) {
		_ = release.Run(ctx, l.rdb, []string{k}, token).Err()
	}
	return unlock, true, nil
}
