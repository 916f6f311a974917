package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if the caller still owns it, so an
// expired lease taken over by another runner is never released by the
// original holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// Locker hands out per-campaign advisory leases. Exactly one campaign
// runner may hold a campaign's lease at a time; a tick that cannot acquire
// it skips the campaign instead of double-running it.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

// Acquire takes the campaign lease. ok=false means another runner holds it
// (a benign skip-this-tick outcome, not an error). The returned release
// func is safe to call after lease expiry.
func (l *Locker) Acquire(ctx context.Context, campaignID int) (release func(), ok bool, err error) {
	key := lockKey(campaignID)
	token := uuid.NewString()

	ok, err = l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	release = func() {
		// Release happens on a fresh context: the tick context may already
		// be cancelled by the time the runner finishes.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}

func lockKey(campaignID int) string {
	return fmt.Sprintf("campaign:lock:%d", campaignID)
}
