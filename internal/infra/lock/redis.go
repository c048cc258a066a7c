package lock

import (
	"context"
	"time"

	"salon-booking/internal/pkg/errs"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua scripts make release and renew atomic compare-and-act operations:
// a holder can only touch its own lease, so an expired-and-reacquired
// hold is never released by the previous holder.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisManager grants time-bounded exclusive holds backed by Redis
// SET NX leases. Expiry is Redis-native: an abandoned hold vanishes when
// its TTL elapses without any sweeper involvement.
type RedisManager struct {
	rdb       *redis.Client
	keyPrefix string
}

func NewRedisManager(rdb *redis.Client) *RedisManager {
	return &RedisManager{
		rdb:       rdb,
		keyPrefix: "hold:slot:",
	}
}

func (m *RedisManager) Acquire(ctx context.Context, slotID, holderID uuid.UUID, ttl time.Duration) error {
	ok, err := m.rdb.SetNX(ctx, m.key(slotID), holderID.String(), ttl).Result()
	if err != nil {
		return errs.Mark(err, errs.ErrLockOperationFailed)
	}
	if !ok {
		return errs.ErrHoldDenied
	}
	return nil
}

func (m *RedisManager) Release(ctx context.Context, slotID, holderID uuid.UUID) error {
	deleted, err := releaseScript.Run(ctx, m.rdb, []string{m.key(slotID)}, holderID.String()).Int()
	if err != nil {
		return errs.Mark(err, errs.ErrLockOperationFailed)
	}
	if deleted == 0 {
		return errs.ErrNotHoldOwner
	}
	return nil
}

func (m *RedisManager) Renew(ctx context.Context, slotID, holderID uuid.UUID, ttl time.Duration) error {
	extended, err := renewScript.Run(ctx, m.rdb, []string{m.key(slotID)}, holderID.String(), ttl.Milliseconds()).Int()
	if err != nil {
		return errs.Mark(err, errs.ErrLockOperationFailed)
	}
	if extended == 0 {
		return errs.ErrNotHoldOwner
	}
	return nil
}

func (m *RedisManager) key(slotID uuid.UUID) string {
	return m.keyPrefix + slotID.String()
}
