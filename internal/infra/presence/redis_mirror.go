package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rentalhub/internal/domain/shared/errs"
)

const keyPrefix = "presence:user:"

// RedisMirror keeps one hash per user keyed by instance id, each field holding
// the unix expiry of that instance's claim. A user is online while any claim
// is unexpired.
type RedisMirror struct {
	Client     redis.Cmdable
	InstanceID string
	TTL        time.Duration
	Now        func() time.Time
}

func (m RedisMirror) Touch(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	expiry := strconv.FormatInt(m.now().Add(m.ttl()).Unix(), 10)
	_, err := m.Client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range userIDs {
			key := keyPrefix + id
			p.HSet(ctx, key, m.InstanceID, expiry)
			p.Expire(ctx, key, m.ttl())
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.KindTransient, err, "presence: touch")
	}
	return nil
}

func (m RedisMirror) Clear(ctx context.Context, userID string) error {
	if err := m.Client.HDel(ctx, keyPrefix+userID, m.InstanceID).Err(); err != nil {
		return errs.Wrap(errs.KindTransient, err, "presence: clear")
	}
	return nil
}

func (m RedisMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	claims, err := m.Client.HGetAll(ctx, keyPrefix+userID).Result()
	if err != nil {
		return false, errs.Wrap(errs.KindTransient, err, "presence: lookup")
	}
	now := m.now().Unix()
	for _, raw := range claims {
		expiry, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && expiry > now {
			return true, nil
		}
	}
	return false, nil
}

func (m RedisMirror) ttl() time.Duration {
	if m.TTL <= 0 {
		return 90 * time.Second
	}
	return m.TTL
}

func (m RedisMirror) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
