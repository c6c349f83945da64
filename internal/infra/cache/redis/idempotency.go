package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"rentalhub/internal/app/middleware"
	"rentalhub/internal/domain/shared/errs"
)

const idempotencyPrefix = "rentalhub:idem:"

// IdempotencyStore keeps command outcomes as JSON values that Redis expires
// after TTL. The first stored outcome for a key wins.
type IdempotencyStore struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewIdempotencyStore(client goredis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

type idempotencyValue struct {
	Payload    []byte    `json:"payload,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  errs.Kind `json:"error_kind,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	raw, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return middleware.IdempotencyRecord{}, false, errs.Wrap(errs.KindTransient, err, "redis: idempotency lookup")
	}
	var v idempotencyValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return middleware.IdempotencyRecord{}, false, errs.Wrap(errs.KindUnknown, err, "redis: idempotency decode")
	}
	return middleware.IdempotencyRecord{
		Key:        key,
		Payload:    v.Payload,
		Error:      v.Error,
		ErrorKind:  v.ErrorKind,
		OccurredAt: v.OccurredAt,
	}, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	raw, err := json.Marshal(idempotencyValue{
		Payload:    rec.Payload,
		Error:      rec.Error,
		ErrorKind:  rec.ErrorKind,
		OccurredAt: rec.OccurredAt.UTC(),
	})
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, idempotencyPrefix+rec.Key, raw, s.ttl).Err(); err != nil {
		return errs.Wrap(errs.KindTransient, err, "redis: idempotency save")
	}
	return nil
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
