package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalhub/internal/app/middleware"
	"rentalhub/internal/domain/shared/errs"
	"rentalhub/internal/infra/obs"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0", obs.Discard())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "http://nope", nil)
	assert.ErrorIs(t, err, errs.Validation)
}

func TestIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "chat.send:k1")
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "chat.send:k1", Payload: []byte(`{"id":"m1"}`), OccurredAt: at}))
	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "chat.send:k1", Error: "late", ErrorKind: errs.KindConflict, OccurredAt: at}))

	rec, found, err := store.Get(ctx, "chat.send:k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"id":"m1"}`, string(rec.Payload))
	assert.Empty(t, rec.Error, "first outcome wins")
	assert.Equal(t, at, rec.OccurredAt)

	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "chat.block:k2", Error: "blocked", ErrorKind: errs.KindAuthorization, OccurredAt: at}))
	rec, found, err = store.Get(ctx, "chat.block:k2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, errs.KindAuthorization, rec.ErrorKind)

	mr.FastForward(2 * time.Hour)
	_, found, err = store.Get(ctx, "chat.send:k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIdempotencyStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, _, err := NewIdempotencyStore(client, time.Hour).Get(context.Background(), "k")
	assert.ErrorIs(t, err, errs.Transient)
}
