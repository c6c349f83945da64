package queries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingQuery struct{ Name string }

func (pingQuery) Key() string { return "test.ping" }

func TestAskTyped(t *testing.T) {
	bus := NewInMemoryBus()
	RegisterHandler[pingQuery, string](bus, "test.ping", HandlerFunc[pingQuery, string](func(_ context.Context, q pingQuery) (string, error) {
		return "pong:" + q.Name, nil
	}))

	out, err := Ask[pingQuery, string](context.Background(), bus, pingQuery{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, "pong:a", out)

	_, err = Ask[pingQuery, int](context.Background(), bus, pingQuery{})
	assert.ErrorIs(t, err, ErrResultType)
	assert.Contains(t, err.Error(), "test.ping")

	_, err = Ask[pingQuery, string](context.Background(), nil, pingQuery{})
	assert.ErrorIs(t, err, ErrNilBus)
}

func TestAskUnknownKey(t *testing.T) {
	_, err := NewInMemoryBus().Ask(context.Background(), pingQuery{})
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestRegisterRejectsMismatchedQuery(t *testing.T) {
	bus := NewInMemoryBus()
	RegisterHandler[pingQuery, string](bus, "other", HandlerFunc[pingQuery, string](func(context.Context, pingQuery) (string, error) {
		return "", nil
	}))
	_, err := bus.handlers["other"](context.Background(), otherQuery{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

type otherQuery struct{}

func (otherQuery) Key() string { return "other" }
