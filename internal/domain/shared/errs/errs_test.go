package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	notFound := New(KindNotFound, "messaging: conversation not found")
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain", err: errors.New("boom"), want: KindUnknown},
		{name: "direct", err: notFound, want: KindNotFound},
		{name: "fmt wrapped", err: fmt.Errorf("load: %w", notFound), want: KindNotFound},
		{name: "wrapped driver error", err: Wrap(KindTransient, context.DeadlineExceeded, "mongo: find"), want: KindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestIsMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(KindAuthorization, "messaging: not a participant"))
	assert.True(t, errors.Is(err, Authorization))
	assert.False(t, errors.Is(err, NotFound))

	specific := New(KindValidation, "messaging: empty message")
	other := New(KindValidation, "messaging: too long")
	assert.True(t, errors.Is(fmt.Errorf("x: %w", specific), specific))
	assert.False(t, errors.Is(specific, other))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(KindTransient, context.DeadlineExceeded, "scylla: insert message")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "scylla: insert message: context deadline exceeded", err.Error())
	assert.Nil(t, Wrap(KindTransient, nil, "noop"))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("driver exploded")))
	assert.Equal(t, "messaging: empty message", Message(New(KindValidation, "messaging: empty message")))
}
