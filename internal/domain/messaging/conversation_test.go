package messaging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalhub/internal/domain/shared/errs"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestConversation(t *testing.T, participants ...string) *Conversation {
	t.Helper()
	conv, err := NewConversation(NewConversationParams{ID: "c1", Participants: participants, CreatedAt: t0})
	require.NoError(t, err)
	conv.Reset()
	return conv
}

func TestNewConversationValidation(t *testing.T) {
	cases := []struct {
		name   string
		params NewConversationParams
		want   error
	}{
		{name: "single participant", params: NewConversationParams{ID: "c", Participants: []string{"a", "a"}}, want: ErrTooFewParticipants},
		{name: "empty id", params: NewConversationParams{ID: "c", Participants: []string{"a", " "}}, want: ErrInvalidParticipant},
		{name: "dotted id", params: NewConversationParams{ID: "c", Participants: []string{"a", "b.c"}}, want: ErrInvalidParticipant},
		{name: "direct group", params: NewConversationParams{ID: "c", Participants: []string{"a", "b", "c"}}, want: ErrDirectChatSize},
		{name: "missing id", params: NewConversationParams{Participants: []string{"a", "b"}}, want: ErrConversationID},
		{name: "group of two still needs two", params: NewConversationParams{ID: "c", Participants: []string{"a"}, Group: true}, want: ErrTooFewParticipants},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConversation(tc.params)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		})
	}
}

func TestNewGroupConversationWithoutContext(t *testing.T) {
	conv, err := NewConversation(NewConversationParams{ID: "c1", Participants: []string{"a", "b", "c"}, Group: true, CreatedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, conv.Participants)
	assert.Empty(t, conv.PropertyID)
}

func TestNewConversationNormalizesParticipants(t *testing.T) {
	conv, err := NewConversation(NewConversationParams{
		ID:           "c1",
		Participants: []string{" host ", "guest", "cohost", "guest"},
		PropertyID:   "p1",
		CreatedAt:    t0,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cohost", "guest", "host"}, conv.Participants)
	assert.Equal(t, "cohost,guest,host", conv.Key())
	assert.Equal(t, StatusActive, conv.Status)
	assert.Equal(t, map[string]int{"cohost": 0, "guest": 0, "host": 0}, conv.Unread)
	assert.False(t, conv.IsDirect())

	pending := conv.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "conversation.started", pending[0].EventName())
}

func TestApplyMessageCountsRecipientsOnly(t *testing.T) {
	conv := newTestConversation(t, "a", "b")
	conv.Status = StatusArchived
	msg, err := NewMessage(NewMessageParams{ID: "m1", ConversationID: "c1", SenderID: "a", Content: "hi", CreatedAt: t0.Add(time.Minute)})
	require.NoError(t, err)

	require.NoError(t, conv.Accept(msg))
	conv.ApplyMessage(msg)

	assert.Equal(t, 0, conv.UnreadFor("a"))
	assert.Equal(t, 1, conv.UnreadFor("b"))
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, MessageID("m1"), conv.LastMessage.ID)
	assert.Equal(t, "hi", conv.LastMessage.Preview)
	assert.Equal(t, msg.CreatedAt, conv.UpdatedAt)
	assert.Equal(t, StatusActive, conv.Status)

	events := conv.Pull()
	require.Len(t, events, 1)
	sent, ok := events[0].(MessageSent)
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, sent.Recipients)
}

func TestAcceptRejectsOutsidersAndBlocked(t *testing.T) {
	conv := newTestConversation(t, "a", "b")
	msg, err := NewMessage(NewMessageParams{ID: "m1", ConversationID: "c1", SenderID: "x", Content: "hi", CreatedAt: t0})
	require.NoError(t, err)
	assert.ErrorIs(t, conv.Accept(msg), ErrNotParticipant)

	conv.Status = StatusBlocked
	msg.SenderID = "a"
	err = conv.Accept(msg)
	assert.ErrorIs(t, err, ErrConversationBlocked)
	assert.True(t, errors.Is(err, errs.Authorization))
	assert.Empty(t, conv.Pending())
}

func TestDecrementUnreadFloorsAtZero(t *testing.T) {
	conv := newTestConversation(t, "a", "b")
	conv.IncrementUnread("a")
	conv.DecrementUnread("b", 5)
	assert.Equal(t, 0, conv.UnreadFor("b"))
	conv.SetUnread("b", -3)
	assert.Equal(t, 0, conv.UnreadFor("b"))
}

func TestChangeStatus(t *testing.T) {
	conv := newTestConversation(t, "a", "b")

	_, err := conv.ChangeStatus("x", StatusArchived, t0)
	assert.ErrorIs(t, err, ErrNotParticipant)

	changed, err := conv.ChangeStatus("a", StatusArchived, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusArchived, conv.Status)

	changed, err = conv.ChangeStatus("b", StatusArchived, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, conv.Pending(), 1)
}

func TestOnlyBlockerLiftsBlock(t *testing.T) {
	conv := newTestConversation(t, "host", "guest")

	changed, err := conv.ChangeStatus("host", StatusBlocked, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "host", conv.BlockedBy)

	for _, to := range []ConversationStatus{StatusActive, StatusArchived} {
		changed, err = conv.ChangeStatus("guest", to, t0.Add(2*time.Hour))
		assert.ErrorIs(t, err, ErrBlockedByOther)
		assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))
		assert.False(t, changed)
		assert.Equal(t, StatusBlocked, conv.Status)
	}

	changed, err = conv.ChangeStatus("host", StatusArchived, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, conv.BlockedBy)

	_, err = conv.ChangeStatus("guest", StatusActive, t0.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusActive, conv.Status)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Archived ")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, s)

	s, err = ParseStatus("all")
	require.NoError(t, err)
	assert.Equal(t, ConversationStatus(""), s)

	_, err = ParseStatus("deleted")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCloneIsDeep(t *testing.T) {
	conv := newTestConversation(t, "a", "b")
	conv.SetLastMessage(LastMessage{ID: "m1", CreatedAt: t0})
	cp := conv.Clone()
	cp.Unread["a"] = 9
	cp.Participants[0] = "z"
	cp.LastMessage.ID = "m2"
	assert.Equal(t, 0, conv.UnreadFor("a"))
	assert.Equal(t, "a", conv.Participants[0])
	assert.Equal(t, MessageID("m1"), conv.LastMessage.ID)
}
