package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "rentalhub/internal/app/outbox"
	"rentalhub/internal/domain/messaging"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func seedConversation(t *testing.T, repo *ConversationRepository, id string, participants ...string) *messaging.Conversation {
	t.Helper()
	conv, err := messaging.NewConversation(messaging.NewConversationParams{
		ID:           messaging.ConversationID(id),
		Participants: participants,
		PropertyID:   "prop",
		CreatedAt:    base,
	})
	require.NoError(t, err)
	stored, created, err := repo.CreateOrGet(context.Background(), conv)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func seedMessages(t *testing.T, repo *MessageRepository, convID messaging.ConversationID, sender string, n int) []messaging.MessageID {
	t.Helper()
	ids := make([]messaging.MessageID, 0, n)
	for i := 0; i < n; i++ {
		msg, err := messaging.NewMessage(messaging.NewMessageParams{
			ID:             messaging.MessageID(fmt.Sprintf("m%03d", i)),
			ConversationID: convID,
			SenderID:       sender,
			Content:        fmt.Sprintf("message %d", i),
			// pairs share a timestamp so the id tiebreak is exercised
			CreatedAt: base.Add(time.Duration(i/2) * time.Second),
		})
		require.NoError(t, err)
		require.NoError(t, repo.Append(context.Background(), msg))
		ids = append(ids, msg.ID)
	}
	return ids
}

func TestCreateOrGetMatchesParticipantSet(t *testing.T) {
	repo := NewConversationRepository()
	first := seedConversation(t, repo, "c1", "guest", "host")

	again, err := messaging.NewConversation(messaging.NewConversationParams{ID: "c2", Participants: []string{"host", "guest"}, PropertyID: "prop", CreatedAt: base})
	require.NoError(t, err)
	got, created, err := repo.CreateOrGet(context.Background(), again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, got.ID)
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	repo := NewConversationRepository()
	conv := seedConversation(t, repo, "c1", "a", "b", "c")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := []string{"a", "b"}[i%2]
			assert.NoError(t, repo.IncrementUnread(context.Background(), conv.ID, sender))
		}(i)
	}
	wg.Wait()

	got, err := repo.ByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.UnreadFor("a"))
	assert.Equal(t, 25, got.UnreadFor("b"))
	assert.Equal(t, 50, got.UnreadFor("c"))
}

func TestListForUserOrdersByUpdate(t *testing.T) {
	repo := NewConversationRepository()
	older := seedConversation(t, repo, "c1", "a", "b")
	newer := seedConversation(t, repo, "c2", "a", "c")
	_ = seedConversation(t, repo, "c3", "b", "c")
	require.NoError(t, repo.SetLastMessage(context.Background(), older.ID, messaging.LastMessage{ID: "m", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, repo.SetStatus(context.Background(), newer.ID, messaging.StatusArchived, "", base.Add(time.Minute)))

	page, err := repo.ListForUser(context.Background(), messaging.ConversationQuery{UserID: "a", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, older.ID, page.Items[0].ID)
	assert.Equal(t, 2, page.Total)

	page, err = repo.ListForUser(context.Background(), messaging.ConversationQuery{UserID: "a", Status: messaging.StatusArchived, Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, newer.ID, page.Items[0].ID)
}

func TestListForConversationPagesWithoutDuplicates(t *testing.T) {
	repo := NewMessageRepository()
	seedMessages(t, repo, "c1", "a", 7)

	seen := map[messaging.MessageID]bool{}
	var previous *messaging.Message
	for page := 1; ; page++ {
		res, err := repo.ListForConversation(context.Background(), "c1", messaging.MessageQuery{ViewerID: "b", Page: page, Limit: 3})
		require.NoError(t, err)
		for _, msg := range res.Items {
			assert.False(t, seen[msg.ID], "duplicate %s", msg.ID)
			seen[msg.ID] = true
			if previous != nil {
				assert.Equal(t, 1, messaging.NewestFirst(msg, previous), "order broken at %s", msg.ID)
			}
			previous = msg
		}
		if !res.HasMore {
			break
		}
	}
	assert.Len(t, seen, 7)
}

func TestListForConversationCursor(t *testing.T) {
	repo := NewMessageRepository()
	seedMessages(t, repo, "c1", "a", 6)

	first, err := repo.ListForConversation(context.Background(), "c1", messaging.MessageQuery{Limit: 4})
	require.NoError(t, err)
	require.True(t, first.HasMore)
	cursor := first.Items[len(first.Items)-1].Cursor()

	rest, err := repo.ListForConversation(context.Background(), "c1", messaging.MessageQuery{Limit: 4, Before: &cursor})
	require.NoError(t, err)
	assert.False(t, rest.HasMore)
	require.Len(t, rest.Items, 2)
	assert.Equal(t, messaging.MessageID("m001"), rest.Items[0].ID)
	assert.Equal(t, messaging.MessageID("m000"), rest.Items[1].ID)
}

func TestHiddenMessagesAreExcludedForViewerOnly(t *testing.T) {
	repo := NewMessageRepository()
	ids := seedMessages(t, repo, "c1", "a", 2)
	require.NoError(t, repo.HideFor(context.Background(), ids[0], "b", base))

	forB, err := repo.ListForConversation(context.Background(), "c1", messaging.MessageQuery{ViewerID: "b", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, forB.Items, 1)

	forA, err := repo.ListForConversation(context.Background(), "c1", messaging.MessageQuery{ViewerID: "a", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, forA.Items, 2)

	unread, err := repo.UnreadIDs(context.Background(), "c1", "b")
	require.NoError(t, err)
	assert.Equal(t, []messaging.MessageID{ids[1]}, unread)
}

func TestConcurrentDisjointMarkReadUnion(t *testing.T) {
	repo := NewMessageRepository()
	ids := seedMessages(t, repo, "c1", "s", 10)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := repo.MarkRead(context.Background(), "c1", ids[:5], "a", base)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := repo.MarkRead(context.Background(), "c1", ids[5:], "b", base)
		assert.NoError(t, err)
	}()
	wg.Wait()

	for i, id := range ids {
		msg, err := repo.ByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, i < 5, msg.ReadByUser("a"), id)
		assert.Equal(t, i >= 5, msg.ReadByUser("b"), id)
	}
}

func TestMarkReadReportsOnlyNewReceipts(t *testing.T) {
	repo := NewMessageRepository()
	ids := seedMessages(t, repo, "c1", "a", 3)

	newly, err := repo.MarkRead(context.Background(), "c1", ids[:2], "b", base)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], newly)

	newly, err = repo.MarkRead(context.Background(), "c1", ids, "b", base)
	require.NoError(t, err)
	assert.Equal(t, ids[2:], newly)

	newly, err = repo.MarkRead(context.Background(), "other", ids, "c", base)
	require.NoError(t, err)
	assert.Empty(t, newly)
}

func TestStatusTransitions(t *testing.T) {
	repo := NewMessageRepository()
	ids := seedMessages(t, repo, "c1", "a", 1)
	ctx := context.Background()

	ok, err := repo.MarkDelivered(ctx, ids[0], base)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.MarkRead(ctx, "c1", ids, "b", base)
	require.NoError(t, err)
	changed, err := repo.RefreshStatus(ctx, "c1", ids, []string{"a", "b"}, base)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	ok, err = repo.MarkDelivered(ctx, ids[0], base)
	require.NoError(t, err)
	assert.False(t, ok)
	msg, err := repo.ByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, messaging.DeliveryRead, msg.Status)
}

func TestIdempotencyStoreExpires(t *testing.T) {
	store := NewIdempotencyStore(time.Minute)
	require.NoError(t, store.Save(context.Background(), idemRecord("fresh", time.Now())))
	require.NoError(t, store.Save(context.Background(), idemRecord("stale", time.Now().Add(-time.Hour))))

	_, ok, err := store.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = store.Get(context.Background(), "stale")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOutboxClaimCycle(t *testing.T) {
	box := NewOutbox()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	box.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "e1", Name: "conversation.started"}))
	require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "e2", Name: "conversation.message_sent"}))

	first, err := box.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "e1", first.ID)

	second, err := box.Claim(ctx, "w2")
	require.NoError(t, err)
	assert.Equal(t, "e2", second.ID)

	none, err := box.Claim(ctx, "w3")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, box.MarkSent(ctx, "e1"))
	require.NoError(t, box.MarkFailed(ctx, "e2", now.Add(time.Second), "broker down"))

	none, err = box.Claim(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, none)

	now = now.Add(2 * time.Second)
	retry, err := box.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, retry)
	assert.Equal(t, "e2", retry.ID)
	assert.Equal(t, 1, retry.Attempts)
}
