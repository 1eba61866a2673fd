package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/stretchr/testify/require"
)

// testNamespace returns a fresh keyspace, database or schema name.
func testNamespace() string {
	return "dm_test_" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func requireSummary(t *testing.T, want, got model.ConversationSummary) {
	t.Helper()
	require.Equal(t, want.UserID, got.UserID)
	require.Equal(t, want.LastMessage, got.LastMessage, "last message with %s", want.UserID)
	require.True(t, want.LastMessageTime.Equal(got.LastMessageTime), "last time with %s: %v", want.UserID, got.LastMessageTime)
	require.Equal(t, want.UnreadCount, got.UnreadCount, "unread with %s", want.UserID)
}

// exerciseStore runs the behaviour every MessageStore shares against an
// empty store.
func exerciseStore(t *testing.T, s MessageStore) {
	req := require.New(t)
	ctx := context.Background()

	// Given a note to self, a thread with b and a newer one with c
	for _, m := range []model.Message{
		msg(1, "a", "a", "note", 30*time.Second),
		msg(2, "b", "a", "one", time.Minute),
		msg(3, "b", "a", "two", 2*time.Minute),
		msg(4, "a", "b", "reply", 3*time.Minute),
		msg(5, "c", "a", "yo", 4*time.Minute),
	} {
		_, err := s.CreateMessage(ctx, m)
		req.NoError(err)
	}

	_, err := s.CreateMessage(ctx, model.Message{ID: 9, SenderID: "a", RecipientID: "b", CreatedAt: t0})
	req.ErrorIs(err, ErrInvalidMessage)

	// History is the pair only, oldest first, windowed and limited to the newest
	got, err := s.QueryMessages(ctx, "b", "a", model.Range{})
	req.NoError(err)
	req.Equal([]int64{2, 3, 4}, ids(got))
	req.Equal("b", got[0].SenderID)
	req.True(got[0].CreatedAt.Equal(t0.Add(time.Minute)))

	got, err = s.QueryMessages(ctx, "a", "b", model.Range{Limit: 2})
	req.NoError(err)
	req.Equal([]int64{3, 4}, ids(got))

	got, err = s.QueryMessages(ctx, "a", "b", model.Range{After: t0.Add(time.Minute), Before: t0.Add(3 * time.Minute)})
	req.NoError(err)
	req.Equal([]int64{3}, ids(got))

	// Summaries are newest first with unread counted for the reader only
	convs, err := s.Conversations(ctx, "a")
	req.NoError(err)
	req.Len(convs, 3)
	requireSummary(t, model.ConversationSummary{UserID: "c", LastMessage: "yo", LastMessageTime: t0.Add(4 * time.Minute), UnreadCount: 1}, convs[0])
	requireSummary(t, model.ConversationSummary{UserID: "b", LastMessage: "reply", LastMessageTime: t0.Add(3 * time.Minute), UnreadCount: 2}, convs[1])
	requireSummary(t, model.ConversationSummary{UserID: "a", LastMessage: "note", LastMessageTime: t0.Add(30 * time.Second)}, convs[2])

	// When a reads b's messages
	n, err := s.MarkRead(ctx, "a", "b")
	req.NoError(err)
	req.Equal(int64(2), n)

	// Then only a's view of b changes
	convs, err = s.Conversations(ctx, "a")
	req.NoError(err)
	req.Equal("b", convs[1].UserID)
	req.Zero(convs[1].UnreadCount)
	req.Equal(int64(1), convs[0].UnreadCount)

	convs, err = s.Conversations(ctx, "b")
	req.NoError(err)
	req.Len(convs, 1)
	requireSummary(t, model.ConversationSummary{UserID: "a", LastMessage: "reply", LastMessageTime: t0.Add(3 * time.Minute), UnreadCount: 1}, convs[0])

	n, err = s.MarkRead(ctx, "a", "b")
	req.NoError(err)
	req.Zero(n)
}

func TestMemory_SharedBehaviour(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestBadger_SharedBehaviour(t *testing.T) {
	exerciseStore(t, newBadger(t))
}
