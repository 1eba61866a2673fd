package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	req := require.New(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msgs := []Message{
		{ID: 1, SenderID: "me", RecipientID: "bob", Content: "hey bob", CreatedAt: t0},
		{ID: 2, SenderID: "bob", RecipientID: "me", Content: "hey", CreatedAt: t0.Add(time.Minute)},
		{ID: 3, SenderID: "bob", RecipientID: "me", Content: "you there?", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: 4, SenderID: "carol", RecipientID: "me", Content: "old", CreatedAt: t0.Add(-time.Hour), Read: true},
		{ID: 5, SenderID: "carol", RecipientID: "dave", Content: "not mine", CreatedAt: t0.Add(time.Hour)},
	}

	// When summarizing out of order input
	got := Summarize("me", []Message{msgs[2], msgs[0], msgs[4], msgs[3], msgs[1]})

	// Then bob comes first with both of his messages unread
	req.Len(got, 2)
	req.Equal(ConversationSummary{
		UserID: "bob", LastMessage: "you there?", LastMessageTime: t0.Add(2 * time.Minute), UnreadCount: 2,
	}, got[0])
	// And carol's read message is not counted
	req.Equal(ConversationSummary{
		UserID: "carol", LastMessage: "old", LastMessageTime: t0.Add(-time.Hour), UnreadCount: 0,
	}, got[1])
}

func TestSummarize_SelfMessagesAreNeverUnread(t *testing.T) {
	req := require.New(t)
	got := Summarize("me", []Message{{SenderID: "me", RecipientID: "me", Content: "note", CreatedAt: time.Now()}})
	req.Len(got, 1)
	req.Equal("me", got[0].UserID)
	req.Zero(got[0].UnreadCount)
}
