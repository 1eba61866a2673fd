package model

import (
	"sort"
	"time"
)

// ConversationSummary is the per-counterpart projection of a user's messages.
type ConversationSummary struct {
	UserID          string    `json:"userId"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int64     `json:"unreadCount"`
}

// Summarize groups msgs by counterpart of self. Messages not involving self are
// ignored. The result is ordered by LastMessageTime, newest first.
func Summarize(self string, msgs []Message) []ConversationSummary {
	byPeer := make(map[string]*ConversationSummary)
	for _, m := range msgs {
		if m.SenderID != self && m.RecipientID != self {
			continue
		}
		peer := m.Counterpart(self)
		s, ok := byPeer[peer]
		if !ok {
			s = &ConversationSummary{UserID: peer}
			byPeer[peer] = s
		}
		if !m.CreatedAt.Before(s.LastMessageTime) {
			s.LastMessage = m.Content
			s.LastMessageTime = m.CreatedAt
		}
		if IsUnreadFor(self, m) {
			s.UnreadCount++
		}
	}

	out := make([]ConversationSummary, 0, len(byPeer))
	for _, s := range byPeer {
		out = append(out, *s)
	}
	SortSummaries(out)
	return out
}

// IsUnreadFor reports whether m counts as unread for self.
func IsUnreadFor(self string, m Message) bool {
	return m.RecipientID == self && m.SenderID != self && !m.Read
}

// SortSummaries orders summaries newest first, ties broken by counterpart id.
func SortSummaries(s []ConversationSummary) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].LastMessageTime.Equal(s[j].LastMessageTime) {
			return s[i].UserID < s[j].UserID
		}
		return s[i].LastMessageTime.After(s[j].LastMessageTime)
	})
}
