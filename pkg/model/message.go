package model

import (
	"fmt"
	"strings"
	"time"
)

// Message is a durable direct message between two users.
type Message struct {
	ID          int64     `json:"id" bson:"_id"`
	SenderID    string    `json:"sender" bson:"sender"`
	RecipientID string    `json:"recipient" bson:"recipient"`
	Content     string    `json:"content" bson:"content"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	Read        bool      `json:"read" bson:"read"`
}

// Counterpart returns the other participant of the message as seen by self.
func (m Message) Counterpart(self string) string {
	if m.SenderID == self {
		return m.RecipientID
	}
	return m.SenderID
}

// ChannelID is the DM partition the message belongs to.
func (m Message) ChannelID() string {
	return DMChannelID(m.SenderID, m.RecipientID)
}

// DMChannelID builds the canonical "dm:<a>:<b>" id with user ids sorted so both
// participants resolve to the same partition.
func DMChannelID(u1, u2 string) string {
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return fmt.Sprintf("dm:%s:%s", u1, u2)
}

// ParseDMChannelID splits a "dm:<a>:<b>" id into its participants.
func ParseDMChannelID(channelID string) (string, string, bool) {
	parts := strings.Split(channelID, ":")
	if len(parts) != 3 || parts[0] != "dm" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// Range bounds a history query. Zero values mean unbounded; Limit <= 0 means no limit.
type Range struct {
	After  time.Time
	Before time.Time
	Limit  int
}

// Contains reports whether t falls inside the range bounds (exclusive).
func (r Range) Contains(t time.Time) bool {
	if !r.After.IsZero() && !t.After(r.After) {
		return false
	}
	if !r.Before.IsZero() && !t.Before(r.Before) {
		return false
	}
	return true
}

// Session binds one connection to an authenticated user.
type Session struct {
	ConnectionID    string    `json:"connectionId"`
	UserID          string    `json:"userId"`
	AuthenticatedAt time.Time `json:"authenticatedAt"`
	// Seq is the registry bind counter at the time of binding.
	Seq uint64 `json:"seq"`
}
