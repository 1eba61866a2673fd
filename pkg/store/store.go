// Package store holds the durable message store behind the gateway. Several
// backends implement MessageStore; the gateway only relies on CreateMessage
// returning after the record is durable.
package store

import (
	"context"
	"sort"

	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
)

var (
	ErrInvalidMessage = errors.New("invalid message record")
	ErrDuplicateID    = errors.New("message id already exists")
)

type MessageStore interface {
	// CreateMessage durably stores m and returns its id.
	CreateMessage(ctx context.Context, m model.Message) (int64, error)
	// QueryMessages returns the messages exchanged between userA and userB
	// inside r, oldest first. With r.Limit > 0 only the newest Limit are kept.
	QueryMessages(ctx context.Context, userA, userB string, r model.Range) ([]model.Message, error)
	// Conversations summarizes every conversation user takes part in.
	Conversations(ctx context.Context, user string) ([]model.ConversationSummary, error)
	// MarkRead flags every unread message from counterpart to reader as read
	// and returns how many changed.
	MarkRead(ctx context.Context, reader, counterpart string) (int64, error)
	Close() error
}

func validate(m model.Message) error {
	switch {
	case m.ID == 0:
		return errors.Wrap(ErrInvalidMessage, "missing id")
	case m.SenderID == "" || m.RecipientID == "":
		return errors.Wrap(ErrInvalidMessage, "missing participant")
	case m.Content == "":
		return errors.Wrap(ErrInvalidMessage, "empty content")
	case m.CreatedAt.IsZero():
		return errors.Wrap(ErrInvalidMessage, "missing createdAt")
	}
	return nil
}

// window sorts msgs oldest first, drops those outside r and applies r.Limit.
func window(msgs []model.Message, r model.Range) []model.Message {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	out := msgs[:0]
	for _, m := range msgs {
		if r.Contains(m.CreatedAt) {
			out = append(out, m)
		}
	}
	if r.Limit > 0 && len(out) > r.Limit {
		out = out[len(out)-r.Limit:]
	}
	return out
}
