package store

import (
	"context"
	"time"

	"github.com/gocql/gocql"
	"github.com/mahaj/dupahar-dm/pkg/db"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
)

// Scylla stores one partition per DM pair in the messages table and keeps
// user_conversations as the per-user index of counterparts.
type Scylla struct {
	db *db.Session
}

func NewScylla(session *db.Session) *Scylla {
	return &Scylla{db: session}
}

func (s *Scylla) CreateMessage(ctx context.Context, m model.Message) (int64, error) {
	if err := validate(m); err != nil {
		return 0, err
	}

	// Logged batch: the message and both index rows land together or not at all.
	b := s.db.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO messages (channel_id, id, sender_id, recipient_id, content, created_at, is_read) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ChannelID(), m.ID, m.SenderID, m.RecipientID, m.Content, m.CreatedAt, false)
	b.Query(`INSERT INTO user_conversations (user_id, other_user_id, last_updated) VALUES (?, ?, ?)`,
		m.SenderID, m.RecipientID, m.CreatedAt)
	if m.SenderID != m.RecipientID {
		b.Query(`INSERT INTO user_conversations (user_id, other_user_id, last_updated) VALUES (?, ?, ?)`,
			m.RecipientID, m.SenderID, m.CreatedAt)
	}
	if err := s.db.ExecuteBatch(b); err != nil {
		return 0, errors.Wrap(err, "scylla: insert message")
	}
	return m.ID, nil
}

func (s *Scylla) QueryMessages(ctx context.Context, userA, userB string, r model.Range) ([]model.Message, error) {
	msgs, err := s.partition(ctx, model.DMChannelID(userA, userB))
	if err != nil {
		return nil, err
	}
	return window(msgs, r), nil
}

func (s *Scylla) partition(ctx context.Context, channelID string) ([]model.Message, error) {
	iter := s.db.Query(`SELECT id, sender_id, recipient_id, content, created_at, is_read FROM messages WHERE channel_id = ?`, channelID).
		WithContext(ctx).Iter()

	var (
		out []model.Message
		m   model.Message
	)
	for iter.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.CreatedAt, &m.Read) {
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrapf(err, "scylla: read %s", channelID)
	}
	return out, nil
}

func (s *Scylla) Conversations(ctx context.Context, user string) ([]model.ConversationSummary, error) {
	iter := s.db.Query(`SELECT other_user_id FROM user_conversations WHERE user_id = ?`, user).WithContext(ctx).Iter()
	var (
		peers []string
		peer  string
	)
	for iter.Scan(&peer) {
		peers = append(peers, peer)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "scylla: list conversations")
	}

	out := make([]model.ConversationSummary, 0, len(peers))
	for _, p := range peers {
		channel := model.DMChannelID(user, p)

		var (
			last model.Message
			at   time.Time
		)
		// Clustering order is id DESC, so the first row is the newest.
		err := s.db.Query(`SELECT content, created_at FROM messages WHERE channel_id = ? LIMIT 1`, channel).
			WithContext(ctx).Scan(&last.Content, &at)
		if errors.Is(err, gocql.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "scylla: last message %s", channel)
		}

		var unread int64
		if user != p {
			err = s.db.Query(`SELECT COUNT(*) FROM messages WHERE channel_id = ? AND recipient_id = ? AND is_read = false ALLOW FILTERING`,
				channel, user).WithContext(ctx).Scan(&unread)
			if err != nil {
				return nil, errors.Wrapf(err, "scylla: unread count %s", channel)
			}
		}

		out = append(out, model.ConversationSummary{
			UserID:          p,
			LastMessage:     last.Content,
			LastMessageTime: at.UTC(),
			UnreadCount:     unread,
		})
	}
	model.SortSummaries(out)
	return out, nil
}

func (s *Scylla) MarkRead(ctx context.Context, reader, counterpart string) (int64, error) {
	channel := model.DMChannelID(reader, counterpart)
	iter := s.db.Query(`SELECT id FROM messages WHERE channel_id = ? AND sender_id = ? AND recipient_id = ? AND is_read = false ALLOW FILTERING`,
		channel, counterpart, reader).WithContext(ctx).Iter()

	var (
		unread []int64
		id     int64
	)
	for iter.Scan(&id) {
		unread = append(unread, id)
	}
	if err := iter.Close(); err != nil {
		return 0, errors.Wrap(err, "scylla: find unread")
	}
	if len(unread) == 0 || reader == counterpart {
		return 0, nil
	}

	// Same partition, so an unlogged batch is applied atomically.
	b := s.db.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, id := range unread {
		b.Query(`UPDATE messages SET is_read = true WHERE channel_id = ? AND id = ?`, channel, id)
	}
	if err := s.db.ExecuteBatch(b); err != nil {
		return 0, errors.Wrap(err, "scylla: mark read")
	}
	return int64(len(unread)), nil
}

func (s *Scylla) Close() error {
	s.db.Close()
	return nil
}
