package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id           BIGINT PRIMARY KEY,
	channel_id   TEXT NOT NULL,
	sender_id    TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	content      TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	is_read      BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS messages_channel_created ON messages (channel_id, created_at);
CREATE INDEX IF NOT EXISTS messages_recipient_unread ON messages (recipient_id) WHERE NOT is_read;
`

type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and creates the schema when missing.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create postgres schema")
	}
	return &Postgres{pool: pool}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Postgres) CreateMessage(ctx context.Context, m model.Message) (int64, error) {
	if err := validate(m); err != nil {
		return 0, err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, channel_id, sender_id, recipient_id, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ChannelID(), m.SenderID, m.RecipientID, m.Content, m.CreatedAt)
	if isUniqueViolation(err) {
		return 0, errors.Wrapf(ErrDuplicateID, "id %d", m.ID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "postgres: insert message")
	}
	return m.ID, nil
}

func (s *Postgres) QueryMessages(ctx context.Context, userA, userB string, r model.Range) ([]model.Message, error) {
	args := []any{model.DMChannelID(userA, userB)}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	q := `SELECT id, sender_id, recipient_id, content, created_at, is_read FROM messages WHERE channel_id = $1`
	if !r.After.IsZero() {
		q += ` AND created_at > ` + arg(r.After)
	}
	if !r.Before.IsZero() {
		q += ` AND created_at < ` + arg(r.Before)
	}
	// Newest first so LIMIT keeps the latest; window restores ascending order.
	q += ` ORDER BY created_at DESC, id DESC`
	if r.Limit > 0 {
		q += ` LIMIT ` + arg(r.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: query messages")
	}
	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: scan messages")
	}
	return window(msgs, r), nil
}

func scanMessage(row pgx.CollectableRow) (model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.CreatedAt, &m.Read)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func (s *Postgres) Conversations(ctx context.Context, user string) ([]model.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (peer)
			peer,
			content,
			created_at,
			COUNT(*) FILTER (WHERE recipient_id = $1 AND sender_id <> $1 AND NOT is_read) OVER (PARTITION BY peer)
		FROM (
			SELECT *, CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS peer
			FROM messages
			WHERE sender_id = $1 OR recipient_id = $1
		) m
		ORDER BY peer, created_at DESC, id DESC`, user)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: conversations")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ConversationSummary, error) {
		var c model.ConversationSummary
		err := row.Scan(&c.UserID, &c.LastMessage, &c.LastMessageTime, &c.UnreadCount)
		c.LastMessageTime = c.LastMessageTime.UTC()
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "postgres: scan conversations")
	}
	model.SortSummaries(out)
	return out, nil
}

func (s *Postgres) MarkRead(ctx context.Context, reader, counterpart string) (int64, error) {
	if reader == counterpart {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET is_read = TRUE WHERE sender_id = $1 AND recipient_id = $2 AND NOT is_read`,
		counterpart, reader)
	if err != nil {
		return 0, errors.Wrap(err, "postgres: mark read")
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
