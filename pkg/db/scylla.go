package db

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, errors.Wrapf(err, "connect scylla %v", hosts)
	}
	return &Session{Session: session}, nil
}

// EnsureKeyspace creates keyspace through a session bound to the system keyspace.
func EnsureKeyspace(hosts []string, keyspace string) error {
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return err
	}
	defer sys.Close()

	q := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	return errors.Wrap(sys.Query(q).Exec(), "create keyspace")
}

var schema = []string{
	// One partition per DM pair; newest first.
	`CREATE TABLE IF NOT EXISTS messages (
		channel_id text,
		id bigint,
		sender_id text,
		recipient_id text,
		content text,
		created_at timestamp,
		is_read boolean,
		PRIMARY KEY (channel_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`,

	`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		other_user_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`,
}

var tables = []string{"messages", "user_conversations"}

// EnsureSchema creates the message tables if they are missing.
func (s *Session) EnsureSchema() error {
	for _, stmt := range schema {
		if err := s.Query(stmt).Exec(); err != nil {
			return errors.Wrap(err, "create table")
		}
	}
	return nil
}

// DropSchema removes every table created by EnsureSchema.
func (s *Session) DropSchema() error {
	for _, t := range tables {
		if err := s.Query("DROP TABLE IF EXISTS " + t).Exec(); err != nil {
			return errors.Wrapf(err, "drop table %s", t)
		}
	}
	return nil
}
