package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
)

// Badger is an embedded single-node store. Keys:
//
//	msg:{channel}|{createdAt nanos, 19 digits}:{id}  message JSON
//	id:{id}                                           message key
//	conv:{user}|{peer}                                empty, conversation index
//
// The zero padded timestamp keeps a channel prefix scan in chronological order.
type Badger struct {
	db *badger.DB
}

func OpenBadger(path string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, errors.Wrapf(err, "open badger at %s", path)
	}
	return &Badger{db: db}, nil
}

func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

func channelPrefix(channel string) []byte {
	return []byte("msg:" + channel + "|")
}

func messageKey(m model.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%d", channelPrefix(m.ChannelID()), m.CreatedAt.UnixNano(), m.ID))
}

func idKey(id int64) []byte {
	return []byte(fmt.Sprintf("id:%d", id))
}

func convPrefix(user string) []byte {
	return []byte("conv:" + user + "|")
}

func (s *Badger) CreateMessage(ctx context.Context, m model.Message) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validate(m); err != nil {
		return 0, err
	}
	m.Read = false
	value, err := json.Marshal(m)
	if err != nil {
		return 0, errors.Wrap(err, "encode message")
	}

	key := messageKey(m)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(idKey(m.ID)); err == nil {
			return errors.Wrapf(ErrDuplicateID, "id %d", m.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if err := txn.Set(idKey(m.ID), key); err != nil {
			return err
		}
		if err := txn.Set(append(convPrefix(m.SenderID), m.RecipientID...), nil); err != nil {
			return err
		}
		return txn.Set(append(convPrefix(m.RecipientID), m.SenderID...), nil)
	})
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

func (s *Badger) QueryMessages(ctx context.Context, userA, userB string, r model.Range) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var msgs []model.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		msgs, err = scanChannel(txn, model.DMChannelID(userA, userB))
		return err
	})
	if err != nil {
		return nil, err
	}
	return window(msgs, r), nil
}

func scanChannel(txn *badger.Txn, channel string) ([]model.Message, error) {
	prefix := channelPrefix(channel)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var out []model.Message
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var m model.Message
		err := it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &m)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", it.Item().Key())
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Badger) peers(txn *badger.Txn, user string) []string {
	prefix := convPrefix(user)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
	}
	return out
}

func (s *Badger) Conversations(ctx context.Context, user string) ([]model.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all []model.Message
	err := s.db.View(func(txn *badger.Txn) error {
		for _, p := range s.peers(txn, user) {
			msgs, err := scanChannel(txn, model.DMChannelID(user, p))
			if err != nil {
				return err
			}
			all = append(all, msgs...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model.Summarize(user, all), nil
}

func (s *Badger) MarkRead(ctx context.Context, reader, counterpart string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.Update(func(txn *badger.Txn) error {
		msgs, err := scanChannel(txn, model.DMChannelID(reader, counterpart))
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if m.SenderID != counterpart || !model.IsUnreadFor(reader, m) {
				continue
			}
			m.Read = true
			value, err := json.Marshal(m)
			if err != nil {
				return err
			}
			if err := txn.Set(messageKey(m), value); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	return n, nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}
