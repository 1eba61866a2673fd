package store

import (
	"context"
	"sync"

	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
)

// Memory keeps messages in process. It is the default for local runs and the
// reference implementation in tests.
type Memory struct {
	mu   sync.RWMutex
	byID map[int64]int
	msgs []model.Message
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[int64]int)}
}

func (s *Memory) CreateMessage(ctx context.Context, m model.Message) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validate(m); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; ok {
		return 0, errors.Wrapf(ErrDuplicateID, "id %d", m.ID)
	}
	s.byID[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, m)
	return m.ID, nil
}

func (s *Memory) QueryMessages(ctx context.Context, userA, userB string, r model.Range) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	channel := model.DMChannelID(userA, userB)

	s.mu.RLock()
	var out []model.Message
	for _, m := range s.msgs {
		if m.ChannelID() == channel {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	return window(out, r), nil
}

func (s *Memory) Conversations(ctx context.Context, user string) ([]model.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Summarize(user, s.msgs), nil
}

func (s *Memory) MarkRead(ctx context.Context, reader, counterpart string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.SenderID == counterpart && model.IsUnreadFor(reader, *m) {
			m.Read = true
			n++
		}
	}
	return n, nil
}

// Len reports how many messages are stored.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

func (s *Memory) Close() error { return nil }
