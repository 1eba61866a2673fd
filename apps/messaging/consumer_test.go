package main

import (
	"context"
	"testing"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/events"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, ev events.MessageCreated) error {
	return m.Called(ctx, ev).Error(0)
}

func TestProjector_RecordsSenderActivity(t *testing.T) {
	req := require.New(t)
	rec := &mockRecorder{}
	p := &projector{activity: rec, log: zerolog.Nop()}
	ev := events.MessageCreated{
		Type:    events.TypeMessageCreated,
		Message: model.Message{ID: 1, SenderID: "alice", RecipientID: "bob", Content: "hi", CreatedAt: time.Now()},
	}
	rec.On("Record", mock.Anything, ev).Return(nil).Once()

	req.NoError(p.handle(context.Background(), ev))
	rec.AssertExpectations(t)
}

func TestProjector_ReturnsRecordErrorForRetry(t *testing.T) {
	rec := &mockRecorder{}
	p := &projector{activity: rec, log: zerolog.Nop()}
	rec.On("Record", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	require.Error(t, p.handle(context.Background(), events.MessageCreated{}))
}
