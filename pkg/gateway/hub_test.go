package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mahaj/dupahar-dm/pkg/auth"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/mahaj/dupahar-dm/pkg/snowflake"
	"github.com/mahaj/dupahar-dm/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateMessage(ctx context.Context, msg model.Message) (int64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) QueryMessages(ctx context.Context, a, b string, r model.Range) ([]model.Message, error) {
	args := m.Called(ctx, a, b, r)
	msgs, _ := args.Get(0).([]model.Message)
	return msgs, args.Error(1)
}

func (m *mockStore) Conversations(ctx context.Context, user string) ([]model.ConversationSummary, error) {
	args := m.Called(ctx, user)
	out, _ := args.Get(0).([]model.ConversationSummary)
	return out, args.Error(1)
}

func (m *mockStore) MarkRead(ctx context.Context, reader, counterpart string) (int64, error) {
	args := m.Called(ctx, reader, counterpart)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Close() error { return nil }

type fakeMirror struct {
	events []string
}

func (f *fakeMirror) Online(u string)  { f.events = append(f.events, "+"+u) }
func (f *fakeMirror) Offline(u string) { f.events = append(f.events, "-"+u) }

type fakePublisher struct {
	published []model.Message
}

func (f *fakePublisher) Publish(_ context.Context, m model.Message) error {
	f.published = append(f.published, m)
	return nil
}

type fixture struct {
	hub    *Hub
	signer *auth.Signer
	mirror *fakeMirror
	pub    *fakePublisher
}

func newFixture(t *testing.T, st store.MessageStore) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	f := &fixture{
		signer: auth.NewSigner(secret, time.Hour),
		mirror: &fakeMirror{},
		pub:    &fakePublisher{},
	}
	f.hub = NewHub(Options{
		Store:     st,
		Tokens:    f.signer,
		IDs:       node,
		Publisher: f.pub,
		Mirror:    f.mirror,
		QueueSize: 16,
		Log:       zerolog.Nop(),
	})
	return f
}

func (f *fixture) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := f.signer.GenerateToken(user)
	require.NoError(t, err)
	return tok
}

// login opens a channel, authenticates it as user and discards the snapshot.
func (f *fixture) login(t *testing.T, user string) *Channel {
	t.Helper()
	ch := f.hub.Open()
	f.hub.Handle(context.Background(), ch, model.Authenticate{Credential: f.token(t, user)})
	require.Equal(t, Authenticated, f.hub.State(ch))
	drain(ch)
	return ch
}

func drain(ch *Channel) []model.Outbound {
	var out []model.Outbound
	for {
		select {
		case ev := <-ch.Outbox():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_UnauthenticatedSendIsRejectedWithoutSideEffects(t *testing.T) {
	req := require.New(t)
	st := store.NewMemory()
	f := newFixture(t, st)
	ch := f.hub.Open()

	// When an unauthenticated channel sends a message
	f.hub.Handle(context.Background(), ch, model.SendMessage{To: "b1", Content: "hi"})

	// Then it gets an error and nothing is stored
	req.Equal([]model.Outbound{model.ErrorMessage{Message: "Not authenticated"}}, drain(ch))
	req.Zero(st.Len())
	req.Empty(f.pub.published)
	req.Equal(Unauthenticated, f.hub.State(ch))
}

func TestHub_UnauthenticatedSendNeverReachesStore(t *testing.T) {
	st := &mockStore{}
	f := newFixture(t, st)
	ch := f.hub.Open()

	f.hub.Handle(context.Background(), ch, model.SendMessage{To: "b1", Content: "hi"})
	f.hub.Handle(context.Background(), ch, model.Typing{To: "b1", Start: true})
	f.hub.Handle(context.Background(), ch, model.GetOnlineUsers{})

	st.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	require.Len(t, drain(ch), 3)
}

func TestHub_InvalidCredentialLeavesRegistryUntouched(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, store.NewMemory())
	other := auth.NewSigner("another-secret", time.Hour)
	forged, err := other.GenerateToken("alice")
	req.NoError(err)

	for name, tc := range map[string]struct {
		credential string
		message    string
	}{
		"missing":   {"", "Missing token"},
		"garbage":   {"not-a-jwt", "Invalid token"},
		"forged":    {forged, "Invalid token"},
		"expired":   {expiredToken(t, "alice"), "Token expired"},
		"no bearer": {"Bearer ", "Invalid token"},
	} {
		t.Run(name, func(t *testing.T) {
			ch := f.hub.Open()
			f.hub.Handle(context.Background(), ch, model.Authenticate{Credential: tc.credential})

			require.Equal(t, []model.Outbound{model.AuthenticationError{Message: tc.message}}, drain(ch))
			require.Equal(t, Unauthenticated, f.hub.State(ch))
			require.Zero(t, f.hub.Registry().Len())
		})
	}
	req.Empty(f.mirror.events)
}

func expiredToken(t *testing.T, user string) string {
	t.Helper()
	past := time.Now().Add(-2 * time.Hour)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		UserID: user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestHub_AuthenticateSendsSnapshotAndAnnouncesJoin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, store.NewMemory())
	bob := f.login(t, "bob")

	// When alice authenticates with a bare bearer header value
	alice := f.hub.Open()
	f.hub.Handle(context.Background(), alice, model.Authenticate{Credential: "Bearer " + f.token(t, "alice")})

	// Then alice gets the full snapshot and bob the delta
	req.Equal([]model.Outbound{model.OnlineUsersList{UserIDs: []string{"alice", "bob"}}}, drain(alice))
	req.Equal([]model.Outbound{model.UserOnline{UserID: "alice"}}, drain(bob))
	req.Equal([]string{"+bob", "+alice"}, f.mirror.events)

	sess, ok := f.hub.Registry().SessionFor(alice.ID())
	req.True(ok)
	req.Equal("alice", sess.UserID)
}

func TestHub_SendToOnlineRecipient(t *testing.T) {
	req := require.New(t)
	st := store.NewMemory()
	f := newFixture(t, st)
	a, b := f.login(t, "a"), f.login(t, "b")
	drain(a)

	f.hub.Handle(context.Background(), a, model.SendMessage{To: "b", Content: "  hi  "})

	atA, atB := drain(a), drain(b)
	req.Len(atA, 1)
	req.Len(atB, 1)
	sent, ok := atA[0].(model.MessageSent)
	req.True(ok)
	got, ok := atB[0].(model.NewMessage)
	req.True(ok)
	req.Equal(sent.Message, got.Message)

	m := got.Message
	req.NotZero(m.ID)
	req.Equal("a", m.SenderID)
	req.Equal("b", m.RecipientID)
	req.Equal("hi", m.Content)
	req.False(m.Read)
	req.Equal(snowflake.Time(m.ID), m.CreatedAt)

	stored, err := st.QueryMessages(context.Background(), "a", "b", model.Range{})
	req.NoError(err)
	req.Equal([]model.Message{m}, stored)
	req.Equal([]model.Message{m}, f.pub.published)
}

func TestHub_SendToOfflineRecipientIsStoredOnly(t *testing.T) {
	req := require.New(t)
	st := store.NewMemory()
	f := newFixture(t, st)
	a := f.login(t, "a")

	f.hub.Handle(context.Background(), a, model.SendMessage{To: "b", Content: "later"})

	atA := drain(a)
	req.Len(atA, 1)
	req.IsType(model.MessageSent{}, atA[0])

	// When b shows up afterwards no realtime event is waiting
	b := f.hub.Open()
	f.hub.Handle(context.Background(), b, model.Authenticate{Credential: f.token(t, "b")})
	req.Equal([]model.Outbound{model.OnlineUsersList{UserIDs: []string{"a", "b"}}}, drain(b))

	// But the history has it
	msgs, err := st.QueryMessages(context.Background(), "b", "a", model.Range{})
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal("later", msgs[0].Content)
}

func TestHub_SendValidation(t *testing.T) {
	st := store.NewMemory()
	f := newFixture(t, st)
	a := f.login(t, "a")

	for name, tc := range map[string]struct {
		to, content, message string
	}{
		"empty":        {"b", "", "Message content cannot be empty"},
		"blank":        {"b", " \n\t ", "Message content cannot be empty"},
		"too long":     {"b", string(make([]rune, DefaultMaxContentLength+1)), "Message content is too long"},
		"no recipient": {"", "hi", "Invalid recipient"},
		"bad chars":    {"b:c", "hi", "Invalid recipient"},
	} {
		t.Run(name, func(t *testing.T) {
			f.hub.Handle(context.Background(), a, model.SendMessage{To: tc.to, Content: tc.content})
			require.Equal(t, []model.Outbound{model.ErrorMessage{Message: tc.message}}, drain(a))
		})
	}
	require.Zero(t, st.Len())
}

func TestHub_PersistenceFailureAbortsDelivery(t *testing.T) {
	req := require.New(t)
	st := &mockStore{}
	st.On("CreateMessage", mock.Anything, mock.Anything).Return(int64(0), errors.New("scylla unavailable"))
	f := newFixture(t, st)
	a, b := f.login(t, "a"), f.login(t, "b")
	drain(a)

	f.hub.Handle(context.Background(), a, model.SendMessage{To: "b", Content: "hi"})

	req.Equal([]model.Outbound{model.ErrorMessage{Message: "Failed to send message"}}, drain(a))
	req.Empty(drain(b))
	req.Empty(f.pub.published)
	st.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestHub_PersistSurvivesSenderCancellation(t *testing.T) {
	req := require.New(t)
	st := store.NewMemory()
	f := newFixture(t, st)
	a, b := f.login(t, "a"), f.login(t, "b")

	// Given the sender's channel is already gone when the send runs
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.hub.Close(a)
	drain(b)

	m, err := f.hub.router.Send(ctx, a, "a", "b", "still here")

	// Then the message is stored and delivered, the ack is dropped silently
	req.NoError(err)
	req.Equal(1, st.Len())
	req.Equal([]model.Outbound{model.NewMessage{Message: m}}, drain(b))
}

func TestHub_TypingRelayedInOrder(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, store.NewMemory())
	a, b := f.login(t, "a"), f.login(t, "b")
	drain(a)

	f.hub.Handle(context.Background(), a, model.Typing{To: "b", Start: true})
	f.hub.Handle(context.Background(), a, model.Typing{To: "b", Start: false})

	req.Equal([]model.Outbound{
		model.UserTyping{UserID: "a", Typing: true},
		model.UserStoppedTyping{UserID: "a", Typing: false},
	}, drain(b))
	req.Empty(drain(a))
}

func TestHub_TypingToOfflineUserIsDropped(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	a := f.login(t, "a")

	f.hub.Handle(context.Background(), a, model.Typing{To: "b", Start: true})
	f.hub.Handle(context.Background(), a, model.Typing{To: "b", Start: false})

	require.Empty(t, drain(a))
	require.False(t, f.hub.typing.Relay("a", "b", true))
}

func TestHub_ReconnectEmitsOneOfflineOnlinePair(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, store.NewMemory())
	observer := f.login(t, "carol")
	old := f.login(t, "alice")
	drain(observer)

	// When alice reconnects and re-authenticates before the old transport closed
	fresh := f.hub.Open()
	f.hub.Handle(context.Background(), fresh, model.Authenticate{Credential: f.token(t, "alice")})

	// Then third parties see exactly one offline/online pair
	req.Equal([]model.Outbound{
		model.UserOffline{UserID: "alice"},
		model.UserOnline{UserID: "alice"},
	}, drain(observer))
	req.Equal(Closed, f.hub.State(old))
	req.Equal(Authenticated, f.hub.State(fresh))
	req.Equal(2, f.hub.Registry().Len())

	// And the late close of the old transport changes nothing
	f.hub.Close(old)
	req.Empty(drain(observer))
	req.True(f.hub.Registry().IsOnline("alice"))
	req.Equal([]string{"+carol", "+alice", "-alice", "+alice"}, f.mirror.events)
}

func TestHub_EvictedChannelReceivesNoFurtherPushes(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, store.NewMemory())
	first := f.login(t, "a")
	second := f.login(t, "a")
	sender := f.login(t, "b")
	drain(first)
	drain(second)

	_, ok := f.hub.Registry().SessionFor(first.ID())
	req.False(ok)

	f.hub.Handle(context.Background(), sender, model.SendMessage{To: "a", Content: "which one?"})
	f.hub.Handle(context.Background(), sender, model.Typing{To: "a", Start: true})

	req.Empty(drain(first))
	req.Len(drain(second), 2)

	ch, ok := f.hub.Registry().Lookup("a")
	req.True(ok)
	req.Same(second, ch)
}

func TestHub_ReauthenticateSameUserIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, store.NewMemory())
	observer := f.login(t, "carol")
	a := f.login(t, "alice")
	drain(observer)
	before, _ := f.hub.Registry().SessionFor(a.ID())

	f.hub.Handle(context.Background(), a, model.Authenticate{Credential: f.token(t, "alice")})

	req.Equal([]model.Outbound{model.OnlineUsersList{UserIDs: []string{"alice", "carol"}}}, drain(a))
	req.Empty(drain(observer))
	after, _ := f.hub.Registry().SessionFor(a.ID())
	req.Equal(before, after)
}

func TestHub_DifferentUserOnBoundChannelIsRejected(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, store.NewMemory())
	a := f.login(t, "alice")

	f.hub.Handle(context.Background(), a, model.Authenticate{Credential: f.token(t, "mallory")})

	req.Equal([]model.Outbound{model.AuthenticationError{Message: "Connection is already authenticated as another user"}}, drain(a))
	sess, ok := f.hub.Registry().SessionFor(a.ID())
	req.True(ok)
	req.Equal("alice", sess.UserID)
	req.False(f.hub.Registry().IsOnline("mallory"))
}

func TestHub_CloseAnnouncesOffline(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, store.NewMemory())
	a, b := f.login(t, "a"), f.login(t, "b")
	drain(a)

	f.hub.Close(b)

	req.Equal([]model.Outbound{model.UserOffline{UserID: "b"}}, drain(a))
	req.Equal(Closed, f.hub.State(b))
	req.False(f.hub.Registry().IsOnline("b"))

	// Authenticating a closed channel binds nothing.
	f.hub.Handle(context.Background(), b, model.Authenticate{Credential: f.token(t, "b")})
	req.False(f.hub.Registry().IsOnline("b"))
}

func TestHub_GetOnlineUsersIncludesSelf(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	a := f.login(t, "a")
	f.login(t, "b")
	drain(a)

	f.hub.Handle(context.Background(), a, model.GetOnlineUsers{})

	require.Equal(t, []model.Outbound{model.OnlineUsersList{UserIDs: []string{"a", "b"}}}, drain(a))
}

func TestHub_MalformedFrame(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ch := f.hub.Open()

	f.hub.HandleFrame(context.Background(), ch, []byte(`{"type":"launchMissiles"}`))
	f.hub.HandleFrame(context.Background(), ch, []byte(`not json`))

	require.Equal(t, []model.Outbound{
		model.ErrorMessage{Message: "Invalid message format"},
		model.ErrorMessage{Message: "Invalid message format"},
	}, drain(ch))
}

func TestChannel_FullQueueClosesChannel(t *testing.T) {
	req := require.New(t)
	ch := NewChannel(1)

	req.NoError(ch.Push(model.UserOnline{UserID: "a"}))
	err := ch.Push(model.UserOnline{UserID: "b"})

	req.ErrorIs(err, ErrDelivery)
	req.True(ch.Closed())
	req.ErrorIs(ch.Push(model.UserOnline{UserID: "c"}), ErrChannelClosed)
}

func TestClientMessage(t *testing.T) {
	req := require.New(t)
	req.Equal("Not authenticated", ClientMessage(ErrNotAuthenticated))
	req.Equal("Failed to send message", ClientMessage(errors.Wrap(ErrPersistence, "boom")))
	req.Equal("Internal error", ClientMessage(errors.New("boom")))
	req.IsType(model.AuthenticationError{}, ToEvent(reject(ErrAuthentication, "x")))
	req.IsType(model.ErrorMessage{}, ToEvent(reject(ErrValidation, "x")))
}
