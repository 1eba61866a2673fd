// Package client is the receiving side of the gateway protocol. It keeps a
// session alive across transport drops, always authenticating first on a new
// transport, and reconciles the events it receives into a local view of
// messages, presence and conversation summaries.
package client

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrNotAuthenticated = errors.New("client is not authenticated")
	ErrRejected         = errors.New("credential rejected")
)

// DuplicateWindow is the createdAt tolerance when matching a message by content.
const DuplicateWindow = time.Second

type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Conn is the part of *websocket.Conn the client needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Dialer opens a new transport.
type Dialer func(ctx context.Context) (Conn, error)

// TokenSource returns a fresh credential. It is called on every connect.
type TokenSource func(ctx context.Context) (string, error)

// Handlers are invoked from the read goroutine. All are optional.
type Handlers struct {
	OnMessage   func(m model.Message)
	OnPresence  func(online []string)
	OnUserState func(userID string, online bool)
	OnTyping    func(userID string, typing bool)
	OnError     func(message string)
	OnState     func(s State)
}

type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Handlers   Handlers
	Log        zerolog.Logger
}

type Client struct {
	self   string
	dial   Dialer
	tokens TokenSource
	h      Handlers
	log    zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      Conn
	state     State
	online    map[string]bool
	messages  []model.Message
	summaries []model.ConversationSummary
}

func New(self string, dial Dialer, tokens TokenSource, opts Options) *Client {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Client{
		self:       self,
		dial:       dial,
		tokens:     tokens,
		h:          opts.Handlers,
		log:        opts.Log,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		online:     make(map[string]bool),
	}
}

// Run connects and keeps reconnecting with exponential backoff until ctx is
// done. It then closes the transport and returns.
func (c *Client) Run(ctx context.Context) {
	backoff := c.minBackoff
	for {
		err := c.session(ctx)
		wasAuthenticated := c.State() == Authenticated
		c.reset()

		if ctx.Err() != nil {
			c.setState(Closed)
			return
		}
		if wasAuthenticated {
			backoff = c.minBackoff
		}
		c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("Disconnected from gateway")

		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			c.setState(Closed)
			return
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// session runs one transport from dial to failure.
func (c *Client) session(ctx context.Context) error {
	token, err := c.tokens(ctx)
	if err != nil {
		return errors.Wrap(err, "get token")
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Nothing else may go out on a new transport before this.
	if err := c.write(conn, model.Authenticate{Credential: token}); err != nil {
		return err
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}
		ev, err := model.DecodeOutbound(raw)
		if err != nil {
			c.log.Debug().Err(err).Msg("Ignoring frame")
			continue
		}
		if e, ok := ev.(model.AuthenticationError); ok {
			c.notifyError(e.Message)
			return errors.Wrap(ErrRejected, e.Message)
		}
		c.apply(ev)
	}
}

func (c *Client) write(conn Conn, in model.Inbound) error {
	frame, err := model.EncodeInbound(in)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrapf(conn.WriteMessage(websocket.TextMessage, frame), "write %s", in.Type())
}

// send writes on the current transport, which must be authenticated.
func (c *Client) send(in model.Inbound) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != Authenticated || conn == nil {
		return ErrNotAuthenticated
	}
	return c.write(conn, in)
}

// Send sends a direct message. It only enters the local view once the server
// confirms it with messageSent; a rejected send leaves no trace.
func (c *Client) Send(to, content string) error {
	return c.send(model.SendMessage{To: to, Content: strings.TrimSpace(content)})
}

func (c *Client) Typing(to string, typing bool) error {
	return c.send(model.Typing{To: to, Start: typing})
}

// RefreshPresence asks for a full snapshot.
func (c *Client) RefreshPresence() error {
	return c.send(model.GetOnlineUsers{})
}

func (c *Client) apply(ev model.Outbound) {
	switch e := ev.(type) {
	case model.OnlineUsersList:
		c.mu.Lock()
		c.online = make(map[string]bool, len(e.UserIDs))
		for _, u := range e.UserIDs {
			c.online[u] = true
		}
		c.mu.Unlock()
		// The snapshot is the server's answer to authenticate.
		c.setState(Authenticated)
		if c.h.OnPresence != nil {
			c.h.OnPresence(c.Online())
		}
	case model.UserOnline:
		c.setOnline(e.UserID, true)
	case model.UserOffline:
		c.setOnline(e.UserID, false)
	case model.UserTyping:
		if c.h.OnTyping != nil {
			c.h.OnTyping(e.UserID, true)
		}
	case model.UserStoppedTyping:
		if c.h.OnTyping != nil {
			c.h.OnTyping(e.UserID, false)
		}
	case model.NewMessage:
		c.record(e.Message)
	case model.MessageSent:
		c.record(e.Message)
	case model.ErrorMessage:
		c.notifyError(e.Message)
	case model.AuthenticationError:
		c.notifyError(e.Message)
	}
}

func (c *Client) setOnline(userID string, online bool) {
	c.mu.Lock()
	if online {
		c.online[userID] = true
	} else {
		delete(c.online, userID)
	}
	c.mu.Unlock()
	if c.h.OnUserState != nil {
		c.h.OnUserState(userID, online)
	}
}

// record adds a server record m unless it is already known.
func (c *Client) record(m model.Message) {
	if m.ID == 0 {
		c.log.Debug().Str("from", m.SenderID).Msg("Ignoring message without id")
		return
	}
	c.mu.Lock()
	if c.find(m) >= 0 {
		c.mu.Unlock()
		return
	}
	c.messages = append(c.messages, m)
	sort.SliceStable(c.messages, func(a, b int) bool {
		return c.messages[a].CreatedAt.Before(c.messages[b].CreatedAt)
	})
	c.summaries = model.Summarize(c.self, c.messages)
	c.mu.Unlock()

	if c.h.OnMessage != nil {
		c.h.OnMessage(m)
	}
}

func (c *Client) find(m model.Message) int {
	for i, have := range c.messages {
		if have.ID == m.ID {
			return i
		}
		if sameContent(have, m) {
			return i
		}
	}
	return -1
}

func sameContent(a, b model.Message) bool {
	if a.SenderID != b.SenderID || a.RecipientID != b.RecipientID || a.Content != b.Content {
		return false
	}
	d := a.CreatedAt.Sub(b.CreatedAt)
	return d > -DuplicateWindow && d < DuplicateWindow
}

func (c *Client) notifyError(msg string) {
	c.log.Warn().Str("message", msg).Msg("Gateway reported an error")
	if c.h.OnError != nil {
		c.h.OnError(msg)
	}
}

// reset drops everything tied to the lost transport. Presence is reseeded by
// the next snapshot; messages are kept.
func (c *Client) reset() {
	c.mu.Lock()
	c.conn = nil
	c.online = make(map[string]bool)
	c.mu.Unlock()
	c.setState(Unauthenticated)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.h.OnState != nil {
		c.h.OnState(s)
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Online returns the local presence view, sorted.
func (c *Client) Online() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.online))
	for u := range c.online {
		out = append(out, u)
	}
	c.mu.Unlock()
	sort.Strings(out)
	return out
}

// Messages returns the known messages exchanged with peer, oldest first.
func (c *Client) Messages(peer string) []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Message
	for _, m := range c.messages {
		if m.Counterpart(c.self) == peer && (m.SenderID == c.self || m.RecipientID == c.self) {
			out = append(out, m)
		}
	}
	return out
}

func (c *Client) Summaries() []model.ConversationSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ConversationSummary(nil), c.summaries...)
}
