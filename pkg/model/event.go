package model

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// EventType names a frame on the duplex channel.
type EventType string

// Client to server.
const (
	EventAuthenticate   EventType = "authenticate"
	EventSendMessage    EventType = "sendMessage"
	EventTypingStart    EventType = "typingStart"
	EventTypingStop     EventType = "typingStop"
	EventGetOnlineUsers EventType = "getOnlineUsers"
)

// Server to client.
const (
	EventOnlineUsersList     EventType = "onlineUsersList"
	EventUserOnline          EventType = "userOnline"
	EventUserOffline         EventType = "userOffline"
	EventUserTyping          EventType = "userTyping"
	EventUserStoppedTyping   EventType = "userStoppedTyping"
	EventNewMessage          EventType = "newMessage"
	EventMessageSent         EventType = "messageSent"
	EventAuthenticationError EventType = "authenticationError"
	EventErrorMessage        EventType = "errorMessage"
)

// Envelope is the JSON frame carried by every websocket text message.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound is a client to server event. The set of implementations is closed.
type Inbound interface {
	Type() EventType
	inbound()
}

type Authenticate struct {
	Credential string `json:"credential"`
}

type SendMessage struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// Typing covers both typingStart (Start == true) and typingStop.
type Typing struct {
	To    string `json:"to"`
	Start bool   `json:"-"`
}

type GetOnlineUsers struct{}

func (Authenticate) Type() EventType   { return EventAuthenticate }
func (SendMessage) Type() EventType    { return EventSendMessage }
func (GetOnlineUsers) Type() EventType { return EventGetOnlineUsers }
func (t Typing) Type() EventType {
	if t.Start {
		return EventTypingStart
	}
	return EventTypingStop
}

func (Authenticate) inbound()   {}
func (SendMessage) inbound()    {}
func (Typing) inbound()         {}
func (GetOnlineUsers) inbound() {}

// DecodeInbound parses a raw frame into its inbound event.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "malformed frame")
	}

	switch env.Type {
	case EventAuthenticate:
		var a Authenticate
		target := any(&a)
		// A bare JSON string is accepted as the credential itself.
		if data := bytes.TrimSpace(env.Data); len(data) > 0 && data[0] == '"' {
			target = &a.Credential
		}
		if err := decodeData(env, target); err != nil {
			return nil, err
		}
		return a, nil
	case EventSendMessage:
		var s SendMessage
		if err := decodeData(env, &s); err != nil {
			return nil, err
		}
		return s, nil
	case EventTypingStart, EventTypingStop:
		t := Typing{Start: env.Type == EventTypingStart}
		if err := decodeData(env, &t); err != nil {
			return nil, err
		}
		return t, nil
	case EventGetOnlineUsers:
		return GetOnlineUsers{}, nil
	default:
		return nil, errors.Errorf("unknown event type %q", env.Type)
	}
}

func decodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.Wrapf(err, "malformed %s payload", env.Type)
	}
	return nil
}

// EncodeInbound renders an inbound event as a frame. Used by clients.
func EncodeInbound(in Inbound) ([]byte, error) {
	var data any
	switch e := in.(type) {
	case Authenticate:
		data = e
	case SendMessage:
		data = e
	case Typing:
		data = e
	case GetOnlineUsers:
		data = nil
	default:
		return nil, errors.Errorf("unsupported inbound event %T", in)
	}
	return encode(in.Type(), data)
}

// Outbound is a server to client event. The set of implementations is closed.
type Outbound interface {
	Type() EventType
	outbound()
}

type OnlineUsersList struct {
	UserIDs []string
}

type UserOnline struct {
	UserID string
}

type UserOffline struct {
	UserID string
}

type UserTyping struct {
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

type UserStoppedTyping struct {
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

type NewMessage struct {
	Message Message
}

type MessageSent struct {
	Message Message
}

type AuthenticationError struct {
	Message string `json:"message"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func (OnlineUsersList) Type() EventType     { return EventOnlineUsersList }
func (UserOnline) Type() EventType          { return EventUserOnline }
func (UserOffline) Type() EventType         { return EventUserOffline }
func (UserTyping) Type() EventType          { return EventUserTyping }
func (UserStoppedTyping) Type() EventType   { return EventUserStoppedTyping }
func (NewMessage) Type() EventType          { return EventNewMessage }
func (MessageSent) Type() EventType         { return EventMessageSent }
func (AuthenticationError) Type() EventType { return EventAuthenticationError }
func (ErrorMessage) Type() EventType        { return EventErrorMessage }

func (OnlineUsersList) outbound()     {}
func (UserOnline) outbound()          {}
func (UserOffline) outbound()         {}
func (UserTyping) outbound()          {}
func (UserStoppedTyping) outbound()   {}
func (NewMessage) outbound()          {}
func (MessageSent) outbound()         {}
func (AuthenticationError) outbound() {}
func (ErrorMessage) outbound()        {}

// EncodeOutbound renders an outbound event as a frame.
func EncodeOutbound(out Outbound) ([]byte, error) {
	var data any
	switch e := out.(type) {
	case OnlineUsersList:
		ids := e.UserIDs
		if ids == nil {
			ids = []string{}
		}
		data = ids
	case UserOnline:
		data = e.UserID
	case UserOffline:
		data = e.UserID
	case UserTyping:
		data = e
	case UserStoppedTyping:
		data = e
	case NewMessage:
		data = e.Message
	case MessageSent:
		data = e.Message
	case AuthenticationError:
		data = e
	case ErrorMessage:
		data = e
	default:
		return nil, errors.Errorf("unsupported outbound event %T", out)
	}
	return encode(out.Type(), data)
}

// DecodeOutbound parses a server frame. Used by clients.
func DecodeOutbound(raw []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "malformed frame")
	}

	var (
		out    Outbound
		target any
	)
	switch env.Type {
	case EventOnlineUsersList:
		e := &OnlineUsersList{}
		out, target = e, &e.UserIDs
	case EventUserOnline:
		e := &UserOnline{}
		out, target = e, &e.UserID
	case EventUserOffline:
		e := &UserOffline{}
		out, target = e, &e.UserID
	case EventUserTyping:
		e := &UserTyping{}
		out, target = e, e
	case EventUserStoppedTyping:
		e := &UserStoppedTyping{}
		out, target = e, e
	case EventNewMessage:
		e := &NewMessage{}
		out, target = e, &e.Message
	case EventMessageSent:
		e := &MessageSent{}
		out, target = e, &e.Message
	case EventAuthenticationError:
		e := &AuthenticationError{}
		out, target = e, e
	case EventErrorMessage:
		e := &ErrorMessage{}
		out, target = e, e
	default:
		return nil, errors.Errorf("unknown event type %q", env.Type)
	}
	if err := decodeData(env, target); err != nil {
		return nil, err
	}
	return deref(out), nil
}

// deref turns the pointer used while decoding back into the value form that
// the rest of the code switches on.
func deref(out Outbound) Outbound {
	switch e := out.(type) {
	case *OnlineUsersList:
		return *e
	case *UserOnline:
		return *e
	case *UserOffline:
		return *e
	case *UserTyping:
		return *e
	case *UserStoppedTyping:
		return *e
	case *NewMessage:
		return *e
	case *MessageSent:
		return *e
	case *AuthenticationError:
		return *e
	case *ErrorMessage:
		return *e
	}
	return out
}

func encode(t EventType, data any) ([]byte, error) {
	env := Envelope{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
