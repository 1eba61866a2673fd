package model

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound_Authenticate_AcceptsObjectAndBareString(t *testing.T) {
	req := require.New(t)

	in, err := DecodeInbound([]byte(`{"type":"authenticate","data":{"credential":"tok"}}`))
	req.NoError(err)
	req.Equal(Authenticate{Credential: "tok"}, in)

	in, err = DecodeInbound([]byte(`{"type":"authenticate","data":"tok"}`))
	req.NoError(err)
	req.Equal(Authenticate{Credential: "tok"}, in)
}

func TestDecodeInbound_Typing_CarriesDirection(t *testing.T) {
	req := require.New(t)

	in, err := DecodeInbound([]byte(`{"type":"typingStart","data":{"to":"b1"}}`))
	req.NoError(err)
	req.Equal(Typing{To: "b1", Start: true}, in)
	req.Equal(EventTypingStart, in.Type())

	in, err = DecodeInbound([]byte(`{"type":"typingStop","data":{"to":"b1"}}`))
	req.NoError(err)
	req.Equal(Typing{To: "b1"}, in)
	req.Equal(EventTypingStop, in.Type())
}

func TestDecodeInbound_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"unknown type", `{"type":"joinRoom"}`},
		{"bad payload", `{"type":"sendMessage","data":{"to":5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tt.raw))
			require.Error(t, err)
		})
	}
}

func TestDecodeInbound_WrapsDecodeCause(t *testing.T) {
	req := require.New(t)

	_, err := DecodeInbound([]byte(`hello`))
	req.ErrorContains(err, "malformed frame")
	var syntax *json.SyntaxError
	req.ErrorAs(errors.Cause(err), &syntax)

	_, err = DecodeInbound([]byte(`{"type":"sendMessage","data":{"to":5}}`))
	req.ErrorContains(err, "malformed sendMessage payload")
	var typ *json.UnmarshalTypeError
	req.ErrorAs(errors.Cause(err), &typ)

	_, err = DecodeInbound([]byte(`{"type":"joinRoom"}`))
	req.Contains(fmt.Sprintf("%+v", err), "model.DecodeInbound")
}

func TestEncodeOutbound_WireShapes(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	raw, err := EncodeOutbound(UserOnline{UserID: "a1"})
	req.NoError(err)
	req.JSONEq(`{"type":"userOnline","data":"a1"}`, string(raw))

	raw, err = EncodeOutbound(OnlineUsersList{})
	req.NoError(err)
	req.JSONEq(`{"type":"onlineUsersList","data":[]}`, string(raw))

	raw, err = EncodeOutbound(ErrorMessage{Message: "Not authenticated"})
	req.NoError(err)
	req.JSONEq(`{"type":"errorMessage","data":{"message":"Not authenticated"}}`, string(raw))

	raw, err = EncodeOutbound(NewMessage{Message: Message{
		ID: 7, SenderID: "a1", RecipientID: "b1", Content: "hi", CreatedAt: at,
	}})
	req.NoError(err)
	req.JSONEq(`{"type":"newMessage","data":{"id":7,"sender":"a1","recipient":"b1","content":"hi","createdAt":"2026-01-02T03:04:05Z","read":false}}`, string(raw))
}

func TestDecodeOutbound_ReturnsValueTypes(t *testing.T) {
	req := require.New(t)

	raw, err := EncodeOutbound(UserStoppedTyping{UserID: "a1"})
	req.NoError(err)
	out, err := DecodeOutbound(raw)
	req.NoError(err)
	req.Equal(UserStoppedTyping{UserID: "a1"}, out)

	out, err = DecodeOutbound([]byte(`{"type":"onlineUsersList","data":["a1","b1"]}`))
	req.NoError(err)
	req.Equal(OnlineUsersList{UserIDs: []string{"a1", "b1"}}, out)
}

func TestDMChannelID_IsSymmetric(t *testing.T) {
	req := require.New(t)
	req.Equal("dm:a1:b1", DMChannelID("a1", "b1"))
	req.Equal("dm:a1:b1", DMChannelID("b1", "a1"))

	u1, u2, ok := ParseDMChannelID("dm:a1:b1")
	req.True(ok)
	req.Equal("a1", u1)
	req.Equal("b1", u2)

	_, _, ok = ParseDMChannelID("general")
	req.False(ok)
}
