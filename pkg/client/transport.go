package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebsocketDialer dials the gateway at addr (host:port) on /ws.
func WebsocketDialer(addr string) Dialer {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, errors.Wrapf(err, "dial %s", u.String())
		}
		return conn, nil
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginTokenSource fetches a new token from the API login endpoint on every
// call, so each reconnect authenticates with a fresh credential.
func LoginTokenSource(hc *http.Client, apiAddr, userID string) TokenSource {
	return func(ctx context.Context) (string, error) {
		body, err := json.Marshal(map[string]string{"user_id": userID})
		if err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiAddr+"/login", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(req)
		if err != nil {
			return "", errors.Wrap(err, "login")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return "", errors.Errorf("login failed: %s: %s", resp.Status, bytes.TrimSpace(msg))
		}
		var lr loginResponse
		if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
			return "", errors.Wrap(err, "decode login response")
		}
		if lr.Token == "" {
			return "", errors.New("login returned an empty token")
		}
		return lr.Token, nil
	}
}
