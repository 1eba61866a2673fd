package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/dupahar-dm/pkg/auth"
	"github.com/mahaj/dupahar-dm/pkg/gateway"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Content is capped separately.
	maxMessageSize = 16 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *gateway.Hub
	conn *websocket.Conn
	ch   *gateway.Channel
	log  zerolog.Logger
}

// readPump hands frames to the hub one at a time, in arrival order.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Close(c.ch)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("Unexpected close")
			}
			break
		}
		c.hub.HandleFrame(ctx, c.ch, message)
	}
}

// writePump drains the channel outbox to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev := <-c.ch.Outbox():
			frame, err := model.EncodeOutbound(ev)
			if err != nil {
				c.log.Error().Err(err).Str("event", string(ev.Type())).Msg("Failed to encode event")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-c.ch.Done():
			// Evicted, overflowed or closed by the reader.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs upgrades the request and starts the pumps. A token in the
// Authorization header or the token query parameter authenticates the channel
// right away; otherwise the client must send authenticate.
func serveWs(ctx context.Context, hub *gateway.Hub, log zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Upgrade failed")
		return
	}

	ch := hub.Open()
	client := &Client{hub: hub, conn: conn, ch: ch, log: log.With().Str("conn", ch.ID()).Logger()}

	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token != "" {
		hub.Handle(ctx, ch, model.Authenticate{Credential: auth.StripBearer(token)})
	}

	go client.writePump()
	go client.readPump(ctx)
}
