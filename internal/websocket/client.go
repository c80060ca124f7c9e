// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package websocket

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/galdcup/internal/logging"
	"github.com/tomtom215/galdcup/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// clientIDCounter gives clients a stable broadcast order.
var clientIDCounter atomic.Uint64

// Client pumps messages between one connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, 64),
	}
}

// ID returns the client's id.
func (c *Client) ID() uint64 {
	return c.id
}

// readPump only answers pings; the feed is read-only.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		if msg.Type == MessageTypePing {
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start runs the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Handler upgrades requests and registers the connection with hub. An empty
// allowedOrigins accepts same-origin requests only.
func Handler(hub *Hub, allowedOrigins []string) http.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] || allowed[origin] {
				return true
			}
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			metrics.WSErrors.WithLabelValues("upgrade").Inc()
			logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}
}
