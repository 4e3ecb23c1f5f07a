// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antonio12761/roxy-bar-sub008/internal/broker"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientIDCounter gives each client a monotonically increasing ID so
// fan-out iterates clients in a stable order.
var clientIDCounter atomic.Uint64

// Client bridges one websocket connection and the hub.
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	session broker.Session
	send    chan Frame
}

// NewClient wraps an upgraded connection for the given staff session.
func NewClient(hub *Hub, conn *websocket.Conn, session broker.Session) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		session: session,
		send:    make(chan Frame, 256),
	}
}

// Start registers the client with the hub and begins both pumps.
func (c *Client) Start() {
	c.hub.Register <- c
	go c.writePump()
	go c.readPump()
}

// trySend queues a frame without blocking. It reports false when the
// client's buffer is full.
func (c *Client) trySend(frame Frame) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump consumes inbound frames: acknowledgments and pings. It
// exits on any read error, which unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		switch frame.Type {
		case FrameTypeAck:
			acked := c.acknowledge(frame.EventIDs)
			c.trySend(Frame{Type: FrameTypeAckOK, Acked: acked})
		case FrameTypePing:
			c.trySend(Frame{Type: FrameTypePong})
		}
	}
}

// acknowledge settles the named events in the offline queue and
// returns how many were found.
func (c *Client) acknowledge(eventIDs []string) int {
	acked := 0
	for _, raw := range eventIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			logging.Warn().
				Str("event_id", raw).
				Str("user_id", c.session.UserID).
				Msg("malformed event id in ack frame")
			continue
		}
		if c.hub.broadcaster.AcknowledgeEvent(c.session.TenantID, c.session.UserID, id) {
			acked++
		}
	}
	return acked
}

// writePump flushes outbound frames and keeps the connection alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				logging.Error().Err(err).Msg("failed to write frame")
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
