// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dheerajmandava/proovd-pulse/internal/logging"
	"github.com/dheerajmandava/proovd-pulse/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Application close codes. 4000-4999 is the range reserved for applications.
const (
	CloseIdleTimeout = 4000
	CloseSuperseded  = 4001
)

type closeRequest struct {
	code   int
	reason string
}

// client is the middleman between one websocket connection and the hub. The
// read pump feeds inbound frames to the hub loop; the write pump drains the
// send queue and emits protocol pings.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	closeCh chan closeRequest

	isOwner bool
	id      string
	siteID  string

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, id, siteID string, isOwner bool) *client {
	return &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		closeCh: make(chan closeRequest, 1),
		isOwner: isOwner,
		id:      id,
		siteID:  siteID,
	}
}

// Send enqueues a frame without blocking. A full queue means the peer is not
// draining; the frame is skipped rather than stalling the hub.
func (c *client) Send(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		metrics.SendQueueDrops.Inc()
		return false
	}
}

// CloseWith asks the write pump to emit a close frame and shut the socket
// down. Safe to call more than once.
func (c *client) CloseWith(code int, reason string) {
	c.closeOnce.Do(func() {
		select {
		case c.closeCh <- closeRequest{code: code, reason: reason}:
		default:
		}
	})
}

func (c *client) start() {
	go c.writePump()
	go c.readPump()
}

// readPump pumps frames from the socket to the hub loop. It owns the read
// side and all read deadlines.
func (c *client) readPump() {
	defer func() {
		c.hub.enqueue(evDetach{c: c})
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Str("site_id", c.siteID).Msg("Unexpected websocket close")
			}
			return
		}
		c.hub.enqueue(evInbound{c: c, data: data})
	}
}

// writePump pumps frames from the send queue to the socket. It owns the
// write side and emits protocol-level pings on a ticker.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case req := <-c.closeCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := websocket.FormatCloseMessage(req.code, req.reason)
			_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
			return

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
