// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

// Package pulseclient is the connection manager the embeddable widget runs
// on. It mirrors the browser-side contract: exactly one live socket per
// site, shared by every widget instance in the process, with reconnection
// backoff, heartbeats, activity batching, and an ordered offline queue.
package pulseclient

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/dheerajmandava/proovd-pulse/internal/logging"
)

// Options configures one manager.
type Options struct {
	// URL is the pulse socket endpoint, e.g. "ws://localhost:4077/api/v1/pulse/ws".
	URL string

	SiteID   string
	ClientID string

	// SessionID distinguishes this process lifetime; optional.
	SessionID string

	// Token is an optional site-scoped pulse token.
	Token string

	// InitialRetryDelay seeds the reconnect backoff. Default 1s.
	InitialRetryDelay time.Duration

	// MaxRetryDelay caps the reconnect backoff. Default 30s.
	MaxRetryDelay time.Duration

	// MaxRetries bounds consecutive reconnect attempts. After exhaustion the
	// manager stays silent until the process restarts. Default 8.
	MaxRetries int

	// HeartbeatInterval is the application-level ping cadence. Default 30s.
	HeartbeatInterval time.Duration

	// FlushInterval is the batched-metrics cadence. Default 10s.
	FlushInterval time.Duration

	// Dialer overrides the websocket dialer; nil uses the default.
	Dialer *websocket.Dialer
}

func (o *Options) applyDefaults() {
	if o.InitialRetryDelay <= 0 {
		o.InitialRetryDelay = time.Second
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 8
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// Listener receives every inbound message: the decoded type tag plus the
// raw payload.
type Listener func(msgType string, payload []byte)

// Shared manager registry: one manager per site per endpoint, regardless of
// how many widgets attach.
var (
	registryMu sync.Mutex
	managers   = make(map[string]*Manager)
)

func managerKey(o Options) string {
	return o.URL + "|" + o.SiteID
}

// Attach joins the shared manager for the given site and endpoint, creating
// and connecting it on first use. Every attached listener sees every inbound
// message. Close the returned handle when done; the socket tears down when
// the last handle closes.
func Attach(opts Options, l Listener) (*Handle, error) {
	if opts.URL == "" || opts.SiteID == "" || opts.ClientID == "" {
		return nil, fmt.Errorf("pulseclient: URL, SiteID, and ClientID are required")
	}
	opts.applyDefaults()
	key := managerKey(opts)

	registryMu.Lock()
	m, ok := managers[key]
	if !ok {
		m = newManager(opts)
		managers[key] = m
		go m.connect()
	}
	listenerID := m.addListener(l)
	registryMu.Unlock()

	return &Handle{m: m, key: key, listenerID: listenerID}, nil
}

// Handle is one widget's reference to the shared manager.
type Handle struct {
	m          *Manager
	key        string
	listenerID int
	closeOnce  sync.Once
}

// RecordClick sends a click event immediately. Clicks are discrete,
// time-sensitive signals and are never batched.
func (h *Handle) RecordClick() {
	h.m.sendOrQueue(mustMarshal(map[string]string{"type": "event", "eventType": "click"}))
}

// RecordScroll stages the deepest observed scroll percentage for the next
// batched flush.
func (h *Handle) RecordScroll(percentage float64) {
	h.m.stageMetrics(func(p *pendingMetrics) {
		if percentage > p.scroll || !p.hasScroll {
			p.scroll = percentage
			p.hasScroll = true
		}
	})
}

// RecordTimeOnPage stages the current time-on-page for the next batched
// flush.
func (h *Handle) RecordTimeOnPage(seconds float64) {
	h.m.stageMetrics(func(p *pendingMetrics) {
		p.timeOnPage = seconds
		p.hasTime = true
	})
}

// Close detaches this widget. The underlying socket and timers are torn
// down when the last handle closes.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		registryMu.Lock()
		last := h.m.removeListener(h.listenerID)
		if last {
			delete(managers, h.key)
		}
		registryMu.Unlock()

		if last {
			h.m.stop()
		}
	})
}

// pendingMetrics is the batched engagement state between flushes.
type pendingMetrics struct {
	scroll     float64
	hasScroll  bool
	timeOnPage float64
	hasTime    bool
}

// Manager owns one socket and its timers. All state is guarded by mu; the
// read loop, timer loop, and callers all go through it.
type Manager struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	queue     [][]byte
	listeners map[int]Listener
	nextID    int
	pending   pendingMetrics

	// writeMu serializes every data write on the socket. The websocket
	// package supports at most one concurrent writer per connection, and
	// clicks, heartbeats, metric flushes, and the connect-time queue flush
	// all write from different goroutines. Lock order: writeMu before mu.
	writeMu sync.Mutex

	policy     *backoff.ExponentialBackOff
	retries    int
	retryTimer *time.Timer
	exhausted  bool
	stopped    bool

	done chan struct{}
}

func newManager(opts Options) *Manager {
	m := &Manager{
		opts:      opts,
		listeners: make(map[int]Listener),
		policy:    newBackoffPolicy(opts),
		done:      make(chan struct{}),
	}
	go m.timerLoop()
	return m
}

// newBackoffPolicy builds the reconnect schedule. With multiplier 2.0 and
// randomization 0.25, the jittered minimum of attempt n+1 (1.5x the base)
// always exceeds the jittered maximum of attempt n (1.25x), so consecutive
// delays never decrease.
func newBackoffPolicy(opts Options) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialRetryDelay
	b.MaxInterval = opts.MaxRetryDelay
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (m *Manager) addListener(l Listener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return id
}

// removeListener reports whether this was the last listener.
func (m *Manager) removeListener(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
	return len(m.listeners) == 0
}

// socketURL assembles the endpoint with identity query parameters.
func (m *Manager) socketURL() (string, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("siteId", m.opts.SiteID)
	q.Set("clientId", m.opts.ClientID)
	if m.opts.SessionID != "" {
		q.Set("sessionId", m.opts.SessionID)
	}
	if m.opts.Token != "" {
		q.Set("token", m.opts.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect dials the endpoint, announces the widget, and flushes the offline
// queue in order. On failure it schedules a retry.
func (m *Manager) connect() {
	endpoint, err := m.socketURL()
	if err != nil {
		logging.Error().Err(err).Msg("Pulse client has unusable endpoint, giving up")
		return
	}

	conn, _, err := m.opts.Dialer.Dial(endpoint, nil)
	if err != nil {
		logging.Debug().Err(err).Str("site_id", m.opts.SiteID).Msg("Pulse connect failed")
		m.scheduleRetry()
		return
	}

	m.mu.Lock()
	// A retry timer that fired just before being replaced can race a second
	// connect here; the socket already installed wins and the loser's dial
	// is discarded.
	if m.stopped || m.conn != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.retries = 0
	m.policy.Reset()

	join := mustMarshal(map[string]string{
		"type":     "join",
		"siteId":   m.opts.SiteID,
		"clientId": m.opts.ClientID,
	})
	frames := append([][]byte{join}, m.queue...)
	m.queue = nil
	m.mu.Unlock()

	if err := m.flushFrames(conn, frames); err != nil {
		m.onDisconnect(conn, err)
		return
	}

	go m.readLoop(conn)
	logging.Debug().Str("site_id", m.opts.SiteID).Msg("Pulse socket connected")
}

// frameWriter is the subset of *websocket.Conn the flush path writes through.
type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// flushFrames writes frames in order under the write lock, so sends racing a
// reconnect wait behind the backlog instead of interleaving with it. A
// mid-flush failure preserves the failed frame and the remainder for the
// next successful open; the join frame at index 0 is never re-queued, the
// next open mints its own.
func (m *Manager) flushFrames(w frameWriter, frames [][]byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	for i, frame := range frames {
		if err := w.WriteMessage(websocket.TextMessage, frame); err != nil {
			keep := frames[i:]
			if i == 0 {
				keep = frames[1:]
			}
			m.mu.Lock()
			m.queue = append(append([][]byte{}, keep...), m.queue...)
			m.mu.Unlock()
			return err
		}
	}
	return nil
}

// readLoop dispatches every inbound frame to all listeners until the socket
// dies.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			m.onDisconnect(conn, err)
			return
		}

		var tag struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(payload, &tag)

		m.mu.Lock()
		ls := make([]Listener, 0, len(m.listeners))
		for _, l := range m.listeners {
			ls = append(ls, l)
		}
		m.mu.Unlock()

		for _, l := range ls {
			l(tag.Type, payload)
		}
	}
}

// onDisconnect clears the dead socket and decides whether to retry. Clean
// closes (1000/1001) end the session; anything else reconnects with
// backoff. The conn argument identifies which socket died: a failed write
// and the read loop's resulting error both report the same death, and only
// the first report clears state and spends a retry.
func (m *Manager) onDisconnect(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	stopped := m.stopped
	m.mu.Unlock()
	_ = conn.Close()

	if stopped {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logging.Debug().Str("site_id", m.opts.SiteID).Msg("Pulse socket closed cleanly")
		return
	}
	m.scheduleRetry()
}

// scheduleRetry arms the reconnect timer, canceling any pending one first
// so a reconnect triggered from inside a close handler cannot
// double-schedule.
func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.exhausted {
		return
	}
	if m.retries >= m.opts.MaxRetries {
		m.exhausted = true
		logging.Warn().
			Str("site_id", m.opts.SiteID).
			Int("attempts", m.retries).
			Msg("Pulse reconnect attempts exhausted, giving up")
		return
	}
	m.retries++
	delay := m.policy.NextBackOff()

	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = time.AfterFunc(delay, m.connect)
	logging.Debug().
		Str("site_id", m.opts.SiteID).
		Int("attempt", m.retries).
		Dur("delay", delay).
		Msg("Pulse reconnect scheduled")
}

// sendOrQueue writes a frame now, or queues it in order for the next open.
func (m *Manager) sendOrQueue(payload []byte) {
	m.mu.Lock()
	conn := m.conn
	if conn == nil {
		m.queue = append(m.queue, payload)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, payload)
	m.writeMu.Unlock()
	if err != nil {
		m.mu.Lock()
		m.queue = append(m.queue, payload)
		m.mu.Unlock()
		m.onDisconnect(conn, err)
	}
}

func (m *Manager) stageMetrics(update func(*pendingMetrics)) {
	m.mu.Lock()
	update(&m.pending)
	m.mu.Unlock()
}

// flushMetrics sends the staged scroll/time batch. Nothing staged, nothing
// sent; disconnected managers keep the batch staged.
func (m *Manager) flushMetrics() {
	m.mu.Lock()
	if m.conn == nil || (!m.pending.hasScroll && !m.pending.hasTime) {
		m.mu.Unlock()
		return
	}
	metrics := make(map[string]float64, 2)
	if m.pending.hasScroll {
		metrics["scrollPercentage"] = m.pending.scroll
	}
	if m.pending.hasTime {
		metrics["timeOnPageSeconds"] = m.pending.timeOnPage
	}
	m.pending = pendingMetrics{}
	m.mu.Unlock()

	m.sendOrQueue(mustMarshal(map[string]interface{}{
		"type":    "metrics",
		"metrics": metrics,
	}))
}

// heartbeat keeps intermediary proxies from idling the socket out.
func (m *Manager) heartbeat() {
	m.mu.Lock()
	connected := m.conn != nil
	m.mu.Unlock()
	if connected {
		m.sendOrQueue(mustMarshal(map[string]string{"type": "ping"}))
	}
}

// timerLoop drives the heartbeat and flush cadences until stop.
func (m *Manager) timerLoop() {
	heartbeat := time.NewTicker(m.opts.HeartbeatInterval)
	flush := time.NewTicker(m.opts.FlushInterval)
	defer heartbeat.Stop()
	defer flush.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-heartbeat.C:
			m.heartbeat()
		case <-flush.C:
			m.flushMetrics()
		}
	}
}

// stop tears the manager down: timers cleared, socket closed with a normal
// close frame. Called when the last handle closes.
func (m *Manager) stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	close(m.done)
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "widget detached")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
