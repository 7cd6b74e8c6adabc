// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package distribution

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/caseguard/caseguard/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // control messages only, clients never push data
)

// clientIDCounter generates unique, monotonically increasing IDs so
// clients can be sorted into a consistent broadcast order.
var clientIDCounter atomic.Uint64

// Scope is the subscription payload of subscribe and unsubscribe
// control messages.
type Scope struct {
	// Admin subscribes to every outcome and alert.
	Admin bool `json:"admin,omitempty"`

	// Cases subscribes to outcomes and alerts for specific cases.
	Cases []string `json:"cases,omitempty"`

	// Fingerprints follows specific visitors across cases.
	Fingerprints []string `json:"fingerprints,omitempty"`
}

// controlMessage is the inbound envelope read from clients.
type controlMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is a middleman between one websocket connection and the hub.
// Its subscription scope starts empty; until the client subscribes it
// receives only heartbeats and unscoped messages.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	mu           sync.RWMutex
	admin        bool
	cases        map[string]struct{}
	fingerprints map[string]struct{}
}

// NewClient creates a client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:           clientIDCounter.Add(1),
		hub:          hub,
		conn:         conn,
		send:         make(chan Message, 256),
		cases:        make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Subscribe widens the client's scope.
func (c *Client) Subscribe(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if scope.Admin {
		c.admin = true
	}
	for _, id := range scope.Cases {
		c.cases[id] = struct{}{}
	}
	for _, fp := range scope.Fingerprints {
		c.fingerprints[fp] = struct{}{}
	}
}

// Unsubscribe narrows the client's scope.
func (c *Client) Unsubscribe(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if scope.Admin {
		c.admin = false
	}
	for _, id := range scope.Cases {
		delete(c.cases, id)
	}
	for _, fp := range scope.Fingerprints {
		delete(c.fingerprints, fp)
	}
}

// scope returns a snapshot of the current subscription for
// acknowledgment messages.
func (c *Client) scope() Scope {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Scope{Admin: c.admin}
	for id := range c.cases {
		s.Cases = append(s.Cases, id)
	}
	for fp := range c.fingerprints {
		s.Fingerprints = append(s.Fingerprints, fp)
	}
	return s
}

// wants reports whether the client's subscription matches a message.
// Unscoped messages (heartbeats, acknowledgments) go to everyone.
func (c *Client) wants(message Message) bool {
	if message.caseID == "" && message.fingerprint == "" {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.admin {
		return true
	}
	if message.caseID != "" {
		if _, ok := c.cases[message.caseID]; ok {
			return true
		}
	}
	if message.fingerprint != "" {
		if _, ok := c.fingerprints[message.fingerprint]; ok {
			return true
		}
	}
	return false
}

// readPump pumps control messages from the websocket connection to the
// client's subscription state.
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
		var msg controlMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}

		c.handleControl(msg)
	}
}

func (c *Client) handleControl(msg controlMessage) {
	switch msg.Type {
	case MessageTypePing:
		c.enqueue(Message{Type: MessageTypePong})

	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		var scope Scope
		if err := json.Unmarshal(msg.Data, &scope); err != nil {
			logging.Warn().Err(err).Str("message_type", msg.Type).Msg("malformed subscription payload")
			return
		}
		if msg.Type == MessageTypeSubscribe {
			c.Subscribe(scope)
		} else {
			c.Unsubscribe(scope)
		}
		c.enqueue(Message{Type: MessageTypeSubscribed, Data: c.scope()})
	}
}

// enqueue offers a message to the send channel without blocking the
// read loop.
func (c *Client) enqueue(message Message) {
	select {
	case c.send <- message:
	default:
	}
}

// writePump pumps messages from the hub to the websocket connection.
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
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write JSON message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
