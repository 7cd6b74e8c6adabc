// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package distribution

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/caseguard/caseguard/internal/alerting"
	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates a hung operation during
	// shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types exchanged with websocket clients.
const (
	MessageTypeOutcome     = "outcome"
	MessageTypeAlert       = "alert"
	MessageTypeHeartbeat   = "heartbeat"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeSubscribed  = "subscribed"
)

// Message is the wire envelope for all hub traffic.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`

	// Routing scope, filled by the broadcast helpers and consulted when
	// fanning out. Not serialized.
	caseID      string
	fingerprint string
}

// HeartbeatData is sent with heartbeat messages so clients can verify
// liveness and see the subscriber population.
type HeartbeatData struct {
	Timestamp string `json:"timestamp"`
	Clients   int    `json:"clients"`
}

// Hub maintains the set of active clients and fans messages out to the
// subset whose subscription scope matches each message.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	// heartbeatInterval of zero disables heartbeats.
	heartbeatInterval time.Duration
}

// NewHub creates a hub. heartbeatInterval may be zero to disable the
// liveness ticker.
func NewHub(heartbeatInterval time.Duration) *Hub {
	return &Hub{
		broadcast:         make(chan Message, 256),
		Register:          make(chan *Client),
		Unregister:        make(chan *Client),
		clients:           make(map[*Client]bool),
		heartbeatInterval: heartbeatInterval,
	}
}

// RunWithContext starts the hub with context support for graceful
// shutdown. Designed for suture supervision: returns ctx.Err() once all
// clients have been closed.
//
// Uses priority-based selection so behavior is predictable when several
// channels are ready at once:
//   - Priority 1: context cancellation (shutdown)
//   - Priority 2: client lifecycle events (Register/Unregister)
//   - Priority 3: broadcasts and the heartbeat ticker
func (h *Hub) RunWithContext(ctx context.Context) error {
	var heartbeat <-chan time.Time
	if h.heartbeatInterval > 0 {
		ticker := time.NewTicker(h.heartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		// Priority 1: check for shutdown (non-blocking).
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle events (non-blocking).
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: broadcasts, heartbeats, or wait for any event.
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)

		case <-heartbeat:
			h.broadcastToClients(Message{
				Type: MessageTypeHeartbeat,
				Data: HeartbeatData{
					Timestamp: time.Now().UTC().Format(time.RFC3339),
					Clients:   h.ClientCount(),
				},
			})
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("subscriber connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("subscriber disconnected")
}

// logGracefulShutdown closes all clients and logs structured shutdown
// information. ctx.Err() is not logged as an error because cancellation
// is expected during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	reason := getShutdownReason(ctx)
	logging.Info().
		Str("component", "distribution-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("distribution hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// broadcastToClients delivers a message to every client whose scope
// matches, in deterministic ID order. Clients whose send buffer is full
// are dropped so one slow consumer cannot stall the hub.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	delivered := 0

	for _, client := range clients {
		if !client.wants(message) {
			continue
		}
		select {
		case client.send <- message:
			delivered++
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Msg("dropping slow subscriber, send buffer full")
	}
	if toRemove != nil {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
	if delivered > 0 {
		metrics.WebSocketMessages.WithLabelValues(message.Type).Add(float64(delivered))
	}
}

// closeAllClients closes clients in ID order for consistent shutdown
// behavior.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(0)
}

// BroadcastOutcome fans a detection outcome out to admin subscribers
// and to observers of the outcome's case or fingerprint.
func (h *Hub) BroadcastOutcome(outcome *detection.Outcome) {
	message := Message{
		Type:        MessageTypeOutcome,
		Data:        outcome,
		caseID:      outcome.CaseID,
		fingerprint: outcome.Fingerprint,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("event_id", outcome.EventID).Msg("broadcast channel full, dropping outcome")
	}
}

// BroadcastAlert fans an alert out to admin subscribers and to
// observers of the alert's case or fingerprint.
func (h *Hub) BroadcastAlert(alert *alerting.Alert) {
	message := Message{
		Type:        MessageTypeAlert,
		Data:        alert,
		caseID:      alert.CaseID,
		fingerprint: alert.Fingerprint,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("alert_id", alert.ID).Msg("broadcast channel full, dropping alert")
	}
}

// BroadcastJSON sends an unscoped message to all connected clients.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
