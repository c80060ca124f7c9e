// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package websocket streams survey lifecycle events to browser clients.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/galdcup/internal/logging"
	"github.com/tomtom215/galdcup/internal/metrics"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypeSurveyOpened = "survey_opened"
	MessageTypeSurveyClosed = "survey_closed"
	MessageTypeVoteRecorded = "vote_recorded"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message is the envelope written to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. RunWithContext must be running for messages to flow.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is done, then closes every client.
//
// Shutdown is checked first, then client lifecycle events, then broadcasts,
// so client state is settled before any message is fanned out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Debug().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Debug().Int("total_clients", n).Msg("websocket client disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	count := h.GetClientCount()
	h.closeAllClients()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// broadcastToClients delivers in client id order. Clients whose buffer is
// full are dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedClients()
	var slow []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		close(client.send)
		delete(h.clients, client)
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
	}
	metrics.WSConnections.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
}

// sortedClients must be called with h.mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// BroadcastJSON queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastRaw forwards an already-encoded JSON payload.
func (h *Hub) BroadcastRaw(messageType string, payload []byte) {
	h.BroadcastJSON(messageType, json.RawMessage(payload))
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
