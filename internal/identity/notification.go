// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package identity

import (
	"log/slog"
	"sync"

	"github.com/olegiv/voluntr-go/internal/model"
)

// EventKind identifies an authentication state change.
type EventKind string

// Notification kinds delivered to subscribers.
const (
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventUserUpdated      EventKind = "USER_UPDATED"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
)

// notificationBuffer is the capacity of each client notification channel.
const notificationBuffer = 16

// Notification is an authentication state change for one user.
// Session is nil when the change leaves the user signed out.
type Notification struct {
	Kind    EventKind      `json:"event"`
	Session *model.Session `json:"session"`
}

// Hub fans out notifications to the subscribers of each user.
// Deliveries to one subscriber keep the order in which Publish was called.
type Hub struct {
	mu     sync.Mutex
	subs   map[int64]map[int]chan<- Notification
	nextID int
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[int64]map[int]chan<- Notification),
		logger: logger,
	}
}

// Subscribe registers ch for notifications about userID.
// The returned function removes the subscription; it is safe to call twice.
func (h *Hub) Subscribe(userID int64, ch chan<- Notification) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan<- Notification)
	}
	h.subs[userID][id] = ch

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
		})
	}
}

// Publish delivers n to every subscriber of userID without blocking.
// A subscriber whose buffer is full misses the notification.
func (h *Hub) Publish(userID int64, n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs[userID] {
		select {
		case ch <- n:
		default:
			h.logger.Warn("auth notification dropped",
				"category", "auth", "user_id", userID, "subscriber", id, "event", n.Kind)
		}
	}
}

// Subscribers returns the number of subscriptions for userID.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
