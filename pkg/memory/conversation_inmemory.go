// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryConversation keeps session histories in process memory. When a
// session limit is set, appending to a new session beyond it drops the
// session that was used least recently.
type InMemoryConversation struct {
	mu          sync.Mutex
	sessions    map[string]*list.Element
	lru         *list.List // front is the most recently used
	strategy    TruncationStrategy
	maxSessions int
	now         func() time.Time
}

type sessionHistory struct {
	id       string
	messages []ConversationMessage
}

// ConversationOption configures an InMemoryConversation.
type ConversationOption func(*InMemoryConversation)

// WithMaxSessions bounds the number of sessions kept; n <= 0 means no bound.
func WithMaxSessions(n int) ConversationOption {
	return func(m *InMemoryConversation) { m.maxSessions = n }
}

// NewInMemoryConversation returns an empty store. strategy is applied on
// read and may be nil to return every message.
func NewInMemoryConversation(strategy TruncationStrategy, opts ...ConversationOption) *InMemoryConversation {
	m := &InMemoryConversation{
		sessions: make(map[string]*list.Element),
		lru:      list.New(),
		strategy: strategy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AppendMessage fills the message id, session and timestamp when unset.
func (m *InMemoryConversation) AppendMessage(_ context.Context, sessionID string, msg ConversationMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.sessions[sessionID]
	if !ok {
		el = m.lru.PushFront(&sessionHistory{id: sessionID})
		m.sessions[sessionID] = el
		m.evict()
	} else {
		m.lru.MoveToFront(el)
	}
	h := el.Value.(*sessionHistory)
	h.messages = append(h.messages, msg)
	return nil
}

func (m *InMemoryConversation) evict() {
	if m.maxSessions <= 0 {
		return
	}
	for m.lru.Len() > m.maxSessions {
		oldest := m.lru.Back()
		m.lru.Remove(oldest)
		delete(m.sessions, oldest.Value.(*sessionHistory).id)
	}
}

// GetMessages returns a copy of the session history after truncation.
func (m *InMemoryConversation) GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error) {
	m.mu.Lock()
	var messages []ConversationMessage
	if el, ok := m.sessions[sessionID]; ok {
		m.lru.MoveToFront(el)
		messages = append(messages, el.Value.(*sessionHistory).messages...)
	}
	m.mu.Unlock()

	if m.strategy != nil && len(messages) > 0 {
		return m.strategy.Truncate(ctx, messages)
	}
	return messages, nil
}

// Clear forgets a session.
func (m *InMemoryConversation) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.sessions[sessionID]; ok {
		m.lru.Remove(el)
		delete(m.sessions, sessionID)
	}
	return nil
}

// ListSessions returns the ids of the sessions kept, sorted.
func (m *InMemoryConversation) ListSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ ConversationMemory = (*InMemoryConversation)(nil)
