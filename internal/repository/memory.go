package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"citizen-assistant/internal/domain"
)

type memoryEntry struct {
	conv    domain.Conversation
	touched time.Time
}

// MemoryStore keeps conversations in process memory. Conversations idle
// for longer than the TTL are treated as absent and dropped on access or Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the time source used for TTL checks.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a store. A non-positive ttl disables eviction.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) expired(e memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.touched) > s.ttl
}

// live returns the user's entry, evicting it if it has expired. Callers hold mu.
func (s *MemoryStore) live(userID string) (memoryEntry, bool) {
	e, ok := s.entries[userID]
	if !ok {
		return memoryEntry{}, false
	}
	if s.expired(e, s.now()) {
		delete(s.entries, userID)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(userID)
	if !ok {
		return nil, fmt.Errorf("repository: Get %q: %w", userID, ErrNotFound)
	}
	out := e.conv.Clone()
	return &out, nil
}

func (s *MemoryStore) Create(_ context.Context, conv domain.Conversation) error {
	if conv.UserID == "" {
		return errors.New("repository: Create: user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(conv.UserID); ok {
		return fmt.Errorf("repository: Create %q: %w", conv.UserID, ErrConflict)
	}
	s.entries[conv.UserID] = memoryEntry{conv: conv.Clone(), touched: s.now()}
	return nil
}

func (s *MemoryStore) Append(_ context.Context, userID string, update domain.ConversationContext, msgs ...domain.Message) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(userID)
	if !ok {
		return nil, fmt.Errorf("repository: Append %q: %w", userID, ErrNotFound)
	}
	apply(&e.conv, update, msgs)
	e.touched = s.now()
	s.entries[userID] = e
	out := e.conv.Clone()
	return &out, nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

// Sweep drops every expired conversation and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports how many conversations are held, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ ConversationStore = (*MemoryStore)(nil)
