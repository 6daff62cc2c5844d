// Package repository persists per-user conversations. Backends share the
// ConversationStore contract: one conversation per user, messages are only
// ever appended, and the context is merged on every append.
package repository

import (
	"context"
	"errors"
	"time"

	"citizen-assistant/internal/domain"
)

var (
	// ErrNotFound is returned when a user has no live conversation.
	ErrNotFound = errors.New("repository: conversation not found")
	// ErrConflict is returned by Create when the user already has a live
	// conversation, typically one created by a concurrent writer.
	ErrConflict = errors.New("repository: conversation already exists")
)

// DefaultTTL is how long an idle conversation is kept.
const DefaultTTL = 24 * time.Hour

// ConversationStore holds one conversation per user.
type ConversationStore interface {
	// Get returns the user's conversation or ErrNotFound.
	Get(ctx context.Context, userID string) (*domain.Conversation, error)
	// Create stores a new conversation with its messages in one write. It
	// returns ErrConflict when the user already has a live conversation.
	Create(ctx context.Context, conv domain.Conversation) error
	// Append adds msgs in order, merges update into the context and
	// returns the stored result. It returns ErrNotFound when nothing exists.
	Append(ctx context.Context, userID string, update domain.ConversationContext, msgs ...domain.Message) (*domain.Conversation, error)
	// Clear removes the user's conversation. Clearing a missing one is not an error.
	Clear(ctx context.Context, userID string) error
}

// apply folds an append into conv in place.
func apply(conv *domain.Conversation, update domain.ConversationContext, msgs []domain.Message) {
	conv.Messages = append(conv.Messages, msgs...)
	conv.Context.Merge(update)
	for _, m := range msgs {
		if m.Timestamp.After(conv.LastUpdated) {
			conv.LastUpdated = m.Timestamp
		}
	}
}
