package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"citizen-assistant/internal/domain"
)

const defaultRedisPrefix = "assistant:"

// RedisStore keeps the conversation header (including context) as a JSON
// string and the messages as a list of JSON entries. Both keys share the
// TTL, which every append refreshes.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

type RedisOption func(*RedisStore)

func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore wraps an existing client. The caller owns the client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	s := &RedisStore{client: client, keyPrefix: defaultRedisPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks if the store is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) metaKey(userID string) string {
	return s.keyPrefix + "conv:" + userID
}

func (s *RedisStore) messagesKey(userID string) string {
	return s.keyPrefix + "msgs:" + userID
}

// header is the stored conversation without its messages.
type header struct {
	ID          string                     `json:"id"`
	UserID      string                     `json:"userId"`
	Context     domain.ConversationContext `json:"context"`
	CreatedAt   time.Time                  `json:"createdAt"`
	LastUpdated time.Time                  `json:"lastUpdated"`
}

// stringGetter is satisfied by both the client and a watched *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readHeader(ctx context.Context, c stringGetter, key string) (header, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return header{}, ErrNotFound
	}
	if err != nil {
		return header{}, err
	}
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return header{}, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*domain.Conversation, error) {
	h, err := readHeader(ctx, s.client, s.metaKey(userID))
	if err != nil {
		return nil, fmt.Errorf("repository: Get: %w", err)
	}
	raw, err := s.client.LRange(ctx, s.messagesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: Get messages: %w", err)
	}
	conv := domain.Conversation{
		ID:          h.ID,
		UserID:      h.UserID,
		Context:     h.Context,
		CreatedAt:   h.CreatedAt,
		LastUpdated: h.LastUpdated,
		Messages:    make([]domain.Message, 0, len(raw)),
	}
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("repository: Get decode message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	return &conv, nil
}

func encodeMessages(msgs []domain.Message) ([]any, error) {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Create watches the header key, so a conversation created by another
// process between the existence check and the write fails with ErrConflict.
func (s *RedisStore) Create(ctx context.Context, conv domain.Conversation) error {
	if conv.UserID == "" {
		return errors.New("repository: Create: user id is required")
	}
	h, err := json.Marshal(header{
		ID:          conv.ID,
		UserID:      conv.UserID,
		Context:     conv.Context,
		CreatedAt:   conv.CreatedAt,
		LastUpdated: conv.LastUpdated,
	})
	if err != nil {
		return fmt.Errorf("repository: Create: %w", err)
	}
	msgs, err := encodeMessages(conv.Messages)
	if err != nil {
		return fmt.Errorf("repository: Create: %w", err)
	}
	metaKey, msgsKey := s.metaKey(conv.UserID), s.messagesKey(conv.UserID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, metaKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, msgsKey)
			pipe.Set(ctx, metaKey, h, s.ttl)
			if len(msgs) > 0 {
				pipe.RPush(ctx, msgsKey, msgs...)
				pipe.Expire(ctx, msgsKey, s.ttl)
			}
			return nil
		})
		return err
	}, metaKey)
	if errors.Is(err, redis.TxFailedErr) {
		err = ErrConflict
	}
	if err != nil {
		return fmt.Errorf("repository: Create: %w", err)
	}
	return nil
}

// Append runs as an optimistic transaction on the header key, so a
// concurrent writer makes it fail with redis.TxFailedErr rather than
// interleave.
func (s *RedisStore) Append(ctx context.Context, userID string, update domain.ConversationContext, msgs ...domain.Message) (*domain.Conversation, error) {
	metaKey, msgsKey := s.metaKey(userID), s.messagesKey(userID)
	encoded, err := encodeMessages(msgs)
	if err != nil {
		return nil, fmt.Errorf("repository: Append: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		h, err := readHeader(ctx, tx, metaKey)
		if err != nil {
			return err
		}
		conv := domain.Conversation{Context: h.Context, LastUpdated: h.LastUpdated}
		apply(&conv, update, msgs)
		h.Context, h.LastUpdated = conv.Context, conv.LastUpdated
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, metaKey, data, s.ttl)
			if len(encoded) > 0 {
				pipe.RPush(ctx, msgsKey, encoded...)
			}
			pipe.Expire(ctx, msgsKey, s.ttl)
			return nil
		})
		return err
	}, metaKey)
	if err != nil {
		return nil, fmt.Errorf("repository: Append: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.metaKey(userID), s.messagesKey(userID)).Err(); err != nil {
		return fmt.Errorf("repository: Clear: %w", err)
	}
	return nil
}

var _ ConversationStore = (*RedisStore)(nil)
