package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// DefaultConversationTTL matches spec.md §6.3's "optional TTL ~7 days".
const DefaultConversationTTL = 7 * 24 * time.Hour

// ConversationStore persists ConversationContext records in Redis, keyed
// "conversation:<id>", with a TTL refreshed on every upsert.
type ConversationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewConversationStore parses redisURL (e.g. "redis://host:6379/0") and
// connects.
func NewConversationStore(ctx context.Context, redisURL string, ttl time.Duration) (*ConversationStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperr.Store("parse redis url", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperr.Store("ping redis", err)
	}
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &ConversationStore{client: client, ttl: ttl}, nil
}

func (s *ConversationStore) Close() error { return s.client.Close() }

func key(id string) string { return "conversation:" + id }

// Upsert stores the conversation, bumping UpdatedAt and refreshing the TTL.
func (s *ConversationStore) Upsert(ctx context.Context, conv *model.ConversationContext) error {
	conv.UpdatedAt = time.Now()
	data, err := json.Marshal(conv)
	if err != nil {
		return apperr.Store("encode conversation", err)
	}
	if err := s.client.Set(ctx, key(conv.ID), data, s.ttl).Err(); err != nil {
		return apperr.Store("upsert conversation", err)
	}
	return nil
}

// Get returns nil, nil on a miss, per spec.md §4.2's not-found contract.
func (s *ConversationStore) Get(ctx context.Context, id string) (*model.ConversationContext, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperr.Store("get conversation", err)
	}
	var conv model.ConversationContext
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, apperr.Store("decode conversation", err)
	}
	return &conv, nil
}

// Delete removes a conversation. Deleting a non-existent key is not an
// error.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return apperr.Store("delete conversation", err)
	}
	return nil
}
