// Package store persists conversations and their utterances in Redis.
//
// Layout, per conversation:
//
//	conversation:<id>          hash  {id, user_id, created_at, metadata}
//	conversation:<id>:messages list  JSON {role, content, timestamp}
//
// The message list is append-only; entries are never mutated or removed.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Conversation is the metadata record created once per session.
type Conversation struct {
	ID        string
	UserID    string
	CreatedAt float64 // unix seconds
	Metadata  map[string]string
}

// Message is one utterance in a conversation's append log.
type Message struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"` // unix seconds
}

// Store is a Redis-backed conversation log. The client connects lazily on
// first command and is safe for concurrent use across sessions.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// Open parses the Redis URL and constructs the store. No connection is made
// here; go-redis dials on first use.
func Open(url string, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Store{client: redis.NewClient(opts), logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies the server is reachable. Callers that want connection
// failures surfaced at session start rather than first append use this.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func conversationKey(id string) string { return "conversation:" + id }
func messagesKey(id string) string     { return "conversation:" + id + ":messages" }

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// CreateConversation persists a fresh conversation record and returns its
// generated identifier. A connection fault fails the caller.
func (s *Store) CreateConversation(ctx context.Context, userID string, metadata map[string]string) (string, error) {
	id := uuid.NewString()

	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal conversation metadata: %w", err)
	}

	fields := map[string]any{
		"id":         id,
		"user_id":    userID,
		"created_at": strconv.FormatFloat(unixSeconds(time.Now()), 'f', 3, 64),
		"metadata":   string(meta),
	}
	if err := s.client.HSet(ctx, conversationKey(id), fields).Err(); err != nil {
		return "", fmt.Errorf("create conversation %s: %w", id, err)
	}

	s.logger.Info("conversation created", zap.String("conversation_id", id), zap.String("user_id", userID))
	return id, nil
}

// AddMessage appends one utterance to the conversation's ordered log. The
// referenced conversation is not checked for existence; the append succeeds
// regardless (the orchestrator creates the conversation before the relay
// fires, so the check would only mask wiring bugs).
func (s *Store) AddMessage(ctx context.Context, convID, role, content string, at time.Time) error {
	msg := Message{Role: role, Content: content, Timestamp: unixSeconds(at)}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.client.RPush(ctx, messagesKey(convID), b).Err(); err != nil {
		return fmt.Errorf("append message to %s: %w", convID, err)
	}
	return nil
}

// Messages returns the conversation's utterances in insertion order.
func (s *Store) Messages(ctx context.Context, convID string) ([]Message, error) {
	raw, err := s.client.LRange(ctx, messagesKey(convID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read messages of %s: %w", convID, err)
	}
	msgs := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode message of %s: %w", convID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Conversation reads back a conversation's metadata record.
func (s *Store) Conversation(ctx context.Context, convID string) (*Conversation, error) {
	fields, err := s.client.HGetAll(ctx, conversationKey(convID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", convID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("conversation not found: %s", convID)
	}

	c := &Conversation{ID: fields["id"], UserID: fields["user_id"]}
	if v := fields["created_at"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CreatedAt = f
		}
	}
	if v := fields["metadata"]; v != "" {
		if err := json.Unmarshal([]byte(v), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", convID, err)
		}
	}
	return c, nil
}
