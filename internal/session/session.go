package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/newsrag/config"
	"github.com/mohammad-safakhou/newsrag/models"
)

const keyPrefix = "chat:"

// appendRetries bounds optimistic retries when a concurrent writer touches the
// same session during Append.
const appendRetries = 5

var ErrAppendConflict = errors.New("session history changed concurrently")

// Dial connects to Redis and verifies the connection with a ping.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	if pong != "PONG" {
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// Store persists per-session chat histories in Redis under chat:<sessionID>,
// one JSON-encoded value per session with a TTL reset on every write.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create returns a new globally unique session identifier.
func (s *Store) Create() string {
	return uuid.NewString()
}

// Get returns the stored history. A missing or expired session yields an
// empty history; absence and emptiness are indistinguishable to callers.
func (s *Store) Get(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	data, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var history []models.ChatTurn
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decode session history: %w", err)
	}
	return history, nil
}

// Put replaces the whole stored history and restarts the TTL countdown.
// Concurrent Get+Put pairs for the same session race; the last writer wins
// (no version check). Use Append when that matters.
func (s *Store) Put(ctx context.Context, sessionID string, history []models.ChatTurn, ttl time.Duration) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode session history: %w", err)
	}
	return s.client.Set(ctx, keyPrefix+sessionID, data, ttl).Err()
}

// Clear removes the stored history immediately.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, keyPrefix+sessionID).Err()
}

// Append atomically appends turns to the stored history under optimistic
// locking (WATCH), retrying a bounded number of times on conflict.
func (s *Store) Append(ctx context.Context, sessionID string, ttl time.Duration, turns ...models.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	key := keyPrefix + sessionID

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		var history []models.ChatTurn
		if len(data) > 0 {
			if err := json.Unmarshal(data, &history); err != nil {
				return fmt.Errorf("decode session history: %w", err)
			}
		}
		history = append(history, turns...)
		encoded, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("encode session history: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < appendRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrAppendConflict
}
