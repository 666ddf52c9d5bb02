package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore keeps the log in a Redis sorted set scored by message id.
// The id sequence lives in a companion counter key.
type RedisStore struct {
	client *redis.Client
	key    string
	opts   options

	mu     sync.Mutex
	closed bool
}

// redisRecord is the JSON form of a Message inside the sorted set.
type redisRecord struct {
	ID        int64     `json:"id"`
	Direction string    `json:"direction"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRedisStore connects to addr, which may be a host:port or a redis:// URL.
func NewRedisStore(ctx context.Context, addr, key string, opts ...Option) (*RedisStore, error) {
	if addr == "" {
		return nil, newStoreError(DriverRedis, "open", errors.New("redis address required"))
	}
	if key == "" {
		key = DefaultRedisKey
	}

	var clientOpts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, newStoreError(DriverRedis, "open", err)
		}
		clientOpts = parsed
	} else {
		clientOpts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(clientOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, newStoreError(DriverRedis, "open", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRedisStore",
		"addr":     clientOpts.Addr,
		"key":      key,
	}).Info("Message store opened")

	return &RedisStore{client: client, key: key, opts: buildOptions(opts)}, nil
}

func (s *RedisStore) seqKey() string {
	return s.key + ":seq"
}

// Append allocates the next id and adds the record to the sorted set. INCR
// and ZADD are separate commands, so a failed ZADD leaves a gap in the ids.
func (s *RedisStore) Append(ctx context.Context, direction Direction, payload string) (Message, error) {
	if err := validateAppend(DriverRedis, direction); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, newStoreError(DriverRedis, "append", ErrClosed)
	}

	ctx = context.WithoutCancel(ctx)

	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return Message{}, newStoreError(DriverRedis, "append", err)
	}

	msg := Message{
		ID:        id,
		Direction: direction,
		Payload:   payload,
		Timestamp: s.opts.timeProvider.Now(),
		SessionID: s.opts.sessionID,
	}

	data, err := json.Marshal(redisRecord{
		ID:        msg.ID,
		Direction: string(msg.Direction),
		Message:   msg.Payload,
		SessionID: msg.SessionID,
		CreatedAt: msg.Timestamp,
	})
	if err != nil {
		return Message{}, newStoreError(DriverRedis, "append", err)
	}

	if err := s.client.ZAdd(ctx, s.key, redis.Z{Score: float64(id), Member: data}).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "RedisStore.Append",
			"direction": direction,
			"id":        id,
			"error":     err.Error(),
		}).Error("Failed to add message")
		return Message{}, newStoreError(DriverRedis, "append", err)
	}
	return msg, nil
}

// Query returns matching records ordered by id.
func (s *RedisStore) Query(ctx context.Context, filter Filter) ([]Message, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, newStoreError(DriverRedis, "query", ErrClosed)
	}

	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", filter.AfterID),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, newStoreError(DriverRedis, "query", err)
	}

	result := make([]Message, 0, len(members))
	for _, member := range members {
		var rec redisRecord
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			return nil, newStoreError(DriverRedis, "query", fmt.Errorf("decode record: %w", err))
		}
		m := Message{
			ID:        rec.ID,
			Direction: Direction(rec.Direction),
			Payload:   rec.Message,
			Timestamp: rec.CreatedAt,
			SessionID: rec.SessionID,
		}
		if !filter.matches(m) {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// Close closes the client connection. It is safe to call more than once.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.client.Close(); err != nil {
		return newStoreError(DriverRedis, "close", err)
	}
	return nil
}
