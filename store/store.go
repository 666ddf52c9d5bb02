package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Direction records which way a message travelled.
type Direction string

const (
	// DirectionSent marks a message written to the stream by this party.
	DirectionSent Direction = "Sent"
	// DirectionReceived marks a message read from the stream.
	DirectionReceived Direction = "Received"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionSent || d == DirectionReceived
}

func (d Direction) String() string {
	return string(d)
}

// ParseDirection accepts "sent"/"received" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent":
		return DirectionSent, nil
	case "received":
		return DirectionReceived, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// Message is one immutable record in the log.
type Message struct {
	ID        int64
	Direction Direction
	Payload   string
	Timestamp time.Time
	SessionID string
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Direction Direction
	SessionID string
	// AfterID returns only records with ID > AfterID.
	AfterID int64
	// Limit caps the number of records; 0 means no cap.
	Limit int
}

func (f Filter) matches(m Message) bool {
	if f.Direction != "" && m.Direction != f.Direction {
		return false
	}
	if f.SessionID != "" && m.SessionID != f.SessionID {
		return false
	}
	return m.ID > f.AfterID
}

// Store is the append-only message log.
type Store interface {
	// Append persists one record and returns it with its assigned id.
	Append(ctx context.Context, direction Direction, payload string) (Message, error)
	// Query returns matching records ordered by id ascending.
	Query(ctx context.Context, filter Filter) ([]Message, error)
	// Close releases the underlying medium. Further appends fail with ErrClosed.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// DefaultPath is the SQLite file used when none is configured.
const DefaultPath = "messages.db"

// DefaultRedisKey is the list key used when none is configured.
const DefaultRedisKey = "btchat:messages"

// Config selects and parameterizes a driver.
type Config struct {
	Driver    string
	Path      string
	RedisAddr string
	RedisKey  string
}

type options struct {
	sessionID    string
	timeProvider TimeProvider
}

// Option customizes a store at open time.
type Option func(*options)

// WithSessionID stamps every appended record with id.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithTimeProvider overrides the clock used for record timestamps.
func WithTimeProvider(tp TimeProvider) Option {
	return func(o *options) { o.timeProvider = tp }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.timeProvider = getTimeProvider(o.timeProvider)
	return o
}

// Open creates the store described by cfg. An empty driver selects SQLite.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"driver":   driver,
		"path":     cfg.Path,
	}).Debug("Opening message store")

	switch driver {
	case DriverSQLite:
		return NewSQLiteStore(ctx, cfg.Path, opts...)
	case DriverRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisKey, opts...)
	case DriverMemory:
		return NewMemoryStore(opts...), nil
	default:
		return nil, newStoreError(driver, "open", fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver))
	}
}

func validateAppend(driver string, direction Direction) error {
	if !direction.Valid() {
		return newStoreError(driver, "append", fmt.Errorf("%w: %q", ErrInvalidDirection, direction))
	}
	return nil
}
