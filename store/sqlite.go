package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	direction  TEXT NOT NULL CHECK (direction IN ('Sent', 'Received')),
	message    TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
`

// SQLiteStore keeps the log in a single SQLite table.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts options

	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the messages table exists. An empty path selects DefaultPath.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultPath
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, newStoreError(DriverSQLite, "open", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, newStoreError(DriverSQLite, "open", err)
	}
	// One connection is the serialization point for writers and keeps
	// ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newStoreError(DriverSQLite, "open", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, newStoreError(DriverSQLite, "schema", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewSQLiteStore",
		"path":     path,
	}).Info("Message store opened")

	return &SQLiteStore{db: db, path: path, opts: buildOptions(opts)}, nil
}

// Path returns the database file backing the store.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Append inserts one record. The insert runs to completion even if ctx is
// cancelled mid-way, so a returned error always means nothing was written.
func (s *SQLiteStore) Append(ctx context.Context, direction Direction, payload string) (Message, error) {
	if err := validateAppend(DriverSQLite, direction); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, newStoreError(DriverSQLite, "append", ErrClosed)
	}

	msg := Message{
		Direction: direction,
		Payload:   payload,
		Timestamp: s.opts.timeProvider.Now(),
		SessionID: s.opts.sessionID,
	}

	res, err := s.db.ExecContext(context.WithoutCancel(ctx), `
		INSERT INTO messages (direction, message, session_id, created_at)
		VALUES (?, ?, ?, ?)
	`, string(msg.Direction), msg.Payload, msg.SessionID, msg.Timestamp)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "SQLiteStore.Append",
			"direction": direction,
			"error":     err.Error(),
		}).Error("Failed to insert message")
		return Message{}, newStoreError(DriverSQLite, "append", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, newStoreError(DriverSQLite, "append", err)
	}
	msg.ID = id
	return msg, nil
}

// Query returns matching records ordered by id.
func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]Message, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, newStoreError(DriverSQLite, "query", ErrClosed)
	}

	var (
		where []string
		args  []any
	)
	if filter.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(filter.Direction))
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, filter.AfterID)
	}

	query := "SELECT id, direction, message, session_id, created_at FROM messages"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newStoreError(DriverSQLite, "query", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			m         Message
			direction string
		)
		if err := rows.Scan(&m.ID, &direction, &m.Payload, &m.SessionID, &m.Timestamp); err != nil {
			return nil, newStoreError(DriverSQLite, "query", err)
		}
		m.Direction = Direction(direction)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError(DriverSQLite, "query", err)
	}
	return messages, nil
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return newStoreError(DriverSQLite, "close", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SQLiteStore.Close",
		"path":     s.path,
	}).Debug("Message store closed")
	return nil
}
