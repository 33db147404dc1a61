// ABOUTME: SQLite-backed wire trace for framed JSON-RPC messages
// ABOUTME: Records sessions and every message crossing a transport for diagnostics

package trace

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jerinthomascarmel/Exp/internal/logger"
	"github.com/jerinthomascarmel/Exp/internal/xdg"
)

//go:embed schema.sql
var schemaSQL string

// DefaultPath is the trace database location when tracing is requested
// without an explicit path.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome(), "trace.db")
}

// Store writes wire traffic to a SQLite database. A Store bound to a
// session id satisfies the transport Recorder interface.
type Store struct {
	conn *sql.DB
}

// Open opens or creates the trace database.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	// WAL mode keeps trace writes from stalling the read loop
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create trace schema: %w", err)
	}

	logger.Debug("trace database initialized at %s", path)
	return &Store{conn: conn}, nil
}

func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// NewSession registers a session and returns its id.
func (s *Store) NewSession(command string) (string, error) {
	sessionID := "sess_" + uuid.New().String()[:8]
	_, err := s.conn.Exec(
		"INSERT INTO sessions (id, command) VALUES (?, ?)",
		sessionID, command,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create trace session: %w", err)
	}
	return sessionID, nil
}

// CloseSession marks a session as closed.
func (s *Store) CloseSession(sessionID string) error {
	_, err := s.conn.Exec(
		"UPDATE sessions SET closed_at = CURRENT_TIMESTAMP WHERE id = ?",
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close trace session: %w", err)
	}
	return nil
}

// Record logs one framed message with its direction relative to the
// local endpoint, extracting method/id/type for the indexed columns.
func (s *Store) Record(sessionID, direction string, rawMessage []byte) error {
	var messageType, method, jsonrpcID string

	var msg map[string]interface{}
	if err := json.Unmarshal(rawMessage, &msg); err == nil {
		switch {
		case msg["method"] != nil:
			messageType = "request"
			method, _ = msg["method"].(string)
		case msg["result"] != nil:
			messageType = "response"
		case msg["error"] != nil:
			messageType = "error"
		}
		switch v := msg["id"].(type) {
		case float64:
			jsonrpcID = fmt.Sprintf("%d", int64(v))
		case string:
			jsonrpcID = v
		}
	}

	_, err := s.conn.Exec(
		`INSERT INTO messages (session_id, direction, message_type, method, jsonrpc_id, raw_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, direction, messageType, method, jsonrpcID, string(rawMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// Message is one logged wire message.
type Message struct {
	ID          int64
	SessionID   string
	Direction   string
	MessageType string
	Method      string
	JSONRPCId   string
	RawMessage  string
	Timestamp   time.Time
}

// SessionMessages retrieves every message for a session in wire order.
func (s *Store) SessionMessages(sessionID string) ([]Message, error) {
	rows, err := s.conn.Query(
		`SELECT id, session_id, direction, message_type, method, jsonrpc_id, raw_message, timestamp
		 FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var messageType, method, jsonrpcID sql.NullString

		if err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &messageType, &method, &jsonrpcID, &m.RawMessage, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.MessageType = messageType.String
		m.Method = method.String
		m.JSONRPCId = jsonrpcID.String

		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MessageCount reports how many messages a session has logged.
func (s *Store) MessageCount(sessionID string) (int, error) {
	var n int
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// SessionRecorder binds a Store to one session so it can be attached to
// a transport as its Recorder.
type SessionRecorder struct {
	store     *Store
	sessionID string
}

func NewSessionRecorder(store *Store, sessionID string) *SessionRecorder {
	return &SessionRecorder{store: store, sessionID: sessionID}
}

// Record implements the transport Recorder contract. Trace failures are
// logged, never propagated into the protocol path.
func (r *SessionRecorder) Record(direction string, payload []byte) {
	if err := r.store.Record(r.sessionID, direction, payload); err != nil {
		logger.Warn("trace: %v", err)
	}
}
