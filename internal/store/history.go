// Package store keeps the conversation history the UI layer owns and hands
// to each orchestrator turn.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"github.com/rahul/tabpilot/internal/llm"
)

// MemoryPath keeps the database in process memory only.
const MemoryPath = ":memory:"

type ConversationStore struct {
	DB *sql.DB
}

// NewConversationStore opens the sqlite database at dbPath. An empty path
// means MemoryPath.
func NewConversationStore(dbPath string) (*ConversationStore, error) {
	if dbPath == "" {
		dbPath = MemoryPath
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}
	return &ConversationStore{DB: db}, nil
}

func (s *ConversationStore) Close() error {
	return s.DB.Close()
}

// Append stores a message. A message without an id gets one.
func (s *ConversationStore) Append(ctx context.Context, chatID string, msg llm.ChatMessage) (llm.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	query := `INSERT INTO messages (id, chat_id, type, content) VALUES (?, ?, ?, ?)`
	if _, err := s.DB.ExecContext(ctx, query, msg.ID, chatID, string(msg.Type), msg.Content); err != nil {
		return msg, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// History returns the last limit messages of a chat, oldest first. A limit
// of zero or less returns everything.
func (s *ConversationStore) History(ctx context.Context, chatID string, limit int) ([]llm.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, type, content FROM messages WHERE chat_id = ? ORDER BY seq DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llm.ChatMessage
	for rows.Next() {
		var m llm.ChatMessage
		var typ string
		if err := rows.Scan(&m.ID, &typ, &m.Content); err != nil {
			return nil, err
		}
		m.Type = llm.ChatMessageType(typ)
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// Clear forgets a chat.
func (s *ConversationStore) Clear(ctx context.Context, chatID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	return err
}
