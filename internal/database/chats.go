package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/intermernet/tabyslink/internal/ids"
)

// EnsureChat creates the chat row for (user, chatType) if it does not exist
// yet and bumps its updated_at otherwise.
func (s *Service) EnsureChat(ctx context.Context, tx *sql.Tx, chatID, userID, chatType, title string) error {
	query := `INSERT INTO ai_chats (id, user_id, chat_type, title) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP;`
	if _, err := tx.ExecContext(ctx, query, chatID, userID, chatType, nullString(title)); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	return nil
}

// AppendMessage adds one turn to a chat. An empty id gets a fresh one.
func (s *Service) AppendMessage(ctx context.Context, tx *sql.Tx, id, chatID, role, content string) (*AIMessage, error) {
	if id == "" {
		id = ids.New(ids.Message)
	}
	query := `INSERT INTO ai_messages (id, chat_id, role, content) VALUES (?, ?, ?, ?);`
	if _, err := tx.ExecContext(ctx, query, id, chatID, role, content); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	msg := &AIMessage{}
	err := tx.QueryRowContext(ctx, `SELECT id, chat_id, role, content, created_at FROM ai_messages WHERE id = ?;`, id).
		Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

// ListRecentMessages returns up to limit of the newest turns in a chat, in
// chronological order. A limit of zero or less returns every turn.
func (s *Service) ListRecentMessages(ctx context.Context, db DBorTx, chatID string, limit int) ([]*AIMessage, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `SELECT id, chat_id, role, content, created_at FROM ai_messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?;`
	rows, err := db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []*AIMessage{}
	for rows.Next() {
		msg := &AIMessage{}
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; callers want the transcript order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
