package assistant

import (
	"context"
	"database/sql"

	"github.com/intermernet/tabyslink/internal/database"
)

// DBStore keeps conversations in the ai_chats and ai_messages tables.
type DBStore struct {
	db *database.Service
}

func NewDBStore(db *database.Service) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) RecentTurns(ctx context.Context, chatID string, limit int) ([]Turn, error) {
	messages, err := s.db.ListRecentMessages(ctx, s.db.DB(), chatID, limit)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, Turn{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return turns, nil
}

func (s *DBStore) SaveTurns(ctx context.Context, chatID, userID, chatType, title string, turns []Turn) error {
	return s.db.Write(ctx, func(tx *sql.Tx) error {
		if err := s.db.EnsureChat(ctx, tx, chatID, userID, chatType, title); err != nil {
			return err
		}
		for _, t := range turns {
			if _, err := s.db.AppendMessage(ctx, tx, t.ID, chatID, t.Role, t.Content); err != nil {
				return err
			}
		}
		return nil
	})
}
