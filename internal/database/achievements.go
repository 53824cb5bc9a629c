package database

import (
	"context"
	"fmt"

	"github.com/intermernet/tabyslink/internal/ids"
)

// NewAchievement holds the fields of an awarded achievement.
type NewAchievement struct {
	UserID      string
	Title       string
	Description string
	Type        string
	BadgeIcon   string
	BadgeColor  string
	Points      int
	ClubID      string
	EventID     string
}

func (s *Service) CreateAchievement(ctx context.Context, db DBorTx, in NewAchievement) (*Achievement, error) {
	if !ValidAchievementType(in.Type) {
		return nil, fmt.Errorf("invalid achievement type %q", in.Type)
	}

	id := ids.New(ids.Achievement)
	query := `INSERT INTO achievements (id, user_id, title, description, type, badge_icon, badge_color, points, club_id, event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := db.ExecContext(ctx, query,
		id, in.UserID, in.Title, nullString(in.Description), in.Type,
		nullString(in.BadgeIcon), nullString(in.BadgeColor), in.Points,
		nullString(in.ClubID), nullString(in.EventID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert achievement: %w", err)
	}

	a := &Achievement{}
	err = db.QueryRowContext(ctx, `SELECT `+achievementColumns+` FROM achievements WHERE id = ?;`, id).Scan(achievementFields(a)...)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

const achievementColumns = `id, user_id, title, description, type, badge_icon, badge_color, points, club_id, event_id, earned_at`

func achievementFields(a *Achievement) []interface{} {
	return []interface{}{
		&a.ID, &a.UserID, &a.Title, &a.Description, &a.Type,
		&a.BadgeIcon, &a.BadgeColor, &a.Points, &a.ClubID, &a.EventID, &a.EarnedAt,
	}
}

// ListAchievementsByUserID returns the user's achievements, most recent first.
func (s *Service) ListAchievementsByUserID(ctx context.Context, db DBorTx, userID string) ([]*Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements WHERE user_id = ? ORDER BY earned_at DESC, rowid DESC;`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	achievements := []*Achievement{}
	for rows.Next() {
		a := &Achievement{}
		if err := rows.Scan(achievementFields(a)...); err != nil {
			return nil, err
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}
