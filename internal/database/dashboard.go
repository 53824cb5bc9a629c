package database

import (
	"context"
	"fmt"
	"time"
)

// DashboardStats are the per-user counters shown on the dashboard.
type DashboardStats struct {
	Clubs             int
	UpcomingEvents    int
	Achievements      int
	AchievementPoints int
}

// GetDashboardStats counts the user's active clubs, the upcoming events they
// are going to, and their achievements.
func (s *Service) GetDashboardStats(ctx context.Context, db DBorTx, userID string, now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{}

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM club_members cm
		JOIN clubs c ON c.id = cm.club_id
		WHERE cm.user_id = ? AND c.is_active = 1;`, userID).Scan(&stats.Clubs)
	if err != nil {
		return nil, fmt.Errorf("count clubs: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM event_rsvp r
		JOIN events e ON e.id = r.event_id
		WHERE r.user_id = ? AND r.status = ? AND e.event_date >= ?;`,
		userID, RSVPGoing, now.UTC().Truncate(time.Second)).Scan(&stats.UpcomingEvents)
	if err != nil {
		return nil, fmt.Errorf("count upcoming events: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(points), 0) FROM achievements WHERE user_id = ?;`, userID).
		Scan(&stats.Achievements, &stats.AchievementPoints)
	if err != nil {
		return nil, fmt.Errorf("count achievements: %w", err)
	}

	return stats, nil
}
