package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/intermernet/tabyslink/internal/ids"
)

const clubColumns = `c.id, c.name, c.description, c.category, c.image_url, c.creator_id, c.school_name,
	c.member_count, c.rating, c.is_active, c.created_at, c.updated_at`

func scanClub(row rowScanner) (*Club, error) {
	club := &Club{}
	err := row.Scan(
		&club.ID,
		&club.Name,
		&club.Description,
		&club.Category,
		&club.ImageURL,
		&club.CreatorID,
		&club.SchoolName,
		&club.MemberCount,
		&club.Rating,
		&club.IsActive,
		&club.CreatedAt,
		&club.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return club, nil
}

func scanClubs(rows *sql.Rows) ([]*Club, error) {
	defer rows.Close()

	clubs := []*Club{}
	for rows.Next() {
		club, err := scanClub(rows)
		if err != nil {
			return nil, err
		}
		clubs = append(clubs, club)
	}
	return clubs, rows.Err()
}

// NewClub holds the fields supplied when a club is created.
type NewClub struct {
	Name        string
	Description string
	Category    string
	ImageURL    string
	SchoolName  string
	CreatorID   string
}

// CreateClub inserts an active club and adds its creator as the first
// member with the admin role. It must run inside a write transaction so the
// club never exists without its owner.
func (s *Service) CreateClub(ctx context.Context, tx *sql.Tx, in NewClub) (*Club, error) {
	clubID := ids.New(ids.Club)
	query := `INSERT INTO clubs (id, name, description, category, image_url, creator_id, school_name, member_count, rating, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 1);`
	_, err := tx.ExecContext(ctx, query,
		clubID, in.Name, nullString(in.Description), strings.ToLower(in.Category),
		nullString(in.ImageURL), in.CreatorID, nullString(in.SchoolName),
	)
	if err != nil {
		return nil, fmt.Errorf("insert club: %w", err)
	}

	if err := s.addMember(ctx, tx, clubID, in.CreatorID, RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.refreshMemberCount(ctx, tx, clubID); err != nil {
		return nil, err
	}
	return s.GetClubByID(ctx, tx, clubID)
}

// GetClubByID returns the club whether or not it is active.
func (s *Service) GetClubByID(ctx context.Context, db DBorTx, id string) (*Club, error) {
	query := `SELECT ` + clubColumns + ` FROM clubs c WHERE c.id = ?;`
	return scanClub(db.QueryRowContext(ctx, query, id))
}

// ListActiveClubs returns every active club, newest first.
func (s *Service) ListActiveClubs(ctx context.Context, db DBorTx) ([]*Club, error) {
	query := `SELECT ` + clubColumns + ` FROM clubs c
		WHERE c.is_active = 1
		ORDER BY c.created_at DESC, c.rowid DESC;`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list clubs: %w", err)
	}
	return scanClubs(rows)
}

// ListClubsByUserID returns the active clubs the user belongs to.
func (s *Service) ListClubsByUserID(ctx context.Context, db DBorTx, userID string) ([]*Club, error) {
	query := `SELECT ` + clubColumns + ` FROM clubs c
		JOIN club_members cm ON cm.club_id = c.id
		WHERE cm.user_id = ? AND c.is_active = 1
		ORDER BY cm.joined_at DESC, cm.rowid DESC;`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list user clubs: %w", err)
	}
	return scanClubs(rows)
}

// ClubUpdate lists the club fields to change. Nil fields are left as they are.
type ClubUpdate struct {
	Name        *string
	Description *string
	Category    *string
	ImageURL    *string
}

// UpdateClub applies a partial update to an active club.
func (s *Service) UpdateClub(ctx context.Context, db DBorTx, clubID string, update ClubUpdate) error {
	var queryBuilder strings.Builder
	queryBuilder.WriteString("UPDATE clubs SET updated_at = CURRENT_TIMESTAMP")

	var args []interface{}
	if update.Name != nil {
		queryBuilder.WriteString(", name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		queryBuilder.WriteString(", description = ?")
		args = append(args, nullString(*update.Description))
	}
	if update.Category != nil {
		queryBuilder.WriteString(", category = ?")
		args = append(args, strings.ToLower(*update.Category))
	}
	if update.ImageURL != nil {
		queryBuilder.WriteString(", image_url = ?")
		args = append(args, nullString(*update.ImageURL))
	}
	queryBuilder.WriteString(" WHERE id = ? AND is_active = 1;")
	args = append(args, clubID)

	res, err := db.ExecContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return fmt.Errorf("update club: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateClub hides a club from listings. Rows are never deleted.
func (s *Service) DeactivateClub(ctx context.Context, db DBorTx, clubID string) error {
	query := `UPDATE clubs SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_active = 1;`
	res, err := db.ExecContext(ctx, query, clubID)
	if err != nil {
		return fmt.Errorf("deactivate club: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
