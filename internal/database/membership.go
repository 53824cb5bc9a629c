package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/intermernet/tabyslink/internal/ids"
)

// JoinClub adds userID to clubID as a plain member and re-derives the club's
// member_count from the membership rows, all inside tx.
//
// It returns ErrNotFound for an unknown club, ErrClubInactive for a
// soft-deleted one and ErrAlreadyMember when the pair already exists; in
// each of those cases nothing is written.
func (s *Service) JoinClub(ctx context.Context, tx *sql.Tx, clubID, userID string) (*Club, error) {
	club, err := s.GetClubByID(ctx, tx, clubID)
	if err != nil {
		return nil, err
	}
	if !club.IsActive {
		return nil, ErrClubInactive
	}

	isMember, err := s.IsClubMember(ctx, tx, clubID, userID)
	if err != nil {
		return nil, err
	}
	if isMember {
		return nil, ErrAlreadyMember
	}

	// The UNIQUE (club_id, user_id) constraint still backs this up for
	// writers outside this process.
	if err := s.addMember(ctx, tx, clubID, userID, RoleMember); err != nil {
		return nil, err
	}
	if err := s.refreshMemberCount(ctx, tx, clubID); err != nil {
		return nil, err
	}
	return s.GetClubByID(ctx, tx, clubID)
}

func (s *Service) addMember(ctx context.Context, tx *sql.Tx, clubID, userID, role string) error {
	query := `INSERT INTO club_members (id, club_id, user_id, role) VALUES (?, ?, ?, ?);`
	if _, err := tx.ExecContext(ctx, query, ids.New(ids.Member), clubID, userID, role); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("insert club member: %w", err)
	}
	return nil
}

// refreshMemberCount sets member_count to the true number of membership rows.
func (s *Service) refreshMemberCount(ctx context.Context, tx *sql.Tx, clubID string) error {
	query := `UPDATE clubs
		SET member_count = (SELECT COUNT(*) FROM club_members WHERE club_id = ?),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?;`
	if _, err := tx.ExecContext(ctx, query, clubID, clubID); err != nil {
		return fmt.Errorf("refresh member count: %w", err)
	}
	return nil
}

func (s *Service) IsClubMember(ctx context.Context, db DBorTx, clubID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM club_members WHERE club_id = ? AND user_id = ?);`
	var exists bool
	if err := db.QueryRowContext(ctx, query, clubID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// CountClubMembers counts membership rows for a club.
func (s *Service) CountClubMembers(ctx context.Context, db DBorTx, clubID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM club_members WHERE club_id = ?;`, clubID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// ListClubMembers returns the members of a club with their display names,
// admins first, then in join order.
func (s *Service) ListClubMembers(ctx context.Context, db DBorTx, clubID string) ([]*ClubMember, error) {
	query := `
		SELECT cm.id, cm.club_id, cm.user_id, cm.role, cm.joined_at, u.display_name, u.avatar_url
		FROM club_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.club_id = ?
		ORDER BY CASE cm.role WHEN 'admin' THEN 0 WHEN 'moderator' THEN 1 ELSE 2 END, cm.joined_at, cm.rowid;`

	rows, err := db.QueryContext(ctx, query, clubID)
	if err != nil {
		return nil, fmt.Errorf("list club members: %w", err)
	}
	defer rows.Close()

	members := []*ClubMember{}
	for rows.Next() {
		m := &ClubMember{}
		if err := rows.Scan(&m.ID, &m.ClubID, &m.UserID, &m.Role, &m.JoinedAt, &m.DisplayName, &m.AvatarURL); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
