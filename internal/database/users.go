package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/intermernet/tabyslink/internal/ids"
)

const userColumns = `id, email, display_name, password_hash, avatar_url, school_name, grade, bio, created_at, updated_at`

func scanUser(row rowScanner) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.SchoolName,
		&user.Grade,
		&user.Bio,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

// CreateUser inserts a user. An empty passwordHash is stored as NULL for
// OAuth-only accounts. A duplicate email yields ErrEmailTaken.
func (s *Service) CreateUser(ctx context.Context, db DBorTx, email, displayName, passwordHash string) (*User, error) {
	id := ids.New(ids.User)
	query := `INSERT INTO users (id, email, display_name, password_hash) VALUES (?, ?, ?, ?);`
	if _, err := db.ExecContext(ctx, query, id, normalizeEmail(email), displayName, nullString(passwordHash)); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUserByID(ctx, db, id)
}

// GetUserByEmail returns ErrNotFound when no user has the address.
func (s *Service) GetUserByEmail(ctx context.Context, db DBorTx, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?;`
	return scanUser(db.QueryRowContext(ctx, query, normalizeEmail(email)))
}

func (s *Service) GetUserByID(ctx context.Context, db DBorTx, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?;`
	return scanUser(db.QueryRowContext(ctx, query, id))
}

// ProfileUpdate lists the profile fields to change. Nil fields are left as they are.
type ProfileUpdate struct {
	DisplayName  *string
	SchoolName   *string
	Grade        *string
	Bio          *string
	PasswordHash *string
}

func (u ProfileUpdate) empty() bool {
	return u.DisplayName == nil && u.SchoolName == nil && u.Grade == nil && u.Bio == nil && u.PasswordHash == nil
}

// UpdateUserProfile applies a partial profile update.
func (s *Service) UpdateUserProfile(ctx context.Context, db DBorTx, userID string, update ProfileUpdate) error {
	if update.empty() {
		return nil
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString("UPDATE users SET updated_at = CURRENT_TIMESTAMP")

	var args []interface{}
	set := func(column string, value interface{}) {
		queryBuilder.WriteString(", " + column + " = ?")
		args = append(args, value)
	}
	if update.DisplayName != nil {
		set("display_name", *update.DisplayName)
	}
	if update.SchoolName != nil {
		set("school_name", nullString(*update.SchoolName))
	}
	if update.Grade != nil {
		set("grade", nullString(*update.Grade))
	}
	if update.Bio != nil {
		set("bio", nullString(*update.Bio))
	}
	if update.PasswordHash != nil {
		set("password_hash", nullString(*update.PasswordHash))
	}

	queryBuilder.WriteString(" WHERE id = ?;")
	args = append(args, userID)

	res, err := db.ExecContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserAvatar updates the avatar_url for a specific user.
func (s *Service) UpdateUserAvatar(ctx context.Context, db DBorTx, userID, avatarURL string) error {
	query := `UPDATE users SET avatar_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	res, err := db.ExecContext(ctx, query, nullString(avatarURL), userID)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
