package database

import (
	"database/sql"
	"time"
)

// Membership roles.
const (
	RoleMember    = "member"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

// RSVP statuses.
const (
	RSVPGoing    = "going"
	RSVPMaybe    = "maybe"
	RSVPNotGoing = "not_going"
)

// Event statuses. Events are created as upcoming; nothing in this service
// moves them to another status.
const (
	EventUpcoming  = "upcoming"
	EventOngoing   = "ongoing"
	EventCompleted = "completed"
	EventCancelled = "cancelled"
)

// Achievement types.
const (
	AchievementClubParticipation = "club_participation"
	AchievementEventAttendance   = "event_attendance"
	AchievementLeadership        = "leadership"
	AchievementCertificate       = "certificate"
)

// ValidRSVPStatus reports whether status is one of the three RSVP values.
func ValidRSVPStatus(status string) bool {
	switch status {
	case RSVPGoing, RSVPMaybe, RSVPNotGoing:
		return true
	}
	return false
}

// ValidEventStatus reports whether status is a known event status.
func ValidEventStatus(status string) bool {
	switch status {
	case EventUpcoming, EventOngoing, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// ValidAchievementType reports whether t is a known achievement type.
func ValidAchievementType(t string) bool {
	switch t {
	case AchievementClubParticipation, AchievementEventAttendance, AchievementLeadership, AchievementCertificate:
		return true
	}
	return false
}

// User represents a record in the 'users' table. PasswordHash is NULL for
// users who only ever signed in through Google.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash sql.NullString
	AvatarURL    sql.NullString
	SchoolName   sql.NullString
	Grade        sql.NullString
	Bio          sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Club represents a record in the 'clubs' table. MemberCount is a
// denormalized count of club_members rows, recomputed inside every write
// that changes membership.
type Club struct {
	ID          string
	Name        string
	Description sql.NullString
	Category    string
	ImageURL    sql.NullString
	CreatorID   string
	SchoolName  sql.NullString
	MemberCount int
	Rating      float64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ClubMember represents a record in the 'club_members' table.
type ClubMember struct {
	ID       string
	ClubID   string
	UserID   string
	Role     string
	JoinedAt time.Time

	// Populated by a JOIN in ListClubMembers; not part of the table.
	DisplayName string
	AvatarURL   sql.NullString
}

// Event represents a record in the 'events' table. CurrentParticipants is the
// denormalized count of "going" RSVPs.
type Event struct {
	ID                  string
	Title               string
	Description         sql.NullString
	ClubID              string
	CreatorID           string
	EventDate           time.Time
	Location            sql.NullString
	IsOnline            bool
	MeetingLink         sql.NullString
	MaxParticipants     sql.NullInt64
	CurrentParticipants int
	Status              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EventRSVP represents a record in the 'event_rsvp' table.
type EventRSVP struct {
	ID        string
	EventID   string
	UserID    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Achievement represents a record in the 'achievements' table.
type Achievement struct {
	ID          string
	UserID      string
	Title       string
	Description sql.NullString
	Type        string
	BadgeIcon   sql.NullString
	BadgeColor  sql.NullString
	Points      int
	ClubID      sql.NullString
	EventID     sql.NullString
	EarnedAt    time.Time
}

// AIChat represents a record in the 'ai_chats' table.
type AIChat struct {
	ID        string
	UserID    string
	ChatType  string
	Title     sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AIMessage represents a record in the 'ai_messages' table.
type AIMessage struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
