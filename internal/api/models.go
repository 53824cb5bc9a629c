package api

import (
	"database/sql"
	"time"

	"github.com/intermernet/tabyslink/internal/database"
)

// nullableString turns a NULL column into a JSON null.
func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// UserResponse is the DTO for a user's own profile. The password hash is
// never exposed.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl"`
	SchoolName  *string   `json:"schoolName"`
	Grade       *string   `json:"grade"`
	Bio         *string   `json:"bio"`
	HasPassword bool      `json:"hasPassword"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toUserResponse(user *database.User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		AvatarURL:   nullableString(user.AvatarURL),
		SchoolName:  nullableString(user.SchoolName),
		Grade:       nullableString(user.Grade),
		Bio:         nullableString(user.Bio),
		HasPassword: user.PasswordHash.Valid && user.PasswordHash.String != "",
		CreatedAt:   user.CreatedAt,
	}
}

// ClubResponse is the DTO for a club.
type ClubResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Category    string    `json:"category"`
	ImageURL    *string   `json:"imageUrl"`
	CreatorID   string    `json:"creatorId"`
	SchoolName  *string   `json:"schoolName"`
	MemberCount int       `json:"memberCount"`
	Rating      float64   `json:"rating"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toClubResponse(club *database.Club) ClubResponse {
	return ClubResponse{
		ID:          club.ID,
		Name:        club.Name,
		Description: nullableString(club.Description),
		Category:    club.Category,
		ImageURL:    nullableString(club.ImageURL),
		CreatorID:   club.CreatorID,
		SchoolName:  nullableString(club.SchoolName),
		MemberCount: club.MemberCount,
		Rating:      club.Rating,
		IsActive:    club.IsActive,
		CreatedAt:   club.CreatedAt,
		UpdatedAt:   club.UpdatedAt,
	}
}

func toClubResponseList(clubs []*database.Club) []ClubResponse {
	out := make([]ClubResponse, len(clubs))
	for i, c := range clubs {
		out[i] = toClubResponse(c)
	}
	return out
}

// MemberResponse is a club member together with their public profile.
type MemberResponse struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

func toMemberResponseList(members []*database.ClubMember) []MemberResponse {
	out := make([]MemberResponse, len(members))
	for i, m := range members {
		out[i] = MemberResponse{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			AvatarURL:   nullableString(m.AvatarURL),
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
		}
	}
	return out
}

// EventResponse is the DTO for an event. MaxParticipants is null when the
// event has no cap.
type EventResponse struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         *string   `json:"description"`
	ClubID              string    `json:"clubId"`
	CreatorID           string    `json:"creatorId"`
	EventDate           time.Time `json:"eventDate"`
	Location            *string   `json:"location"`
	IsOnline            bool      `json:"isOnline"`
	MeetingLink         *string   `json:"meetingLink"`
	MaxParticipants     *int64    `json:"maxParticipants"`
	CurrentParticipants int       `json:"currentParticipants"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"createdAt"`
}

func toEventResponse(event *database.Event) EventResponse {
	var maxParticipants *int64
	if event.MaxParticipants.Valid {
		n := event.MaxParticipants.Int64
		maxParticipants = &n
	}
	return EventResponse{
		ID:                  event.ID,
		Title:               event.Title,
		Description:         nullableString(event.Description),
		ClubID:              event.ClubID,
		CreatorID:           event.CreatorID,
		EventDate:           event.EventDate,
		Location:            nullableString(event.Location),
		IsOnline:            event.IsOnline,
		MeetingLink:         nullableString(event.MeetingLink),
		MaxParticipants:     maxParticipants,
		CurrentParticipants: event.CurrentParticipants,
		Status:              event.Status,
		CreatedAt:           event.CreatedAt,
	}
}

func toEventResponseList(events []*database.Event) []EventResponse {
	out := make([]EventResponse, len(events))
	for i, e := range events {
		out[i] = toEventResponse(e)
	}
	return out
}

// RSVPResponse is the DTO for one user's response to an event.
type RSVPResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toRSVPResponse(rsvp *database.EventRSVP) RSVPResponse {
	return RSVPResponse{
		ID:        rsvp.ID,
		EventID:   rsvp.EventID,
		UserID:    rsvp.UserID,
		Status:    rsvp.Status,
		UpdatedAt: rsvp.UpdatedAt,
	}
}

func toRSVPResponseList(rsvps []*database.EventRSVP) []RSVPResponse {
	out := make([]RSVPResponse, len(rsvps))
	for i, r := range rsvps {
		out[i] = toRSVPResponse(r)
	}
	return out
}

// AchievementResponse is the DTO for an earned achievement.
type AchievementResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Type        string    `json:"type"`
	BadgeIcon   *string   `json:"badgeIcon"`
	BadgeColor  *string   `json:"badgeColor"`
	Points      int       `json:"points"`
	ClubID      *string   `json:"clubId"`
	EventID     *string   `json:"eventId"`
	EarnedAt    time.Time `json:"earnedAt"`
}

func toAchievementResponse(a *database.Achievement) AchievementResponse {
	return AchievementResponse{
		ID:          a.ID,
		Title:       a.Title,
		Description: nullableString(a.Description),
		Type:        a.Type,
		BadgeIcon:   nullableString(a.BadgeIcon),
		BadgeColor:  nullableString(a.BadgeColor),
		Points:      a.Points,
		ClubID:      nullableString(a.ClubID),
		EventID:     nullableString(a.EventID),
		EarnedAt:    a.EarnedAt,
	}
}
