package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/intermernet/tabyslink/internal/database"
	"github.com/intermernet/tabyslink/internal/realtime"
	"github.com/intermernet/tabyslink/internal/search"
)

// handleGetClubs lists active clubs, newest first, filtered by ?q= and ?category=.
func (s *Server) handleGetClubs(w http.ResponseWriter, r *http.Request) {
	clubs, err := s.db.ListActiveClubs(r.Context(), s.db.DB())
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	clubs = search.Clubs(clubs, q.Get("q"), q.Get("category"))
	s.writeJSON(w, http.StatusOK, envelope{"clubs": toClubResponseList(clubs)})
}

func (s *Server) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{"categories": search.Categories()})
}

// handleCreateClub creates a club owned by the caller, who becomes its
// first member with the admin role.
func (s *Server) handleCreateClub(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Category    string `json:"category"`
		ImageURL    string `json:"imageUrl"`
	}
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" || payload.Category == "" {
		s.errorJSON(w, errors.New("name and category are required"), http.StatusBadRequest)
		return
	}
	if !search.ValidClubCategory(payload.Category) {
		s.errorJSON(w, fmt.Errorf("unknown category %q", payload.Category), http.StatusBadRequest)
		return
	}
	if payload.ImageURL == "" {
		payload.ImageURL = s.config.DefaultClubImageURL
	}

	ctx := r.Context()
	var club *database.Club
	err = s.db.Write(ctx, func(tx *sql.Tx) error {
		creator, err := s.db.GetUserByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		school := s.config.DefaultSchoolName
		if creator.SchoolName.Valid && creator.SchoolName.String != "" {
			school = creator.SchoolName.String
		}

		club, err = s.db.CreateClub(ctx, tx, database.NewClub{
			Name:        payload.Name,
			Description: strings.TrimSpace(payload.Description),
			Category:    payload.Category,
			ImageURL:    payload.ImageURL,
			SchoolName:  school,
			CreatorID:   userID,
		})
		return err
	})
	if err != nil {
		log.Printf("ERROR: creating club for user %s: %v", userID, err)
		s.errorJSON(w, errors.New("could not create club"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, envelope{"club": toClubResponse(club)})
}

// loadActiveClub fetches the club named in the URL and writes a 404 when it
// is missing or soft-deleted.
func (s *Server) loadActiveClub(w http.ResponseWriter, r *http.Request) (*database.Club, bool) {
	club, err := s.db.GetClubByID(r.Context(), s.db.DB(), chi.URLParam(r, "clubID"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, errors.New("club not found"), http.StatusNotFound)
			return nil, false
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return nil, false
	}
	if !club.IsActive {
		s.errorJSON(w, errors.New("club not found"), http.StatusNotFound)
		return nil, false
	}
	return club, true
}

func (s *Server) handleGetClub(w http.ResponseWriter, r *http.Request) {
	club, ok := s.loadActiveClub(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"club": toClubResponse(club)})
}

func (s *Server) handleGetClubMembers(w http.ResponseWriter, r *http.Request) {
	club, ok := s.loadActiveClub(w, r)
	if !ok {
		return
	}
	members, err := s.db.ListClubMembers(r.Context(), s.db.DB(), club.ID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"members": toMemberResponseList(members)})
}

// handleUpdateClub lets the creator edit the club's details.
func (s *Server) handleUpdateClub(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	club, ok := s.loadActiveClub(w, r)
	if !ok {
		return
	}
	if club.CreatorID != userID {
		s.errorJSON(w, errors.New("forbidden: only the club creator can edit it"), http.StatusForbidden)
		return
	}

	var payload struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Category    *string `json:"category"`
		ImageURL    *string `json:"imageUrl"`
	}
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if payload.Name != nil && strings.TrimSpace(*payload.Name) == "" {
		s.errorJSON(w, errors.New("name must not be empty"), http.StatusBadRequest)
		return
	}
	if payload.Category != nil && !search.ValidClubCategory(*payload.Category) {
		s.errorJSON(w, fmt.Errorf("unknown category %q", *payload.Category), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	err = s.db.Write(ctx, func(tx *sql.Tx) error {
		err := s.db.UpdateClub(ctx, tx, club.ID, database.ClubUpdate{
			Name:        payload.Name,
			Description: payload.Description,
			Category:    payload.Category,
			ImageURL:    payload.ImageURL,
		})
		if err != nil {
			return err
		}
		club, err = s.db.GetClubByID(ctx, tx, club.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, errors.New("club not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"club": toClubResponse(club)})
}

// handleDeleteClub soft-deletes a club. Only its creator may do this.
func (s *Server) handleDeleteClub(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	club, ok := s.loadActiveClub(w, r)
	if !ok {
		return
	}
	if club.CreatorID != userID {
		s.errorJSON(w, errors.New("forbidden: only the club creator can delete it"), http.StatusForbidden)
		return
	}

	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		return s.db.DeactivateClub(r.Context(), tx, club.ID)
	})
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"message": "club deleted"})
}

// handleJoinClub adds the caller to a club. Membership and member_count
// change together in one transaction; joining twice is a 409 and writes
// nothing.
func (s *Server) handleJoinClub(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	clubID := chi.URLParam(r, "clubID")

	var club *database.Club
	err = s.db.Write(ctx, func(tx *sql.Tx) error {
		var err error
		club, err = s.db.JoinClub(ctx, tx, clubID, userID)
		return err
	})
	switch {
	case err == nil:
		s.metrics.ClubJoins.WithLabelValues("joined").Inc()
	case errors.Is(err, database.ErrAlreadyMember):
		s.metrics.ClubJoins.WithLabelValues("already_member").Inc()
		s.errorJSON(w, errors.New("you are already a member of this club"), http.StatusConflict)
		return
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrClubInactive):
		s.errorJSON(w, errors.New("club not found"), http.StatusNotFound)
		return
	default:
		log.Printf("ERROR: user %s joining club %s: %v", userID, clubID, err)
		s.errorJSON(w, errors.New("could not join club"), http.StatusInternalServerError)
		return
	}

	s.notifyMemberJoined(ctx, club, userID)

	s.writeJSON(w, http.StatusOK, envelope{"club": toClubResponse(club)})
}

// notifyMemberJoined tells the club's creator about a new member over SSE,
// falling back to email when they have no open stream. Failures are logged.
func (s *Server) notifyMemberJoined(ctx context.Context, club *database.Club, memberID string) {
	if club.CreatorID == memberID {
		return
	}

	member, err := s.db.GetUserByID(ctx, s.db.DB(), memberID)
	if err != nil {
		log.Printf("WARN: loading member %s for notification: %v", memberID, err)
		return
	}

	delivered := s.broker.NotifyUser(club.CreatorID, realtime.Message{
		Type: realtime.TypeMemberJoined,
		Payload: realtime.MemberJoinedPayload{
			ClubID:      club.ID,
			ClubName:    club.Name,
			UserID:      member.ID,
			DisplayName: member.DisplayName,
			MemberCount: club.MemberCount,
		},
	})
	if delivered || s.email == nil {
		return
	}

	creator, err := s.db.GetUserByID(ctx, s.db.DB(), club.CreatorID)
	if err != nil {
		log.Printf("WARN: loading club creator %s for email: %v", club.CreatorID, err)
		return
	}
	clubURL := fmt.Sprintf("%s/clubs/%s", s.config.FrontendURL, club.ID)
	go func(to, name, clubName string, count int) {
		if err := s.email.SendMemberJoinedEmail(to, name, clubName, clubURL, count); err != nil {
			log.Printf("ERROR: Failed to send member-joined email to %s: %v", to, err)
		}
	}(creator.Email, member.DisplayName, club.Name, club.MemberCount)
}

// handleAwardAchievement lets a club's creator award an achievement to one
// of its members.
func (s *Server) handleAwardAchievement(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	club, ok := s.loadActiveClub(w, r)
	if !ok {
		return
	}
	if club.CreatorID != userID {
		s.errorJSON(w, errors.New("forbidden: only the club creator can award achievements"), http.StatusForbidden)
		return
	}

	var payload struct {
		UserID      string `json:"userId"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Type        string `json:"type"`
		BadgeIcon   string `json:"badgeIcon"`
		BadgeColor  string `json:"badgeColor"`
		Points      int    `json:"points"`
		EventID     string `json:"eventId"`
	}
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if payload.UserID == "" || strings.TrimSpace(payload.Title) == "" {
		s.errorJSON(w, errors.New("userId and title are required"), http.StatusBadRequest)
		return
	}
	if !database.ValidAchievementType(payload.Type) {
		s.errorJSON(w, fmt.Errorf("unknown achievement type %q", payload.Type), http.StatusBadRequest)
		return
	}
	if payload.Points < 0 {
		s.errorJSON(w, errors.New("points must not be negative"), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var achievement *database.Achievement
	err = s.db.Write(ctx, func(tx *sql.Tx) error {
		isMember, err := s.db.IsClubMember(ctx, tx, club.ID, payload.UserID)
		if err != nil {
			return err
		}
		if !isMember {
			return database.ErrNotFound
		}
		achievement, err = s.db.CreateAchievement(ctx, tx, database.NewAchievement{
			UserID:      payload.UserID,
			Title:       strings.TrimSpace(payload.Title),
			Description: payload.Description,
			Type:        payload.Type,
			BadgeIcon:   payload.BadgeIcon,
			BadgeColor:  payload.BadgeColor,
			Points:      payload.Points,
			ClubID:      club.ID,
			EventID:     payload.EventID,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, errors.New("user is not a member of this club"), http.StatusBadRequest)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, envelope{"achievement": toAchievementResponse(achievement)})
}
