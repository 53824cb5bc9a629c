package api

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/intermernet/tabyslink/internal/auth"
	"github.com/intermernet/tabyslink/internal/database"
)

// dashboardUpcomingLimit is how many upcoming events the dashboard lists.
const dashboardUpcomingLimit = 3

// handleGetMyProfile returns the signed-in user's profile.
func (s *Server) handleGetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	user, err := s.db.GetUserByID(r.Context(), s.db.DB(), userID)
	if err != nil {
		// A valid token for a user that no longer exists.
		if errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, errors.New("user not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"user": toUserResponse(user)})
}

// handleUpdateMyProfile applies profile edits and password changes.
func (s *Server) handleUpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	var payload struct {
		DisplayName *string `json:"displayName"`
		SchoolName  *string `json:"schoolName"`
		Grade       *string `json:"grade"`
		Bio         *string `json:"bio"`
		OldPassword string  `json:"oldPassword"`
		NewPassword string  `json:"newPassword"`
	}
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	update := database.ProfileUpdate{
		DisplayName: payload.DisplayName,
		SchoolName:  payload.SchoolName,
		Grade:       payload.Grade,
		Bio:         payload.Bio,
	}
	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" {
			s.errorJSON(w, errors.New("displayName must not be empty"), http.StatusBadRequest)
			return
		}
		update.DisplayName = &name
	}
	if update == (database.ProfileUpdate{}) && payload.NewPassword == "" {
		s.errorJSON(w, errors.New("no changes provided"), http.StatusBadRequest)
		return
	}

	user, err := s.db.GetUserByID(r.Context(), s.db.DB(), userID)
	if err != nil {
		s.errorJSON(w, errors.New("user not found"), http.StatusNotFound)
		return
	}

	if payload.NewPassword != "" {
		if !user.PasswordHash.Valid {
			s.errorJSON(w, errors.New("cannot change password for OAuth user"), http.StatusBadRequest)
			return
		}
		if payload.OldPassword == "" {
			s.errorJSON(w, errors.New("old password is required to set a new one"), http.StatusBadRequest)
			return
		}
		if !auth.CheckPasswordHash(payload.OldPassword, user.PasswordHash.String) {
			s.errorJSON(w, errors.New("incorrect old password"), http.StatusUnauthorized)
			return
		}
		if len(payload.NewPassword) < auth.MinPasswordLength {
			s.errorJSON(w, fmt.Errorf("new password must be at least %d characters", auth.MinPasswordLength), http.StatusBadRequest)
			return
		}
		hashedPassword, err := auth.HashPassword(payload.NewPassword)
		if err != nil {
			s.errorJSON(w, errors.New("failed to hash new password"), http.StatusInternalServerError)
			return
		}
		update.PasswordHash = &hashedPassword
	}

	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		if err := s.db.UpdateUserProfile(r.Context(), tx, userID, update); err != nil {
			return err
		}
		user, err = s.db.GetUserByID(r.Context(), tx, userID)
		return err
	})
	if err != nil {
		s.errorJSON(w, errors.New("failed to update profile"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"user": toUserResponse(user)})
}

var allowedAvatarExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// handleUpdateMyAvatar stores an uploaded image and points the profile at it.
func (s *Server) handleUpdateMyAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)
	if err := r.ParseMultipartForm(5 << 20); err != nil {
		s.errorJSON(w, errors.New("file is too large (max 5MB)"), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		s.errorJSON(w, errors.New("invalid file upload: 'avatar' field is missing"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedAvatarExts[ext] {
		s.errorJSON(w, errors.New("invalid file type: only jpg, png, gif, webp are allowed"), http.StatusBadRequest)
		return
	}
	newFileName := fmt.Sprintf("user_avatar_%s_%d%s", userID, s.now().UnixNano(), ext)
	newFilePath := filepath.Join(s.config.AvatarPath, newFileName)

	dst, err := os.Create(newFilePath)
	if err != nil {
		log.Printf("ERROR: creating avatar file %s: %v", newFilePath, err)
		s.errorJSON(w, errors.New("could not save file"), http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		s.errorJSON(w, errors.New("could not write file to disk"), http.StatusInternalServerError)
		return
	}

	// Served by the /public/avatars file server.
	publicAvatarURL := "/public/avatars/" + newFileName

	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		return s.db.UpdateUserAvatar(r.Context(), tx, userID, publicAvatarURL)
	})
	if err != nil {
		os.Remove(newFilePath)
		s.errorJSON(w, errors.New("failed to update avatar"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"avatarUrl": publicAvatarURL})
}

// handleGetMyClubs lists the active clubs the user belongs to.
func (s *Server) handleGetMyClubs(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	clubs, err := s.db.ListClubsByUserID(r.Context(), s.db.DB(), userID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"clubs": toClubResponseList(clubs)})
}

// handleGetMyAchievements lists the user's achievements, newest first.
func (s *Server) handleGetMyAchievements(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	achievements, err := s.db.ListAchievementsByUserID(r.Context(), s.db.DB(), userID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	out := make([]AchievementResponse, len(achievements))
	for i, a := range achievements {
		out[i] = toAchievementResponse(a)
	}
	s.writeJSON(w, http.StatusOK, envelope{"achievements": out})
}

// handleGetDashboard returns the user's counters and next few events.
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	now := s.now()
	stats, err := s.db.GetDashboardStats(r.Context(), s.db.DB(), userID, now)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	upcoming, err := s.db.ListUpcomingEventsForUser(r.Context(), s.db.DB(), userID, now, dashboardUpcomingLimit)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{
		"stats": envelope{
			"clubs":             stats.Clubs,
			"upcomingEvents":    stats.UpcomingEvents,
			"achievements":      stats.Achievements,
			"achievementPoints": stats.AchievementPoints,
		},
		"upcomingEvents": toEventResponseList(upcoming),
	})
}
