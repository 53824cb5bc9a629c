package api

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	googleOauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/intermernet/tabyslink/internal/auth"
	"github.com/intermernet/tabyslink/internal/database"
)

type registerUserPayload struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type loginUserPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// --- OAUTH LOGIC ---

// generateStateOauthCookie sets a random CSRF state as an HttpOnly cookie.
func generateStateOauthCookie(w http.ResponseWriter) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

// handleGoogleLogin redirects the user to Google's consent page.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauthConfig == nil {
		s.errorJSON(w, errors.New("google login is not enabled"), http.StatusNotFound)
		return
	}
	state, err := generateStateOauthCookie(w)
	if err != nil {
		s.errorJSON(w, errors.New("could not start login"), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, s.oauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// handleGoogleCallback finishes the OAuth flow, creating the user on first
// sign-in, and hands the session token to the front-end.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauthConfig == nil {
		s.errorJSON(w, errors.New("google login is not enabled"), http.StatusNotFound)
		return
	}

	oauthState, err := r.Cookie("oauthstate")
	if err != nil || r.FormValue("state") != oauthState.Value {
		s.errorJSON(w, errors.New("invalid oauth state"), http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	token, err := s.oauthConfig.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		s.errorJSON(w, fmt.Errorf("failed to exchange code for token: %w", err), http.StatusInternalServerError)
		return
	}

	oauth2Service, err := googleOauth2.NewService(ctx, option.WithTokenSource(s.oauthConfig.TokenSource(ctx, token)))
	if err != nil {
		s.errorJSON(w, fmt.Errorf("failed to create oauth service: %w", err), http.StatusInternalServerError)
		return
	}
	userInfo, err := oauth2Service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		s.errorJSON(w, fmt.Errorf("failed to get user info: %w", err), http.StatusInternalServerError)
		return
	}

	user, err := s.findOrCreateOAuthUser(ctx, userInfo.Email, userInfo.Name)
	if err != nil {
		log.Printf("ERROR: google sign-in for %s: %v", userInfo.Email, err)
		s.errorJSON(w, errors.New("failed to create user"), http.StatusInternalServerError)
		return
	}

	appToken, err := auth.GenerateJWT(user.ID, s.config.JwtSecret)
	if err != nil {
		s.errorJSON(w, errors.New("could not generate token"), http.StatusInternalServerError)
		return
	}

	redirectURL := fmt.Sprintf("%s/auth/callback?token=%s", s.config.FrontendURL, url.QueryEscape(appToken))
	http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
}

// findOrCreateOAuthUser upserts a password-less user by email.
func (s *Server) findOrCreateOAuthUser(ctx context.Context, email, name string) (*database.User, error) {
	var user *database.User
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		var err error
		user, err = s.db.GetUserByEmail(ctx, tx, email)
		if errors.Is(err, database.ErrNotFound) {
			if name == "" {
				name = strings.SplitN(email, "@", 2)[0]
			}
			user, err = s.db.CreateUser(ctx, tx, email, name, "")
		}
		return err
	})
	return user, err
}

// --- PASSWORD-BASED AUTH ---

// handleRegisterUser creates an email/password account and signs it in.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var payload registerUserPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	payload.DisplayName = strings.TrimSpace(payload.DisplayName)
	payload.Email = strings.TrimSpace(payload.Email)
	if payload.Email == "" || payload.Password == "" || payload.DisplayName == "" {
		s.errorJSON(w, errors.New("displayName, email, and password are required"), http.StatusBadRequest)
		return
	}
	if !strings.Contains(payload.Email, "@") {
		s.errorJSON(w, errors.New("email address is not valid"), http.StatusBadRequest)
		return
	}
	if len(payload.Password) < auth.MinPasswordLength {
		s.errorJSON(w, fmt.Errorf("password must be at least %d characters long", auth.MinPasswordLength), http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(payload.Password)
	if err != nil {
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}

	var user *database.User
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		var err error
		user, err = s.db.CreateUser(r.Context(), tx, payload.Email, payload.DisplayName, hashedPassword)
		return err
	})
	if errors.Is(err, database.ErrEmailTaken) {
		s.errorJSON(w, errors.New("a user with this email address already exists"), http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("ERROR: registering %s: %v", payload.Email, err)
		s.errorJSON(w, errors.New("could not create user"), http.StatusInternalServerError)
		return
	}

	tokenString, err := auth.GenerateJWT(user.ID, s.config.JwtSecret)
	if err != nil {
		s.errorJSON(w, errors.New("could not generate token"), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, envelope{"token": tokenString, "user": toUserResponse(user)})
}

// handleLoginUser authenticates an existing user via email/password.
func (s *Server) handleLoginUser(w http.ResponseWriter, r *http.Request) {
	var payload loginUserPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	if payload.Email == "" || payload.Password == "" {
		s.errorJSON(w, errors.New("email and password are required"), http.StatusBadRequest)
		return
	}

	user, err := s.db.GetUserByEmail(r.Context(), s.db.DB(), payload.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, errors.New("invalid email or password"), http.StatusUnauthorized)
			return
		}
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}

	// OAuth-only users have no password to check.
	if !user.PasswordHash.Valid || user.PasswordHash.String == "" {
		s.errorJSON(w, errors.New("please log in using the method you signed up with"), http.StatusUnauthorized)
		return
	}
	if !auth.CheckPasswordHash(payload.Password, user.PasswordHash.String) {
		s.errorJSON(w, errors.New("invalid email or password"), http.StatusUnauthorized)
		return
	}

	tokenString, err := auth.GenerateJWT(user.ID, s.config.JwtSecret)
	if err != nil {
		s.errorJSON(w, errors.New("could not generate token"), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"token": tokenString, "user": toUserResponse(user)})
}

// handleGetSession reports the current auth state. It is public: a missing
// or invalid token yields a null user rather than 401.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state := envelope{"user": nil, "isLoading": false}

	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenString == "" || tokenString == r.Header.Get("Authorization") {
		s.writeJSON(w, http.StatusOK, state)
		return
	}

	claims, err := auth.ValidateJWT(tokenString, s.config.JwtSecret)
	if err != nil {
		s.writeJSON(w, http.StatusOK, state)
		return
	}

	user, err := s.db.GetUserByID(r.Context(), s.db.DB(), claims.UserID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, err, http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, state)
		return
	}
	state["user"] = toUserResponse(user)
	s.writeJSON(w, http.StatusOK, state)
}
