package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/intermernet/tabyslink/internal/auth"
)

// contextKey is a custom type used for keys in context.Context.
type contextKey string

// userContextKey holds the authenticated user's ID.
const userContextKey = contextKey("userID")

// authMiddleware protects routes that require a session. The JWT comes from
// the 'Authorization' header or, for EventSource connections that cannot
// set headers, a 'token' query parameter.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		// --- TOKEN EXTRACTION ---

		// 1. "Authorization: Bearer <jwt>" for regular API calls.
		authHeader := r.Header.Get("Authorization")
		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) == 2 && strings.ToLower(headerParts[0]) == "bearer" {
			tokenString = headerParts[1]
		}

		// 2. ?token=<jwt> for the notification stream. The access log
		// redacts it (see logging.go).
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			s.errorJSON(w, errors.New("authorization token is required"), http.StatusUnauthorized)
			return
		}

		// --- TOKEN VALIDATION ---

		// Signature, algorithm, issuer and expiry are all checked here.
		claims, err := auth.ValidateJWT(tokenString, s.config.JwtSecret)
		if err != nil {
			s.errorJSON(w, errors.New("invalid or expired token"), http.StatusUnauthorized)
			return
		}

		// --- CONTEXT INJECTION ---

		// Handlers read the user ID back with getUserIDFromContext.
		ctx := context.WithValue(r.Context(), userContextKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getUserIDFromContext retrieves the user ID set by authMiddleware.
func (s *Server) getUserIDFromContext(r *http.Request) (string, error) {
	userID, ok := r.Context().Value(userContextKey).(string)
	if !ok || userID == "" {
		return "", errors.New("could not retrieve user ID from context")
	}
	return userID, nil
}
