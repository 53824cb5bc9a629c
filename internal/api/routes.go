package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RegisterRoutes sets up all the API endpoints and middleware for the application.
func (s *Server) RegisterRoutes(r *chi.Mux) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/public/avatars/*", http.StripPrefix("/public/avatars/", http.FileServer(http.Dir(s.config.AvatarPath))))
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", s.config.FrontendURL},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		// Auth routes
		r.Post("/users/register", s.handleRegisterUser)
		r.Post("/users/login", s.handleLoginUser)
		r.Get("/auth/session", s.handleGetSession)
		r.Get("/auth/google/login", s.handleGoogleLogin)
		r.Get("/auth/google/callback", s.handleGoogleCallback)

		// Public catalogue
		r.Get("/clubs", s.handleGetClubs)
		r.Get("/clubs/categories", s.handleGetCategories)
		r.Get("/events", s.handleGetEvents)
		r.Get("/assistant/personas", s.handleGetPersonas)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/notifications/stream", s.handleSSE)

			// User Routes
			r.Get("/users/me", s.handleGetMyProfile)
			r.Patch("/users/me", s.handleUpdateMyProfile)
			r.Put("/users/me/avatar", s.handleUpdateMyAvatar)
			r.Get("/users/me/clubs", s.handleGetMyClubs)
			r.Get("/users/me/achievements", s.handleGetMyAchievements)
			r.Get("/dashboard", s.handleGetDashboard)

			// Club Routes
			r.Post("/clubs", s.handleCreateClub)
			r.Get("/clubs/{clubID}", s.handleGetClub)
			r.Patch("/clubs/{clubID}", s.handleUpdateClub)
			r.Delete("/clubs/{clubID}", s.handleDeleteClub)
			r.Get("/clubs/{clubID}/members", s.handleGetClubMembers)
			r.Post("/clubs/{clubID}/join", s.handleJoinClub)
			r.Post("/clubs/{clubID}/achievements", s.handleAwardAchievement)

			// Event Routes
			r.Post("/events", s.handleCreateEvent)
			r.Get("/events/{eventID}", s.handleGetEvent)
			r.Get("/events/{eventID}/rsvps", s.handleGetEventRSVPs)
			r.Put("/events/{eventID}/rsvp", s.handleSetRSVP)

			// Assistant Routes
			r.Get("/assistant/{chatType}/messages", s.handleGetChatMessages)
			r.With(s.chatRateLimit).Post("/assistant/{chatType}/messages", s.handlePostChatMessage)
		})
	})
}
