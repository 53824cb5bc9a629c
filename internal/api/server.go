package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"

	"github.com/intermernet/tabyslink/internal/assistant"
	"github.com/intermernet/tabyslink/internal/config"
	"github.com/intermernet/tabyslink/internal/database"
	"github.com/intermernet/tabyslink/internal/metrics"
	"github.com/intermernet/tabyslink/internal/realtime"
)

// Mailer delivers the email fallback for notifications that found no live
// stream. *email.EmailService satisfies it.
type Mailer interface {
	SendMemberJoinedEmail(recipientEmail, memberName, clubName, clubURL string, memberCount int) error
}

// Server is the main struct for the API. It holds all dependencies required
// by the HTTP handlers.
type Server struct {
	config    *config.Config
	db        *database.Service
	broker    *realtime.Broker
	email     Mailer // nil when SMTP is not configured
	assistant *assistant.Service
	metrics   *metrics.Metrics

	chatLimiter *userRateLimiter
	oauthConfig *oauth2.Config // nil when Google login is not configured
	now         func() time.Time
}

// NewServer wires the handlers' dependencies. mailer may be nil.
func NewServer(cfg *config.Config, db *database.Service, broker *realtime.Broker, mailer Mailer, chat *assistant.Service, m *metrics.Metrics) *Server {
	s := &Server{
		config:      cfg,
		db:          db,
		broker:      broker,
		email:       mailer,
		assistant:   chat,
		metrics:     m,
		chatLimiter: newUserRateLimiter(rate.Every(time.Minute/time.Duration(cfg.AssistantRatePerMinute)), cfg.AssistantRatePerMinute),
		now:         time.Now,
	}
	if cfg.GoogleLoginEnabled() {
		s.oauthConfig = &oauth2.Config{
			ClientID:     cfg.GoogleOauthClientID,
			ClientSecret: cfg.GoogleOauthClientSecret,
			RedirectURL:  cfg.GoogleOauthRedirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     google.Endpoint,
		}
	}
	return s
}

// envelope wraps every JSON response body, e.g. `envelope{"club": club}`.
type envelope map[string]interface{}

// writeJSON sends data as indented JSON with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}, headers ...http.Header) {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		http.Error(w, "Internal Server Error: Failed to marshal JSON", http.StatusInternalServerError)
		return
	}

	if len(headers) > 0 {
		for key, value := range headers[0] {
			w.Header()[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

// errorJSON sends `{"error": "message"}`, defaulting to 500.
func (s *Server) errorJSON(w http.ResponseWriter, err error, status ...int) {
	statusCode := http.StatusInternalServerError
	if len(status) > 0 {
		statusCode = status[0]
	}
	s.writeJSON(w, statusCode, envelope{"error": err.Error()})
}

// readJSON decodes a size-limited request body into dst.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("bad request: body must not be empty")
		}
		return errors.New("bad request: could not decode JSON")
	}
	return nil
}
