package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/intermernet/tabyslink/internal/assistant"
	"github.com/intermernet/tabyslink/internal/metrics"
)

const (
	// limiterCleanupThreshold is the minimum map size before a cleanup pass runs.
	limiterCleanupThreshold = 500
	// limiterMaxIdle is how long an idle user's entry is kept.
	limiterMaxIdle = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userRateLimiter hands out one token bucket per user and prunes stale
// entries inline.
type userRateLimiter struct {
	users map[string]*limiterEntry
	mu    sync.Mutex
	r     rate.Limit
	b     int
}

func newUserRateLimiter(r rate.Limit, b int) *userRateLimiter {
	return &userRateLimiter{
		users: make(map[string]*limiterEntry),
		r:     r,
		b:     b,
	}
}

func (l *userRateLimiter) getLimiter(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.users) > limiterCleanupThreshold {
		cutoff := now.Add(-limiterMaxIdle)
		for k, e := range l.users {
			if e.lastSeen.Before(cutoff) {
				delete(l.users, k)
			}
		}
	}

	e, exists := l.users[userID]
	if !exists {
		e = &limiterEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.users[userID] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Allow reports whether userID may make another request now.
func (l *userRateLimiter) Allow(userID string) bool {
	return l.getLimiter(userID).Allow()
}

// chatRateLimit rejects assistant submissions over the per-user budget. It
// must run after authMiddleware. Unknown chat types are answered with 404
// first, so the metric only ever sees known persona labels.
func (s *Server) chatRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.getUserIDFromContext(r)
		if err != nil {
			s.errorJSON(w, err, http.StatusUnauthorized)
			return
		}
		chatType := chi.URLParam(r, "chatType")
		if _, ok := assistant.LookupPersona(chatType); !ok {
			s.errorJSON(w, errors.New("unknown assistant"), http.StatusNotFound)
			return
		}
		if !s.chatLimiter.Allow(userID) {
			s.metrics.AssistantTurns.WithLabelValues(chatType, metrics.OutcomeLimited).Inc()
			s.errorJSON(w, errors.New("too many messages, please wait a moment"), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
