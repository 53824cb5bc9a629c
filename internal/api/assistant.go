package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/intermernet/tabyslink/internal/assistant"
	"github.com/intermernet/tabyslink/internal/metrics"
)

func (s *Server) handleGetPersonas(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{"personas": assistant.Personas()})
}

// handleGetChatMessages returns the welcome turn followed by the stored
// conversation for one persona.
func (s *Server) handleGetChatMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	turns, err := s.assistant.History(r.Context(), userID, chi.URLParam(r, "chatType"))
	if err != nil {
		if errors.Is(err, assistant.ErrUnknownChatType) {
			s.errorJSON(w, errors.New("unknown assistant"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"turns": turns})
}

// handlePostChatMessage runs one assistant turn. A generation failure still
// answers 200 with an apology as the assistant turn.
func (s *Server) handlePostChatMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	chatType := chi.URLParam(r, "chatType")
	result, err := s.assistant.Send(r.Context(), userID, chatType, payload.Content)
	switch {
	case err == nil:
	case errors.Is(err, assistant.ErrUnknownChatType):
		s.errorJSON(w, errors.New("unknown assistant"), http.StatusNotFound)
		return
	case errors.Is(err, assistant.ErrEmptyMessage):
		s.errorJSON(w, errors.New("content must not be empty"), http.StatusBadRequest)
		return
	default:
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	outcome := metrics.OutcomeGenerated
	if !result.Generated {
		outcome = metrics.OutcomeFailed
	}
	s.metrics.AssistantTurns.WithLabelValues(chatType, outcome).Inc()

	s.writeJSON(w, http.StatusOK, envelope{"turns": result.Turns})
}
