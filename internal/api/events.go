package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/intermernet/tabyslink/internal/database"
	"github.com/intermernet/tabyslink/internal/realtime"
	"github.com/intermernet/tabyslink/internal/search"
)

// handleGetEvents lists events in date order, filtered by ?q=, ?status= and ?clubID=.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := s.db.ListEvents(r.Context(), s.db.DB(), q.Get("clubID"))
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	events = search.Events(events, q.Get("q"), q.Get("status"))
	s.writeJSON(w, http.StatusOK, envelope{"events": toEventResponseList(events)})
}

// handleCreateEvent schedules an event for a club the caller belongs to.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	var payload struct {
		Title           string `json:"title"`
		Description     string `json:"description"`
		ClubID          string `json:"clubId"`
		EventDate       string `json:"eventDate"`
		Location        string `json:"location"`
		IsOnline        bool   `json:"isOnline"`
		MeetingLink     string `json:"meetingLink"`
		MaxParticipants *int   `json:"maxParticipants"`
	}
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	payload.Title = strings.TrimSpace(payload.Title)
	if payload.Title == "" || payload.ClubID == "" || payload.EventDate == "" {
		s.errorJSON(w, errors.New("title, clubId and eventDate are required"), http.StatusBadRequest)
		return
	}
	eventDate, err := time.Parse(time.RFC3339, payload.EventDate)
	if err != nil {
		s.errorJSON(w, errors.New("eventDate must be an RFC3339 timestamp"), http.StatusBadRequest)
		return
	}
	maxParticipants := 0
	if payload.MaxParticipants != nil {
		if *payload.MaxParticipants <= 0 {
			s.errorJSON(w, errors.New("maxParticipants must be positive"), http.StatusBadRequest)
			return
		}
		maxParticipants = *payload.MaxParticipants
	}
	if payload.IsOnline && strings.TrimSpace(payload.MeetingLink) == "" {
		s.errorJSON(w, errors.New("meetingLink is required for online events"), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var event *database.Event
	err = s.db.Write(ctx, func(tx *sql.Tx) error {
		club, err := s.db.GetClubByID(ctx, tx, payload.ClubID)
		if err != nil {
			return err
		}
		if !club.IsActive {
			return database.ErrNotFound
		}
		isMember, err := s.db.IsClubMember(ctx, tx, club.ID, userID)
		if err != nil {
			return err
		}
		if !isMember {
			return errNotClubMember
		}

		event, err = s.db.CreateEvent(ctx, tx, database.NewEvent{
			Title:           payload.Title,
			Description:     strings.TrimSpace(payload.Description),
			ClubID:          club.ID,
			CreatorID:       userID,
			EventDate:       eventDate,
			Location:        strings.TrimSpace(payload.Location),
			IsOnline:        payload.IsOnline,
			MeetingLink:     strings.TrimSpace(payload.MeetingLink),
			MaxParticipants: maxParticipants,
		})
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotFound):
		s.errorJSON(w, errors.New("club not found"), http.StatusNotFound)
		return
	case errors.Is(err, errNotClubMember):
		s.errorJSON(w, errors.New("forbidden: only club members can create events"), http.StatusForbidden)
		return
	default:
		log.Printf("ERROR: creating event in club %s: %v", payload.ClubID, err)
		s.errorJSON(w, errors.New("could not create event"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, envelope{"event": toEventResponse(event)})
}

var errNotClubMember = errors.New("not a club member")

// loadVisibleEvent fetches the event named in the URL and writes a 404 when
// it is missing or its club has been soft-deleted, matching the listings.
func (s *Server) loadVisibleEvent(w http.ResponseWriter, r *http.Request) (*database.Event, bool) {
	event, err := s.db.GetEventByID(r.Context(), s.db.DB(), chi.URLParam(r, "eventID"))
	if err == nil {
		var club *database.Club
		club, err = s.db.GetClubByID(r.Context(), s.db.DB(), event.ClubID)
		if err == nil && !club.IsActive {
			err = database.ErrClubInactive
		}
	}
	switch {
	case err == nil:
		return event, true
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrClubInactive):
		s.errorJSON(w, errors.New("event not found"), http.StatusNotFound)
	default:
		s.errorJSON(w, err, http.StatusInternalServerError)
	}
	return nil, false
}

// handleGetEvent returns an event and the caller's RSVP, or null when they
// have not responded.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	event, ok := s.loadVisibleEvent(w, r)
	if !ok {
		return
	}

	var myRSVP *RSVPResponse
	rsvp, err := s.db.GetRSVP(r.Context(), s.db.DB(), event.ID, userID)
	switch {
	case err == nil:
		resp := toRSVPResponse(rsvp)
		myRSVP = &resp
	case !errors.Is(err, database.ErrNotFound):
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"event": toEventResponse(event), "myRsvp": myRSVP})
}

func (s *Server) handleGetEventRSVPs(w http.ResponseWriter, r *http.Request) {
	event, ok := s.loadVisibleEvent(w, r)
	if !ok {
		return
	}

	rsvps, err := s.db.ListRSVPsByEventID(r.Context(), s.db.DB(), event.ID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"rsvps": toRSVPResponseList(rsvps)})
}

// handleSetRSVP records the caller's going/maybe/not_going for an event and
// returns the event with its recounted participants.
func (s *Server) handleSetRSVP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if !database.ValidRSVPStatus(payload.Status) {
		s.errorJSON(w, fmt.Errorf("status must be one of %s, %s, %s", database.RSVPGoing, database.RSVPMaybe, database.RSVPNotGoing), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	eventID := chi.URLParam(r, "eventID")

	var (
		event *database.Event
		rsvp  *database.EventRSVP
	)
	err = s.db.Write(ctx, func(tx *sql.Tx) error {
		var err error
		event, rsvp, err = s.db.SetRSVP(ctx, tx, eventID, userID, payload.Status)
		return err
	})
	switch {
	case err == nil:
		s.metrics.RSVPs.WithLabelValues(payload.Status).Inc()
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrClubInactive):
		s.errorJSON(w, errors.New("event not found"), http.StatusNotFound)
		return
	case errors.Is(err, database.ErrEventFull):
		s.errorJSON(w, errors.New("event is full"), http.StatusConflict)
		return
	default:
		log.Printf("ERROR: rsvp of user %s to event %s: %v", userID, eventID, err)
		s.errorJSON(w, errors.New("could not save rsvp"), http.StatusInternalServerError)
		return
	}

	if event.CreatorID != userID {
		s.broker.NotifyUser(event.CreatorID, realtime.Message{
			Type: realtime.TypeRSVPUpdated,
			Payload: realtime.RSVPUpdatedPayload{
				EventID:             event.ID,
				EventTitle:          event.Title,
				UserID:              userID,
				Status:              rsvp.Status,
				CurrentParticipants: event.CurrentParticipants,
			},
		})
	}

	s.writeJSON(w, http.StatusOK, envelope{"event": toEventResponse(event), "rsvp": toRSVPResponse(rsvp)})
}
