package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/intermernet/tabyslink/internal/ids"
)

const eventColumns = `e.id, e.title, e.description, e.club_id, e.creator_id, e.event_date, e.location, e.is_online,
	e.meeting_link, e.max_participants, e.current_participants, e.status, e.created_at, e.updated_at`

func scanEvent(row rowScanner) (*Event, error) {
	event := &Event{}
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.ClubID,
		&event.CreatorID,
		&event.EventDate,
		&event.Location,
		&event.IsOnline,
		&event.MeetingLink,
		&event.MaxParticipants,
		&event.CurrentParticipants,
		&event.Status,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return event, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// NewEvent holds the fields supplied when an event is created. Location and
// MeetingLink are mutually exclusive: only the one matching IsOnline is kept.
type NewEvent struct {
	Title           string
	Description     string
	ClubID          string
	CreatorID       string
	EventDate       time.Time
	Location        string
	IsOnline        bool
	MeetingLink     string
	MaxParticipants int // 0 means unlimited
}

// CreateEvent inserts an upcoming event with no participants.
func (s *Service) CreateEvent(ctx context.Context, db DBorTx, in NewEvent) (*Event, error) {
	location, link := in.Location, in.MeetingLink
	if in.IsOnline {
		location = ""
	} else {
		link = ""
	}

	var maxParticipants sql.NullInt64
	if in.MaxParticipants > 0 {
		maxParticipants = sql.NullInt64{Int64: int64(in.MaxParticipants), Valid: true}
	}

	id := ids.New(ids.Event)
	query := `INSERT INTO events (id, title, description, club_id, creator_id, event_date, location, is_online,
			meeting_link, max_participants, current_participants, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?);`
	_, err := db.ExecContext(ctx, query,
		id, in.Title, nullString(in.Description), in.ClubID, in.CreatorID, in.EventDate.UTC().Truncate(time.Second),
		nullString(location), in.IsOnline, nullString(link), maxParticipants, EventUpcoming,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return s.GetEventByID(ctx, db, id)
}

func (s *Service) GetEventByID(ctx context.Context, db DBorTx, id string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = ?;`
	return scanEvent(db.QueryRowContext(ctx, query, id))
}

// ListEvents returns events in date order, optionally limited to one club.
// Events of soft-deleted clubs are hidden.
func (s *Service) ListEvents(ctx context.Context, db DBorTx, clubID string) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e
		JOIN clubs c ON c.id = e.club_id
		WHERE c.is_active = 1 AND (? = '' OR e.club_id = ?)
		ORDER BY e.event_date ASC, e.rowid ASC;`
	rows, err := db.QueryContext(ctx, query, clubID, clubID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

// ListUpcomingEventsForUser returns the user's "going" events dated at or
// after from, soonest first.
func (s *Service) ListUpcomingEventsForUser(ctx context.Context, db DBorTx, userID string, from time.Time, limit int) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e
		JOIN event_rsvp r ON r.event_id = e.id
		WHERE r.user_id = ? AND r.status = ? AND e.event_date >= ?
		ORDER BY e.event_date ASC, e.rowid ASC
		LIMIT ?;`
	rows, err := db.QueryContext(ctx, query, userID, RSVPGoing, from.UTC().Truncate(time.Second), limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return scanEvents(rows)
}
