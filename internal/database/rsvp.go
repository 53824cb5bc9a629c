package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/intermernet/tabyslink/internal/ids"
)

func scanRSVP(row rowScanner) (*EventRSVP, error) {
	rsvp := &EventRSVP{}
	err := row.Scan(&rsvp.ID, &rsvp.EventID, &rsvp.UserID, &rsvp.Status, &rsvp.CreatedAt, &rsvp.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return rsvp, nil
}

// SetRSVP records userID's attendance intent for eventID, keeping exactly
// one row per (event, user), then re-derives current_participants from the
// "going" rows. Every status change recounts, so moving away from "going"
// lowers the count as well.
//
// Events of a soft-deleted club return ErrClubInactive.
//
// When the event has a participant cap and the user is not already going,
// a "going" that would exceed it returns ErrEventFull without writing.
func (s *Service) SetRSVP(ctx context.Context, tx *sql.Tx, eventID, userID, status string) (*Event, *EventRSVP, error) {
	if !ValidRSVPStatus(status) {
		return nil, nil, fmt.Errorf("invalid rsvp status %q", status)
	}

	event, err := s.GetEventByID(ctx, tx, eventID)
	if err != nil {
		return nil, nil, err
	}
	club, err := s.GetClubByID(ctx, tx, event.ClubID)
	if err != nil {
		return nil, nil, err
	}
	if !club.IsActive {
		return nil, nil, ErrClubInactive
	}

	existing, err := s.GetRSVP(ctx, tx, eventID, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}
	alreadyGoing := existing != nil && existing.Status == RSVPGoing

	if status == RSVPGoing && !alreadyGoing && event.MaxParticipants.Valid {
		going, err := s.CountGoing(ctx, tx, eventID)
		if err != nil {
			return nil, nil, err
		}
		if int64(going) >= event.MaxParticipants.Int64 {
			return nil, nil, ErrEventFull
		}
	}

	query := `INSERT INTO event_rsvp (id, event_id, user_id, status) VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id, user_id) DO UPDATE SET status = excluded.status, updated_at = CURRENT_TIMESTAMP;`
	if _, err := tx.ExecContext(ctx, query, ids.New(ids.RSVP), eventID, userID, status); err != nil {
		return nil, nil, fmt.Errorf("upsert rsvp: %w", err)
	}

	if err := s.refreshParticipantCount(ctx, tx, eventID); err != nil {
		return nil, nil, err
	}

	event, err = s.GetEventByID(ctx, tx, eventID)
	if err != nil {
		return nil, nil, err
	}
	rsvp, err := s.GetRSVP(ctx, tx, eventID, userID)
	if err != nil {
		return nil, nil, err
	}
	return event, rsvp, nil
}

func (s *Service) refreshParticipantCount(ctx context.Context, tx *sql.Tx, eventID string) error {
	query := `UPDATE events
		SET current_participants = (SELECT COUNT(*) FROM event_rsvp WHERE event_id = ? AND status = ?),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?;`
	if _, err := tx.ExecContext(ctx, query, eventID, RSVPGoing, eventID); err != nil {
		return fmt.Errorf("refresh participant count: %w", err)
	}
	return nil
}

// GetRSVP returns ErrNotFound when the user has not responded to the event.
func (s *Service) GetRSVP(ctx context.Context, db DBorTx, eventID, userID string) (*EventRSVP, error) {
	query := `SELECT id, event_id, user_id, status, created_at, updated_at FROM event_rsvp WHERE event_id = ? AND user_id = ?;`
	return scanRSVP(db.QueryRowContext(ctx, query, eventID, userID))
}

// CountGoing counts the "going" RSVPs for an event.
func (s *Service) CountGoing(ctx context.Context, db DBorTx, eventID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM event_rsvp WHERE event_id = ? AND status = ?;`
	if err := db.QueryRowContext(ctx, query, eventID, RSVPGoing).Scan(&n); err != nil {
		return 0, fmt.Errorf("count going: %w", err)
	}
	return n, nil
}

func (s *Service) ListRSVPsByEventID(ctx context.Context, db DBorTx, eventID string) ([]*EventRSVP, error) {
	query := `SELECT id, event_id, user_id, status, created_at, updated_at FROM event_rsvp
		WHERE event_id = ? ORDER BY created_at, rowid;`
	rows, err := db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list rsvps: %w", err)
	}
	defer rows.Close()

	rsvps := []*EventRSVP{}
	for rows.Next() {
		rsvp, err := scanRSVP(rows)
		if err != nil {
			return nil, err
		}
		rsvps = append(rsvps, rsvp)
	}
	return rsvps, rows.Err()
}
