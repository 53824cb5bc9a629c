package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"modernc.org/sqlite" // The pure Go SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors returned by the query layer. Handlers map these onto HTTP
// status codes with errors.Is.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyMember = errors.New("already a member of this club")
	ErrClubInactive  = errors.New("club is not active")
	ErrEventFull     = errors.New("event is full")
	ErrEmailTaken    = errors.New("email address already registered")
)

// Service is the record store. It owns a single SQLite database and
// serializes every write through one mutex-guarded transaction at a time, so
// the read-modify-write sequences around member and participant counts are
// atomic within the process.
type Service struct {
	dbPath string
	db     *sql.DB

	writeMu sync.Mutex
}

// DBorTx is an interface that allows query functions to accept either a
// `*sql.DB` for standalone reads or a `*sql.Tx` inside a write transaction.
type DBorTx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// NewService opens the database at dbPath and verifies the connection.
func NewService(dbPath string) (*Service, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to %s: %w", dbPath, err)
	}

	return &Service{dbPath: dbPath, db: db}, nil
}

// Write runs writeFunc inside a transaction while holding the write lock.
// The transaction is rolled back if writeFunc returns an error.
func (s *Service) Write(ctx context.Context, writeFunc func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := writeFunc(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DB provides a direct connection for reads that need no transaction.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *Service) Close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Close(); err != nil {
		log.Printf("WARN: closing database %s: %v", s.dbPath, err)
		return
	}
	log.Println("INFO: Database connection closed.")
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// notFound converts sql.ErrNoRows into ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// schema is applied on every start. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT,
		avatar_url TEXT,
		school_name TEXT,
		grade TEXT,
		bio TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS clubs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT NOT NULL,
		image_url TEXT,
		creator_id TEXT NOT NULL,
		school_name TEXT,
		member_count INTEGER NOT NULL DEFAULT 0,
		rating REAL NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (creator_id) REFERENCES users (id)
	);`,
	// One membership per (club, user) is enforced here, not by a pre-check.
	`CREATE TABLE IF NOT EXISTS club_members (
		id TEXT PRIMARY KEY,
		club_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member', -- member, admin, moderator
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (club_id, user_id),
		FOREIGN KEY (club_id) REFERENCES clubs (id),
		FOREIGN KEY (user_id) REFERENCES users (id)
	);`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		club_id TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		event_date DATETIME NOT NULL,
		location TEXT,
		is_online BOOLEAN NOT NULL DEFAULT 0,
		meeting_link TEXT,
		max_participants INTEGER,
		current_participants INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'upcoming', -- upcoming, ongoing, completed, cancelled
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (club_id) REFERENCES clubs (id),
		FOREIGN KEY (creator_id) REFERENCES users (id)
	);`,
	`CREATE TABLE IF NOT EXISTS event_rsvp (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL, -- going, maybe, not_going
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (event_id, user_id),
		FOREIGN KEY (event_id) REFERENCES events (id),
		FOREIGN KEY (user_id) REFERENCES users (id)
	);`,
	`CREATE TABLE IF NOT EXISTS achievements (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL, -- club_participation, event_attendance, leadership, certificate
		badge_icon TEXT,
		badge_color TEXT,
		points INTEGER NOT NULL DEFAULT 0,
		club_id TEXT,
		event_id TEXT,
		earned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users (id)
	);`,
	`CREATE TABLE IF NOT EXISTS ai_chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		chat_type TEXT NOT NULL, -- club_analysis, university_consultant
		title TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users (id)
	);`,
	`CREATE TABLE IF NOT EXISTS ai_messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL, -- user, assistant
		content TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (chat_id) REFERENCES ai_chats (id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_events_club ON events (club_id, event_date);`,
	`CREATE INDEX IF NOT EXISTS idx_rsvp_event_status ON event_rsvp (event_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_achievements_user ON achievements (user_id, earned_at);`,
	`CREATE INDEX IF NOT EXISTS idx_ai_messages_chat ON ai_messages (chat_id, created_at);`,
}

// InitSchema creates all tables and indexes if they do not already exist.
func (s *Service) InitSchema(ctx context.Context) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}
