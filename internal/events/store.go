package events

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/launchpad/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Store persists every bus event into the ledger database. Payloads are
// msgpack-encoded so the journal stays compact and schema-free.
type Store struct {
	db          *database.DB
	log         zerolog.Logger
	unsubscribe func()
}

// NewStore creates an event store over the ledger database
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repo", "events").Logger(),
	}
}

// Attach subscribes the store to every event on bus
func (s *Store) Attach(bus *Bus) {
	s.unsubscribe = bus.SubscribeAll(func(e *Event) {
		if err := s.Append(e); err != nil {
			s.log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to persist event")
		}
	})
}

// Detach stops recording
func (s *Store) Detach() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Append writes one event
func (s *Store) Append(e *Event) error {
	payload, err := msgpack.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO events (id, type, module, payload, emitted_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Module, payload, e.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first, optionally filtered by type
func (s *Store) Recent(limit int, types ...EventType) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, type, module, payload, emitted_at FROM events`
	args := make([]interface{}, 0, len(types)+1)
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += ` WHERE type IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY emitted_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored events of the given type
func (s *Store) Count(eventType EventType) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE type = ?`, string(eventType)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		e         Event
		eventType string
		payload   []byte
		emittedAt int64
	)
	if err := rows.Scan(&e.ID, &eventType, &e.Module, &payload, &emittedAt); err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	e.Type = EventType(eventType)
	e.Timestamp = time.Unix(0, emittedAt).UTC()
	if err := msgpack.Unmarshal(payload, &e.Data); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", e.ID, err)
	}
	return &e, nil
}
