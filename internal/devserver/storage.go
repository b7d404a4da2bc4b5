// Package devserver is a local stand-in for the booking backend: it serves
// catalog snapshots from SQLite, accepts reservation requests, and pushes
// live events over a websocket channel. It exists so the client core can be
// exercised end-to-end without the production backend.
package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSlotUnavailable is returned when a mutation conflicts with the slot's
// current state (already reserved, or held by someone else).
var ErrSlotUnavailable = errors.New("slot unavailable")

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens the SQLite file at path, creating the directory if needed.
func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// WAL for concurrent reads, busy timeout so the sweeper and handlers
	// do not trip over each other.
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	return &DB{DB: db, path: path}, nil
}

// RunMigrations creates the schema if it does not exist.
func RunMigrations(db *DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS slots (
		service_id           INTEGER NOT NULL,
		date                 TEXT    NOT NULL,
		from_time            TEXT    NOT NULL,
		to_time              TEXT    NOT NULL,
		day_label            TEXT    NOT NULL DEFAULT '',
		is_reserve           INTEGER NOT NULL DEFAULT 0,
		pre_reserved_user_id INTEGER,
		locked_at            TEXT,
		seq                  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (service_id, date, from_time, to_time)
	);

	CREATE TABLE IF NOT EXISTS event_seq (
		id    INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO event_seq (id, value) VALUES (1, 0);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Slot is one bookable unit as stored by the devserver.
type Slot struct {
	ServiceID         int64
	Date              string
	FromTime          string
	ToTime            string
	DayLabel          string
	IsReserve         bool
	PreReservedUserID *int64
	LockedAt          *time.Time
	Seq               int64
}

// SlotRepository provides data access for slots.
type SlotRepository struct {
	db *DB
}

// NewSlotRepository creates a slot repository.
func NewSlotRepository(db *DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// List returns all slots ordered by date and start time.
func (r *SlotRepository) List(ctx context.Context) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT service_id, date, from_time, to_time, day_label,
		       is_reserve, pre_reserved_user_id, locked_at, seq
		FROM slots
		ORDER BY date, from_time, service_id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// Count returns the number of stored slots.
func (r *SlotRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM slots`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting slots: %w", err)
	}
	return n, nil
}

// Insert adds a slot. Used by seeding and tests.
func (r *SlotRepository) Insert(ctx context.Context, s Slot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO slots (service_id, date, from_time, to_time, day_label, is_reserve)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ServiceID, s.Date, s.FromTime, s.ToTime, s.DayLabel, s.IsReserve)
	if err != nil {
		return fmt.Errorf("inserting slot: %w", err)
	}
	return nil
}

// Lock places a pre-reservation for userID on an open slot and returns the
// slot's new event sequence number.
func (r *SlotRepository) Lock(ctx context.Context, serviceID int64, date, from, to string, userID int64) (int64, error) {
	return r.mutate(ctx, serviceID, date, from, to, func(tx *sql.Tx, s *Slot, seq int64) error {
		if s.IsReserve || (s.PreReservedUserID != nil && *s.PreReservedUserID != userID) {
			return ErrSlotUnavailable
		}
		now := time.Now().UTC().Format(time.RFC3339)
		_, err := tx.ExecContext(ctx, `
			UPDATE slots SET pre_reserved_user_id = ?, locked_at = ?, seq = ?
			WHERE service_id = ? AND date = ? AND from_time = ? AND to_time = ?
		`, userID, now, seq, serviceID, date, from, to)
		return err
	})
}

// Release removes userID's pre-reservation and returns the new sequence.
func (r *SlotRepository) Release(ctx context.Context, serviceID int64, date, from, to string, userID int64) (int64, error) {
	return r.mutate(ctx, serviceID, date, from, to, func(tx *sql.Tx, s *Slot, seq int64) error {
		if s.PreReservedUserID == nil || *s.PreReservedUserID != userID {
			return ErrSlotUnavailable
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE slots SET pre_reserved_user_id = NULL, locked_at = NULL, seq = ?
			WHERE service_id = ? AND date = ? AND from_time = ? AND to_time = ?
		`, seq, serviceID, date, from, to)
		return err
	})
}

// Confirm finalizes userID's pre-reservation into a reservation.
func (r *SlotRepository) Confirm(ctx context.Context, serviceID int64, date, from, to string, userID int64) (int64, error) {
	return r.mutate(ctx, serviceID, date, from, to, func(tx *sql.Tx, s *Slot, seq int64) error {
		if s.IsReserve || s.PreReservedUserID == nil || *s.PreReservedUserID != userID {
			return ErrSlotUnavailable
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE slots SET is_reserve = 1, pre_reserved_user_id = NULL, locked_at = NULL, seq = ?
			WHERE service_id = ? AND date = ? AND from_time = ? AND to_time = ?
		`, seq, serviceID, date, from, to)
		return err
	})
}

// ExpireHolds clears all pre-reservations locked before cutoff and returns
// the released slots, each stamped with a fresh sequence number so the
// cancellation events order correctly.
func (r *SlotRepository) ExpireHolds(ctx context.Context, cutoff time.Time) ([]Slot, error) {
	var released []Slot
	err := r.db.Transaction(func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT service_id, date, from_time, to_time, day_label,
			       is_reserve, pre_reserved_user_id, locked_at, seq
			FROM slots
			WHERE pre_reserved_user_id IS NOT NULL AND locked_at < ?
		`, cutoff.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("querying expired holds: %w", err)
		}
		var expired []Slot
		for rows.Next() {
			s, err := scanSlot(rows)
			if err != nil {
				rows.Close()
				return err
			}
			expired = append(expired, s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, s := range expired {
			seq, err := nextSeq(ctx, tx)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE slots SET pre_reserved_user_id = NULL, locked_at = NULL, seq = ?
				WHERE service_id = ? AND date = ? AND from_time = ? AND to_time = ?
			`, seq, s.ServiceID, s.Date, s.FromTime, s.ToTime)
			if err != nil {
				return fmt.Errorf("releasing expired hold: %w", err)
			}
			s.Seq = seq
			released = append(released, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// mutate runs fn inside a transaction with the current slot row and a
// freshly allocated sequence number.
func (r *SlotRepository) mutate(ctx context.Context, serviceID int64, date, from, to string,
	fn func(tx *sql.Tx, s *Slot, seq int64) error) (int64, error) {

	var seq int64
	err := r.db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT service_id, date, from_time, to_time, day_label,
			       is_reserve, pre_reserved_user_id, locked_at, seq
			FROM slots
			WHERE service_id = ? AND date = ? AND from_time = ? AND to_time = ?
		`, serviceID, date, from, to)
		s, err := scanSlot(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSlotUnavailable
		}
		if err != nil {
			return err
		}

		seq, err = nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		return fn(tx, &s, seq)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// nextSeq bumps and returns the global event sequence counter.
func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE event_seq SET value = value + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("bumping sequence: %w", err)
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM event_seq WHERE id = 1`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("reading sequence: %w", err)
	}
	return seq, nil
}

// Transaction executes fn within a database transaction, rolling back on
// error.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (Slot, error) {
	var (
		s        Slot
		userID   sql.NullInt64
		lockedAt sql.NullString
	)
	err := row.Scan(&s.ServiceID, &s.Date, &s.FromTime, &s.ToTime, &s.DayLabel,
		&s.IsReserve, &userID, &lockedAt, &s.Seq)
	if err != nil {
		return Slot{}, err
	}
	if userID.Valid {
		v := userID.Int64
		s.PreReservedUserID = &v
	}
	if lockedAt.Valid {
		if t, err := time.Parse(time.RFC3339, lockedAt.String); err == nil {
			s.LockedAt = &t
		}
	}
	return s, nil
}
