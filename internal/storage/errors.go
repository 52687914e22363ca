package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the mutation lost to an overlapping booking or a
	// full daily quota; callers surface it as the slot being unavailable.
	ErrConflict = errors.New("booking conflict")
	// ErrAlreadyCancelled means a cancel hit a booking already in the
	// terminal state.
	ErrAlreadyCancelled = errors.New("booking already cancelled")
	// ErrCancelled means a mutation other than cancel hit a cancelled
	// booking.
	ErrCancelled = errors.New("booking is cancelled")
	// ErrStaleToken means the caller's token version no longer matches the
	// booking's current version.
	ErrStaleToken = errors.New("stale token version")
)

// isPgConflict recognizes a lost race surfaced by the database itself:
// 23P01 is an exclusion-constraint violation (overlapping time range),
// 23505 a unique violation.
func isPgConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23P01" || pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
