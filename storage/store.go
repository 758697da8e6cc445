package storage

import (
	"context"
	"errors"
	"fmt"

	"databd/models"
)

// DateLayout is the key format of the daily_stats table.
const DateLayout = "2006-01-02"

// ErrValidation is the base of all input-validation failures; match it with
// errors.Is to separate bad input from storage failures.
var ErrValidation = errors.New("validation failed")

var (
	ErrMissingID     = fmt.Errorf("listing id is required: %w", ErrValidation)
	ErrMissingSource = fmt.Errorf("source is required: %w", ErrValidation)
	ErrInvalidDate   = fmt.Errorf("date must be YYYY-MM-DD: %w", ErrValidation)

	// ErrNotFound reports a lookup that matched no row.
	ErrNotFound = errors.New("not found")

	// ErrSessionNotRunning reports an attempt to finish a session that is
	// already finished (or otherwise left the running state).
	ErrSessionNotRunning = errors.New("session is not running")
)

// ListingFilter narrows GetListings. The zero value matches everything.
type ListingFilter struct {
	Source      string
	Status      models.ListingStatus
	VisibleOnly bool
	MinPrice    float64
	MaxPrice    float64
}

// Store is the persistence contract for listings, parsing sessions and daily
// statistics. SQLiteStore is the primary backend; PostgresStore implements
// the same contract for deployments running against a server database.
//
// Writes are atomic per call. Reads may run concurrently with writes and
// observe either the pre- or post-write state of a row.
type Store interface {
	// StartSession creates a parsing-session row in the running state and
	// returns its generated id.
	StartSession(ctx context.Context, source, notes string) (string, error)

	// FinishSession records the final counts and completion time, exactly
	// once. It returns ErrNotFound for an unknown id and ErrSessionNotRunning
	// for a session that already finished; neither case mutates any row.
	FinishSession(ctx context.Context, sessionID string, totalParsed, totalSaved int) error

	GetSession(ctx context.Context, sessionID string) (*models.ParsingSession, error)

	// SaveListing upserts by listing id and reports whether a new row was
	// created. Repeated calls with identical data are idempotent.
	SaveListing(ctx context.Context, l *models.Listing) (created bool, err error)

	GetListingByID(ctx context.Context, id string) (*models.Listing, error)

	// GetListings returns listings in insertion order, newest first.
	// limit <= 0 falls back to a default page size.
	GetListings(ctx context.Context, limit, offset int, filter ListingFilter) ([]models.Listing, error)

	// MarkListingClosed and SetListingVisible are the soft-delete writes;
	// rows are never physically removed in normal operation.
	MarkListingClosed(ctx context.Context, id string) error
	SetListingVisible(ctx context.Context, id string, visible bool) error

	// GetStatistics computes the aggregate view from current table contents.
	GetStatistics(ctx context.Context) (*models.Statistics, error)

	// ComputeDailyStats recomputes the snapshot row for date from the
	// currently visible listings, overwriting the previous snapshot. The
	// date's new/updated counters are preserved; BumpDailyCounts maintains
	// those as sessions finish.
	ComputeDailyStats(ctx context.Context, date string) error
	BumpDailyCounts(ctx context.Context, date string, newCount, updatedCount int) error
	GetDailyStat(ctx context.Context, date string) (*models.DailyStat, error)

	// ResetAllData clears all three tables.
	ResetAllData() error

	Close() error
}
