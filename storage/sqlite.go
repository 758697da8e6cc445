package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"databd/models"
)

const defaultPageSize = 100

// SQLiteStore is the primary backend. The schema matches the bot's existing
// database file column for column, so it opens databases written by earlier
// versions of the tooling unchanged.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS real_estate_listings (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		price REAL,
		area TEXT,
		description TEXT,
		url TEXT,
		floor TEXT,
		address TEXT,
		lat TEXT,
		lng TEXT,
		seller TEXT,
		photos TEXT,
		status TEXT DEFAULT 'open',
		visible INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS parsing_sessions (
		session_id TEXT PRIMARY KEY,
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP,
		total_parsed INTEGER DEFAULT 0,
		total_saved INTEGER DEFAULT 0,
		source TEXT,
		status TEXT DEFAULT 'running',
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS daily_stats (
		date TEXT PRIMARY KEY,
		total_listings INTEGER DEFAULT 0,
		new_listings INTEGER DEFAULT 0,
		updated_listings INTEGER DEFAULT 0,
		avg_price REAL,
		min_price REAL,
		max_price REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_listings_source ON real_estate_listings(source);
	CREATE INDEX IF NOT EXISTS idx_listings_price ON real_estate_listings(price);
	CREATE INDEX IF NOT EXISTS idx_listings_coordinates ON real_estate_listings(lat, lng);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON parsing_sessions(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) StartSession(ctx context.Context, source, notes string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrMissingSource
	}

	sessionID := source + "_" + uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parsing_sessions (session_id, started_at, source, status, notes)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, time.Now(), source, models.SessionStatusRunning, notes)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return sessionID, nil
}

func (s *SQLiteStore) FinishSession(ctx context.Context, sessionID string, totalParsed, totalSaved int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE parsing_sessions
		SET finished_at = ?, total_parsed = ?, total_saved = ?, status = ?
		WHERE session_id = ? AND status = ?`,
		time.Now(), totalParsed, totalSaved, models.SessionStatusCompleted,
		sessionID, models.SessionStatusRunning)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM parsing_sessions WHERE session_id = ?`, sessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return fmt.Errorf("session %s has status %q: %w", sessionID, status, ErrSessionNotRunning)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*models.ParsingSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, started_at, finished_at, total_parsed, total_saved,
			source, status, COALESCE(notes, '')
		FROM parsing_sessions WHERE session_id = ?`, sessionID)

	var sess models.ParsingSession
	var finishedAt sql.NullTime
	err := row.Scan(&sess.SessionID, &sess.StartedAt, &finishedAt, &sess.TotalParsed,
		&sess.TotalSaved, &sess.Source, &sess.Status, &sess.Notes)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		sess.FinishedAt = &t
	}
	return &sess, nil
}

// SaveListing upserts by id inside one transaction: either the whole
// observation lands or the prior row stays untouched.
func (s *SQLiteStore) SaveListing(ctx context.Context, l *models.Listing) (bool, error) {
	if strings.TrimSpace(l.ID) == "" {
		return false, ErrMissingID
	}
	if strings.TrimSpace(l.Source) == "" {
		return false, ErrMissingSource
	}

	status := l.Status
	if status == "" {
		status = models.ListingStatusOpen
	}
	photos, err := models.EncodePhotos(l.Photos)
	if err != nil {
		return false, fmt.Errorf("encode photos: %w", err)
	}
	seller := l.Seller.Encode()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("save listing: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM real_estate_listings WHERE id = ?`, l.ID).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO real_estate_listings (
				id, source, price, area, description, url, floor, address,
				lat, lng, seller, photos, status, visible
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.Source, l.Price, l.Area, l.Description, l.URL, l.Floor,
			l.Address, l.Lat, l.Lng, seller, photos, status, l.Visible)
		if err != nil {
			return false, fmt.Errorf("insert listing %s: %w", l.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("save listing: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("save listing: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE real_estate_listings SET
			source = ?, price = ?, area = ?, description = ?, url = ?,
			floor = ?, address = ?, lat = ?, lng = ?, seller = ?,
			photos = ?, status = ?, visible = ?
		WHERE id = ?`,
		l.Source, l.Price, l.Area, l.Description, l.URL, l.Floor, l.Address,
		l.Lat, l.Lng, seller, photos, status, l.Visible, l.ID)
	if err != nil {
		return false, fmt.Errorf("update listing %s: %w", l.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("save listing: %w", err)
	}
	return false, nil
}

const listingColumns = `id, source, COALESCE(price, 0), COALESCE(area, ''),
	COALESCE(description, ''), COALESCE(url, ''), COALESCE(floor, ''),
	COALESCE(address, ''), COALESCE(lat, ''), COALESCE(lng, ''),
	COALESCE(seller, ''), COALESCE(photos, ''), COALESCE(status, 'open'), visible`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var seller, photos string
	err := row.Scan(&l.ID, &l.Source, &l.Price, &l.Area, &l.Description, &l.URL,
		&l.Floor, &l.Address, &l.Lat, &l.Lng, &seller, &photos, &l.Status, &l.Visible)
	if err != nil {
		return nil, err
	}
	l.Seller = models.ParseSeller(seller)
	l.Photos = models.DecodePhotos(photos)
	return &l, nil
}

func (s *SQLiteStore) GetListingByID(ctx context.Context, id string) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM real_estate_listings WHERE id = ?`, id)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) GetListings(ctx context.Context, limit, offset int, filter ListingFilter) ([]models.Listing, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + listingColumns + ` FROM real_estate_listings`
	var where []string
	var args []interface{}

	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.VisibleOnly {
		where = append(where, "visible = 1")
	}
	if filter.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, filter.MaxPrice)
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("get listings: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) MarkListingClosed(ctx context.Context, id string) error {
	return s.updateListingFlag(ctx, id,
		`UPDATE real_estate_listings SET status = ? WHERE id = ?`,
		models.ListingStatusClosed, id)
}

func (s *SQLiteStore) SetListingVisible(ctx context.Context, id string, visible bool) error {
	return s.updateListingFlag(ctx, id,
		`UPDATE real_estate_listings SET visible = ? WHERE id = ?`,
		visible, id)
}

func (s *SQLiteStore) updateListingFlag(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{BySource: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN visible = 1 THEN 1 END),
			COALESCE(AVG(CASE WHEN price > 0 THEN price END), 0),
			COALESCE(MIN(CASE WHEN price > 0 THEN price END), 0),
			COALESCE(MAX(CASE WHEN price > 0 THEN price END), 0)
		FROM real_estate_listings`).Scan(
		&stats.TotalListings, &stats.VisibleListings,
		&stats.AvgPrice, &stats.MinPrice, &stats.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("listing stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM real_estate_listings GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("source stats: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'running' THEN 1 END)
		FROM parsing_sessions`).Scan(
		&stats.Sessions.Total, &stats.Sessions.Completed, &stats.Sessions.Running)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}

	return stats, nil
}

// ComputeDailyStats snapshots the visible listings into the row for date.
// Price aggregates and the total count overwrite the previous snapshot; the
// new/updated counters and created_at of an existing row are preserved.
func (s *SQLiteStore) ComputeDailyStats(ctx context.Context, date string) error {
	if err := validateDate(date); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (date, total_listings, new_listings, updated_listings,
			avg_price, min_price, max_price, created_at)
		SELECT
			?, COUNT(*), 0, 0,
			COALESCE(AVG(CASE WHEN price > 0 THEN price END), 0),
			COALESCE(MIN(CASE WHEN price > 0 THEN price END), 0),
			COALESCE(MAX(CASE WHEN price > 0 THEN price END), 0),
			?
		FROM real_estate_listings WHERE visible = 1
		ON CONFLICT(date) DO UPDATE SET
			total_listings = excluded.total_listings,
			avg_price = excluded.avg_price,
			min_price = excluded.min_price,
			max_price = excluded.max_price`,
		date, time.Now())
	if err != nil {
		return fmt.Errorf("compute daily stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) BumpDailyCounts(ctx context.Context, date string, newCount, updatedCount int) error {
	if err := validateDate(date); err != nil {
		return err
	}
	if newCount == 0 && updatedCount == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (date, new_listings, updated_listings, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			new_listings = new_listings + excluded.new_listings,
			updated_listings = updated_listings + excluded.updated_listings`,
		date, newCount, updatedCount, time.Now())
	if err != nil {
		return fmt.Errorf("bump daily counts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDailyStat(ctx context.Context, date string) (*models.DailyStat, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT date, total_listings, new_listings, updated_listings,
			COALESCE(avg_price, 0), COALESCE(min_price, 0), COALESCE(max_price, 0), created_at
		FROM daily_stats WHERE date = ?`, date)

	var d models.DailyStat
	err := row.Scan(&d.Date, &d.TotalListings, &d.NewListings, &d.UpdatedListings,
		&d.AvgPrice, &d.MinPrice, &d.MaxPrice, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("daily stats %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get daily stats: %w", err)
	}
	return &d, nil
}

// ResetAllData clears all three tables.
func (s *SQLiteStore) ResetAllData() error {
	tables := []string{
		"daily_stats",
		"parsing_sessions",
		"real_estate_listings",
	}

	for _, table := range tables {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func validateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%q: %w", date, ErrInvalidDate)
	}
	return nil
}
