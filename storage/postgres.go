package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"databd/models"
)

// PostgresStore implements the same contract as SQLiteStore for deployments
// that run the bot against a server database. The tables carry the same
// columns; seq is an explicit insertion counter standing in for SQLite's
// rowid so GetListings keeps its newest-first order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS real_estate_listings (
		seq BIGINT GENERATED ALWAYS AS IDENTITY,
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		price DOUBLE PRECISION,
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
		visible BOOLEAN DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS parsing_sessions (
		session_id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ DEFAULT NOW(),
		finished_at TIMESTAMPTZ,
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
		avg_price DOUBLE PRECISION,
		min_price DOUBLE PRECISION,
		max_price DOUBLE PRECISION,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_listings_source ON real_estate_listings(source);
	CREATE INDEX IF NOT EXISTS idx_listings_price ON real_estate_listings(price);
	CREATE INDEX IF NOT EXISTS idx_listings_coordinates ON real_estate_listings(lat, lng);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON parsing_sessions(status, started_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) StartSession(ctx context.Context, source, notes string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrMissingSource
	}

	sessionID := source + "_" + uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO parsing_sessions (session_id, started_at, source, status, notes)
		VALUES ($1, $2, $3, $4, $5)`,
		sessionID, time.Now(), source, models.SessionStatusRunning, notes)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return sessionID, nil
}

func (s *PostgresStore) FinishSession(ctx context.Context, sessionID string, totalParsed, totalSaved int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE parsing_sessions
		SET finished_at = $1, total_parsed = $2, total_saved = $3, status = $4
		WHERE session_id = $5 AND status = $6`,
		time.Now(), totalParsed, totalSaved, models.SessionStatusCompleted,
		sessionID, models.SessionStatusRunning)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM parsing_sessions WHERE session_id = $1`, sessionID).Scan(&status)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return fmt.Errorf("session %s has status %q: %w", sessionID, status, ErrSessionNotRunning)
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*models.ParsingSession, error) {
	var sess models.ParsingSession
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, started_at, finished_at, total_parsed, total_saved,
			source, status, COALESCE(notes, '')
		FROM parsing_sessions WHERE session_id = $1`, sessionID).Scan(
		&sess.SessionID, &sess.StartedAt, &sess.FinishedAt, &sess.TotalParsed,
		&sess.TotalSaved, &sess.Source, &sess.Status, &sess.Notes)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) SaveListing(ctx context.Context, l *models.Listing) (bool, error) {
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

	// xmax = 0 only holds for freshly inserted rows, which distinguishes
	// the insert path from the conflict-update path.
	var created bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO real_estate_listings (
			id, source, price, area, description, url, floor, address,
			lat, lng, seller, photos, status, visible
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			price = EXCLUDED.price,
			area = EXCLUDED.area,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			floor = EXCLUDED.floor,
			address = EXCLUDED.address,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			seller = EXCLUDED.seller,
			photos = EXCLUDED.photos,
			status = EXCLUDED.status,
			visible = EXCLUDED.visible
		RETURNING (xmax = 0)`,
		l.ID, l.Source, l.Price, l.Area, l.Description, l.URL, l.Floor,
		l.Address, l.Lat, l.Lng, l.Seller.Encode(), photos, status, l.Visible,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("save listing %s: %w", l.ID, err)
	}
	return created, nil
}

const pgListingColumns = `id, source, COALESCE(price, 0), COALESCE(area, ''),
	COALESCE(description, ''), COALESCE(url, ''), COALESCE(floor, ''),
	COALESCE(address, ''), COALESCE(lat, ''), COALESCE(lng, ''),
	COALESCE(seller, ''), COALESCE(photos, ''), COALESCE(status, 'open'), visible`

func (s *PostgresStore) GetListingByID(ctx context.Context, id string) (*models.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgListingColumns+` FROM real_estate_listings WHERE id = $1`, id)

	l, err := scanListing(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) GetListings(ctx context.Context, limit, offset int, filter ListingFilter) ([]models.Listing, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + pgListingColumns + ` FROM real_estate_listings`
	var where []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Source != "" {
		where = append(where, "source = "+arg(filter.Source))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.VisibleOnly {
		where = append(where, "visible = TRUE")
	}
	if filter.MinPrice > 0 {
		where = append(where, "price >= "+arg(filter.MinPrice))
	}
	if filter.MaxPrice > 0 {
		where = append(where, "price <= "+arg(filter.MaxPrice))
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *PostgresStore) MarkListingClosed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE real_estate_listings SET status = $1 WHERE id = $2`,
		models.ListingStatusClosed, id)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SetListingVisible(ctx context.Context, id string, visible bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE real_estate_listings SET visible = $1 WHERE id = $2`, visible, id)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{BySource: make(map[string]int)}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN visible THEN 1 END),
			COALESCE(AVG(CASE WHEN price > 0 THEN price END), 0),
			COALESCE(MIN(CASE WHEN price > 0 THEN price END), 0),
			COALESCE(MAX(CASE WHEN price > 0 THEN price END), 0)
		FROM real_estate_listings`).Scan(
		&stats.TotalListings, &stats.VisibleListings,
		&stats.AvgPrice, &stats.MinPrice, &stats.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("listing stats: %w", err)
	}

	rows, err := s.pool.Query(ctx,
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

	err = s.pool.QueryRow(ctx, `
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

func (s *PostgresStore) ComputeDailyStats(ctx context.Context, date string) error {
	if err := validateDate(date); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_stats (date, total_listings, new_listings, updated_listings,
			avg_price, min_price, max_price, created_at)
		SELECT
			$1, COUNT(*), 0, 0,
			COALESCE(AVG(CASE WHEN price > 0 THEN price END), 0),
			COALESCE(MIN(CASE WHEN price > 0 THEN price END), 0),
			COALESCE(MAX(CASE WHEN price > 0 THEN price END), 0),
			$2
		FROM real_estate_listings WHERE visible
		ON CONFLICT (date) DO UPDATE SET
			total_listings = EXCLUDED.total_listings,
			avg_price = EXCLUDED.avg_price,
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price`,
		date, time.Now())
	if err != nil {
		return fmt.Errorf("compute daily stats: %w", err)
	}
	return nil
}

func (s *PostgresStore) BumpDailyCounts(ctx context.Context, date string, newCount, updatedCount int) error {
	if err := validateDate(date); err != nil {
		return err
	}
	if newCount == 0 && updatedCount == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_stats (date, new_listings, updated_listings, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date) DO UPDATE SET
			new_listings = daily_stats.new_listings + EXCLUDED.new_listings,
			updated_listings = daily_stats.updated_listings + EXCLUDED.updated_listings`,
		date, newCount, updatedCount, time.Now())
	if err != nil {
		return fmt.Errorf("bump daily counts: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDailyStat(ctx context.Context, date string) (*models.DailyStat, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}

	var d models.DailyStat
	err := s.pool.QueryRow(ctx, `
		SELECT date, total_listings, new_listings, updated_listings,
			COALESCE(avg_price, 0), COALESCE(min_price, 0), COALESCE(max_price, 0), created_at
		FROM daily_stats WHERE date = $1`, date).Scan(
		&d.Date, &d.TotalListings, &d.NewListings, &d.UpdatedListings,
		&d.AvgPrice, &d.MinPrice, &d.MaxPrice, &d.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("daily stats %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get daily stats: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) ResetAllData() error {
	ctx := context.Background()
	tables := []string{
		"daily_stats",
		"parsing_sessions",
		"real_estate_listings",
	}

	for _, table := range tables {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
