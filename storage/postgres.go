package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bizscout/models"
)

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
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS business_listings (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			asking_price BIGINT NOT NULL DEFAULT 0,
			annual_revenue BIGINT NOT NULL DEFAULT 0,
			annual_profit BIGINT NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			industry TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			original_url TEXT NOT NULL,
			highlights TEXT[] NOT NULL DEFAULT '{}',
			scraped_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (name, original_url)
		);

		CREATE INDEX IF NOT EXISTS idx_business_listings_url ON business_listings(original_url);

		CREATE TABLE IF NOT EXISTS scrape_runs (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT,
			source TEXT,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			status TEXT,
			listings_found INT DEFAULT 0,
			listings_new INT DEFAULT 0,
			listings_updated INT DEFAULT 0,
			listings_skipped INT DEFAULT 0,
			errors_count INT DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS scrape_logs (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT,
			session_id TEXT,
			timestamp TIMESTAMPTZ,
			level TEXT,
			message TEXT,
			source TEXT
		);`)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return wrap("ping", s.pool.Ping(ctx))
}

// =============================================================================
// Listings
// =============================================================================

const pgListingColumns = `id, name, asking_price, annual_revenue, annual_profit, description, industry,
	location, source, original_url, highlights, scraped_at, created_at, updated_at`

func (s *PostgresStore) FindByIdentity(ctx context.Context, key models.IdentityKey) (*models.StoredListing, error) {
	var row pgx.Row
	if key.Name == "" {
		row = s.pool.QueryRow(ctx, `SELECT `+pgListingColumns+`
			FROM business_listings WHERE original_url = $1 ORDER BY created_at LIMIT 1`, key.URL)
	} else {
		row = s.pool.QueryRow(ctx, `SELECT `+pgListingColumns+`
			FROM business_listings WHERE name = $1 AND original_url = $2`, key.Name, key.URL)
	}

	l, err := scanPgListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find", err)
	}
	return l, nil
}

func (s *PostgresStore) Insert(ctx context.Context, l *models.NormalizedListing) (string, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO business_listings (
			id, name, asking_price, annual_revenue, annual_profit, description, industry,
			location, source, original_url, highlights, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, l.Name, l.AskingPrice, l.AnnualRevenue, l.AnnualProfit, l.Description, l.Industry,
		l.Location, l.Source, l.OriginalURL, nonNil(l.Highlights), l.ScrapedAt,
	)
	if err != nil {
		return "", wrap("insert", err)
	}
	return id.String(), nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch models.ListingPatch) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	cols, vals := patchColumns(patch)
	if len(patch.Highlights) > 0 {
		cols = append(cols, "highlights")
		vals = append(vals, patch.Highlights)
	}

	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+2))
	}
	sets = append(sets, "updated_at = NOW()")

	args := append([]any{uid}, vals...)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE business_listings SET %s WHERE id = $1", strings.Join(sets, ", ")), args...)
	if err != nil {
		return wrap("update", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListIncomplete(ctx context.Context, limit int) ([]models.StoredListing, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgListingColumns+`
		FROM business_listings
		WHERE asking_price = 0 OR annual_revenue = 0 OR description = ''
		ORDER BY updated_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("list incomplete", err)
	}
	defer rows.Close()

	var listings []models.StoredListing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, wrap("list incomplete", err)
		}
		listings = append(listings, *l)
	}
	return listings, wrap("list incomplete", rows.Err())
}

func scanPgListing(row pgx.Row) (*models.StoredListing, error) {
	var l models.StoredListing
	var id uuid.UUID
	var scrapedAt *time.Time
	if err := row.Scan(&id, &l.Name, &l.AskingPrice, &l.AnnualRevenue, &l.AnnualProfit, &l.Description,
		&l.Industry, &l.Location, &l.Source, &l.OriginalURL, &l.Highlights, &scrapedAt,
		&l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.ID = id.String()
	if scrapedAt != nil {
		l.ScrapedAt = *scrapedAt
	}
	return &l, nil
}

// =============================================================================
// Run ledger
// =============================================================================

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scrape_runs (session_id, source, started_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		run.SessionID, run.Source, run.StartedAt, string(run.Status),
	).Scan(&run.ID)
	if err != nil {
		return 0, wrap("create run", err)
	}
	return run.ID, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs SET
			finished_at = $2, status = $3, listings_found = $4, listings_new = $5,
			listings_updated = $6, listings_skipped = $7, errors_count = $8
		WHERE id = $1`,
		run.ID, run.FinishedAt, string(run.Status), run.ListingsFound, run.ListingsNew,
		run.ListingsUpdated, run.ListingsSkipped, run.ErrorsCount,
	)
	return wrap("update run", err)
}

func (s *PostgresStore) Log(ctx context.Context, entry *models.ScrapeLog) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scrape_logs (run_id, session_id, timestamp, level, message, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.RunID, entry.SessionID, entry.Timestamp, string(entry.Level), entry.Message, entry.Source,
	).Scan(&entry.ID)
	return wrap("log", err)
}

func (s *PostgresStore) LastRun(ctx context.Context, source string) (*models.ScrapeRun, error) {
	var r models.ScrapeRun
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, source, started_at, finished_at, status, listings_found, listings_new,
			listings_updated, listings_skipped, errors_count
		FROM scrape_runs WHERE source = $1 ORDER BY started_at DESC, id DESC LIMIT 1`, source,
	).Scan(&r.ID, &r.SessionID, &r.Source, &r.StartedAt, &r.FinishedAt, &status,
		&r.ListingsFound, &r.ListingsNew, &r.ListingsUpdated, &r.ListingsSkipped, &r.ErrorsCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("last run", err)
	}
	r.Status = models.RunStatus(status)
	return &r, nil
}
