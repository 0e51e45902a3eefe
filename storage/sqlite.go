package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"bizscout/models"
)

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
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		asking_price INTEGER NOT NULL DEFAULT 0,
		annual_revenue INTEGER NOT NULL DEFAULT 0,
		annual_profit INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		industry TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		original_url TEXT NOT NULL,
		highlights JSON,
		scraped_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE(name, original_url)
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		session_id TEXT,
		source TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER,
		listings_new INTEGER,
		listings_updated INTEGER,
		listings_skipped INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		session_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_listings_url ON listings(original_url);
	CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source, updated_at);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_source ON scrape_runs(source, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

const sqliteListingColumns = `id, name, asking_price, annual_revenue, annual_profit, description, industry,
	location, source, original_url, highlights, scraped_at, created_at, updated_at`

func (s *SQLiteStore) FindByIdentity(ctx context.Context, key models.IdentityKey) (*models.StoredListing, error) {
	var row *sql.Row
	if key.Name == "" {
		row = s.db.QueryRowContext(ctx, `SELECT `+sqliteListingColumns+`
			FROM listings WHERE original_url = ? ORDER BY created_at LIMIT 1`, key.URL)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+sqliteListingColumns+`
			FROM listings WHERE name = ? AND original_url = ?`, key.Name, key.URL)
	}

	l, err := scanSQLiteListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find", err)
	}
	return l, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, l *models.NormalizedListing) (string, error) {
	highlights, err := json.Marshal(nonNil(l.Highlights))
	if err != nil {
		return "", wrap("insert", err)
	}

	id := uuid.NewString()
	ts := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (id, name, asking_price, annual_revenue, annual_profit, description, industry,
			location, source, original_url, highlights, scraped_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, l.Name, l.AskingPrice, l.AnnualRevenue, l.AnnualProfit, l.Description, l.Industry,
		l.Location, l.Source, l.OriginalURL, string(highlights), l.ScrapedAt, ts, ts)
	if err != nil {
		return "", wrap("insert", err)
	}
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch models.ListingPatch) error {
	cols, vals := patchColumns(patch)
	if len(patch.Highlights) > 0 {
		h, err := json.Marshal(patch.Highlights)
		if err != nil {
			return wrap("update", err)
		}
		cols = append(cols, "highlights")
		vals = append(vals, string(h))
	}
	cols = append(cols, "updated_at")
	vals = append(vals, now())

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	vals = append(vals, id)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE listings SET %s WHERE id = ?", strings.Join(sets, ", ")), vals...)
	if err != nil {
		return wrap("update", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return wrap("update", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListIncomplete(ctx context.Context, limit int) ([]models.StoredListing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteListingColumns+`
		FROM listings
		WHERE asking_price = 0 OR annual_revenue = 0 OR description = ''
		ORDER BY updated_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("list incomplete", err)
	}
	defer rows.Close()

	var listings []models.StoredListing
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, wrap("list incomplete", err)
		}
		listings = append(listings, *l)
	}
	return listings, wrap("list incomplete", rows.Err())
}

// CountBySource returns how many listings each source has stored.
func (s *SQLiteStore) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM listings GROUP BY source`)
	if err != nil {
		return nil, wrap("count", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, wrap("count", err)
		}
		counts[source] = n
	}
	return counts, wrap("count", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteListing(row rowScanner) (*models.StoredListing, error) {
	var l models.StoredListing
	var highlights sql.NullString
	if err := row.Scan(&l.ID, &l.Name, &l.AskingPrice, &l.AnnualRevenue, &l.AnnualProfit, &l.Description,
		&l.Industry, &l.Location, &l.Source, &l.OriginalURL, &highlights, &l.ScrapedAt,
		&l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if highlights.Valid && highlights.String != "" {
		if err := json.Unmarshal([]byte(highlights.String), &l.Highlights); err != nil {
			return nil, fmt.Errorf("decode highlights for %s: %w", l.ID, err)
		}
	}
	return &l, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// =============================================================================
// Run ledger
// =============================================================================

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (session_id, source, started_at, status, listings_found, listings_new,
			listings_updated, listings_skipped, errors_count)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0, 0)`,
		run.SessionID, run.Source, run.StartedAt, run.Status)
	if err != nil {
		return 0, wrap("create run", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, wrap("create run", err)
	}
	run.ID = id
	return id, nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrape_runs SET finished_at = ?, status = ?, listings_found = ?,
			listings_new = ?, listings_updated = ?, listings_skipped = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.ListingsFound, run.ListingsNew,
		run.ListingsUpdated, run.ListingsSkipped, run.ErrorsCount, run.ID)
	return wrap("update run", err)
}

func (s *SQLiteStore) Log(ctx context.Context, entry *models.ScrapeLog) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_logs (run_id, session_id, timestamp, level, message, source)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.SessionID, entry.Timestamp, entry.Level, entry.Message, entry.Source)
	if err != nil {
		return wrap("log", err)
	}
	entry.ID, _ = result.LastInsertId()
	return nil
}

func (s *SQLiteStore) LastRun(ctx context.Context, source string) (*models.ScrapeRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, source, started_at, finished_at, status, listings_found, listings_new,
			listings_updated, listings_skipped, errors_count
		FROM scrape_runs WHERE source = ? ORDER BY started_at DESC, id DESC LIMIT 1`, source)

	var r models.ScrapeRun
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.SessionID, &r.Source, &r.StartedAt, &finished, &r.Status,
		&r.ListingsFound, &r.ListingsNew, &r.ListingsUpdated, &r.ListingsSkipped, &r.ErrorsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("last run", err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// RunLogs returns the log lines recorded for a ledger run, oldest first.
func (s *SQLiteStore) RunLogs(ctx context.Context, runID int64) ([]models.ScrapeLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, session_id, timestamp, level, message, source
		FROM scrape_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, wrap("run logs", err)
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		var rid sql.NullInt64
		if err := rows.Scan(&l.ID, &rid, &l.SessionID, &l.Timestamp, &l.Level, &l.Message, &l.Source); err != nil {
			return nil, wrap("run logs", err)
		}
		if rid.Valid {
			v := rid.Int64
			l.RunID = &v
		}
		logs = append(logs, l)
	}
	return logs, wrap("run logs", rows.Err())
}
