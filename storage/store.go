// Package storage persists normalized listings and the scrape run ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bizscout/models"
)

var ErrNotFound = errors.New("listing not found")

// Error wraps a backend failure with the operation that hit it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// ListingStore is the persistence port the dedup service talks to.
// FindByIdentity returns nil, nil when nothing matches.
type ListingStore interface {
	Ping(ctx context.Context) error
	FindByIdentity(ctx context.Context, key models.IdentityKey) (*models.StoredListing, error)
	Insert(ctx context.Context, l *models.NormalizedListing) (string, error)
	Update(ctx context.Context, id string, patch models.ListingPatch) error
	Close() error
}

// IncompleteLister is implemented by stores that can hand back listings
// still missing a price, revenue or description.
type IncompleteLister interface {
	ListIncomplete(ctx context.Context, limit int) ([]models.StoredListing, error)
}

// RunLedger records one row per source per session plus its log lines.
type RunLedger interface {
	CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error)
	UpdateRun(ctx context.Context, run *models.ScrapeRun) error
	Log(ctx context.Context, entry *models.ScrapeLog) error
	LastRun(ctx context.Context, source string) (*models.ScrapeRun, error)
}

// patchColumns flattens a patch into column/value pairs. Highlights are
// left to the caller since each backend encodes them differently.
func patchColumns(p models.ListingPatch) ([]string, []any) {
	var cols []string
	var vals []any
	if p.Description != nil {
		cols = append(cols, "description")
		vals = append(vals, *p.Description)
	}
	if p.AskingPrice != nil {
		cols = append(cols, "asking_price")
		vals = append(vals, *p.AskingPrice)
	}
	if p.AnnualRevenue != nil {
		cols = append(cols, "annual_revenue")
		vals = append(vals, *p.AnnualRevenue)
	}
	if p.AnnualProfit != nil {
		cols = append(cols, "annual_profit")
		vals = append(vals, *p.AnnualProfit)
	}
	if p.Industry != nil {
		cols = append(cols, "industry")
		vals = append(vals, *p.Industry)
	}
	if p.Location != nil {
		cols = append(cols, "location")
		vals = append(vals, *p.Location)
	}
	if !p.ScrapedAt.IsZero() {
		cols = append(cols, "scraped_at")
		vals = append(vals, p.ScrapedAt)
	}
	return cols, vals
}

func isIncomplete(l *models.NormalizedListing) bool {
	return l.AskingPrice == 0 || l.AnnualRevenue == 0 || l.Description == ""
}

func now() time.Time {
	return time.Now().UTC()
}
