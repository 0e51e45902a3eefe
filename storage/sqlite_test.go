package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bizscout/models"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleListing() *models.NormalizedListing {
	return &models.NormalizedListing{
		Name:        "Profitable HVAC Company",
		AskingPrice: 1200000,
		Description: "Short blurb",
		Location:    "Austin, TX",
		Source:      "bizbuysell",
		OriginalURL: "https://www.bizbuysell.com/business-for-sale/hvac/2301234/",
		Highlights:  []string{"Established 1998"},
		ScrapedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteStore_InsertFindUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	l := sampleListing()
	id, err := store.Insert(ctx, l)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.FindByIdentity(ctx, models.KeyFor(l, false))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.ID != id {
		t.Fatalf("expected listing %s, got %+v", id, got)
	}
	if got.AskingPrice != 1200000 || len(got.Highlights) != 1 {
		t.Fatalf("unexpected stored values %+v", got)
	}

	desc := "A much longer description of the business"
	rev := int64(800000)
	if err := store.Update(ctx, id, models.ListingPatch{Description: &desc, AnnualRevenue: &rev}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err = store.FindByIdentity(ctx, models.IdentityKey{URL: l.OriginalURL})
	if err != nil {
		t.Fatalf("find by url: %v", err)
	}
	if got.Description != desc || got.AnnualRevenue != rev {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.AskingPrice != 1200000 {
		t.Fatalf("asking price should be untouched, got %d", got.AskingPrice)
	}
}

func TestSQLiteStore_FindMissing(t *testing.T) {
	store := newTestSQLite(t)
	got, err := store.FindByIdentity(context.Background(), models.IdentityKey{Name: "x", URL: "https://example.com/1"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestSQLiteStore_UpdateMissing(t *testing.T) {
	store := newTestSQLite(t)
	desc := "x"
	err := store.Update(context.Background(), "nope", models.ListingPatch{Description: &desc})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_DuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	if _, err := store.Insert(ctx, sampleListing()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := store.Insert(ctx, sampleListing())
	var se *Error
	if !errors.As(err, &se) || se.Op != "insert" {
		t.Fatalf("expected storage insert error, got %v", err)
	}
}

func TestSQLiteStore_ListIncomplete(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	complete := sampleListing()
	complete.AnnualRevenue = 500000
	if _, err := store.Insert(ctx, complete); err != nil {
		t.Fatalf("insert: %v", err)
	}

	partial := sampleListing()
	partial.Name = "Lawn Care Route"
	partial.OriginalURL = "https://www.bizbuysell.com/business-for-sale/lawn/2309999/"
	if _, err := store.Insert(ctx, partial); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.ListIncomplete(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Lawn Care Route" {
		t.Fatalf("expected only the partial listing, got %+v", got)
	}
}

func TestSQLiteStore_RunLedger(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	run := &models.ScrapeRun{
		SessionID: "s1",
		Source:    "quietlight",
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	id, err := store.CreateRun(ctx, run)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := store.Log(ctx, &models.ScrapeLog{
		RunID: &id, SessionID: "s1", Timestamp: time.Now().UTC(),
		Level: models.LogLevelInfo, Message: "[info] quietlight: page 1", Source: "quietlight",
	}); err != nil {
		t.Fatalf("log: %v", err)
	}

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.ListingsFound = 4
	run.ListingsNew = 3
	run.ListingsSkipped = 1
	if err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	last, err := store.LastRun(ctx, "quietlight")
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last == nil || last.ID != id || last.Status != models.RunStatusCompleted || last.ListingsNew != 3 {
		t.Fatalf("unexpected last run %+v", last)
	}
	if last.FinishedAt == nil {
		t.Fatalf("expected finished_at to be set")
	}

	logs, err := store.RunLogs(ctx, id)
	if err != nil {
		t.Fatalf("run logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Level != models.LogLevelInfo {
		t.Fatalf("unexpected logs %+v", logs)
	}

	none, err := store.LastRun(ctx, "bizbuysell")
	if err != nil || none != nil {
		t.Fatalf("expected no run for bizbuysell, got %+v, %v", none, err)
	}
}
