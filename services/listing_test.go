package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bizscout/models"
	"bizscout/storage"
)

func TestListingService_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewListingService(store)

	listings := []models.NormalizedListing{baseListing(), baseListing()}
	listings[1].Name = "Coffee Roaster"
	listings[1].OriginalURL = "https://www.bizbuysell.com/business-for-sale/coffee/2305555/"

	var first, second ProcessStats
	for i := range listings {
		r, err := svc.Process(ctx, &listings[i], false)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		first.Aggregate(r)
	}
	for i := range listings {
		c := listings[i]
		r, err := svc.Process(ctx, &c, false)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		second.Aggregate(r)
	}

	if first.Inserted != 2 {
		t.Fatalf("expected 2 inserts, got %+v", first)
	}
	if second.Skipped != 2 || second.Inserted != 0 || second.Updated != 0 {
		t.Fatalf("second pass should skip everything, got %+v", second)
	}
	if n := len(store.All()); n != 2 {
		t.Fatalf("expected 2 stored rows, got %d", n)
	}
}

func TestListingService_UpdateAppliesPatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewListingService(store)

	l := baseListing()
	if _, err := svc.Process(ctx, &l, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	enriched := baseListing()
	enriched.AskingPrice = 0
	enriched.Description = strings.Repeat("d", 500)
	r, err := svc.Process(ctx, &enriched, false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if r.Action != ActionUpdate || len(r.Fields) != 1 || r.Fields[0] != "description" {
		t.Fatalf("unexpected result %+v", r)
	}

	got := store.All()[0]
	if got.AskingPrice != 1200000 || len(got.Description) != 500 {
		t.Fatalf("unexpected stored listing %+v", got)
	}
}

type failingStore struct {
	*storage.MemoryStore
}

func (f failingStore) Insert(ctx context.Context, l *models.NormalizedListing) (string, error) {
	return "", &storage.Error{Op: "insert", Err: errors.New("disk full")}
}

func TestListingService_StorageError(t *testing.T) {
	svc := NewListingService(failingStore{storage.NewMemoryStore()})
	l := baseListing()

	_, err := svc.Process(context.Background(), &l, false)
	var se *storage.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Profitable HVAC Company") {
		t.Fatalf("error should name the listing: %v", err)
	}

	var stats ProcessStats
	stats.RecordError()
	if stats.Errors != 1 || stats.Processed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
