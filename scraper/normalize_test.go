package scraper

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bizscout/models"
)

func TestNormalize_TitleFinancials(t *testing.T) {
	raw := models.RawListing{
		SourceName:      "quietlight",
		Title:           "  Kitchen Gadget   Brand $17.4M Revenue | $2.56M SDE ",
		DetailURL:       "https://quietlight.com/listings/16294/?utm_source=index#top",
		PriceText:       "Asking Price: $9,950,000",
		DescriptionText: "Category-leading kitchen gadget brand.",
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	l, err := Normalize(raw, now)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if l.Name != "Kitchen Gadget Brand $17.4M Revenue | $2.56M SDE" {
		t.Fatalf("unexpected name %q", l.Name)
	}
	if l.AskingPrice != 9950000 {
		t.Fatalf("expected price 9950000, got %d", l.AskingPrice)
	}
	if l.AnnualRevenue != 17400000 {
		t.Fatalf("expected revenue 17400000, got %d", l.AnnualRevenue)
	}
	if l.AnnualProfit != 2560000 {
		t.Fatalf("expected profit 2560000, got %d", l.AnnualProfit)
	}
	if l.OriginalURL != "https://quietlight.com/listings/16294/" {
		t.Fatalf("unexpected url %q", l.OriginalURL)
	}
	if l.Location != models.DefaultLocation {
		t.Fatalf("expected default location, got %q", l.Location)
	}
	if !l.ScrapedAt.Equal(now) {
		t.Fatalf("unexpected scraped_at %s", l.ScrapedAt)
	}
	want := []string{"Asking price $9,950,000", "Annual revenue $17,400,000", "Annual profit $2,560,000"}
	if strings.Join(l.Highlights, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected highlights %v", l.Highlights)
	}
}

func TestNormalize_PriceFieldOnlyRevenue(t *testing.T) {
	raw := models.RawListing{
		SourceName: "quietlight",
		Title:      "Bookkeeping SaaS",
		DetailURL:  "https://quietlight.com/listings/bookkeeping-saas/",
		PriceText:  "$1.2M revenue",
	}
	l, err := Normalize(raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if l.AskingPrice != 0 {
		t.Fatalf("a revenue figure in the price slot is not a price, got %d", l.AskingPrice)
	}
}

func TestNormalize_Caps(t *testing.T) {
	raw := models.RawListing{
		SourceName: "bizbuysell",
		Title:      strings.Repeat("n", 300),
		DetailURL:  "https://bbs.test/business-for-sale/x/1234567/",
		PriceText:  "$99999999999999999999",
		Highlights: []string{"one", " ", "two", "three", "four"},
	}
	l, err := Normalize(raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len([]rune(l.Name)) != models.MaxNameLength {
		t.Fatalf("expected name truncated to %d, got %d", models.MaxNameLength, len([]rune(l.Name)))
	}
	if l.AskingPrice != models.MaxSafeInteger {
		t.Fatalf("expected capped price, got %d", l.AskingPrice)
	}
	if len(l.Highlights) != 3 || l.Highlights[2] != "three" {
		t.Fatalf("unexpected highlights %v", l.Highlights)
	}
}

func TestNormalize_RevenueEstimateOnlyAfterDetailFailure(t *testing.T) {
	raw := models.RawListing{
		SourceName: "bizbuysell",
		Title:      "Pool Service Route",
		DetailURL:  "https://bbs.test/business-for-sale/pool/7654321/",
		PriceText:  "$200,000",
	}
	l, err := Normalize(raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if l.AnnualRevenue != 0 {
		t.Fatalf("no estimate without a detail failure, got %d", l.AnnualRevenue)
	}

	raw.DetailFailed = true
	raw.DescriptionText = "Pool Service Route. Revenue $150K."
	l, err = Normalize(raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if l.AnnualRevenue != 150000 {
		t.Fatalf("a real revenue signal beats the estimate, got %d", l.AnnualRevenue)
	}
}

func TestNormalize_NoIdentity(t *testing.T) {
	raw := models.RawListing{
		SourceName: "bizbuysell",
		Title:      "Confidential Manufacturing Business",
		DetailURL:  "/business-for-sale/relative/1234567/",
		PriceText:  "Not Disclosed",
	}
	l, err := Normalize(raw, time.Now())
	if !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if l.Name != "Confidential Manufacturing Business" || l.AskingPrice != 0 {
		t.Fatalf("listing should still be normalized: %+v", l)
	}
}
