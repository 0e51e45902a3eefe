package services

import (
	"strings"
	"testing"
	"time"

	"bizscout/models"
)

func stored(l models.NormalizedListing) *models.StoredListing {
	return &models.StoredListing{ID: "id-1", NormalizedListing: l}
}

func baseListing() models.NormalizedListing {
	return models.NormalizedListing{
		Name:        "Profitable HVAC Company",
		AskingPrice: 1200000,
		Location:    "Austin, TX",
		Source:      "bizbuysell",
		OriginalURL: "https://www.bizbuysell.com/business-for-sale/hvac/2301234/",
		ScrapedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDecide_InsertWhenAbsent(t *testing.T) {
	c := baseListing()
	if d := Decide(&c, nil); d.Action != ActionInsert {
		t.Fatalf("expected insert, got %s", d.Action)
	}
}

func TestDecide_SkipWhenIdentical(t *testing.T) {
	c := baseListing()
	c.Description = "Same text"
	e := stored(c)
	if d := Decide(&c, e); d.Action != ActionSkip {
		t.Fatalf("expected skip, got %s with %v", d.Action, d.Patch.Fields())
	}
}

func TestDecide_LongerDescriptionKeepsPrice(t *testing.T) {
	existing := baseListing()
	existing.Description = ""

	c := baseListing()
	c.AskingPrice = 0
	c.Description = strings.Repeat("x", 500)

	d := Decide(&c, stored(existing))
	if d.Action != ActionUpdate {
		t.Fatalf("expected update, got %s", d.Action)
	}
	if d.Patch.Description == nil || len(*d.Patch.Description) != 500 {
		t.Fatalf("expected description in patch")
	}
	if d.Patch.AskingPrice != nil {
		t.Fatalf("zero asking price must not overwrite stored %d", existing.AskingPrice)
	}

	merged := existing
	d.Patch.Apply(&merged)
	if merged.AskingPrice != 1200000 {
		t.Fatalf("asking price changed to %d", merged.AskingPrice)
	}
}

func TestDecide_ShorterDescriptionSkips(t *testing.T) {
	existing := baseListing()
	existing.Description = "A detailed description of the company"
	c := baseListing()
	c.Description = "Short"
	if d := Decide(&c, stored(existing)); d.Action != ActionSkip {
		t.Fatalf("expected skip, got %s", d.Action)
	}
}

func TestDecide_ZeroFieldsFilled(t *testing.T) {
	existing := baseListing()
	existing.AskingPrice = 0

	c := baseListing()
	c.AnnualRevenue = 900000
	c.AnnualProfit = 250000
	c.Industry = "Services"
	c.Highlights = []string{"Recurring contracts"}

	d := Decide(&c, stored(existing))
	if d.Action != ActionUpdate {
		t.Fatalf("expected update, got %s", d.Action)
	}
	want := []string{"asking_price", "annual_revenue", "annual_profit", "industry", "highlights"}
	got := d.Patch.Fields()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected fields %v, got %v", want, got)
	}
	if !d.Patch.ScrapedAt.Equal(c.ScrapedAt) {
		t.Fatalf("patch should carry the candidate scrape time")
	}
}

func TestDecide_NonZeroNotOverwritten(t *testing.T) {
	existing := baseListing()
	existing.AnnualRevenue = 500000

	c := baseListing()
	c.AnnualRevenue = 700000
	c.AskingPrice = 1500000

	if d := Decide(&c, stored(existing)); d.Action != ActionSkip {
		t.Fatalf("populated fields are not improvements, got %s %v", d.Action, d.Patch.Fields())
	}
}

func TestDecide_Location(t *testing.T) {
	existing := baseListing()
	existing.Location = models.DefaultLocation

	c := baseListing()
	c.Location = "Denver, CO"
	d := Decide(&c, stored(existing))
	if d.Action != ActionUpdate || d.Patch.Location == nil || *d.Patch.Location != "Denver, CO" {
		t.Fatalf("expected location update, got %s", d.Action)
	}

	c.Location = models.DefaultLocation
	existing.Location = "Austin, TX"
	if d := Decide(&c, stored(existing)); d.Action != ActionSkip {
		t.Fatalf("placeholder location must not replace a real one")
	}
}
