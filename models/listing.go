package models

import "time"

// MaxSafeInteger is the largest monetary value persisted (2^53 - 1).
const MaxSafeInteger int64 = 9007199254740991

const (
	MaxNameLength   = 255
	MaxHighlights   = 3
	DefaultLocation = "Undisclosed"
)

// RawListing is what a source adapter found on an index or detail page,
// before any financial parsing.
type RawListing struct {
	SourceName      string   `json:"source_name"`
	Title           string   `json:"title"`
	DetailURL       string   `json:"detail_url,omitempty"`
	PriceText       string   `json:"price_text,omitempty"`
	DescriptionText string   `json:"description_text,omitempty"`
	FinancialText   string   `json:"financial_text,omitempty"`
	Location        string   `json:"location,omitempty"`
	Industry        string   `json:"industry,omitempty"`
	Highlights      []string `json:"highlights,omitempty"`
	Fingerprint     string   `json:"fingerprint"`

	// DetailFailed is set when the detail page could not be fetched and
	// defaults were filled in instead.
	DetailFailed bool `json:"detail_failed,omitempty"`
}

type NormalizedListing struct {
	Name          string    `json:"name" db:"name" validate:"required,max=255"`
	AskingPrice   int64     `json:"asking_price" db:"asking_price" validate:"gte=0,lte=9007199254740991"`
	AnnualRevenue int64     `json:"annual_revenue" db:"annual_revenue" validate:"gte=0,lte=9007199254740991"`
	AnnualProfit  int64     `json:"annual_profit" db:"annual_profit" validate:"gte=0,lte=9007199254740991"`
	Description   string    `json:"description" db:"description"`
	Industry      string    `json:"industry" db:"industry"`
	Location      string    `json:"location" db:"location" validate:"required"`
	Source        string    `json:"source" db:"source" validate:"required"`
	OriginalURL   string    `json:"original_url" db:"original_url" validate:"omitempty,url"`
	Highlights    []string  `json:"highlights" db:"highlights" validate:"max=3"`
	ScrapedAt     time.Time `json:"scraped_at" db:"scraped_at"`
}

// StoredListing is a NormalizedListing as returned by a storage backend.
type StoredListing struct {
	ID string `json:"id" db:"id"`
	NormalizedListing
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ListingPatch carries only the fields an update improves. Nil means
// leave the stored value alone.
type ListingPatch struct {
	Description   *string
	AskingPrice   *int64
	AnnualRevenue *int64
	AnnualProfit  *int64
	Industry      *string
	Location      *string
	Highlights    []string
	ScrapedAt     time.Time
}

func (p ListingPatch) IsEmpty() bool {
	return p.Description == nil && p.AskingPrice == nil && p.AnnualRevenue == nil &&
		p.AnnualProfit == nil && p.Industry == nil && p.Location == nil && len(p.Highlights) == 0
}

// Fields lists the improved column names, for logging.
func (p ListingPatch) Fields() []string {
	var fields []string
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.AskingPrice != nil {
		fields = append(fields, "asking_price")
	}
	if p.AnnualRevenue != nil {
		fields = append(fields, "annual_revenue")
	}
	if p.AnnualProfit != nil {
		fields = append(fields, "annual_profit")
	}
	if p.Industry != nil {
		fields = append(fields, "industry")
	}
	if p.Location != nil {
		fields = append(fields, "location")
	}
	if len(p.Highlights) > 0 {
		fields = append(fields, "highlights")
	}
	return fields
}

// Apply merges the patch into l.
func (p ListingPatch) Apply(l *NormalizedListing) {
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.AskingPrice != nil {
		l.AskingPrice = *p.AskingPrice
	}
	if p.AnnualRevenue != nil {
		l.AnnualRevenue = *p.AnnualRevenue
	}
	if p.AnnualProfit != nil {
		l.AnnualProfit = *p.AnnualProfit
	}
	if p.Industry != nil {
		l.Industry = *p.Industry
	}
	if p.Location != nil {
		l.Location = *p.Location
	}
	if len(p.Highlights) > 0 {
		l.Highlights = append([]string(nil), p.Highlights...)
	}
	if !p.ScrapedAt.IsZero() {
		l.ScrapedAt = p.ScrapedAt
	}
}

// IdentityKey is the composite dedup key. An empty Name means the source
// identifies listings by URL alone.
type IdentityKey struct {
	Name string
	URL  string
}

func KeyFor(l *NormalizedListing, byURL bool) IdentityKey {
	if byURL {
		return IdentityKey{URL: l.OriginalURL}
	}
	return IdentityKey{Name: l.Name, URL: l.OriginalURL}
}
