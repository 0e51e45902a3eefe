package scraper

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"bizscout/config"
	"bizscout/financial"
	"bizscout/identity"
	"bizscout/models"
)

// RevenueEstimateFraction is applied to the asking price when a detail
// fetch failed and nothing else hinted at revenue.
const RevenueEstimateFraction = 0.3

// Normalize turns a raw listing into its persisted shape. A listing whose
// detail URL is not an absolute http(s) URL is returned together with
// ErrNoIdentity; it can be reported but not stored.
func Normalize(raw models.RawListing, now time.Time) (models.NormalizedListing, error) {
	figures := financial.Parse(raw.Title, raw.FinancialText, raw.DescriptionText)
	if price := parsePriceField(raw.PriceText); price > 0 {
		figures.AskingPrice = price
	}
	if raw.DetailFailed && figures.AnnualRevenue == 0 && figures.AskingPrice > 0 {
		figures.AnnualRevenue = financial.Clamp(float64(figures.AskingPrice) * RevenueEstimateFraction)
	}

	location := collapse(raw.Location)
	if location == "" {
		location = models.DefaultLocation
	}

	l := models.NormalizedListing{
		Name:          identity.CleanName(raw.Title),
		AskingPrice:   figures.AskingPrice,
		AnnualRevenue: figures.AnnualRevenue,
		AnnualProfit:  figures.AnnualProfit,
		Description:   collapse(raw.DescriptionText),
		Industry:      collapse(raw.Industry),
		Location:      location,
		Source:        raw.SourceName,
		OriginalURL:   identity.CanonicalURL(raw.DetailURL),
		Highlights:    highlights(raw.Highlights, figures),
		ScrapedAt:     now.UTC(),
	}

	if err := config.Validator().Struct(&l); err != nil {
		return l, fmt.Errorf("normalize %q: %w", raw.Title, err)
	}
	if l.OriginalURL == "" {
		return l, ErrNoIdentity
	}
	return l, nil
}

// parsePriceField reads a dedicated price field. A field that only carries
// a labeled revenue figure is not a price.
func parsePriceField(text string) int64 {
	if text == "" {
		return 0
	}
	ex := financial.Extract(text)
	switch {
	case ex.PriceText != "":
		return financial.ParseAmount(ex.PriceText)
	case ex.RevenueText != "" && ex.RevenueRole != financial.RoleGeneric:
		return 0
	default:
		return financial.ParseAmount(text)
	}
}

func highlights(fromSource []string, f financial.Figures) []string {
	var out []string
	for _, h := range fromSource {
		if h = collapse(h); h != "" {
			out = append(out, h)
		}
		if len(out) == models.MaxHighlights {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	if f.AskingPrice > 0 {
		out = append(out, "Asking price $"+humanize.Comma(f.AskingPrice))
	}
	if f.AnnualRevenue > 0 {
		out = append(out, "Annual revenue $"+humanize.Comma(f.AnnualRevenue))
	}
	if f.AnnualProfit > 0 {
		out = append(out, "Annual profit $"+humanize.Comma(f.AnnualProfit))
	}
	return out
}
