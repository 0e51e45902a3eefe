package scraper

import (
	"context"
	"fmt"
	"strings"

	"bizscout/models"
)

// Enrich fills in what the index page left out by fetching the listing's
// detail page. When the detail page cannot be had the listing is kept:
// it comes back marked DetailFailed with a generated description, along
// with the error so the caller can record it.
func Enrich(ctx context.Context, src Source, raw models.RawListing, opts CrawlOptions) (models.RawListing, error) {
	enriched, err := src.FetchDetail(ctx, raw, opts)
	if err != nil {
		return withDefaults(raw), fmt.Errorf("detail %s: %w", raw.DetailURL, err)
	}

	// Detail pages sometimes only carry the financial block; keep what the
	// index gave us for the rest.
	if enriched.DescriptionText == "" {
		enriched.DescriptionText = raw.DescriptionText
	}
	if enriched.PriceText == "" {
		enriched.PriceText = raw.PriceText
	}
	return enriched, nil
}

func withDefaults(raw models.RawListing) models.RawListing {
	out := raw
	out.Highlights = append([]string(nil), raw.Highlights...)
	out.DetailFailed = true
	if strings.TrimSpace(out.DescriptionText) == "" {
		out.DescriptionText = generatedDescription(raw.Title, raw.Location)
	}
	return out
}

func generatedDescription(title, location string) string {
	title = strings.TrimSuffix(collapse(title), ".")
	location = collapse(location)
	if location == "" {
		location = models.DefaultLocation
	}
	if title == "" {
		return fmt.Sprintf("Business for sale located in %s.", location)
	}
	return fmt.Sprintf("%s. Business for sale located in %s.", title, location)
}
