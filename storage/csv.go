package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"bizscout/models"
)

var csvHeader = []string{
	"source", "name", "asking_price", "annual_revenue", "annual_profit",
	"location", "industry", "original_url", "highlights", "description", "scraped_at",
}

// WriteSessionCSV writes every listing of the session, sources in name
// order, unidentified listings included.
func WriteSessionCSV(w io.Writer, session *models.ScrapeSession) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	names := make([]string, 0, len(session.PerSourceResult))
	for name := range session.PerSourceResult {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := session.PerSourceResult[name]
		rows := append(append([]models.NormalizedListing(nil), r.Listings...), r.Unidentified...)
		for _, l := range rows {
			if err := cw.Write(csvRow(&l)); err != nil {
				return fmt.Errorf("csv: write row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSessionCSVFile creates path (and its directory) and writes the session to it.
func WriteSessionCSVFile(path string, session *models.ScrapeSession) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	if err := WriteSessionCSV(f, session); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func csvRow(l *models.NormalizedListing) []string {
	return []string{
		l.Source,
		l.Name,
		strconv.FormatInt(l.AskingPrice, 10),
		strconv.FormatInt(l.AnnualRevenue, 10),
		strconv.FormatInt(l.AnnualProfit, 10),
		l.Location,
		l.Industry,
		l.OriginalURL,
		strings.Join(l.Highlights, "; "),
		l.Description,
		l.ScrapedAt.Format(time.RFC3339),
	}
}
