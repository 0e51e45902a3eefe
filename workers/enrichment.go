package workers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"bizscout/models"
	"bizscout/scraper"
	"bizscout/services"
	"bizscout/storage"
)

const maxEnrichmentAttempts = 3

// SourceFinder resolves a stored listing's source by name.
type SourceFinder interface {
	Source(name string) (scraper.Source, bool)
}

// EnrichmentWorker revisits stored listings that are still missing a
// price, revenue or description and retries their detail page. Whatever
// it finds goes through the ordinary dedup decision, so it can only fill
// gaps.
type EnrichmentWorker struct {
	store    storage.IncompleteLister
	listings *services.ListingService
	sources  SourceFinder
	opts     scraper.CrawlOptions

	triggerCh chan struct{}
	logFunc   LogFunc

	mu       sync.Mutex
	attempts map[string]int
	now      func() time.Time
}

func NewEnrichmentWorker(store storage.ListingStore, sources SourceFinder, opts scraper.CrawlOptions) (*EnrichmentWorker, error) {
	lister, ok := store.(storage.IncompleteLister)
	if !ok {
		return nil, fmt.Errorf("store %T cannot list incomplete listings", store)
	}
	return &EnrichmentWorker{
		store:     lister,
		listings:  services.NewListingService(store),
		sources:   sources,
		opts:      opts,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
		attempts:  make(map[string]int),
		now:       time.Now,
	}, nil
}

func (w *EnrichmentWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *EnrichmentWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// EnrichStats summarizes one batch.
type EnrichStats struct {
	Checked int
	Updated int
	Skipped int
	Failed  int
}

func (s EnrichStats) String() string {
	return fmt.Sprintf("%d checked, %d updated, %d unchanged, %d failed", s.Checked, s.Updated, s.Skipped, s.Failed)
}

// Run starts the enrichment worker loop
func (w *EnrichmentWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Enrichment worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Enrichment worker triggered manually")
			w.ProcessBatch(ctx, batchSize)
		}
	}
}

// ProcessBatch retries up to batchSize incomplete listings. Listings that
// failed maxEnrichmentAttempts times in this process are left alone.
func (w *EnrichmentWorker) ProcessBatch(ctx context.Context, batchSize int) EnrichStats {
	var stats EnrichStats

	pending, err := w.store.ListIncomplete(ctx, batchSize)
	if err != nil {
		log.Printf("Enrichment: query error: %v", err)
		return stats
	}
	if len(pending) == 0 {
		return stats
	}

	log.Printf("Enrichment: processing %d listings", len(pending))

	for _, stored := range pending {
		if ctx.Err() != nil {
			break
		}
		if w.attemptsFor(stored.ID) >= maxEnrichmentAttempts {
			continue
		}
		stats.Checked++

		action, err := w.enrichOne(ctx, &stored)
		if err != nil {
			stats.Failed++
			n := w.recordAttempt(stored.ID)
			log.Printf("Enrichment: failed to enrich %s: %v", stored.OriginalURL, err)
			w.logFunc(models.LogLevelWarn, stored.Source, fmt.Sprintf("enrichment of %q failed (%d/%d): %v", stored.Name, n, maxEnrichmentAttempts, err))
			if n >= maxEnrichmentAttempts {
				log.Printf("Enrichment: max attempts reached for %s, giving up", stored.ID)
			}
			continue
		}

		switch action {
		case services.ActionUpdate:
			stats.Updated++
		default:
			stats.Skipped++
		}
	}

	log.Printf("Enrichment: %s", stats)
	return stats
}

func (w *EnrichmentWorker) enrichOne(ctx context.Context, stored *models.StoredListing) (services.Action, error) {
	src, ok := w.sources.Source(stored.Source)
	if !ok {
		return 0, fmt.Errorf("source %q is not configured", stored.Source)
	}

	raw := models.RawListing{
		SourceName:      stored.Source,
		Title:           stored.Name,
		DetailURL:       stored.OriginalURL,
		DescriptionText: stored.Description,
		Location:        stored.Location,
		Industry:        stored.Industry,
		Highlights:      stored.Highlights,
	}
	if stored.Location == models.DefaultLocation {
		raw.Location = ""
	}

	detail, err := src.FetchDetail(ctx, raw, w.opts)
	if err != nil {
		return 0, err
	}

	candidate, err := scraper.Normalize(detail, w.now())
	if err != nil {
		return 0, err
	}
	// The stored name is the identity; a cleaner title on the detail page
	// must not turn this into an insert.
	candidate.Name = stored.Name

	result, err := w.listings.Process(ctx, &candidate, src.IdentityByURL())
	if err != nil {
		return 0, err
	}
	if result.Action == services.ActionUpdate {
		w.clearAttempts(stored.ID)
		w.logFunc(models.LogLevelInfo, stored.Source, fmt.Sprintf("enriched %q: %s", stored.Name, strings.Join(result.Fields, ", ")))
	}
	return result.Action, nil
}

func (w *EnrichmentWorker) attemptsFor(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts[id]
}

func (w *EnrichmentWorker) recordAttempt(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[id]++
	return w.attempts[id]
}

func (w *EnrichmentWorker) clearAttempts(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, id)
}
