package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"bizscout/config"
	"bizscout/models"
	"bizscout/services"
	"bizscout/storage"
)

// Archiver stores a finished session report somewhere outside the run.
type Archiver interface {
	Archive(ctx context.Context, session *models.ScrapeSession) (string, error)
}

// RunRequest selects sources and run options. An empty Sources list runs
// every configured source.
type RunRequest struct {
	SessionID string
	Sources   []string
	Options   config.RunOptions
}

// EventFunc receives session progress. It is always called from the
// goroutine running the session, never concurrently.
type EventFunc func(models.SessionEvent)

// OrchestratorFault is a failure that stops a session before any source
// runs. The session ends Failed.
type OrchestratorFault struct {
	Reason string
	Err    error
}

func (f *OrchestratorFault) Error() string {
	if f.Err == nil {
		return f.Reason
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *OrchestratorFault) Unwrap() error {
	return f.Err
}

type Orchestrator struct {
	cfg      *config.Config
	sources  map[string]Source
	store    storage.ListingStore
	ledger   storage.RunLedger
	listings *services.ListingService
	archiver Archiver

	concurrency int
	stagger     time.Duration
	userAgent   string

	runMu  sync.Mutex
	paused atomic.Bool
	now    func() time.Time
}

// NewOrchestrator wires sources to a store. When the store also keeps a
// run ledger it is used for run rows and log lines.
func NewOrchestrator(cfg *config.Config, sources map[string]Source, store storage.ListingStore) *Orchestrator {
	ledger, _ := store.(storage.RunLedger)
	return &Orchestrator{
		cfg:         cfg,
		sources:     sources,
		store:       store,
		ledger:      ledger,
		listings:    services.NewListingService(store),
		concurrency: max(cfg.Scraper.Concurrency, 1),
		stagger:     time.Duration(cfg.Scraper.SourceStaggerMS) * time.Millisecond,
		userAgent:   cfg.Scraper.UserAgent,
		now:         time.Now,
	}
}

// SetLedger overrides the run ledger, e.g. a local SQLite ledger next to a
// remote listing store.
func (o *Orchestrator) SetLedger(l storage.RunLedger) {
	o.ledger = l
}

func (o *Orchestrator) SetArchiver(a Archiver) {
	o.archiver = a
}

// sourceUpdate carries a worker's event back to the session goroutine,
// which owns the session value.
type sourceUpdate struct {
	event  models.SessionEvent
	result *models.SourceResult
}

// Run executes one session. Sessions on the same orchestrator are
// serialized. The returned error is non-nil only for an
// *OrchestratorFault; source failures live in the session itself.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, onEvent EventFunc) (*models.ScrapeSession, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if onEvent == nil {
		onEvent = func(models.SessionEvent) {}
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	session := models.NewScrapeSession(req.SessionID, o.now().UTC())
	emit := func(ev models.SessionEvent) {
		ev.SessionID = session.SessionID
		if ev.Time.IsZero() {
			ev.Time = o.now().UTC()
		}
		onEvent(ev)
	}

	names, unknown, fault := o.prepare(ctx, req)
	if fault != nil {
		o.fail(session, fault)
		emit(models.SessionEvent{Type: models.EventSessionFinished, Session: session.Clone(), Message: fault.Error()})
		return session, fault
	}

	session.Status = models.SessionRunning
	for _, name := range unknown {
		session.Errors = append(session.Errors, fmt.Sprintf("%s: unknown source", name))
	}
	log.Printf("[info] session %s: starting %d sources (%v)", session.SessionID, len(names), names)
	emit(models.SessionEvent{Type: models.EventSessionStarted, Session: session.Clone()})

	opts := CrawlOptionsFrom(req.Options, o.userAgent)
	updates := make(chan sourceUpdate)

	go func() {
		defer close(updates)
		pool := newWorkerPool(o.concurrency, o.stagger)
		for _, name := range names {
			src := o.sources[name]
			submitted := pool.Submit(ctx, func() {
				o.runSource(ctx, session.SessionID, name, src, opts, updates)
			})
			if !submitted {
				updates <- notStarted(name, ctx.Err())
			}
		}
		pool.Wait()
	}()

	for u := range updates {
		if u.result != nil {
			session.PerSourceResult[u.event.Source] = u.result
			for _, e := range u.result.Errors {
				session.Errors = append(session.Errors, fmt.Sprintf("%s: %s", u.event.Source, e))
			}
			u.event.Result = u.result.Clone()
		}
		emit(u.event)
	}

	end := o.now().UTC()
	session.EndTime = &end
	session.Status = models.SessionCompleted

	scraped, inserted, updated, skipped := session.Totals()
	log.Printf("[info] session %s: completed in %s, %s scraped, %s new, %s updated, %s skipped, %d errors",
		session.SessionID, end.Sub(session.StartTime).Round(time.Millisecond),
		humanize.Comma(int64(scraped)), humanize.Comma(int64(inserted)),
		humanize.Comma(int64(updated)), humanize.Comma(int64(skipped)), len(session.Errors))

	o.archive(ctx, session)
	emit(models.SessionEvent{Type: models.EventSessionFinished, Session: session.Clone()})
	return session, nil
}

// RunAll runs every configured source with the environment's default
// options. It does nothing while the orchestrator is paused.
func (o *Orchestrator) RunAll(ctx context.Context) (*models.ScrapeSession, error) {
	if o.paused.Load() {
		log.Println("Scraper is paused, skipping run")
		return nil, nil
	}
	return o.Run(ctx, RunRequest{Options: o.cfg.DefaultRunOptions()}, nil)
}

func (o *Orchestrator) Pause() {
	o.paused.Store(true)
	log.Println("Scraper paused")
}

func (o *Orchestrator) Resume() {
	o.paused.Store(false)
	log.Println("Scraper resumed")
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

// Sources returns the names of the sources this orchestrator can run.
func (o *Orchestrator) Sources() []string {
	names := make([]string, 0, len(o.sources))
	for name := range o.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Orchestrator) Source(name string) (Source, bool) {
	src, ok := o.sources[name]
	return src, ok
}

// prepare checks everything that must hold before a source may start.
func (o *Orchestrator) prepare(ctx context.Context, req RunRequest) (names, unknown []string, fault *OrchestratorFault) {
	if err := req.Options.Validate(); err != nil {
		return nil, nil, &OrchestratorFault{Reason: "invalid run options", Err: err}
	}

	if len(req.Sources) == 0 {
		names = o.Sources()
	} else {
		for _, name := range req.Sources {
			if slices.Contains(names, name) || slices.Contains(unknown, name) {
				continue
			}
			if _, ok := o.sources[name]; ok {
				names = append(names, name)
			} else {
				unknown = append(unknown, name)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil, &OrchestratorFault{Reason: "no runnable sources", Err: fmt.Errorf("requested %v", req.Sources)}
	}

	if err := o.store.Ping(ctx); err != nil {
		return nil, nil, &OrchestratorFault{Reason: "storage unreachable", Err: err}
	}
	return names, unknown, nil
}

func (o *Orchestrator) fail(session *models.ScrapeSession, fault *OrchestratorFault) {
	end := o.now().UTC()
	session.EndTime = &end
	session.Status = models.SessionFailed
	session.Errors = append(session.Errors, fault.Error())
	log.Printf("[error] session %s: %v", session.SessionID, fault)
}

func notStarted(name string, err error) sourceUpdate {
	if err == nil {
		err = context.Canceled
	}
	return sourceUpdate{
		event: models.SessionEvent{Type: models.EventSourceFinished, Source: name},
		result: &models.SourceResult{
			Listings: []models.NormalizedListing{},
			Errors:   []string{"not started: " + err.Error()},
		},
	}
}

// runSource crawls one source end to end. Nothing that goes wrong here
// leaves this function except through the SourceResult.
func (o *Orchestrator) runSource(ctx context.Context, sessionID, name string, src Source, opts CrawlOptions, out chan<- sourceUpdate) {
	result := &models.SourceResult{
		Listings: []models.NormalizedListing{},
		Errors:   []string{},
	}
	stats := &services.ProcessStats{}
	run := &models.ScrapeRun{
		SessionID: sessionID,
		Source:    name,
		StartedAt: o.now().UTC(),
		Status:    models.RunStatusRunning,
	}
	if o.ledger != nil {
		if id, err := o.ledger.CreateRun(ctx, run); err != nil {
			log.Printf("[warn] %s: could not create run record: %v", name, err)
		} else {
			run.ID = id
		}
	}

	out <- sourceUpdate{event: models.SessionEvent{Type: models.EventSourceStarted, Source: name}}

	recordErr := func(err error) {
		result.Errors = append(result.Errors, err.Error())
		o.log(ctx, run, models.LogLevelError, err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			recordErr(fmt.Errorf("panic: %v", r))
		}

		result.Success = result.TotalScraped > 0 || len(result.Errors) == 0
		result.Inserted = stats.Inserted
		result.Updated = stats.Updated
		result.Skipped = stats.Skipped

		o.finishRun(run, result, stats)
		o.log(ctx, run, models.LogLevelInfo, fmt.Sprintf("Completed: %d found, %d new, %d updated, %d skipped, %d errors",
			result.TotalScraped, stats.Inserted, stats.Updated, stats.Skipped, len(result.Errors)))

		out <- sourceUpdate{
			event:  models.SessionEvent{Type: models.EventSourceFinished, Source: name},
			result: result,
		}
	}()

	o.log(ctx, run, models.LogLevelInfo, fmt.Sprintf("Starting scrape (max %d pages)", opts.MaxPages))

	for raw, err := range src.ListIndexPages(ctx, opts) {
		if err != nil {
			recordErr(err)
			continue
		}
		result.TotalScraped++

		if src.NeedsDetail(raw) {
			enriched, err := Enrich(ctx, src, raw, opts)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				o.log(ctx, run, models.LogLevelWarn, fmt.Sprintf("Using index data for %q: %v", raw.Title, err))
			}
			raw = enriched
		}

		listing, err := Normalize(raw, o.now())
		if errors.Is(err, ErrNoIdentity) {
			result.Unidentified = append(result.Unidentified, listing)
			o.log(ctx, run, models.LogLevelWarn, fmt.Sprintf("No detail url for %q, not persisted", raw.Title))
			continue
		}
		if err != nil {
			recordErr(err)
			continue
		}

		res, err := o.listings.Process(ctx, &listing, src.IdentityByURL())
		if err != nil {
			stats.RecordError()
			recordErr(err)
			continue
		}
		stats.Aggregate(res)
		result.Listings = append(result.Listings, listing)

		l := listing
		out <- sourceUpdate{event: models.SessionEvent{
			Type:     models.EventListing,
			Source:   name,
			Decision: res.Action.String(),
			Listing:  &l,
		}}
	}
}

func (o *Orchestrator) finishRun(run *models.ScrapeRun, result *models.SourceResult, stats *services.ProcessStats) {
	if o.ledger == nil || run.ID == 0 {
		return
	}
	end := o.now().UTC()
	run.FinishedAt = &end
	run.Status = models.RunStatusCompleted
	if !result.Success {
		run.Status = models.RunStatusFailed
	}
	run.ListingsFound = result.TotalScraped
	run.ListingsNew = stats.Inserted
	run.ListingsUpdated = stats.Updated
	run.ListingsSkipped = stats.Skipped
	run.ErrorsCount = len(result.Errors)

	// The run context may already be cancelled; the ledger row should
	// still be closed.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.ledger.UpdateRun(ctx, run); err != nil {
		log.Printf("[warn] %s: could not update run record: %v", run.Source, err)
	}
}

func (o *Orchestrator) archive(ctx context.Context, session *models.ScrapeSession) {
	if o.archiver == nil {
		return
	}
	url, err := o.archiver.Archive(ctx, session)
	if err != nil {
		log.Printf("[warn] session %s: archive failed: %v", session.SessionID, err)
		return
	}
	log.Printf("[info] session %s: report archived to %s", session.SessionID, url)
}

func (o *Orchestrator) log(ctx context.Context, run *models.ScrapeRun, level models.LogLevel, message string) {
	log.Printf("[%s] %s: %s", level, run.Source, message)
	if o.ledger == nil {
		return
	}

	entry := &models.ScrapeLog{
		SessionID: run.SessionID,
		Timestamp: o.now().UTC(),
		Level:     level,
		Message:   message,
		Source:    run.Source,
	}
	if run.ID != 0 {
		id := run.ID
		entry.RunID = &id
	}
	if err := o.ledger.Log(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("[warn] %s: ledger log failed: %v", run.Source, err)
	}
}
