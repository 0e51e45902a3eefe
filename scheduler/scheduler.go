package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bizscout/config"
	"bizscout/models"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Runner starts a full scrape session.
type Runner interface {
	RunAll(ctx context.Context) (*models.ScrapeSession, error)
}

type Scheduler struct {
	cfg    *config.Config
	runner Runner
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once

	enrichmentWorker Triggerable
}

func New(cfg *config.Config, runner Runner) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// SetWorkers registers background workers that are kicked after each
// scheduled run.
func (s *Scheduler) SetWorkers(enrichment Triggerable) {
	s.enrichmentWorker = enrichment
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.run(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.run(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to API requests")
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.once.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	session, err := s.runner.RunAll(ctx)
	if err != nil {
		log.Printf("Scheduled run error: %v", err)
		return
	}
	if session == nil {
		return
	}

	scraped, inserted, updated, _ := session.Totals()
	log.Printf("Scheduled run %s %s: %d scraped, %d new, %d updated", session.SessionID, session.Status, scraped, inserted, updated)

	if s.enrichmentWorker != nil && inserted+updated > 0 {
		s.enrichmentWorker.Trigger()
	}
}
