package commands

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bizscout/api"
	"bizscout/scheduler"
	"bizscout/scraper"
	"bizscout/workers"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled scrapes, background enrichment and the HTTP API",
	Long: `Daemon scrapes on SCRAPE_CRON or SCRAPE_INTERVAL, retries detail pages
for incomplete listings every ENRICH_INTERVAL, and serves the run API on
API_ADDR until interrupted.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().String("addr", "", "API listen address (default $API_ADDR or :8080)")
	daemonCmd.Flags().Bool("no-api", false, "do not start the HTTP API")
	daemonCmd.Flags().Bool("scrape-now", false, "run one session immediately on startup")

	_ = viper.BindPFlag("daemon.addr", daemonCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("daemon.no_api", daemonCmd.Flags().Lookup("no-api"))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Println("Starting bizscout daemon...")
	if len(a.sources) == 0 {
		log.Println("Warning: no runnable sources configured")
	}

	sched := scheduler.New(a.cfg, a.orchestrator)

	opts := scraper.CrawlOptionsFrom(a.cfg.DefaultRunOptions(), a.cfg.Scraper.UserAgent)
	enricher, err := workers.NewEnrichmentWorker(a.store, a.orchestrator, opts)
	switch {
	case err != nil:
		log.Printf("Enrichment worker disabled: %v", err)
	case a.cfg.Enrichment.Interval <= 0:
		log.Println("Enrichment worker disabled: ENRICH_INTERVAL is not positive")
	default:
		enricher.SetLogger(workers.LedgerLogger(a.ledger, "enrichment"))
		sched.SetWorkers(enricher)
		go enricher.Run(ctx, a.cfg.Enrichment.Batch, a.cfg.Enrichment.Interval)
		log.Printf("Enrichment worker: %d listings every %s", a.cfg.Enrichment.Batch, a.cfg.Enrichment.Interval)
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if now, _ := cmd.Flags().GetBool("scrape-now"); now {
		go sched.TriggerNow(ctx)
	}

	if viper.GetBool("daemon.no_api") {
		<-ctx.Done()
		log.Println("Shutting down...")
		return nil
	}

	addr := viper.GetString("daemon.addr")
	if addr == "" {
		addr = a.cfg.API.Addr
	}
	server := api.NewServer(ctx, a.orchestrator, a.cfg.DefaultRunOptions())
	err = server.ListenAndServe(ctx, addr)

	log.Println("Shutting down...")
	server.Wait()
	return err
}
