package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bizscout/config"
	"bizscout/models"
	"bizscout/scraper"
	"bizscout/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scrape session and exit",
	Long: `Run scrapes the selected sources once, stores new and changed listings,
and prints a per-source summary.

Options not given on the command line come from SCRAPE_MAX_PAGES,
SCRAPE_DELAY_MS, SCRAPE_TIMEOUT_MS and SCRAPE_HEADLESS.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSlice("sources", nil, "sources to run (default: all enabled)")
	runCmd.Flags().Int("max-pages", 0, "index pages per source")
	runCmd.Flags().Int("delay", 0, "delay between requests in milliseconds")
	runCmd.Flags().Int("timeout", 0, "per-request timeout in milliseconds")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.Flags().String("csv", "", "write the session's listings to this CSV file")
	runCmd.Flags().Bool("json", false, "print the finished session as JSON on stdout")
	runCmd.Flags().Bool("dry-run", false, "keep listings in memory instead of the configured store")

	_ = viper.BindPFlag("run.max_pages", runCmd.Flags().Lookup("max-pages"))
	_ = viper.BindPFlag("run.delay", runCmd.Flags().Lookup("delay"))
	_ = viper.BindPFlag("run.timeout", runCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("run.headless", runCmd.Flags().Lookup("headless"))
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	a, err := setup(ctx, dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	sources, _ := cmd.Flags().GetStringSlice("sources")
	req := scraper.RunRequest{
		SessionID: uuid.NewString(),
		Sources:   sources,
		Options:   runOptions(a.cfg.DefaultRunOptions()),
	}

	session, err := a.orchestrator.Run(ctx, req, printEvent)
	var fault *scraper.OrchestratorFault
	if errors.As(err, &fault) {
		logError("%v", fault)
		return fault
	}
	if err != nil {
		return err
	}

	printSummary(session)

	if path, _ := cmd.Flags().GetString("csv"); path != "" {
		if err := storage.WriteSessionCSVFile(path, session); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		logInfo("Wrote listings to %s", path)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(session); err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
	}

	if session.Status != models.SessionCompleted {
		return fmt.Errorf("session %s ended %s", session.SessionID, session.Status)
	}
	return nil
}

// runOptions overlays changed flags, or BIZSCOUT_RUN_* variables, onto the
// configured defaults.
func runOptions(opts config.RunOptions) config.RunOptions {
	if viper.IsSet("run.max_pages") && viper.GetInt("run.max_pages") > 0 {
		opts.MaxPages = viper.GetInt("run.max_pages")
	}
	if viper.IsSet("run.delay") {
		opts.DelayBetweenRequests = viper.GetInt("run.delay")
	}
	if viper.IsSet("run.timeout") && viper.GetInt("run.timeout") > 0 {
		opts.TimeoutMS = viper.GetInt("run.timeout")
	}
	if viper.IsSet("run.headless") {
		opts.Headless = viper.GetBool("run.headless")
	}
	return opts
}

func printEvent(ev models.SessionEvent) {
	switch ev.Type {
	case models.EventSessionStarted:
		logInfo("Session %s started", ev.SessionID)
	case models.EventSourceStarted:
		logInfo("  %s: started", ev.Source)
	case models.EventListing:
		if ev.Listing != nil && viper.GetBool("debug") {
			logInfo("  %s: %s %q", ev.Source, ev.Decision, ev.Listing.Name)
		}
	case models.EventSourceFinished:
		if r := ev.Result; r != nil {
			logInfo("  %s: %d scraped, %d new, %d updated, %d skipped, %d errors",
				ev.Source, r.TotalScraped, r.Inserted, r.Updated, r.Skipped, len(r.Errors))
		}
	}
}

func printSummary(session *models.ScrapeSession) {
	scraped, inserted, updated, skipped := session.Totals()
	took := time.Duration(0)
	if session.EndTime != nil {
		took = session.EndTime.Sub(session.StartTime).Round(time.Millisecond)
	}
	logInfo("Session %s %s in %s: %s listings scraped, %s new, %s updated, %s unchanged",
		session.SessionID, session.Status, took,
		humanize.Comma(int64(scraped)), humanize.Comma(int64(inserted)),
		humanize.Comma(int64(updated)), humanize.Comma(int64(skipped)))
	for _, e := range session.Errors {
		logInfo("  error: %s", e)
	}
}
