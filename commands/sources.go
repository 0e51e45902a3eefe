package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bizscout/models"
	"bizscout/scraper"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and their last run",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.Flags().Bool("logs", false, "print the log lines of each source's last run")
}

type sourceCounter interface {
	CountBySource(ctx context.Context) (map[string]int, error)
}

type runLogReader interface {
	RunLogs(ctx context.Context, runID int64) ([]models.ScrapeLog, error)
}

func runSources(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var counts map[string]int
	if c, ok := a.store.(sourceCounter); ok {
		if counts, err = c.CountBySource(ctx); err != nil {
			logError("count listings: %v", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tADAPTER\tPRIMARY\tIDENTITY\tSTORED\tLAST RUN\tSTATUS\tNEW\tUPDATED\tERRORS")

	lastRuns := make(map[string]*models.ScrapeRun)
	for _, id := range a.cfg.SiteIDs() {
		site := a.cfg.Sites[id]
		identity := site.Identity
		if identity == "" {
			identity = "name_url"
		}
		primary := site.Primary
		if primary == "" {
			primary = "direct"
		}
		if _, ok := a.sources[id]; !ok {
			primary += " (unavailable)"
		}

		stored := "-"
		if counts != nil {
			stored = humanize.Comma(int64(counts[id]))
		}

		last, status, inserted, updated, errs := "never", "-", "-", "-", "-"
		run, err := a.ledger.LastRun(ctx, id)
		if err != nil {
			logError("last run for %s: %v", id, err)
		}
		if run != nil {
			lastRuns[id] = run
			last = humanize.Time(run.StartedAt)
			status = string(run.Status)
			inserted = fmt.Sprint(run.ListingsNew)
			updated = fmt.Sprint(run.ListingsUpdated)
			errs = fmt.Sprint(run.ErrorsCount)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			id, site.Adapter, primary, identity, stored, last, status, inserted, updated, errs)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if showLogs, _ := cmd.Flags().GetBool("logs"); showLogs {
		printRunLogs(ctx, a.ledger, a.cfg.SiteIDs(), lastRuns)
	}

	logInfo("Adapters: %v", scraper.Adapters())
	return nil
}

func printRunLogs(ctx context.Context, ledger any, ids []string, runs map[string]*models.ScrapeRun) {
	reader, ok := ledger.(runLogReader)
	if !ok {
		logInfo("This run ledger does not keep log lines")
		return
	}
	for _, id := range ids {
		run := runs[id]
		if run == nil {
			continue
		}
		logs, err := reader.RunLogs(ctx, run.ID)
		if err != nil {
			logError("logs for %s: %v", id, err)
			continue
		}
		fmt.Printf("\n%s (session %s)\n", id, run.SessionID)
		for _, l := range logs {
			fmt.Printf("  %s [%s] %s\n", l.Timestamp.Local().Format("2006-01-02 15:04:05"), l.Level, l.Message)
		}
	}
}
