package workers

import (
	"context"
	"log"
	"time"

	"bizscout/models"
	"bizscout/storage"
)

// LogFunc is a function that logs to the scrape_logs table
type LogFunc func(level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}

// LedgerLogger writes worker log lines into the run ledger under the given
// session label.
func LedgerLogger(ledger storage.RunLedger, session string) LogFunc {
	return func(level models.LogLevel, source, message string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		entry := &models.ScrapeLog{
			SessionID: session,
			Timestamp: time.Now().UTC(),
			Level:     level,
			Message:   message,
			Source:    source,
		}
		if err := ledger.Log(ctx, entry); err != nil {
			log.Printf("Warning: ledger log failed: %v", err)
		}
	}
}
