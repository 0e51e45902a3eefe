package api

import (
	"fmt"
	"testing"
	"time"

	"bizscout/models"
)

func TestTracker_EvictsOnlyFinishedSessions(t *testing.T) {
	tr := NewTracker()

	longRun := models.NewScrapeSession("long-run", time.Now())
	tr.Start(longRun)

	for i := range maxTrackedSessions + 10 {
		s := models.NewScrapeSession(fmt.Sprintf("s-%d", i), time.Now())
		tr.Start(s)
		tr.Finish(s)
	}

	if _, ok := tr.Get("long-run"); !ok {
		t.Fatalf("running session was evicted")
	}
	if n := tr.Len(); n != maxTrackedSessions {
		t.Fatalf("expected %d tracked sessions, got %d", maxTrackedSessions, n)
	}

	// Once it finishes, the old run is first in line for eviction.
	longRun.Status = models.SessionCompleted
	tr.Finish(longRun)
	tr.Start(models.NewScrapeSession("next", time.Now()))

	if _, ok := tr.Get("long-run"); ok {
		t.Fatalf("finished session should have been evicted")
	}
	if n := tr.Len(); n != maxTrackedSessions {
		t.Fatalf("expected %d tracked sessions, got %d", maxTrackedSessions, n)
	}
	if _, ok := tr.Get("next"); !ok {
		t.Fatalf("newest session missing")
	}
}

func TestTracker_AllRunningKeepsEverything(t *testing.T) {
	tr := NewTracker()
	for i := range maxTrackedSessions + 5 {
		tr.Start(models.NewScrapeSession(fmt.Sprintf("s-%d", i), time.Now()))
	}
	if n := tr.Len(); n != maxTrackedSessions+5 {
		t.Fatalf("running sessions must not be dropped, got %d", n)
	}
}
