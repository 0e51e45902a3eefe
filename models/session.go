package models

import "time"

type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

type ScrapeSession struct {
	SessionID       string                   `json:"session_id"`
	StartTime       time.Time                `json:"start_time"`
	EndTime         *time.Time               `json:"end_time,omitempty"`
	Status          SessionStatus            `json:"status"`
	PerSourceResult map[string]*SourceResult `json:"per_source_result"`
	Errors          []string                 `json:"errors"`
}

func NewScrapeSession(id string, start time.Time) *ScrapeSession {
	return &ScrapeSession{
		SessionID:       id,
		StartTime:       start,
		Status:          SessionIdle,
		PerSourceResult: make(map[string]*SourceResult),
		Errors:          []string{},
	}
}

// Clone returns a deep enough copy for handing to other goroutines.
func (s *ScrapeSession) Clone() *ScrapeSession {
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	c.Errors = append([]string(nil), s.Errors...)
	c.PerSourceResult = make(map[string]*SourceResult, len(s.PerSourceResult))
	for name, r := range s.PerSourceResult {
		c.PerSourceResult[name] = r.Clone()
	}
	return &c
}

// Totals sums listing counters over all sources.
func (s *ScrapeSession) Totals() (scraped, inserted, updated, skipped int) {
	for _, r := range s.PerSourceResult {
		scraped += r.TotalScraped
		inserted += r.Inserted
		updated += r.Updated
		skipped += r.Skipped
	}
	return
}

type SourceResult struct {
	Success      bool                `json:"success"`
	Listings     []NormalizedListing `json:"listings"`
	Errors       []string            `json:"errors"`
	TotalScraped int                 `json:"total_scraped"`

	Inserted     int                 `json:"inserted"`
	Updated      int                 `json:"updated"`
	Skipped      int                 `json:"skipped"`
	Unidentified []NormalizedListing `json:"unidentified,omitempty"`
}

func (r *SourceResult) Clone() *SourceResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Listings = append([]NormalizedListing(nil), r.Listings...)
	c.Errors = append([]string(nil), r.Errors...)
	c.Unidentified = append([]NormalizedListing(nil), r.Unidentified...)
	return &c
}

type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventSourceStarted   EventType = "source_started"
	EventListing         EventType = "listing"
	EventSourceFinished  EventType = "source_finished"
	EventSessionFinished EventType = "session_finished"
)

// SessionEvent is one progress notification of a running session. Payload
// pointers are copies owned by the receiver.
type SessionEvent struct {
	Type      EventType          `json:"type"`
	SessionID string             `json:"session_id"`
	Source    string             `json:"source,omitempty"`
	Decision  string             `json:"decision,omitempty"`
	Listing   *NormalizedListing `json:"listing,omitempty"`
	Result    *SourceResult      `json:"result,omitempty"`
	Session   *ScrapeSession     `json:"session,omitempty"`
	Message   string             `json:"message,omitempty"`
	Time      time.Time          `json:"time"`
}
