package api

import (
	"sync"

	"bizscout/models"
)

const maxTrackedSessions = 50

type trackedSession struct {
	session *models.ScrapeSession
	events  []models.SessionEvent
	done    bool
	// changed is closed and replaced whenever something is recorded.
	changed chan struct{}
}

// Tracker keeps recent sessions and their event history in memory so
// clients can poll a session or follow its event stream.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	order    []string
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*trackedSession)}
}

// Start registers a session that is about to run.
func (t *Tracker) Start(session *models.ScrapeSession) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessions[session.SessionID] = &trackedSession{
		session: session.Clone(),
		changed: make(chan struct{}),
	}
	t.order = append(t.order, session.SessionID)

	t.evict()
}

// evict drops the oldest finished sessions until at most maxTrackedSessions
// remain. Running sessions keep their place and are never dropped.
func (t *Tracker) evict() {
	excess := len(t.order) - maxTrackedSessions
	if excess <= 0 {
		return
	}
	kept := t.order[:0]
	for _, id := range t.order {
		ts := t.sessions[id]
		if ts == nil {
			continue
		}
		if excess > 0 && ts.done {
			delete(t.sessions, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}

// Len reports how many sessions are tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Record appends an event and folds it into the session snapshot.
func (t *Tracker) Record(ev models.SessionEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.sessions[ev.SessionID]
	if !ok || ts.done {
		return
	}

	ts.events = append(ts.events, ev)
	switch ev.Type {
	case models.EventSessionStarted:
		if ev.Session != nil {
			ts.session = ev.Session.Clone()
		}
	case models.EventSourceFinished:
		if ev.Result != nil {
			ts.session.PerSourceResult[ev.Source] = ev.Result.Clone()
		}
	case models.EventSessionFinished:
		if ev.Session != nil {
			ts.session = ev.Session.Clone()
		}
		ts.done = true
	}
	close(ts.changed)
	ts.changed = make(chan struct{})
}

// Finish marks a session terminal with its final state, in case the run
// ended without a session_finished event.
func (t *Tracker) Finish(session *models.ScrapeSession) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.sessions[session.SessionID]
	if !ok || ts.done {
		return
	}
	ts.session = session.Clone()
	ts.done = true
	close(ts.changed)
	ts.changed = make(chan struct{})
}

func (t *Tracker) Get(id string) (*models.ScrapeSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	return ts.session.Clone(), true
}

// Since returns the events recorded after the first from, whether the
// session is over, and a channel closed on the next change.
func (t *Tracker) Since(id string, from int) (events []models.SessionEvent, done bool, changed <-chan struct{}, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, found := t.sessions[id]
	if !found {
		return nil, false, nil, false
	}
	if from < len(ts.events) {
		events = append(events, ts.events[from:]...)
	}
	return events, ts.done, ts.changed, true
}
