package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bizscout/models"
)

// MemoryStore keeps everything in process. Used for dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]*models.StoredListing
	order    []string
	runs     []models.ScrapeRun
	logs     []models.ScrapeLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]*models.StoredListing)}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) FindByIdentity(ctx context.Context, key models.IdentityKey) (*models.StoredListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		l := s.listings[id]
		if l.OriginalURL != key.URL {
			continue
		}
		if key.Name != "" && l.Name != key.Name {
			continue
		}
		c := copyStored(l)
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) Insert(ctx context.Context, l *models.NormalizedListing) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	id := uuid.NewString()
	stored := &models.StoredListing{
		ID:                id,
		NormalizedListing: *l,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
	stored.Highlights = append([]string(nil), l.Highlights...)
	s.listings[id] = stored
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch models.ListingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return ErrNotFound
	}
	patch.Apply(&l.NormalizedListing)
	l.UpdatedAt = now()
	return nil
}

func (s *MemoryStore) ListIncomplete(ctx context.Context, limit int) ([]models.StoredListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.StoredListing
	for _, id := range s.order {
		l := s.listings[id]
		if isIncomplete(&l.NormalizedListing) {
			out = append(out, copyStored(l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored listing in insertion order.
func (s *MemoryStore) All() []models.StoredListing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.StoredListing, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyStored(s.listings[id]))
	}
	return out
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.ID = int64(len(s.runs) + 1)
	s.runs = append(s.runs, *run)
	return run.ID, nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.ScrapeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID < 1 || int(run.ID) > len(s.runs) {
		return wrap("update run", ErrNotFound)
	}
	s.runs[run.ID-1] = *run
	return nil
}

func (s *MemoryStore) Log(ctx context.Context, entry *models.ScrapeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = int64(len(s.logs) + 1)
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *MemoryStore) LastRun(ctx context.Context, source string) (*models.ScrapeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Source == source {
			r := s.runs[i]
			return &r, nil
		}
	}
	return nil, nil
}

// Runs returns a copy of the run ledger.
func (s *MemoryStore) Runs() []models.ScrapeRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ScrapeRun(nil), s.runs...)
}

// Logs returns a copy of the log ledger.
func (s *MemoryStore) Logs() []models.ScrapeLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ScrapeLog(nil), s.logs...)
}

func copyStored(l *models.StoredListing) models.StoredListing {
	c := *l
	c.Highlights = append([]string(nil), l.Highlights...)
	return c
}
