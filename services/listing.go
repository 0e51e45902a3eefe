package services

import (
	"context"
	"encoding/json"
	"fmt"

	"bizscout/models"
	"bizscout/storage"
)

// ListingService applies dedup decisions through the storage port. It is
// the only writer of listings during a run.
type ListingService struct {
	store storage.ListingStore
}

func NewListingService(store storage.ListingStore) *ListingService {
	return &ListingService{store: store}
}

// ProcessResult contains the outcome of processing a listing
type ProcessResult struct {
	Action    Action
	ListingID string
	Fields    []string // improved fields on update
}

// Process looks the candidate up by its identity key, decides, and applies
// the decision. Storage failures are returned to the caller, never retried.
func (s *ListingService) Process(ctx context.Context, candidate *models.NormalizedListing, byURL bool) (*ProcessResult, error) {
	key := models.KeyFor(candidate, byURL)

	existing, err := s.store.FindByIdentity(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", candidate.Name, err)
	}

	decision := Decide(candidate, existing)
	result := &ProcessResult{Action: decision.Action}

	switch decision.Action {
	case ActionInsert:
		id, err := s.store.Insert(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("insert %q: %w", candidate.Name, err)
		}
		result.ListingID = id

	case ActionUpdate:
		if err := s.store.Update(ctx, existing.ID, decision.Patch); err != nil {
			return nil, fmt.Errorf("update %q: %w", candidate.Name, err)
		}
		result.ListingID = existing.ID
		result.Fields = decision.Patch.Fields()

	case ActionSkip:
		result.ListingID = existing.ID
	}

	return result, nil
}

// ProcessStats tracks decisions for one source within a run
type ProcessStats struct {
	Processed int
	Inserted  int
	Updated   int
	Skipped   int
	Errors    int
}

func (s *ProcessStats) Aggregate(r *ProcessResult) {
	s.Processed++
	switch r.Action {
	case ActionInsert:
		s.Inserted++
	case ActionUpdate:
		s.Updated++
	case ActionSkip:
		s.Skipped++
	}
}

func (s *ProcessStats) RecordError() {
	s.Processed++
	s.Errors++
}

// ToJSON returns JSON-serializable metadata
func (s *ProcessStats) ToJSON() json.RawMessage {
	data, _ := json.Marshal(map[string]int{
		"processed": s.Processed,
		"inserted":  s.Inserted,
		"updated":   s.Updated,
		"skipped":   s.Skipped,
		"errors":    s.Errors,
	})
	return data
}
