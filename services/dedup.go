package services

import (
	"unicode/utf8"

	"bizscout/models"
)

type Action int

const (
	ActionInsert Action = iota + 1
	ActionUpdate
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Decision is the outcome for one candidate. Patch is only set for updates.
type Decision struct {
	Action Action
	Patch  models.ListingPatch
}

// Decide compares a candidate against the stored listing with the same
// identity key. Only fields the candidate improves end up in the patch, and
// a populated stored field is never replaced by an empty or zero one.
func Decide(candidate *models.NormalizedListing, existing *models.StoredListing) Decision {
	if existing == nil {
		return Decision{Action: ActionInsert}
	}

	var p models.ListingPatch

	if candidate.Description != "" &&
		utf8.RuneCountInString(candidate.Description) > utf8.RuneCountInString(existing.Description) {
		d := candidate.Description
		p.Description = &d
	}

	p.AskingPrice = improvedAmount(existing.AskingPrice, candidate.AskingPrice)
	p.AnnualRevenue = improvedAmount(existing.AnnualRevenue, candidate.AnnualRevenue)
	p.AnnualProfit = improvedAmount(existing.AnnualProfit, candidate.AnnualProfit)

	if existing.Industry == "" && candidate.Industry != "" {
		v := candidate.Industry
		p.Industry = &v
	}

	if isPlaceholderLocation(existing.Location) && !isPlaceholderLocation(candidate.Location) {
		v := candidate.Location
		p.Location = &v
	}

	if len(existing.Highlights) == 0 && len(candidate.Highlights) > 0 {
		p.Highlights = append([]string(nil), candidate.Highlights...)
	}

	if p.IsEmpty() {
		return Decision{Action: ActionSkip}
	}

	p.ScrapedAt = candidate.ScrapedAt
	return Decision{Action: ActionUpdate, Patch: p}
}

func improvedAmount(stored, candidate int64) *int64 {
	if stored != 0 || candidate <= 0 {
		return nil
	}
	return &candidate
}

func isPlaceholderLocation(loc string) bool {
	return loc == "" || loc == models.DefaultLocation
}
