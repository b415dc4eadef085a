// Package budget computes and enforces the per-company outreach cap.
package budget

import (
	"fmt"
	"sort"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SmallAccountLimit is the roster size at or below which every attendee
// fits in the budget. Above it, the cap comes from configuration.
const SmallAccountLimit = 3

// DefaultMaxPerCompany is the cap for large accounts when not configured.
const DefaultMaxPerCompany = 3

// InvalidInputError marks malformed caller input. It is rejected
// immediately and never retried.
type InvalidInputError struct {
	CompanyID string
	Reason    string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for company %s: %s", e.CompanyID, e.Reason)
}

// Compute ranks a company's attendees and derives the contact cap for a
// wave. Ranking is by combined score descending with attendee id ascending
// as the tie-break, so re-runs over the same snapshot produce the same
// order. The function is pure; persisting the result is the caller's job.
func Compute(companyID string, attendees []model.Attendee, wave string, maxPerCompany int) (*model.CompanyBudget, error) {
	if len(attendees) == 0 {
		return nil, &InvalidInputError{CompanyID: companyID, Reason: "empty attendee list"}
	}
	for _, a := range attendees {
		if a.CompanyID != companyID {
			return nil, &InvalidInputError{
				CompanyID: companyID,
				Reason:    fmt.Sprintf("attendee %s belongs to company %s", a.ID, a.CompanyID),
			}
		}
	}

	ranked := make([]model.Attendee, len(attendees))
	copy(ranked, attendees)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CombinedScore != ranked[j].CombinedScore {
			return ranked[i].CombinedScore > ranked[j].CombinedScore
		}
		return ranked[i].ID < ranked[j].ID
	})

	ids := make([]string, len(ranked))
	for i, a := range ranked {
		ids[i] = a.ID
	}

	if maxPerCompany <= 0 {
		maxPerCompany = DefaultMaxPerCompany
	}
	cap := len(attendees)
	if cap > SmallAccountLimit {
		cap = maxPerCompany
	}

	return &model.CompanyBudget{
		CompanyID: companyID,
		Wave:      wave,
		Ranking:   ids,
		Cap:       cap,
		Consumed:  0,
	}, nil
}
