// Package research exposes a read-only view over the researched account
// data. The outreach engine consumes research output; it never writes any
// of these fields back.
package research

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Adapter wraps a store with the read-only queries outreach needs.
type Adapter struct {
	store store.Store
}

func NewAdapter(s store.Store) *Adapter {
	return &Adapter{store: s}
}

// Company returns one researched account.
func (a *Adapter) Company(ctx context.Context, id string) (*model.Company, error) {
	co, err := a.store.GetCompany(ctx, id)
	return co, eris.Wrapf(err, "research: company %s", id)
}

// Attendees returns every contact registered for one company.
func (a *Adapter) Attendees(ctx context.Context, companyID string) ([]model.Attendee, error) {
	atts, err := a.store.ListCompanyAttendees(ctx, companyID)
	return atts, eris.Wrapf(err, "research: attendees for %s", companyID)
}

// Companies returns all accounts ordered best first.
func (a *Adapter) Companies(ctx context.Context) ([]model.Company, error) {
	cos, err := a.store.ListCompanies(ctx)
	return cos, eris.Wrap(err, "research: companies")
}

// FitCompanies returns only accounts where at least one product line fits.
func (a *Adapter) FitCompanies(ctx context.Context) ([]model.Company, error) {
	cos, err := a.Companies(ctx)
	if err != nil {
		return nil, err
	}
	fit := cos[:0:0]
	for _, co := range cos {
		if co.IsFit() {
			fit = append(fit, co)
		}
	}
	return fit, nil
}
