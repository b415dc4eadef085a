package fetcher

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Importer writes roster records into the store. Companies are created bare
// when unknown; research fills them in later. Re-importing the same roster
// is a no-op apart from refreshed contact fields.
type Importer struct {
	store store.Store
}

func NewImporter(s store.Store) *Importer {
	return &Importer{store: s}
}

// ImportResult summarizes one roster import.
type ImportResult struct {
	CompaniesCreated int
	Attendees        int
	Skipped          int
}

// Import upserts records into the store. IDs are derived from names so the
// same person and company always map to the same rows across imports.
func (im *Importer) Import(ctx context.Context, recs []Record) (*ImportResult, error) {
	existing, err := im.store.ListCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: list companies")
	}
	companies := make(map[string]model.Company, len(existing))
	for _, co := range existing {
		companies[co.ID] = co
	}

	res := &ImportResult{}
	for _, rec := range recs {
		companyID := slug(rec.Company)
		if companyID == "" {
			res.Skipped++
			continue
		}

		co, ok := companies[companyID]
		if !ok {
			co = model.Company{
				ID:       companyID,
				Name:     rec.Company,
				Category: model.CategoryOther,
			}
			if err := im.store.UpsertCompany(ctx, co); err != nil {
				return nil, eris.Wrapf(err, "fetcher: upsert company %s", companyID)
			}
			companies[companyID] = co
			res.CompaniesCreated++
		}

		att := model.Attendee{
			ID:              companyID + "-" + slug(rec.FirstName+" "+rec.LastName),
			FirstName:       rec.FirstName,
			LastName:        rec.LastName,
			CompanyID:       companyID,
			JobTitle:        rec.JobTitle,
			JobFunction:     rec.JobFunction,
			ManagementLevel: rec.ManagementLevel,
			TicketType:      model.ParseTicketType(rec.TicketType),
			Email:           strings.ToLower(rec.Email),
			LinkedInURL:     rec.LinkedInURL,
			Rep:             rec.Rep,
			GateFitScore:    co.GateFitScore,
			TruckFitScore:   co.TruckFitScore,
			CombinedScore:   co.CombinedScore,
		}
		if err := im.store.UpsertAttendee(ctx, att); err != nil {
			return nil, eris.Wrapf(err, "fetcher: upsert attendee %s", att.ID)
		}
		res.Attendees++
	}

	zap.L().Info("fetcher: roster imported",
		zap.Int("attendees", res.Attendees),
		zap.Int("companies_created", res.CompaniesCreated),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// slug normalizes a name into a stable lowercase identifier.
func slug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
