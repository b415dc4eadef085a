package classify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

func fitCompany(id string) model.Company {
	return model.Company{
		ID:            id,
		GateFitScore:  80,
		TruckFitScore: 20,
		CombinedScore: model.CombinedScore(80, 20),
		Category:      model.AssignCategory(80, 20),
	}
}

func retailer(id, companyID string) model.Attendee {
	return model.Attendee{
		ID:            id,
		CompanyID:     companyID,
		TicketType:    model.TicketRetailerCPG,
		GateFitScore:  80,
		TruckFitScore: 20,
	}
}

func TestClassify_NoFitSuppressedFirst(t *testing.T) {
	att := retailer("a1", "c1")
	att.GateFitScore = 30
	att.TruckFitScore = 10

	got := Classify(att, fitCompany("c1"), 1, 3, true, DefaultConfig())
	assert.Equal(t, model.TreatmentSuppressed, got.Treatment)
	assert.Equal(t, model.SuppressNoFit, got.Reason)
}

func TestClassify_RetailerBudgetExhausted(t *testing.T) {
	got := Classify(retailer("a1", "c1"), fitCompany("c1"), 4, 3, true, DefaultConfig())
	assert.Equal(t, model.TreatmentSuppressed, got.Treatment)
	assert.Equal(t, model.SuppressBudgetExhaust, got.Reason)

	// Rank 0 means the attendee is not in the ranking at all.
	got = Classify(retailer("a1", "c1"), fitCompany("c1"), 0, 3, true, DefaultConfig())
	assert.Equal(t, model.TreatmentSuppressed, got.Treatment)
}

func TestClassify_RetailerTopTierVsStandard(t *testing.T) {
	got := Classify(retailer("a1", "c1"), fitCompany("c1"), 1, 3, true, DefaultConfig())
	assert.Equal(t, model.TreatmentTopTier, got.Treatment)

	got = Classify(retailer("a1", "c1"), fitCompany("c1"), 1, 3, false, DefaultConfig())
	assert.Equal(t, model.TreatmentStandard, got.Treatment)
}

func TestClassify_ExhibitorRoles(t *testing.T) {
	cases := []struct {
		title, function string
		want            model.Treatment
		reason          model.SuppressReason
	}{
		{"VP Supply Chain Operations", "", model.TreatmentExhibitorOps, model.SuppressNone},
		{"Director of Distribution", "Operations", model.TreatmentExhibitorOps, model.SuppressNone},
		{"Regional Sales Manager", "Sales", model.TreatmentExhibitorSale, model.SuppressNone},
		{"Head of Business Development", "", model.TreatmentExhibitorSale, model.SuppressNone},
		{"Chief People Officer", "HR", model.TreatmentSuppressed, model.SuppressAmbiguousRole},
	}

	for _, tc := range cases {
		att := retailer("a1", "c1")
		att.TicketType = model.TicketExhibitor
		att.JobTitle = tc.title
		att.JobFunction = tc.function

		got := Classify(att, fitCompany("c1"), 1, 3, false, DefaultConfig())
		assert.Equal(t, tc.want, got.Treatment, tc.title)
		assert.Equal(t, tc.reason, got.Reason, tc.title)
	}
}

func TestClassify_ExhibitorRequiresFit(t *testing.T) {
	att := retailer("a1", "c1")
	att.TicketType = model.TicketExhibitor
	att.JobTitle = "VP Operations"
	att.GateFitScore = 10
	att.TruckFitScore = 10

	got := Classify(att, fitCompany("c1"), 1, 3, false, DefaultConfig())
	assert.Equal(t, model.TreatmentSuppressed, got.Treatment)
	assert.Equal(t, model.SuppressNoFit, got.Reason)
}

func TestClassify_OpsWinsOverSalesKeywords(t *testing.T) {
	att := retailer("a1", "c1")
	att.TicketType = model.TicketExhibitor
	att.JobTitle = "Sales Operations Lead"

	got := Classify(att, fitCompany("c1"), 1, 3, false, DefaultConfig())
	assert.Equal(t, model.TreatmentExhibitorOps, got.Treatment)
}

func TestClassify_UnknownTicketSuppressed(t *testing.T) {
	att := retailer("a1", "c1")
	att.TicketType = model.TicketUnknown

	got := Classify(att, fitCompany("c1"), 1, 3, true, DefaultConfig())
	assert.Equal(t, model.TreatmentSuppressed, got.Treatment)
	assert.Equal(t, model.SuppressUnknownTicket, got.Reason)
}

// Classification is total and pure: every combination returns exactly one
// treatment and repeated calls agree.
func TestClassify_TotalAndPure(t *testing.T) {
	tickets := []model.TicketType{model.TicketRetailerCPG, model.TicketExhibitor, model.TicketUnknown}
	titles := []string{"", "VP Operations", "Sales Director", "General Counsel"}
	scores := []int{0, 49, 50, 100}

	for _, ticket := range tickets {
		for _, title := range titles {
			for _, gate := range scores {
				for rank := 0; rank <= 4; rank++ {
					att := model.Attendee{
						ID: "a1", CompanyID: "c1",
						TicketType: ticket, JobTitle: title,
						GateFitScore: gate,
					}
					first := Classify(att, fitCompany("c1"), rank, 3, true, DefaultConfig())
					second := Classify(att, fitCompany("c1"), rank, 3, true, DefaultConfig())
					assert.Equal(t, first, second,
						fmt.Sprintf("%s/%s/gate=%d/rank=%d", ticket, title, gate, rank))
					assert.NotEmpty(t, first.Treatment)
				}
			}
		}
	}
}

func TestTopTargets_DeterministicOrdering(t *testing.T) {
	companies := []model.Company{
		{ID: "c3", CombinedScore: 90, DCCount: 10},
		{ID: "c1", CombinedScore: 90, DCCount: 25},
		{ID: "c2", CombinedScore: 95, DCCount: 1},
		{ID: "c4", CombinedScore: 40, DCCount: 100},
	}

	top := TopTargets(companies, 2)
	assert.True(t, top["c2"]) // highest score
	assert.True(t, top["c1"]) // score tie broken by DC count
	assert.False(t, top["c3"])
	assert.False(t, top["c4"])

	// n larger than the set includes everyone.
	all := TopTargets(companies, 50)
	assert.Len(t, all, 4)

	assert.Empty(t, TopTargets(companies, 0))
}
