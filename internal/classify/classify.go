// Package classify maps an attendee, their company, and their budget rank
// to an outreach treatment through an ordered decision table.
package classify

import (
	"sort"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Config tunes the decision table.
type Config struct {
	// FitThreshold is the minimum fit score counting as a product-line fit.
	FitThreshold int `yaml:"fit_threshold" mapstructure:"fit_threshold"`
	// TopN is the number of companies in the global top-target set.
	TopN int `yaml:"top_n" mapstructure:"top_n"`
}

// DefaultConfig returns the production decision-table tuning.
func DefaultConfig() Config {
	return Config{FitThreshold: model.FitThreshold, TopN: 50}
}

// Classify assigns a treatment for one attendee. Rules are evaluated in
// order and the first match wins; the rule order is a contract, not an
// implementation detail. The function is pure and total: every well-formed
// input yields exactly one assignment and calling it again with the same
// input yields the same one.
//
// cap is the company's budget cap, rank the attendee's 1-based budget rank,
// and topTarget whether the company is inside the global top-N target set.
func Classify(att model.Attendee, co model.Company, rank, cap int, topTarget bool, cfg Config) model.Assignment {
	out := model.Assignment{
		AttendeeID: att.ID,
		CompanyID:  co.ID,
		Rank:       rank,
	}

	fit := att.GateFitScore >= cfg.FitThreshold || att.TruckFitScore >= cfg.FitThreshold

	// Rule 1: no fit on either product line.
	if !fit {
		out.Treatment = model.TreatmentSuppressed
		out.Reason = model.SuppressNoFit
		return out
	}

	switch att.TicketType {
	case model.TicketRetailerCPG:
		// Rule 2: retailers compete for the company budget.
		if rank < 1 || rank > cap {
			out.Treatment = model.TreatmentSuppressed
			out.Reason = model.SuppressBudgetExhaust
			return out
		}
		if topTarget {
			out.Treatment = model.TreatmentTopTier
		} else {
			out.Treatment = model.TreatmentStandard
		}
		return out

	case model.TicketExhibitor:
		// Rule 3: exhibitors are routed by role, not budget rank.
		switch roleOrientation(att) {
		case roleOps:
			out.Treatment = model.TreatmentExhibitorOps
		case roleSales:
			out.Treatment = model.TreatmentExhibitorSale
		default:
			out.Treatment = model.TreatmentSuppressed
			out.Reason = model.SuppressAmbiguousRole
		}
		return out

	default:
		// Rule 4: anything else is out of audience.
		out.Treatment = model.TreatmentSuppressed
		out.Reason = model.SuppressUnknownTicket
		return out
	}
}

type role int

const (
	roleAmbiguous role = iota
	roleOps
	roleSales
)

var opsKeywords = []string{
	"operation", "supply chain", "logistics", "distribution", "warehouse",
	"fulfillment", "fleet", "transportation", "facilities", "security",
}

var salesKeywords = []string{
	"sales", "business development", "account executive", "account manager",
	"revenue", "partnership",
}

// roleOrientation inspects title and function text. Operations keywords win
// over sales keywords when both appear: an "Operations Sales Engineer" gets
// the operations track.
func roleOrientation(att model.Attendee) role {
	text := strings.ToLower(att.JobTitle + " " + att.JobFunction)
	for _, kw := range opsKeywords {
		if strings.Contains(text, kw) {
			return roleOps
		}
	}
	for _, kw := range salesKeywords {
		if strings.Contains(text, kw) {
			return roleSales
		}
	}
	return roleAmbiguous
}

// TopTargets returns the ids of the top-n companies ranked by combined
// score descending, DC count descending, company id ascending. The metric
// is deliberately a single deterministic ordering; mixing score-ranked and
// DC-ranked sets would make top-tier membership depend on evaluation order.
func TopTargets(companies []model.Company, n int) map[string]bool {
	if n <= 0 {
		return map[string]bool{}
	}
	ranked := make([]model.Company, len(companies))
	copy(ranked, companies)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CombinedScore != ranked[j].CombinedScore {
			return ranked[i].CombinedScore > ranked[j].CombinedScore
		}
		if ranked[i].DCCount != ranked[j].DCCount {
			return ranked[i].DCCount > ranked[j].DCCount
		}
		return ranked[i].ID < ranked[j].ID
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	top := make(map[string]bool, n)
	for _, c := range ranked[:n] {
		top[c.ID] = true
	}
	return top
}
