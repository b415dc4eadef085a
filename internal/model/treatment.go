package model

// Treatment is the outreach variant assigned to a contact.
type Treatment string

const (
	TreatmentSuppressed    Treatment = "suppressed"
	TreatmentTopTier       Treatment = "top_tier_personalized"
	TreatmentStandard      Treatment = "standard_personalized"
	TreatmentExhibitorOps  Treatment = "exhibitor_operations"
	TreatmentExhibitorSale Treatment = "exhibitor_sales"
	TreatmentFollowUp      Treatment = "follow_up"
)

// SuppressReason records why a contact was suppressed. Ambiguous-role
// suppressions feed the human review queue; the rest are final for the wave.
type SuppressReason string

const (
	SuppressNone           SuppressReason = ""
	SuppressNoFit          SuppressReason = "no_fit"
	SuppressBudgetExhaust  SuppressReason = "budget_exhausted"
	SuppressAmbiguousRole  SuppressReason = "ambiguous_role"
	SuppressUnknownTicket  SuppressReason = "unknown_ticket_type"
)

// Assignment is the classifier output for one attendee in one wave.
type Assignment struct {
	AttendeeID string         `json:"attendee_id"`
	CompanyID  string         `json:"company_id"`
	Treatment  Treatment      `json:"treatment"`
	Reason     SuppressReason `json:"reason,omitempty"`
	Rank       int            `json:"rank"` // 1-based budget rank within the company
}

// Suppressed reports whether the assignment excludes the contact from outreach.
func (a Assignment) Suppressed() bool {
	return a.Treatment == TreatmentSuppressed
}

// Personalized reports whether the treatment uses the research-grounded
// generation path (as opposed to the fixed follow-up template).
func (t Treatment) Personalized() bool {
	switch t {
	case TreatmentTopTier, TreatmentStandard, TreatmentExhibitorOps, TreatmentExhibitorSale:
		return true
	}
	return false
}

// TopTierFamily reports whether the treatment renders with the top-tier
// (meet-privately) template family.
func (t Treatment) TopTierFamily() bool {
	return t == TreatmentTopTier || t == TreatmentExhibitorOps
}
