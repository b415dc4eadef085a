package model

// CompanyBudget caps how many attendees at one company may be contacted in
// a wave. The ranking and cap are fixed once computed for a wave; only the
// consumed count moves, and only forward.
type CompanyBudget struct {
	CompanyID string   `json:"company_id"`
	Wave      string   `json:"wave"`
	Ranking   []string `json:"ranking"` // attendee ids, best first
	Cap       int      `json:"cap"`
	Consumed  int      `json:"consumed"`
}

// RankOf returns the 1-based rank of an attendee in the budget ranking, or
// 0 if the attendee is not part of this company's roster.
func (b CompanyBudget) RankOf(attendeeID string) int {
	for i, id := range b.Ranking {
		if id == attendeeID {
			return i + 1
		}
	}
	return 0
}

// BudgetUsage is the consumed-vs-cap view per company, fed back into
// budget computation for future waves.
type BudgetUsage struct {
	CompanyID string `json:"company_id"`
	Wave      string `json:"wave"`
	Cap       int    `json:"cap"`
	Consumed  int    `json:"consumed"`
}
