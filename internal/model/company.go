package model

import "time"

// Category classifies a company by which product lines it fits.
type Category string

const (
	CategoryGate  Category = "gate"
	CategoryTruck Category = "truck"
	CategoryBoth  Category = "both"
	CategoryOther Category = "other"
)

// FitThreshold is the minimum fit score for a company to count as a fit for
// a product line.
const FitThreshold = 50

// Company is a researched prospect account. Research fields are immutable
// once ResearchedAt is set; this engine only reads them.
type Company struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Website         string    `json:"website,omitempty"`
	PrimaryIndustry string    `json:"primary_industry,omitempty"`
	NumLocations    int       `json:"num_locations,omitempty"`
	Employees       int       `json:"employees,omitempty"`
	Revenue         string    `json:"revenue,omitempty"` // kept as text: "Over $5 bil." etc.
	Overview        string    `json:"overview,omitempty"`
	DCCount         int       `json:"dc_count,omitempty"`
	DCSource        string    `json:"dc_source,omitempty"`
	TruckCount      int       `json:"truck_count,omitempty"`
	TruckSource     string    `json:"truck_source,omitempty"`
	Bullets         []string  `json:"bullets,omitempty"` // sourced facts, source in parentheses
	Hook            string    `json:"hook,omitempty"`
	GateFitScore    int       `json:"gate_fit_score"`
	TruckFitScore   int       `json:"truck_fit_score"`
	CombinedScore   int       `json:"combined_score"`
	Category        Category  `json:"category"`
	ResearchedAt    time.Time `json:"researched_at,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// CombinedScore derives the blended fit score: the stronger product-line
// score plus a 20% bonus from the weaker one, so dual-fit accounts rank
// above single-fit accounts with the same peak score.
func CombinedScore(gateScore, truckScore int) int {
	base := gateScore
	low := truckScore
	if truckScore > gateScore {
		base = truckScore
		low = gateScore
	}
	return base + int(float64(low)*0.2)
}

// AssignCategory buckets a company by which fit scores clear FitThreshold.
func AssignCategory(gateScore, truckScore int) Category {
	switch {
	case gateScore >= FitThreshold && truckScore >= FitThreshold:
		return CategoryBoth
	case gateScore >= FitThreshold:
		return CategoryGate
	case truckScore >= FitThreshold:
		return CategoryTruck
	default:
		return CategoryOther
	}
}

// GateDriven reports whether outreach content for this company should lead
// with the distribution-center story. Dual-fit accounts lead with gate.
func (c Company) GateDriven() bool {
	return c.Category == CategoryGate || c.Category == CategoryBoth
}

// IsFit reports whether at least one product line clears the threshold.
func (c Company) IsFit() bool {
	return c.Category != CategoryOther
}
