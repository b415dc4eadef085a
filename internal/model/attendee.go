package model

import (
	"strings"
	"time"
)

// TicketType is the attendance classification from the registration list.
type TicketType string

const (
	TicketRetailerCPG TicketType = "retailer_cpg"
	TicketExhibitor   TicketType = "exhibitor_sponsor"
	TicketUnknown     TicketType = "unknown"
)

// ParseTicketType normalizes the free-text ticket column from the roster.
func ParseTicketType(raw string) TicketType {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "retailer") || strings.Contains(s, "cpg"):
		return TicketRetailerCPG
	case strings.Contains(s, "exhibitor") || strings.Contains(s, "sponsor"):
		return TicketExhibitor
	default:
		return TicketUnknown
	}
}

// Attendee is one conference contact, linked to exactly one company.
// Fit scores are denormalized from the company at research time and only
// change via an explicit refresh.
type Attendee struct {
	ID              string     `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name,omitempty"`
	CompanyID       string     `json:"company_id"`
	JobTitle        string     `json:"job_title,omitempty"`
	JobFunction     string     `json:"job_function,omitempty"`
	ManagementLevel string     `json:"management_level,omitempty"`
	TicketType      TicketType `json:"ticket_type"`
	Email           string     `json:"email,omitempty"`
	LinkedInURL     string     `json:"linkedin_url,omitempty"`
	Rep             string     `json:"rep,omitempty"` // assigned sales rep
	GateFitScore    int        `json:"gate_fit_score"`
	TruckFitScore   int        `json:"truck_fit_score"`
	CombinedScore   int        `json:"combined_score"`
	CreatedAt       time.Time  `json:"created_at,omitempty"`
}

// FullName joins first and last name, tolerating a missing last name.
func (a Attendee) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}
