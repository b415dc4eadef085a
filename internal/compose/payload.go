package compose

import (
	"fmt"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// maxBullets caps how many sourced bullets a message may draw on.
const maxBullets = 3

// Payload field names used to tag claimed facts. The generator may only
// cite these fields; anything else fails grounding.
const (
	FieldOverview    = "overview"
	FieldCount       = "count"
	FieldHook        = "hook"
	FieldBullet      = "bullet" // bullet_1..bullet_3
	FieldFirstName   = "first_name"
	FieldCompanyName = "company_name"
)

// CountKind names which product-line count the payload carries.
type CountKind string

const (
	CountDistributionCenters CountKind = "distribution_centers"
	CountTrucks              CountKind = "trucks"
)

// FactPayload is the strict whitelist of facts handed to the generation
// service for one message. Nothing outside this payload may appear as a
// factual claim in the output.
type FactPayload struct {
	FirstName   string    `json:"first_name"`
	CompanyName string    `json:"company_name"`
	Overview    string    `json:"overview,omitempty"`
	Count       int       `json:"count,omitempty"` // 0 = no usable count, omit numerics
	CountKind   CountKind `json:"count_kind,omitempty"`
	CountSource string    `json:"count_source,omitempty"`
	Hook        string    `json:"hook,omitempty"`
	Bullets     []string  `json:"bullets,omitempty"`
	Disclose    bool      `json:"disclose"` // more than one contact at this company
}

// BuildPayload assembles the fact whitelist for a treatment. Gate-driven
// variants carry the distribution-center count; truck-driven variants the
// fleet count. A zero or unsourced count is dropped entirely so the
// generator cannot be tempted into numeric claims.
func BuildPayload(att model.Attendee, co model.Company, contactedCount int) FactPayload {
	p := FactPayload{
		FirstName:   att.FirstName,
		CompanyName: co.Name,
		Overview:    co.Overview,
		Hook:        co.Hook,
		Disclose:    contactedCount > 1,
	}

	if co.GateDriven() {
		if co.DCCount > 0 && co.DCSource != "" {
			p.Count = co.DCCount
			p.CountKind = CountDistributionCenters
			p.CountSource = co.DCSource
		}
	} else if co.TruckCount > 0 && co.TruckSource != "" {
		p.Count = co.TruckCount
		p.CountKind = CountTrucks
		p.CountSource = co.TruckSource
	}

	bullets := co.Bullets
	if len(bullets) > maxBullets {
		bullets = bullets[:maxBullets]
	}
	p.Bullets = bullets

	return p
}

// FactContext renders the payload as the fact block injected into the
// generation prompt, with each fact labeled by its field name.
func (p FactPayload) FactContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", FieldFirstName, p.FirstName)
	fmt.Fprintf(&b, "%s: %s\n", FieldCompanyName, p.CompanyName)
	if p.Overview != "" {
		fmt.Fprintf(&b, "%s: %s\n", FieldOverview, p.Overview)
	}
	if p.Count > 0 {
		fmt.Fprintf(&b, "%s: %d %s (source: %s)\n", FieldCount, p.Count, p.CountKind, p.CountSource)
	}
	if p.Hook != "" {
		fmt.Fprintf(&b, "%s: %s\n", FieldHook, p.Hook)
	}
	for i, bullet := range p.Bullets {
		fmt.Fprintf(&b, "%s_%d: %s\n", FieldBullet, i+1, bullet)
	}
	return b.String()
}

// allowedField reports whether a claimed source field names a payload field
// that actually holds data.
func (p FactPayload) allowedField(field string) bool {
	switch field {
	case FieldFirstName, FieldCompanyName:
		return true
	case FieldOverview:
		return p.Overview != ""
	case FieldCount:
		return p.Count > 0
	case FieldHook:
		return p.Hook != ""
	}
	if rest, ok := strings.CutPrefix(field, FieldBullet+"_"); ok {
		for i := range p.Bullets {
			if rest == fmt.Sprint(i+1) {
				return true
			}
		}
	}
	return false
}
