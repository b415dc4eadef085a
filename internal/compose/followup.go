package compose

import (
	"github.com/osteele/liquid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// The follow-up template is fixed: first name and company name are the only
// personalization fields, no research facts, no generation call.
const (
	followUpSubject = `Quick follow-up, {{ first_name }}`
	followUpBody    = `Hi {{ first_name }},

I reached out last week ahead of the conference and wanted to float it one more time. If it's useful to compare notes on what we're seeing across operations like {{ company_name }}'s, I'd be glad to find a few minutes. And if not, no worries at all.

Either way, enjoy the show.`
)

var followUpEngine = liquid.NewEngine()

// FollowUp renders the fixed follow-up message for an attendee. It never
// calls the generation service and never needs grounding validation beyond
// the template itself containing no numeric claims.
func FollowUp(att model.Attendee, co model.Company) (*model.GeneratedMessage, error) {
	bindings := map[string]any{
		"first_name":   att.FirstName,
		"company_name": co.Name,
	}

	subject, err := followUpEngine.ParseAndRenderString(followUpSubject, bindings)
	if err != nil {
		return nil, eris.Wrap(err, "followup: render subject")
	}
	body, err := followUpEngine.ParseAndRenderString(followUpBody, bindings)
	if err != nil {
		return nil, eris.Wrap(err, "followup: render body")
	}

	return &model.GeneratedMessage{
		Subject: subject,
		Body:    body,
		Facts: []model.ClaimedFact{
			{Claim: att.FirstName, SourceField: FieldFirstName},
			{Claim: co.Name, SourceField: FieldCompanyName},
		},
		Validation: model.ValidationPassed,
	}, nil
}
