package compose

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func groundedPayload() FactPayload {
	return FactPayload{
		FirstName:   "Jane",
		CompanyName: "Acme Retail",
		Overview:    "Acme Retail operates grocery stores across the midwest.",
		Count:       25,
		CountKind:   CountDistributionCenters,
		CountSource: "company website",
		Hook:        "Announced $500M DC expansion in Texas (Jan 2026)",
		Bullets:     []string{"Operates 47 facilities (careers page)"},
	}
}

func TestValidateGrounding_CleanMessagePasses(t *testing.T) {
	msg := &model.GeneratedMessage{
		Subject: "Your 25 distribution centers",
		Body:    "Hi Jane, with 25 DCs and the 500M Texas expansion, gate automation pays off fast.",
		Facts: []model.ClaimedFact{
			{Claim: "25 distribution centers", SourceField: FieldCount},
			{Claim: "$500M Texas expansion", SourceField: FieldHook},
		},
	}
	assert.NoError(t, ValidateGrounding(groundedPayload(), msg))
}

func TestValidateGrounding_FabricatedNumberFails(t *testing.T) {
	msg := &model.GeneratedMessage{
		Subject: "Hello",
		Body:    "Your 30 distribution centers would benefit.",
	}
	err := ValidateGrounding(groundedPayload(), msg)
	var ungrounded *UngroundedClaimError
	require.ErrorAs(t, err, &ungrounded)
	assert.Contains(t, ungrounded.Tokens, "30")
}

func TestValidateGrounding_CommaFormattedNumberMatches(t *testing.T) {
	p := groundedPayload()
	p.Count = 1200
	p.CountKind = CountTrucks
	msg := &model.GeneratedMessage{
		Subject: "Fleet",
		Body:    "Running 1,200 trucks is no small feat.",
	}
	assert.NoError(t, ValidateGrounding(p, msg))
}

func TestValidateGrounding_NoCountMeansNoNumbers(t *testing.T) {
	p := FactPayload{FirstName: "Jane", CompanyName: "Acme"}
	msg := &model.GeneratedMessage{
		Subject: "Hello",
		Body:    "Teams with 12 sites choose us.",
	}
	err := ValidateGrounding(p, msg)
	var ungrounded *UngroundedClaimError
	require.ErrorAs(t, err, &ungrounded)

	// Without numeric claims the same payload passes.
	clean := &model.GeneratedMessage{Subject: "Hello", Body: "Hi Jane, see you at the show."}
	assert.NoError(t, ValidateGrounding(p, clean))
}

func TestValidateGrounding_UnknownSourceFieldFails(t *testing.T) {
	msg := &model.GeneratedMessage{
		Subject: "Hello",
		Body:    "Hi Jane.",
		Facts: []model.ClaimedFact{
			{Claim: "founded in Ohio", SourceField: "founding_story"},
		},
	}
	err := ValidateGrounding(groundedPayload(), msg)
	var ungrounded *UngroundedClaimError
	require.ErrorAs(t, err, &ungrounded)
	assert.Contains(t, ungrounded.Fields, "founding_story")
}

func TestValidateGrounding_EmptyPayloadFieldCannotBeCited(t *testing.T) {
	p := FactPayload{FirstName: "Jane", CompanyName: "Acme"} // no hook
	msg := &model.GeneratedMessage{
		Subject: "Hello",
		Body:    "Hi Jane.",
		Facts:   []model.ClaimedFact{{Claim: "recent news", SourceField: FieldHook}},
	}
	err := ValidateGrounding(p, msg)
	var ungrounded *UngroundedClaimError
	require.ErrorAs(t, err, &ungrounded)
}

func TestValidateGrounding_DisclosureIffMultipleContacts(t *testing.T) {
	p := groundedPayload()
	withLine := &model.GeneratedMessage{Subject: "Hi", Body: "Hi Jane. " + DisclosureLine}
	withoutLine := &model.GeneratedMessage{Subject: "Hi", Body: "Hi Jane."}

	p.Disclose = true
	assert.NoError(t, ValidateGrounding(p, withLine))
	assert.Error(t, ValidateGrounding(p, withoutLine))

	p.Disclose = false
	assert.NoError(t, ValidateGrounding(p, withoutLine))
	assert.Error(t, ValidateGrounding(p, withLine))
}

// Fuzz-style property: bodies assembled only from payload numbers always
// pass; bodies with an injected foreign number always fail.
func TestValidateGrounding_RandomizedNumericProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 200; i++ {
		count := rng.IntN(5000) + 1
		p := FactPayload{
			FirstName:   "Sam",
			CompanyName: "Vertex Foods",
			Count:       count,
			CountKind:   CountDistributionCenters,
			CountSource: "press release",
			Hook:        fmt.Sprintf("Opened %d new sites (PR, 2026)", rng.IntN(900)+1),
		}

		body := fmt.Sprintf("Hi Sam, your %d DCs caught our eye.", count)
		assert.NoError(t, ValidateGrounding(p, &model.GeneratedMessage{Subject: "s", Body: body}), "iteration %d", i)

		foreign := count + 5001 // guaranteed outside every payload number
		bad := fmt.Sprintf("Hi Sam, your %d DCs caught our eye.", foreign)
		assert.Error(t, ValidateGrounding(p, &model.GeneratedMessage{Subject: "s", Body: bad}), "iteration %d", i)
	}
}
