package compose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func testComposer(t *testing.T, ai *mockAIClient) *Composer {
	t.Helper()
	reg, err := LoadTemplates()
	require.NoError(t, err)
	return New(ai, reg, Config{Model: "claude-sonnet-4-5-20250929", RatePerSec: 1000, RateBurst: 1000})
}

func testAttendee() model.Attendee {
	return model.Attendee{
		ID: "a1", CompanyID: "c1", FirstName: "Jane", LastName: "Doe",
		TicketType: model.TicketRetailerCPG, GateFitScore: 80,
	}
}

func testCompany() model.Company {
	return model.Company{
		ID: "c1", Name: "Acme Retail",
		Overview: "Acme Retail operates grocery stores.",
		DCCount:  25, DCSource: "company website",
		Hook:         "Announced Texas DC expansion (Jan 2026)",
		GateFitScore: 80, TruckFitScore: 20,
		Category: model.CategoryGate,
	}
}

const validResponse = `{"subject": "Your 25 DCs", "body": "Hi Jane, 25 distribution centers is real scale.", "facts": [{"claim": "25 distribution centers", "source_field": "count"}]}`

func TestCompose_HappyPath(t *testing.T) {
	ai := &mockAIClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(aiResponse(validResponse), nil).Once()

	msg, err := testComposer(t, ai).Compose(context.Background(), testAttendee(), testCompany(), model.TreatmentTopTier, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ValidationPassed, msg.Validation)
	assert.Equal(t, "Your 25 DCs", msg.Subject)
	ai.AssertExpectations(t)
}

func TestCompose_SuppressedTreatmentIsCallerError(t *testing.T) {
	ai := &mockAIClient{}
	_, err := testComposer(t, ai).Compose(context.Background(), testAttendee(), testCompany(), model.TreatmentSuppressed, 1)

	var suppressed *SuppressedTreatmentError
	require.ErrorAs(t, err, &suppressed)
	assert.Equal(t, "a1", suppressed.AttendeeID)
	ai.AssertNumberOfCalls(t, "CreateMessage", 0)
}

func TestCompose_UngroundedRetriesOnceStricterThenFails(t *testing.T) {
	fabricated := `{"subject": "Hello", "body": "Hi Jane, your 99 DCs impress.", "facts": []}`

	ai := &mockAIClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(aiResponse(fabricated), nil).Twice()

	msg, err := testComposer(t, ai).Compose(context.Background(), testAttendee(), testCompany(), model.TreatmentTopTier, 1)

	var ungrounded *UngroundedClaimError
	require.ErrorAs(t, err, &ungrounded)
	require.NotNil(t, msg)
	assert.Equal(t, model.ValidationFailed, msg.Validation)
	ai.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestCompose_UngroundedThenCleanRetrySucceeds(t *testing.T) {
	fabricated := `{"subject": "Hello", "body": "Hi Jane, your 99 DCs impress.", "facts": []}`

	ai := &mockAIClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(aiResponse(fabricated), nil).Once()
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(aiResponse(validResponse), nil).Once()

	msg, err := testComposer(t, ai).Compose(context.Background(), testAttendee(), testCompany(), model.TreatmentTopTier, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ValidationPassed, msg.Validation)
	ai.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestCompose_DisclosureRequestedForMultiContactCompany(t *testing.T) {
	withDisclosure := `{"subject": "Your 25 DCs", "body": "Hi Jane, 25 DCs is real scale. ` + DisclosureLine + `", "facts": []}`

	ai := &mockAIClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(aiResponse(withDisclosure), nil).Once()

	msg, err := testComposer(t, ai).Compose(context.Background(), testAttendee(), testCompany(), model.TreatmentTopTier, 3)
	require.NoError(t, err)
	assert.Contains(t, msg.Body, DisclosureLine)
}

func TestBuildPayload_GateDrivenCarriesDCCount(t *testing.T) {
	p := BuildPayload(testAttendee(), testCompany(), 1)
	assert.Equal(t, 25, p.Count)
	assert.Equal(t, CountDistributionCenters, p.CountKind)
	assert.False(t, p.Disclose)

	p = BuildPayload(testAttendee(), testCompany(), 2)
	assert.True(t, p.Disclose)
}

func TestBuildPayload_TruckDrivenCarriesFleetCount(t *testing.T) {
	co := testCompany()
	co.Category = model.CategoryTruck
	co.TruckCount = 800
	co.TruckSource = "LinkedIn job posts"

	p := BuildPayload(testAttendee(), co, 1)
	assert.Equal(t, 800, p.Count)
	assert.Equal(t, CountTrucks, p.CountKind)
}

func TestBuildPayload_UnsourcedCountDropped(t *testing.T) {
	co := testCompany()
	co.DCSource = ""

	p := BuildPayload(testAttendee(), co, 1)
	assert.Zero(t, p.Count)
	assert.Empty(t, p.CountKind)
}

func TestBuildPayload_BulletsCappedAtThree(t *testing.T) {
	co := testCompany()
	co.Bullets = []string{"one", "two", "three", "four", "five"}

	p := BuildPayload(testAttendee(), co, 1)
	assert.Len(t, p.Bullets, 3)
}

func TestParseMessage_WithMarkdownFence(t *testing.T) {
	msg, err := parseMessage("```json\n" + validResponse + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Your 25 DCs", msg.Subject)
	assert.Len(t, msg.Facts, 1)
}

func TestParseMessage_MissingBodyRejected(t *testing.T) {
	_, err := parseMessage(`{"subject": "hi"}`)
	assert.Error(t, err)

	_, err = parseMessage("not json at all")
	assert.Error(t, err)
}

func TestLoadTemplates_AllPersonalizedTreatmentsCovered(t *testing.T) {
	reg, err := LoadTemplates()
	require.NoError(t, err)

	for _, tr := range []model.Treatment{
		model.TreatmentTopTier, model.TreatmentStandard,
		model.TreatmentExhibitorOps, model.TreatmentExhibitorSale,
	} {
		tmpl, err := reg.Lookup(tr)
		require.NoError(t, err, string(tr))
		assert.NotEmpty(t, tmpl.Framing, string(tr))
	}

	_, err = reg.Lookup(model.TreatmentSuppressed)
	assert.Error(t, err)
}

func TestTemplates_ExhibitorSalesHasNoMeetingOffer(t *testing.T) {
	reg, err := LoadTemplates()
	require.NoError(t, err)

	sales, err := reg.Lookup(model.TreatmentExhibitorSale)
	require.NoError(t, err)
	assert.Equal(t, "booth_expo", sales.Framing)

	ops, err := reg.Lookup(model.TreatmentExhibitorOps)
	require.NoError(t, err)
	assert.Equal(t, "meet_privately", ops.Framing)
}
