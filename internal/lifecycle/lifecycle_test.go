package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func pendingAttempt() *model.OutreachAttempt {
	return &model.OutreachAttempt{
		ID: "at1", AttendeeID: "a1", CompanyID: "c1", Wave: "w1",
		Treatment: model.TreatmentTopTier, State: model.StatePending,
	}
}

func sentAttempt(t *testing.T) *model.OutreachAttempt {
	t.Helper()
	att := pendingAttempt()
	require.NoError(t, Transition(att, model.StateGenerated, t0))
	require.NoError(t, MarkSent(att, "ses-123", DefaultFollowUpDelay, t0))
	return att
}

func TestTransition_ForwardOnly(t *testing.T) {
	att := sentAttempt(t)
	require.Equal(t, model.StateAwaitingReply, att.State)

	for _, to := range []model.AttemptState{
		model.StatePending, model.StateGenerated, model.StateSent,
	} {
		err := Transition(att, to, t0.Add(time.Hour))
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid, string(to))
		assert.Equal(t, model.StateAwaitingReply, invalid.From)
	}
	assert.Equal(t, model.StateAwaitingReply, att.State)
}

func TestTransition_RejectedLeavesAttemptUntouched(t *testing.T) {
	att := pendingAttempt()
	before := *att

	err := Transition(att, model.StateSent, t0)
	require.Error(t, err)
	assert.Equal(t, before, *att)
}

func TestMarkSent_ArmsFollowUpWindow(t *testing.T) {
	att := sentAttempt(t)

	require.NotNil(t, att.SentAt)
	require.NotNil(t, att.FollowUpDueAt)
	assert.Equal(t, "ses-123", att.DeliveryID)
	assert.Equal(t, att.SentAt.Add(DefaultFollowUpDelay), *att.FollowUpDueAt)
}

func TestApplySignal_ReplyBeforeWindowNeverBecomesDue(t *testing.T) {
	att := sentAttempt(t)

	// Reply two days after the send, well inside the seven-day window.
	replyAt := t0.Add(48 * time.Hour)
	require.NoError(t, ApplySignal(att, model.SignalReplied, replyAt))
	assert.Equal(t, model.StateReplied, att.State)
	assert.Nil(t, att.FollowUpDueAt)

	// Even ten days out, the attempt is not follow-up eligible.
	assert.False(t, FollowUpDue(*att, t0.Add(240*time.Hour)))
}

func TestApplySignal_Idempotent(t *testing.T) {
	att := sentAttempt(t)

	require.NoError(t, ApplySignal(att, model.SignalReplied, t0.Add(time.Hour)))
	firstAt := *att.SignalAt

	require.NoError(t, ApplySignal(att, model.SignalReplied, t0.Add(2*time.Hour)))
	assert.Equal(t, firstAt, *att.SignalAt)
	assert.Equal(t, model.StateReplied, att.State)
}

func TestApplySignal_AfterTerminalIgnored(t *testing.T) {
	att := sentAttempt(t)
	require.NoError(t, ApplySignal(att, model.SignalReplied, t0.Add(time.Hour)))

	// A late claim signal does not overwrite the recorded reply.
	require.NoError(t, ApplySignal(att, model.SignalClaimed, t0.Add(3*time.Hour)))
	assert.Equal(t, model.StateReplied, att.State)
	assert.Equal(t, model.SignalReplied, att.Signal)
}

func TestApplySignal_BeforeSendRejected(t *testing.T) {
	att := pendingAttempt()
	err := ApplySignal(att, model.SignalReplied, t0)

	var invalid *InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestApplySignal_UnknownSignal(t *testing.T) {
	att := sentAttempt(t)
	assert.Error(t, ApplySignal(att, model.Signal("bounced"), t0.Add(time.Hour)))
}

func TestFollowUpDue_WindowBoundary(t *testing.T) {
	att := sentAttempt(t)
	due := *att.FollowUpDueAt

	assert.False(t, FollowUpDue(*att, due.Add(-time.Second)))
	assert.True(t, FollowUpDue(*att, due))
	assert.True(t, FollowUpDue(*att, due.Add(time.Hour)))
}

func TestMarkFollowUpDue_ThenSent(t *testing.T) {
	att := sentAttempt(t)
	due := *att.FollowUpDueAt

	require.Error(t, MarkFollowUpDue(att, due.Add(-time.Minute)))

	require.NoError(t, MarkFollowUpDue(att, due))
	assert.Equal(t, model.StateFollowUpDue, att.State)

	// Second sweep pass is a no-op.
	require.NoError(t, MarkFollowUpDue(att, due.Add(time.Minute)))
	assert.Equal(t, model.StateFollowUpDue, att.State)

	require.NoError(t, Transition(att, model.StateFollowUpSent, due.Add(time.Hour)))
	assert.True(t, att.State.Terminal())
	require.NotNil(t, att.FollowUpSentAt)
}

func TestReplyAfterFollowUpDueStillLands(t *testing.T) {
	att := sentAttempt(t)
	due := *att.FollowUpDueAt
	require.NoError(t, MarkFollowUpDue(att, due))

	require.NoError(t, ApplySignal(att, model.SignalReplied, due.Add(time.Hour)))
	assert.Equal(t, model.StateReplied, att.State)
}

func TestMarkSendFailed_KeepsAttemptResendable(t *testing.T) {
	att := pendingAttempt()
	require.NoError(t, Transition(att, model.StateGenerated, t0))

	MarkSendFailed(att, errors.New("throttled"), t0.Add(time.Minute))
	assert.Equal(t, model.StateGenerated, att.State)
	assert.Equal(t, "throttled", att.SendError)

	require.NoError(t, MarkSent(att, "ses-9", DefaultFollowUpDelay, t0.Add(2*time.Minute)))
	assert.Empty(t, att.SendError)
}
