// Package lifecycle owns the outreach attempt state machine. Transitions
// are forward-only; nothing here touches storage or the network.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// DefaultFollowUpDelay is how long after a send an attempt waits before a
// follow-up becomes due, absent a reply or claim signal.
const DefaultFollowUpDelay = 168 * time.Hour

// InvalidTransitionError reports a disallowed state change.
type InvalidTransitionError struct {
	AttemptID string
	From      model.AttemptState
	To        model.AttemptState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: attempt %s cannot move %s -> %s", e.AttemptID, e.From, e.To)
}

// transitions lists every legal state change. Anything absent is rejected;
// there are no backward edges.
var transitions = map[model.AttemptState][]model.AttemptState{
	model.StatePending:       {model.StateGenerated, model.StateFailed},
	model.StateGenerated:     {model.StateSent, model.StateFailed},
	model.StateSent:          {model.StateAwaitingReply, model.StateReplied, model.StateClaimed},
	model.StateAwaitingReply: {model.StateReplied, model.StateClaimed, model.StateFollowUpDue},
	model.StateFollowUpDue:   {model.StateFollowUpSent, model.StateReplied, model.StateClaimed, model.StateFailed},
}

func allowed(from, to model.AttemptState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves an attempt to a new state, stamping the timestamps the
// target state owns. The attempt is mutated in place only on success.
func Transition(att *model.OutreachAttempt, to model.AttemptState, now time.Time) error {
	if !allowed(att.State, to) {
		return &InvalidTransitionError{AttemptID: att.ID, From: att.State, To: to}
	}

	switch to {
	case model.StateSent:
		t := now
		att.SentAt = &t
	case model.StateFollowUpSent:
		t := now
		att.FollowUpSentAt = &t
	}

	att.State = to
	att.UpdatedAt = now
	return nil
}

// MarkSent records a successful delivery and immediately arms the reply
// window: the attempt lands in awaiting_reply with its follow-up due time
// set to delay after the send.
func MarkSent(att *model.OutreachAttempt, deliveryID string, delay time.Duration, now time.Time) error {
	if err := Transition(att, model.StateSent, now); err != nil {
		return err
	}
	att.DeliveryID = deliveryID
	att.SendError = ""

	if err := Transition(att, model.StateAwaitingReply, now); err != nil {
		return err
	}
	if delay <= 0 {
		delay = DefaultFollowUpDelay
	}
	due := att.SentAt.Add(delay)
	att.FollowUpDueAt = &due
	return nil
}

// MarkSendFailed records a delivery failure. The attempt keeps its message
// and stays re-sendable from generated; only a pending attempt that never
// produced a message fails terminally here.
func MarkSendFailed(att *model.OutreachAttempt, sendErr error, now time.Time) {
	att.SendError = sendErr.Error()
	att.UpdatedAt = now
}

// ApplySignal records a reply or claim event. Signals are idempotent:
// a duplicate of the already-recorded signal is a no-op, and any signal
// arriving after the attempt is terminal is ignored. Signals before the
// first send are rejected because there is nothing to attribute them to.
func ApplySignal(att *model.OutreachAttempt, sig model.Signal, at time.Time) error {
	if att.Signal == sig && att.Signal != model.SignalNone {
		return nil
	}
	if att.State.Terminal() {
		return nil
	}

	var to model.AttemptState
	switch sig {
	case model.SignalReplied:
		to = model.StateReplied
	case model.SignalClaimed:
		to = model.StateClaimed
	default:
		return fmt.Errorf("lifecycle: unknown signal %q", sig)
	}

	if err := Transition(att, to, at); err != nil {
		return err
	}
	att.Signal = sig
	t := at
	att.SignalAt = &t
	att.FollowUpDueAt = nil
	return nil
}

// FollowUpDue reports whether an attempt's follow-up window has opened as
// of asOf. Replied, claimed, and already-followed-up attempts are never due.
func FollowUpDue(att model.OutreachAttempt, asOf time.Time) bool {
	switch att.State {
	case model.StateAwaitingReply:
		return att.FollowUpDueAt != nil && !asOf.Before(*att.FollowUpDueAt)
	case model.StateFollowUpDue:
		return true
	}
	return false
}

// MarkFollowUpDue moves an awaiting attempt into the due state once its
// window opens. Calling it early is an error.
func MarkFollowUpDue(att *model.OutreachAttempt, now time.Time) error {
	if !FollowUpDue(*att, now) {
		return &InvalidTransitionError{AttemptID: att.ID, From: att.State, To: model.StateFollowUpDue}
	}
	if att.State == model.StateFollowUpDue {
		return nil
	}
	return Transition(att, model.StateFollowUpDue, now)
}
