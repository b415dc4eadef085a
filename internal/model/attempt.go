package model

import "time"

// AttemptState is the lifecycle position of one outreach attempt.
type AttemptState string

const (
	StatePending       AttemptState = "pending"
	StateGenerated     AttemptState = "generated"
	StateSent          AttemptState = "sent"
	StateAwaitingReply AttemptState = "awaiting_reply"
	StateReplied       AttemptState = "replied"
	StateClaimed       AttemptState = "claimed_elsewhere"
	StateFollowUpDue   AttemptState = "follow_up_due"
	StateFollowUpSent  AttemptState = "follow_up_sent"
	StateFailed        AttemptState = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
// A failed attempt is terminal for its wave but may be re-enrolled in a
// later wave via a fresh attempt row.
func (s AttemptState) Terminal() bool {
	switch s {
	case StateReplied, StateClaimed, StateFollowUpSent, StateFailed:
		return true
	}
	return false
}

// Delivered reports whether at least one message actually went out for an
// attempt in state s. A failed attempt never delivered; a replied or claimed
// one did.
func (s AttemptState) Delivered() bool {
	switch s {
	case StateSent, StateAwaitingReply, StateReplied, StateClaimed, StateFollowUpDue, StateFollowUpSent:
		return true
	}
	return false
}

// Signal is a reply/claim event from the external feed.
type Signal string

const (
	SignalNone    Signal = ""
	SignalReplied Signal = "replied"
	SignalClaimed Signal = "claimed_elsewhere"
)

// OutreachAttempt is one row per (attendee, wave). Rows are never deleted;
// re-enrollment creates a new row in a later wave.
type OutreachAttempt struct {
	ID             string            `json:"id"`
	AttendeeID     string            `json:"attendee_id"`
	CompanyID      string            `json:"company_id"`
	Wave           string            `json:"wave"`
	Treatment      Treatment         `json:"treatment"`
	SuppressReason SuppressReason    `json:"suppress_reason,omitempty"`
	Rank           int               `json:"rank"`
	State          AttemptState      `json:"state"`
	Message        *GeneratedMessage `json:"message,omitempty"`
	SendError      string            `json:"send_error,omitempty"`
	DeliveryID     string            `json:"delivery_id,omitempty"`
	SentAt         *time.Time        `json:"sent_at,omitempty"`
	Signal         Signal            `json:"signal,omitempty"`
	SignalAt       *time.Time        `json:"signal_at,omitempty"`
	FollowUpDueAt  *time.Time        `json:"follow_up_due_at,omitempty"`
	FollowUpSentAt *time.Time        `json:"follow_up_sent_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// PendingHumanReview reports whether this attempt needs a person to look at
// it: generation/validation failed, or the role was too ambiguous to classify.
func (a OutreachAttempt) PendingHumanReview() bool {
	return a.State == StateFailed || a.SuppressReason == SuppressAmbiguousRole
}

// ValidationOutcome is the grounding verdict for a generated message.
type ValidationOutcome string

const (
	ValidationPassed ValidationOutcome = "passed"
	ValidationFailed ValidationOutcome = "failed"
)

// ClaimedFact is one factual claim the generator says it used, tagged with
// the payload field it came from.
type ClaimedFact struct {
	Claim       string `json:"claim"`
	SourceField string `json:"source_field"`
}

// GeneratedMessage is the composed output for one attempt. Regeneration
// produces a new value; messages are never mutated in place.
type GeneratedMessage struct {
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Facts      []ClaimedFact     `json:"facts,omitempty"`
	Validation ValidationOutcome `json:"validation"`
}
