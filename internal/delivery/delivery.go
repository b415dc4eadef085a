// Package delivery hands finished messages to the email channel. Every
// send carries the shared-inbox BCC so replies and sibling sends are
// visible to the whole team.
package delivery

import (
	"context"
	"fmt"
)

// Message is one outbound email, ready to send.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
	Wave    string
	Rep     string
}

// DeliveryError wraps a channel failure so callers can keep the attempt
// re-sendable.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery: send to %s: %v", e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Deliverer sends one message and returns the channel's delivery id.
type Deliverer interface {
	Send(ctx context.Context, msg Message) (string, error)
}
