// Package signals ingests reply and claim events from the outside world:
// a message queue fed by the shared inbox, and the CRM where reps log
// their own touches.
package signals

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Event is one reply/claim notification from the feed.
type Event struct {
	AttendeeID string    `json:"attendee_id"`
	Wave       string    `json:"wave"`
	Signal     string    `json:"signal"`
	At         time.Time `json:"at"`
}

// Applier records a signal against an attempt. Implemented by the engine.
type Applier interface {
	ApplySignal(ctx context.Context, attendeeID, wave string, sig model.Signal, at time.Time) error
}

// ErrPoison marks a non-retriable bad message: decode failure or content
// that can never apply. Poison messages are acked and dropped.
var ErrPoison = eris.New("signals: poison message")

// NewHandler returns the event handler the consumer runs per delivery.
func NewHandler(applier Applier) func(ctx context.Context, ev Event) error {
	return func(ctx context.Context, ev Event) error {
		if ev.AttendeeID == "" || ev.Wave == "" {
			return ErrPoison
		}

		var sig model.Signal
		switch ev.Signal {
		case string(model.SignalReplied):
			sig = model.SignalReplied
		case string(model.SignalClaimed):
			sig = model.SignalClaimed
		default:
			return ErrPoison
		}

		at := ev.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		return applier.ApplySignal(ctx, ev.AttendeeID, ev.Wave, sig, at)
	}
}

// decodeEvent turns a raw body into an Event, mapping JSON failures to
// ErrPoison so the consumer drops them instead of requeueing forever.
func decodeEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, ErrPoison
	}
	return ev, nil
}
