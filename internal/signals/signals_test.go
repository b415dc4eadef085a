package signals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

type mockApplier struct {
	mock.Mock
}

func (m *mockApplier) ApplySignal(ctx context.Context, attendeeID, wave string, sig model.Signal, at time.Time) error {
	args := m.Called(ctx, attendeeID, wave, sig, at)
	return args.Error(0)
}

func TestHandler_AppliesReply(t *testing.T) {
	applier := &mockApplier{}
	applier.On("ApplySignal", mock.Anything, "a1", "w1", model.SignalReplied, mock.Anything).Return(nil)

	h := NewHandler(applier)
	err := h(context.Background(), Event{AttendeeID: "a1", Wave: "w1", Signal: "replied"})
	require.NoError(t, err)
	applier.AssertExpectations(t)
}

func TestHandler_UnknownSignalIsPoison(t *testing.T) {
	applier := &mockApplier{}
	h := NewHandler(applier)

	assert.ErrorIs(t, h(context.Background(), Event{AttendeeID: "a1", Wave: "w1", Signal: "bounced"}), ErrPoison)
	assert.ErrorIs(t, h(context.Background(), Event{Wave: "w1", Signal: "replied"}), ErrPoison)
	assert.ErrorIs(t, h(context.Background(), Event{AttendeeID: "a1", Signal: "replied"}), ErrPoison)
	applier.AssertNumberOfCalls(t, "ApplySignal", 0)
}

func TestHandler_DefaultsTimestamp(t *testing.T) {
	applier := &mockApplier{}
	applier.On("ApplySignal", mock.Anything, "a1", "w1", model.SignalClaimed,
		mock.MatchedBy(func(at time.Time) bool { return !at.IsZero() })).Return(nil)

	h := NewHandler(applier)
	require.NoError(t, h(context.Background(), Event{AttendeeID: "a1", Wave: "w1", Signal: "claimed_elsewhere"}))
	applier.AssertExpectations(t)
}

func TestDecodeEvent_BadJSONIsPoison(t *testing.T) {
	_, err := decodeEvent([]byte("not json"))
	assert.ErrorIs(t, err, ErrPoison)

	ev, err := decodeEvent([]byte(`{"attendee_id": "a1", "wave": "w1", "signal": "replied"}`))
	require.NoError(t, err)
	assert.Equal(t, "a1", ev.AttendeeID)
}
