package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/types"
)

type fakeSender struct {
	inputs    []types.SendInput
	messageID string
	err       error
}

func (f *fakeSender) Send(_ context.Context, input types.SendInput) (string, error) {
	f.inputs = append(f.inputs, input)
	return f.messageID, f.err
}

type fakeRecorder struct {
	statuses []types.SendStatus
}

func (f *fakeRecorder) RecordDelivery(_ context.Context, status types.SendStatus) {
	f.statuses = append(f.statuses, status)
}

func newTestNotifier(t *testing.T, sender *fakeSender) *EmailNotifier {
	t.Helper()
	renderer, err := NewRenderer("https://fares.example.com")
	require.NoError(t, err)
	return NewEmailNotifier(renderer, sender, slog.Default())
}

func TestNotify_SendsRenderedEmail(t *testing.T) {
	sender := &fakeSender{messageID: "sg-msg-1"}
	n := newTestNotifier(t, sender)

	outcome := n.Notify(context.Background(), renderWatch(), renderBest())

	assert.Equal(t, types.SendStatusSent, outcome.Status)
	assert.Equal(t, "sg-msg-1", outcome.MessageID)

	require.Len(t, sender.inputs, 1)
	input := sender.inputs[0]
	assert.Equal(t, "traveler@example.com", input.To)
	assert.Equal(t, "Fare alert: JFK-LAX at $450", input.Subject)
	assert.NotEmpty(t, input.HTML)
	assert.NotEmpty(t, input.Text)
}

func TestNotify_SmsOnlyChannelIsSkipped(t *testing.T) {
	sender := &fakeSender{messageID: "sg-msg-1"}
	n := newTestNotifier(t, sender)

	w := renderWatch()
	w.Channel = types.ChannelSMS
	w.Phone = "+12125550100"

	outcome := n.Notify(context.Background(), w, renderBest())

	assert.Equal(t, types.SendStatusSkipped, outcome.Status)
	assert.Empty(t, sender.inputs, "skipped watches must not reach the transport")
}

func TestNotify_BothChannelStillGetsEmail(t *testing.T) {
	sender := &fakeSender{messageID: "sg-msg-1"}
	n := newTestNotifier(t, sender)

	w := renderWatch()
	w.Channel = types.ChannelBoth
	w.Phone = "+12125550100"

	outcome := n.Notify(context.Background(), w, renderBest())

	assert.Equal(t, types.SendStatusSent, outcome.Status)
	assert.Len(t, sender.inputs, 1)
}

func TestNotify_SendFailureIsReported(t *testing.T) {
	sender := &fakeSender{err: errors.New("provider unavailable")}
	n := newTestNotifier(t, sender)

	outcome := n.Notify(context.Background(), renderWatch(), renderBest())

	assert.Equal(t, types.SendStatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "provider unavailable")
}

func TestNotify_DeliveryOutcomesAreRecorded(t *testing.T) {
	sender := &fakeSender{messageID: "sg-msg-1"}
	recorder := &fakeRecorder{}
	n := newTestNotifier(t, sender).WithDeliveryRecorder(recorder)

	n.Notify(context.Background(), renderWatch(), renderBest())

	smsOnly := renderWatch()
	smsOnly.Channel = types.ChannelSMS
	smsOnly.Phone = "+12125550100"
	n.Notify(context.Background(), smsOnly, renderBest())

	sender.err = errors.New("provider unavailable")
	n.Notify(context.Background(), renderWatch(), renderBest())

	assert.Equal(t, []types.SendStatus{
		types.SendStatusSent,
		types.SendStatusSkipped,
		types.SendStatusFailed,
	}, recorder.statuses)
}
