package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"farewatch/internal/types"
)

type mockSQSClient struct {
	sendInputs   []*sqs.SendMessageInput
	sendErr      error
	deleteInputs []*sqs.DeleteMessageInput

	// One batch per ReceiveMessage call; the context is cancelled once the
	// batches run out so Run terminates.
	batches [][]sqsTypes.Message
	cancel  context.CancelFunc
}

func (m *mockSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.sendInputs = append(m.sendInputs, params)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (m *mockSQSClient) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if len(m.batches) == 0 {
		m.cancel()
		return &sqs.ReceiveMessageOutput{}, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (m *mockSQSClient) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleteInputs = append(m.deleteInputs, params)
	return &sqs.DeleteMessageOutput{}, nil
}

type mockHandler struct {
	msgs    []types.TriggerMessage
	err     error
	traceID string
}

func (m *mockHandler) HandleTrigger(ctx context.Context, msg types.TriggerMessage) error {
	m.msgs = append(m.msgs, msg)
	m.traceID = types.GetRequestID(ctx)
	return m.err
}

func triggerMessageBody(t *testing.T, watchID string) sqsTypes.Message {
	t.Helper()
	body, err := json.Marshal(types.TriggerMessage{WatchID: watchID, Reason: "manual", TraceID: "trace-42"})
	if err != nil {
		t.Fatal(err)
	}
	return sqsTypes.Message{
		Body:          aws.String(string(body)),
		ReceiptHandle: aws.String("rh-" + watchID),
	}
}

func TestEnqueue(t *testing.T) {
	client := &mockSQSClient{}
	q := NewTriggerQueue(client, "https://sqs.test/triggers", nil)

	ctx := types.WithRequestID(context.Background(), "req-7")
	if err := q.Enqueue(ctx, "wt_1", "manual"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if len(client.sendInputs) != 1 {
		t.Fatalf("expected 1 SendMessage call, got %d", len(client.sendInputs))
	}
	input := client.sendInputs[0]
	if got := aws.ToString(input.QueueUrl); got != "https://sqs.test/triggers" {
		t.Errorf("queue url = %q", got)
	}

	var msg types.TriggerMessage
	if err := json.Unmarshal([]byte(aws.ToString(input.MessageBody)), &msg); err != nil {
		t.Fatalf("body is not a TriggerMessage: %v", err)
	}
	if msg.WatchID != "wt_1" {
		t.Errorf("WatchID = %q, want wt_1", msg.WatchID)
	}
	if msg.Reason != "manual" {
		t.Errorf("Reason = %q, want manual", msg.Reason)
	}
	if msg.TraceID != "req-7" {
		t.Errorf("TraceID = %q, want the request id from context", msg.TraceID)
	}
	if msg.RequestedAt.IsZero() {
		t.Error("RequestedAt not set")
	}

	attr, ok := input.MessageAttributes["reason"]
	if !ok {
		t.Fatal("missing reason message attribute")
	}
	if got := aws.ToString(attr.StringValue); got != "manual" {
		t.Errorf("reason attribute = %q", got)
	}
}

func TestEnqueueSendFailure(t *testing.T) {
	client := &mockSQSClient{sendErr: errors.New("access denied")}
	q := NewTriggerQueue(client, "https://sqs.test/triggers", nil)

	if err := q.Enqueue(context.Background(), "wt_1", "manual"); err == nil {
		t.Fatal("expected error from failed SendMessage")
	}
}

func TestConsumerDeletesOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockSQSClient{
		batches: [][]sqsTypes.Message{{triggerMessageBody(t, "wt_1")}},
		cancel:  cancel,
	}
	handler := &mockHandler{}
	c := NewConsumer(client, "https://sqs.test/triggers", handler, nil)

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}

	if len(handler.msgs) != 1 {
		t.Fatalf("handler called %d times, want 1", len(handler.msgs))
	}
	if handler.msgs[0].WatchID != "wt_1" {
		t.Errorf("handled WatchID = %q", handler.msgs[0].WatchID)
	}
	if handler.traceID != "trace-42" {
		t.Errorf("handler context request id = %q, want trace-42", handler.traceID)
	}
	if len(client.deleteInputs) != 1 {
		t.Fatalf("expected 1 delete, got %d", len(client.deleteInputs))
	}
	if got := aws.ToString(client.deleteInputs[0].ReceiptHandle); got != "rh-wt_1" {
		t.Errorf("deleted receipt handle = %q", got)
	}
}

func TestConsumerLeavesMessageOnHandlerFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockSQSClient{
		batches: [][]sqsTypes.Message{{triggerMessageBody(t, "wt_1")}},
		cancel:  cancel,
	}
	handler := &mockHandler{err: errors.New("fare search failed")}
	c := NewConsumer(client, "https://sqs.test/triggers", handler, nil)

	_ = c.Run(ctx)

	if len(handler.msgs) != 1 {
		t.Fatalf("handler called %d times, want 1", len(handler.msgs))
	}
	if len(client.deleteInputs) != 0 {
		t.Fatal("failed message must stay on the queue for redelivery")
	}
}

func TestConsumerDropsMalformedBody(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockSQSClient{
		batches: [][]sqsTypes.Message{{
			{Body: aws.String("{not json"), ReceiptHandle: aws.String("rh-bad")},
		}},
		cancel: cancel,
	}
	handler := &mockHandler{}
	c := NewConsumer(client, "https://sqs.test/triggers", handler, nil)

	_ = c.Run(ctx)

	if len(handler.msgs) != 0 {
		t.Fatal("malformed body must not reach the handler")
	}
	if len(client.deleteInputs) != 1 {
		t.Fatal("malformed body must be deleted, not redelivered forever")
	}
}
