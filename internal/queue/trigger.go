// Package queue provides the SQS-backed path for targeted per-watch trigger
// requests: the API enqueues a TriggerMessage instead of evaluating inline,
// and the sweep worker drains the queue between scheduled sweeps.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"farewatch/internal/types"
)

// SQSClient abstracts the SQS operations used here, for testability.
// Production code uses *sqs.Client from aws-sdk-go-v2.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// TriggerQueue produces TriggerMessage payloads onto the trigger queue.
type TriggerQueue struct {
	client   SQSClient
	queueURL string
	logger   *slog.Logger
}

// NewTriggerQueue creates a producer for the given queue URL.
func NewTriggerQueue(client SQSClient, queueURL string, logger *slog.Logger) *TriggerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerQueue{client: client, queueURL: queueURL, logger: logger}
}

// Enqueue serializes a targeted trigger request for one watch and sends it
// to the queue. The trace id ties the eventual evaluation back to the HTTP
// request that asked for it.
func (q *TriggerQueue) Enqueue(ctx context.Context, watchID string, reason string) error {
	msg := types.TriggerMessage{
		WatchID:     watchID,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
		TraceID:     traceIDFrom(ctx),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal trigger message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send trigger message: %w", err)
	}

	q.logger.InfoContext(ctx, "trigger message sent",
		"watch_id", watchID,
		"reason", reason,
		"trace_id", msg.TraceID,
	)
	return nil
}

func traceIDFrom(ctx context.Context) string {
	if id := types.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// TriggerHandler evaluates one queued trigger request.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, msg types.TriggerMessage) error
}

// Consumer long-polls the trigger queue and hands each message to the
// handler. Messages are deleted only after the handler succeeds; a failed
// message becomes visible again after the queue's visibility timeout.
type Consumer struct {
	client   SQSClient
	queueURL string
	handler  TriggerHandler
	logger   *slog.Logger

	waitTime    int32
	maxMessages int32
}

// NewConsumer creates a consumer with 20 second long polling, up to 5
// messages per receive.
func NewConsumer(client SQSClient, queueURL string, handler TriggerHandler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		handler:     handler,
		logger:      logger,
		waitTime:    20,
		maxMessages: 5,
	}
}

// Run polls until the context is cancelled. Receive errors are logged and
// retried after a short pause rather than terminating the loop.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: c.maxMessages,
			WaitTimeSeconds:     c.waitTime,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "failed to receive trigger messages", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, raw := range out.Messages {
			c.processMessage(ctx, raw)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, raw sqsTypes.Message) {
	var msg types.TriggerMessage
	if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &msg); err != nil {
		// An unparseable body will never succeed; delete it instead of
		// letting it cycle through visibility timeouts forever.
		c.logger.ErrorContext(ctx, "dropping malformed trigger message", "error", err)
		c.delete(ctx, raw)
		return
	}

	msgCtx := types.WithRequestID(ctx, msg.TraceID)
	if err := c.handler.HandleTrigger(msgCtx, msg); err != nil {
		c.logger.ErrorContext(msgCtx, "trigger message handling failed",
			"watch_id", msg.WatchID, "error", err)
		return
	}

	c.delete(ctx, raw)
}

func (c *Consumer) delete(ctx context.Context, raw sqsTypes.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: raw.ReceiptHandle,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to delete trigger message", "error", err)
	}
}
