package queue

import "context"

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Backend names accepted by QUEUE_BACKEND.
const (
	BackendNone = ""
	BackendSQS  = "sqs"
	BackendAMQP = "amqp"
)
