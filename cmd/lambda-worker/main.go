package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"resume-revamp/internal/bootstrap"
	"resume-revamp/internal/queue"
	"resume-revamp/internal/shared/config"
	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/telemetry"
	"resume-revamp/internal/workerproc"
)

var (
	initOnce  sync.Once
	initErr   error
	processor workerproc.Processor
)

func initApp() {
	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	if app.Deliverer == nil {
		initErr = errors.New("email delivery is not configured")
		return
	}
	processor = app.Deliverer
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda_worker.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return handleBatch(ctx, processor, event), nil
}

// handleBatch reports only retryable failures; poison messages are
// acknowledged so the queue stops redelivering them.
func handleBatch(ctx context.Context, proc workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncDeliveryJob("received")
		err := workerproc.HandleBody(ctx, proc, []byte(record.Body))
		outcome := workerproc.Classify(err)
		workerproc.Observe(outcome)
		if outcome == queue.Ack {
			continue
		}
		fields := workerproc.LogFields(err)
		fields["message_id"] = record.MessageId
		if outcome == queue.Drop {
			telemetry.Error("lambda_worker.dropped", fields)
			continue
		}
		telemetry.Error("lambda_worker.failed", fields)
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
