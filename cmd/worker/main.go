package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"resume-revamp/internal/bootstrap"
	"resume-revamp/internal/queue"
	"resume-revamp/internal/shared/config"
	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/telemetry"
	"resume-revamp/internal/workerproc"
)

const (
	defaultVisibilitySeconds  = 300
	defaultWorkerConcurrency  = 4
	defaultShutdownTimeoutSec = 30
)

func main() {
	defer telemetry.Sync()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := envInt("WORKER_CONCURRENCY", defaultWorkerConcurrency)
	shutdownTimeout := time.Duration(envInt("WORKER_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	app, err := bootstrap.Build(cfg)
	if err != nil {
		fatal("worker.bootstrap_failed", err)
	}
	defer app.Close()
	if app.Deliverer == nil {
		fatal("worker.bootstrap_failed", errors.New("email delivery is not configured"))
	}

	switch cfg.QueueBackend {
	case queue.BackendSQS:
		queueURL := strings.TrimSpace(cfg.SQSQueueURL)
		client, err := queue.LoadSQS(ctx, cfg.AWSRegion)
		if err != nil {
			fatal("worker.sqs_failed", err)
		}
		visibility := envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
		telemetry.Info("worker.started", map[string]any{"backend": "sqs", "queue": queueURL, "concurrency": concurrency})
		newSQSPoller(client, queueURL, app.Deliverer, concurrency, visibility).run(ctx, shutdownTimeout)
	case queue.BackendAMQP:
		client, ok := app.Queue.(*queue.AMQPClient)
		if !ok {
			fatal("worker.amqp_failed", errors.New("amqp client not initialized"))
		}
		telemetry.Info("worker.started", map[string]any{"backend": "amqp", "queue": cfg.AMQPQueue, "concurrency": concurrency})
		err := client.Consume(ctx, concurrency, func(ctx context.Context, body []byte) queue.Outcome {
			return handleAMQP(ctx, app.Deliverer, body)
		})
		if err != nil {
			fatal("worker.amqp_failed", err)
		}
	default:
		fatal("worker.no_queue", errors.New("QUEUE_BACKEND must be sqs or amqp"))
	}
	telemetry.Info("worker.stopped", nil)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// sqsPoller long-polls one queue and hands messages to a bounded set of
// goroutines.
type sqsPoller struct {
	client     sqsAPI
	queueURL   string
	proc       workerproc.Processor
	visibility int32
	slots      chan struct{}
	inFlight   sync.WaitGroup
}

func newSQSPoller(client sqsAPI, queueURL string, proc workerproc.Processor, concurrency, visibility int) *sqsPoller {
	return &sqsPoller{
		client:     client,
		queueURL:   queueURL,
		proc:       proc,
		visibility: int32(visibility),
		slots:      make(chan struct{}, max(1, concurrency)),
	}
}

// run receives until ctx is cancelled, then waits up to grace for in-flight
// deliveries.
func (p *sqsPoller) run(ctx context.Context, grace time.Duration) {
	for ctx.Err() == nil {
		msgs, err := p.receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				break
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}
		for _, m := range msgs {
			if !p.dispatch(ctx, m) {
				break
			}
		}
	}
	p.drain(grace)
}

func (p *sqsPoller) receive(ctx context.Context) ([]sqstypes.Message, error) {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   p.visibility,
		AttributeNames:      []sqstypes.QueueAttributeName{"ApproximateReceiveCount"},
	})
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// dispatch blocks for a free slot; it returns false once ctx is done.
func (p *sqsPoller) dispatch(ctx context.Context, m sqstypes.Message) bool {
	select {
	case <-ctx.Done():
		return false
	case p.slots <- struct{}{}:
	}
	metrics.IncDeliveryJob("received")
	p.inFlight.Add(1)
	go func() {
		defer p.inFlight.Done()
		defer func() { <-p.slots }()
		handleMessage(ctx, p.client, p.queueURL, p.proc, m)
	}()
	return true
}

func (p *sqsPoller) drain(grace time.Duration) {
	telemetry.Info("worker.draining", map[string]any{"timeout": grace.String()})
	done := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
}

// handleMessage deletes the message unless a retry could succeed; retryable
// failures reappear after the visibility timeout.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, proc workerproc.Processor, msg sqstypes.Message) {
	fields := baseFields(msg)
	decoded, err := workerproc.Decode([]byte(aws.ToString(msg.Body)))
	if err == nil {
		fields["rewrite_id"] = decoded.RewriteID
		if decoded.RequestID != "" {
			fields["request_id"] = decoded.RequestID
		}
		telemetry.Info("worker.delivery.received", fields)
		err = workerproc.Handle(ctx, proc, decoded)
	}

	outcome := workerproc.Classify(err)
	for k, v := range workerproc.LogFields(err) {
		fields[k] = v
	}
	switch outcome {
	case queue.Ack:
		telemetry.Info("worker.delivery.completed", fields)
	case queue.Drop:
		telemetry.Error("worker.delivery.dropped", fields)
	default:
		telemetry.Error("worker.delivery.failed", fields)
		workerproc.Observe(outcome)
		return
	}
	if deleteMessage(ctx, client, queueURL, msg, fields) {
		workerproc.Observe(outcome)
	}
}

func handleAMQP(ctx context.Context, proc workerproc.Processor, body []byte) queue.Outcome {
	metrics.IncDeliveryJob("received")
	err := workerproc.HandleBody(ctx, proc, body)
	outcome := workerproc.Classify(err)
	if outcome != queue.Ack {
		telemetry.Error("worker.delivery.not_acked", workerproc.LogFields(err))
	}
	workerproc.Observe(outcome)
	return outcome
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.delivery.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.delivery.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message) map[string]any {
	return map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
}

func receiveCount(msg sqstypes.Message) int {
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func fatal(event string, err error) {
	telemetry.Error(event, map[string]any{"error": err.Error()})
	telemetry.Sync()
	os.Exit(1)
}
