package delivery

import (
	"context"

	"resume-revamp/internal/queue"
	"resume-revamp/internal/rewrites"
	"resume-revamp/internal/shared/metrics"
)

// Inline delivers in the calling goroutine. It is used when no queue is configured.
type Inline struct {
	Deliverer *Deliverer
}

// Dispatch sends the email before returning.
func (i Inline) Dispatch(ctx context.Context, job rewrites.DeliveryJob) error {
	return i.Deliverer.Deliver(ctx, job)
}

// Queued hands jobs to a queue for a worker to deliver.
type Queued struct {
	Client queue.Client
}

// Dispatch enqueues the job.
func (q Queued) Dispatch(ctx context.Context, job rewrites.DeliveryJob) error {
	if err := q.Client.Send(ctx, queue.NewMessage(job.RewriteID, job.RequestID, job.EmailTo)); err != nil {
		metrics.IncDeliveryJob("enqueue_failed")
		return err
	}
	metrics.IncDeliveryJob("enqueued")
	return nil
}

var (
	_ rewrites.Dispatcher = Inline{}
	_ rewrites.Dispatcher = Queued{}
)
