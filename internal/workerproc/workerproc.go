// Package workerproc turns queue payloads into delivery jobs and decides what
// the consumer should do with a message once delivery has been attempted.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"resume-revamp/internal/queue"
	"resume-revamp/internal/rewrites"
	"resume-revamp/internal/shared/metrics"
)

// Processor delivers one rewrite package.
type Processor interface {
	Deliver(ctx context.Context, job rewrites.DeliveryJob) error
}

// Reason says which stage rejected a message.
type Reason string

const (
	ReasonEmpty     Reason = "empty_body"
	ReasonMalformed Reason = "malformed"
	ReasonNoRewrite Reason = "missing_rewrite_id"
	ReasonDeliver   Reason = "deliver"
)

// MessageError wraps any failure handling a queue message. BodyLen and
// BodySHA identify the payload in logs without printing it.
type MessageError struct {
	Reason    Reason
	RewriteID string
	RequestID string
	BodyLen   int
	BodySHA   string
	Err       error
}

func (e *MessageError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// Fields returns log fields describing the message.
func (e *MessageError) Fields() map[string]any {
	f := map[string]any{"reason": string(e.Reason), "body_len": e.BodyLen}
	if e.BodySHA != "" {
		f["body_sha256"] = e.BodySHA
	}
	if e.RewriteID != "" {
		f["rewrite_id"] = e.RewriteID
	}
	if e.RequestID != "" {
		f["request_id"] = e.RequestID
	}
	return f
}

// Decode parses and validates a payload.
func Decode(body []byte) (queue.Message, error) {
	reject := func(reason Reason, msg queue.Message, err error) error {
		sum := sha256.Sum256(body)
		return &MessageError{
			Reason:    reason,
			RequestID: msg.RequestID,
			BodyLen:   len(body),
			BodySHA:   hex.EncodeToString(sum[:]),
			Err:       err,
		}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return queue.Message{}, reject(ReasonEmpty, queue.Message{}, nil)
	}
	msg, err := queue.DecodeMessage(body)
	if err != nil {
		return queue.Message{}, reject(ReasonMalformed, queue.Message{}, err)
	}
	if strings.TrimSpace(msg.RewriteID) == "" {
		return msg, reject(ReasonNoRewrite, msg, nil)
	}
	return msg, nil
}

// Handle delivers a decoded message.
func Handle(ctx context.Context, proc Processor, msg queue.Message) error {
	if proc == nil {
		return errors.New("delivery not configured")
	}
	job := rewrites.DeliveryJob{RewriteID: msg.RewriteID, EmailTo: msg.EmailTo, RequestID: msg.RequestID}
	if err := proc.Deliver(ctx, job); err != nil {
		return &MessageError{Reason: ReasonDeliver, RewriteID: msg.RewriteID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// HandleBody decodes then delivers a raw payload.
func HandleBody(ctx context.Context, proc Processor, body []byte) error {
	msg, err := Decode(body)
	if err != nil {
		return err
	}
	return Handle(ctx, proc, msg)
}

// Classify maps a handling result to what the consumer does with the
// message. Payload faults and rewrites that can never be delivered are
// dropped; everything else is retried.
func Classify(err error) queue.Outcome {
	if err == nil {
		return queue.Ack
	}
	var me *MessageError
	if errors.As(err, &me) && me.Reason != ReasonDeliver {
		return queue.Drop
	}
	if errors.Is(err, rewrites.ErrNotFound) ||
		errors.Is(err, rewrites.ErrNoPackage) ||
		errors.Is(err, rewrites.ErrInvalidInput) {
		return queue.Drop
	}
	return queue.Retry
}

// LogFields extracts message log fields from err, if it carries any.
func LogFields(err error) map[string]any {
	var me *MessageError
	if errors.As(err, &me) {
		f := me.Fields()
		f["error"] = err.Error()
		return f
	}
	fields := map[string]any{}
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}

// Observe counts a settled message under its outcome.
func Observe(outcome queue.Outcome) {
	switch outcome {
	case queue.Ack:
		metrics.IncDeliveryJob("completed")
	case queue.Drop:
		metrics.IncDeliveryJob("dropped")
	default:
		metrics.IncDeliveryJob("failed")
	}
}
