package workerproc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"resume-revamp/internal/queue"
	"resume-revamp/internal/rewrites"
)

type fakeProcessor struct {
	jobs []rewrites.DeliveryJob
	err  error
}

func (f *fakeProcessor) Deliver(_ context.Context, job rewrites.DeliveryJob) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

func encode(t *testing.T, msg queue.Message) []byte {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return body
}

func reasonOf(t *testing.T, err error) *MessageError {
	t.Helper()
	var me *MessageError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MessageError, got %v", err)
	}
	return me
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	_, err := Decode([]byte("  "))
	if me := reasonOf(t, err); me.Reason != ReasonEmpty {
		t.Fatalf("expected empty reason, got %s", me.Reason)
	}

	_, err = Decode([]byte("{bad"))
	me := reasonOf(t, err)
	if me.Reason != ReasonMalformed || me.BodyLen != 4 || len(me.BodySHA) != 64 {
		t.Fatalf("unexpected malformed error: %+v", me)
	}

	_, err = Decode(encode(t, queue.Message{RequestID: "req-1"}))
	me = reasonOf(t, err)
	if me.Reason != ReasonNoRewrite || me.RequestID != "req-1" {
		t.Fatalf("expected missing rewrite id with request id, got %+v", me)
	}
	if got := me.Fields()["request_id"]; got != "req-1" {
		t.Fatalf("expected request_id log field, got %v", got)
	}
}

func TestHandleBodyDelivers(t *testing.T) {
	proc := &fakeProcessor{}

	err := HandleBody(context.Background(), proc, encode(t, queue.NewMessage("rw-1", "req-1", "a@example.com")))
	if err != nil {
		t.Fatalf("HandleBody: %v", err)
	}
	if len(proc.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(proc.jobs))
	}
	job := proc.jobs[0]
	if job.RewriteID != "rw-1" || job.EmailTo != "a@example.com" || job.RequestID != "req-1" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestHandleWrapsDeliveryErrors(t *testing.T) {
	proc := &fakeProcessor{err: fmt.Errorf("load: %w", rewrites.ErrNotFound)}
	err := Handle(context.Background(), proc, queue.NewMessage("rw-2", "req-2", ""))

	me := reasonOf(t, err)
	if me.Reason != ReasonDeliver || me.RewriteID != "rw-2" {
		t.Fatalf("unexpected error: %+v", me)
	}
	if !errors.Is(err, rewrites.ErrNotFound) {
		t.Fatalf("delivery error must unwrap to the cause")
	}
}

func TestClassify(t *testing.T) {
	_, malformed := Decode([]byte("nope"))
	cases := []struct {
		name string
		err  error
		want queue.Outcome
	}{
		{"success", nil, queue.Ack},
		{"malformed payload", malformed, queue.Drop},
		{"rewrite gone", &MessageError{Reason: ReasonDeliver, Err: rewrites.ErrNotFound}, queue.Drop},
		{"no package", &MessageError{Reason: ReasonDeliver, Err: rewrites.ErrNoPackage}, queue.Drop},
		{"smtp timeout", &MessageError{Reason: ReasonDeliver, Err: errors.New("smtp timeout")}, queue.Retry},
		{"not configured", errors.New("delivery not configured"), queue.Retry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHandleWithoutProcessor(t *testing.T) {
	if err := Handle(context.Background(), nil, queue.NewMessage("rw-4", "", "")); err == nil {
		t.Fatalf("expected error without a processor")
	}
}

func TestLogFields(t *testing.T) {
	f := LogFields(&MessageError{Reason: ReasonDeliver, RewriteID: "rw-5", Err: errors.New("boom")})
	if f["rewrite_id"] != "rw-5" || f["reason"] != "deliver" || f["error"] != "deliver: boom" {
		t.Fatalf("unexpected fields: %+v", f)
	}
	if f := LogFields(nil); len(f) != 0 {
		t.Fatalf("expected no fields for nil error, got %+v", f)
	}
}
