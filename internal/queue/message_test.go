package queue

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	amqp "github.com/rabbitmq/amqp091-go"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		RewriteID:  "rewrite-123",
		RequestID:  "request-456",
		EmailTo:    "jane@example.com",
		EnqueuedAt: "2026-01-30T22:00:00Z",
		Version:    1,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestNewMessageStampsVersion(t *testing.T) {
	msg := NewMessage("rw-1", "req-1", "a@example.com")
	if msg.Version != MessageVersion {
		t.Fatalf("expected version %d, got %d", MessageVersion, msg.Version)
	}
	if _, err := time.Parse(time.RFC3339, msg.EnqueuedAt); err != nil {
		t.Fatalf("enqueuedAt is not RFC3339: %q", msg.EnqueuedAt)
	}
}

type fakeSQSSender struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSClientSend(t *testing.T) {
	fake := &fakeSQSSender{}
	client := &SQSClient{client: fake, queueURL: "https://sqs.local/q"}

	if err := client.Send(context.Background(), NewMessage("rw-1", "req-1", "a@example.com")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if aws.ToString(fake.input.QueueUrl) != "https://sqs.local/q" {
		t.Fatalf("unexpected queue url %q", aws.ToString(fake.input.QueueUrl))
	}
	got, err := DecodeMessage([]byte(aws.ToString(fake.input.MessageBody)))
	if err != nil || got.RewriteID != "rw-1" || got.EmailTo != "a@example.com" {
		t.Fatalf("unexpected body: %+v %v", got, err)
	}

	fake.err = errors.New("throttled")
	if err := client.Send(context.Background(), Message{}); err == nil {
		t.Fatalf("expected send error")
	}
}

func TestNewSQSClientRequiresURL(t *testing.T) {
	if _, err := NewSQSClient(context.Background(), "", "  "); !errors.Is(err, ErrNoQueueURL) {
		t.Fatalf("expected ErrNoQueueURL, got %v", err)
	}
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	keys       []string
	prefetch   int
	deliveries chan amqp.Delivery
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { return nil }

type fakeAcker struct {
	mu     sync.Mutex
	acked  []uint64
	nacked map[uint64]bool
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked[tag] = requeue
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestAMQPClientSendPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	client, err := newAMQPClient(ch, "resume-delivery")
	if err != nil {
		t.Fatalf("newAMQPClient: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "resume-delivery" {
		t.Fatalf("expected queue declared, got %v", ch.declared)
	}

	if err := client.Send(context.Background(), NewMessage("rw-9", "req-9", "b@example.com")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	pub := ch.published[0]
	if ch.keys[0] != "resume-delivery" || pub.DeliveryMode != amqp.Persistent || pub.ContentType != "application/json" {
		t.Fatalf("unexpected publishing: key=%s %+v", ch.keys[0], pub)
	}
	var got Message
	if err := json.Unmarshal(pub.Body, &got); err != nil || got.RewriteID != "rw-9" {
		t.Fatalf("unexpected body: %s %v", pub.Body, err)
	}
}

func TestAMQPClientConsumeSettlesByOutcome(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 4)}
	client, err := newAMQPClient(ch, "q")
	if err != nil {
		t.Fatalf("newAMQPClient: %v", err)
	}
	acker := &fakeAcker{nacked: map[uint64]bool{}}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("ok")}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("retry")}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte("retry"), Redelivered: true}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 4, Body: []byte("drop")}
	close(ch.deliveries)

	err = client.Consume(context.Background(), 2, func(_ context.Context, body []byte) Outcome {
		switch string(body) {
		case "ok":
			return Ack
		case "retry":
			return Retry
		}
		return Drop
	})
	if err == nil {
		t.Fatalf("expected error when the delivery channel closes")
	}
	if ch.prefetch != 2 {
		t.Fatalf("expected prefetch 2, got %d", ch.prefetch)
	}
	if len(acker.acked) != 1 || acker.acked[0] != 1 {
		t.Fatalf("unexpected acks: %v", acker.acked)
	}
	want := map[uint64]bool{2: true, 3: false, 4: false}
	if !reflect.DeepEqual(acker.nacked, want) {
		t.Fatalf("unexpected nacks: %v", acker.nacked)
	}
}
