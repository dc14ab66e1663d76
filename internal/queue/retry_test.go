package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	key string
	msg amqp091.Publishing
}

type fakeChannel struct {
	err  error
	sent []published
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: key, msg: msg})
	return nil
}

type fakeAcker struct {
	acked, nacked int
	requeue       bool
}

func (a *fakeAcker) Ack(uint64, bool) error {
	a.acked++
	return nil
}

func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(uint64, bool) error { return nil }

func delivery(acker *fakeAcker, headers amqp091.Table) amqp091.Delivery {
	return amqp091.Delivery{Acknowledger: acker, Headers: headers, Body: []byte(`{}`)}
}

func TestRetryCount(t *testing.T) {
	cases := []struct {
		headers amqp091.Table
		want    int
	}{
		{nil, 0},
		{amqp091.Table{"x-retries": int32(3)}, 3},
		{amqp091.Table{"x-retries": int64(7)}, 7},
		{amqp091.Table{"x-retries": 2}, 2},
		{amqp091.Table{"x-retries": "many"}, 0},
	}
	for _, tc := range cases {
		if got := retryCount(tc.headers); got != tc.want {
			t.Fatalf("retryCount(%v): expected %d, got %d", tc.headers, tc.want, got)
		}
	}
}

func TestHandleProcessingError_Retry(t *testing.T) {
	ch := &fakeChannel{}
	acker := &fakeAcker{}
	HandleProcessingError(context.Background(), ch, delivery(acker, amqp091.Table{"x-retries": int32(2)}), SignalsQueue, errors.New("db down"))

	if len(ch.sent) != 1 || ch.sent[0].key != SignalsQueue+"_retry" {
		t.Fatalf("expected one retry publish, got %+v", ch.sent)
	}
	if got := ch.sent[0].msg.Headers["x-retries"]; got != int32(3) {
		t.Fatalf("expected x-retries 3, got %v", got)
	}
	if acker.acked != 1 {
		t.Fatalf("expected original delivery acked, got %d", acker.acked)
	}
}

func TestHandleProcessingError_DeadLetter(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp091.Table
		cause   error
	}{
		{"retries exhausted", amqp091.Table{"x-retries": int32(10)}, errors.New("db down")},
		{"invalid payload", nil, fmt.Errorf("%w: bad json", ErrInvalidMessage)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := &fakeChannel{}
			acker := &fakeAcker{}
			HandleProcessingError(context.Background(), ch, delivery(acker, tc.headers), GoalCreatedQueue, tc.cause)

			if len(ch.sent) != 1 || ch.sent[0].key != GoalCreatedQueue+"_dlq" {
				t.Fatalf("expected one DLQ publish, got %+v", ch.sent)
			}
			if ch.sent[0].msg.Headers["x-error"] != tc.cause.Error() {
				t.Fatalf("expected x-error header, got %v", ch.sent[0].msg.Headers)
			}
			if acker.acked != 1 {
				t.Fatalf("expected original delivery acked, got %d", acker.acked)
			}
		})
	}
}

func TestHandleProcessingError_PublishFails(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	acker := &fakeAcker{}
	HandleProcessingError(context.Background(), ch, delivery(acker, nil), SignalsQueue, errors.New("boom"))

	if acker.acked != 0 || acker.nacked != 1 || !acker.requeue {
		t.Fatalf("expected requeueing nack, got %+v", acker)
	}
}

func TestPublishFIFO_RetriesTransientFailure(t *testing.T) {
	ch := &flakyChannel{failures: 1}
	if err := PublishFIFO(context.Background(), ch, SignalsQueue, []byte(`{}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if ch.calls != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", ch.calls)
	}
}

type flakyChannel struct {
	failures int
	calls    int
}

func (f *flakyChannel) PublishWithContext(context.Context, string, string, bool, bool, amqp091.Publishing) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient")
	}
	return nil
}
