package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"

	"github.com/Deathbringer98/Firemap-WebApp/internal/config"
	"github.com/Deathbringer98/Firemap-WebApp/internal/reports"
)

var quiet = log.New(io.Discard, "", 0)

type recordingSink struct {
	events []Event
	err    error
	closed bool
}

func (s *recordingSink) Publish(_ context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func sampleEvent() Event {
	var r reports.Report
	r.Set("type", json.RawMessage(`"fire"`))
	r.Set("timestamp", json.RawMessage(`"2026-10-19T10:00:00Z"`))
	return NewReportAdded(r, time.Date(2026, 10, 19, 10, 0, 1, 0, time.UTC))
}

func TestNewReportAddedAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	a, b := sampleEvent(), sampleEvent()
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.Type != TypeReportAdded {
		t.Fatalf("unexpected type %q", a.Type)
	}
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	t.Parallel()

	ok := &recordingSink{}
	broken := &recordingSink{err: errors.New("broker down")}
	last := &recordingSink{}
	var logs bytes.Buffer
	f := NewFanout(log.New(&logs, "", 0), ok, nil, broken, last)
	if f.Len() != 3 {
		t.Fatalf("nil sink should be skipped, got %d sinks", f.Len())
	}

	err := f.Publish(context.Background(), sampleEvent())
	if err == nil || !strings.Contains(err.Error(), "1 of 3 sinks failed") {
		t.Fatalf("expected aggregated failure, got %v", err)
	}
	if len(ok.events) != 1 || len(broken.events) != 1 || len(last.events) != 1 {
		t.Fatalf("every sink must receive the event")
	}
	if logs.Len() != 0 {
		t.Fatalf("failures are returned to the caller, not logged here: %q", logs.String())
	}

	if err := f.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if !ok.closed || !broken.closed || !last.closed {
		t.Fatalf("expected all sinks closed")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByEventID(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, logger: quiet, topic: "firemap.reports"}
	ev := sampleEvent()
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != ev.ID {
		t.Fatalf("expected one message keyed by event id, got %+v", w.msgs)
	}
	var decoded Event
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("message value is not an event: %v", err)
	}
	if typ, _ := decoded.Report.Get("type"); decoded.Type != TypeReportAdded || string(typ) != `"fire"` {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}

	w.err = errors.New("buffer full")
	if err := p.Publish(context.Background(), ev); err == nil {
		t.Fatalf("expected writer error to surface")
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestNewKafkaPublisherRequiresBrokersAndTopic(t *testing.T) {
	t.Parallel()

	if _, err := NewKafkaPublisher(config.KafkaConfig{Topic: "t"}, quiet); err == nil {
		t.Fatalf("expected error without brokers")
	}
	p, err := NewKafkaPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Async: true}, quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("closing an idle writer failed: %v", err)
	}
}

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	closed   bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key = exchange, key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestRabbitPublisher(t *testing.T) {
	t.Parallel()

	p := NewRabbitPublisher(config.RabbitMQConfig{URL: "amqp://localhost", RoutingKey: "reports.added"}, quiet)
	if err := p.Publish(context.Background(), sampleEvent()); err == nil {
		t.Fatalf("expected error before Connect")
	}

	ch := &fakeChannel{}
	p.channel = ch
	ev := sampleEvent()
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	if ch.exchange != "firemap-reports" || ch.key != "reports.added" {
		t.Fatalf("unexpected routing %q/%q", ch.exchange, ch.key)
	}
	msg := ch.msgs[0]
	if msg.MessageId != ev.ID || msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", msg)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if !ch.closed {
		t.Fatalf("expected channel closed")
	}
	if err := p.Publish(context.Background(), ev); err == nil {
		t.Fatalf("expected error after Close")
	}
	if err := p.Connect(context.Background()); err == nil {
		t.Fatalf("expected Connect to refuse a closed publisher")
	}
}
