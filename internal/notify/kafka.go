package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/Deathbringer98/Firemap-WebApp/internal/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by event id.
type KafkaPublisher struct {
	writer messageWriter
	logger *log.Logger
	topic  string
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *log.Logger) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka configuration incomplete: both brokers and topic are required")
	}
	if logger == nil {
		logger = log.Default()
	}

	var acks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case "none":
		acks = kafka.RequireNone
	case "all":
		acks = kafka.RequireAll
	default:
		acks = kafka.RequireOne
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 50 * time.Millisecond
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: batchTimeout,
		RequiredAcks: acks,
		Async:        cfg.Async,
		WriteTimeout: writeTimeout,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Printf("kafka writer error: "+msg, args...)
		}),
	}
	logger.Printf("kafka publisher ready, brokers: %v, topic: %s", cfg.Brokers, cfg.Topic)
	return &KafkaPublisher{writer: w, logger: logger, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := kafka.Message{Key: []byte(ev.ID), Value: b}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write to kafka topic %s", p.topic)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.logger.Println("closing kafka publisher")
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
