package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Deathbringer98/Firemap-WebApp/internal/config"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher sends events as persistent JSON messages to an exchange.
type RabbitPublisher struct {
	cfg     config.RabbitMQConfig
	logger  *log.Logger
	mu      sync.Mutex
	conn    *amqp.Connection
	channel amqpChannel
	closed  bool
}

func NewRabbitPublisher(cfg config.RabbitMQConfig, logger *log.Logger) *RabbitPublisher {
	if cfg.Exchange == "" {
		cfg.Exchange = "firemap-reports"
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "fanout"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RabbitPublisher{cfg: cfg, logger: logger}
}

// Connect dials the broker and declares the exchange.
func (p *RabbitPublisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("publisher is closed")
	}
	if p.channel != nil {
		return nil
	}

	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return errors.Wrap(err, "connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "open channel")
	}
	err = ch.ExchangeDeclare(
		p.cfg.Exchange,
		p.cfg.ExchangeType,
		p.cfg.Durable,
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return errors.Wrapf(err, "declare exchange %s", p.cfg.Exchange)
	}
	p.conn = conn
	p.channel = ch
	p.logger.Printf("rabbitmq publisher connected, exchange '%s'", p.cfg.Exchange)
	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("publisher is closed")
	}
	if p.channel == nil {
		return errors.New("not connected: call Connect first")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	err = p.channel.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.At,
		Type:         ev.Type,
		Body:         b,
	})
	if err != nil {
		return errors.Wrapf(err, "publish to exchange %s", p.cfg.Exchange)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	var first error
	if p.channel != nil {
		first = p.channel.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Publisher = (*RabbitPublisher)(nil)
