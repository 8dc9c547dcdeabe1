package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/sakila-city-api/internal/config"
	"github.com/iliyamo/sakila-city-api/internal/metrics"
)

// Publisher delivers domain events. Callers treat failures as non-fatal.
type Publisher interface {
	PublishCityCreated(ctx context.Context, ev CityCreatedEvent) error
}

// NopPublisher discards events; used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishCityCreated(context.Context, CityCreatedEvent) error { return nil }

// RabbitPublisher publishes persistent JSON messages to a durable queue on
// the default exchange. Each publish dials its own connection. After
// repeated failures the breaker opens and publishes fail fast until the
// broker has had time to recover.
type RabbitPublisher struct {
	url         string
	queue       string
	dialTimeout time.Duration
	cb          *gobreaker.CircuitBreaker[struct{}]
	log         zerolog.Logger
}

func NewRabbitPublisher(cfg config.BrokerConfig, log zerolog.Logger) *RabbitPublisher {
	p := &RabbitPublisher{
		url:         cfg.URL,
		queue:       cfg.Queue,
		dialTimeout: cfg.DialTimeout,
		log:         log.With().Str("component", "publisher").Str("queue", cfg.Queue).Logger(),
	}
	if p.dialTimeout <= 0 {
		p.dialTimeout = 2 * time.Second
	}
	p.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "rabbitmq-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			p.log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
		},
	})
	return p
}

// State reports the breaker state for health output.
func (p *RabbitPublisher) State() string {
	return p.cb.State().String()
}

func (p *RabbitPublisher) PublishCityCreated(ctx context.Context, ev CityCreatedEvent) error {
	_, err := p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.publish(ctx, ev)
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

func (p *RabbitPublisher) publish(ctx context.Context, ev CityCreatedEvent) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareQueue(ch, p.queue); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// declareQueue makes sure the durable queue exists. Declaring is idempotent.
func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", name, err)
	}
	return nil
}
