package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/sakila-city-api/internal/config"
	"github.com/iliyamo/sakila-city-api/internal/metrics"
)

// Consumer reads city.created events and appends one line per event to an
// audit log file. It runs as a supervised service: Serve returns an error
// when the broker connection is lost and the supervisor restarts it with
// backoff.
type Consumer struct {
	url         string
	queue       string
	auditPath   string
	dialTimeout time.Duration
	log         zerolog.Logger
}

func NewConsumer(cfg config.BrokerConfig, log zerolog.Logger) *Consumer {
	return &Consumer{
		url:         cfg.URL,
		queue:       cfg.Queue,
		auditPath:   cfg.AuditLog,
		dialTimeout: cfg.DialTimeout,
		log:         log.With().Str("component", "consumer").Str("queue", cfg.Queue).Logger(),
	}
}

// Serve implements suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(c.dialTimeout)})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set QoS failed")
	}
	if err := declareQueue(ch, c.queue); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info().Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(d.Body); err != nil {
				c.log.Error().Err(err).Msg("handle message failed")
				metrics.EventsConsumed.WithLabelValues("rejected").Inc()
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			metrics.EventsConsumed.WithLabelValues("ok").Inc()
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) String() string {
	return "city-audit-consumer"
}

func (c *Consumer) handle(body []byte) error {
	var ev CityCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.auditPath), 0o755); err != nil {
		return fmt.Errorf("mkdir audit dir: %w", err)
	}
	f, err := os.OpenFile(c.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(auditLine(ev)); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func auditLine(ev CityCreatedEvent) string {
	return fmt.Sprintf("[%s] City created | city_id=%d | city=%q | country_id=%d | event_id=%s\n",
		ev.CreatedAt, ev.CityID, ev.CityName, ev.CountryID, ev.EventID)
}
