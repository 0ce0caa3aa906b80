package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/kevin07696/settlement-service/pkg/resilience"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventTypeSettlementCreated is the event type carried in every message
const EventTypeSettlementCreated = "settlement.created"

// Writer is the subset of *kafka.Writer the publisher needs
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config holds broker settings for the settlement publisher
type Config struct {
	Brokers     []string
	Topic       string
	MaxAttempts int
	Timeout     time.Duration
	Breaker     resilience.CircuitBreakerConfig
}

// SettlementCreatedEvent is the JSON payload of a settlement.created message
type SettlementCreatedEvent struct {
	EventType        string     `json:"event_type"`
	SettlementID     string     `json:"settlement_id"`
	PartyType        string     `json:"party_type"`
	PartyID          string     `json:"party_id"`
	PeriodStart      time.Time  `json:"period_start"`
	PeriodEnd        time.Time  `json:"period_end"`
	Currency         string     `json:"currency"`
	EngineVersion    string     `json:"engine_version"`
	GrossAmount      string     `json:"gross_amount"`
	CommissionAmount string     `json:"commission_amount"`
	TaxAmount        string     `json:"tax_amount"`
	PayableAmount    string     `json:"payable_amount"`
	ItemCount        int        `json:"item_count"`
	Status           string     `json:"status"`
	HoldReason       string     `json:"hold_reason,omitempty"`
	PayableAfter     *time.Time `json:"payable_after,omitempty"`
	Tag              string     `json:"tag,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// SettlementPublisher writes settlement.created events keyed by party key,
// so every settlement for one party lands on the same partition
type SettlementPublisher struct {
	writer      Writer
	breaker     *resilience.CircuitBreaker
	backoff     resilience.BackoffStrategy
	maxAttempts int
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

var _ ports.SettlementPublisher = (*SettlementPublisher)(nil)

// NewWriter builds a kafka-go writer that hashes keys to partitions and waits for all replicas
func NewWriter(cfg Config) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  1,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewSettlementPublisher wraps a writer with retry and metrics
func NewSettlementPublisher(writer Writer, cfg Config, logger *zap.Logger) *SettlementPublisher {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = resilience.DefaultTimeoutConfig().Publish
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.MaxFailures == 0 {
		breakerCfg = resilience.DefaultCircuitBreakerConfig()
	}
	breaker := resilience.NewCircuitBreaker(breakerCfg)
	breaker.OnStateChange = func(from, to resilience.CircuitState) {
		logger.Warn("Settlement publisher circuit changed state",
			zap.String("topic", cfg.Topic),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		observability.RecordCircuitState(cfg.Topic, int(to))
	}

	return &SettlementPublisher{
		writer:      writer,
		breaker:     breaker,
		backoff:     resilience.PublishBackoff(),
		maxAttempts: maxAttempts,
		timeout:     timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// PublishSettlementCreated serializes and writes one event, retrying transient broker errors.
// A retry sequence that gives up counts as one breaker failure; while the circuit is
// open the event is not written and resilience.ErrCircuitOpen is returned.
func (p *SettlementPublisher) PublishSettlementCreated(ctx context.Context, s *models.Settlement) error {
	payload, err := json.Marshal(newSettlementCreatedEvent(s, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal settlement event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(s.PartyKey()),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventTypeSettlementCreated)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	attempt := 0
	err = p.breaker.Call(func() error {
		return resilience.Retry(ctx, p.maxAttempts, p.backoff, func(ctx context.Context) error {
			attempt++
			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.logger.Warn("Settlement event write failed",
					zap.String("settlement_id", s.ID),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return err
			}
			return nil
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		observability.RecordEventSkipped()
		return fmt.Errorf("failed to publish settlement %s: %w", s.ID, err)
	}
	observability.RecordEventPublished(err == nil)
	if err != nil {
		return fmt.Errorf("failed to publish settlement %s: %w", s.ID, err)
	}

	p.logger.Debug("Settlement event published",
		zap.String("settlement_id", s.ID),
		zap.String("party_key", s.PartyKey()),
	)
	return nil
}

// Close flushes and closes the writer
func (p *SettlementPublisher) Close() error {
	return p.writer.Close()
}

func newSettlementCreatedEvent(s *models.Settlement, now time.Time) SettlementCreatedEvent {
	return SettlementCreatedEvent{
		EventType:        EventTypeSettlementCreated,
		SettlementID:     s.ID,
		PartyType:        string(s.PartyType),
		PartyID:          s.PartyID,
		PeriodStart:      s.PeriodStart,
		PeriodEnd:        s.PeriodEnd,
		Currency:         s.Currency,
		EngineVersion:    s.EngineVersion,
		GrossAmount:      s.TotalGrossAmount.String(),
		CommissionAmount: s.TotalCommissionAmount.String(),
		TaxAmount:        s.TotalTaxAmount.String(),
		PayableAmount:    s.PayableAmount.String(),
		ItemCount:        s.ItemCount,
		Status:           string(s.Status),
		HoldReason:       s.HoldReason,
		PayableAfter:     s.PayableAfter,
		Tag:              s.Tag,
		OccurredAt:       now.UTC(),
	}
}

// NoopPublisher discards events when no broker is configured
type NoopPublisher struct{}

var _ ports.SettlementPublisher = NoopPublisher{}

// PublishSettlementCreated does nothing
func (NoopPublisher) PublishSettlementCreated(ctx context.Context, s *models.Settlement) error {
	return nil
}

// Close does nothing
func (NoopPublisher) Close() error { return nil }
