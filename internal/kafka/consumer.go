package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/cimillas/adboard/internal/domain"
)

// PaymentHandler processes a decoded payment-completed event. Handlers must
// be idempotent: the offset is committed only after handling succeeds, so a
// failure or crash redelivers the event.
type PaymentHandler interface {
	HandlePaymentCompleted(ctx context.Context, evt domain.PaymentEvent) error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageReader is the slice of kafka.Reader the consumer uses. Fetch and
// commit are separate so the offset moves only past handled events.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads payment-completed events from Kafka and feeds them to the
// payment handler.
type Consumer struct {
	reader  messageReader
	handler PaymentHandler
	logger  zerolog.Logger
}

func NewConsumer(cfg Config, handler PaymentHandler, logger zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		handler: handler,
		logger:  logger,
	}
}

// Run consumes until ctx is cancelled. The offset is committed only after
// the handler returns without error. On a handler failure Run returns
// without committing: offsets are cursors, so moving past the event would
// drop it permanently, while restarting redelivers it and the handler's
// idempotency absorbs the replay. Malformed messages are logged and
// committed; they would never parse on redelivery either.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		var msg paymentMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			c.logger.Error().Err(err).
				Int("partition", m.Partition).
				Int64("offset", m.Offset).
				Msg("malformed payment event, skipping")
			if err := c.commit(ctx, m); err != nil {
				return err
			}
			continue
		}

		if err := c.handler.HandlePaymentCompleted(ctx, msg.toDomain()); err != nil {
			c.logger.Error().Err(err).
				Str("event_id", msg.EventID).
				Str("kind", msg.Kind).
				Msg("payment event handling failed, offset not committed")
			return fmt.Errorf("handle payment event %s: %w", msg.EventID, err)
		}

		if err := c.commit(ctx, m); err != nil {
			return err
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) error {
	err := c.reader.CommitMessages(ctx, m)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

type paymentMessage struct {
	EventID         string     `json:"event_id"`
	SellerID        string     `json:"seller_id"`
	Kind            string     `json:"kind"`
	MaxAds          int        `json:"max_ads,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	TierID          string     `json:"tier_id,omitempty"`
	Quantity        int        `json:"quantity,omitempty"`
	PromotionTypeID string     `json:"promotion_type_id,omitempty"`
}

func (m paymentMessage) toDomain() domain.PaymentEvent {
	return domain.PaymentEvent{
		EventID:         m.EventID,
		SellerID:        m.SellerID,
		Kind:            domain.GrantKind(m.Kind),
		MaxAds:          m.MaxAds,
		ExpiresAt:       m.ExpiresAt,
		TierID:          m.TierID,
		Quantity:        m.Quantity,
		PromotionTypeID: m.PromotionTypeID,
	}
}
