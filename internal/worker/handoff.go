package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lessonflow/internal/events"
	"lessonflow/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	HandoffQueueKey      = "payments:handoff"
	HandoffDeadLetterKey = "payments:deadletter"
)

// HandoffPublisher forwards payment hand-offs from the event bus to a redis
// list consumed by the payment collaborator.
type HandoffPublisher struct {
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.PaymentHandoff
	queueKey      string
	deadLetterKey string
	logger        *zerolog.Logger
}

func NewHandoffPublisher(client *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *HandoffPublisher {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 30 * time.Second
	}
	return &HandoffPublisher{
		redis:         client,
		retryPolicy:   retry,
		queue:         make(chan models.PaymentHandoff, 128),
		queueKey:      HandoffQueueKey,
		deadLetterKey: HandoffDeadLetterKey,
		logger:        logger,
	}
}

// Handle is an events.EventHandler for events.EventPaymentRequested.
func (p *HandoffPublisher) Handle(event *events.Event) error {
	var handoff models.PaymentHandoff
	if err := json.Unmarshal(event.Payload, &handoff); err != nil {
		return fmt.Errorf("decode payment hand-off: %w", err)
	}
	if handoff.BookingID == 0 {
		return errors.New("payment hand-off without booking id")
	}

	select {
	case p.queue <- handoff:
		return nil
	default:
		p.logger.Warn().Int64("booking_id", handoff.BookingID).Msg("Hand-off queue full, pushing to dead letter")
		p.pushDeadLetter(context.Background(), handoff)
		return errors.New("payment hand-off queue full")
	}
}

// Start drains the queue until ctx is done.
func (p *HandoffPublisher) Start(ctx context.Context) {
	p.logger.Info().Str("queue", p.queueKey).Msg("Payment hand-off publisher started")
	defer p.logger.Info().Msg("Payment hand-off publisher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case handoff := <-p.queue:
			p.deliver(ctx, handoff)
		}
	}
}

func (p *HandoffPublisher) deliver(ctx context.Context, handoff models.PaymentHandoff) {
	data, err := json.Marshal(handoff)
	if err != nil {
		p.logger.Error().Err(err).Int64("booking_id", handoff.BookingID).Msg("Failed to encode hand-off")
		return
	}

	err = p.retryPolicy.Do(ctx, func(error) bool { return true }, func(ctx context.Context) error {
		return p.redis.LPush(ctx, p.queueKey, data).Err()
	})
	if err != nil {
		p.logger.Error().Err(err).Int64("booking_id", handoff.BookingID).Msg("Failed to deliver payment hand-off")
		p.pushDeadLetter(ctx, handoff)
		return
	}
	p.logger.Info().
		Int64("booking_id", handoff.BookingID).
		Str("amount", handoff.Amount.StringFixed(2)).
		Msg("Payment hand-off queued")
}

func (p *HandoffPublisher) pushDeadLetter(ctx context.Context, handoff models.PaymentHandoff) {
	data, err := json.Marshal(handoff)
	if err != nil {
		return
	}
	if err := p.redis.LPush(ctx, p.deadLetterKey, data).Err(); err != nil {
		p.logger.Error().Err(err).Int64("booking_id", handoff.BookingID).Msg("Dead letter push failed")
	}
}
