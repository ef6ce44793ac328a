package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
)

// Deliverer hands an outgoing message to the transport. Errors wrapping
// ErrTransientDelivery are retried; anything else fails the send immediately.
type Deliverer interface {
	Deliver(ctx context.Context, message models.Message) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, message models.Message) error

// Deliver implements Deliverer.
func (f DelivererFunc) Deliver(ctx context.Context, message models.Message) error {
	return f(ctx, message)
}

// LocalDelivery accepts every message without leaving the process.
var LocalDelivery Deliverer = DelivererFunc(func(context.Context, models.Message) error { return nil })

type retryingDeliverer struct {
	next   Deliverer
	policy config.RetryConfig
	logger zerolog.Logger
}

func newRetryingDeliverer(next Deliverer, policy config.RetryConfig, logger zerolog.Logger) *retryingDeliverer {
	if next == nil {
		next = LocalDelivery
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &retryingDeliverer{next: next, policy: policy, logger: logger}
}

func (d *retryingDeliverer) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if d.policy.InitialInterval > 0 {
		exp.InitialInterval = d.policy.InitialInterval
	}
	if d.policy.MaxInterval > 0 {
		exp.MaxInterval = d.policy.MaxInterval
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(d.policy.MaxAttempts-1)), ctx)
}

func (d *retryingDeliverer) Deliver(ctx context.Context, message models.Message) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := d.next.Deliver(ctx, message)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransientDelivery) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		observability.DeliveryRetries().Inc()
		d.logger.Warn().
			Err(err).
			Str("message_id", message.ID).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("chat delivery failed, retrying")
	}

	return backoff.RetryNotify(operation, d.backOff(ctx), notify)
}
