package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

// BreakerInvoker wraps an Invoker with a circuit breaker so a backend
// that is hard down stops absorbing full retry cycles per message.
type BreakerInvoker struct {
	inner   domain.Invoker
	breaker *gobreaker.CircuitBreaker[domain.InvocationResult]
	logger  *slog.Logger
}

// NewBreakerInvoker wraps inner with a breaker configured from cfg.
func NewBreakerInvoker(inner domain.Invoker, cfg config.BreakerConfig, logger *slog.Logger) *BreakerInvoker {
	settings := gobreaker.Settings{
		Name:     "a2a-invoke",
		Interval: cfg.IntervalDuration(),
		Timeout:  cfg.TimeoutDuration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &BreakerInvoker{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[domain.InvocationResult](settings),
		logger:  logger,
	}
}

// Invoke delegates through the breaker. An open breaker is reported as
// a transport failure so callers see the usual retryable class.
func (b *BreakerInvoker) Invoke(ctx context.Context, agent domain.AgentRef, sessionID, userID, message string) (domain.InvocationResult, error) {
	res, err := b.breaker.Execute(func() (domain.InvocationResult, error) {
		return b.inner.Invoke(ctx, agent, sessionID, userID, message)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.InvocationResult{}, fmt.Errorf("%w: circuit open for agent backend: %v", domain.ErrTransport, err)
		}
		return domain.InvocationResult{}, err
	}
	return res, nil
}

var _ domain.Invoker = (*BreakerInvoker)(nil)
