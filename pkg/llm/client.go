package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// NewClient dispatches on cfg.Provider to build a concrete Provider,
// wrapped uniformly in a circuit breaker and rate limiter. It fails
// fast on an unrecognized provider name rather than defaulting silently.
func NewClient(cfg Config, log *logrus.Logger) (Provider, error) {
	var inner Provider
	switch cfg.Provider {
	case "anthropic":
		inner = NewAnthropicProvider(cfg)
	case "bedrock":
		bp, err := NewBedrockProvider(cfg)
		if err != nil {
			return nil, err
		}
		inner = bp
	case "local":
		inner = NewLocalProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	return newGuardedProvider(inner, cfg, log), nil
}

// guardedProvider wraps any Provider with the breaker+limiter+retry
// discipline required of every suspension point, so individual
// provider implementations stay free of that concern.
type guardedProvider struct {
	inner   Provider
	cfg     Config
	log     *logrus.Logger
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuardedProvider(inner Provider, cfg Config, log *logrus.Logger) *guardedProvider {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-provider-" + cfg.Provider,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
	})
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	return &guardedProvider{
		inner:   inner,
		cfg:     cfg,
		log:     log,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

func (g *guardedProvider) Describe(ctx context.Context, brief Brief) (string, error) {
	result, err := g.callWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.Describe(ctx, brief)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (g *guardedProvider) Plan(ctx context.Context, prompt string, planContext map[string]interface{}) (storage.StructuredPlan, error) {
	result, err := g.callWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.Plan(ctx, prompt, planContext)
	})
	if err != nil {
		return storage.StructuredPlan{}, err
	}
	return result.(storage.StructuredPlan), nil
}

func (g *guardedProvider) callWithRetry(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, sharederrors.FailedTo("rate-limit llm call", err)
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	return g.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		maxRetries := g.cfg.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}
		for attempt := 0; attempt < maxRetries; attempt++ {
			out, err := fn(ctx)
			if err == nil {
				return out, nil
			}
			lastErr = err
			if !sharederrors.IsTransient(err) {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second * time.Duration(1<<attempt)):
			}
		}
		return nil, lastErr
	})
}
