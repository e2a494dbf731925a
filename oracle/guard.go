package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/viant/sqlite-rag/internal/logging"
)

const tracerName = "github.com/viant/sqlite-rag/oracle"

// GuardConfig tunes Guard. Zero values take the defaults noted per field.
type GuardConfig struct {
	// Name labels the circuit breaker, spans and log records.
	Name string
	// MaxRetries bounds retries after the first attempt; default 3, negative disables retries.
	MaxRetries int
	// InitialBackoff is the first retry delay; default 500ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay; default 10s.
	MaxBackoff time.Duration
	// RequestsPerSecond limits call rate; 0 means unlimited.
	RequestsPerSecond float64
	// Burst is the limiter bucket size; default 1.
	Burst int
	// BreakerFailures is the number of consecutive transient failures that
	// opens the breaker; default 5.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open; default 30s.
	BreakerTimeout time.Duration
	// CallTimeout bounds a single attempt; 0 means no per-attempt deadline.
	CallTimeout time.Duration
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.Name == "" {
		c.Name = "oracle"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// Guard makes oracle calls resilient: transient failures are retried with
// exponential backoff, repeated failures open a circuit breaker, calls are
// rate limited, and each call is traced. Terminal failures match
// vector.ErrOracleUnavailable; context cancellation is returned unchanged.
type Guard struct {
	cfg     GuardConfig
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics guardMetrics
}

// NewGuard returns a Guard.
func NewGuard(cfg GuardConfig, logger *slog.Logger) *Guard {
	cfg = cfg.withDefaults()
	logger = logging.OrDiscard(logger)
	g := &Guard{cfg: cfg, logger: logger, metrics: newGuardMetrics()}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("oracle circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			g.metrics.transition(name, to.String())
		},
	})
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return g
}

// State returns the circuit breaker state.
func (g *Guard) State() gobreaker.State { return g.breaker.State() }

// Embedder wraps e.
func (g *Guard) Embedder(e Embedder) Embedder { return &guardedEmbedder{guard: g, next: e} }

// Generator wraps gen.
func (g *Guard) Generator(gen Generator) Generator { return &guardedGenerator{guard: g, next: gen} }

type guardedEmbedder struct {
	guard *Guard
	next  Embedder
}

func (e *guardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return call(ctx, e.guard, "embed", func(ctx context.Context) ([]float32, error) {
		return e.next.Embed(ctx, text)
	})
}

func (e *guardedEmbedder) Dimension() int { return DimensionOf(e.next) }
func (e *guardedEmbedder) Model() string  { return ModelOf(e.next) }

type guardedGenerator struct {
	guard *Guard
	next  Generator
}

func (g *guardedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return call(ctx, g.guard, "generate", func(ctx context.Context) (string, error) {
		return g.next.Generate(ctx, prompt)
	})
}

func (g *guardedGenerator) Model() string { return ModelOf(g.next) }

func call[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "oracle."+op)
	defer span.End()
	span.SetAttributes(attribute.String("oracle.name", g.cfg.Name))

	started := time.Now()
	var result T
	attempts := 0
	operation := func() error {
		attempts++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		out, err := g.breaker.Execute(func() (interface{}, error) {
			callCtx := ctx
			if g.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
				defer cancel()
			}
			return fn(callCtx)
		})
		switch {
		case err == nil:
			if v, ok := out.(T); ok {
				result = v
			}
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(Unavailable(op, false, err))
		case IsRetryable(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.cfg.InitialBackoff
	policy.MaxInterval = g.cfg.MaxBackoff
	policy.MaxElapsedTime = 0
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("oracle call failed, retrying",
			"name", g.cfg.Name, "op", op, "attempt", attempts, "wait", wait, "error", err)
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(g.cfg.MaxRetries)), ctx), notify)
	span.SetAttributes(attribute.Int("oracle.attempts", attempts))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			span.SetStatus(codes.Error, err.Error())
			g.metrics.record(ctx, g.cfg.Name, op, outcomeCanceled, attempts, started)
			var zero T
			return zero, err
		}
		err = Unavailable(op, IsRetryable(err), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("oracle call failed", "name", g.cfg.Name, "op", op, "attempts", attempts, "error", err)
		g.metrics.record(ctx, g.cfg.Name, op, outcomeError, attempts, started)
		var zero T
		return zero, err
	}
	g.metrics.record(ctx, g.cfg.Name, op, outcomeOK, attempts, started)
	return result, nil
}
