package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when a remote provider has failed repeatedly
// and calls are being rejected until the breaker cools down.
var ErrCircuitOpen = errors.New("embedding: circuit breaker is open")

// ErrDimensionMismatch is returned when a provider answers with a vector of
// the wrong length.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// RemoteOptions tunes the guard placed in front of remote HTTP providers.
type RemoteOptions struct {
	Timeout           time.Duration // per-request HTTP timeout (default 30s)
	RequestsPerSecond float64       // sustained rate; <= 0 disables limiting
	Burst             int           // limiter burst (default 1)
	MaxFailures       uint32        // consecutive failures that trip the breaker (default 3)
	CoolDown          time.Duration // how long the breaker stays open (default 30s)
	Logger            *slog.Logger
}

func (o RemoteOptions) withDefaults() RemoteOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.MaxFailures == 0 {
		o.MaxFailures = 3
	}
	if o.CoolDown <= 0 {
		o.CoolDown = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// guard serializes remote calls through a rate limiter and a circuit breaker.
type guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(name string, o RemoteOptions) *guard {
	g := &guard{}
	if o.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(o.RequestsPerSecond), o.Burst)
	}
	logger := o.Logger
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     o.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding breaker state change", "component", "embedding", "provider", name, "from", from.String(), "to", to.String())
		},
		// Caller cancellation says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return g
}

func (g *guard) do(ctx context.Context, fn func() ([]Vector, error)) ([]Vector, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding: rate limit wait: %w", err)
		}
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return res.([]Vector), nil
}

// State returns the breaker state: "closed", "half-open" or "open".
func (g *guard) State() string {
	return g.breaker.State().String()
}

func checkDims(vs []Vector, dims int) error {
	for i, v := range vs {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return nil
}

// splitEmpty separates empty texts, which are answered locally with zero
// vectors, from the ones that need a remote call.
func splitEmpty(texts []string, dims int) (out []Vector, pending []int) {
	out = make([]Vector, len(texts))
	for i, t := range texts {
		if t == "" {
			out[i] = make(Vector, dims)
			continue
		}
		pending = append(pending, i)
	}
	return out, pending
}
