package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultProviderTimeout = 60 * time.Second
	defaultMaxRetries      = 2
	defaultMaxConcurrent   = 8
	backoffBase            = 200 * time.Millisecond
)

// RouterConfig configures a Router.
type RouterConfig struct {
	// Providers is the ordered non-terminal chain. The router always
	// appends its own deterministic terminal provider.
	Providers []Provider
	// Dims is the reasoning-vector dimensionality; it is stable for the
	// lifetime of the router.
	Dims int
	// MaxConcurrent caps in-flight provider calls process-wide (default 8).
	MaxConcurrent int64
	// ProviderTimeout is the wall-clock budget per provider per call
	// (default 60s).
	ProviderTimeout time.Duration
	// MaxRetries is the number of retries on throttling per provider
	// (default 2).
	MaxRetries int
}

// Router drives the failover chain. It is stateless across calls: a
// provider that failed the last call is tried again on the next one.
type Router struct {
	chain      []Provider
	dims       int
	sem        *semaphore.Weighted
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewRouter builds a router over the given providers plus the
// deterministic terminal.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if cfg.Dims <= 0 {
		cfg.Dims = 768
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	chain := make([]Provider, 0, len(cfg.Providers)+1)
	chain = append(chain, cfg.Providers...)
	chain = append(chain, NewDeterministic(cfg.Dims))

	return &Router{
		chain:      chain,
		dims:       cfg.Dims,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		timeout:    cfg.ProviderTimeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// Dims returns the stable reasoning-vector dimensionality.
func (r *Router) Dims() int { return r.dims }

// Complete routes one completion call through the chain. With JSONMode set
// the payload is extracted and validated before a provider's answer is
// accepted; a malformed payload fails that provider for this call.
func (r *Router) Complete(ctx context.Context, req Request) (CompletionResult, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return CompletionResult{}, fmt.Errorf("llm: acquire slot: %w", err)
	}
	defer r.sem.Release(1)

	terminal := len(r.chain) - 1
	var lastErr error

	for i, p := range r.chain {
		out, err := r.completeOne(ctx, p, req)
		if err == nil {
			return CompletionResult{
				Text:     out,
				Provider: p.Name(),
				Degraded: i == terminal && terminal > 0,
			}, nil
		}
		if ctx.Err() != nil {
			return CompletionResult{}, ctx.Err()
		}
		lastErr = err
		r.logger.Warn("llm: provider failed, trying next", "provider", p.Name(), "error", err)
	}

	// The deterministic terminal cannot fail; reaching here means the
	// chain was misconfigured.
	return CompletionResult{}, fmt.Errorf("llm: all providers failed: %w", lastErr)
}

// ReasoningVector routes one embedding call through the chain. Providers
// that cannot embed are skipped without counting as an outage.
func (r *Router) ReasoningVector(ctx context.Context, prompt string) (VectorResult, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return VectorResult{}, fmt.Errorf("llm: acquire slot: %w", err)
	}
	defer r.sem.Release(1)

	terminal := len(r.chain) - 1
	var lastErr error

	for i, p := range r.chain {
		vec, err := r.vectorOne(ctx, p, prompt)
		if err == nil {
			return VectorResult{
				Vector:   vec,
				Provider: p.Name(),
				Degraded: i == terminal && terminal > 0,
			}, nil
		}
		if ctx.Err() != nil {
			return VectorResult{}, ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, ErrUnsupported) {
			r.logger.Warn("llm: vector provider failed, trying next", "provider", p.Name(), "error", err)
		}
	}

	return VectorResult{}, fmt.Errorf("llm: all vector providers failed: %w", lastErr)
}

// completeOne calls a single provider with the per-provider deadline and
// the throttling retry policy.
func (r *Router) completeOne(ctx context.Context, p Provider, req Request) (string, error) {
	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		out, err := p.Complete(cctx, req)
		cancel()

		if err == nil {
			if req.JSONMode {
				return ExtractJSON(out)
			}
			return out, nil
		}

		if !r.shouldRetry(ctx, err, attempt) {
			return "", err
		}
		if err := r.backoff(ctx, attempt); err != nil {
			return "", err
		}
	}
}

func (r *Router) vectorOne(ctx context.Context, p Provider, prompt string) ([]float32, error) {
	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		vec, err := p.ReasoningVector(cctx, prompt)
		cancel()

		if err == nil {
			if len(vec) == 0 {
				return nil, fmt.Errorf("llm: %s returned empty vector", p.Name())
			}
			return vec, nil
		}
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		if !r.shouldRetry(ctx, err, attempt) {
			return nil, err
		}
		if err := r.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (r *Router) shouldRetry(ctx context.Context, err error, attempt int) bool {
	if ctx.Err() != nil || attempt >= r.maxRetries {
		return false
	}
	var se *StatusError
	return errors.As(err, &se) && se.Retryable()
}

// backoff sleeps 200ms × 2^attempt with ±20% jitter, honouring
// cancellation.
func (r *Router) backoff(ctx context.Context, attempt int) error {
	d := backoffBase << attempt
	jitter := 0.8 + 0.4*rand.Float64()
	d = time.Duration(float64(d) * jitter)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
