package rag

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net"
	"strings"
	"time"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBaseDelay   = 1 * time.Second
	maxBackoff         = 30 * time.Second
	maxJitter          = 500 * time.Millisecond
)

// CallConfig bounds one upstream call. A zero Timeout disables the
// per-attempt deadline, which streaming opens rely on.
type CallConfig struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultCallConfig() CallConfig {
	return CallConfig{
		Timeout:    defaultCallTimeout,
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
	}
}

// Call runs fn with a per-attempt timeout and exponential backoff with
// jitter. Only transient upstream failures are retried; permanent errors and
// parent-context cancellation surface immediately. Provider-agnostic: the
// same wrapper fronts the embedding and the generation providers.
func Call[T any](ctx context.Context, cfg CallConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc = func() {}
		if cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}

		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			if attempt > 0 {
				log.Printf("%s: recovered after %d retries", op, attempt)
			}
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		delay := cfg.BaseDelay<<uint(attempt) + time.Duration(rand.Int63n(int64(maxJitter)))
		if delay > maxBackoff {
			delay = maxBackoff
		}
		log.Printf("%s: attempt %d failed (%v), retrying in %s", op, attempt+1, err, delay)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

var retryableSignatures = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"rate limit",
	"resource exhausted",
	"overloaded",
	"unavailable",
	"429",
	"500",
	"502",
	"503",
	"504",
}

// IsRetryable classifies upstream errors. Timeouts, resets, rate limits and
// 5xx-class failures are transient; everything else (auth, malformed
// request) aborts the call.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range retryableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// RetryingEmbeddings fronts an embedding provider with the resilient caller.
// The memoizing embedder stays retry-free; this adapter is what gets wired
// underneath it.
type RetryingEmbeddings struct {
	Inner EmbeddingsClient
	Cfg   CallConfig
}

func (r *RetryingEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	return Call(ctx, r.Cfg, "embed", func(ctx context.Context) ([]float32, error) {
		return r.Inner.Embed(ctx, text)
	})
}

func (r *RetryingEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return Call(ctx, r.Cfg, "embed-batch", func(ctx context.Context) ([][]float32, error) {
		return r.Inner.EmbedBatch(ctx, texts)
	})
}
