// Package result fetches the final pipeline result with bounded retries.
package result

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = time.Second
)

// ErrFetchFailed is returned when every attempt failed or saw no result.
var ErrFetchFailed = errors.New("result fetch failed")

// Source provides the server's latest result. *newsroom.Client implements it.
type Source interface {
	LastResult(ctx context.Context) (*newsroom.PipelineResult, error)
}

// AttemptFunc observes each attempt. err is nil on the successful attempt.
type AttemptFunc func(attempt int, err error)

// Fetcher retrieves the result after completion has been detected.
type Fetcher struct {
	src       Source
	attempts  int
	delay     time.Duration
	logger    *logging.Logger
	onAttempt AttemptFunc
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithAttempts sets the attempt budget. Values below 1 are ignored.
func WithAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// WithDelay sets the wait before each attempt.
func WithDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithAttemptHook registers fn to observe attempts.
func WithAttemptHook(fn AttemptFunc) Option {
	return func(f *Fetcher) { f.onAttempt = fn }
}

// New creates a Fetcher with 5 attempts and a 1s delay unless overridden.
func New(src Source, opts ...Option) *Fetcher {
	f := &Fetcher{
		src:      src,
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch waits the delay before every attempt, including the first, since
// the server may publish the result slightly after the completion marker.
//
// A no_result answer or a failed request consumes an attempt; any other
// result is returned at once. When the budget runs out Fetch returns an
// error wrapping ErrFetchFailed and the last cause. Context cancellation
// is returned as is.
func (f *Fetcher) Fetch(ctx context.Context) (*newsroom.PipelineResult, error) {
	if err := sleep(ctx, f.delay); err != nil {
		return nil, err
	}

	attempt := 0
	op := func() (*newsroom.PipelineResult, error) {
		attempt++
		res, err := f.src.LastResult(ctx)
		if f.onAttempt != nil {
			f.onAttempt(attempt, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			f.logger.Debug(ctx, "result not ready",
				zap.Int("attempt", attempt),
				zap.Int("attempts", f.attempts),
				zap.Error(err))
			return nil, err
		}
		return res, nil
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(f.delay)),
		backoff.WithMaxTries(uint(f.attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	f.logger.Warn(ctx, "result fetch exhausted", zap.Int("attempts", attempt), zap.Error(err))
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFetchFailed, attempt, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
