package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultAttempts is the number of times an archive fetch is tried
	DefaultAttempts = 4
	// DefaultAttemptTimeout bounds a single fetch attempt
	DefaultAttemptTimeout = 2 * time.Minute
	// DefaultRetryDelay is the initial wait between fetch attempts
	DefaultRetryDelay = 500 * time.Millisecond
	// MaxRetryDelay caps the wait between fetch attempts
	MaxRetryDelay = 10 * time.Second
)

// WithLogger sets the logger for the loader
func WithLogger(logger *slog.Logger) func(*Loader) {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithCache caches acquired archives
func WithCache(cache Cache) func(*Loader) {
	return func(l *Loader) {
		l.cache = cache
	}
}

// WithAttempts sets how many times a fetch is tried before the archive is
// declared unreachable
func WithAttempts(n uint) func(*Loader) {
	return func(l *Loader) {
		if n > 0 {
			l.attempts = n
		}
	}
}

// WithAttemptTimeout bounds every fetch attempt
func WithAttemptTimeout(d time.Duration) func(*Loader) {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithBackOff replaces the exponential wait between attempts
func WithBackOff(b func() backoff.BackOff) func(*Loader) {
	return func(l *Loader) {
		l.newBackOff = b
	}
}

// Loader acquires the HV archive of a run, reusing a cached copy when one
// exists.
type Loader struct {
	fetcher    Fetcher
	cache      Cache
	attempts   uint
	timeout    time.Duration
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// NewLoader creates a Loader for the fetcher with a discard logger and no cache
func NewLoader(fetcher Fetcher, options ...func(*Loader)) *Loader {
	l := Loader{
		fetcher:  fetcher,
		attempts: DefaultAttempts,
		timeout:  DefaultAttemptTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = DefaultRetryDelay
			b.MaxInterval = MaxRetryDelay
			return b
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Load returns the archive of the run. When refetch is set any cached copy
// is dropped and the archive is acquired again. Acquisition failures wrap
// ErrSourceUnreachable.
func (l *Loader) Load(ctx context.Context, run int, refetch bool) (Source, error) {
	logger := l.logger.With(slog.Int("run", run))

	if l.cache != nil && !refetch {
		src, ok, err := l.cache.Lookup(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("looking up cached archive: %w", err)
		}
		if ok {
			logger.Debug("using cached archive")
			return src, nil
		}
	}

	operation := func() (*DumpSource, error) {
		actx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		dump, err := l.fetcher.Fetch(actx, run)
		if errors.Is(err, ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return dump, err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("archive fetch failed, retrying", slog.String("error", err.Error()), slog.Duration("wait", wait))
	}

	dump, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(l.newBackOff()),
		backoff.WithMaxTries(l.attempts),
		backoff.WithNotify(notify))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: run %d: %w", ErrSourceUnreachable, run, err)
	}

	logger.Info("fetched archive", slog.String("origin", dump.Origin), slog.Int("superChambers", dump.Len()))

	if l.cache == nil {
		return dump, nil
	}

	if refetch {
		if err = l.cache.Purge(ctx, run); err != nil {
			return nil, fmt.Errorf("purging cached archive: %w", err)
		}
	}

	src, err := l.cache.Save(ctx, run, dump)
	if err != nil {
		return nil, fmt.Errorf("caching archive: %w", err)
	}
	return src, nil
}
