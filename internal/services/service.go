package services

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"

	"medkit/internal/caching"
	"medkit/internal/logger"
)

// Clock returns the current time. Lifecycle timestamps are read only
// through it so tests can pin "now".
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

type Option func(*options)

type options struct {
	clock        Clock
	readTimeout  time.Duration
	writeTimeout time.Duration
	rates        caching.CacheService
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTimeouts bounds every store round trip made by a service call.
func WithTimeouts(read, write time.Duration) Option {
	return func(o *options) {
		if read > 0 {
			o.readTimeout = read
		}
		if write > 0 {
			o.writeTimeout = write
		}
	}
}

// WithDiscardRateCache makes writes that scrap components or close usage
// records drop the cached discard-rate windows.
func WithDiscardRateCache(c caching.CacheService) Option {
	return func(o *options) { o.rates = c }
}

func newOptions(opts []Option) options {
	o := options{
		clock:        SystemClock,
		readTimeout:  3 * time.Second,
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) now() time.Time {
	return o.clock().UTC()
}

func (o options) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.readTimeout)
}

func (o options) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.writeTimeout)
}

// invalidateDiscardRates runs after a commit; cache failures are logged
// and otherwise ignored.
func (o options) invalidateDiscardRates(ctx context.Context) {
	if o.rates == nil {
		return
	}
	if err := o.rates.InvalidateDiscardRates(ctx); err != nil {
		logger.Warn(ctx, "discard rate cache invalidation failed", logger.ErrorF(err))
	}
}

// normalizeIDs trims ids, drops blanks and collapses duplicates keeping the
// first occurrence.
func normalizeIDs(ids []string) []string {
	trimmed := lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		id = strings.TrimSpace(id)
		return id, id != ""
	})
	return lo.Uniq(trimmed)
}
