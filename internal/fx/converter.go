package fx

import (
	"errors"
	"sync"
	"time"

	"tally/internal/logger"

	"github.com/shopspring/decimal"
)

// ErrRateUnavailable signals that no rate exists for one of the requested
// currencies. The accompanying amount is returned unconverted; callers must
// degrade (display a warning) rather than fail a balance computation.
var ErrRateUnavailable = errors.New("fx: rate unavailable")

// Converter converts amounts between currencies using a cached rate table
// from an injected RateSource. Conversion is always synchronous: a stale
// cache or the static fallback table answers immediately while the source is
// unreachable, so no balance computation ever blocks on the network.
type Converter struct {
	source RateSource
	ttl    time.Duration

	mu        sync.Mutex
	cached    Rates
	fetchedAt time.Time
	degraded  bool
}

// NewConverter creates a Converter backed by the given source. A nil source
// means the static fallback table is used for every conversion.
func NewConverter(source RateSource, ttl time.Duration) *Converter {
	return &Converter{source: source, ttl: ttl}
}

// Convert converts amount from one currency code to another. Identity
// conversions return the amount untouched, with no rounding pass. A missing
// rate for either code returns the amount unchanged alongside
// ErrRateUnavailable.
func (c *Converter) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	rates := c.rates()

	fromRate, ok := rates.Rate(from)
	if !ok || fromRate.IsZero() {
		return amount, ErrRateUnavailable
	}
	toRate, ok := rates.Rate(to)
	if !ok {
		return amount, ErrRateUnavailable
	}

	// Two hops: source -> pivot -> target.
	return amount.Div(fromRate).Mul(toRate), nil
}

// rates returns the current rate table, refreshing from the source when the
// cache has expired. Source failures fall back first to the stale cache and
// then to the static table.
func (c *Converter) rates() Rates {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached.Values != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.cached
	}

	if c.source != nil {
		fresh, err := c.source.LatestRates()
		if err == nil {
			c.cached = fresh
			c.fetchedAt = time.Now()
			c.degraded = false
			return c.cached
		}

		logger.Get().Warnw("rate source unavailable", "error", err)
		if c.cached.Values != nil {
			// Stale beats static: the cache at least came from a live source.
			return c.cached
		}
	}

	if !c.degraded {
		logger.Get().Warn("using static fallback rate table")
		c.degraded = true
	}
	return staticRates()
}
