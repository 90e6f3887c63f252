package retry

import (
	"math"
	"math/rand"
	"time"
)

// Strategy is a custom retry callback. Returning a delay retries after that
// delay verbatim (including any jitter the strategy wants); returning nil
// means do not retry. A configured strategy fully overrides every other
// rule, ceilings included.
type Strategy func(err error, attempt int) *time.Duration

// Config holds the retry decision parameters. The zero value is not usable;
// start from DefaultConfig (NewPolicy does).
type Config struct {
	// MaxRetries bounds retries globally: a call makes at most MaxRetries+1
	// attempts.
	MaxRetries int

	// CategoryCeilings optionally bounds retries per error category. The
	// effective ceiling for a categorized error is the smaller of the
	// category ceiling and MaxRetries.
	CategoryCeilings map[ErrorCategory]int

	// BaseDelay, Multiplier and MaxDelay shape the exponential backoff:
	// delay n = min(BaseDelay * Multiplier^n, MaxDelay).
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration

	// JitterLow and JitterHigh bound the random scaling factor applied to a
	// computed backoff delay so concurrent retries do not synchronize.
	JitterLow  float64
	JitterHigh float64

	// HonorProviderHints uses a classifier-reported Retry-After duration as
	// the delay for retryable categories instead of the backoff.
	HonorProviderHints bool

	// Strategy, when set, fully overrides classification, backoff and
	// ceilings.
	Strategy Strategy

	// Classifier normalizes provider errors. Nil means every error is
	// CategoryUnknown.
	Classifier Classifier
}

// DefaultConfig returns the baseline retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		BaseDelay:          500 * time.Millisecond,
		Multiplier:         2.0,
		MaxDelay:           32 * time.Second,
		JitterLow:          0.9,
		JitterHigh:         1.0,
		HonorProviderHints: true,
	}
}

// Decision is the outcome of one retry evaluation.
type Decision struct {
	Retry    bool
	Delay    time.Duration
	Category ErrorCategory
}

// Policy is a pure retry decision function: given an error and the number of
// retries already performed, it decides whether to retry and after what
// delay. It never sleeps and never inspects contexts; that is the caller's
// job.
type Policy struct {
	cfg Config
}

// NewPolicy creates a Policy from DefaultConfig plus overrides.
func NewPolicy(optFns ...func(c *Config)) *Policy {
	cfg := DefaultConfig()

	for _, fn := range optFns {
		fn(&cfg)
	}

	return &Policy{cfg: cfg}
}

// Config returns a copy of the policy configuration.
func (p *Policy) Config() Config { return p.cfg }

// Ceiling returns the effective retry ceiling for err: MaxRetries, lowered
// by the category ceiling when one applies.
func (p *Policy) Ceiling(err error) int {
	ceiling := p.cfg.MaxRetries

	if p.cfg.Classifier != nil {
		cls := p.cfg.Classifier.Classify(err)
		if c, ok := p.cfg.CategoryCeilings[cls.Category]; ok && c < ceiling {
			ceiling = c
		}
	}

	return ceiling
}

// Decide evaluates one failed attempt. attempt is the number of retries
// already performed: 0 after the first failure. Precedence, highest first:
// custom strategy (full override), provider classification with optional
// retry hint, exponential backoff; the effective ceiling bounds everything
// except a custom strategy.
func (p *Policy) Decide(err error, attempt int) Decision {
	if p.cfg.Strategy != nil {
		if d := p.cfg.Strategy(err, attempt); d != nil {
			return Decision{Retry: true, Delay: *d}
		}
		return Decision{}
	}

	category := CategoryUnknown
	var hint time.Duration

	if p.cfg.Classifier != nil {
		cls := p.cfg.Classifier.Classify(err)
		category = cls.Category
		hint = cls.RetryAfter
	}

	if !category.Retryable() {
		return Decision{Category: category}
	}

	ceiling := p.cfg.MaxRetries
	if c, ok := p.cfg.CategoryCeilings[category]; ok && c < ceiling {
		ceiling = c
	}

	if attempt >= ceiling {
		return Decision{Category: category}
	}

	if p.cfg.HonorProviderHints && hint > 0 {
		return Decision{Retry: true, Delay: hint, Category: category}
	}

	return Decision{Retry: true, Delay: p.backoff(attempt), Category: category}
}

// backoff computes min(base * multiplier^attempt, max) scaled by a random
// factor in [JitterLow, JitterHigh].
func (p *Policy) backoff(attempt int) time.Duration {
	d := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.Multiplier, float64(attempt))
	if limit := float64(p.cfg.MaxDelay); d > limit {
		d = limit
	}

	lo, hi := p.cfg.JitterLow, p.cfg.JitterHigh
	if hi > lo {
		d *= lo + rand.Float64()*(hi-lo)
	} else if lo > 0 {
		d *= lo
	}

	return time.Duration(d)
}
