package resilience

import "time"

// Policy bounds how one class of outbound calls is retried and when its
// circuit breakers open.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// MaxRetryAfter caps a server supplied Retry-After hint. A hint above
	// the cap ends the retry loop instead of sleeping.
	MaxRetryAfter time.Duration

	Breaker BreakerPolicy
}

type BreakerPolicy struct {
	Enabled        bool
	MinRequests    uint32
	FailureRatio   float64
	OpenFor        time.Duration
	HalfOpenProbes uint32
}

// ProviderPolicy suits AI provider calls: few attempts, backoff long enough
// for a rate-limit window to pass.
func ProviderPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2,
		MaxRetryAfter:  20 * time.Second,
		Breaker: BreakerPolicy{
			Enabled:        true,
			MinRequests:    10,
			FailureRatio:   0.5,
			OpenFor:        30 * time.Second,
			HalfOpenProbes: 2,
		},
	}
}

// QueuePolicy suits pipeline job publishes, which either succeed quickly or
// wait for a broker reconnect.
func QueuePolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
		Breaker: BreakerPolicy{
			Enabled:        true,
			MinRequests:    5,
			FailureRatio:   0.6,
			OpenFor:        10 * time.Second,
			HalfOpenProbes: 1,
		},
	}
}

func (p Policy) withDefaults() Policy {
	def := ProviderPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Breaker.MinRequests == 0 {
		p.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if p.Breaker.FailureRatio <= 0 || p.Breaker.FailureRatio > 1 {
		p.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if p.Breaker.OpenFor <= 0 {
		p.Breaker.OpenFor = def.Breaker.OpenFor
	}
	if p.Breaker.HalfOpenProbes == 0 {
		p.Breaker.HalfOpenProbes = def.Breaker.HalfOpenProbes
	}
	return p
}
