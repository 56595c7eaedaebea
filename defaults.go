package fusioncache

import (
	"time"

	"github.com/Keksclan/goFusionCache/breaker"
)

const (
	// DefaultName names a cache created without WithName.
	DefaultName = "default"

	// DefaultDuration is the TTL of the default entry options.
	DefaultDuration = 30 * time.Second

	// DefaultMemoryCost is the budget of the built-in memory store.
	DefaultMemoryCost = 10_000
)

// DefaultBreakerConfig trips the distributed tier after five consecutive
// failures and probes it again after ten seconds.
var DefaultBreakerConfig = breaker.Config{
	FailureThreshold:   5,
	OpenTimeout:        10 * time.Second,
	HalfOpenMaxSuccess: 1,
}

// DefaultOptions returns the recommended set of options for production use.
// Currently this guards the distributed tier with a circuit breaker;
// additional defaults may be added in future versions.
func DefaultOptions() []Option {
	return []Option{
		WithDistributedCircuitBreaker(DefaultBreakerConfig),
	}
}
