package fusioncache

import (
	"time"

	"github.com/Keksclan/goFusionCache/breaker"
	"github.com/Keksclan/goFusionCache/metrics"
	"github.com/Keksclan/goFusionCache/ratelimit"
	"github.com/Keksclan/goFusionCache/storage"
	"github.com/Keksclan/goFusionCache/tracing"
	"go.uber.org/zap"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	name         string
	defaultEntry EntryOptions

	l1        storage.Store
	l1MaxCost int64
	l2        storage.Store
	l2Breaker *breaker.Config

	limiter *ratelimit.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracing *tracing.Config
	now     func() time.Time
}

func defaultConfig() config {
	return config{
		name:         DefaultName,
		defaultEntry: EntryOptions{Duration: DefaultDuration},
		l1MaxCost:    DefaultMemoryCost,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
}
