// Package config loads the YAML configuration of the fusioncache command and
// turns it into cache options.
package config

import (
	"context"
	"os"
	"time"

	fusioncache "github.com/Keksclan/goFusionCache"
	"github.com/Keksclan/goFusionCache/breaker"
	"github.com/Keksclan/goFusionCache/policy"
	"github.com/Keksclan/goFusionCache/retry"
	"github.com/Keksclan/goFusionCache/storage"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/xhit/go-str2duration/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvRedisAddr = "FUSIONCACHE_REDIS_ADDR"
	EnvLogLevel  = "FUSIONCACHE_LOG_LEVEL"
)

// Duration is a time.Duration that unmarshals from strings such as "30s" or
// "1d12h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "config: line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return str2duration.String(time.Duration(d)), nil
}

// Config is the top-level configuration document.
type Config struct {
	Name      string     `yaml:"name"`
	LogLevel  string     `yaml:"log_level"`
	Defaults  Entry      `yaml:"defaults"`
	Memory    Memory     `yaml:"memory"`
	Redis     *Redis     `yaml:"redis,omitempty"`
	SQLite    *SQLite    `yaml:"sqlite,omitempty"`
	Breaker   *Breaker   `yaml:"breaker,omitempty"`
	RateLimit *RateLimit `yaml:"rate_limit,omitempty"`
	Policies  []Policy   `yaml:"policies,omitempty"`
}

// Entry mirrors fusioncache.EntryOptions.
type Entry struct {
	Duration             Duration `yaml:"duration"`
	JitterMaxDuration    Duration `yaml:"jitter_max_duration"`
	FactoryTimeout       Duration `yaml:"factory_timeout"`
	Size                 int64    `yaml:"size"`
	SkipDistributedCache bool     `yaml:"skip_distributed_cache"`
}

// Memory sizes the in-process tier.
type Memory struct {
	MaxCost int64 `yaml:"max_cost"`
}

// Redis configures the distributed tier on a Redis server.
type Redis struct {
	Addr         string   `yaml:"addr"`
	Prefix       string   `yaml:"prefix"`
	QueryTimeout Duration `yaml:"query_timeout"`
	Retries      int      `yaml:"retries"`
}

// SQLite configures the distributed tier on a local SQLite file.
type SQLite struct {
	Path        string   `yaml:"path"`
	ExpiryCheck Duration `yaml:"expiry_check"`
}

// Breaker configures the circuit breaker in front of the distributed tier.
type Breaker struct {
	FailureThreshold   int      `yaml:"failure_threshold"`
	OpenTimeout        Duration `yaml:"open_timeout"`
	HalfOpenMaxSuccess int      `yaml:"half_open_max_success"`
}

// RateLimit caps factory invocations.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Policy is one named group of key or method patterns.
type Policy struct {
	Name                 string   `yaml:"name"`
	Exact                []string `yaml:"exact,omitempty"`
	Prefix               []string `yaml:"prefix,omitempty"`
	Regex                []string `yaml:"regex,omitempty"`
	Duration             Duration `yaml:"duration"`
	FactoryTimeout       Duration `yaml:"factory_timeout"`
	SkipDistributedCache bool     `yaml:"skip_distributed_cache"`
	Bypass               bool     `yaml:"bypass"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Name:     fusioncache.DefaultName,
		LogLevel: "info",
		Defaults: Entry{Duration: Duration(fusioncache.DefaultDuration)},
		Memory:   Memory{MaxCost: fusioncache.DefaultMemoryCost},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "config: read file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "config: parse %s", path)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if addr, ok := lookup(EnvRedisAddr); ok && addr != "" {
		if c.Redis == nil {
			c.Redis = &Redis{}
		}
		c.Redis.Addr = addr
	}
	if level, ok := lookup(EnvLogLevel); ok && level != "" {
		c.LogLevel = level
	}
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	if c.Defaults.Duration < 0 {
		return errors.Newf("config: negative default duration %s", time.Duration(c.Defaults.Duration))
	}
	if c.Redis != nil && c.SQLite != nil {
		return errors.New("config: redis and sqlite are mutually exclusive")
	}
	if c.Redis != nil && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required")
	}
	if c.SQLite != nil && c.SQLite.Path == "" {
		return errors.New("config: sqlite.path is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config: log_level")
	}
	for i, p := range c.Policies {
		if p.Name == "" {
			return errors.Newf("config: policies[%d]: name is required", i)
		}
		if len(p.Exact)+len(p.Prefix)+len(p.Regex) == 0 {
			return errors.Newf("config: policy %q has no patterns", p.Name)
		}
	}
	return nil
}

// EntryOptions returns the default entry options.
func (c *Config) EntryOptions() fusioncache.EntryOptions {
	return fusioncache.EntryOptions{
		Duration:             time.Duration(c.Defaults.Duration),
		JitterMaxDuration:    time.Duration(c.Defaults.JitterMaxDuration),
		FactoryTimeout:       time.Duration(c.Defaults.FactoryTimeout),
		Size:                 c.Defaults.Size,
		SkipDistributedCache: c.Defaults.SkipDistributedCache,
	}
}

// Resolver builds a policy resolver from the configured groups, or returns
// nil when there are none.
func (c *Config) Resolver() (*policy.Resolver, error) {
	if len(c.Policies) == 0 {
		return nil, nil
	}
	groups := make([]*policy.GroupBuilder, 0, len(c.Policies))
	for _, p := range c.Policies {
		g := policy.Group(p.Name)
		for _, e := range p.Exact {
			g.Exact(e)
		}
		for _, pfx := range p.Prefix {
			g.Prefix(pfx)
		}
		for _, re := range p.Regex {
			if _, err := g.CompileRegex(re); err != nil {
				return nil, errors.Wrapf(err, "config: policy %q", p.Name)
			}
		}
		groups = append(groups, g.Policy(policy.Policy{
			Duration:             time.Duration(p.Duration),
			FactoryTimeout:       time.Duration(p.FactoryTimeout),
			SkipDistributedCache: p.SkipDistributedCache,
			Bypass:               p.Bypass,
		}))
	}
	return policy.NewResolver(groups...), nil
}

// Logger builds a development logger for debug level and a production one
// otherwise.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "config: log_level")
	}
	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// CacheOptions opens the configured stores and returns the options for
// fusioncache.New, logging to log. The returned release function closes
// connections the cache does not own and must be called after the cache is
// closed.
func (c *Config) CacheOptions(ctx context.Context, log *zap.Logger) (opts []fusioncache.Option, release func() error, err error) {
	release = func() error { return nil }
	opts = []fusioncache.Option{
		fusioncache.WithName(c.Name),
		fusioncache.WithLogger(log),
		fusioncache.WithDefaultEntryOptions(c.EntryOptions()),
		fusioncache.WithMemoryStore(c.Memory.MaxCost),
	}

	switch {
	case c.Redis != nil:
		client := redis.NewClient(&redis.Options{Addr: c.Redis.Addr})
		release = client.Close
		ropts := []storage.RedisOption{storage.WithPrefix(c.Redis.Prefix)}
		if c.Redis.QueryTimeout > 0 {
			ropts = append(ropts, storage.WithQueryTimeout(time.Duration(c.Redis.QueryTimeout)))
		}
		if c.Redis.Retries > 0 {
			ropts = append(ropts, storage.WithRetry(retry.Config{
				MaxAttempts: c.Redis.Retries + 1,
				BaseDelay:   50 * time.Millisecond,
				MaxDelay:    time.Second,
				Jitter:      0.2,
			}))
		}
		opts = append(opts, fusioncache.WithDistributedStore(storage.NewRedis(client, ropts...)))
	case c.SQLite != nil:
		s, err := storage.NewSQLite(ctx, c.SQLite.Path, time.Duration(c.SQLite.ExpiryCheck),
			storage.WithSQLiteLogger(log))
		if err != nil {
			return nil, nil, errors.Wrap(err, "config: open sqlite")
		}
		opts = append(opts, fusioncache.WithDistributedStore(s))
	}

	if c.Breaker != nil {
		opts = append(opts, fusioncache.WithDistributedCircuitBreaker(breaker.Config{
			FailureThreshold:   c.Breaker.FailureThreshold,
			OpenTimeout:        time.Duration(c.Breaker.OpenTimeout),
			HalfOpenMaxSuccess: c.Breaker.HalfOpenMaxSuccess,
		}))
	}
	if c.RateLimit != nil {
		opts = append(opts, fusioncache.WithFactoryRateLimit(c.RateLimit.RPS, c.RateLimit.Burst))
	}
	return opts, release, nil
}
