package main

import (
	"context"
	"net/http"
	"os"
	"time"

	fusioncache "github.com/Keksclan/goFusionCache"
	"github.com/Keksclan/goFusionCache/internal/config"
	"github.com/Keksclan/goFusionCache/metrics"
	"github.com/Keksclan/goFusionCache/tracing"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// flags shared by every subcommand.
type rootFlags struct {
	configPath  string
	redisAddr   string
	sqlitePath  string
	logLevel    string
	trace       bool
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	var f rootFlags
	cmd := &cobra.Command{
		Use:           "fusioncache",
		Short:         "Inspect and exercise a fusioncache instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to a YAML configuration file")
	pf.StringVar(&f.redisAddr, "redis", "", "redis address for the distributed tier (env "+config.EnvRedisAddr+")")
	pf.StringVar(&f.sqlitePath, "sqlite", "", "sqlite file for the distributed tier")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (env "+config.EnvLogLevel+")")
	pf.BoolVar(&f.trace, "trace", false, "print a span per cache operation to stderr")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	cmd.AddCommand(
		newDemoCommand(&f),
		newGetCommand(&f),
		newSetCommand(&f),
		newRemoveCommand(&f),
	)
	return cmd
}

// session is a cache plus everything that has to be torn down with it.
type session struct {
	cache *fusioncache.Cache
	log   *zap.Logger

	closers []func() error
}

func (s *session) Close() error {
	var err error
	if s.cache != nil {
		err = s.cache.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = errors.CombineErrors(err, s.closers[i]())
	}
	_ = s.log.Sync()
	return err
}

// open builds the cache described by the flags and the configuration file.
// Flags win over the file and the environment.
func (f *rootFlags) open(ctx context.Context) (_ *session, err error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.redisAddr != "" {
		cfg.SQLite = nil
		cfg.Redis = &config.Redis{Addr: f.redisAddr}
	}
	if f.sqlitePath != "" {
		cfg.Redis = nil
		cfg.SQLite = &config.SQLite{Path: f.sqlitePath, ExpiryCheck: config.Duration(time.Minute)}
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	s := &session{log: log}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	opts, release, err := cfg.CacheOptions(ctx, log)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, release)

	if f.trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, errors.Wrap(err, "create stdout exporter")
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		s.closers = append(s.closers, func() error { return tp.Shutdown(context.Background()) })
		opts = append(opts, fusioncache.WithTracing(&tracing.Config{TracerProvider: tp, IncludeKeys: true}))
	}

	if f.metricsAddr != "" {
		m, err := metrics.New(nil)
		if err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
		opts = append(opts, fusioncache.WithMetrics(m))

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: f.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		s.closers = append(s.closers, srv.Close)
		log.Info("serving metrics", zap.String("addr", f.metricsAddr))
	}

	c, err := fusioncache.New(opts...)
	if err != nil {
		return nil, err
	}
	s.cache = c
	return s, nil
}

// withSession opens a session for the duration of run.
func (f *rootFlags) withSession(cmd *cobra.Command, run func(ctx context.Context, s *session) error) (err error) {
	ctx := cmd.Context()
	s, err := f.open(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, s.Close()) }()
	return run(ctx, s)
}
