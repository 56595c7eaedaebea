package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	fusioncache "github.com/Keksclan/goFusionCache"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newGetCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.withSession(cmd, func(ctx context.Context, s *session) error {
				res, err := fusioncache.TryGet[string](ctx, s.cache, args[0], s.cache.DefaultEntryOptions())
				if err != nil {
					return err
				}
				if !res.Found {
					fmt.Fprintln(cmd.OutOrStdout(), "(miss)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Value)
				return nil
			})
		},
	}
}

func newSetCommand(f *rootFlags) *cobra.Command {
	var (
		ttl   time.Duration
		local bool
	)
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE under KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.withSession(cmd, func(ctx context.Context, s *session) error {
				opts, err := s.cache.EntryOptionsFor(ttl)
				if err != nil {
					return err
				}
				opts.SkipDistributedCache = local
				return s.cache.Set(ctx, args[0], args[1], opts)
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", fusioncache.DefaultDuration, "time to live; 0 removes the key")
	cmd.Flags().BoolVar(&local, "local", false, "skip the distributed tier")
	return cmd
}

func newRemoveCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove KEY",
		Aliases: []string{"rm"},
		Short:   "Remove KEY from every tier",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.withSession(cmd, func(ctx context.Context, s *session) error {
				return s.cache.RemoveWith(ctx, args[0], nil)
			})
		},
	}
}

func newDemoCommand(f *rootFlags) *cobra.Command {
	var (
		callers int
		delay   time.Duration
		key     string
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run many concurrent GetOrSet calls for one key and report factory runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.withSession(cmd, func(ctx context.Context, s *session) error {
				return runDemo(ctx, cmd, s.cache, key, callers, delay)
			})
		},
	}
	cmd.Flags().IntVar(&callers, "callers", 20, "number of concurrent callers")
	cmd.Flags().DurationVar(&delay, "delay", 200*time.Millisecond, "simulated factory latency")
	cmd.Flags().StringVar(&key, "key", "demo", "cache key")
	return cmd
}

func runDemo(ctx context.Context, cmd *cobra.Command, c *fusioncache.Cache, key string, callers int, delay time.Duration) error {
	var runs atomic.Int32
	factory := func(ctx context.Context) (string, error) {
		runs.Add(1)
		select {
		case <-time.After(delay):
			return "computed at " + time.Now().Format(time.RFC3339Nano), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	values := make([]string, callers)
	for i := range callers {
		g.Go(func() error {
			v, err := fusioncache.GetOrSetWith(ctx, c, key, factory, nil)
			values[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d callers, %d factory run(s), %s\n", callers, runs.Load(), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "value: %s\n", values[0])

	start = time.Now()
	v, err := fusioncache.GetOrSetWith(ctx, c, key, factory, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "follow-up call served from cache in %s: %s\n", time.Since(start).Round(time.Microsecond), v)
	return nil
}
