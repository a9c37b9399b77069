// Copyright 2024-2026 Aiku AI

// Command socialsync broadcasts site posts to social networks and
// aggregates the engagement (replies, likes, retweets) back into the
// site's comment stream, deduplicated across runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aiku/socialsync/pkg/aggregator"
	"github.com/aiku/socialsync/pkg/store"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:     "socialsync",
		Short:   "Social network broadcast aggregation for CMS posts",
		Version: fmt.Sprintf("%s (%s, built %s)", Tag, Commit, BuildTime),
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(runCmd(), aggregateCmd(), exampleConfigCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config and wires the store, services and engine.
func setup() (*aggregator.Config, *store.Store, *aggregator.Engine, *aggregator.Registry, zerolog.Logger, error) {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := aggregator.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, nil, log, err
	}

	st, err := store.NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, nil, log, err
	}

	transport := aggregator.NewTransport(cfg.HTTPTimeout())
	registry := aggregator.NewRegistry(
		aggregator.NewFacebookService(transport, st, st, cfg, log),
		aggregator.NewTwitterService(transport, st, st, cfg, log),
	)
	engine := aggregator.NewEngine(registry, st, st, log)
	return cfg, st, engine, registry, log, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the aggregation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, engine, registry, log, err := setup()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := aggregator.NewScheduler(engine, st, registry.Keys(),
				cfg.AggregationInterval(), cfg.AggregationWindow(), log)
			log.Info().
				Dur("interval", cfg.AggregationInterval()).
				Dur("window", cfg.AggregationWindow()).
				Msg("Scheduler started")
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <post-id>",
		Short: "Run one aggregation pass for a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, engine, registry, _, err := setup()
			if err != nil {
				return err
			}
			defer st.Close()

			return engine.RunPass(cmd.Context(), args[0], registry.Keys())
		},
	}
}

func exampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config",
		Short: "Print the example configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(aggregator.ExampleConfig)
		},
	}
}
