// Command indexer runs the forward-only driver that integrates points and
// replays reducer state one block at a time, with clean shutdown on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/symbioticfi/points-indexer/core/driver"
	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/appctx"
	"github.com/symbioticfi/points-indexer/internal/config"
)

func main() {
	var configPath, env string

	root := &cobra.Command{
		Use:   "indexer",
		Short: "replays ingested blocks through the state reducer and points engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, env)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.Flags().StringVar(&env, "env", "", "optional config overlay name (e.g. holesky)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, env string) error {
	cfg, err := config.Load(configPath, env)
	if err != nil {
		return err
	}
	if !cfg.Chain.Selector.Valid() {
		logrus.Fatalf("indexer: invalid or missing chain selector %q", cfg.Chain.Selector)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}
	appCtx := appctx.New(cfg, logger)
	log := appCtx.WithFields(logrus.Fields{"component": "indexer", "chain": cfg.Chain.Selector})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.DSN, cfg.Store.MaxConns)
	if err != nil {
		log.WithError(err).Error("open store")
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.WithError(err).Error("migrate store")
		return err
	}

	d := driver.New(st, driver.Config{
		StartBlock:       cfg.Chain.StartBlock,
		PollInterval:     cfg.Driver.PollInterval,
		RetryAttempts:    cfg.Driver.RetryAttempts,
		RetryBaseBackoff: cfg.Driver.RetryBaseBackoff,
	}, log)

	log.Info("indexer starting")
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("driver exited with error")
		return err
	}
	log.Info("indexer shut down cleanly")
	return nil
}
