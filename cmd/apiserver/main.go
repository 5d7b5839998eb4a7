package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/appctx"
	"github.com/symbioticfi/points-indexer/internal/config"
)

func main() {
	var configPath, env string

	root := &cobra.Command{
		Use:   "apiserver",
		Short: "read-only HTTP API over the points store",
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

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}
	appCtx := appctx.New(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.DSN, cfg.Store.MaxConns)
	if err != nil {
		appCtx.WithFields(logrus.Fields{"err": err}).Error("open store")
		return err
	}
	defer st.Close()

	srv := NewServer(cfg.API.ListenAddr, st, appCtx.WithFields(logrus.Fields{"component": "apiserver"}))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		appCtx.WithFields(logrus.Fields{}).Info("shutting down api server")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
