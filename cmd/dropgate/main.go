package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dropgate/dropgate/config"
	"github.com/dropgate/dropgate/internal/metadata"
	"github.com/dropgate/dropgate/internal/ratelimit"
	"github.com/dropgate/dropgate/internal/retention"
	"github.com/dropgate/dropgate/internal/storage"
	"github.com/dropgate/dropgate/internal/transfer"
	"github.com/dropgate/dropgate/pkg/env"
	"github.com/dropgate/dropgate/pkg/httpserver"
	"github.com/dropgate/dropgate/pkg/logging"
)

func main() {
	env.LoadEnv()

	app := &cli.App{
		Name:  "dropgate",
		Usage: "Anonymous file relay with retention and rate limiting",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: ".",
				Usage: "directory containing config.yaml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "Run the storage service and HTTP server",
				Action:  runServe,
			},
			{
				Name:   "sweep",
				Usage:  "Run a one-off retention sweep and exit",
				Action: runSweep,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

func setup(c *cli.Context) (*config.AppConfig, *metadata.Ledger, *storage.DiskStore, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}
	logging.InitLogger(cfg.Debug)

	store, err := storage.NewDiskStore(cfg.StoragePath, cfg.MaxFileSize, cfg.ChunkSize, cfg.Compress)
	if err != nil {
		return nil, nil, nil, err
	}
	ledger, err := metadata.OpenLedger(cfg.MetadataPath)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, ledger, store, nil
}

func runServe(c *cli.Context) error {
	cfg, ledger, store, err := setup(c)
	if err != nil {
		return err
	}
	defer ledger.Close()

	limiter := ratelimit.NewLimiter(cfg.RateMax, cfg.RateWindow)
	coordinator := transfer.NewCoordinator(store, ledger, limiter, cfg.MaxFileSize)
	sweeper := retention.NewSweeper(ledger, store, cfg.RetentionAge)

	runner := retention.NewRunner(sweeper, cfg.SweepInterval)
	runner.Start()
	defer runner.Stop()

	server := httpserver.New(coordinator, sweeper, cfg.BaseURL, cfg.Port)
	logging.Log.Info("dropgate started")

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logging.Log.WithField("signal", sig.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}

func runSweep(c *cli.Context) error {
	cfg, ledger, store, err := setup(c)
	if err != nil {
		return err
	}
	defer ledger.Close()

	sweeper := retention.NewSweeper(ledger, store, cfg.RetentionAge)
	deleted, err := sweeper.Sweep()
	if err != nil {
		return err
	}
	logging.Log.WithField("deleted", deleted).Info("sweep finished")
	return nil
}
