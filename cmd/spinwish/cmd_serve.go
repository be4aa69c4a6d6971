package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"spinwish/internal/db"
	"spinwish/internal/email"
	"spinwish/internal/logger"
	"spinwish/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, email worker and payment sweeper",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var database *sqlx.DB
	if cfg.Store == "postgres" {
		database, err = db.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
			return err
		}
		logger.Info("database ready", "migrations", cfg.MigrationsPath)
	} else {
		logger.Warn("using in-memory store, data is lost on restart")
	}

	emailService := email.New(cfg)
	defer emailService.Close()

	app := server.NewApp(cfg, server.Options{
		DB:      database,
		Alerter: emailService,
	})
	srv := server.New(cfg, app)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeps := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := app.Sweeper.Schedule(ctx, sweeps, cfg.ReconcileSchedule); err != nil {
		return fmt.Errorf("schedule payment sweep: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		emailService.Start(ctx)
		return nil
	})
	g.Go(func() error {
		sweeps.Start()
		logger.Info("payment sweeper started", "schedule", cfg.ReconcileSchedule)
		<-ctx.Done()
		<-sweeps.Stop().Done()
		logger.Info("payment sweeper stopped")
		return nil
	})

	logger.Info("spinwish started",
		"port", cfg.Port,
		"store", cfg.Store,
		"mock_payments", cfg.Mock.Enabled,
	)
	return g.Wait()
}
