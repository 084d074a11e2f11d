package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logpkg "medease-realtime/common/logger"
	"medease-realtime/internal/config"
	"medease-realtime/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "medease-realtime"

func main() {
	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Realtime health dashboard aggregator",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup 加载配置并初始化日志
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logpkg.NewLoggerWithFile(cfg.Log.Level, cfg.Log.Format, serviceName, logpkg.FileOptions{
		Filename: cfg.Log.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// signalContext SIGINT / SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard HTTP / websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			log.Info("Starting medease-realtime service")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			app, err := service.NewApp(ctx, cfg, log)
			if err != nil {
				log.Error("Failed to create service", zap.Error(err))
				return err
			}

			// 监听系统信号
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				errChan <- app.Start(ctx)
			}()

			var runErr error
			select {
			case sig := <-sigChan:
				log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			case runErr = <-errChan:
				if runErr != nil {
					log.Error("Service error", zap.Error(runErr))
				}
			}
			cancel()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer stopCancel()
			if err := app.Stop(stopCtx); err != nil {
				log.Error("Error stopping service", zap.Error(err))
			}

			log.Info("Service stopped")
			return runErr
		},
	}
}

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Forward Postgres change notifications into Redis Streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signalContext()
			defer stop()

			if err := service.RunRelay(ctx, cfg, log); err != nil {
				log.Error("Relay stopped with error", zap.Error(err))
				return err
			}
			log.Info("Relay stopped")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Install change notification triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signalContext()
			defer stop()

			if err := service.Migrate(ctx, cfg, log); err != nil {
				log.Error("Migration failed", zap.Error(err))
				return err
			}
			log.Info("Migrations applied")
			return nil
		},
	}
}
