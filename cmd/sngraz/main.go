package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/septivank/sngraz/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startTimeout bounds connecting to RabbitMQ at startup.
const startTimeout = 30 * time.Second

func main() {
	// Load .env file from the working directory or one of its parents
	envPaths := []string{
		".env",
		"../../.env", // If running from bin/ subdirectory
	}

	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		envPaths = append(envPaths,
			filepath.Join(workDir, ".env"),
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	}

	envLoaded := false
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				absPath, _ := filepath.Abs(envPath)
				fmt.Fprintf(os.Stderr, "Loaded environment from: %s\n", absPath)
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
	}

	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			config.Load,
			newLogger,
			ProvideRegistry,
			ProvideMetrics,
			ProvideAccount,
			ProvideAnomalyDetector,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideExporter,
		),
		fx.Invoke(runExport),
	)

	// Temporary logger for startup errors, before config is known
	tempLogger, _ := newLogger(&config.Config{ServiceName: "sngraz"})

	startCtx, startCancel := context.WithTimeout(context.Background(), startTimeout)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			tempLogger.Error("APPLICATION START TIMEOUT: failed to start within 30 seconds, RabbitMQ is probably not reachable")
		}
		tempLogger.Error("failed to start", zap.Error(err))
		os.Exit(1)
	}

	// Wait for the export to finish or an interrupt signal
	sig := <-app.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		tempLogger.Error("error stopping app", zap.Error(err))
	}

	os.Exit(sig.ExitCode)
}
