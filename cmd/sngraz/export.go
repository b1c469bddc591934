package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/septivank/sngraz"
	"github.com/septivank/sngraz/internal/anomaly"
	"github.com/septivank/sngraz/internal/config"
	"github.com/septivank/sngraz/internal/exporter"
	"github.com/septivank/sngraz/internal/mq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func runExport(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	exp *exporter.Exporter,
	reg *prometheus.Registry,
	cfg *config.Config,
	logger *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting export",
				zap.Int("days", cfg.Portal.Days),
				zap.Bool("publish", cfg.RabbitMQ.URL != ""))

			go func() {
				defer close(done)

				exitCode := 0
				if _, err := exp.Run(ctx); err != nil {
					logger.Error("export failed", zap.Error(err))
					exitCode = 1
				}
				pushMetrics(reg, cfg.Metrics, logger)

				if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					logger.Error("failed to request shutdown", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				logger.Info("export stopped")
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func pushMetrics(reg *prometheus.Registry, cfg config.MetricsConfig, logger *zap.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	if err := push.New(cfg.PushgatewayURL, cfg.JobName).Gatherer(reg).Push(); err != nil {
		logger.Warn("failed to push metrics", zap.String("url", cfg.PushgatewayURL), zap.Error(err))
		return
	}
	logger.Debug("metrics pushed", zap.String("url", cfg.PushgatewayURL))
}

// ProvideRegistry creates the registry the client metrics are pushed from
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideMetrics registers the portal client metrics
func ProvideMetrics(reg *prometheus.Registry) (*sngraz.Metrics, error) {
	return sngraz.NewMetrics(reg)
}

// ProvideAccount creates the portal account from the configuration
func ProvideAccount(lc fx.Lifecycle, cfg *config.Config, metrics *sngraz.Metrics, logger *zap.Logger) (*sngraz.Account, error) {
	loc, err := cfg.Portal.Location()
	if err != nil {
		return nil, err
	}

	opts := []sngraz.Option{
		sngraz.WithBaseURL(cfg.Portal.URL),
		sngraz.WithTimeout(cfg.Portal.Timeout),
		sngraz.WithLocation(loc),
		sngraz.WithLogger(logger.Named("portal")),
		sngraz.WithMetrics(metrics),
		sngraz.WithRateLimit(cfg.Portal.RateLimit, cfg.Portal.RateBurst),
	}
	if cfg.Portal.CABundle != "" {
		pem, err := os.ReadFile(cfg.Portal.CABundle)
		if err != nil {
			return nil, fmt.Errorf("failed to read SNGRAZ_CA_BUNDLE: %w", err)
		}
		opts = append(opts, sngraz.WithCABundle(pem))
	}

	acc, err := sngraz.New(cfg.Portal.Username, cfg.Portal.Password, opts...)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			acc.Close()
			return nil
		},
	})
	return acc, nil
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideMQConnection creates a new RabbitMQ connection instance, or nil when
// publishing is disabled
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the ingest publisher, or nil without a connection
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (exporter.Publisher, error) {
	if conn == nil {
		return nil, nil
	}

	pub, err := mq.NewPublisher(conn, cfg.RabbitMQ.IngestExchange, cfg.RabbitMQ.IngestRoutingKey, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}

// ProvideExporter creates a new exporter instance
func ProvideExporter(
	acc *sngraz.Account,
	publisher exporter.Publisher,
	detector *anomaly.Detector,
	cfg *config.Config,
	logger *zap.Logger,
) *exporter.Exporter {
	return exporter.New(exporter.Config{
		Source:    acc,
		Publisher: publisher,
		Out:       os.Stdout,
		Detector:  detector,
		Days:      cfg.Portal.Days,
		Logger:    logger,
	})
}
