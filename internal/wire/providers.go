package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/db"
	"github.com/sevigo/peer-warden/internal/events"
	"github.com/sevigo/peer-warden/internal/jobs"
	"github.com/sevigo/peer-warden/internal/logger"
	"github.com/sevigo/peer-warden/internal/metrics"
	"github.com/sevigo/peer-warden/internal/passback"
	"github.com/sevigo/peer-warden/internal/registry"
	"github.com/sevigo/peer-warden/internal/server"
	"github.com/sevigo/peer-warden/internal/server/handler"
)

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logging
}

func provideSlogLogger(loggerConfig logger.Config) *slog.Logger {
	l := logger.NewLogger(loggerConfig, nil)
	slog.SetDefault(l)
	return l
}

func provideDBConfig(cfg *config.Config) *config.DBConfig {
	return &cfg.Database
}

func provideCanvasConfig(cfg *config.Config) *config.CanvasConfig {
	return &cfg.Canvas
}

func providePassbackConfig(cfg *config.Config) *config.PassbackConfig {
	return &cfg.Passback
}

func provideEventsConfig(cfg *config.Config) *config.EventsConfig {
	return &cfg.Events
}

func provideSQLX(conn *db.DB) *sqlx.DB {
	return conn.DB
}

func provideMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// provideRegistry selects Canvas when a base URL is configured and a YAML
// roster file otherwise.
func provideRegistry(ctx context.Context, cfg *config.CanvasConfig, logger *slog.Logger) (core.SubmissionRegistry, error) {
	if cfg.BaseURL != "" {
		return registry.NewCanvasRegistry(ctx, cfg, logger), nil
	}
	if cfg.RosterFile != "" {
		roster, err := registry.LoadRoster(cfg.RosterFile)
		if err != nil {
			return nil, err
		}
		logger.Info("using roster file as submission registry", "path", cfg.RosterFile)
		return registry.NewFileRegistry(roster), nil
	}
	return nil, fmt.Errorf("either CANVAS_BASE_URL or CANVAS_ROSTER_FILE must be set")
}

func providePassbackChannel(ctx context.Context, cfg *config.PassbackConfig, logger *slog.Logger) core.PassbackChannel {
	return passback.NewHTTPChannel(ctx, cfg, logger)
}

func provideDispatcher(job core.Job, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) core.JobDispatcher {
	return jobs.NewDispatcher(job, cfg.Jobs.MaxWorkers, cfg.Jobs.QueueSize, m, logger)
}

func provideHTTPHandler(cfg *config.Config, api *handler.API, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	return server.NewRouter(cfg, api, reg, logger)
}

func providePublisher(cfg *config.EventsConfig, logger *slog.Logger) (events.Publisher, func(), error) {
	return events.NewPublisher(cfg, logger)
}
