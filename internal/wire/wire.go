//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"github.com/sevigo/peer-warden/internal/app"
	"github.com/sevigo/peer-warden/internal/batch"
	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/db"
	"github.com/sevigo/peer-warden/internal/jobs"
	"github.com/sevigo/peer-warden/internal/report"
	"github.com/sevigo/peer-warden/internal/server"
	"github.com/sevigo/peer-warden/internal/server/handler"
	"github.com/sevigo/peer-warden/internal/storage"
	"github.com/sevigo/peer-warden/internal/tracker"
)

func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	wire.Build(
		config.LoadConfig,
		provideLoggerConfig,
		provideSlogLogger,
		provideDBConfig,
		provideCanvasConfig,
		providePassbackConfig,
		provideEventsConfig,
		db.NewDatabase,
		provideSQLX,
		storage.NewStore,
		provideMetricsRegistry,
		provideMetrics,
		providePublisher,
		provideRegistry,
		providePassbackChannel,
		report.New,
		tracker.New,
		batch.NewService,
		jobs.NewReportJob,
		provideDispatcher,
		handler.NewAPI,
		provideHTTPHandler,
		server.NewServer,
		app.NewApp,
		wire.Bind(new(tracker.Reporter), new(*report.Reporter)),
		wire.Bind(new(jobs.Reporter), new(*report.Reporter)),
		wire.Bind(new(handler.ReportService), new(*report.Reporter)),
		wire.Bind(new(handler.BatchService), new(*batch.Service)),
		wire.Bind(new(handler.CompletionTracker), new(*tracker.Tracker)),
	)
	return &app.App{}, nil, nil
}
