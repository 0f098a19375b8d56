// Package app initializes and orchestrates the main components of the peer review service.
// It wires together the configuration, server, and other services.
package app

import (
	"context"
	"log/slog"

	"github.com/sevigo/peer-warden/internal/batch"
	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/report"
	"github.com/sevigo/peer-warden/internal/server"
	"github.com/sevigo/peer-warden/internal/storage"
	"github.com/sevigo/peer-warden/internal/tracker"
)

// App holds the main application components. The exported services are
// used directly by the CLI.
type App struct {
	ctx        context.Context
	cfg        *config.Config
	server     *server.Server
	logger     *slog.Logger
	dispatcher core.JobDispatcher

	Store    storage.Store
	Batches  *batch.Service
	Tracker  *tracker.Tracker
	Reporter *report.Reporter
}

// NewApp sets up the application with all its dependencies.
func NewApp(
	ctx context.Context,
	cfg *config.Config,
	srv *server.Server,
	dispatcher core.JobDispatcher,
	store storage.Store,
	batches *batch.Service,
	tr *tracker.Tracker,
	reporter *report.Reporter,
	logger *slog.Logger,
) *App {
	logger.Info("peer-warden initialized",
		"db_driver", cfg.Database.Driver,
		"max_workers", cfg.Jobs.MaxWorkers,
		"canvas", cfg.Canvas.BaseURL != "",
		"events", cfg.Events.AMQPURL != "")

	return &App{
		ctx:        ctx,
		cfg:        cfg,
		server:     srv,
		logger:     logger,
		dispatcher: dispatcher,
		Store:      store,
		Batches:    batches,
		Tracker:    tr,
		Reporter:   reporter,
	}
}

// Start runs the HTTP server.
func (a *App) Start() error {
	a.logger.Info("starting peer-warden",
		"server_port", a.cfg.Server.Port,
		"max_workers", a.cfg.Jobs.MaxWorkers)

	err := a.server.Start()
	if err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}

	return nil
}

// Stop shuts down the application cleanly. The database and the event
// broker are closed by the cleanup function returned with the App.
func (a *App) Stop() error {
	a.logger.Info("shutting down peer-warden services")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	// Stop the job dispatcher, allowing in-flight jobs to finish.
	a.dispatcher.Stop()

	if serverErr != nil {
		a.logger.Error("peer-warden stopped with errors", "error", serverErr)
		return serverErr
	}

	a.logger.Info("peer-warden stopped successfully")
	return nil
}

// Close stops background workers without touching the HTTP server. It is
// used by short-lived CLI commands.
func (a *App) Close() {
	a.dispatcher.Stop()
}
