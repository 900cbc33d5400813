// -----------------------------------------------------------------------
// App - dependency container. Wires config, logging, the job store, the
// single-flight worker controller, the log sink, the history writer and
// the HTTP handlers; owns the daily retention sweep schedule.
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/common"
	"github.com/ternarybob/compactd/internal/compact"
	"github.com/ternarybob/compactd/internal/handlers"
	"github.com/ternarybob/compactd/internal/history"
	"github.com/ternarybob/compactd/internal/logs"
	"github.com/ternarybob/compactd/internal/models"
	"github.com/ternarybob/compactd/internal/store"
	"github.com/ternarybob/compactd/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Sink       *logs.Sink
	Store      *store.Store
	History    *history.Writer
	Controller *worker.Controller

	JobHandler     *handlers.JobHandler
	LogHandler     *handlers.LogHandler
	StatusHandler  *handlers.StatusHandler
	HistoryHandler *handlers.HistoryHandler
	APIHandler     *handlers.APIHandler
	StaticHandler  *handlers.StaticHandler
	WSHandler      *handlers.WebSocketHandler

	cron *cron.Cron
}

// New initializes the application with the default (measuring) compaction
// op. NewWithOp injects a real one.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	return NewWithOp(config, logger, compact.MeasureOp{})
}

// NewWithOp initializes all components with the given compaction op.
func NewWithOp(config *common.Config, logger arbor.ILogger, op compact.Op) (*App, error) {
	sink, err := logs.NewSink(config.Storage.LogsDir, config.Storage.HistoryDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize log sink: %w", err)
	}

	historyWriter, err := history.NewWriter(config.Storage.HistoryDir, logger)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to initialize history writer: %w", err)
	}

	jobStore := store.New(sink, logger)
	workFn := compact.NewWorkFunc(config.Compact, op, logger)
	controller := worker.New(jobStore, historyWriter, sink, workFn, logger)

	a := &App{
		Config:     config,
		Logger:     logger,
		Sink:       sink,
		Store:      jobStore,
		History:    historyWriter,
		Controller: controller,

		JobHandler:     handlers.NewJobHandler(jobStore, controller, logger),
		LogHandler:     handlers.NewLogHandler(sink, logger),
		StatusHandler:  handlers.NewStatusHandler(jobStore, controller, logger),
		HistoryHandler: handlers.NewHistoryHandler(historyWriter, logger),
		APIHandler:     handlers.NewAPIHandler(logger),
		StaticHandler:  handlers.NewStaticHandler(config.Storage.StaticDir, logger),
		WSHandler:      handlers.NewWebSocketHandler(&config.WebSocket, logger),
	}

	// Live log stream follows the sink
	sink.Subscribe(a.WSHandler.Broadcast)

	if err := a.scheduleSweep(); err != nil {
		sink.Close()
		return nil, err
	}

	sink.Write(models.NewLogEvent(models.LogLevelInfo, "", "Service started").
		WithField("version", common.GetVersion()))

	logger.Info().
		Str("logs_dir", config.Storage.LogsDir).
		Str("history_dir", config.Storage.HistoryDir).
		Int("retention_days", config.Retention.Days).
		Msg("Application initialized")

	return a, nil
}

// scheduleSweep registers the daily retention sweep at the configured hour.
// The cron instance drives only the sweep, never job admission.
func (a *App) scheduleSweep() error {
	a.cron = cron.New()

	spec := fmt.Sprintf("0 %d * * *", a.Config.Retention.SweepHour)
	_, err := a.cron.AddFunc(spec, func() {
		common.SafeGo(a.Logger, "retentionSweep", func() {
			if _, err := a.Sink.Sweep(a.Config.Retention.Days); err != nil {
				a.Logger.Error().Err(err).Msg("Retention sweep failed")
			}
		})
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	a.cron.Start()
	return nil
}

// Drain waits for an in-flight job to reach a terminal state, bounded by
// ctx. The job is accounted for, never cancelled.
func (a *App) Drain(ctx context.Context) error {
	return a.Controller.Wait(ctx)
}

// Close stops the sweep schedule and releases the sink.
func (a *App) Close() {
	if a.cron != nil {
		a.cron.Stop()
	}
	if a.Sink != nil {
		a.Sink.Close()
	}
	a.Logger.Info().Msg("Application closed")
}
