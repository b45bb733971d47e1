package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "expolis/backend/libs/db"
	libredis "expolis/backend/libs/redis"
	"expolis/backend/services/reconcile-service/internal/config"
	"expolis/backend/services/reconcile-service/internal/export"
	"expolis/backend/services/reconcile-service/internal/parser"
	redisstore "expolis/backend/services/reconcile-service/internal/redis"
	"expolis/backend/services/reconcile-service/internal/repository"
	"expolis/backend/services/reconcile-service/internal/service"
)

// SummaryPublisher stores the outcome of a run for other consumers.
type SummaryPublisher interface {
	Save(ctx context.Context, summary redisstore.Summary) error
}

// App wires reconcile service dependencies for a single run.
type App struct {
	parser      *parser.Parser
	checker     *service.Checker
	summaries   SummaryPublisher
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// Run describes one reconciliation request.
type Run struct {
	SensorID int
	FileName string
	Input    io.Reader
	// Report prints every missing row and the duplicate/malformed counters before the summary.
	Report bool
	// ExportPath, when set, receives the missing rows as an Excel workbook.
	ExportPath string
}

// New constructs application components: the store connection and, when configured,
// the redis client used to publish summaries.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewMeasurementRepository(sqlDB, cfg.Database.Driver)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	var (
		redisClient *redis.Client
		summaries   SummaryPublisher
	)
	if cfg.RedisEnabled() {
		redisClient, err = libredis.NewRedisClient(libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		summaries = redisstore.NewSummaryStore(redisClient, cfg.SummaryTTL())
	}

	a, err := NewWithStore(cfg, repo, summaries, logger)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		sqlDB.Close()
		return nil, err
	}
	a.db = sqlDB
	a.redisClient = redisClient
	return a, nil
}

// NewWithStore builds an App around an existing store; summaries may be nil.
func NewWithStore(cfg *config.Config, store service.MeasurementStore, summaries SummaryPublisher, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p, err := parser.New(cfg.TimeFormats)
	if err != nil {
		return nil, err
	}
	checker := service.NewChecker(store, service.Options{
		SkipMalformed:    cfg.Reconcile.SkipMalformed,
		QueriesPerSecond: cfg.Reconcile.QueriesPerSecond,
		QueryTimeout:     cfg.Reconcile.QueryTimeout,
	}, logger)

	return &App{
		parser:    p,
		checker:   checker,
		summaries: summaries,
		logger:    logger,
	}, nil
}

// Reconcile checks the export against the store and writes the report to out.
// Nothing is written to out when the run fails.
func (a *App) Reconcile(ctx context.Context, run Run, out io.Writer) (*service.Result, error) {
	runID := uuid.New().String()
	logger := a.logger.With(
		zap.String("run_id", runID),
		zap.Int("sensor_id", run.SensorID),
		zap.String("file", run.FileName),
	)
	started := time.Now()
	logger.Info("reconciliation started")

	result, err := a.checker.Check(ctx, a.parser.NewReader(run.Input, run.SensorID))
	if err != nil {
		logger.Error("reconciliation failed", zap.Error(err))
		return nil, err
	}
	tally := result.Tally
	summaryLine := tally.Report(run.FileName)

	if run.ExportPath != "" {
		if err := export.WriteMissing(run.ExportPath, result.Missing); err != nil {
			logger.Error("export failed", zap.String("path", run.ExportPath), zap.Error(err))
			return nil, fmt.Errorf("export missing rows: %w", err)
		}
		logger.Info("missing rows exported", zap.String("path", run.ExportPath), zap.Int("rows", len(result.Missing)))
	}

	if run.Report {
		for _, rec := range result.Missing {
			fmt.Fprintf(out, "missing: line %d %s %g %g\n", rec.Line, rec.Timestamp, rec.Latitude, rec.Longitude)
		}
		if tally.DuplicateRows > 0 || tally.MalformedRows > 0 {
			fmt.Fprintf(out, "%d rows are stored more than once, %d malformed rows were skipped.\n",
				tally.DuplicateRows, tally.MalformedRows)
		}
	}
	fmt.Fprintln(out, summaryLine)

	if a.summaries != nil {
		summary := redisstore.Summary{
			RunID:         runID,
			SensorID:      run.SensorID,
			File:          run.FileName,
			TotalRows:     tally.TotalRows,
			MissingRows:   tally.MissingRows,
			DuplicateRows: tally.DuplicateRows,
			MalformedRows: tally.MalformedRows,
			OK:            tally.OK(),
			Report:        summaryLine,
			FinishedAt:    time.Now().UTC(),
		}
		if err := a.summaries.Save(ctx, summary); err != nil {
			logger.Warn("failed to publish summary", zap.Error(err))
		}
	}

	logger.Info("reconciliation finished",
		zap.Int("total_rows", tally.TotalRows),
		zap.Int("missing_rows", tally.MissingRows),
		zap.Int("duplicate_rows", tally.DuplicateRows),
		zap.Int("malformed_rows", tally.MalformedRows),
		zap.Bool("ok", tally.OK()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// Close releases resources.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
