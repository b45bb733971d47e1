package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"expolis/backend/services/reconcile-service/internal/models"
	"expolis/backend/services/reconcile-service/internal/parser"
)

// ErrStore marks failures of the measurement store, as opposed to bad input.
var ErrStore = errors.New("measurement store")

// MeasurementStore answers existence queries by composite key.
type MeasurementStore interface {
	CountMatching(ctx context.Context, key models.MeasurementKey) (int64, error)
}

// Rows is a stream of parsed export rows, see parser.Reader.
type Rows interface {
	Next() bool
	Row() parser.Row
	Err() error
}

// Options tune a Checker.
type Options struct {
	// SkipMalformed counts malformed rows instead of aborting the run on the first one.
	SkipMalformed bool
	// QueriesPerSecond caps the lookup rate; zero or less means unlimited.
	QueriesPerSecond float64
	// QueryTimeout bounds every lookup; zero means wait for the store.
	QueryTimeout time.Duration
}

// Result is the outcome of a completed run.
type Result struct {
	Tally   Tally
	Missing []models.CandidateRecord
}

// Checker verifies that every record of an export is persisted.
type Checker struct {
	store   MeasurementStore
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewChecker builds checker.
func NewChecker(store MeasurementStore, opts Options, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.QueriesPerSecond > 0 {
		limit = rate.Limit(opts.QueriesPerSecond)
	}
	return &Checker{
		store:   store,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Check looks every row up in the store, one query per row in input order.
// A malformed row aborts the run unless SkipMalformed is set; store failures
// always abort and wrap ErrStore.
func (c *Checker) Check(ctx context.Context, rows Rows) (*Result, error) {
	result := &Result{}

	for rows.Next() {
		row := rows.Row()
		if row.Malformed != nil {
			if !c.opts.SkipMalformed {
				return nil, row.Malformed
			}
			result.Tally.MalformedRows++
			c.logger.Warn("skipping malformed row", zap.Int("line", row.Malformed.Line), zap.Error(row.Malformed))
			continue
		}

		count, err := c.lookup(ctx, row.Record)
		if err != nil {
			return nil, err
		}

		result.Tally.TotalRows++
		switch {
		case count == 0:
			result.Tally.MissingRows++
			result.Missing = append(result.Missing, row.Record)
			c.logger.Debug("row missing from store",
				zap.Int("line", row.Record.Line),
				zap.String("when", row.Record.Timestamp),
				zap.Float64("latitude", row.Record.Latitude),
				zap.Float64("longitude", row.Record.Longitude),
			)
		case count > 1:
			result.Tally.DuplicateRows++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// lookup returns the run context's own error when the run was cancelled, so
// an interrupt is not reported as a store failure. A per query timeout is.
func (c *Checker) lookup(ctx context.Context, record models.CandidateRecord) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, c.lookupError(ctx, record, err)
	}

	queryCtx := ctx
	if c.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, c.opts.QueryTimeout)
		defer cancel()
	}

	count, err := c.store.CountMatching(queryCtx, record.Key())
	if err != nil {
		return 0, c.lookupError(ctx, record, err)
	}
	return count, nil
}

func (c *Checker) lookupError(ctx context.Context, record models.CandidateRecord, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("line %d: %w", record.Line, ctxErr)
	}
	return fmt.Errorf("%w: line %d: %w", ErrStore, record.Line, err)
}
