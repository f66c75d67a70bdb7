package pricefeed

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"folio/internal/pricing"
)

var errNonPositive = errors.New("source returned a non-positive price")

// PipelineAPI is the subset of the pipeline API the feed needs.
type PipelineAPI interface {
	ListSecurities(ctx context.Context) ([]pricing.Security, error)
	RecordPrices(ctx context.Context, prices []PriceEntry) (int, error)
	ComputeSnapshots(ctx context.Context, recordedAt time.Time) (int, error)
}

// Result is the outcome of one feed run.
type Result struct {
	SecuritiesFetched int
	PricesRecorded    int
	SnapshotsRecorded int
	Errors            []pricing.FetchError
	Duration          time.Duration
}

// Feed quotes refreshable securities and records the prices.
type Feed struct {
	api              PipelineAPI
	source           pricing.Source
	computeSnapshots bool
	logger           *zap.SugaredLogger
	now              func() time.Time
}

// New creates a Feed. When computeSnapshots is set, every run that records
// prices also triggers a snapshot for every user.
func New(api PipelineAPI, source pricing.Source, computeSnapshots bool, logger *zap.SugaredLogger) *Feed {
	return &Feed{
		api:              api,
		source:           source,
		computeSnapshots: computeSnapshots,
		logger:           logger,
		now:              time.Now,
	}
}

// Run executes a single cycle. Per-security fetch failures are collected in
// the result; only API failures abort the run.
func (f *Feed) Run(ctx context.Context) (*Result, error) {
	start := f.now()
	result := &Result{}

	securities, err := f.api.ListSecurities(ctx)
	if err != nil {
		return nil, err
	}
	result.SecuritiesFetched = len(securities)

	if len(securities) == 0 {
		f.logger.Info("no refreshable securities, nothing to do")
		result.Duration = f.now().Sub(start)
		return result, nil
	}

	f.logger.Infow("fetching prices", "source", f.source.Name(), "count", len(securities))
	quotes, fetchErrors := f.source.FetchPrices(ctx, securities)
	result.Errors = fetchErrors

	if len(quotes) == 0 {
		f.logger.Info("no prices fetched")
		result.Duration = f.now().Sub(start)
		return result, nil
	}

	entries := make([]PriceEntry, 0, len(quotes))
	for _, q := range quotes {
		if !q.Price.IsPositive() {
			result.Errors = append(result.Errors, pricing.FetchError{SecurityID: q.SecurityID, Ticker: q.Ticker, Err: errNonPositive})
			continue
		}
		entries = append(entries, PriceEntry{
			SecurityID: q.SecurityID,
			Price:      q.Price,
			Source:     f.source.Name(),
			RecordedAt: q.RecordedAt,
		})
	}
	if len(entries) == 0 {
		result.Duration = f.now().Sub(start)
		return result, nil
	}

	recorded, err := f.api.RecordPrices(ctx, entries)
	if err != nil {
		return nil, err
	}
	result.PricesRecorded = recorded

	if f.computeSnapshots {
		snapshots, err := f.api.ComputeSnapshots(ctx, f.now())
		if err != nil {
			f.logger.Warnw("failed to compute snapshots", "error", err)
		} else {
			result.SnapshotsRecorded = snapshots
		}
	}

	result.Duration = f.now().Sub(start)
	return result, nil
}
