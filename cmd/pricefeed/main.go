package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"folio/internal/config"
	"folio/internal/logger"
	"folio/internal/pricefeed"
	"folio/internal/pricing"
)

// exitFetchErrors signals a run that recorded prices but missed some securities.
const exitFetchErrors = 2

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	code, err := run()
	if err != nil {
		logger.Get().Errorw("price feed run failed", "error", err)
		code = 1
	}
	if code != 0 {
		logger.Sync()
		os.Exit(code)
	}
}

func run() (int, error) {
	log := logger.Named("pricefeed")

	cfg, err := config.Load()
	if err != nil {
		return 0, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.PipelineAPIKey == "" {
		return 0, fmt.Errorf("PIPELINE_API_KEY is required")
	}

	httpClient := &http.Client{Timeout: cfg.ExternalTimeout}

	// Manual prices live in the API database, so the feed has no store to offer.
	source, err := pricing.New(pricing.Options{
		Provider:        cfg.PriceSource,
		SheetLocation:   cfg.PriceSheetPath,
		AlpacaAPIKey:    cfg.AlpacaAPIKey,
		AlpacaAPISecret: cfg.AlpacaAPISecret,
		HTTPClient:      httpClient,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to configure price source: %w", err)
	}

	api := pricefeed.NewClient(cfg.FolioAPIURL, cfg.PipelineAPIKey, httpClient)
	feed := pricefeed.New(api, source, cfg.FeedComputeSnapshots, log)

	result, err := feed.Run(context.Background())
	if err != nil {
		return 0, err
	}

	log.Infow("price feed run completed",
		"source", source.Name(),
		"securities_fetched", result.SecuritiesFetched,
		"prices_recorded", result.PricesRecorded,
		"snapshots_recorded", result.SnapshotsRecorded,
		"errors", len(result.Errors),
		"duration", result.Duration.String(),
	)

	for _, fetchErr := range result.Errors {
		log.Warnw("price fetch failed",
			"ticker", fetchErr.Ticker,
			"security_id", fetchErr.SecurityID,
			"error", fetchErr.Err,
		)
	}

	if len(result.Errors) > 0 {
		return exitFetchErrors, nil
	}
	return 0, nil
}
