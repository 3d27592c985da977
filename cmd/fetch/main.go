// Command fetch runs one acquisition cycle for a calendar day and prints the resulting view.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/config"
	"example.com/vitals/internal/observability"
	"example.com/vitals/internal/pipeline"
	"example.com/vitals/internal/source"
	"example.com/vitals/internal/vitals"
)

const dateLayout = "2006-01-02"

func main() {
	date := flag.String("date", "", "calendar day to fetch (YYYY-MM-DD), defaults to today")
	flag.Parse()

	if err := run(*date); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(date string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	logger.SetOutput(os.Stderr)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	reference := time.Now().In(loc)
	if date != "" {
		day, err := time.ParseInLocation(dateLayout, date, loc)
		if err != nil {
			return fmt.Errorf("parse -date: %w", err)
		}
		reference = day.Add(12 * time.Hour)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var src source.Source
	if cfg.SourceURL != "" {
		src = source.NewHTTPSource(source.HTTPConfig{
			BaseURL:       cfg.SourceURL,
			Timeout:       cfg.SourceTimeout,
			RatePerSecond: cfg.SourceRatePerSecond,
			Burst:         cfg.SourceBurst,
			Logger:        logger,
		})
	} else {
		src = source.NewDemoSource(reference, loc)
	}

	coordinator := vitals.NewCoordinator(src,
		vitals.WithLogger(logger),
		vitals.WithLocation(loc),
		vitals.WithClock(func() time.Time { return reference }),
		vitals.WithInterStepDelay(cfg.InterStepDelay),
		vitals.WithPipelineOptions(
			pipeline.WithMaxAttempts(cfg.RetryMaxAttempts),
			pipeline.WithBaseDelay(cfg.RetryBaseDelay),
		),
	)
	if err := coordinator.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}

	outcome, fetchErr := coordinator.Fetch(ctx, false)
	logger.WithFields(logrus.Fields{"outcome": outcome, "date": reference.Format(dateLayout)}).Info("fetch finished")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(coordinator.View()); err != nil {
		return err
	}

	switch {
	case fetchErr != nil:
		return fmt.Errorf("%s (%w)", vitals.ClassifyError(fetchErr), fetchErr)
	case outcome == vitals.OutcomePermissionNeeded:
		return fmt.Errorf("no health record permissions granted")
	}
	return nil
}
