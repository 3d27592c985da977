// Package schedule triggers periodic refreshes so the snapshot follows the calendar day.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/vitals"
)

// Refresher is satisfied by *vitals.Coordinator.
type Refresher interface {
	ForceRefresh(ctx context.Context) (vitals.Outcome, error)
}

// Rollover runs ForceRefresh on a cron schedule. Overlapping runs are skipped.
type Rollover struct {
	expr      string
	refresher Refresher
	logger    logrus.FieldLogger
	cron      *cron.Cron

	mu  sync.Mutex
	ctx context.Context
}

// NewRollover parses expr (standard cron or descriptors such as @midnight) in loc.
// An empty expr or "off" yields a disabled Rollover whose Start and Stop do nothing.
func NewRollover(expr string, loc *time.Location, refresher Refresher, logger logrus.FieldLogger) (*Rollover, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if loc == nil {
		loc = time.Local
	}
	r := &Rollover{
		expr:      strings.TrimSpace(expr),
		refresher: refresher,
		logger:    logger.WithField("component", "rollover"),
	}
	if !r.Enabled() {
		return r, nil
	}

	r.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(r.logger))),
	)
	if _, err := r.cron.AddFunc(r.expr, r.run); err != nil {
		return nil, fmt.Errorf("parse rollover schedule %q: %w", r.expr, err)
	}
	return r, nil
}

// Enabled reports whether a schedule is configured.
func (r *Rollover) Enabled() bool {
	return r.expr != "" && !strings.EqualFold(r.expr, "off")
}

// Start begins scheduling. Refreshes run with ctx and are skipped once it is done.
func (r *Rollover) Start(ctx context.Context) {
	if !r.Enabled() {
		r.logger.Info("rollover disabled")
		return
	}
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.cron.Start()
	r.logger.WithField("schedule", r.expr).Info("rollover scheduled")
}

// Stop halts scheduling and waits for a running refresh to finish.
func (r *Rollover) Stop() {
	if !r.Enabled() {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *Rollover) run() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	outcome, err := r.refresher.ForceRefresh(ctx)
	entry := r.logger.WithField("outcome", outcome)
	if err != nil {
		entry.WithError(err).Warn("rollover refresh failed")
		return
	}
	entry.Info("rollover refresh completed")
}
