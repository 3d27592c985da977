// Package vitals coordinates fetch cycles over the capability source and exposes the resulting
// snapshot to callers.
package vitals

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/domain"
	"example.com/vitals/internal/normalize"
	"example.com/vitals/internal/observability"
	"example.com/vitals/internal/permission"
	"example.com/vitals/internal/pipeline"
	"example.com/vitals/internal/reader"
	"example.com/vitals/internal/source"
)

// DefaultInterStepDelay is the idle time between two consecutive reads of a cycle.
const DefaultInterStepDelay = 500 * time.Millisecond

const (
	// MessageQuotaExceeded is shown when reads still hit the rate ceiling after every retry.
	MessageQuotaExceeded = "Rate limit exceeded. Please wait a moment and try again."
	// MessageUnavailable is shown for every other fetch failure.
	MessageUnavailable = "Unable to load health data. Please try again."
)

// Outcome describes what a Fetch call did.
type Outcome string

const (
	OutcomeFetched          Outcome = "fetched"
	OutcomeInFlight         Outcome = "in_flight"
	OutcomeAlreadyFetched   Outcome = "already_fetched"
	OutcomePermissionNeeded Outcome = "permission_needed"
	OutcomeFailed           Outcome = "failed"
)

// SnapshotRecorder receives every snapshot produced by a successful cycle.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, snapshot domain.VitalsSnapshot) error
}

// Option configures optional behaviour for the Coordinator.
type Option func(*Coordinator)

// WithLogger overrides the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithClock overrides the time source used to pick the reference day.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the time zone that defines the calendar day.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithInterStepDelay overrides DefaultInterStepDelay.
func WithInterStepDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.interStepDelay = d
	}
}

// WithPipelineOptions passes retry and sequencing options through to every cycle.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(c *Coordinator) {
		c.pipelineOpts = append(c.pipelineOpts, opts...)
	}
}

// WithRecorder hands successful snapshots to r.
func WithRecorder(r SnapshotRecorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// Coordinator owns the fetch state machine for one session:
// Idle -> Fetching -> Succeeded | Failed.
type Coordinator struct {
	gate   *permission.Gate
	reader *reader.Reader

	now            func() time.Time
	loc            *time.Location
	interStepDelay time.Duration
	pipelineOpts   []pipeline.Option
	recorder       SnapshotRecorder
	logger         logrus.FieldLogger

	mu       sync.Mutex
	state    domain.FetchState
	snapshot domain.VitalsSnapshot
}

// NewCoordinator constructs a Coordinator reading from src.
func NewCoordinator(src source.Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		now:            time.Now,
		loc:            time.Local,
		interStepDelay: DefaultInterStepDelay,
		logger:         logrus.StandardLogger(),
		state:          domain.FetchState{Status: domain.FetchIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.logger
	c.logger = base.WithField("component", "fetch_coordinator")
	c.pipelineOpts = append([]pipeline.Option{pipeline.WithLogger(base.WithField("component", "pipeline"))}, c.pipelineOpts...)
	c.gate = permission.NewGate(src, permission.WithLogger(base))
	c.reader = reader.NewReader(c.gate, src, reader.WithLogger(base))
	return c
}

// Initialize prepares the source and requests read access to every record type.
func (c *Coordinator) Initialize(ctx context.Context) error {
	_, err := c.RequestPermissions(ctx)
	return err
}

// RequestPermissions re-requests read access to every record type and returns the granted subset.
// The source is initialized first if an earlier attempt failed.
func (c *Coordinator) RequestPermissions(ctx context.Context) ([]domain.PermissionGrant, error) {
	if err := c.gate.Initialize(ctx); err != nil {
		c.logger.WithError(err).Error("source initialization failed")
		return nil, err
	}
	granted, err := c.gate.RequestPermissions(ctx, domain.FetchOrder)
	if err != nil {
		c.logger.WithError(err).Error("permission request failed")
		return nil, err
	}
	return granted, nil
}

// OpenSettings hands the user over to the source's permission settings.
func (c *Coordinator) OpenSettings(ctx context.Context) error {
	return c.gate.OpenSettings(ctx)
}

// Fetch runs one cycle unless a cycle is already running, a snapshot already exists and
// forceRefresh is false, or no grant is held. A failed cycle keeps the previous snapshot.
func (c *Coordinator) Fetch(ctx context.Context, forceRefresh bool) (Outcome, error) {
	c.mu.Lock()
	switch {
	case c.state.Status == domain.FetchFetching:
		c.mu.Unlock()
		return c.finish(OutcomeInFlight, nil)
	case c.state.HasFetchedOnce && !forceRefresh:
		c.mu.Unlock()
		return c.finish(OutcomeAlreadyFetched, nil)
	case len(c.gate.Granted()) == 0:
		c.mu.Unlock()
		c.logger.Warn("no permissions granted, fetch skipped")
		return c.finish(OutcomePermissionNeeded, nil)
	}
	c.state.Status = domain.FetchFetching
	c.state.LastError = nil
	c.mu.Unlock()

	cycleID := uuid.NewString()
	logger := c.logger.WithField("cycle_id", cycleID)
	filter := domain.DayRange(c.now(), c.loc)
	logger.WithField("day", filter.StartTime.Format("2006-01-02")).Info("fetch cycle started")

	started := time.Now()
	batches, err := pipeline.RunSequential(ctx, c.steps(filter), c.interStepDelay, c.pipelineOpts...)
	observability.ObserveFetchDuration(time.Since(started))

	if err != nil {
		c.mu.Lock()
		c.state.Status = domain.FetchFailed
		c.state.LastError = err
		c.mu.Unlock()
		logger.WithError(err).Error("fetch cycle failed")
		return c.finish(OutcomeFailed, err)
	}

	snapshot := normalize.Build(batches)
	snapshot.ID = cycleID
	snapshot.ReferenceDate = filter.StartTime
	snapshot.CapturedAt = c.now().UTC()

	c.mu.Lock()
	c.snapshot = snapshot
	c.state.Status = domain.FetchSucceeded
	c.state.HasFetchedOnce = true
	c.mu.Unlock()

	observability.RecordSnapshot(snapshot.CapturedAt)
	logger.Info("fetch cycle succeeded")
	c.record(ctx, logger, snapshot)
	return c.finish(OutcomeFetched, nil)
}

// ForceRefresh clears the fetched-once marker and fetches again.
func (c *Coordinator) ForceRefresh(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	c.state.HasFetchedOnce = false
	c.mu.Unlock()
	return c.Fetch(ctx, true)
}

// State returns a copy of the fetch state.
func (c *Coordinator) State() domain.FetchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the most recent successful snapshot, or the zero snapshot.
func (c *Coordinator) Snapshot() domain.VitalsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Granted returns the grants currently held.
func (c *Coordinator) Granted() []domain.PermissionGrant {
	return c.gate.Granted()
}

func (c *Coordinator) steps(filter domain.TimeRangeFilter) []pipeline.Step[domain.RecordBatch] {
	steps := make([]pipeline.Step[domain.RecordBatch], 0, len(domain.FetchOrder))
	for _, t := range domain.FetchOrder {
		t := t
		steps = append(steps, func(ctx context.Context) (domain.RecordBatch, error) {
			return pipeline.Retry(ctx, func(ctx context.Context) (domain.RecordBatch, error) {
				return c.reader.Read(ctx, t, filter)
			}, c.pipelineOpts...)
		})
	}
	return steps
}

func (c *Coordinator) record(ctx context.Context, logger logrus.FieldLogger, snapshot domain.VitalsSnapshot) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordSnapshot(ctx, snapshot); err != nil {
		observability.RecordRecorderError()
		logger.WithError(err).Warn("snapshot not recorded")
	}
}

func (c *Coordinator) finish(outcome Outcome, err error) (Outcome, error) {
	observability.RecordFetchOutcome(string(outcome))
	return outcome, err
}

// ClassifyError maps a fetch failure to the message shown to the user. Nil maps to "".
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsQuotaExceeded(err):
		return MessageQuotaExceeded
	default:
		return MessageUnavailable
	}
}
