// Package permission tracks which capability grants the current session holds.
package permission

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/domain"
)

// Source is the subset of the capability source the gate needs.
type Source interface {
	Initialize(ctx context.Context) error
	RequestPermission(ctx context.Context, requested []domain.PermissionGrant) ([]domain.PermissionGrant, error)
	OpenSettings(ctx context.Context) error
}

// Option configures optional behaviour for the Gate.
type Option func(*Gate)

// WithLogger overrides the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// Gate holds the current grant set. The set is replaced wholesale on every RequestPermissions call.
type Gate struct {
	source Source
	logger logrus.FieldLogger

	mu          sync.RWMutex
	initialized bool
	grants      map[domain.RecordType]domain.PermissionGrant
}

// NewGate constructs a Gate over source.
func NewGate(source Source, opts ...Option) *Gate {
	g := &Gate{
		source: source,
		logger: logrus.StandardLogger(),
		grants: map[domain.RecordType]domain.PermissionGrant{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithField("component", "permission_gate")
	return g
}

// Initialize prepares the source. Once it has succeeded, later calls are no-ops.
func (g *Gate) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return nil
	}
	if err := g.source.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize source: %w", err)
	}
	g.initialized = true
	return nil
}

// RequestPermissions asks for read access to every type in one call and returns the granted subset.
func (g *Gate) RequestPermissions(ctx context.Context, types []domain.RecordType) ([]domain.PermissionGrant, error) {
	granted, err := g.source.RequestPermission(ctx, domain.ReadGrants(types))
	if err != nil {
		return nil, fmt.Errorf("request permissions: %w", err)
	}

	next := make(map[domain.RecordType]domain.PermissionGrant, len(granted))
	out := make([]domain.PermissionGrant, 0, len(granted))
	for _, grant := range granted {
		if grant.AccessType != domain.AccessRead {
			continue
		}
		if _, dup := next[grant.RecordType]; dup {
			continue
		}
		next[grant.RecordType] = grant
		out = append(out, grant)
	}

	g.mu.Lock()
	g.grants = next
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"requested": len(types),
		"granted":   len(out),
	}).Info("permissions updated")
	return out, nil
}

// HasPermission reports whether read access to t is currently granted.
func (g *Gate) HasPermission(t domain.RecordType) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.grants[t]
	return ok
}

// Granted returns a copy of the current grant set in fetch order.
func (g *Gate) Granted() []domain.PermissionGrant {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.PermissionGrant, 0, len(g.grants))
	for _, t := range domain.FetchOrder {
		if grant, ok := g.grants[t]; ok {
			out = append(out, grant)
		}
	}
	return out
}

// OpenSettings hands the user over to the source's capability settings.
func (g *Gate) OpenSettings(ctx context.Context) error {
	return g.source.OpenSettings(ctx)
}
