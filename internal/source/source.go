// Package source provides clients for the capability-gated physiological data source.
package source

import (
	"context"
	"encoding/json"

	"example.com/vitals/internal/domain"
)

// Source is the external collaborator the pipeline reads from. Implementations must return
// *domain.QuotaExceededError for rate-limit rejections and *domain.TransportError for other
// request failures.
type Source interface {
	Initialize(ctx context.Context) error
	RequestPermission(ctx context.Context, requested []domain.PermissionGrant) ([]domain.PermissionGrant, error)
	ReadRecords(ctx context.Context, recordType domain.RecordType, filter domain.TimeRangeFilter) ([]json.RawMessage, error)
	OpenSettings(ctx context.Context) error
}
