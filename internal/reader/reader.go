// Package reader reads single record types from the capability source behind the permission gate.
package reader

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/domain"
	"example.com/vitals/internal/observability"
)

// Permissions answers whether a record type may be read.
type Permissions interface {
	HasPermission(t domain.RecordType) bool
}

// RecordSource reads raw records from the capability source.
type RecordSource interface {
	ReadRecords(ctx context.Context, recordType domain.RecordType, filter domain.TimeRangeFilter) ([]json.RawMessage, error)
}

// Option configures optional behaviour for the Reader.
type Option func(*Reader)

// WithLogger overrides the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// Reader reads one record type per call.
type Reader struct {
	perms  Permissions
	source RecordSource
	logger logrus.FieldLogger
}

// NewReader constructs a Reader.
func NewReader(perms Permissions, source RecordSource, opts ...Option) *Reader {
	r := &Reader{
		perms:  perms,
		source: source,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithField("component", "record_reader")
	return r
}

// Read returns the records of t inside filter. A missing grant yields an empty batch, not an error.
func (r *Reader) Read(ctx context.Context, t domain.RecordType, filter domain.TimeRangeFilter) (domain.RecordBatch, error) {
	if !r.perms.HasPermission(t) {
		r.logger.WithField("record_type", t).Debug("read skipped, permission not granted")
		observability.RecordRead(string(t), "skipped")
		return domain.EmptyBatch(t), nil
	}

	records, err := r.source.ReadRecords(ctx, t, filter)
	if err != nil {
		result := "error"
		if domain.IsQuotaExceeded(err) {
			result = "quota"
		}
		observability.RecordRead(string(t), result)
		return domain.RecordBatch{}, err
	}

	if records == nil {
		records = []json.RawMessage{}
	}
	observability.RecordRead(string(t), "ok")
	r.logger.WithFields(logrus.Fields{
		"record_type": t,
		"records":     len(records),
	}).Debug("records read")
	return domain.RecordBatch{Type: t, Records: records}, nil
}
