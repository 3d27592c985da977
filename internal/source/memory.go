package source

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"example.com/vitals/internal/domain"
)

// MemorySource is an in-process Source seeded with records. It backs local development when no
// bridge URL is configured and doubles as a fake in tests.
type MemorySource struct {
	mu           sync.Mutex
	available    bool
	grantable    map[domain.RecordType]bool
	records      map[domain.RecordType][]json.RawMessage
	failures     map[domain.RecordType][]error
	reads        []domain.RecordType
	settingsHits int
}

// NewMemorySource creates an available source that grants every record type.
func NewMemorySource() *MemorySource {
	grantable := make(map[domain.RecordType]bool, len(domain.FetchOrder))
	for _, t := range domain.FetchOrder {
		grantable[t] = true
	}
	return &MemorySource{
		available: true,
		grantable: grantable,
		records:   make(map[domain.RecordType][]json.RawMessage),
		failures:  make(map[domain.RecordType][]error),
	}
}

// SetAvailable toggles whether Initialize succeeds.
func (m *MemorySource) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// SetGrantable restricts which record types RequestPermission will grant.
func (m *MemorySource) SetGrantable(types ...domain.RecordType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantable = make(map[domain.RecordType]bool, len(types))
	for _, t := range types {
		m.grantable[t] = true
	}
}

// Add appends raw JSON records for a record type.
func (m *MemorySource) Add(recordType domain.RecordType, records ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.records[recordType] = append(m.records[recordType], json.RawMessage(rec))
	}
}

// FailNext queues errors returned by the next reads of recordType, in order.
func (m *MemorySource) FailNext(recordType domain.RecordType, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[recordType] = append(m.failures[recordType], errs...)
}

// Reads returns the record types read so far, in call order.
func (m *MemorySource) Reads() []domain.RecordType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RecordType, len(m.reads))
	copy(out, m.reads)
	return out
}

// SettingsOpened reports how many times OpenSettings was called.
func (m *MemorySource) SettingsOpened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsHits
}

// Initialize fails with domain.ErrSourceUnavailable when the source is marked unavailable.
func (m *MemorySource) Initialize(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return domain.ErrSourceUnavailable
	}
	return nil
}

// RequestPermission grants the requested tuples that are grantable.
func (m *MemorySource) RequestPermission(_ context.Context, requested []domain.PermissionGrant) ([]domain.PermissionGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	granted := make([]domain.PermissionGrant, 0, len(requested))
	for _, req := range requested {
		if req.AccessType == domain.AccessRead && m.grantable[req.RecordType] {
			granted = append(granted, req)
		}
	}
	return granted, nil
}

// ReadRecords returns the seeded records whose start time falls inside filter.
func (m *MemorySource) ReadRecords(ctx context.Context, recordType domain.RecordType, filter domain.TimeRangeFilter) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, recordType)

	if queued := m.failures[recordType]; len(queued) > 0 {
		m.failures[recordType] = queued[1:]
		if queued[0] != nil {
			return nil, queued[0]
		}
	}

	out := make([]json.RawMessage, 0, len(m.records[recordType]))
	for _, rec := range m.records[recordType] {
		if inWindow(rec, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// OpenSettings records the call.
func (m *MemorySource) OpenSettings(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settingsHits++
	return nil
}

// inWindow keeps records without a parsable timestamp so seeded fixtures stay simple.
func inWindow(rec json.RawMessage, filter domain.TimeRangeFilter) bool {
	value := gjson.GetBytes(rec, "startTime")
	if !value.Exists() {
		value = gjson.GetBytes(rec, "time")
	}
	if !value.Exists() {
		return true
	}
	ts, err := time.Parse(time.RFC3339Nano, value.String())
	if err != nil {
		return true
	}
	return filter.Contains(ts)
}
