// Package domain defines the record, permission and snapshot types shared by the vitals pipeline.
package domain

import (
	"encoding/json"
	"time"
)

// RecordType identifies one physiological data category exposed by the capability source.
type RecordType string

const (
	RecordSteps                RecordType = "Steps"
	RecordHeartRate            RecordType = "HeartRate"
	RecordDistance             RecordType = "Distance"
	RecordActiveCaloriesBurned RecordType = "ActiveCaloriesBurned"
	RecordSleepSession         RecordType = "SleepSession"
	RecordOxygenSaturation     RecordType = "OxygenSaturation"
)

// FetchOrder is the fixed order in which a fetch cycle reads record types.
var FetchOrder = []RecordType{
	RecordSteps,
	RecordHeartRate,
	RecordDistance,
	RecordActiveCaloriesBurned,
	RecordSleepSession,
	RecordOxygenSaturation,
}

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	for _, known := range FetchOrder {
		if t == known {
			return true
		}
	}
	return false
}

// AccessType is the kind of access a capability grant allows.
type AccessType string

// AccessRead is the only access type the pipeline requests.
const AccessRead AccessType = "read"

// PermissionGrant is a single capability tuple obtained from the source.
type PermissionGrant struct {
	AccessType AccessType `json:"accessType"`
	RecordType RecordType `json:"recordType"`
}

// ReadGrants builds read-access permission requests for the provided record types.
func ReadGrants(types []RecordType) []PermissionGrant {
	out := make([]PermissionGrant, 0, len(types))
	for _, t := range types {
		out = append(out, PermissionGrant{AccessType: AccessRead, RecordType: t})
	}
	return out
}

// isoMillis matches the ISO-8601 form the capability source expects.
const isoMillis = "2006-01-02T15:04:05.000Z"

// TimeRangeFilter selects records whose timestamps fall between StartTime and EndTime.
type TimeRangeFilter struct {
	Operator  string
	StartTime time.Time
	EndTime   time.Time
}

// DayRange covers 00:00:00.000 to 23:59:59.999 of the reference date in loc.
func DayRange(reference time.Time, loc *time.Location) TimeRangeFilter {
	if loc == nil {
		loc = time.Local
	}
	local := reference.In(loc)
	y, m, d := local.Date()
	return TimeRangeFilter{
		Operator:  "between",
		StartTime: time.Date(y, m, d, 0, 0, 0, 0, loc),
		EndTime:   time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc),
	}
}

type timeRangeWire struct {
	Operator  string `json:"operator"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// MarshalJSON renders the filter in the source's wire shape.
func (f TimeRangeFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeRangeWire{
		Operator:  f.Operator,
		StartTime: f.StartTime.UTC().Format(isoMillis),
		EndTime:   f.EndTime.UTC().Format(isoMillis),
	})
}

// UnmarshalJSON parses the wire shape back into a filter.
func (f *TimeRangeFilter) UnmarshalJSON(data []byte) error {
	var wire timeRangeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339Nano, wire.StartTime)
	if err != nil {
		return err
	}
	end, err := time.Parse(time.RFC3339Nano, wire.EndTime)
	if err != nil {
		return err
	}
	*f = TimeRangeFilter{Operator: wire.Operator, StartTime: start, EndTime: end}
	return nil
}

// Contains reports whether ts falls inside the filter window, inclusive on both ends.
func (f TimeRangeFilter) Contains(ts time.Time) bool {
	return !ts.Before(f.StartTime) && !ts.After(f.EndTime)
}

// RecordBatch is the ordered set of raw records returned for one record type.
// Records stay in the source's JSON form until a normalizer decodes them.
type RecordBatch struct {
	Type    RecordType
	Records []json.RawMessage
}

// EmptyBatch returns a batch with no records for t.
func EmptyBatch(t RecordType) RecordBatch {
	return RecordBatch{Type: t, Records: []json.RawMessage{}}
}

// Len returns the number of records in the batch.
func (b RecordBatch) Len() int {
	return len(b.Records)
}

// VitalsSnapshot is the complete set of normalized vitals from one successful fetch cycle.
type VitalsSnapshot struct {
	ID                 string    `json:"id,omitempty"`
	ReferenceDate      time.Time `json:"reference_date"`
	CapturedAt         time.Time `json:"captured_at"`
	Steps              float64   `json:"steps"`
	HeartRate          float64   `json:"heart_rate"`
	DistanceMeters     float64   `json:"distance_meters"`
	ActiveCalories     float64   `json:"active_calories"`
	SleepHours         float64   `json:"sleep_hours"`
	BloodOxygenPercent float64   `json:"blood_oxygen_percent"`
}

// FetchStatus is the coordinator's position in its state machine.
type FetchStatus string

const (
	FetchIdle      FetchStatus = "idle"
	FetchFetching  FetchStatus = "fetching"
	FetchSucceeded FetchStatus = "succeeded"
	FetchFailed    FetchStatus = "failed"
)

// FetchState captures the coordinator's cross-call state.
type FetchState struct {
	Status         FetchStatus
	HasFetchedOnce bool
	LastError      error
}

// SnapshotCursor marks the last snapshot of a history page.
type SnapshotCursor struct {
	CapturedAt time.Time
	ID         string
}

// Before reports whether s sorts after the cursor in most-recent-first order.
func (c SnapshotCursor) Before(s VitalsSnapshot) bool {
	if s.CapturedAt.Equal(c.CapturedAt) {
		return s.ID < c.ID
	}
	return s.CapturedAt.Before(c.CapturedAt)
}
