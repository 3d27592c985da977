// Package events defines the event payloads the vitals service publishes.
package events

import "time"

// SnapshotCapturedType is the outbox event type for a newly recorded snapshot.
const SnapshotCapturedType = "vitals.snapshot_captured"

// VitalsSnapshotCaptured is emitted once per successful fetch cycle that was recorded.
type VitalsSnapshotCaptured struct {
	SnapshotID         string    `json:"snapshot_id"`
	TenantID           string    `json:"tenant_id"`
	UserID             string    `json:"user_id"`
	ReferenceDate      string    `json:"reference_date"`
	CapturedAt         time.Time `json:"captured_at"`
	Steps              float64   `json:"steps"`
	HeartRate          float64   `json:"heart_rate"`
	DistanceMeters     float64   `json:"distance_meters"`
	ActiveCalories     float64   `json:"active_calories"`
	SleepHours         float64   `json:"sleep_hours"`
	BloodOxygenPercent float64   `json:"blood_oxygen_percent"`
}

// Route describes where an event type is published and which JSON schema guards it.
type Route struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

// Catalog maps outbox event types to their routing metadata.
var Catalog = map[string]Route{
	SnapshotCapturedType: {
		Topic:         "vitals_snapshots",
		SchemaSubject: "vitals_snapshots-value",
		Schema:        snapshotCapturedSchema,
	},
}

// Lookup returns the route for eventType.
func Lookup(eventType string) (Route, bool) {
	route, ok := Catalog[eventType]
	return route, ok
}

const snapshotCapturedSchema = `{
  "type": "object",
  "title": "VitalsSnapshotCaptured",
  "properties": {
    "snapshot_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "reference_date": {"type": "string", "format": "date"},
    "captured_at": {"type": "string", "format": "date-time"},
    "steps": {"type": "number"},
    "heart_rate": {"type": "number"},
    "distance_meters": {"type": "number"},
    "active_calories": {"type": "number"},
    "sleep_hours": {"type": "number"},
    "blood_oxygen_percent": {"type": "number"}
  },
  "required": ["snapshot_id", "tenant_id", "user_id", "reference_date", "captured_at", "steps", "heart_rate", "distance_meters", "active_calories", "sleep_hours", "blood_oxygen_percent"],
  "additionalProperties": false
}`
