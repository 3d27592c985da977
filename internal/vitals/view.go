package vitals

import (
	"time"

	"example.com/vitals/internal/domain"
	"example.com/vitals/internal/normalize"
)

// View is the read model handed to presentation layers.
type View struct {
	Steps              float64                  `json:"steps"`
	HeartRate          float64                  `json:"heart_rate"`
	DistanceMeters     float64                  `json:"distance_meters"`
	ActiveCalories     float64                  `json:"active_calories"`
	SleepHours         float64                  `json:"sleep_hours"`
	BloodOxygenPercent float64                  `json:"blood_oxygen_percent"`
	Display            map[string]string        `json:"display"`
	Loading            bool                     `json:"loading"`
	Error              *string                  `json:"error"`
	Granted            bool                     `json:"granted"`
	Permissions        []domain.PermissionGrant `json:"permissions"`
	Status             domain.FetchStatus       `json:"status"`
	SnapshotID         string                   `json:"snapshot_id,omitempty"`
	ReferenceDate      string                   `json:"reference_date,omitempty"`
	CapturedAt         *time.Time               `json:"captured_at,omitempty"`
}

// View assembles the current read model.
func (c *Coordinator) View() View {
	c.mu.Lock()
	state := c.state
	snapshot := c.snapshot
	c.mu.Unlock()

	grants := c.gate.Granted()
	view := View{
		Steps:              snapshot.Steps,
		HeartRate:          snapshot.HeartRate,
		DistanceMeters:     snapshot.DistanceMeters,
		ActiveCalories:     snapshot.ActiveCalories,
		SleepHours:         snapshot.SleepHours,
		BloodOxygenPercent: snapshot.BloodOxygenPercent,
		Display:            normalize.DisplayValues(snapshot),
		Loading:            state.Status == domain.FetchFetching,
		Granted:            len(grants) > 0,
		Permissions:        grants,
		Status:             state.Status,
		SnapshotID:         snapshot.ID,
	}
	if state.Status == domain.FetchFailed && state.LastError != nil {
		msg := ClassifyError(state.LastError)
		view.Error = &msg
	}
	if !snapshot.CapturedAt.IsZero() {
		captured := snapshot.CapturedAt
		view.CapturedAt = &captured
		view.ReferenceDate = snapshot.ReferenceDate.Format("2006-01-02")
	}
	return view
}
