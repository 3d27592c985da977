package source

import (
	"fmt"
	"time"

	"example.com/vitals/internal/domain"
)

// NewDemoSource returns a MemorySource seeded with one plausible day of records on day's
// calendar date in loc. Used when no bridge URL is configured.
func NewDemoSource(day time.Time, loc *time.Location) *MemorySource {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.In(loc).Date()
	at := func(hour, minute int) string {
		return time.Date(y, m, d, hour, minute, 0, 0, loc).UTC().Format(time.RFC3339)
	}

	src := NewMemorySource()
	src.Add(domain.RecordSteps,
		fmt.Sprintf(`{"startTime":%q,"endTime":%q,"count":3200}`, at(8, 0), at(9, 0)),
		fmt.Sprintf(`{"startTime":%q,"endTime":%q,"count":4150}`, at(12, 0), at(13, 0)),
	)
	src.Add(domain.RecordHeartRate,
		fmt.Sprintf(`{"startTime":%q,"endTime":%q,"samples":[{"time":%q,"beatsPerMinute":64},{"time":%q,"beatsPerMinute":71}]}`,
			at(8, 0), at(8, 30), at(8, 0), at(8, 30)),
	)
	src.Add(domain.RecordDistance,
		fmt.Sprintf(`{"startTime":%q,"endTime":%q,"distance":{"inMeters":5420}}`, at(8, 0), at(13, 0)),
	)
	src.Add(domain.RecordActiveCaloriesBurned,
		fmt.Sprintf(`{"startTime":%q,"endTime":%q,"energy":{"inKilocalories":412}}`, at(8, 0), at(13, 0)),
	)
	src.Add(domain.RecordSleepSession,
		fmt.Sprintf(`{"startTime":%q,"endTime":%q}`, at(0, 15), at(7, 0)),
	)
	src.Add(domain.RecordOxygenSaturation,
		fmt.Sprintf(`{"time":%q,"percentage":97}`, at(7, 5)),
	)
	return src
}
