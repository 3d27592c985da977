package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/vitals/internal/domain"
)

func raw(records ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		out = append(out, json.RawMessage(r))
	}
	return out
}

func vital(t *testing.T, field string) Vital {
	t.Helper()
	for _, v := range Table {
		if v.Field == field {
			return v
		}
	}
	t.Fatalf("no vital %q", field)
	return Vital{}
}

func TestEmptyBatchesAggregateToZero(t *testing.T) {
	for _, v := range Table {
		require.Zero(t, v.Aggregate(nil), v.Field)
		require.Zero(t, v.Aggregate(raw()), v.Field)
	}
}

func TestStepsSumAndDisplay(t *testing.T) {
	steps := Steps(raw(`{"count":500}`, `{"count":1200}`))
	require.Equal(t, 1700.0, steps)
	require.Equal(t, "1,700", vital(t, "steps").Display(steps))
	require.Equal(t, "0", vital(t, "steps").Display(0))
}

func TestHeartRateFallback(t *testing.T) {
	hr := HeartRate(raw())
	require.Zero(t, hr)
	require.Equal(t, MissingValue, vital(t, "heart_rate").Display(hr))
}

func TestHeartRateRoundedMeanAcrossSamples(t *testing.T) {
	hr := HeartRate(raw(
		`{"samples":[{"time":"2025-05-02T08:00:00Z","beatsPerMinute":70},{"time":"2025-05-02T08:01:00Z","beatsPerMinute":71}]}`,
		`{"samples":[{"time":"2025-05-02T09:00:00Z","beatsPerMinute":75}]}`,
	))
	// (70+71+75)/3 = 72
	require.Equal(t, 72.0, hr)
	require.Equal(t, "72 bpm", vital(t, "heart_rate").Display(hr))

	require.Equal(t, 61.0, HeartRate(raw(`{"beatsPerMinute":60}`, `{"beatsPerMinute":61.5}`)))
}

func TestHeartRateSkipsNonNumericSamples(t *testing.T) {
	require.Equal(t, 80.0, HeartRate(raw(`{"samples":[{"beatsPerMinute":80},{"beatsPerMinute":null}]}`)))
	require.Equal(t, 80.0, HeartRate(raw(`{"samples":[{"beatsPerMinute":80},{"beatsPerMinute":"n/a"}]}`)))
	require.Equal(t, 70.0, HeartRate(raw(`{"beatsPerMinute":"n/a"}`, `{"beatsPerMinute":70}`)))

	hr := HeartRate(raw(`{"samples":[{"beatsPerMinute":null}]}`))
	require.Zero(t, hr)
	require.Equal(t, MissingValue, vital(t, "heart_rate").Display(hr))
}

func TestBloodOxygenZeroIsMissing(t *testing.T) {
	spo2 := BloodOxygen(raw(`{"percentage":0}`))
	require.Zero(t, spo2)
	require.Equal(t, MissingValue, vital(t, "blood_oxygen").Display(spo2))

	spo2 = BloodOxygen(raw(`{"percentage":97}`, `{"percentage":98.4}`))
	require.Equal(t, 98.0, spo2)
	require.Equal(t, "98%", vital(t, "blood_oxygen").Display(spo2))

	require.Equal(t, 95.0, BloodOxygen(raw(`{"percentage":{"value":95}}`)))
}

func TestDistanceAndCalories(t *testing.T) {
	meters := Distance(raw(`{"distance":{"inMeters":1000}}`, `{"distance":{"inMeters":250.5}}`))
	require.InDelta(t, 1250.5, meters, 0.0001)
	require.Equal(t, "1.25 km", vital(t, "distance").Display(meters))
	require.Equal(t, "0.00 km", vital(t, "distance").Display(0))

	kcal := ActiveCalories(raw(`{"energy":{"inKilocalories":120.4}}`, `{"energy":{"inKilocalories":230}}`))
	require.InDelta(t, 350.4, kcal, 0.0001)
	require.Equal(t, "350 kcal", vital(t, "active_calories").Display(kcal))
	require.Equal(t, "0 kcal", vital(t, "active_calories").Display(0))
}

func TestSleepSumsSessionHours(t *testing.T) {
	hours := Sleep(raw(
		`{"startTime":"2025-05-01T23:00:00.000Z","endTime":"2025-05-02T06:00:00.000Z"}`,
		`{"startTime":"2025-05-02T13:00:00Z","endTime":"2025-05-02T13:30:00Z"}`,
		`{"startTime":"2025-05-02T13:00:00Z","endTime":"not a time"}`,
		`{"startTime":"2025-05-02T14:00:00Z","endTime":"2025-05-02T13:00:00Z"}`,
	))
	require.InDelta(t, 7.5, hours, 0.0001)
	require.Equal(t, "7.5 hrs", vital(t, "sleep").Display(hours))
	require.Equal(t, "0.0 hrs", vital(t, "sleep").Display(0))
}

func TestMalformedRecordsAreIgnored(t *testing.T) {
	require.Equal(t, 5.0, Steps(raw(`{"count":"many"}`, `not json`, `{"count":5}`)))
}

func TestBuildAssemblesEveryVital(t *testing.T) {
	batches := []domain.RecordBatch{
		{Type: domain.RecordSteps, Records: raw(`{"count":500}`, `{"count":1200}`)},
		{Type: domain.RecordHeartRate, Records: raw(`{"samples":[{"beatsPerMinute":64}]}`)},
		{Type: domain.RecordDistance, Records: raw(`{"distance":{"inMeters":3200}}`)},
		{Type: domain.RecordActiveCaloriesBurned, Records: raw(`{"energy":{"inKilocalories":410}}`)},
		{Type: domain.RecordSleepSession, Records: raw(`{"startTime":"2025-05-01T22:00:00Z","endTime":"2025-05-02T06:00:00Z"}`)},
		{Type: domain.RecordOxygenSaturation, Records: raw(`{"percentage":96}`)},
	}

	snapshot := Build(batches)
	require.Equal(t, 1700.0, snapshot.Steps)
	require.Equal(t, 64.0, snapshot.HeartRate)
	require.Equal(t, 3200.0, snapshot.DistanceMeters)
	require.Equal(t, 410.0, snapshot.ActiveCalories)
	require.Equal(t, 8.0, snapshot.SleepHours)
	require.Equal(t, 96.0, snapshot.BloodOxygenPercent)

	display := DisplayValues(snapshot)
	require.Equal(t, map[string]string{
		"steps":           "1,700",
		"heart_rate":      "64 bpm",
		"distance":        "3.20 km",
		"active_calories": "410 kcal",
		"sleep":           "8.0 hrs",
		"blood_oxygen":    "96%",
	}, display)
}

func TestBuildWithMissingBatchesKeepsZeroes(t *testing.T) {
	snapshot := Build([]domain.RecordBatch{domain.EmptyBatch(domain.RecordSteps)})
	require.Equal(t, domain.VitalsSnapshot{}, snapshot)

	display := DisplayValues(snapshot)
	require.Equal(t, "0", display["steps"])
	require.Equal(t, MissingValue, display["heart_rate"])
	require.Equal(t, MissingValue, display["blood_oxygen"])
}

func TestTableCoversFetchOrder(t *testing.T) {
	require.Len(t, Table, len(domain.FetchOrder))
	for i, v := range Table {
		require.Equal(t, domain.FetchOrder[i], v.RecordType)
	}
}
