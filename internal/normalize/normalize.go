// Package normalize turns raw record batches into scalar vitals and display strings.
//
// Every vital is described by one row of Table: which record type feeds it, how its batch is
// aggregated, how the scalar is rendered, and whether zero means "no data". Aggregates are total:
// malformed or missing fields count as zero and nothing here returns an error.
package normalize

import (
	"encoding/json"
	"math"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"example.com/vitals/internal/domain"
)

// MissingValue is rendered for vitals whose zero reading means no data.
const MissingValue = "--"

// Aggregate reduces a batch of raw records to one scalar.
type Aggregate func(records []json.RawMessage) float64

// Format renders a non-missing scalar with its unit.
type Format func(value float64) string

// Vital describes how one snapshot field is produced and displayed.
type Vital struct {
	Field         string
	RecordType    domain.RecordType
	Aggregate     Aggregate
	Format        Format
	ZeroIsMissing bool

	get func(domain.VitalsSnapshot) float64
	set func(*domain.VitalsSnapshot, float64)
}

// Display renders value, substituting MissingValue when zero means no data for this vital.
func (v Vital) Display(value float64) string {
	if v.ZeroIsMissing && value == 0 {
		return MissingValue
	}
	return v.Format(value)
}

// Value reads this vital's field from a snapshot.
func (v Vital) Value(s domain.VitalsSnapshot) float64 {
	return v.get(s)
}

var printer = message.NewPrinter(language.English)

// Table lists the vitals in fetch order. Heart rate and blood oxygen are never legitimately zero,
// so a zero there is treated as missing; zero steps, distance, calories or sleep are real values.
var Table = []Vital{
	{
		Field:      "steps",
		RecordType: domain.RecordSteps,
		Aggregate:  Steps,
		Format:     func(v float64) string { return printer.Sprintf("%d", int64(math.Round(v))) },
		get:        func(s domain.VitalsSnapshot) float64 { return s.Steps },
		set:        func(s *domain.VitalsSnapshot, v float64) { s.Steps = v },
	},
	{
		Field:         "heart_rate",
		RecordType:    domain.RecordHeartRate,
		Aggregate:     HeartRate,
		Format:        func(v float64) string { return printer.Sprintf("%d bpm", int64(math.Round(v))) },
		ZeroIsMissing: true,
		get:           func(s domain.VitalsSnapshot) float64 { return s.HeartRate },
		set:           func(s *domain.VitalsSnapshot, v float64) { s.HeartRate = v },
	},
	{
		Field:      "distance",
		RecordType: domain.RecordDistance,
		Aggregate:  Distance,
		Format:     func(v float64) string { return printer.Sprintf("%.2f km", v/1000) },
		get:        func(s domain.VitalsSnapshot) float64 { return s.DistanceMeters },
		set:        func(s *domain.VitalsSnapshot, v float64) { s.DistanceMeters = v },
	},
	{
		Field:      "active_calories",
		RecordType: domain.RecordActiveCaloriesBurned,
		Aggregate:  ActiveCalories,
		Format:     func(v float64) string { return printer.Sprintf("%d kcal", int64(math.Round(v))) },
		get:        func(s domain.VitalsSnapshot) float64 { return s.ActiveCalories },
		set:        func(s *domain.VitalsSnapshot, v float64) { s.ActiveCalories = v },
	},
	{
		Field:      "sleep",
		RecordType: domain.RecordSleepSession,
		Aggregate:  Sleep,
		Format:     func(v float64) string { return printer.Sprintf("%.1f hrs", v) },
		get:        func(s domain.VitalsSnapshot) float64 { return s.SleepHours },
		set:        func(s *domain.VitalsSnapshot, v float64) { s.SleepHours = v },
	},
	{
		Field:         "blood_oxygen",
		RecordType:    domain.RecordOxygenSaturation,
		Aggregate:     BloodOxygen,
		Format:        func(v float64) string { return printer.Sprintf("%d%%", int64(math.Round(v))) },
		ZeroIsMissing: true,
		get:           func(s domain.VitalsSnapshot) float64 { return s.BloodOxygenPercent },
		set:           func(s *domain.VitalsSnapshot, v float64) { s.BloodOxygenPercent = v },
	},
}

// Build aggregates batches into a snapshot. Types with no batch stay at zero.
func Build(batches []domain.RecordBatch) domain.VitalsSnapshot {
	byType := make(map[domain.RecordType][]json.RawMessage, len(batches))
	for _, b := range batches {
		byType[b.Type] = append(byType[b.Type], b.Records...)
	}

	var snapshot domain.VitalsSnapshot
	for _, v := range Table {
		v.set(&snapshot, v.Aggregate(byType[v.RecordType]))
	}
	return snapshot
}

// DisplayValues renders every vital of a snapshot keyed by field name.
func DisplayValues(s domain.VitalsSnapshot) map[string]string {
	out := make(map[string]string, len(Table))
	for _, v := range Table {
		out[v.Field] = v.Display(v.get(s))
	}
	return out
}

// Steps sums the count field.
func Steps(records []json.RawMessage) float64 {
	return sum(records, "count")
}

// HeartRate is the rounded mean of every numeric beatsPerMinute sample in the batch.
func HeartRate(records []json.RawMessage) float64 {
	var total float64
	var n int
	for _, rec := range records {
		samples := gjson.GetBytes(rec, "samples.#.beatsPerMinute")
		if samples.IsArray() && len(samples.Array()) > 0 {
			for _, bpm := range samples.Array() {
				if bpm.Type != gjson.Number {
					continue
				}
				total += bpm.Float()
				n++
			}
			continue
		}
		if bpm, ok := number(rec, "beatsPerMinute"); ok {
			total += bpm
			n++
		}
	}
	return roundedMean(total, n)
}

// Distance sums distance in meters.
func Distance(records []json.RawMessage) float64 {
	return sum(records, "distance.inMeters", "distance")
}

// ActiveCalories sums energy in kilocalories.
func ActiveCalories(records []json.RawMessage) float64 {
	return sum(records, "energy.inKilocalories", "energy")
}

// Sleep sums session durations in hours. Sessions with unparsable or inverted bounds count as zero.
func Sleep(records []json.RawMessage) float64 {
	var hours float64
	for _, rec := range records {
		start := parseTime(gjson.GetBytes(rec, "startTime"))
		end := parseTime(gjson.GetBytes(rec, "endTime"))
		if start.IsZero() || end.IsZero() || end.Before(start) {
			continue
		}
		hours += end.Sub(start).Hours()
	}
	return hours
}

// BloodOxygen is the rounded mean of the percentage field.
func BloodOxygen(records []json.RawMessage) float64 {
	var total float64
	var n int
	for _, rec := range records {
		if value, ok := number(rec, "percentage.value", "percentage"); ok {
			total += value
			n++
		}
	}
	return roundedMean(total, n)
}

func sum(records []json.RawMessage, paths ...string) float64 {
	var total float64
	for _, rec := range records {
		if value, ok := number(rec, paths...); ok {
			total += value
		}
	}
	return total
}

// number returns the first numeric value found at paths.
func number(rec json.RawMessage, paths ...string) (float64, bool) {
	for _, path := range paths {
		result := gjson.GetBytes(rec, path)
		if result.Type == gjson.Number {
			return result.Float(), true
		}
	}
	return 0, false
}

func roundedMean(total float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(total / float64(n))
}

func parseTime(result gjson.Result) time.Time {
	if result.Type != gjson.String {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, result.String())
	if err != nil {
		return time.Time{}
	}
	return ts
}
