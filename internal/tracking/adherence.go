package tracking

import (
	"time"

	"github.com/medtrack/adherence/pkg/types"
)

// Calculator computes adherence statistics from schedules and recorded
// dose events. It is pure: all state comes in through arguments.
type Calculator struct {
	evaluator *Evaluator
	tolerance time.Duration
}

// NewCalculator creates a new adherence calculator
func NewCalculator(evaluator *Evaluator, tolerance time.Duration) *Calculator {
	if tolerance <= 0 {
		tolerance = DefaultMatchTolerance
	}
	return &Calculator{
		evaluator: evaluator,
		tolerance: tolerance,
	}
}

// Adherence computes expected and taken dose counts, the adherence rate,
// and the consecutive-day streak for a medicine over [from, to]. The
// streak walks backward from the `to` day. An empty medicineID computes
// across all schedules.
func (c *Calculator) Adherence(medicineID string, schedules []*types.ScheduleDefinition, doses []*types.DoseEvent, from, to time.Time) *types.AdherenceReport {
	start := startOfDay(from)
	end := startOfDay(to)

	report := &types.AdherenceReport{
		MedicineID: medicineID,
		WindowFrom: start,
		WindowTo:   end,
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		expected, taken := c.dayStats(medicineID, schedules, doses, d)
		report.Expected += expected
		report.Taken += taken
	}

	if report.Expected > 0 {
		report.Rate = float64(report.Taken) / float64(report.Expected) * 100
	}

	report.Streak = c.Streak(medicineID, schedules, doses, end)
	return report
}

// Streak counts consecutive fully-adherent days walking backward from
// the given day. A day with nothing expected terminates the streak
// without extending it, as does any day that was only partially taken.
func (c *Calculator) Streak(medicineID string, schedules []*types.ScheduleDefinition, doses []*types.DoseEvent, today time.Time) int {
	streak := 0
	for d := startOfDay(today); ; d = d.AddDate(0, 0, -1) {
		expected, taken := c.dayStats(medicineID, schedules, doses, d)
		if expected == 0 || taken < expected {
			return streak
		}
		streak++
	}
}

// dayStats re-evaluates a single day under the schedule rules valid now:
// expected counts every occurrence of non-as-needed schedules, taken
// counts those the matcher associates with a taken dose event.
func (c *Calculator) dayStats(medicineID string, schedules []*types.ScheduleDefinition, doses []*types.DoseEvent, day time.Time) (expected, taken int) {
	var occurrences []types.Occurrence
	for _, schedule := range schedules {
		if medicineID != "" && schedule.MedicineID != medicineID {
			continue
		}
		// As-needed schedules exist for display only and never count
		// toward expected doses.
		if schedule.Frequency == types.FrequencyAsNeeded {
			continue
		}
		occurrences = append(occurrences, c.evaluator.OccurrencesOnDay(schedule, day)...)
	}

	if len(occurrences) == 0 {
		return 0, 0
	}

	for _, occ := range MatchDoses(occurrences, doses, c.tolerance) {
		expected++
		if occ.MatchStatus == types.MatchTaken {
			taken++
		}
	}
	return expected, taken
}
