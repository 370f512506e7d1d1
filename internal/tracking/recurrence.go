package tracking

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/medtrack/adherence/pkg/logger"
	"github.com/medtrack/adherence/pkg/types"
)

// defaultTimeOfDay is substituted when a schedule reaches the evaluator
// with an empty time list. Validation prevents this at the mutation
// boundary, so hitting it is logged as a validation failure rather than
// silently producing zero occurrences.
var defaultTimeOfDay = types.TimeOfDay{Hour: 9, Minute: 0}

// isoWeekdays maps the 1=Monday…7=Sunday convention onto rrule weekdays.
// This is the only weekday conversion in the codebase.
var isoWeekdays = map[int]rrule.Weekday{
	1: rrule.MO,
	2: rrule.TU,
	3: rrule.WE,
	4: rrule.TH,
	5: rrule.FR,
	6: rrule.SA,
	7: rrule.SU,
}

// Evaluator expands schedule recurrence rules into concrete occurrences.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	logger *logger.Logger
}

// NewEvaluator creates a new recurrence evaluator
func NewEvaluator(log *logger.Logger) *Evaluator {
	return &Evaluator{logger: log}
}

// OccurrencesOnDay returns the schedule's due moments on the given
// calendar day, ascending by scheduled time. Inactive schedules and days
// outside [startDate, endDate] yield nothing; both boundary days are
// included.
func (e *Evaluator) OccurrencesOnDay(schedule *types.ScheduleDefinition, day time.Time) []types.Occurrence {
	if !schedule.Active {
		return nil
	}

	d := startOfDay(day)
	if d.Before(startOfDay(schedule.StartDate)) {
		return nil
	}
	if schedule.EndDate != nil && d.After(startOfDay(*schedule.EndDate)) {
		return nil
	}

	if !e.dueOnDay(schedule, d) {
		return nil
	}

	times := schedule.TimesOfDay
	if len(times) == 0 {
		e.logger.WithSchedule(schedule.ID).Error("Schedule has no times of day, substituting default; this is a validation failure upstream")
		times = []types.TimeOfDay{defaultTimeOfDay}
	}

	ordered := make([]types.TimeOfDay, len(times))
	copy(ordered, times)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	occurrences := make([]types.Occurrence, 0, len(ordered))
	for _, tod := range ordered {
		occurrences = append(occurrences, types.Occurrence{
			MedicineID:    schedule.MedicineID,
			ScheduleID:    schedule.ID,
			ScheduledTime: tod.On(d),
			MatchStatus:   types.MatchDue,
		})
	}
	return occurrences
}

// OccurrencesInRange returns the schedule's occurrences grouped per day
// for every day in [from, to] that has at least one due moment.
func (e *Evaluator) OccurrencesInRange(schedule *types.ScheduleDefinition, from, to time.Time) []types.DayOccurrences {
	start := startOfDay(from)
	end := startOfDay(to)
	if end.Before(start) {
		return nil
	}

	var days []types.DayOccurrences
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		occurrences := e.OccurrencesOnDay(schedule, d)
		if len(occurrences) == 0 {
			continue
		}
		days = append(days, types.DayOccurrences{Day: d, Occurrences: occurrences})
	}
	return days
}

// NextOccurrence returns the earliest occurrence strictly after the given
// instant, scanning forward day-by-day. The scan stops at the schedule's
// end date or after horizonDays, whichever comes first, so pathological
// rules terminate. As-needed schedules have no next occurrence.
func (e *Evaluator) NextOccurrence(schedule *types.ScheduleDefinition, after time.Time, horizonDays int) *types.Occurrence {
	if !schedule.Active || schedule.Frequency == types.FrequencyAsNeeded {
		return nil
	}

	day := startOfDay(after)
	if start := startOfDay(schedule.StartDate); day.Before(start) {
		day = start
	}

	for i := 0; i <= horizonDays; i++ {
		if schedule.EndDate != nil && day.After(startOfDay(*schedule.EndDate)) {
			return nil
		}
		for _, occ := range e.OccurrencesOnDay(schedule, day) {
			if occ.ScheduledTime.After(after) {
				found := occ
				return &found
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return nil
}

// dueOnDay reports whether the recurrence rule fires on the given day.
// The day has already passed the active and validity-window gates.
func (e *Evaluator) dueOnDay(schedule *types.ScheduleDefinition, day time.Time) bool {
	// As-needed schedules are always reported as due when queried; they
	// are excluded from expected-dose counting by the calculator.
	if schedule.Frequency == types.FrequencyAsNeeded {
		return true
	}

	// Weekly schedules can be rejected without building a rule.
	if schedule.Frequency == types.FrequencyWeekly && !weekdayDue(schedule.DaysOfWeek, day) {
		return false
	}

	rule, err := e.recurrenceRule(schedule, day.Location())
	if err != nil {
		e.logger.WithSchedule(schedule.ID).WithError(err).Error("Failed to build recurrence rule")
		return false
	}

	hits := rule.Between(day, endOfDay(day), true)
	return len(hits) > 0
}

// recurrenceRule maps a schedule onto an rrule anchored at midnight of
// the start date in the given location.
func (e *Evaluator) recurrenceRule(schedule *types.ScheduleDefinition, loc *time.Location) (*rrule.RRule, error) {
	start := schedule.StartDate.In(loc)
	opt := rrule.ROption{
		Dtstart: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc),
	}

	switch schedule.Frequency {
	case types.FrequencyDaily, types.FrequencyTwiceDaily, types.FrequencyThreeTimesDaily:
		opt.Freq = rrule.DAILY
	case types.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range schedule.DaysOfWeek {
			wd, ok := isoWeekdays[d]
			if !ok {
				return nil, fmt.Errorf("weekday out of range: %d", d)
			}
			opt.Byweekday = append(opt.Byweekday, wd)
		}
	case types.FrequencyCustom:
		// An interval of 1 behaves exactly like a daily schedule.
		opt.Freq = rrule.DAILY
		opt.Interval = schedule.CustomIntervalDays
	default:
		return nil, fmt.Errorf("unsupported frequency: %s", schedule.Frequency)
	}

	if schedule.EndDate != nil {
		end := schedule.EndDate.In(loc)
		opt.Until = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	}

	return rrule.NewRRule(opt)
}

// startOfDay truncates an instant to midnight in its own location
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// isoWeekday returns the 1=Monday…7=Sunday number for a day
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// weekdayDue reports whether the day's weekday is in the schedule's set
func weekdayDue(daysOfWeek []int, day time.Time) bool {
	wd := isoWeekday(day)
	for _, d := range daysOfWeek {
		if d == wd {
			return true
		}
	}
	return false
}
