package medication

import (
	"fmt"
	"time"

	"github.com/cmw1990/connect-and-care-api/internal/model"
)

// defaultHorizon bounds reminder expansion when a schedule has no end date.
const defaultHorizon = 30 * 24 * time.Hour

// expandSchedule computes every concrete reminder timestamp for a schedule:
// each time-of-day, on each calendar day between now and the schedule's end
// (or now+30d) whose weekday is in DaysOfWeek. Only future occurrences are
// returned. Days before the schedule's start date never qualify.
func expandSchedule(sched model.Schedule, now time.Time) ([]time.Time, error) {
	if len(sched.Times) == 0 || len(sched.DaysOfWeek) == 0 {
		return nil, nil
	}

	days := make(map[time.Weekday]bool, len(sched.DaysOfWeek))
	for _, d := range sched.DaysOfWeek {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("invalid weekday %d", d)
		}
		days[time.Weekday(d)] = true
	}

	clocks := make([][2]int, 0, len(sched.Times))
	for _, t := range sched.Times {
		var hour, minute int
		if _, err := fmt.Sscanf(t, "%d:%d", &hour, &minute); err != nil {
			return nil, fmt.Errorf("invalid schedule time %q: %w", t, err)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid schedule time %q", t)
		}
		clocks = append(clocks, [2]int{hour, minute})
	}

	end := now.Add(defaultHorizon)
	if sched.EndDate != nil && sched.EndDate.Before(end) {
		end = *sched.EndDate
	}

	start := now
	if sched.StartDate.After(start) {
		start = sched.StartDate
	}

	var occurrences []time.Time
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for !day.After(end) {
		if days[day.Weekday()] {
			for _, c := range clocks {
				ts := time.Date(day.Year(), day.Month(), day.Day(), c[0], c[1], 0, 0, day.Location())
				if ts.After(now) && !ts.After(end) {
					occurrences = append(occurrences, ts)
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	return occurrences, nil
}
