package fees

import (
	"time"

	"github.com/getlago/lago/billing-processor/models"
)

type Boundaries struct {
	ChargesFrom time.Time
	ChargesTo   time.Time
}

// ChargeBoundaries returns the calendar period of the plan interval holding
// the timestamp, clamped to the subscription lifetime.
// ChargesTo is the last millisecond of the period.
func ChargeBoundaries(interval models.PlanInterval, sub *models.Subscription, timestamp time.Time) Boundaries {
	start, end := calendarPeriod(interval, timestamp.UTC())

	from := start
	if sub.StartedAt.Valid && sub.StartedAt.Time.UTC().After(from) {
		from = sub.StartedAt.Time.UTC()
	}

	to := end.Add(-time.Millisecond)
	if sub.TerminatedAt.Valid && sub.TerminatedAt.Time.UTC().Before(to) {
		to = sub.TerminatedAt.Time.UTC()
	}

	return Boundaries{ChargesFrom: from, ChargesTo: to}
}

func calendarPeriod(interval models.PlanInterval, t time.Time) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch interval {
	case models.PlanIntervalWeekly:
		// Weeks start on monday
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)

	case models.PlanIntervalQuarterly:
		firstMonth := time.Month(((int(t.Month())-1)/3)*3 + 1)
		start := time.Date(t.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0)

	case models.PlanIntervalYearly:
		start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)

	default:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}
