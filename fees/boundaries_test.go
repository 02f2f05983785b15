package fees

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

func parseTime(value string) time.Time {
	t, _ := time.Parse(time.RFC3339, value)
	return t
}

func TestChargeBoundaries(t *testing.T) {
	tests := []struct {
		name         string
		interval     models.PlanInterval
		startedAt    string
		terminatedAt string
		timestamp    string
		expectedFrom string
		expectedTo   string
	}{
		{
			name:         "monthly plan started during the month",
			interval:     models.PlanIntervalMonthly,
			startedAt:    "2024-03-05T12:12:00Z",
			timestamp:    "2024-03-15T10:00:00Z",
			expectedFrom: "2024-03-05T12:12:00.000Z",
			expectedTo:   "2024-03-31T23:59:59.999Z",
		},
		{
			name:         "monthly plan started before the month",
			interval:     models.PlanIntervalMonthly,
			startedAt:    "2024-01-05T12:12:00Z",
			timestamp:    "2024-02-15T10:00:00Z",
			expectedFrom: "2024-02-01T00:00:00.000Z",
			expectedTo:   "2024-02-29T23:59:59.999Z",
		},
		{
			name:         "weekly plan",
			interval:     models.PlanIntervalWeekly,
			startedAt:    "2024-01-01T00:00:00Z",
			timestamp:    "2024-03-15T10:00:00Z",
			expectedFrom: "2024-03-11T00:00:00.000Z",
			expectedTo:   "2024-03-17T23:59:59.999Z",
		},
		{
			name:         "weekly plan on a sunday",
			interval:     models.PlanIntervalWeekly,
			startedAt:    "2024-01-01T00:00:00Z",
			timestamp:    "2024-03-17T22:00:00Z",
			expectedFrom: "2024-03-11T00:00:00.000Z",
			expectedTo:   "2024-03-17T23:59:59.999Z",
		},
		{
			name:         "quarterly plan",
			interval:     models.PlanIntervalQuarterly,
			startedAt:    "2023-01-01T00:00:00Z",
			timestamp:    "2024-05-15T10:00:00Z",
			expectedFrom: "2024-04-01T00:00:00.000Z",
			expectedTo:   "2024-06-30T23:59:59.999Z",
		},
		{
			name:         "yearly plan",
			interval:     models.PlanIntervalYearly,
			startedAt:    "2023-01-01T00:00:00Z",
			timestamp:    "2024-03-15T10:00:00Z",
			expectedFrom: "2024-01-01T00:00:00.000Z",
			expectedTo:   "2024-12-31T23:59:59.999Z",
		},
		{
			name:         "terminated subscription",
			interval:     models.PlanIntervalMonthly,
			startedAt:    "2024-01-05T12:12:00Z",
			terminatedAt: "2024-03-20T08:00:00Z",
			timestamp:    "2024-03-15T10:00:00Z",
			expectedFrom: "2024-03-01T00:00:00.000Z",
			expectedTo:   "2024-03-20T08:00:00.000Z",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sub := &models.Subscription{
				StartedAt: sql.NullTime{Time: parseTime(test.startedAt), Valid: true},
			}
			if test.terminatedAt != "" {
				sub.TerminatedAt = sql.NullTime{Time: parseTime(test.terminatedAt), Valid: true}
			}

			boundaries := ChargeBoundaries(test.interval, sub, parseTime(test.timestamp))

			assert.Equal(t, test.expectedFrom, utils.FormatISO8601Milli(boundaries.ChargesFrom))
			assert.Equal(t, test.expectedTo, utils.FormatISO8601Milli(boundaries.ChargesTo))
		})
	}
}
