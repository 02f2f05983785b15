package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ToTime reads unix timestamps in seconds. Fractional seconds go through a
// decimal so that milliseconds survive the conversion.
func ToTime(timestamp any) Result[time.Time] {
	var seconds decimal.Decimal

	switch timestamp := timestamp.(type) {
	case string:
		value, err := decimal.NewFromString(timestamp)
		if err != nil {
			return FailedResult[time.Time](err)
		}
		seconds = value

	case int:
		seconds = decimal.NewFromInt(int64(timestamp))

	case int64:
		seconds = decimal.NewFromInt(timestamp)

	case float64:
		seconds = decimal.NewFromFloat(timestamp)

	default:
		return FailedResult[time.Time](fmt.Errorf("Unsupported timestamp type: %T", timestamp))
	}

	whole := seconds.Truncate(0)
	nanoseconds := seconds.Sub(whole).Shift(9).IntPart()

	return SuccessResult(time.Unix(whole.IntPart(), nanoseconds).In(time.UTC).Truncate(time.Millisecond))
}

type CustomTime time.Time

func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "null" || s == "" {
		return nil
	}

	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		// value could be a Unix timestamp encoded as a string
		timeResult := ToTime(s)
		if timeResult.Failure() {
			return err
		}

		t = timeResult.value
	}

	*ct = CustomTime(t)
	return nil
}

func (ct CustomTime) MarshalJSON() ([]byte, error) {
	t := time.Time(ct)
	if t.IsZero() {
		return []byte("null"), nil
	}

	data := make([]byte, 0, 21) // 19 characters for time format and 2 for quotes
	return fmt.Appendf(data, "\"%s\"", t.Format("2006-01-02T15:04:05")), nil
}

func (ct CustomTime) Time() time.Time {
	return time.Time(ct)
}

func (ct CustomTime) String() string {
	return ct.Time().Format("2006-01-02T15:04:05")
}

// TruncateToSecond drops the sub-second part of a timestamp.
// Subscription activity windows are compared at second precision.
func TruncateToSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FormatISO8601Milli renders a time the way charge period boundaries are
// exposed in fee properties, eg: 2024-03-31T23:59:59.999Z
func FormatISO8601Milli(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
