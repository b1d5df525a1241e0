package models

import "time"

// PeriodKey returns the accounting period containing t. Periods are UTC
// calendar months ("2006-01") or UTC days ("2006-01-02").
func PeriodKey(w Window, t time.Time) string {
	t = t.UTC()
	if w == WindowDaily {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01")
}

// PeriodStart returns the first instant of the period containing t.
func PeriodStart(w Window, t time.Time) time.Time {
	t = t.UTC()
	if w == WindowDaily {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the first instant of the period following the one
// containing t, i.e. when counters reset.
func PeriodEnd(w Window, t time.Time) time.Time {
	start := PeriodStart(w, t)
	if w == WindowDaily {
		return start.AddDate(0, 0, 1)
	}
	return start.AddDate(0, 1, 0)
}
