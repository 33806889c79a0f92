package utils

import (
	"fmt"
	"time"
)

const (
	DateKeyLayout  = "2006-01-02"
	MonthKeyLayout = "2006-01"
)

// ParseDateKey is strict: a padded key is not the stored key and is rejected.
func ParseDateKey(dateKey string) (time.Time, error) {
	return time.Parse(DateKeyLayout, dateKey)
}

func IsDateKey(dateKey string) bool {
	_, err := ParseDateKey(dateKey)
	return err == nil
}

func ParseMonthKey(monthKey string) (int, time.Month, error) {
	t, err := time.Parse(MonthKeyLayout, monthKey)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q: %w", monthKey, err)
	}
	return t.Year(), t.Month(), nil
}

func MonthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// MonthKeyOf returns "YYYY-MM" for a "YYYY-MM-DD" date key, or "" if it is not one.
func MonthKeyOf(dateKey string) string {
	t, err := ParseDateKey(dateKey)
	if err != nil {
		return ""
	}
	return t.Format(MonthKeyLayout)
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthDateKeys lists every "YYYY-MM-DD" of the month in order.
func MonthDateKeys(year int, month time.Month) []string {
	n := DaysInMonth(year, month)
	keys := make([]string, 0, n)
	for d := 1; d <= n; d++ {
		keys = append(keys, time.Date(year, month, d, 0, 0, 0, 0, time.UTC).Format(DateKeyLayout))
	}
	return keys
}
