package model

import (
	"fmt"
	"time"
)

// CivilLayout is the layout of every stored record timestamp.
const CivilLayout = "2006-01-02T15:04:05"

// DateLayout is the layout of a civil date.
const DateLayout = "2006-01-02"

// WIB is Western Indonesia Time (UTC+7), the default civil zone.
var WIB = time.FixedZone("WIB", 7*60*60)

// FormatCivil renders t as a civil timestamp in loc.
func FormatCivil(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = WIB
	}
	return t.In(loc).Format(CivilLayout)
}

// ParseCivil parses a civil timestamp in loc.
func ParseCivil(ts string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = WIB
	}
	t, err := time.ParseInLocation(CivilLayout, ts, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse civil timestamp %q: %w", ts, err)
	}
	return t, nil
}

// CivilDate returns the civil date prefix of a civil timestamp.
// Timestamps shorter than a date are returned unchanged.
func CivilDate(ts string) string {
	if len(ts) < len(DateLayout) {
		return ts
	}
	return ts[:len(DateLayout)]
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) string {
	return CivilDate(FormatCivil(now, loc))
}

// DaysBefore returns the civil date n calendar days before the civil date of now.
func DaysBefore(now time.Time, loc *time.Location, n int) string {
	if loc == nil {
		loc = WIB
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -n).Format(DateLayout)
}
