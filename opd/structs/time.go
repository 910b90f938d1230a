// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for schedule dates (DD-MM-YYYY). A date
	// resolves to midnight in the local zone; the clock collaborator
	// evaluates slot end and imminence against that zone.
	DateLayout = "02-01-2006"

	// ClockLayout is the wire format for slot boundaries (24-hour HH:MM).
	ClockLayout = "15:04"
)

// ParseDate parses a DD-MM-YYYY date into midnight local time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q: expected %s", ErrInvalidInput, s, "DD-MM-YYYY")
	}
	return t, nil
}

// ParseClock parses an HH:MM time of day into minutes from midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad time %q: expected %s", ErrInvalidInput, s, "HH:MM")
	}
	return t.Hour()*60 + t.Minute(), nil
}

// SameDate reports whether a date string and an instant fall on the same
// calendar day in the local zone.
func SameDate(date string, now time.Time) bool {
	day, err := ParseDate(date)
	if err != nil {
		return false
	}
	y1, m1, d1 := day.Date()
	y2, m2, d2 := now.In(time.Local).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// PastDate reports whether the date string is strictly before the calendar
// day of now in the local zone.
func PastDate(date string, now time.Time) bool {
	day, err := ParseDate(date)
	if err != nil {
		return false
	}
	y, m, d := now.In(time.Local).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return day.Before(today)
}
