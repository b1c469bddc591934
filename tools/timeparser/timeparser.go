package timeparser

import (
	"fmt"
	"strings"
	"time"
)

// ISOMillis is the request timestamp layout: millisecond precision and a
// numeric offset, never "Z".
const ISOMillis = "2006-01-02T15:04:05.000-07:00"

// MeterLayout is the DD/MM/YYYY HH:mm:ss layout used on the metering ingest queue.
const MeterLayout = "02/01/2006 15:04:05"

var offsetLayouts = []string{
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseReadTime parses an ISO-8601 reading timestamp. A bare "Z" suffix is
// rewritten to "+00:00" first. Timestamps without an offset are taken to be in
// fallback.
func ParseReadTime(s string, fallback *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}

	var lastErr error
	for _, layout := range offsetLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	if t, err := parseIn(s, fallback); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", s, lastErr)
}

// ParseLocal parses a timestamp the server sends without zone information and
// anchors its wall clock in loc. An offset, if present, is ignored.
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := parseIn(strings.TrimSpace(s), loc); err == nil {
		return t, nil
	}

	t, err := ParseReadTime(s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
}

func parseIn(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	var lastErr error
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// FormatISO formats t for API requests.
func FormatISO(t time.Time) string {
	return t.Format(ISOMillis)
}

// ParseMeterTimestamp parses a MeterLayout timestamp as UTC.
func ParseMeterTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(MeterLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", s, err)
	}
	return t, nil
}

// FormatMeterTimestamp renders t in UTC with MeterLayout.
func FormatMeterTimestamp(t time.Time) string {
	return t.UTC().Format(MeterLayout)
}
