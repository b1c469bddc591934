package timeparser_test

import (
	"testing"
	"time"

	"github.com/septivank/sngraz/tools/timeparser"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("time zone %s not available: %v", name, err)
	}
	return loc
}

func TestParseReadTime_Offset(t *testing.T) {
	result, err := timeparser.ParseReadTime("2024-03-01T00:15:00+01:00", time.UTC)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2024, 2, 29, 23, 15, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadTime_Zulu(t *testing.T) {
	result, err := timeparser.ParseReadTime("2024-03-01T10:00:00.123Z", time.UTC)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadTime_NoOffsetUsesFallback(t *testing.T) {
	vienna := mustLoad(t, "Europe/Vienna")

	result, err := timeparser.ParseReadTime("2024-07-01T12:00:00", vienna)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadTime_Invalid(t *testing.T) {
	if _, err := timeparser.ParseReadTime("yesterday", time.UTC); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}

func TestParseLocal_IgnoresOffset(t *testing.T) {
	vienna := mustLoad(t, "Europe/Vienna")

	result, err := timeparser.ParseLocal("2023-05-10T08:15:00Z", vienna)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	if result.Location() != vienna || result.Hour() != 8 || result.Minute() != 15 {
		t.Errorf("Expected 08:15 wall clock in Vienna, got %v", result)
	}
}

func TestParseLocal_DateOnly(t *testing.T) {
	result, err := timeparser.ParseLocal("2023-05-10", nil)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestFormatISO(t *testing.T) {
	vienna := mustLoad(t, "Europe/Vienna")

	got := timeparser.FormatISO(time.Date(2024, 1, 15, 0, 0, 0, 0, vienna))
	if got != "2024-01-15T00:00:00.000+01:00" {
		t.Errorf("Unexpected format: %s", got)
	}

	got = timeparser.FormatISO(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	if got != "2024-01-15T00:00:00.000+00:00" {
		t.Errorf("UTC must use a numeric offset, got %s", got)
	}
}

func TestMeterTimestampRoundTrip(t *testing.T) {
	in := time.Date(2025, 12, 29, 11, 30, 45, 0, time.FixedZone("CET", 3600))

	s := timeparser.FormatMeterTimestamp(in)
	if s != "29/12/2025 10:30:45" {
		t.Fatalf("Unexpected meter timestamp %s", s)
	}

	out, err := timeparser.ParseMeterTimestamp(s)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("Expected %v, got %v", in, out)
	}
}

func TestParseMeterTimestamp_Invalid(t *testing.T) {
	if _, err := timeparser.ParseMeterTimestamp("invalid-date-string"); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}
