package postgres

import (
	"testing"
	"time"
)

// The kiosk's calendar day is decided by the app clock, not by whatever
// timezone the database session happens to run in. Near midnight those can
// disagree by a full day.
func TestDayTextUsesCallerWallClock(t *testing.T) {
	auckland := time.FixedZone("NZST+13", 13*3600)

	// Half past midnight local time; still the previous day in UTC.
	at := time.Date(2026, 8, 28, 0, 30, 0, 0, auckland)
	if at.UTC().Day() != 27 {
		t.Fatalf("fixture broken: %v should be the 27th in UTC", at.UTC())
	}

	if got := dayText(at); got != "2026-08-28" {
		t.Errorf("dayText(%v) = %q, want the local day 2026-08-28", at, got)
	}
}
