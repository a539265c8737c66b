package domain_test

import (
	"errors"
	"testing"

	"github.com/meridianhq/visitdesk/internal/domain"
)

func TestParseVisitStatus(t *testing.T) {
	for _, s := range []string{"scheduled", "checked_in", "checked_out", "cancelled"} {
		got, ok := domain.ParseVisitStatus(s)
		if !ok || string(got) != s {
			t.Errorf("ParseVisitStatus(%q) = %q, %v", s, got, ok)
		}
	}
	if _, ok := domain.ParseVisitStatus("pending"); ok {
		t.Error("ParseVisitStatus accepted an unknown status")
	}
}

func TestTransitionGuards(t *testing.T) {
	cases := []struct {
		name   string
		status domain.VisitStatus
		check  func(*domain.Visit) error
		wantOK bool
	}{
		{"check-in from scheduled", domain.VisitScheduled, (*domain.Visit).CanCheckIn, true},
		{"check-in from checked_in", domain.VisitCheckedIn, (*domain.Visit).CanCheckIn, false},
		{"check-in from checked_out", domain.VisitCheckedOut, (*domain.Visit).CanCheckIn, false},
		{"check-in from cancelled", domain.VisitCancelled, (*domain.Visit).CanCheckIn, false},
		{"check-out from checked_in", domain.VisitCheckedIn, (*domain.Visit).CanCheckOut, true},
		{"check-out from scheduled", domain.VisitScheduled, (*domain.Visit).CanCheckOut, false},
		{"check-out from checked_out", domain.VisitCheckedOut, (*domain.Visit).CanCheckOut, false},
		{"cancel from scheduled", domain.VisitScheduled, (*domain.Visit).CanCancel, true},
		{"cancel from checked_in", domain.VisitCheckedIn, (*domain.Visit).CanCancel, false},
		{"reactivate from cancelled", domain.VisitCancelled, (*domain.Visit).CanReactivate, true},
		{"reactivate from checked_out", domain.VisitCheckedOut, (*domain.Visit).CanReactivate, true},
		{"reactivate from scheduled", domain.VisitScheduled, (*domain.Visit).CanReactivate, false},
		{"reactivate from checked_in", domain.VisitCheckedIn, (*domain.Visit).CanReactivate, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &domain.Visit{ID: 1, Status: tc.status}
			err := tc.check(v)
			if tc.wantOK && err != nil {
				t.Fatalf("expected transition allowed, got %v", err)
			}
			if !tc.wantOK {
				var guard *domain.GuardError
				if !errors.As(err, &guard) {
					t.Fatalf("expected GuardError, got %v", err)
				}
				if guard.Current != tc.status {
					t.Errorf("guard reports status %q, want %q", guard.Current, tc.status)
				}
			}
		})
	}
}

func TestGuardErrorMentionsCurrentStatus(t *testing.T) {
	err := &domain.GuardError{Action: "check-in", Current: domain.VisitCheckedIn}
	if got := err.Error(); got != "cannot check-in: visit is already checked in" {
		t.Errorf("unexpected guard message: %q", got)
	}
}
