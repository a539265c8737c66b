package domain

import "time"

type VisitStatus string

const (
	VisitScheduled  VisitStatus = "scheduled"
	VisitCheckedIn  VisitStatus = "checked_in"
	VisitCheckedOut VisitStatus = "checked_out"
	VisitCancelled  VisitStatus = "cancelled"
)

func ParseVisitStatus(s string) (VisitStatus, bool) {
	switch VisitStatus(s) {
	case VisitScheduled, VisitCheckedIn, VisitCheckedOut, VisitCancelled:
		return VisitStatus(s), true
	default:
		return "", false
	}
}

type Visit struct {
	ID     int64       `json:"id"`
	Status VisitStatus `json:"status"`

	VisitorID    int64  `json:"visitor_id"`
	HostUserID   *int64 `json:"host_user_id,omitempty"`
	HostName     string `json:"host_name"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	Purpose      string `json:"purpose"`

	ScheduledDate time.Time  `json:"scheduled_date"`
	WindowStart   time.Time  `json:"window_start"`
	WindowEnd     *time.Time `json:"window_end,omitempty"`

	ActualCheckIn  *time.Time `json:"actual_check_in,omitempty"`
	ActualCheckOut *time.Time `json:"actual_check_out,omitempty"`

	CheckInPin      *string    `json:"-"`
	BadgeNumber     *string    `json:"badge_number,omitempty"`
	BadgeCode       *string    `json:"badge_code,omitempty"`
	BadgeValidUntil *time.Time `json:"badge_valid_until,omitempty"`
	BadgeIssued     bool       `json:"badge_issued"`
	BadgeIssuedAt   *time.Time `json:"badge_issued_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition guards. Status is the single source of truth for a visit's
// lifecycle; every mutation goes through one of these checks first, and a
// rejected transition reports the status that blocked it.

func (v *Visit) CanCheckIn() error {
	if v.Status != VisitScheduled {
		return &GuardError{Action: "check-in", Current: v.Status}
	}
	return nil
}

func (v *Visit) CanCheckOut() error {
	if v.Status != VisitCheckedIn {
		return &GuardError{Action: "check-out", Current: v.Status}
	}
	return nil
}

func (v *Visit) CanCancel() error {
	if v.Status != VisitScheduled {
		return &GuardError{Action: "cancel", Current: v.Status}
	}
	return nil
}

func (v *Visit) CanReactivate() error {
	if v.Status != VisitCancelled && v.Status != VisitCheckedOut {
		return &GuardError{Action: "reactivate", Current: v.Status}
	}
	return nil
}

type VisitCreateReq struct {
	VisitorID     int64      `json:"visitor_id"`
	HostUserID    *int64     `json:"host_user_id,omitempty"`
	HostName      string     `json:"host_name"`
	DepartmentID  *int64     `json:"department_id,omitempty"`
	Purpose       string     `json:"purpose"`
	ScheduledDate time.Time  `json:"scheduled_date"`
	WindowStart   time.Time  `json:"window_start"`
	WindowEnd     *time.Time `json:"window_end,omitempty"`
}
