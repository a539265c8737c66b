package domain

import (
	"encoding/json"
	"time"
)

type PrintJobStatus string

const (
	JobPending   PrintJobStatus = "pending"
	JobPrinting  PrintJobStatus = "printing"
	JobCompleted PrintJobStatus = "completed"
	JobFailed    PrintJobStatus = "failed"
	JobCancelled PrintJobStatus = "cancelled"
)

func ParsePrintJobStatus(s string) (PrintJobStatus, bool) {
	switch PrintJobStatus(s) {
	case JobPending, JobPrinting, JobCompleted, JobFailed, JobCancelled:
		return PrintJobStatus(s), true
	default:
		return "", false
	}
}

type PrintJobType string

const (
	JobTypeBadge    PrintJobType = "badge"
	JobTypeDocument PrintJobType = "document"
)

// Print priorities. Kiosk self-service badges jump ahead of staff-initiated
// prints and bulk reprints; ties are broken oldest-first.
const (
	PriorityNormal = 1
	PriorityKiosk  = 5
)

type PrintJob struct {
	ID       int64           `json:"id"`
	Type     PrintJobType    `json:"type"`
	Status   PrintJobStatus  `json:"status"`
	Payload  json.RawMessage `json:"payload"`
	Copies   int             `json:"copies"`
	Priority int             `json:"priority"`
	VisitID  *int64          `json:"visit_id,omitempty"`

	LastError *string    `json:"last_error,omitempty"`
	PrintedAt *time.Time `json:"printed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// QueueCounts is the per-state shape of the queue status endpoint.
type QueueCounts struct {
	Pending   int64 `json:"pending"`
	Printing  int64 `json:"printing"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// BadgePayload is what a badge print job carries on the wire. CodePNG is the
// rendered QR as base64 PNG bytes; it may be empty when rendering failed and
// the badge falls back to number-only.
type BadgePayload struct {
	VisitID     int64     `json:"visit_id"`
	VisitorName string    `json:"visitor_name"`
	Company     string    `json:"company,omitempty"`
	HostName    string    `json:"host_name"`
	BadgeNumber string    `json:"badge_number"`
	CodePNG     []byte    `json:"code_png,omitempty"`
	ValidUntil  time.Time `json:"valid_until"`
}
