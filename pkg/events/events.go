package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/meridianhq/visitdesk/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Visit lifecycle events
	VisitScheduled   = "visit.scheduled"
	VisitCheckedIn   = "visit.checked_in"
	VisitCheckedOut  = "visit.checked_out"
	VisitCancelled   = "visit.cancelled"
	VisitReactivated = "visit.reactivated"

	// Print pipeline events
	PrintJobEnqueued  = "print.job.enqueued"
	PrintJobCompleted = "print.job.completed"
	PrintJobFailed    = "print.job.failed"
)

// Event payloads
type VisitCheckedInEvent struct {
	VisitID     int64     `json:"visit_id"`
	VisitorName string    `json:"visitor_name"`
	HostName    string    `json:"host_name"`
	BadgeNumber string    `json:"badge_number"`
	Kiosk       bool      `json:"kiosk"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

type VisitCheckedOutEvent struct {
	VisitID      int64     `json:"visit_id"`
	CheckedOutAt time.Time `json:"checked_out_at"`
}

type VisitStatusEvent struct {
	VisitID int64  `json:"visit_id"`
	Status  string `json:"status"`
}

type PrintJobEnqueuedEvent struct {
	JobID    int64 `json:"job_id"`
	VisitID  int64 `json:"visit_id,omitempty"`
	Priority int   `json:"priority"`
}

type PrintJobOutcomeEvent struct {
	JobID int64  `json:"job_id"`
	Error string `json:"error,omitempty"`
}
