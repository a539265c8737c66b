package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meridianhq/visitdesk/internal/badge"
	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/internal/platform/mailer"
	"github.com/meridianhq/visitdesk/internal/repo/postgres"
	"github.com/meridianhq/visitdesk/internal/search"
	"github.com/meridianhq/visitdesk/pkg/events"
	"github.com/meridianhq/visitdesk/pkg/logger"
)

var (
	ErrVisitNotFound   = errors.New("visit not found")
	ErrVisitorNotFound = errors.New("visitor not found")
	// ErrBadgeMismatch means the presented checkout credential matched no
	// checked-in visit.
	ErrBadgeMismatch = errors.New("badge verification failed")
	// ErrBadgeExpired means the credential matched but its validity window
	// has passed. Expiry is checked only here, at verification time.
	ErrBadgeExpired = errors.New("badge expired")
)

type VisitService interface {
	CreateVisit(ctx context.Context, req *domain.VisitCreateReq) (*domain.Visit, error)
	GetVisit(ctx context.Context, id int64) (*domain.Visit, error)
	ListVisits(ctx context.Context, status *domain.VisitStatus, limit, offset int) ([]domain.Visit, error)

	CheckIn(ctx context.Context, id int64, actor string, kiosk bool) (*domain.Visit, error)
	CheckOut(ctx context.Context, id int64, actor string) (*domain.Visit, error)
	Cancel(ctx context.Context, id int64, actor string) (*domain.Visit, error)
	Reactivate(ctx context.Context, id int64, actor string) (*domain.Visit, error)
	Duplicate(ctx context.Context, id int64, scheduledDate, windowStart time.Time, actor string) (*domain.Visit, error)

	VerifyPin(ctx context.Context, pin string) (*domain.Visit, error)
	CheckInWithPin(ctx context.Context, pin string) (*domain.Visit, error)
	CheckOutByBadge(ctx context.Context, visitID int64, badgeCode string) (*domain.Visit, error)
}

type visitService struct {
	visits   postgres.VisitsRepo
	visitors postgres.VisitorsRepo
	users    postgres.UsersRepo
	jobs     postgres.PrintJobsRepo
	audit    postgres.AuditRepo
	issuer   *badge.Issuer
	indexer  search.Indexer
	eventBus events.Publisher
	mail     mailer.Service
}

func NewVisitService(
	visits postgres.VisitsRepo,
	visitors postgres.VisitorsRepo,
	users postgres.UsersRepo,
	jobs postgres.PrintJobsRepo,
	audit postgres.AuditRepo,
	issuer *badge.Issuer,
	indexer search.Indexer,
	eventBus events.Publisher,
	mail mailer.Service,
) VisitService {
	return &visitService{
		visits:   visits,
		visitors: visitors,
		users:    users,
		jobs:     jobs,
		audit:    audit,
		issuer:   issuer,
		indexer:  indexer,
		eventBus: eventBus,
		mail:     mail,
	}
}

func (s *visitService) CreateVisit(ctx context.Context, req *domain.VisitCreateReq) (*domain.Visit, error) {
	visitor, err := s.visitors.GetByID(ctx, req.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load visitor: %w", err)
	}
	if visitor == nil {
		return nil, ErrVisitorNotFound
	}

	pin, err := badge.NewPin()
	if err != nil {
		return nil, fmt.Errorf("failed to generate check-in pin: %w", err)
	}

	visit, err := s.visits.Create(ctx, req, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to create visit: %w", err)
	}

	s.reindex(ctx, visit, visitor)
	s.publish(ctx, events.VisitScheduled, events.VisitStatusEvent{VisitID: visit.ID, Status: string(visit.Status)})
	return visit, nil
}

func (s *visitService) GetVisit(ctx context.Context, id int64) (*domain.Visit, error) {
	return s.visits.GetByID(ctx, id)
}

func (s *visitService) ListVisits(ctx context.Context, status *domain.VisitStatus, limit, offset int) ([]domain.Visit, error) {
	if status != nil {
		return s.visits.ListByStatus(ctx, *status, limit, offset)
	}
	return s.visits.List(ctx, limit, offset)
}

// CheckIn drives the scheduled → checked_in transition. The status update is
// the transactional boundary; badge printing, indexing, notification and
// audit are dispatched after it and individually tolerated on failure.
func (s *visitService) CheckIn(ctx context.Context, id int64, actor string, kiosk bool) (*domain.Visit, error) {
	visit, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	if err := visit.CanCheckIn(); err != nil {
		return nil, err
	}

	now := time.Now()
	cred, err := s.issuer.Issue(visit, now)
	if err != nil {
		return nil, fmt.Errorf("failed to issue badge: %w", err)
	}

	updated, err := s.visits.CheckIn(ctx, id, now, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to check in visit: %w", err)
	}
	if updated == nil {
		// Lost a race with a concurrent transition; report the status that won.
		current, err := s.visits.GetByID(ctx, id)
		if err != nil || current == nil {
			return nil, ErrVisitNotFound
		}
		return nil, &domain.GuardError{Action: "check-in", Current: current.Status}
	}

	visitor, err := s.visitors.GetByID(ctx, updated.VisitorID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load visitor for badge payload", "error", err, "visit_id", id)
	}

	s.enqueueBadgePrint(ctx, updated, visitor, cred, kiosk)
	s.reindex(ctx, updated, visitor)
	s.notifyHost(ctx, updated, visitor, now)
	s.writeAudit(ctx, actor, "visit.check_in", id, fmt.Sprintf("badge %s issued", cred.Number))

	visitorName := ""
	if visitor != nil {
		visitorName = visitor.Name
	}
	s.publish(ctx, events.VisitCheckedIn, events.VisitCheckedInEvent{
		VisitID:     updated.ID,
		VisitorName: visitorName,
		HostName:    updated.HostName,
		BadgeNumber: cred.Number,
		Kiosk:       kiosk,
		CheckedInAt: now,
	})

	return updated, nil
}

func (s *visitService) CheckOut(ctx context.Context, id int64, actor string) (*domain.Visit, error) {
	visit, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	if err := visit.CanCheckOut(); err != nil {
		return nil, err
	}

	now := time.Now()
	updated, err := s.visits.CheckOut(ctx, id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check out visit: %w", err)
	}
	if updated == nil {
		current, err := s.visits.GetByID(ctx, id)
		if err != nil || current == nil {
			return nil, ErrVisitNotFound
		}
		return nil, &domain.GuardError{Action: "check-out", Current: current.Status}
	}

	s.reindex(ctx, updated, nil)
	s.writeAudit(ctx, actor, "visit.check_out", id, "visitor checked out")
	s.publish(ctx, events.VisitCheckedOut, events.VisitCheckedOutEvent{VisitID: id, CheckedOutAt: now})

	return updated, nil
}

func (s *visitService) Cancel(ctx context.Context, id int64, actor string) (*domain.Visit, error) {
	visit, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	if err := visit.CanCancel(); err != nil {
		return nil, err
	}

	updated, err := s.visits.Cancel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel visit: %w", err)
	}
	if updated == nil {
		current, err := s.visits.GetByID(ctx, id)
		if err != nil || current == nil {
			return nil, ErrVisitNotFound
		}
		return nil, &domain.GuardError{Action: "cancel", Current: current.Status}
	}

	s.reindex(ctx, updated, nil)
	s.writeAudit(ctx, actor, "visit.cancel", id, "visit cancelled")
	s.publish(ctx, events.VisitCancelled, events.VisitStatusEvent{VisitID: id, Status: string(updated.Status)})

	return updated, nil
}

// Reactivate returns a cancelled or checked-out visit to scheduled, clearing
// actual timestamps and the old credential. Terminal states are recoverable
// by operator intent; the previous badge is never reused.
func (s *visitService) Reactivate(ctx context.Context, id int64, actor string) (*domain.Visit, error) {
	visit, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	if err := visit.CanReactivate(); err != nil {
		return nil, err
	}

	pin, err := badge.NewPin()
	if err != nil {
		return nil, fmt.Errorf("failed to generate check-in pin: %w", err)
	}

	updated, err := s.visits.Reactivate(ctx, id, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to reactivate visit: %w", err)
	}
	if updated == nil {
		current, err := s.visits.GetByID(ctx, id)
		if err != nil || current == nil {
			return nil, ErrVisitNotFound
		}
		return nil, &domain.GuardError{Action: "reactivate", Current: current.Status}
	}

	s.reindex(ctx, updated, nil)
	s.writeAudit(ctx, actor, "visit.reactivate", id, "visit returned to scheduled")
	s.publish(ctx, events.VisitReactivated, events.VisitStatusEvent{VisitID: id, Status: string(updated.Status)})

	return updated, nil
}

// Duplicate creates a new scheduled visit copying visitor/host/department/
// purpose. Unlike Reactivate it works from any status and never mutates the
// source row.
func (s *visitService) Duplicate(ctx context.Context, id int64, scheduledDate, windowStart time.Time, actor string) (*domain.Visit, error) {
	pin, err := badge.NewPin()
	if err != nil {
		return nil, fmt.Errorf("failed to generate check-in pin: %w", err)
	}

	dup, err := s.visits.Duplicate(ctx, id, scheduledDate, windowStart, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to duplicate visit: %w", err)
	}
	if dup == nil {
		return nil, ErrVisitNotFound
	}

	s.reindex(ctx, dup, nil)
	s.writeAudit(ctx, actor, "visit.duplicate", id, fmt.Sprintf("duplicated as visit %d", dup.ID))
	s.publish(ctx, events.VisitScheduled, events.VisitStatusEvent{VisitID: dup.ID, Status: string(dup.Status)})

	return dup, nil
}

// VerifyPin resolves a kiosk PIN. Only a visit scheduled today and still in
// scheduled status matches; nil means no match, not an error.
func (s *visitService) VerifyPin(ctx context.Context, pin string) (*domain.Visit, error) {
	if pin == "" {
		return nil, nil
	}
	return s.visits.GetByPinForDay(ctx, pin, time.Now())
}

func (s *visitService) CheckInWithPin(ctx context.Context, pin string) (*domain.Visit, error) {
	visit, err := s.VerifyPin(ctx, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to verify pin: %w", err)
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	return s.CheckIn(ctx, visit.ID, domain.ActorKiosk, true)
}

// CheckOutByBadge accepts the badge number, the rendered code payload, or
// the visit id itself as the checkout credential, matched against a visit
// currently checked in. A visit in any other status, or a credential past
// its validity window, is a verification failure, reported as such.
func (s *visitService) CheckOutByBadge(ctx context.Context, visitID int64, badgeCode string) (*domain.Visit, error) {
	visit, err := s.visits.GetForBadgeCheckout(ctx, visitID, badgeCode)
	if err != nil {
		return nil, fmt.Errorf("failed to verify badge: %w", err)
	}
	if visit == nil {
		current, err := s.visits.GetByID(ctx, visitID)
		if err != nil {
			return nil, fmt.Errorf("failed to get visit: %w", err)
		}
		if current == nil {
			return nil, ErrVisitNotFound
		}
		if current.Status != domain.VisitCheckedIn {
			return nil, &domain.GuardError{Action: "check-out", Current: current.Status}
		}
		return nil, ErrBadgeMismatch
	}
	if visit.BadgeValidUntil != nil && time.Now().After(*visit.BadgeValidUntil) {
		return nil, ErrBadgeExpired
	}
	return s.CheckOut(ctx, visit.ID, domain.ActorKiosk)
}

// --- best-effort side effects ---

func (s *visitService) enqueueBadgePrint(ctx context.Context, visit *domain.Visit, visitor *domain.Visitor, cred *domain.BadgeCredential, kiosk bool) {
	payload := domain.BadgePayload{
		VisitID:     visit.ID,
		HostName:    visit.HostName,
		BadgeNumber: cred.Number,
		ValidUntil:  cred.ValidUntil,
	}
	if visitor != nil {
		payload.VisitorName = visitor.Name
		payload.Company = visitor.Company
	}

	png, err := s.issuer.RenderCode(cred.Code)
	if err != nil {
		// Degrade to a number-only badge; the check-in already succeeded.
		logger.ErrorContext(ctx, "Badge code rendering failed, printing without scannable code",
			"error", err, "visit_id", visit.ID)
	} else {
		payload.CodePNG = png
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal badge payload", "error", err, "visit_id", visit.ID)
		return
	}

	priority := domain.PriorityNormal
	if kiosk {
		priority = domain.PriorityKiosk
	}
	visitID := visit.ID
	job, err := s.jobs.Enqueue(ctx, domain.JobTypeBadge, raw, 1, priority, &visitID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to enqueue badge print job, print manually from the queue",
			"error", err, "visit_id", visit.ID)
		return
	}

	s.publish(ctx, events.PrintJobEnqueued, events.PrintJobEnqueuedEvent{
		JobID:    job.ID,
		VisitID:  visit.ID,
		Priority: priority,
	})
}

func (s *visitService) reindex(ctx context.Context, visit *domain.Visit, visitor *domain.Visitor) {
	if s.indexer == nil {
		return
	}
	if visitor == nil {
		v, err := s.visitors.GetByID(ctx, visit.VisitorID)
		if err == nil {
			visitor = v
		}
	}
	if err := s.indexer.IndexVisit(ctx, visit, visitor); err != nil {
		logger.ErrorContext(ctx, "Failed to reindex visit", "error", err, "visit_id", visit.ID)
	}
}

func (s *visitService) notifyHost(ctx context.Context, visit *domain.Visit, visitor *domain.Visitor, at time.Time) {
	if s.mail == nil || visit.HostUserID == nil || visitor == nil {
		return
	}
	host, err := s.users.FindByID(ctx, *visit.HostUserID)
	if err != nil || host == nil {
		logger.WarnContext(ctx, "Host lookup failed, skipping arrival notification",
			"error", err, "visit_id", visit.ID)
		return
	}
	if err := s.mail.SendHostArrival(host.Email, host.Name, visitor.Name, at); err != nil {
		logger.ErrorContext(ctx, "Failed to send host arrival notification",
			"error", err, "visit_id", visit.ID)
	}
}

func (s *visitService) writeAudit(ctx context.Context, actor, action string, targetID int64, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actor, action, targetID, detail); err != nil {
		logger.ErrorContext(ctx, "Failed to write audit record",
			"error", err, "action", action, "target_id", targetID)
	}
}

func (s *visitService) publish(ctx context.Context, subject string, data interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}
