package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/visitdesk/internal/domain"
)

type VisitsRepo interface {
	Create(ctx context.Context, in *domain.VisitCreateReq, pin string) (*domain.Visit, error)
	GetByID(ctx context.Context, id int64) (*domain.Visit, error)
	GetByPinForDay(ctx context.Context, pin string, day time.Time) (*domain.Visit, error)
	GetForBadgeCheckout(ctx context.Context, id int64, code string) (*domain.Visit, error)
	List(ctx context.Context, limit, offset int) ([]domain.Visit, error)
	ListByStatus(ctx context.Context, status domain.VisitStatus, limit, offset int) ([]domain.Visit, error)

	// Transition updates are conditional on the current status so a
	// concurrent transition can never be overwritten; nil,nil means the
	// precondition no longer held.
	CheckIn(ctx context.Context, id int64, at time.Time, cred *domain.BadgeCredential) (*domain.Visit, error)
	CheckOut(ctx context.Context, id int64, at time.Time) (*domain.Visit, error)
	Cancel(ctx context.Context, id int64) (*domain.Visit, error)
	Reactivate(ctx context.Context, id int64, pin string) (*domain.Visit, error)
	Duplicate(ctx context.Context, id int64, scheduledDate, windowStart time.Time, pin string) (*domain.Visit, error)

	// MarkBadgeIssued is the only visit mutation the print pipeline may
	// perform. It never touches status and is a no-op once set.
	MarkBadgeIssued(ctx context.Context, id int64, at time.Time) error
}

type VisitsRepoImpl struct{ pool *pgxpool.Pool }

func NewVisitsRepo(pool *pgxpool.Pool) *VisitsRepoImpl { return &VisitsRepoImpl{pool: pool} }

const visitCols = `id, status,
visitor_id, host_user_id, host_name, department_id, purpose,
scheduled_date, window_start, window_end,
actual_check_in, actual_check_out,
check_in_pin, badge_number, badge_code, badge_valid_until, badge_issued, badge_issued_at,
created_at, updated_at`

func scanVisit(row pgx.Row) (*domain.Visit, error) {
	var v domain.Visit
	err := row.Scan(
		&v.ID, &v.Status,
		&v.VisitorID, &v.HostUserID, &v.HostName, &v.DepartmentID, &v.Purpose,
		&v.ScheduledDate, &v.WindowStart, &v.WindowEnd,
		&v.ActualCheckIn, &v.ActualCheckOut,
		&v.CheckInPin, &v.BadgeNumber, &v.BadgeCode, &v.BadgeValidUntil, &v.BadgeIssued, &v.BadgeIssuedAt,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VisitsRepoImpl) Create(ctx context.Context, in *domain.VisitCreateReq, pin string) (*domain.Visit, error) {
	const q = `INSERT INTO visits (
    status, visitor_id, host_user_id, host_name, department_id, purpose,
    scheduled_date, window_start, window_end, check_in_pin
  ) VALUES ('scheduled',$1,$2,$3,$4,$5,$6,$7,$8,$9)
  RETURNING ` + visitCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanVisit(r.pool.QueryRow(ctx, q,
		in.VisitorID, in.HostUserID, in.HostName, in.DepartmentID, in.Purpose,
		in.ScheduledDate, in.WindowStart, in.WindowEnd, pin,
	))
}

func (r *VisitsRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisit(r.pool.QueryRow(ctx, q, id))
}

// dayText renders the caller's local calendar day as text so the date
// comparison never depends on the database session timezone.
func dayText(t time.Time) string { return t.Format("2006-01-02") }

// GetByPinForDay resolves a self check-in PIN. A PIN only matches a visit
// scheduled for the given day that is still in scheduled status; yesterday's
// PIN or an already-processed visit never matches.
func (r *VisitsRepoImpl) GetByPinForDay(ctx context.Context, pin string, day time.Time) (*domain.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits
WHERE check_in_pin=$1 AND scheduled_date=$2::date AND status='scheduled'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisit(r.pool.QueryRow(ctx, q, pin, dayText(day)))
}

// GetForBadgeCheckout matches a checked-in visit against any accepted
// checkout credential: the badge number, the rendered code payload, or the
// visit id itself.
func (r *VisitsRepoImpl) GetForBadgeCheckout(ctx context.Context, id int64, code string) (*domain.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits
WHERE id=$1 AND status='checked_in'
  AND (badge_number=$2 OR badge_code=$2 OR CAST(id AS TEXT)=$2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisit(r.pool.QueryRow(ctx, q, id, code))
}

func (r *VisitsRepoImpl) List(ctx context.Context, limit, offset int) ([]domain.Visit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + visitCols + ` FROM visits ORDER BY scheduled_date DESC, window_start DESC LIMIT $1 OFFSET $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows, limit)
}

func (r *VisitsRepoImpl) ListByStatus(ctx context.Context, status domain.VisitStatus, limit, offset int) ([]domain.Visit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + visitCols + ` FROM visits WHERE status=$1 ORDER BY scheduled_date DESC, window_start DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows, limit)
}

func collectVisits(rows pgx.Rows, capHint int) ([]domain.Visit, error) {
	vs := make([]domain.Visit, 0, capHint)
	for rows.Next() {
		var v domain.Visit
		if err := rows.Scan(
			&v.ID, &v.Status,
			&v.VisitorID, &v.HostUserID, &v.HostName, &v.DepartmentID, &v.Purpose,
			&v.ScheduledDate, &v.WindowStart, &v.WindowEnd,
			&v.ActualCheckIn, &v.ActualCheckOut,
			&v.CheckInPin, &v.BadgeNumber, &v.BadgeCode, &v.BadgeValidUntil, &v.BadgeIssued, &v.BadgeIssuedAt,
			&v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, rows.Err()
}

func (r *VisitsRepoImpl) CheckIn(ctx context.Context, id int64, at time.Time, cred *domain.BadgeCredential) (*domain.Visit, error) {
	const q = `UPDATE visits SET
  status='checked_in', actual_check_in=$2,
  badge_number=$3, badge_code=$4, badge_valid_until=$5, badge_issued=true, badge_issued_at=$2,
  updated_at=now()
WHERE id=$1 AND status='scheduled'
RETURNING ` + visitCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisit(r.pool.QueryRow(ctx, q, id, at, cred.Number, cred.Code, cred.ValidUntil))
}

func (r *VisitsRepoImpl) CheckOut(ctx context.Context, id int64, at time.Time) (*domain.Visit, error) {
	const q = `UPDATE visits SET status='checked_out', actual_check_out=$2, updated_at=now()
WHERE id=$1 AND status='checked_in'
RETURNING ` + visitCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisit(r.pool.QueryRow(ctx, q, id, at))
}

func (r *VisitsRepoImpl) Cancel(ctx context.Context, id int64) (*domain.Visit, error) {
	const q = `UPDATE visits SET status='cancelled', updated_at=now()
WHERE id=$1 AND status='scheduled'
RETURNING ` + visitCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisit(r.pool.QueryRow(ctx, q, id))
}

// Reactivate returns a cancelled or checked-out visit to scheduled. The old
// badge credential is discarded, never reused, and a fresh PIN is assigned.
func (r *VisitsRepoImpl) Reactivate(ctx context.Context, id int64, pin string) (*domain.Visit, error) {
	const q = `UPDATE visits SET
  status='scheduled', actual_check_in=NULL, actual_check_out=NULL,
  badge_number=NULL, badge_code=NULL, badge_valid_until=NULL, badge_issued=false, badge_issued_at=NULL,
  check_in_pin=$2, updated_at=now()
WHERE id=$1 AND status IN ('cancelled','checked_out')
RETURNING ` + visitCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisit(r.pool.QueryRow(ctx, q, id, pin))
}

// Duplicate inserts a new scheduled visit copying the who/why of an existing
// one. Unlike Reactivate it leaves the source row untouched, so the audit
// history of the original visit is preserved.
func (r *VisitsRepoImpl) Duplicate(ctx context.Context, id int64, scheduledDate, windowStart time.Time, pin string) (*domain.Visit, error) {
	const q = `INSERT INTO visits (
    status, visitor_id, host_user_id, host_name, department_id, purpose,
    scheduled_date, window_start, window_end, check_in_pin
  )
  SELECT 'scheduled', visitor_id, host_user_id, host_name, department_id, purpose,
    $2, $3, NULL, $4
  FROM visits WHERE id=$1
  RETURNING ` + visitCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisit(r.pool.QueryRow(ctx, q, id, scheduledDate, windowStart, pin))
}

func (r *VisitsRepoImpl) MarkBadgeIssued(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE visits SET badge_issued=true, badge_issued_at=COALESCE(badge_issued_at,$2), updated_at=now()
WHERE id=$1 AND badge_issued=false`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, id, at)
	return err
}

var _ VisitsRepo = (*VisitsRepoImpl)(nil)
