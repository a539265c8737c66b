package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/visitdesk/internal/domain"
)

type PrintJobsRepo interface {
	Enqueue(ctx context.Context, jobType domain.PrintJobType, payload json.RawMessage, copies, priority int, visitID *int64) (*domain.PrintJob, error)
	GetByID(ctx context.Context, id int64) (*domain.PrintJob, error)
	List(ctx context.Context, limit, offset int) ([]domain.PrintJob, error)
	ListPending(ctx context.Context, limit int) ([]domain.PrintJob, error)

	// ClaimPending atomically selects up to limit pending jobs ordered by
	// (priority desc, created_at asc) and marks them printing. Concurrent
	// claimants never receive the same job.
	ClaimPending(ctx context.Context, limit int) ([]domain.PrintJob, error)

	MarkCompleted(ctx context.Context, id int64, printedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string) error

	// Retry re-queues a failed job; Cancel withdraws a pending one. Both
	// report whether a row actually changed state.
	Retry(ctx context.Context, id int64) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)

	Counts(ctx context.Context) (*domain.QueueCounts, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PrintJobsRepoImpl struct{ pool *pgxpool.Pool }

func NewPrintJobsRepo(pool *pgxpool.Pool) *PrintJobsRepoImpl { return &PrintJobsRepoImpl{pool: pool} }

const printJobCols = `id, type, status, payload, copies, priority, visit_id,
last_error, printed_at, created_at, updated_at`

func scanPrintJob(row pgx.Row) (*domain.PrintJob, error) {
	var j domain.PrintJob
	err := row.Scan(
		&j.ID, &j.Type, &j.Status, &j.Payload, &j.Copies, &j.Priority, &j.VisitID,
		&j.LastError, &j.PrintedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *PrintJobsRepoImpl) Enqueue(ctx context.Context, jobType domain.PrintJobType, payload json.RawMessage, copies, priority int, visitID *int64) (*domain.PrintJob, error) {
	if copies < 1 {
		copies = 1
	}
	const q = `INSERT INTO print_jobs (type, status, payload, copies, priority, visit_id)
VALUES ($1,'pending',$2,$3,$4,$5)
RETURNING ` + printJobCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPrintJob(r.pool.QueryRow(ctx, q, jobType, payload, copies, priority, visitID))
}

func (r *PrintJobsRepoImpl) GetByID(ctx context.Context, id int64) (*domain.PrintJob, error) {
	const q = `SELECT ` + printJobCols + ` FROM print_jobs WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPrintJob(r.pool.QueryRow(ctx, q, id))
}

func (r *PrintJobsRepoImpl) List(ctx context.Context, limit, offset int) ([]domain.PrintJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + printJobCols + ` FROM print_jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrintJobs(rows, limit)
}

func (r *PrintJobsRepoImpl) ListPending(ctx context.Context, limit int) ([]domain.PrintJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const q = `SELECT ` + printJobCols + ` FROM print_jobs
WHERE status='pending'
ORDER BY priority DESC, created_at ASC
LIMIT $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrintJobs(rows, limit)
}

func (r *PrintJobsRepoImpl) ClaimPending(ctx context.Context, limit int) ([]domain.PrintJob, error) {
	if limit <= 0 {
		limit = 5
	}
	// SKIP LOCKED keeps two workers from ever claiming the same row; the
	// ordering keys are re-derived on every claim, not enqueue order.
	const q = `WITH claimed AS (
    SELECT id FROM print_jobs
    WHERE status='pending'
    ORDER BY priority DESC, created_at ASC
    LIMIT $1
    FOR UPDATE SKIP LOCKED
  ), updated AS (
    UPDATE print_jobs SET status='printing', updated_at=now()
    FROM claimed WHERE print_jobs.id=claimed.id
    RETURNING print_jobs.*
  )
  SELECT ` + printJobCols + ` FROM updated ORDER BY priority DESC, created_at ASC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrintJobs(rows, limit)
}

func collectPrintJobs(rows pgx.Rows, capHint int) ([]domain.PrintJob, error) {
	js := make([]domain.PrintJob, 0, capHint)
	for rows.Next() {
		var j domain.PrintJob
		if err := rows.Scan(
			&j.ID, &j.Type, &j.Status, &j.Payload, &j.Copies, &j.Priority, &j.VisitID,
			&j.LastError, &j.PrintedAt, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		js = append(js, j)
	}
	return js, rows.Err()
}

func (r *PrintJobsRepoImpl) MarkCompleted(ctx context.Context, id int64, printedAt time.Time) error {
	const q = `UPDATE print_jobs SET status='completed', printed_at=$2, last_error=NULL, updated_at=now()
WHERE id=$1 AND status='printing'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, id, printedAt)
	return err
}

func (r *PrintJobsRepoImpl) MarkFailed(ctx context.Context, id int64, lastError string) error {
	const q = `UPDATE print_jobs SET status='failed', last_error=$2, updated_at=now()
WHERE id=$1 AND status='printing'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, id, lastError)
	return err
}

func (r *PrintJobsRepoImpl) Retry(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE print_jobs SET status='pending', last_error=NULL, updated_at=now()
WHERE id=$1 AND status='failed'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PrintJobsRepoImpl) Cancel(ctx context.Context, id int64) (bool, error) {
	// Only pending jobs can be withdrawn; a job already printing runs to
	// completion or failure.
	const q = `UPDATE print_jobs SET status='cancelled', updated_at=now()
WHERE id=$1 AND status='pending'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PrintJobsRepoImpl) Counts(ctx context.Context) (*domain.QueueCounts, error) {
	const q = `SELECT
  COUNT(*) FILTER (WHERE status='pending'),
  COUNT(*) FILTER (WHERE status='printing'),
  COUNT(*) FILTER (WHERE status='completed'),
  COUNT(*) FILTER (WHERE status='failed'),
  COUNT(*) FILTER (WHERE status='cancelled')
FROM print_jobs`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var c domain.QueueCounts
	if err := r.pool.QueryRow(ctx, q).Scan(&c.Pending, &c.Printing, &c.Completed, &c.Failed, &c.Cancelled); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCompletedBefore prunes completed jobs past the retention window.
// Failed jobs are kept until an operator retries or cancels them.
func (r *PrintJobsRepoImpl) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM print_jobs WHERE status='completed' AND printed_at < $1`
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

var _ PrintJobsRepo = (*PrintJobsRepoImpl)(nil)
