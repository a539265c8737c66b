package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/visitdesk/internal/domain"
)

type AuditRepo interface {
	Record(ctx context.Context, actor, action string, targetID int64, detail string) error
	ListRecent(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}

type AuditRepoImpl struct{ pool *pgxpool.Pool }

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepoImpl { return &AuditRepoImpl{pool: pool} }

func (r *AuditRepoImpl) Record(ctx context.Context, actor, action string, targetID int64, detail string) error {
	const q = `INSERT INTO audit_records (id, actor, action, target_id, detail)
VALUES ($1,$2,$3,$4,$5)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, uuid.NewString(), actor, action, targetID, detail)
	return err
}

func (r *AuditRepoImpl) ListRecent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT id, actor, action, target_id, detail, created_at
FROM audit_records ORDER BY created_at DESC LIMIT $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs := make([]domain.AuditRecord, 0, limit)
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.Actor, &a.Action, &a.TargetID, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		rs = append(rs, a)
	}
	return rs, rows.Err()
}

var _ AuditRepo = (*AuditRepoImpl)(nil)
