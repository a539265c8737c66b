package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/visitdesk/internal/domain"
)

type VisitorsRepo interface {
	Create(ctx context.Context, in *domain.VisitorCreateReq) (*domain.Visitor, error)
	GetByID(ctx context.Context, id int64) (*domain.Visitor, error)
	FindByEmail(ctx context.Context, email string) (*domain.Visitor, error)
	List(ctx context.Context, limit, offset int) ([]domain.Visitor, error)
}

type VisitorsRepoImpl struct{ pool *pgxpool.Pool }

func NewVisitorsRepo(pool *pgxpool.Pool) *VisitorsRepoImpl { return &VisitorsRepoImpl{pool: pool} }

const visitorCols = `id, name, email, phone, company, created_at, updated_at`

func scanVisitor(row pgx.Row) (*domain.Visitor, error) {
	var v domain.Visitor
	err := row.Scan(&v.ID, &v.Name, &v.Email, &v.Phone, &v.Company, &v.CreatedAt, &v.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VisitorsRepoImpl) Create(ctx context.Context, in *domain.VisitorCreateReq) (*domain.Visitor, error) {
	const q = `INSERT INTO visitors (name, email, phone, company)
VALUES ($1,$2,$3,$4)
RETURNING ` + visitorCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisitor(r.pool.QueryRow(ctx, q, in.Name, in.Email, in.Phone, in.Company))
}

func (r *VisitorsRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Visitor, error) {
	const q = `SELECT ` + visitorCols + ` FROM visitors WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisitor(r.pool.QueryRow(ctx, q, id))
}

func (r *VisitorsRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.Visitor, error) {
	const q = `SELECT ` + visitorCols + ` FROM visitors WHERE email=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisitor(r.pool.QueryRow(ctx, q, email))
}

func (r *VisitorsRepoImpl) List(ctx context.Context, limit, offset int) ([]domain.Visitor, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + visitorCols + ` FROM visitors ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vs := make([]domain.Visitor, 0, limit)
	for rows.Next() {
		var v domain.Visitor
		if err := rows.Scan(&v.ID, &v.Name, &v.Email, &v.Phone, &v.Company, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, rows.Err()
}

var _ VisitorsRepo = (*VisitorsRepoImpl)(nil)
