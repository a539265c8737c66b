package search

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/visitdesk/internal/domain"
)

// Indexer is the search projection over visits. Indexing is fire and
// forget: callers log failures and move on. Postgres stays the system of
// record and the index is rebuilt lazily as visits change.
type Indexer interface {
	IndexVisit(ctx context.Context, v *domain.Visit, visitor *domain.Visitor) error
	DeleteVisit(ctx context.Context, id int64) error
}

type RedisIndexer struct {
	rdb *redis.Client
}

func NewRedisIndexer(rdb *redis.Client) *RedisIndexer {
	return &RedisIndexer{rdb: rdb}
}

func visitKey(id int64) string { return fmt.Sprintf("visit:%d", id) }

func statusKey(s domain.VisitStatus) string { return "visits:status:" + string(s) }

func dayKey(day time.Time) string { return "visits:day:" + day.Format("2006-01-02") }

var allStatuses = []domain.VisitStatus{
	domain.VisitScheduled, domain.VisitCheckedIn, domain.VisitCheckedOut, domain.VisitCancelled,
}

func (i *RedisIndexer) IndexVisit(ctx context.Context, v *domain.Visit, visitor *domain.Visitor) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	fields := map[string]interface{}{
		"status":         string(v.Status),
		"host_name":      v.HostName,
		"scheduled_date": v.ScheduledDate.Format("2006-01-02"),
	}
	if visitor != nil {
		fields["visitor_name"] = visitor.Name
		fields["visitor_company"] = visitor.Company
	}

	pipe := i.rdb.TxPipeline()
	pipe.HSet(ctx, visitKey(v.ID), fields)
	for _, s := range allStatuses {
		if s == v.Status {
			pipe.SAdd(ctx, statusKey(s), v.ID)
		} else {
			pipe.SRem(ctx, statusKey(s), v.ID)
		}
	}
	pipe.SAdd(ctx, dayKey(v.ScheduledDate), v.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (i *RedisIndexer) DeleteVisit(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pipe := i.rdb.TxPipeline()
	pipe.Del(ctx, visitKey(id))
	for _, s := range allStatuses {
		pipe.SRem(ctx, statusKey(s), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

var _ Indexer = (*RedisIndexer)(nil)
