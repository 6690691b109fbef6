package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-registry/internal/domain/audit"
	"github.com/xenking/order-registry/internal/domain/order"
)

const (
	insertChangeSQL = `INSERT INTO change_log
	(id, object_class, object_id, action, version, data, username, logged_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	latestVersionSQL = `SELECT COALESCE(MAX(version), 0) FROM change_log
	WHERE object_class = $1 AND object_id = $2`

	listChangesSQL = `SELECT id, object_class, object_id, action, version, data, username, logged_at
	FROM change_log WHERE object_class = $1 AND object_id = $2 ORDER BY version`

	insertTrailSQL = `INSERT INTO audit_trail
	(id, application, resource, resource_id, method, route, status_code, request_id, user_agent, username, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	listTrailSQL = `SELECT id, application, resource, resource_id, method, route, status_code, request_id, user_agent, username, created_at
	FROM audit_trail WHERE resource = $1 AND resource_id = $2 ORDER BY created_at, id`
)

var (
	_ audit.ChangeLogRepository = (*ChangeLogRepository)(nil)
	_ audit.TrailRepository     = (*TrailRepository)(nil)
)

// ChangeLogRepository implements audit.ChangeLogRepository backed by PostgreSQL.
type ChangeLogRepository struct {
	pool *pgxpool.Pool
}

// NewChangeLogRepository returns a ChangeLogRepository that uses the given pool.
func NewChangeLogRepository(pool *pgxpool.Pool) *ChangeLogRepository {
	return &ChangeLogRepository{pool: pool}
}

// Append inserts entries in one transaction. A duplicate version fails the
// whole batch.
func (r *ChangeLogRepository) Append(ctx context.Context, entries []audit.ChangeLog) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(insertChangeSQL,
				e.ID, e.ObjectClass, e.ObjectID, string(e.Action), e.Version,
				encodeStringMap(e.Data), e.Username, e.LoggedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "insert change log")
		}
		return nil
	})
}

// LatestVersion returns the highest stored version of the object, or 0.
func (r *ChangeLogRepository) LatestVersion(ctx context.Context, class, id string) (int, error) {
	var version int
	if err := r.pool.QueryRow(ctx, latestVersionSQL, class, id).Scan(&version); err != nil {
		return 0, errors.Wrap(err, "query latest version")
	}
	return version, nil
}

// List returns the object's entries ordered by version.
func (r *ChangeLogRepository) List(ctx context.Context, class, id string) ([]audit.ChangeLog, error) {
	rows, err := r.pool.Query(ctx, listChangesSQL, class, id)
	if err != nil {
		return nil, errors.Wrap(err, "query change log")
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.ChangeLog, error) {
		var (
			e      audit.ChangeLog
			action string
			data   []byte
		)
		if err := row.Scan(&e.ID, &e.ObjectClass, &e.ObjectID, &action, &e.Version, &data, &e.Username, &e.LoggedAt); err != nil {
			return e, err
		}
		e.Action = order.Action(action)
		m, err := decodeStringMap(data)
		e.Data = m
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan change log")
	}
	return entries, nil
}

// TrailRepository implements audit.TrailRepository backed by PostgreSQL.
type TrailRepository struct {
	pool *pgxpool.Pool
}

// NewTrailRepository returns a TrailRepository that uses the given pool.
func NewTrailRepository(pool *pgxpool.Pool) *TrailRepository {
	return &TrailRepository{pool: pool}
}

// Record inserts t.
func (r *TrailRepository) Record(ctx context.Context, t audit.Trail) error {
	_, err := r.pool.Exec(ctx, insertTrailSQL,
		t.ID, t.Application, t.Resource, t.ResourceID, t.Method, t.Route,
		t.StatusCode, t.RequestID, t.UserAgent, t.Username, t.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert audit trail")
	}
	return nil
}

// List returns the resource's records, oldest first.
func (r *TrailRepository) List(ctx context.Context, resource, id string) ([]audit.Trail, error) {
	rows, err := r.pool.Query(ctx, listTrailSQL, resource, id)
	if err != nil {
		return nil, errors.Wrap(err, "query audit trail")
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Trail, error) {
		var t audit.Trail
		err := row.Scan(&t.ID, &t.Application, &t.Resource, &t.ResourceID, &t.Method, &t.Route,
			&t.StatusCode, &t.RequestID, &t.UserAgent, &t.Username, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan audit trail")
	}
	return records, nil
}
