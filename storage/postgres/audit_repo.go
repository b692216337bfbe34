package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

type auditRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewAuditRepo(db *pgxpool.Pool, log logger.ILogger) storage.IAuditStorage {
	return &auditRepo{db: db, log: log}
}

func (r *auditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (order_id, actor_id, field, new_value)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, entry.OrderID, entry.ActorID, entry.Field, entry.NewValue).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		r.log.Error("failed to append audit entry", logger.Error(err))
	}
	return err
}

func (r *auditRepo) GetByOrder(ctx context.Context, orderID int64) ([]*models.AuditEntry, error) {
	return r.scanEntries(ctx,
		`SELECT id, order_id, actor_id, field, new_value, created_at FROM audit_log WHERE order_id = $1 ORDER BY created_at`,
		orderID)
}

func (r *auditRepo) GetAll(ctx context.Context) ([]*models.AuditEntry, error) {
	return r.scanEntries(ctx,
		`SELECT id, order_id, actor_id, field, new_value, created_at FROM audit_log ORDER BY created_at`)
}

func (r *auditRepo) scanEntries(ctx context.Context, query string, args ...interface{}) ([]*models.AuditEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.ActorID, &e.Field, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
