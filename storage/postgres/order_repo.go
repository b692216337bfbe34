package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

type orderRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewOrderRepo(db *pgxpool.Pool, log logger.ILogger) storage.IOrderStorage {
	return &orderRepo{db: db, log: log}
}

const orderColumns = `id, from_city, to_city, tariff, passengers, price, comment, scheduled_at,
	client_name, client_phone, status, driver_id, dispatcher_id,
	created_at, taken_at, completed_at, cancelled_at, cancelled_by,
	client_informed, driver_informed`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.FromCity, &o.ToCity, &o.Tariff, &o.Passengers, &o.Price, &o.Comment, &o.ScheduledAt,
		&o.ClientName, &o.ClientPhone, &o.Status, &o.DriverID, &o.DispatcherID,
		&o.CreatedAt, &o.TakenAt, &o.CompletedAt, &o.CancelledAt, &o.CancelledBy,
		&o.ClientInformed, &o.DriverInformed,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	query := `
		INSERT INTO orders (from_city, to_city, tariff, passengers, price, comment, scheduled_at,
			client_name, client_phone, status, dispatcher_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		order.FromCity,
		order.ToCity,
		order.Tariff,
		order.Passengers,
		order.Price,
		order.Comment,
		order.ScheduledAt,
		order.ClientName,
		order.ClientPhone,
		order.Status,
		order.DispatcherID,
	).Scan(&order.ID, &order.CreatedAt)

	if err != nil {
		r.log.Error("failed to create order", logger.Error(err))
		return nil, err
	}

	return order, nil
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get order by id", logger.Int64("id", id), logger.Error(err))
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) GetAll(ctx context.Context) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	return r.scanOrders(ctx, query)
}

func (r *orderRepo) GetByStatus(ctx context.Context, status string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`
	return r.scanOrders(ctx, query, status)
}

func (r *orderRepo) GetDriverOrders(ctx context.Context, driverID int64) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE driver_id = $1 ORDER BY created_at DESC`
	return r.scanOrders(ctx, query, driverID)
}

func (r *orderRepo) GetDispatcherOrders(ctx context.Context, dispatcherID int64) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE dispatcher_id = $1 ORDER BY created_at DESC`
	return r.scanOrders(ctx, query, dispatcherID)
}

func (r *orderRepo) GetActiveDriverOrder(ctx context.Context, driverID int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE driver_id = $1 AND status = 'taken' LIMIT 1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, driverID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get active driver order", logger.Int64("driver_id", driverID), logger.Error(err))
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) scanOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *orderRepo) TakeIntoWork(ctx context.Context, orderID, dispatcherID int64) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE orders SET status = 'processing', dispatcher_id = $1, taken_at = NOW()
		WHERE id = $2 AND status = 'new'`,
		dispatcherID, orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *orderRepo) MarkDispatched(ctx context.Context, orderID, dispatcherID int64) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE orders SET status = 'dispatched', dispatcher_id = COALESCE(dispatcher_id, $1)
		WHERE id = $2 AND status IN ('new', 'processing')`,
		dispatcherID, orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *orderRepo) ClaimOrder(ctx context.Context, orderID, driverID int64) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE orders SET status = 'taken', driver_id = $1, taken_at = COALESCE(taken_at, NOW())
		WHERE id = $2 AND status IN ('new', 'dispatched') AND driver_id IS NULL`,
		driverID, orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *orderRepo) CompleteOrder(ctx context.Context, orderID int64) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE orders SET status = 'completed', completed_at = NOW()
		WHERE id = $1 AND status IN ('taken', 'processing')`,
		orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *orderRepo) CancelOrder(ctx context.Context, orderID, cancelledBy int64, clientInformed, driverInformed bool) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE orders SET status = 'cancelled', cancelled_at = NOW(), cancelled_by = $1,
			client_informed = $2, driver_informed = $3, driver_id = NULL
		WHERE id = $4 AND status NOT IN ('completed', 'cancelled')`,
		cancelledBy, clientInformed, driverInformed, orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// UpdateField assumes the column name was validated against the service
// allow-list; values are always bound as parameters.
func (r *orderRepo) UpdateField(ctx context.Context, orderID int64, column string, value interface{}) (bool, error) {
	query := fmt.Sprintf(`UPDATE orders SET %s = $1 WHERE id = $2 AND status NOT IN ('completed', 'cancelled')`, column)
	res, err := r.db.Exec(ctx, query, value, orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *orderRepo) CountForUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE driver_id = $1 OR dispatcher_id = $1 OR cancelled_by = $1`,
		userID).Scan(&count)
	return count, err
}

func (r *orderRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT status, count(*) FROM orders GROUP BY status`)
}

func (r *orderRepo) CountByTariff(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT tariff, count(*) FROM orders GROUP BY tariff`)
}

func (r *orderRepo) CountByMonth(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT to_char(created_at, 'YYYY-MM'), count(*) FROM orders GROUP BY 1 ORDER BY 1`)
}

func (r *orderRepo) countGrouped(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}
