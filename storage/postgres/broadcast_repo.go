package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

type broadcastRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewBroadcastRepo(db *pgxpool.Pool, log logger.ILogger) storage.IBroadcastStorage {
	return &broadcastRepo{db: db, log: log}
}

func (r *broadcastRepo) Create(ctx context.Context, msg *models.BroadcastMessage) error {
	query := `
		INSERT INTO broadcast_messages (order_id, chat_id, message_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, chat_id) DO UPDATE SET message_id = EXCLUDED.message_id
	`
	_, err := r.db.Exec(ctx, query, msg.OrderID, msg.ChatID, msg.MessageID)
	if err != nil {
		r.log.Error("failed to record broadcast message", logger.Error(err))
	}
	return err
}

func (r *broadcastRepo) GetByOrder(ctx context.Context, orderID int64) ([]*models.BroadcastMessage, error) {
	query := `SELECT id, order_id, chat_id, message_id, created_at FROM broadcast_messages WHERE order_id = $1`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.BroadcastMessage
	for rows.Next() {
		var m models.BroadcastMessage
		if err := rows.Scan(&m.ID, &m.OrderID, &m.ChatID, &m.MessageID, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (r *broadcastRepo) GetByOrderAndChat(ctx context.Context, orderID, chatID int64) (*models.BroadcastMessage, error) {
	query := `SELECT id, order_id, chat_id, message_id, created_at FROM broadcast_messages WHERE order_id = $1 AND chat_id = $2`
	var m models.BroadcastMessage
	err := r.db.QueryRow(ctx, query, orderID, chatID).Scan(&m.ID, &m.OrderID, &m.ChatID, &m.MessageID, &m.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *broadcastRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, "DELETE FROM broadcast_messages WHERE id=$1", id)
	return err
}

func (r *broadcastRepo) DeleteByOrder(ctx context.Context, orderID int64) error {
	_, err := r.db.Exec(ctx, "DELETE FROM broadcast_messages WHERE order_id=$1", orderID)
	return err
}
