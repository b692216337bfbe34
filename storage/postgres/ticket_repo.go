package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

type ticketRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewTicketRepo(db *pgxpool.Pool, log logger.ILogger) storage.ITicketStorage {
	return &ticketRepo{db: db, log: log}
}

func (r *ticketRepo) Create(ctx context.Context, ticket *models.SupportTicket) (*models.SupportTicket, error) {
	query := `
		INSERT INTO support_tickets (author_id, type, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, ticket.AuthorID, ticket.Type, ticket.Status).
		Scan(&ticket.ID, &ticket.CreatedAt)
	if err != nil {
		r.log.Error("failed to create ticket", logger.Error(err))
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id int64) (*models.SupportTicket, error) {
	query := `SELECT id, author_id, type, status, created_at FROM support_tickets WHERE id = $1`
	var t models.SupportTicket
	err := r.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.AuthorID, &t.Type, &t.Status, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get ticket", logger.Error(err))
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepo) GetAll(ctx context.Context) ([]*models.SupportTicket, error) {
	return r.scanTickets(ctx, `SELECT id, author_id, type, status, created_at FROM support_tickets ORDER BY created_at DESC`)
}

func (r *ticketRepo) GetByAuthor(ctx context.Context, authorID int64) ([]*models.SupportTicket, error) {
	return r.scanTickets(ctx,
		`SELECT id, author_id, type, status, created_at FROM support_tickets WHERE author_id = $1 ORDER BY created_at DESC`,
		authorID)
}

func (r *ticketRepo) GetOpen(ctx context.Context) ([]*models.SupportTicket, error) {
	return r.scanTickets(ctx,
		`SELECT id, author_id, type, status, created_at FROM support_tickets WHERE status != 'closed' ORDER BY created_at`)
}

func (r *ticketRepo) scanTickets(ctx context.Context, query string, args ...interface{}) ([]*models.SupportTicket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*models.SupportTicket
	for rows.Next() {
		var t models.SupportTicket
		if err := rows.Scan(&t.ID, &t.AuthorID, &t.Type, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, &t)
	}
	return tickets, rows.Err()
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) (bool, error) {
	res, err := r.db.Exec(ctx,
		"UPDATE support_tickets SET status=$1 WHERE id=$2 AND status=$3",
		toStatus, id, fromStatus)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *ticketRepo) AddMessage(ctx context.Context, msg *models.TicketMessage) error {
	query := `
		INSERT INTO ticket_messages (ticket_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return r.db.QueryRow(ctx, query, msg.TicketID, msg.SenderID, msg.Body).
		Scan(&msg.ID, &msg.CreatedAt)
}

func (r *ticketRepo) GetMessages(ctx context.Context, ticketID int64) ([]*models.TicketMessage, error) {
	query := `SELECT id, ticket_id, sender_id, body, created_at FROM ticket_messages WHERE ticket_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.TicketMessage
	for rows.Next() {
		var m models.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
