package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/models"
)

type IStorage interface {
	User() IUserStorage
	Order() IOrderStorage
	Broadcast() IBroadcastStorage
	Ticket() ITicketStorage
	Audit() IAuditStorage
	Close()
	GetPool() *pgxpool.Pool
}

type IUserStorage interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// EnsureAdmin upserts the bootstrap admin as approved on first contact.
	EnsureAdmin(ctx context.Context, telegramID int64, username, fullName string) (*models.User, error)
	Get(ctx context.Context, telegramID int64) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	GetAll(ctx context.Context) ([]*models.User, error)
	GetPending(ctx context.Context) ([]*models.User, error)
	// GetApprovedByRoles returns approved users holding any of the roles.
	GetApprovedByRoles(ctx context.Context, roles ...string) ([]*models.User, error)
	UpdateStatusByID(ctx context.Context, id int64, status string) error
	UpdateRoleByID(ctx context.Context, id int64, role string) error
	UpdatePhoneByID(ctx context.Context, id int64, phone string) error
	SetCredentials(ctx context.Context, id int64, login, passwordHash string) error
	Delete(ctx context.Context, id int64) error
}

type IOrderStorage interface {
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetAll(ctx context.Context) ([]*models.Order, error)
	GetByStatus(ctx context.Context, status string) ([]*models.Order, error)
	GetDriverOrders(ctx context.Context, driverID int64) ([]*models.Order, error)
	GetDispatcherOrders(ctx context.Context, dispatcherID int64) ([]*models.Order, error)
	// GetActiveDriverOrder returns the driver's order in taken status, or
	// nil when the driver is free.
	GetActiveDriverOrder(ctx context.Context, driverID int64) (*models.Order, error)

	// Conditional updates. Each applies only when the row still matches the
	// expected prior state and reports false otherwise, so claim races are
	// decided by the database, not by application reads.
	TakeIntoWork(ctx context.Context, orderID, dispatcherID int64) (bool, error)
	MarkDispatched(ctx context.Context, orderID, dispatcherID int64) (bool, error)
	ClaimOrder(ctx context.Context, orderID, driverID int64) (bool, error)
	CompleteOrder(ctx context.Context, orderID int64) (bool, error)
	CancelOrder(ctx context.Context, orderID, cancelledBy int64, clientInformed, driverInformed bool) (bool, error)
	UpdateField(ctx context.Context, orderID int64, column string, value interface{}) (bool, error)

	CountForUser(ctx context.Context, userID int64) (int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountByTariff(ctx context.Context) (map[string]int, error)
	CountByMonth(ctx context.Context) (map[string]int, error)
}

type IBroadcastStorage interface {
	Create(ctx context.Context, msg *models.BroadcastMessage) error
	GetByOrder(ctx context.Context, orderID int64) ([]*models.BroadcastMessage, error)
	GetByOrderAndChat(ctx context.Context, orderID, chatID int64) (*models.BroadcastMessage, error)
	Delete(ctx context.Context, id int64) error
	DeleteByOrder(ctx context.Context, orderID int64) error
}

type ITicketStorage interface {
	Create(ctx context.Context, ticket *models.SupportTicket) (*models.SupportTicket, error)
	GetByID(ctx context.Context, id int64) (*models.SupportTicket, error)
	GetAll(ctx context.Context) ([]*models.SupportTicket, error)
	GetByAuthor(ctx context.Context, authorID int64) ([]*models.SupportTicket, error)
	GetOpen(ctx context.Context) ([]*models.SupportTicket, error)
	// UpdateStatus applies only when the ticket is still in fromStatus.
	UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) (bool, error)
	AddMessage(ctx context.Context, msg *models.TicketMessage) error
	GetMessages(ctx context.Context, ticketID int64) ([]*models.TicketMessage, error)
}

type IAuditStorage interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	GetByOrder(ctx context.Context, orderID int64) ([]*models.AuditEntry, error)
	GetAll(ctx context.Context) ([]*models.AuditEntry, error)
}
