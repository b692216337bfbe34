package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

// OrderService owns the order state machine. Every transition is a
// conditional update decided by the storage layer: handlers run on
// independent goroutines, so a read-check-write here would race.
type OrderService interface {
	Create(ctx context.Context, actor *models.User, cmd CreateOrderCommand) (*models.Order, error)
	TakeIntoWork(ctx context.Context, orderID int64, actor *models.User) (*models.Order, error)
	Dispatch(ctx context.Context, orderID int64, actor *models.User) (*models.Order, error)
	Claim(ctx context.Context, orderID int64, actor *models.User) (*models.Order, error)
	Complete(ctx context.Context, orderID int64, actor *models.User) (*models.Order, error)
	Cancel(ctx context.Context, orderID int64, actor *models.User, notifiedClient, notifiedDriver bool) (*models.Order, error)
	EditField(ctx context.Context, orderID int64, actor *models.User, field, value string) (*models.Order, error)

	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetByStatus(ctx context.Context, status string) ([]*models.Order, error)
	GetDriverOrders(ctx context.Context, driverID int64) ([]*models.Order, error)
	GetDispatcherOrders(ctx context.Context, dispatcherID int64) ([]*models.Order, error)
	GetActiveDriverOrder(ctx context.Context, driverID int64) (*models.Order, error)
	AuditTrail(ctx context.Context, orderID int64) ([]*models.AuditEntry, error)
}

type CreateOrderCommand struct {
	FromCity    string
	ToCity      string
	Tariff      string
	Passengers  int
	Price       *float64
	Comment     string
	ScheduledAt *string
	ClientName  string
	ClientPhone string
}

type orderService struct {
	stg         storage.IStorage
	broadcaster BroadcastService
	log         logger.ILogger
}

func NewOrderService(stg storage.IStorage, broadcaster BroadcastService, log logger.ILogger) OrderService {
	return &orderService{stg: stg, broadcaster: broadcaster, log: log}
}

var phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

func NormalizePhone(raw string) (string, bool) {
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	if !phoneRe.MatchString(phone) {
		return "", false
	}
	return phone, true
}

func (s *orderService) Create(ctx context.Context, actor *models.User, cmd CreateOrderCommand) (*models.Order, error) {
	if !actor.IsApproved() || !actor.CanManageOrders() {
		return nil, ErrNotAuthorized
	}
	if cmd.FromCity == "" || cmd.ToCity == "" {
		return nil, fmt.Errorf("%w: route endpoints are required", ErrBadInput)
	}
	if !models.IsValidTariff(cmd.Tariff) {
		return nil, fmt.Errorf("%w: unknown tariff %q", ErrBadInput, cmd.Tariff)
	}
	if cmd.Passengers <= 0 {
		return nil, fmt.Errorf("%w: passenger count must be positive", ErrBadInput)
	}
	phone, ok := NormalizePhone(cmd.ClientPhone)
	if !ok {
		return nil, fmt.Errorf("%w: bad client phone", ErrBadInput)
	}

	order, err := s.stg.Order().Create(ctx, &models.Order{
		FromCity:     cmd.FromCity,
		ToCity:       cmd.ToCity,
		Tariff:       cmd.Tariff,
		Passengers:   cmd.Passengers,
		Price:        cmd.Price,
		Comment:      cmd.Comment,
		ScheduledAt:  cmd.ScheduledAt,
		ClientName:   cmd.ClientName,
		ClientPhone:  phone,
		Status:       models.StatusNew,
		DispatcherID: &actor.ID,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created", logger.Int64("order_id", order.ID), logger.Int64("actor_id", actor.ID))
	s.broadcaster.NotifyStaff(ctx, renderOrderCreatedNotice(order), actor.ID)
	return order, nil
}

func (s *orderService) TakeIntoWork(ctx context.Context, orderID int64, actor *models.User) (*models.Order, error) {
	if !actor.IsApproved() || !actor.CanManageOrders() {
		return nil, ErrNotAuthorized
	}

	ok, err := s.stg.Order().TakeIntoWork(ctx, orderID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		order, err := s.stg.Order().GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, ErrNotFound
		}
		return nil, ErrInvalidTransition
	}

	order, err := s.stg.Order().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.log.Info("order taken into work", logger.Int64("order_id", orderID), logger.Int64("actor_id", actor.ID))

	// Clean up any stray offers before another dispatcher re-dispatches.
	s.broadcaster.RetractAll(ctx, orderID)
	s.broadcaster.NotifyStaff(ctx, renderOrderInWorkNotice(order, actor), actor.ID)
	return order, nil
}

func (s *orderService) Dispatch(ctx context.Context, orderID int64, actor *models.User) (*models.Order, error) {
	if !actor.IsApproved() || !actor.CanManageOrders() {
		return nil, ErrNotAuthorized
	}

	ok, err := s.stg.Order().MarkDispatched(ctx, orderID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		order, err := s.stg.Order().GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyProcessed
	}

	order, err := s.stg.Order().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Admins get the fan-out too, for visibility.
	recipients, err := s.stg.User().GetApprovedByRoles(ctx, models.RoleDriver, models.RoleAdmin)
	if err != nil {
		s.log.Error("failed to list fan-out recipients", logger.Error(err))
		return order, nil
	}
	s.broadcaster.FanOut(ctx, order, recipients)
	return order, nil
}

func (s *orderService) Claim(ctx context.Context, orderID int64, actor *models.User) (*models.Order, error) {
	if !actor.IsApproved() || !actor.CanDrive() {
		return nil, ErrNotAuthorized
	}

	// One order at a time per driver.
	active, err := s.stg.Order().GetActiveDriverOrder(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrDriverBusy
	}

	// The conditional write is the single source of truth for who wins.
	ok, err := s.stg.Order().ClaimOrder(ctx, orderID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		order, err := s.stg.Order().GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyTaken
	}

	order, err := s.stg.Order().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.log.Info("order claimed",
		logger.Int64("order_id", orderID),
		logger.Int64("driver_id", actor.ID))

	// Winner sees the full card first, then the offer disappears for
	// everyone else, then the staff learn who took it.
	s.broadcaster.RewriteWinner(ctx, orderID, actor.TelegramID, RenderOrderFull(order))
	s.broadcaster.RetractOthers(ctx, orderID, actor.TelegramID)
	s.broadcaster.NotifyStaff(ctx, renderOrderTakenNotice(order, actor), actor.ID)
	return order, nil
}

func (s *orderService) Complete(ctx context.Context, orderID int64, actor *models.User) (*models.Order, error) {
	before, err := s.stg.Order().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, ErrNotFound
	}
	if !s.mayComplete(before, actor) {
		return nil, ErrNotAuthorized
	}

	ok, err := s.stg.Order().CompleteOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	order, err := s.stg.Order().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.log.Info("order completed", logger.Int64("order_id", orderID), logger.Int64("actor_id", actor.ID))

	// The dispatcher-only path never fans out, but a completion may still
	// find leftovers if the order was dispatched before being claimed.
	s.broadcaster.RetractAll(ctx, orderID)

	if order.DispatcherID != nil && *order.DispatcherID != actor.ID {
		if dispatcher, err := s.stg.User().GetByID(ctx, *order.DispatcherID); err == nil && dispatcher != nil {
			s.broadcaster.NotifyChat(ctx, dispatcher.TelegramID, renderOrderCompletedForDispatcher(order, actor))
		}
	}
	s.notifyAdmins(ctx, renderOrderCompletedNotice(order, actor), actor.ID)
	return order, nil
}

func (s *orderService) mayComplete(order *models.Order, actor *models.User) bool {
	if !actor.IsApproved() {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}
	if order.DriverID != nil && *order.DriverID == actor.ID {
		return true
	}
	if order.DispatcherID != nil && *order.DispatcherID == actor.ID {
		return true
	}
	return false
}

func (s *orderService) Cancel(ctx context.Context, orderID int64, actor *models.User, notifiedClient, notifiedDriver bool) (*models.Order, error) {
	if !actor.IsApproved() || !actor.CanManageOrders() {
		return nil, ErrNotAuthorized
	}

	// Pre-read to know the assigned driver: cancellation detaches them.
	before, err := s.stg.Order().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, ErrNotFound
	}

	ok, err := s.stg.Order().CancelOrder(ctx, orderID, actor.ID, notifiedClient, notifiedDriver)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	order, err := s.stg.Order().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.log.Info("order cancelled",
		logger.Int64("order_id", orderID),
		logger.Int64("actor_id", actor.ID),
		logger.Bool("client_informed", notifiedClient),
		logger.Bool("driver_informed", notifiedDriver))

	s.broadcaster.RetractAll(ctx, orderID)

	if before.DriverID != nil {
		if driver, err := s.stg.User().GetByID(ctx, *before.DriverID); err == nil && driver != nil {
			s.broadcaster.NotifyChat(ctx, driver.TelegramID,
				fmt.Sprintf("⚠️ Заказ #%d отменён диспетчером.", orderID))
		}
	}
	s.broadcaster.NotifyStaff(ctx, renderOrderCancelledNotice(order, actor), actor.ID)
	return order, nil
}

// editableFields maps the edit allow-list to storage columns.
var editableFields = map[string]string{
	"from_city":    "from_city",
	"to_city":      "to_city",
	"tariff":       "tariff",
	"passengers":   "passengers",
	"price":        "price",
	"scheduled_at": "scheduled_at",
	"comment":      "comment",
	"client_name":  "client_name",
	"client_phone": "client_phone",
}

func (s *orderService) EditField(ctx context.Context, orderID int64, actor *models.User, field, value string) (*models.Order, error) {
	if !actor.IsApproved() || !actor.CanManageOrders() {
		return nil, ErrNotAuthorized
	}
	column, ok := editableFields[field]
	if !ok {
		return nil, fmt.Errorf("%w: field %q is not editable", ErrBadInput, field)
	}

	parsed, err := parseFieldValue(field, value)
	if err != nil {
		return nil, err
	}

	applied, err := s.stg.Order().UpdateField(ctx, orderID, column, parsed)
	if err != nil {
		return nil, err
	}
	if !applied {
		order, err := s.stg.Order().GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, ErrNotFound
		}
		return nil, ErrInvalidTransition
	}

	if err := s.stg.Audit().Append(ctx, &models.AuditEntry{
		OrderID:  orderID,
		ActorID:  actor.ID,
		Field:    field,
		NewValue: value,
	}); err != nil {
		// The edit itself succeeded; the trail gap is logged upstream.
		s.log.Error("audit append failed", logger.Int64("order_id", orderID), logger.Error(err))
	}

	return s.stg.Order().GetByID(ctx, orderID)
}

func parseFieldValue(field, value string) (interface{}, error) {
	switch field {
	case "passengers":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: passenger count must be a positive number", ErrBadInput)
		}
		return n, nil
	case "price":
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(value), ",", ".", 1), 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("%w: bad price", ErrBadInput)
		}
		return f, nil
	case "tariff":
		if !models.IsValidTariff(value) {
			return nil, fmt.Errorf("%w: unknown tariff %q", ErrBadInput, value)
		}
		return value, nil
	case "client_phone":
		phone, ok := NormalizePhone(value)
		if !ok {
			return nil, fmt.Errorf("%w: bad phone", ErrBadInput)
		}
		return phone, nil
	default:
		return value, nil
	}
}

func (s *orderService) notifyAdmins(ctx context.Context, text string, exceptUserID int64) {
	admins, err := s.stg.User().GetApprovedByRoles(ctx, models.RoleAdmin)
	if err != nil {
		s.log.Error("failed to list admins for notification", logger.Error(err))
		return
	}
	for _, a := range admins {
		if a.ID == exceptUserID {
			continue
		}
		s.broadcaster.NotifyChat(ctx, a.TelegramID, text)
	}
}

func (s *orderService) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	order, err := s.stg.Order().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

func (s *orderService) GetByStatus(ctx context.Context, status string) ([]*models.Order, error) {
	return s.stg.Order().GetByStatus(ctx, status)
}

func (s *orderService) GetDriverOrders(ctx context.Context, driverID int64) ([]*models.Order, error) {
	return s.stg.Order().GetDriverOrders(ctx, driverID)
}

func (s *orderService) GetDispatcherOrders(ctx context.Context, dispatcherID int64) ([]*models.Order, error) {
	return s.stg.Order().GetDispatcherOrders(ctx, dispatcherID)
}

func (s *orderService) GetActiveDriverOrder(ctx context.Context, driverID int64) (*models.Order, error) {
	return s.stg.Order().GetActiveDriverOrder(ctx, driverID)
}

func (s *orderService) AuditTrail(ctx context.Context, orderID int64) ([]*models.AuditEntry, error) {
	return s.stg.Audit().GetByOrder(ctx, orderID)
}
