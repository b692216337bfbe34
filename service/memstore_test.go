package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

// memStore is an in-memory storage.IStorage for service tests. The
// conditional updates hold the same promise as the SQL ones: check and
// write happen under one lock, so concurrent claims resolve to exactly
// one winner.
type memStore struct {
	mu sync.Mutex

	users      map[int64]*models.User
	orders     map[int64]*models.Order
	broadcasts map[int64]*models.BroadcastMessage
	tickets    map[int64]*models.SupportTicket
	ticketMsgs []*models.TicketMessage
	audits     []*models.AuditEntry

	nextUserID      int64
	nextOrderID     int64
	nextBroadcastID int64
	nextTicketID    int64
	nextMsgID       int64
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[int64]*models.User),
		orders:     make(map[int64]*models.Order),
		broadcasts: make(map[int64]*models.BroadcastMessage),
		tickets:    make(map[int64]*models.SupportTicket),
	}
}

func (s *memStore) User() storage.IUserStorage           { return (*memUserRepo)(s) }
func (s *memStore) Order() storage.IOrderStorage         { return (*memOrderRepo)(s) }
func (s *memStore) Broadcast() storage.IBroadcastStorage { return (*memBroadcastRepo)(s) }
func (s *memStore) Ticket() storage.ITicketStorage       { return (*memTicketRepo)(s) }
func (s *memStore) Audit() storage.IAuditStorage         { return (*memAuditRepo)(s) }
func (s *memStore) Close()                               {}
func (s *memStore) GetPool() *pgxpool.Pool               { return nil }

// addUser seeds an approved user unless a status is set explicitly.
func (s *memStore) addUser(u *models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	u.ID = s.nextUserID
	if u.TelegramID == 0 {
		u.TelegramID = 1000 + u.ID
	}
	if u.Status == "" {
		u.Status = models.UserApproved
	}
	u.CreatedAt = time.Now()
	s.users[u.ID] = u
	return u
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	return &c
}

// --- users -----------------------------------------------------------------

type memUserRepo memStore

func (r *memUserRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	return (*memStore)(r).addUser(user), nil
}

func (r *memUserRepo) EnsureAdmin(_ context.Context, telegramID int64, username, fullName string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramID == telegramID {
			u.Role = models.RoleAdmin
			u.Status = models.UserApproved
			return u, nil
		}
	}
	r.nextUserID++
	u := &models.User{
		ID: r.nextUserID, TelegramID: telegramID, Username: username, FullName: fullName,
		Role: models.RoleAdmin, Status: models.UserApproved, CreatedAt: time.Now(),
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *memUserRepo) Get(_ context.Context, telegramID int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *memUserRepo) GetByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Login != nil && *u.Login == login {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetAll(_ context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memUserRepo) GetPending(_ context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, u := range r.users {
		if u.Status == models.UserPending {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUserRepo) GetApprovedByRoles(_ context.Context, roles ...string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, u := range r.users {
		if u.Status != models.UserApproved {
			continue
		}
		for _, role := range roles {
			if u.Role == role {
				out = append(out, u)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memUserRepo) UpdateStatusByID(_ context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Status = status
	}
	return nil
}

func (r *memUserRepo) UpdateRoleByID(_ context.Context, id int64, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Role = role
	}
	return nil
}

func (r *memUserRepo) UpdatePhoneByID(_ context.Context, id int64, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Phone = phone
	}
	return nil
}

func (r *memUserRepo) SetCredentials(_ context.Context, id int64, login, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Login = &login
		u.PasswordHash = &passwordHash
	}
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

// --- orders ----------------------------------------------------------------

type memOrderRepo memStore

func (r *memOrderRepo) Create(_ context.Context, order *models.Order) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextOrderID++
	order.ID = r.nextOrderID
	order.CreatedAt = time.Now()
	r.orders[order.ID] = cloneOrder(order)
	return order, nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (r *memOrderRepo) GetAll(_ context.Context) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memOrderRepo) GetByStatus(_ context.Context, status string) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if o.Status == status {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memOrderRepo) GetDriverOrders(_ context.Context, driverID int64) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if o.DriverID != nil && *o.DriverID == driverID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *memOrderRepo) GetDispatcherOrders(_ context.Context, dispatcherID int64) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if o.DispatcherID != nil && *o.DispatcherID == dispatcherID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *memOrderRepo) GetActiveDriverOrder(_ context.Context, driverID int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Status == models.StatusTaken && o.DriverID != nil && *o.DriverID == driverID {
			return cloneOrder(o), nil
		}
	}
	return nil, nil
}

func (r *memOrderRepo) TakeIntoWork(_ context.Context, orderID, dispatcherID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != models.StatusNew {
		return false, nil
	}
	now := time.Now()
	o.Status = models.StatusProcessing
	o.DispatcherID = &dispatcherID
	o.TakenAt = &now
	return true, nil
}

func (r *memOrderRepo) MarkDispatched(_ context.Context, orderID, dispatcherID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || (o.Status != models.StatusNew && o.Status != models.StatusProcessing) {
		return false, nil
	}
	o.Status = models.StatusDispatched
	if o.DispatcherID == nil {
		o.DispatcherID = &dispatcherID
	}
	return true, nil
}

func (r *memOrderRepo) ClaimOrder(_ context.Context, orderID, driverID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.DriverID != nil {
		return false, nil
	}
	if o.Status != models.StatusNew && o.Status != models.StatusDispatched {
		return false, nil
	}
	o.Status = models.StatusTaken
	o.DriverID = &driverID
	if o.TakenAt == nil {
		now := time.Now()
		o.TakenAt = &now
	}
	return true, nil
}

func (r *memOrderRepo) CompleteOrder(_ context.Context, orderID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || (o.Status != models.StatusTaken && o.Status != models.StatusProcessing) {
		return false, nil
	}
	now := time.Now()
	o.Status = models.StatusCompleted
	o.CompletedAt = &now
	return true, nil
}

func (r *memOrderRepo) CancelOrder(_ context.Context, orderID, cancelledBy int64, clientInformed, driverInformed bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || models.IsTerminalStatus(o.Status) {
		return false, nil
	}
	now := time.Now()
	o.Status = models.StatusCancelled
	o.CancelledAt = &now
	o.CancelledBy = &cancelledBy
	o.ClientInformed = clientInformed
	o.DriverInformed = driverInformed
	o.DriverID = nil
	return true, nil
}

func (r *memOrderRepo) UpdateField(_ context.Context, orderID int64, column string, value interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || models.IsTerminalStatus(o.Status) {
		return false, nil
	}
	switch column {
	case "from_city":
		o.FromCity = value.(string)
	case "to_city":
		o.ToCity = value.(string)
	case "tariff":
		o.Tariff = value.(string)
	case "passengers":
		o.Passengers = value.(int)
	case "price":
		f := value.(float64)
		o.Price = &f
	case "scheduled_at":
		s := value.(string)
		o.ScheduledAt = &s
	case "comment":
		o.Comment = value.(string)
	case "client_name":
		o.ClientName = value.(string)
	case "client_phone":
		o.ClientPhone = value.(string)
	default:
		return false, nil
	}
	return true, nil
}

func (r *memOrderRepo) CountForUser(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, o := range r.orders {
		if (o.DriverID != nil && *o.DriverID == userID) ||
			(o.DispatcherID != nil && *o.DispatcherID == userID) ||
			(o.CancelledBy != nil && *o.CancelledBy == userID) {
			count++
		}
	}
	return count, nil
}

func (r *memOrderRepo) CountByStatus(_ context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, o := range r.orders {
		out[o.Status]++
	}
	return out, nil
}

func (r *memOrderRepo) CountByTariff(_ context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, o := range r.orders {
		out[o.Tariff]++
	}
	return out, nil
}

func (r *memOrderRepo) CountByMonth(_ context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, o := range r.orders {
		out[o.CreatedAt.Format("2006-01")]++
	}
	return out, nil
}

// --- broadcast rows --------------------------------------------------------

type memBroadcastRepo memStore

func (r *memBroadcastRepo) Create(_ context.Context, msg *models.BroadcastMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextBroadcastID++
	msg.ID = r.nextBroadcastID
	msg.CreatedAt = time.Now()
	c := *msg
	r.broadcasts[msg.ID] = &c
	return nil
}

func (r *memBroadcastRepo) GetByOrder(_ context.Context, orderID int64) ([]*models.BroadcastMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BroadcastMessage
	for _, m := range r.broadcasts {
		if m.OrderID == orderID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memBroadcastRepo) GetByOrderAndChat(_ context.Context, orderID, chatID int64) (*models.BroadcastMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.broadcasts {
		if m.OrderID == orderID && m.ChatID == chatID {
			c := *m
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memBroadcastRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.broadcasts, id)
	return nil
}

func (r *memBroadcastRepo) DeleteByOrder(_ context.Context, orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.broadcasts {
		if m.OrderID == orderID {
			delete(r.broadcasts, id)
		}
	}
	return nil
}

// --- tickets ---------------------------------------------------------------

type memTicketRepo memStore

func (r *memTicketRepo) Create(_ context.Context, ticket *models.SupportTicket) (*models.SupportTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTicketID++
	ticket.ID = r.nextTicketID
	ticket.CreatedAt = time.Now()
	c := *ticket
	r.tickets[ticket.ID] = &c
	return ticket, nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id int64) (*models.SupportTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r *memTicketRepo) GetAll(_ context.Context) ([]*models.SupportTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SupportTicket
	for _, t := range r.tickets {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memTicketRepo) GetByAuthor(_ context.Context, authorID int64) ([]*models.SupportTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SupportTicket
	for _, t := range r.tickets {
		if t.AuthorID == authorID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memTicketRepo) GetOpen(_ context.Context) ([]*models.SupportTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SupportTicket
	for _, t := range r.tickets {
		if t.Status != models.TicketClosed {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memTicketRepo) UpdateStatus(_ context.Context, id int64, fromStatus, toStatus string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Status != fromStatus {
		return false, nil
	}
	t.Status = toStatus
	return true, nil
}

func (r *memTicketRepo) AddMessage(_ context.Context, msg *models.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMsgID++
	msg.ID = r.nextMsgID
	msg.CreatedAt = time.Now()
	c := *msg
	r.ticketMsgs = append(r.ticketMsgs, &c)
	return nil
}

func (r *memTicketRepo) GetMessages(_ context.Context, ticketID int64) ([]*models.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TicketMessage
	for _, m := range r.ticketMsgs {
		if m.TicketID == ticketID {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

// --- audit -----------------------------------------------------------------

type memAuditRepo memStore

func (r *memAuditRepo) Append(_ context.Context, entry *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.CreatedAt = time.Now()
	c := *entry
	r.audits = append(r.audits, &c)
	return nil
}

func (r *memAuditRepo) GetByOrder(_ context.Context, orderID int64) ([]*models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range r.audits {
		if e.OrderID == orderID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memAuditRepo) GetAll(_ context.Context) ([]*models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range r.audits {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// --- messenger fake --------------------------------------------------------

type sentMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Deleted   bool
	Edited    bool
}

// fakeMessenger records deliveries and can refuse selected chats, the
// way a blocked Telegram recipient would.
type fakeMessenger struct {
	mu       sync.Mutex
	nextID   int
	sent     []*sentMessage
	failFor  map[int64]bool
	sendErrs int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failFor: make(map[int64]bool)}
}

func (m *fakeMessenger) failChat(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[chatID] = true
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, msg Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[chatID] {
		m.sendErrs++
		return 0, errDelivery
	}
	m.nextID++
	m.sent = append(m.sent, &sentMessage{ChatID: chatID, MessageID: m.nextID, Text: msg.Text})
	return m.nextID, nil
}

func (m *fakeMessenger) Edit(_ context.Context, chatID int64, messageID int, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[chatID] {
		return errDelivery
	}
	for _, s := range m.sent {
		if s.ChatID == chatID && s.MessageID == messageID {
			s.Text = msg.Text
			s.Edited = true
			return nil
		}
	}
	return errDelivery
}

func (m *fakeMessenger) Delete(_ context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[chatID] {
		return errDelivery
	}
	for _, s := range m.sent {
		if s.ChatID == chatID && s.MessageID == messageID {
			s.Deleted = true
			return nil
		}
	}
	return nil
}

// visible returns undeleted messages currently shown in a chat.
func (m *fakeMessenger) visible(chatID int64) []*sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*sentMessage
	for _, s := range m.sent {
		if s.ChatID == chatID && !s.Deleted {
			out = append(out, s)
		}
	}
	return out
}

var errDelivery = errors.New("delivery refused")

// nopLogger keeps test output quiet.
type nopLogger struct{}

func (nopLogger) Debug(string, ...logger.Field)   {}
func (nopLogger) Info(string, ...logger.Field)    {}
func (nopLogger) Warning(string, ...logger.Field) {}
func (nopLogger) Error(string, ...logger.Field)   {}

func newTestServices() (*memStore, *fakeMessenger, IServiceManager) {
	stg := newMemStore()
	msgr := newFakeMessenger()
	return stg, msgr, New(stg, msgr, nopLogger{})
}
